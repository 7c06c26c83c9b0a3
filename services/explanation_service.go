package services

import (
	"context"
	"fmt"
	"strings"

	apperrors "mealshare-backend/errors"
	"mealshare-backend/models"
	"mealshare-backend/money"
	"mealshare-backend/repository"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// TextGenerator turns a prompt into prose.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type GeminiGenerator struct {
	client *genai.Client
	model  string
}

func NewGeminiGenerator(ctx context.Context, apiKey string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return &GeminiGenerator{client: client, model: "gemini-2.0-flash"}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.GenerativeModel(g.model).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil && len(resp.Candidates[0].Content.Parts) > 0 {
		if part, ok := resp.Candidates[0].Content.Parts[0].(genai.Text); ok {
			return string(part), nil
		}
	}
	return "", nil
}

func (g *GeminiGenerator) Close() error {
	return g.client.Close()
}

type ExplanationService interface {
	ExplainDebt(ctx context.Context, userID, counterpartyID string) (*models.DebtExplanation, error)
}

type explanationService struct {
	expenseRepo    repository.ExpenseRepository
	payoutRepo     repository.PayoutRepository
	userRepo       repository.UserRepository
	reconciliation ReconciliationService
	generator      TextGenerator
}

func NewExplanationService(
	generator TextGenerator,
	expenseRepo repository.ExpenseRepository,
	payoutRepo repository.PayoutRepository,
	userRepo repository.UserRepository,
	reconciliation ReconciliationService,
) ExplanationService {
	return &explanationService{
		expenseRepo:    expenseRepo,
		payoutRepo:     payoutRepo,
		userRepo:       userRepo,
		reconciliation: reconciliation,
		generator:      generator,
	}
}

// ExplainDebt describes, in a few sentences, why userID and counterpartyID
// stand where they do. Residual is positive when the counterparty owes userID.
func (s *explanationService) ExplainDebt(ctx context.Context, userID, counterpartyID string) (*models.DebtExplanation, error) {
	if userID == counterpartyID {
		return nil, apperrors.SelfTransfer()
	}
	names := make(map[string]string, 2)
	for _, id := range []string{userID, counterpartyID} {
		u, err := s.userRepo.GetByID(ctx, id)
		if err != nil {
			if apperrors.IsNotFoundError(err) {
				return nil, apperrors.UserNotFound()
			}
			return nil, apperrors.DatabaseError("getting user", err)
		}
		names[id] = u.DisplayName
	}

	residual, err := s.residual(ctx, userID, counterpartyID)
	if err != nil {
		return nil, err
	}

	expenses, err := s.expenseRepo.List(ctx, models.DateRange{}, false)
	if err != nil {
		return nil, apperrors.DatabaseError("listing expenses", err)
	}
	payouts, err := s.payoutRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, apperrors.DatabaseError("listing payouts", err)
	}

	prompt := buildDebtPrompt(names, userID, counterpartyID, residual, sharedExpenses(expenses, userID, counterpartyID), payoutsBetween(payouts, userID, counterpartyID))
	text, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, apperrors.AIServiceError(err)
	}

	return &models.DebtExplanation{
		UserID:         userID,
		CounterpartyID: counterpartyID,
		Residual:       residual,
		Explanation:    strings.TrimSpace(text),
	}, nil
}

func (s *explanationService) residual(ctx context.Context, userID, counterpartyID string) (int64, error) {
	var residual int64
	owed, err := s.reconciliation.Payable(ctx, counterpartyID)
	if err != nil {
		return 0, err
	}
	for _, r := range owed {
		if r.ToUserID == userID {
			residual += r.Residual
		}
	}
	owing, err := s.reconciliation.Payable(ctx, userID)
	if err != nil {
		return 0, err
	}
	for _, r := range owing {
		if r.ToUserID == counterpartyID {
			residual -= r.Residual
		}
	}
	return residual, nil
}

func sharedExpenses(expenses []models.Expense, a, b string) []models.Expense {
	var out []models.Expense
	for _, e := range expenses {
		if e.PayerID != a && e.PayerID != b {
			continue
		}
		other := b
		if e.PayerID == b {
			other = a
		}
		for _, sh := range e.Shares {
			if sh.UserID == other {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

func payoutsBetween(payouts []models.Payout, a, b string) []models.Payout {
	var out []models.Payout
	for _, p := range payouts {
		to := p.RecipientID()
		if (p.FromUserID == a && to == b) || (p.FromUserID == b && to == a) {
			out = append(out, p)
		}
	}
	return out
}

func buildDebtPrompt(names map[string]string, userID, counterpartyID string, residual int64, expenses []models.Expense, payouts []models.Payout) string {
	var b strings.Builder
	b.WriteString("You explain shared meal expenses between two friends in a group expense app.\n")
	b.WriteString("Debts are simplified across the whole group, so the amount one person owes another can differ from their direct expenses.\n\n")

	fmt.Fprintf(&b, "SHARED EXPENSES between %s and %s:\n", names[userID], names[counterpartyID])
	if len(expenses) == 0 {
		b.WriteString("None.\n")
	}
	for _, e := range expenses {
		fmt.Fprintf(&b, "- %s on %s: %s paid %s %s.", e.Description, e.OccurredOn.Format("2006-01-02"), names[e.PayerID], money.Format(e.Amount), e.Currency)
		for _, sh := range e.Shares {
			if n, ok := names[sh.UserID]; ok {
				fmt.Fprintf(&b, " %s's share %s.", n, money.Format(sh.ShareAmount))
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("\nPAYMENTS between them:\n")
	if len(payouts) == 0 {
		b.WriteString("None.\n")
	}
	for _, p := range payouts {
		fmt.Fprintf(&b, "- %s sent %s %s via %s, status %s.\n", names[p.FromUserID], money.Format(p.AmountCents), p.Currency, p.Method, p.Status)
	}

	b.WriteString("\nCURRENT POSITION after group simplification, payments and wallet balances:\n")
	switch {
	case residual > 0:
		fmt.Fprintf(&b, "%s owes %s %s.\n", names[counterpartyID], names[userID], money.Format(residual))
	case residual < 0:
		fmt.Fprintf(&b, "%s owes %s %s.\n", names[userID], names[counterpartyID], money.Format(-residual))
	default:
		b.WriteString("Nothing is owed either way.\n")
	}

	fmt.Fprintf(&b, "\nExplain this to %s in at most 3 sentences. Use names. Be accurate and do not open with filler.", names[userID])
	return b.String()
}
