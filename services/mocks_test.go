package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"mealshare-backend/database"
	"mealshare-backend/models"
	"mealshare-backend/repository"

	"github.com/jackc/pgx/v5"
)

// memStore is the shared state behind the fake repositories. fakeDB copies it
// before each transaction and puts the copy back when the transaction fails.
type memStore struct {
	users    map[string]models.User
	going    map[string][]string
	expenses map[string]models.Expense
	shares   map[string][]models.ParticipantShare
	accounts map[string]models.WalletAccount
	txs      []models.WalletTx
	payouts  map[string]models.Payout
	payments map[string]models.Payment
	outbox   []models.OutboxEvent

	failures  map[string]error
	lockOrder []string
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]models.User),
		going:    make(map[string][]string),
		expenses: make(map[string]models.Expense),
		shares:   make(map[string][]models.ParticipantShare),
		accounts: make(map[string]models.WalletAccount),
		payouts:  make(map[string]models.Payout),
		payments: make(map[string]models.Payment),
		failures: make(map[string]error),
	}
}

func (m *memStore) clone() *memStore {
	c := newMemStore()
	for k, v := range m.users {
		c.users[k] = v
	}
	for k, v := range m.going {
		c.going[k] = append([]string(nil), v...)
	}
	for k, v := range m.expenses {
		c.expenses[k] = v
	}
	for k, v := range m.shares {
		c.shares[k] = append([]models.ParticipantShare(nil), v...)
	}
	for k, v := range m.accounts {
		c.accounts[k] = v
	}
	c.txs = append([]models.WalletTx(nil), m.txs...)
	for k, v := range m.payouts {
		c.payouts[k] = v
	}
	for k, v := range m.payments {
		c.payments[k] = v
	}
	c.outbox = append([]models.OutboxEvent(nil), m.outbox...)
	c.failures = m.failures
	c.lockOrder = append([]string(nil), m.lockOrder...)
	return c
}

func (m *memStore) fail(op string) error {
	return m.failures[op]
}

func (m *memStore) addUser(id, name string) {
	m.users[id] = models.User{ID: id, Email: id + "@example.com", DisplayName: name}
}

func (m *memStore) balance(userID string) int64 {
	return m.accounts[userID].BalanceCents
}

// seedWallet credits a topup the way the ledger would.
func (m *memStore) seedWallet(userID string, cents int64) {
	bal := m.accounts[userID].BalanceCents + cents
	m.accounts[userID] = models.WalletAccount{UserID: userID, BalanceCents: bal, Currency: "EUR"}
	m.txs = append(m.txs, models.WalletTx{
		ID: fmt.Sprintf("seed-%s-%d", userID, len(m.txs)), UserID: userID, Type: models.WalletTxTopup,
		AmountCents: cents, AffectsBalance: true, BalanceAfterCents: bal,
	})
}

func (m *memStore) txsOf(userID string, typ models.WalletTxType) []models.WalletTx {
	var out []models.WalletTx
	for _, t := range m.txs {
		if t.UserID == userID && t.Type == typ {
			out = append(out, t)
		}
	}
	return out
}

func (m *memStore) eventsOf(eventType string) []models.OutboxEvent {
	var out []models.OutboxEvent
	for _, e := range m.outbox {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func notFound(op string) error {
	return fmt.Errorf("%s: %w", op, pgx.ErrNoRows)
}

type fakeDB struct {
	store    *memStore
	txs      int
	purposes []string
}

func (f *fakeDB) WithTx(ctx context.Context, fn func(database.Querier) error) error {
	f.txs++
	f.purposes = append(f.purposes, database.Purpose(ctx))
	snapshot := f.store.clone()
	if err := fn(nil); err != nil {
		*f.store = *snapshot
		return err
	}
	return nil
}

type fakeUserRepo struct{ s *memStore }

func (r *fakeUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	u, ok := r.s.users[id]
	if !ok {
		return nil, notFound("getting user by id")
	}
	return &u, nil
}

func (r *fakeUserRepo) List(ctx context.Context) ([]models.User, error) {
	users := make([]models.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		users = append(users, u)
	}
	return users, nil
}

func (r *fakeUserRepo) ListIDs(ctx context.Context) ([]string, error) {
	ids := make([]string, 0, len(r.s.users))
	for id := range r.s.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *fakeUserRepo) Upsert(ctx context.Context, user *models.User) error {
	r.s.users[user.ID] = *user
	return nil
}

func (r *fakeUserRepo) WithTx(tx database.Querier) repository.UserRepository { return r }

type fakeAttendanceRepo struct{ s *memStore }

func (r *fakeAttendanceRepo) GetGoingUserIDs(ctx context.Context, eventID string) ([]string, error) {
	return r.s.going[eventID], nil
}

type fakeExpenseRepo struct{ s *memStore }

func (r *fakeExpenseRepo) GetByID(ctx context.Context, id string) (*models.Expense, error) {
	e, ok := r.s.expenses[id]
	if !ok {
		return nil, notFound("getting expense")
	}
	return &e, nil
}

func (r *fakeExpenseRepo) GetByIDForUpdate(ctx context.Context, id string) (*models.Expense, error) {
	return r.GetByID(ctx, id)
}

func (r *fakeExpenseRepo) List(ctx context.Context, dr models.DateRange, includeVoid bool) ([]models.Expense, error) {
	out := make([]models.Expense, 0)
	for _, e := range r.s.expenses {
		if !includeVoid && e.Status == models.ExpenseStatusVoid {
			continue
		}
		if !dr.Contains(e.OccurredOn) {
			continue
		}
		e.Shares = append([]models.ParticipantShare{}, r.s.shares[e.ID]...)
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakeExpenseRepo) Create(ctx context.Context, expense *models.Expense) error {
	if err := r.s.fail("expense.Create"); err != nil {
		return err
	}
	expense.CreatedAt = time.Now()
	expense.UpdatedAt = expense.CreatedAt
	stored := *expense
	stored.Shares = nil
	r.s.expenses[expense.ID] = stored
	return nil
}

func (r *fakeExpenseRepo) CreateShare(ctx context.Context, share *models.ParticipantShare) error {
	if err := r.s.fail("expense.CreateShare"); err != nil {
		return err
	}
	r.s.shares[share.ExpenseID] = append(r.s.shares[share.ExpenseID], *share)
	return nil
}

func (r *fakeExpenseRepo) UpdateStatus(ctx context.Context, id string, status models.ExpenseStatus) error {
	e, ok := r.s.expenses[id]
	if !ok {
		return fmt.Errorf("updating expense status: expense not found")
	}
	e.Status = status
	r.s.expenses[id] = e
	return nil
}

func (r *fakeExpenseRepo) Delete(ctx context.Context, id string) error {
	e, ok := r.s.expenses[id]
	if !ok || e.Status != models.ExpenseStatusOpen {
		return fmt.Errorf("deleting expense: open expense not found")
	}
	delete(r.s.expenses, id)
	delete(r.s.shares, id)
	return nil
}

func (r *fakeExpenseRepo) GetSharesByExpenseIDs(ctx context.Context, expenseIDs []string) (map[string][]models.ParticipantShare, error) {
	out := make(map[string][]models.ParticipantShare)
	for _, id := range expenseIDs {
		if sh, ok := r.s.shares[id]; ok {
			out[id] = append([]models.ParticipantShare(nil), sh...)
		}
	}
	return out, nil
}

func (r *fakeExpenseRepo) WithTx(tx database.Querier) repository.ExpenseRepository { return r }

type fakeWalletRepo struct{ s *memStore }

func (r *fakeWalletRepo) GetAccount(ctx context.Context, userID string) (*models.WalletAccount, error) {
	a, ok := r.s.accounts[userID]
	if !ok {
		return nil, notFound("getting wallet account")
	}
	return &a, nil
}

func (r *fakeWalletRepo) LockAccount(ctx context.Context, userID, currency string) (*models.WalletAccount, error) {
	a, ok := r.s.accounts[userID]
	if !ok {
		a = models.WalletAccount{UserID: userID, Currency: currency}
		r.s.accounts[userID] = a
	}
	r.s.lockOrder = append(r.s.lockOrder, userID)
	return &a, nil
}

func (r *fakeWalletRepo) UpdateBalance(ctx context.Context, userID string, balanceCents int64) error {
	a := r.s.accounts[userID]
	a.BalanceCents = balanceCents
	r.s.accounts[userID] = a
	return nil
}

func (r *fakeWalletRepo) CreateTx(ctx context.Context, tx *models.WalletTx) error {
	if err := r.s.fail("wallet.CreateTx." + string(tx.Type)); err != nil {
		return err
	}
	tx.CreatedAt = time.Now()
	r.s.txs = append(r.s.txs, *tx)
	return nil
}

func (r *fakeWalletRepo) GetLastTx(ctx context.Context, userID string) (*models.WalletTx, error) {
	for i := len(r.s.txs) - 1; i >= 0; i-- {
		t := r.s.txs[i]
		if t.UserID == userID && t.AffectsBalance {
			return &t, nil
		}
	}
	return nil, nil
}

func (r *fakeWalletRepo) ListTx(ctx context.Context, userID string, limit int) ([]models.WalletTx, error) {
	out := make([]models.WalletTx, 0)
	for i := len(r.s.txs) - 1; i >= 0 && len(out) < limit; i-- {
		if r.s.txs[i].UserID == userID {
			out = append(out, r.s.txs[i])
		}
	}
	return out, nil
}

func (r *fakeWalletRepo) SumTx(ctx context.Context, userID string) (int64, error) {
	var sum int64
	for _, t := range r.s.txs {
		if t.UserID == userID {
			sum += t.SignedAmount()
		}
	}
	return sum, nil
}

func (r *fakeWalletRepo) GetTopupByProviderRef(ctx context.Context, provider, providerRef string) (*models.WalletTx, error) {
	for _, t := range r.s.txs {
		if t.Type == models.WalletTxTopup && t.Provider != nil && *t.Provider == provider &&
			t.ProviderRef != nil && *t.ProviderRef == providerRef {
			return &t, nil
		}
	}
	return nil, nil
}

func (r *fakeWalletRepo) GetBalances(ctx context.Context) (map[string]int64, error) {
	out := make(map[string]int64, len(r.s.accounts))
	for id, a := range r.s.accounts {
		out[id] = a.BalanceCents
	}
	return out, nil
}

func (r *fakeWalletRepo) WithTx(tx database.Querier) repository.WalletRepository { return r }

type fakePayoutRepo struct{ s *memStore }

func (r *fakePayoutRepo) Create(ctx context.Context, p *models.Payout) error {
	if err := r.s.fail("payout.Create"); err != nil {
		return err
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	r.s.payouts[p.ID] = *p
	return nil
}

func (r *fakePayoutRepo) GetByID(ctx context.Context, id string) (*models.Payout, error) {
	p, ok := r.s.payouts[id]
	if !ok {
		return nil, notFound("getting payout by id")
	}
	return &p, nil
}

func (r *fakePayoutRepo) GetByIDForUpdate(ctx context.Context, id string) (*models.Payout, error) {
	return r.GetByID(ctx, id)
}

func (r *fakePayoutRepo) GetByPayPalItemIDForUpdate(ctx context.Context, itemID string) (*models.Payout, error) {
	for _, p := range r.s.payouts {
		if p.PayPalItemID != nil && *p.PayPalItemID == itemID {
			return &p, nil
		}
	}
	return nil, notFound("locking payout by paypal item")
}

func (r *fakePayoutRepo) Update(ctx context.Context, p *models.Payout) error {
	if err := r.s.fail("payout.Update"); err != nil {
		return err
	}
	p.UpdatedAt = time.Now()
	r.s.payouts[p.ID] = *p
	return nil
}

func (r *fakePayoutRepo) ListForUser(ctx context.Context, userID string) ([]models.Payout, error) {
	out := make([]models.Payout, 0)
	for _, p := range r.s.payouts {
		if p.FromUserID == userID || p.RecipientID() == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakePayoutRepo) ListBetweenUsers(ctx context.Context) ([]models.Payout, error) {
	out := make([]models.Payout, 0)
	for _, p := range r.s.payouts {
		switch p.Status {
		case models.PayoutStatusProcessing, models.PayoutStatusUnclaimed, models.PayoutStatusSuccess:
			if p.ToUserID != nil {
				out = append(out, p)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *fakePayoutRepo) WithTx(tx database.Querier) repository.PayoutRepository { return r }

type fakePaymentRepo struct{ s *memStore }

func (r *fakePaymentRepo) Create(ctx context.Context, p *models.Payment) error {
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	r.s.payments[p.ID] = *p
	return nil
}

func (r *fakePaymentRepo) GetByProviderOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	for _, p := range r.s.payments {
		if p.ProviderOrderID == orderID {
			return &p, nil
		}
	}
	return nil, notFound("getting payment by order id")
}

func (r *fakePaymentRepo) GetByProviderOrderIDForUpdate(ctx context.Context, orderID string) (*models.Payment, error) {
	return r.GetByProviderOrderID(ctx, orderID)
}

func (r *fakePaymentRepo) MarkSucceeded(ctx context.Context, id string, amountCents int64, walletTxID string, meta json.RawMessage) error {
	if err := r.s.fail("payment.MarkSucceeded"); err != nil {
		return err
	}
	p, ok := r.s.payments[id]
	if !ok || p.Status == models.PaymentStatusSucceeded {
		return fmt.Errorf("marking payment succeeded: payment %s already settled", id)
	}
	p.Status = models.PaymentStatusSucceeded
	p.AmountCents = amountCents
	p.WalletTxID = &walletTxID
	if len(meta) > 0 {
		p.ProviderMeta = meta
	}
	r.s.payments[id] = p
	return nil
}

func (r *fakePaymentRepo) WithTx(tx database.Querier) repository.PaymentRepository { return r }

type fakeOutboxRepo struct{ s *memStore }

func (r *fakeOutboxRepo) Create(ctx context.Context, e *models.OutboxEvent) error {
	if err := r.s.fail("outbox.Create"); err != nil {
		return err
	}
	e.CreatedAt = time.Now()
	r.s.outbox = append(r.s.outbox, *e)
	return nil
}

func (r *fakeOutboxRepo) Poll(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	out := make([]models.OutboxEvent, 0)
	for _, e := range r.s.outbox {
		if e.ProcessedAt == nil && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeOutboxRepo) MarkProcessed(ctx context.Context, id string) error {
	now := time.Now()
	for i := range r.s.outbox {
		if r.s.outbox[i].ID == id {
			r.s.outbox[i].ProcessedAt = &now
		}
	}
	return nil
}

func (r *fakeOutboxRepo) WithTx(tx database.Querier) repository.OutboxRepository { return r }

type fakeCache struct {
	values      map[string]int64
	invalidated []string
	getErr      error
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[string]int64)}
}

func (c *fakeCache) Get(ctx context.Context, userID string) (int64, bool, error) {
	if c.getErr != nil {
		return 0, false, c.getErr
	}
	v, ok := c.values[userID]
	return v, ok, nil
}

func (c *fakeCache) Set(ctx context.Context, userID string, cents int64) error {
	c.values[userID] = cents
	return nil
}

func (c *fakeCache) Invalidate(ctx context.Context, userIDs ...string) error {
	for _, id := range userIDs {
		delete(c.values, id)
	}
	c.invalidated = append(c.invalidated, userIDs...)
	return nil
}

type fakeGateway struct {
	order      *models.ProviderOrder
	orderErr   error
	capture    *models.ProviderCapture
	captureErr error
	captures   int
}

func (g *fakeGateway) CreateOrder(ctx context.Context, payerID string, amountCents int64, currency string) (*models.ProviderOrder, error) {
	if g.orderErr != nil {
		return nil, g.orderErr
	}
	return g.order, nil
}

func (g *fakeGateway) CaptureOrder(ctx context.Context, orderID string) (*models.ProviderCapture, error) {
	g.captures++
	if g.captureErr != nil {
		return nil, g.captureErr
	}
	c := *g.capture
	c.OrderID = orderID
	return &c, nil
}

type fakeSender struct {
	err  error
	sent []string
}

func (f *fakeSender) CreatePayout(ctx context.Context, p *models.Payout) (*models.ProviderPayout, error) {
	f.sent = append(f.sent, p.ID)
	if f.err != nil {
		return nil, f.err
	}
	return &models.ProviderPayout{BatchID: "BATCH-" + p.ID, Status: "PENDING"}, nil
}

type fakeVerifier struct {
	ok  bool
	err error
}

func (v *fakeVerifier) VerifyWebhook(ctx context.Context, headers http.Header, body []byte) (bool, error) {
	return v.ok, v.err
}

type fakeGenerator struct {
	prompt string
	text   string
	err    error
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompt = prompt
	return g.text, g.err
}

// testEnv wires every service to one memStore.
type testEnv struct {
	store    *memStore
	db       *fakeDB
	cache    *fakeCache
	gateway  *fakeGateway
	sender   *fakeSender
	verifier *fakeVerifier

	users       *fakeUserRepo
	expenseRepo *fakeExpenseRepo
	walletRepo  *fakeWalletRepo
	payoutRepo  *fakePayoutRepo
	paymentRepo *fakePaymentRepo
	outboxRepo  *fakeOutboxRepo

	wallet         WalletService
	expenses       ExpenseService
	reconciliation ReconciliationService
	payouts        PayoutService
	payments       PaymentService
	webhooks       WebhookService
}

func newTestEnv() *testEnv {
	s := newMemStore()
	env := &testEnv{
		store:       s,
		db:          &fakeDB{store: s},
		cache:       newFakeCache(),
		gateway:     &fakeGateway{capture: &models.ProviderCapture{Status: "COMPLETED"}},
		sender:      &fakeSender{},
		verifier:    &fakeVerifier{ok: true},
		users:       &fakeUserRepo{s: s},
		expenseRepo: &fakeExpenseRepo{s: s},
		walletRepo:  &fakeWalletRepo{s: s},
		payoutRepo:  &fakePayoutRepo{s: s},
		paymentRepo: &fakePaymentRepo{s: s},
		outboxRepo:  &fakeOutboxRepo{s: s},
	}
	env.wallet = NewWalletService(env.walletRepo, env.outboxRepo, env.cache, env.db, "EUR")
	env.expenses = NewExpenseService(env.expenseRepo, env.users, &fakeAttendanceRepo{s: s}, env.outboxRepo, env.db, "EUR")
	env.reconciliation = NewReconciliationService(env.users, env.expenseRepo, env.payoutRepo, env.walletRepo)
	env.payouts = NewPayoutService(env.payoutRepo, env.users, env.walletRepo, env.outboxRepo, env.sender, env.cache, env.db, "EUR")
	env.payments = NewPaymentService(env.paymentRepo, env.walletRepo, env.outboxRepo, env.gateway, env.cache, env.db, "EUR")
	env.webhooks = NewWebhookService(env.verifier, env.payments, env.payouts)
	return env
}
