package models

import (
	"encoding/json"
	"time"
)

type User struct {
	ID          string    `json:"id" db:"id"`
	Email       string    `json:"email" db:"email"`
	DisplayName string    `json:"display_name" db:"display_name"`
	PayPalEmail *string   `json:"paypal_email,omitempty" db:"paypal_email"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type ExpenseStatus string

const (
	ExpenseStatusOpen   ExpenseStatus = "open"
	ExpenseStatusLocked ExpenseStatus = "locked"
	ExpenseStatusVoid   ExpenseStatus = "void"
)

type Expense struct {
	ID          string             `json:"id" db:"id"`
	EventID     *string            `json:"event_id,omitempty" db:"event_id"`
	PayerID     string             `json:"payer_id" db:"payer_id"`
	Amount      int64              `json:"amount" db:"amount"`
	Currency    string             `json:"currency" db:"currency"`
	Description string             `json:"description" db:"description"`
	OccurredOn  time.Time          `json:"occurred_on" db:"occurred_on"`
	Status      ExpenseStatus      `json:"status" db:"status"`
	Notes       *string            `json:"notes,omitempty" db:"notes"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" db:"updated_at"`
	Shares      []ParticipantShare `json:"participant_shares"`
}

type ParticipantShare struct {
	ExpenseID   string `json:"expense_id" db:"expense_id"`
	UserID      string `json:"user_id" db:"user_id"`
	ShareAmount int64  `json:"share_amount" db:"share_amount"`
}

// NewExpense is the input to expense creation. Exactly one share source is
// used: Shares, then Participants, then the "going" attendees of EventID.
type NewExpense struct {
	PayerID      string
	Amount       int64
	Currency     string
	Description  string
	OccurredOn   time.Time
	Notes        *string
	EventID      *string
	Shares       []ParticipantShare
	Participants []string
	IncludePayer bool
}

// DateRange bounds occurred_on, inclusive on both ends. Nil means unbounded.
type DateRange struct {
	From *time.Time
	To   *time.Time
}

func (r DateRange) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && t.After(*r.To) {
		return false
	}
	return true
}

type NetBalance struct {
	UserID string `json:"user_id"`
	Paid   int64  `json:"paid"`
	Owed   int64  `json:"owed"`
	Net    int64  `json:"net"`
}

type SettlementEdge struct {
	FromUserID string `json:"from_user_id"`
	ToUserID   string `json:"to_user_id"`
	Amount     int64  `json:"amount"`
}

// ReceivableRow is one settlement edge annotated with what payouts and the
// debtor's wallet already cover.
type ReceivableRow struct {
	FromUserID   string `json:"from_user_id"`
	ToUserID     string `json:"to_user_id"`
	Gross        int64  `json:"gross"`
	Paid         int64  `json:"paid"`
	InFlight     int64  `json:"in_flight"`
	WalletOffset int64  `json:"wallet_offset"`
	Residual     int64  `json:"residual"`
}

// ReconciledNet is a user's position derived from settlement edges: the gross
// net, what payouts already cover, the wallet used as offset and what remains.
type ReconciledNet struct {
	UserID       string `json:"user_id"`
	Net          int64  `json:"net"`
	Settled      int64  `json:"settled"`
	WalletOffset int64  `json:"wallet_offset"`
	ResidualNet  int64  `json:"residual_net"`
}

type Reconciliation struct {
	Nets  []ReconciledNet `json:"nets"`
	Edges []ReceivableRow `json:"edges"`
}

type WalletTxType string

const (
	WalletTxTopup      WalletTxType = "topup"
	WalletTxWithdraw   WalletTxType = "withdraw"
	WalletTxPayoutOut  WalletTxType = "payout_out"
	WalletTxPayoutIn   WalletTxType = "payout_in"
	WalletTxAdjustment WalletTxType = "adjustment"
)

type WalletAccount struct {
	UserID       string    `json:"user_id" db:"user_id"`
	BalanceCents int64     `json:"balance_cents" db:"balance_cents"`
	Currency     string    `json:"currency" db:"currency"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

type WalletTx struct {
	ID                string       `json:"id" db:"id"`
	UserID            string       `json:"user_id" db:"user_id"`
	Type              WalletTxType `json:"type" db:"type"`
	AmountCents       int64        `json:"amount_cents" db:"amount_cents"`
	AffectsBalance    bool         `json:"affects_balance" db:"affects_balance"`
	BalanceAfterCents int64        `json:"balance_after_cents" db:"balance_after_cents"`
	Provider          *string      `json:"provider,omitempty" db:"provider"`
	ProviderRef       *string      `json:"provider_ref,omitempty" db:"provider_ref"`
	PaymentID         *string      `json:"payment_id,omitempty" db:"payment_id"`
	PayoutID          *string      `json:"payout_id,omitempty" db:"payout_id"`
	RelatedUserID     *string      `json:"related_user_id,omitempty" db:"related_user_id"`
	Note              *string      `json:"note,omitempty" db:"note"`
	CreatedAt         time.Time    `json:"created_at" db:"created_at"`
}

// SignedAmount is the change this row applies to the balance.
// Adjustments carry their own sign.
func (t WalletTx) SignedAmount() int64 {
	if !t.AffectsBalance {
		return 0
	}
	switch t.Type {
	case WalletTxWithdraw, WalletTxPayoutOut:
		return -t.AmountCents
	default:
		return t.AmountCents
	}
}

type WalletSummary struct {
	Account WalletAccount `json:"account"`
	Cached  bool          `json:"cached"`
}

type WalletAudit struct {
	UserID       string `json:"user_id"`
	BalanceCents int64  `json:"balance_cents"`
	LedgerCents  int64  `json:"ledger_cents"`
	Consistent   bool   `json:"consistent"`
}

type PayoutStatus string

const (
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusSuccess    PayoutStatus = "success"
	PayoutStatusUnclaimed  PayoutStatus = "unclaimed"
	PayoutStatusReturned   PayoutStatus = "returned"
	PayoutStatusFailed     PayoutStatus = "failed"
)

type PayoutMethod string

const (
	// PayoutMethodWallet moves funds between two internal wallets.
	PayoutMethodWallet PayoutMethod = "wallet"
	// PayoutMethodPayPal sends wallet funds to a PayPal account through the provider.
	PayoutMethodPayPal PayoutMethod = "paypal"
	// PayoutMethodManual is paid outside the system and confirmed by the recipient.
	PayoutMethodManual PayoutMethod = "manual"
	// PayoutMethodCash is recorded as already settled.
	PayoutMethodCash PayoutMethod = "cash"
)

// DrawsFromWallet reports whether the sender's wallet funds the payout.
func (m PayoutMethod) DrawsFromWallet() bool {
	return m == PayoutMethodWallet || m == PayoutMethodPayPal
}

type Payout struct {
	ID            string       `json:"id" db:"id"`
	FromUserID    string       `json:"from_user_id" db:"from_user_id"`
	ToUserID      *string      `json:"to_user_id,omitempty" db:"to_user_id"`
	ToPayPalEmail *string      `json:"to_paypal_email,omitempty" db:"to_paypal_email"`
	AmountCents   int64        `json:"amount_cents" db:"amount_cents"`
	Currency      string       `json:"currency" db:"currency"`
	Method        PayoutMethod `json:"method" db:"method"`
	Status        PayoutStatus `json:"status" db:"status"`
	Note          *string      `json:"note,omitempty" db:"note"`
	PayPalBatchID *string      `json:"paypal_batch_id,omitempty" db:"paypal_batch_id"`
	PayPalItemID  *string      `json:"paypal_item_id,omitempty" db:"paypal_item_id"`
	PayPalTxnID   *string      `json:"paypal_txn_id,omitempty" db:"paypal_txn_id"`
	ErrorCode     *string      `json:"error_code,omitempty" db:"error_code"`
	ErrorMessage  *string      `json:"error_message,omitempty" db:"error_message"`
	TxOutID       *string      `json:"tx_out_id,omitempty" db:"tx_out_id"`
	TxInID        *string      `json:"tx_in_id,omitempty" db:"tx_in_id"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at" db:"updated_at"`
}

func (p *Payout) RecipientID() string {
	if p.ToUserID == nil {
		return ""
	}
	return *p.ToUserID
}

type PayoutRequest struct {
	FromUserID    string
	ToUserID      string
	ToPayPalEmail string
	AmountCents   int64
	Currency      string
	Method        PayoutMethod
	Note          string
}

// ProviderPayoutUpdate is a payout status reported by the payment provider.
type ProviderPayoutUpdate struct {
	PayoutID     string
	ItemID       string
	Status       PayoutStatus
	TxnID        string
	ErrorCode    string
	ErrorMessage string
}

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
)

type Payment struct {
	ID              string          `json:"id" db:"id"`
	UserID          string          `json:"user_id" db:"user_id"`
	Provider        string          `json:"provider" db:"provider"`
	Kind            string          `json:"kind" db:"kind"`
	AmountCents     int64           `json:"amount_cents" db:"amount_cents"`
	Currency        string          `json:"currency" db:"currency"`
	Status          PaymentStatus   `json:"status" db:"status"`
	ProviderOrderID string          `json:"provider_order_id" db:"provider_order_id"`
	ProviderMeta    json.RawMessage `json:"provider_meta,omitempty" db:"provider_meta"`
	WalletTxID      *string         `json:"wallet_tx_id,omitempty" db:"wallet_tx_id"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
}

type OrderResult struct {
	OrderID     string `json:"order_id"`
	ApprovalURL string `json:"approval_url"`
	PaymentID   string `json:"payment_id"`
}

type CaptureResult struct {
	OrderID         string        `json:"order_id"`
	PaymentID       string        `json:"payment_id"`
	Status          PaymentStatus `json:"status"`
	ProviderStatus  string        `json:"provider_status,omitempty"`
	AmountCents     int64         `json:"amount_cents"`
	Currency        string        `json:"currency"`
	WalletTxID      *string       `json:"wallet_tx_id,omitempty"`
	AlreadyCaptured bool          `json:"already_captured"`
}

// ProviderOrder is the provider's answer to an order creation request.
type ProviderOrder struct {
	OrderID     string
	ApprovalURL string
	Raw         json.RawMessage
}

type ProviderCapture struct {
	OrderID     string
	Status      string
	AmountCents int64
	Currency    string
	CaptureID   string
	Raw         json.RawMessage
}

type ProviderPayout struct {
	BatchID string
	ItemID  string
	Status  string
}

type OutboxEvent struct {
	ID            string          `json:"id" db:"id"`
	AggregateType string          `json:"aggregate_type" db:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id" db:"aggregate_id"`
	EventType     string          `json:"event_type" db:"event_type"`
	Payload       json.RawMessage `json:"payload" db:"payload"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty" db:"processed_at"`
}

type DebtExplanation struct {
	UserID         string `json:"user_id"`
	CounterpartyID string `json:"counterparty_id"`
	Residual       int64  `json:"residual"`
	Explanation    string `json:"explanation"`
}
