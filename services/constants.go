package services

const (
	WalletTxHistoryLimit = 50
	ProviderPayPal       = "paypal"
	PaymentKindTopup     = "wallet_topup"
	ProviderCompleted    = "COMPLETED"
)

const (
	MinDescriptionLength = 1
	MaxDescriptionLength = 200
	MaxNoteLength        = 500
)

const (
	GeneralRateLimit  = 500
	PaymentsRateLimit = 30
	AIRateLimit       = 8
)

const (
	AggregateWallet  = "wallet"
	AggregatePayout  = "payout"
	AggregatePayment = "payment"
	AggregateExpense = "expense"
)

const (
	EventWalletTxApplied  = "wallet.tx_applied"
	EventPayoutRequested  = "payout.requested"
	EventPayoutStatus     = "payout.status_changed"
	EventPaymentSucceeded = "payment.succeeded"
	EventExpenseCreated   = "expense.created"
	EventExpenseStatus    = "expense.status_changed"
	EventExpenseDeleted   = "expense.deleted"
)
