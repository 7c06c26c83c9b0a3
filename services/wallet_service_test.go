package services

import (
	"context"
	"errors"
	"testing"

	apperrors "mealshare-backend/errors"
	"mealshare-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithdraw(t *testing.T) {
	tests := []struct {
		name        string
		seed        int64
		amount      int64
		wantCode    apperrors.ErrorCode
		wantBalance int64
	}{
		{name: "within balance", seed: 1000, amount: 400, wantBalance: 600},
		{name: "entire balance", seed: 1000, amount: 1000, wantBalance: 0},
		{name: "more than balance", seed: 1000, amount: 1001, wantCode: apperrors.CodeInsufficientFunds, wantBalance: 1000},
		{name: "empty wallet", amount: 1, wantCode: apperrors.CodeInsufficientFunds},
		{name: "zero amount", seed: 1000, amount: 0, wantCode: apperrors.CodeInvalidAmount, wantBalance: 1000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			env.store.addUser("alice", "Alice")
			if tt.seed > 0 {
				env.store.seedWallet("alice", tt.seed)
			}
			txsBefore := len(env.store.txs)

			tx, err := env.wallet.Withdraw(context.Background(), "alice", tt.amount, "rent")
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.True(t, apperrors.HasCode(err, tt.wantCode), "got %v", err)
				assert.Len(t, env.store.txs, txsBefore)
				assert.Empty(t, env.store.eventsOf(EventWalletTxApplied))
			} else {
				require.NoError(t, err)
				assert.Equal(t, models.WalletTxWithdraw, tx.Type)
				assert.Equal(t, tt.wantBalance, tx.BalanceAfterCents)
				assert.Len(t, env.store.eventsOf(EventWalletTxApplied), 1)
				assert.Contains(t, env.cache.invalidated, "alice")
			}
			assert.Equal(t, tt.wantBalance, env.store.balance("alice"))
		})
	}
}

func TestWalletMutationHaltsOnLedgerMismatch(t *testing.T) {
	env := newTestEnv()
	env.store.addUser("alice", "Alice")
	env.store.seedWallet("alice", 1000)

	// balance drifted away from the ledger
	acct := env.store.accounts["alice"]
	acct.BalanceCents = 5000
	env.store.accounts["alice"] = acct

	_, err := env.wallet.Withdraw(context.Background(), "alice", 100, "")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConsistencyViolation))
	assert.Equal(t, int64(5000), env.store.balance("alice"), "never repaired")
	assert.Len(t, env.store.txs, 1)
}

func TestWalletAudit(t *testing.T) {
	env := newTestEnv()
	env.store.addUser("alice", "Alice")
	env.store.seedWallet("alice", 700)
	env.store.seedWallet("alice", 300)

	audit, err := env.wallet.Audit(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, audit.Consistent)
	assert.Equal(t, int64(1000), audit.LedgerCents)

	acct := env.store.accounts["alice"]
	acct.BalanceCents = 900
	env.store.accounts["alice"] = acct

	audit, err = env.wallet.Audit(context.Background(), "alice")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConsistencyViolation))
	assert.False(t, audit.Consistent)
	assert.Equal(t, int64(900), audit.BalanceCents)
}

func TestWalletGetUsesCache(t *testing.T) {
	env := newTestEnv()
	env.store.addUser("alice", "Alice")
	env.store.seedWallet("alice", 250)

	summary, err := env.wallet.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, summary.Cached)
	assert.Equal(t, int64(250), summary.Account.BalanceCents)

	summary, err = env.wallet.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.True(t, summary.Cached)
	assert.Equal(t, int64(250), summary.Account.BalanceCents)

	_, err = env.wallet.Withdraw(context.Background(), "alice", 50, "")
	require.NoError(t, err)

	summary, err = env.wallet.Get(context.Background(), "alice")
	require.NoError(t, err)
	assert.False(t, summary.Cached)
	assert.Equal(t, int64(200), summary.Account.BalanceCents)
}

func TestWalletGetFallsBackWhenCacheFails(t *testing.T) {
	env := newTestEnv()
	env.cache.getErr = errors.New("connection refused")

	summary, err := env.wallet.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, int64(0), summary.Account.BalanceCents)
	assert.Equal(t, "EUR", summary.Account.Currency)
}

func TestWalletTransactionsNewestFirst(t *testing.T) {
	env := newTestEnv()
	env.store.addUser("alice", "Alice")
	env.store.seedWallet("alice", 100)
	_, err := env.wallet.Withdraw(context.Background(), "alice", 30, "")
	require.NoError(t, err)

	txs, err := env.wallet.Transactions(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, models.WalletTxWithdraw, txs[0].Type)
	assert.Equal(t, models.WalletTxTopup, txs[1].Type)
}
