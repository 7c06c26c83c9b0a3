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

func payoutEnv() *testEnv {
	env := newTestEnv()
	env.store.addUser("alice", "Alice")
	env.store.addUser("bob", "Bob")
	env.store.addUser("carol", "Carol")
	email := "alice@paypal.example"
	u := env.store.users["alice"]
	u.PayPalEmail = &email
	env.store.users["alice"] = u
	return env
}

func TestWalletTransfer(t *testing.T) {
	env := payoutEnv()
	env.store.seedWallet("bob", 1000)

	p, err := env.payouts.RequestPayout(context.Background(), models.PayoutRequest{
		FromUserID: "bob", ToUserID: "alice", AmountCents: 400, Method: models.PayoutMethodWallet,
	})
	require.NoError(t, err)

	assert.Equal(t, models.PayoutStatusSuccess, p.Status)
	assert.Equal(t, int64(600), env.store.balance("bob"))
	assert.Equal(t, int64(400), env.store.balance("alice"))
	require.Len(t, env.store.txsOf("bob", models.WalletTxPayoutOut), 1)
	require.Len(t, env.store.txsOf("alice", models.WalletTxPayoutIn), 1)
	assert.Equal(t, *p.TxOutID, env.store.txsOf("bob", models.WalletTxPayoutOut)[0].ID)
	assert.Equal(t, *p.TxInID, env.store.txsOf("alice", models.WalletTxPayoutIn)[0].ID)
	assert.Equal(t, []string{"alice", "bob"}, env.store.lockOrder[:2], "accounts locked in id order")
	assert.Equal(t, 1, env.db.txs)
}

func TestWalletTransferRejectedLeavesNoTrace(t *testing.T) {
	tests := []struct {
		name     string
		seed     int64
		failOp   string
		wantCode apperrors.ErrorCode
	}{
		{name: "insufficient funds", seed: 300, wantCode: apperrors.CodeInsufficientFunds},
		{name: "payout_in write fails", seed: 1000, failOp: "wallet.CreateTx.payout_in", wantCode: apperrors.CodeDatabaseError},
		{name: "outbox write fails", seed: 1000, failOp: "outbox.Create", wantCode: apperrors.CodeDatabaseError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := payoutEnv()
			env.store.seedWallet("bob", tt.seed)
			if tt.failOp != "" {
				env.store.failures[tt.failOp] = errors.New("disk full")
			}

			_, err := env.payouts.RequestPayout(context.Background(), models.PayoutRequest{
				FromUserID: "bob", ToUserID: "alice", AmountCents: 400, Method: models.PayoutMethodWallet,
			})
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, tt.wantCode), "got %v", err)

			assert.Equal(t, tt.seed, env.store.balance("bob"))
			assert.Equal(t, int64(0), env.store.balance("alice"))
			assert.Len(t, env.store.txs, 1)
			assert.Empty(t, env.store.payouts)
			assert.Empty(t, env.store.outbox)
		})
	}
}

func TestRequestPayoutValidation(t *testing.T) {
	tests := []struct {
		name     string
		req      models.PayoutRequest
		wantCode apperrors.ErrorCode
	}{
		{
			name:     "self transfer",
			req:      models.PayoutRequest{FromUserID: "bob", ToUserID: "bob", AmountCents: 100, Method: models.PayoutMethodManual},
			wantCode: apperrors.CodeSelfTransfer,
		},
		{
			name:     "non-positive amount",
			req:      models.PayoutRequest{FromUserID: "bob", ToUserID: "alice", AmountCents: 0, Method: models.PayoutMethodManual},
			wantCode: apperrors.CodeInvalidAmount,
		},
		{
			name:     "unknown method",
			req:      models.PayoutRequest{FromUserID: "bob", ToUserID: "alice", AmountCents: 100, Method: "bank"},
			wantCode: apperrors.CodeInvalidFieldFormat,
		},
		{
			name:     "unknown recipient",
			req:      models.PayoutRequest{FromUserID: "bob", ToUserID: "zed", AmountCents: 100, Method: models.PayoutMethodManual},
			wantCode: apperrors.CodeUserNotFound,
		},
		{
			name:     "paypal recipient without email",
			req:      models.PayoutRequest{FromUserID: "bob", ToUserID: "carol", AmountCents: 100, Method: models.PayoutMethodPayPal},
			wantCode: apperrors.CodeInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := payoutEnv()
			_, err := env.payouts.RequestPayout(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, apperrors.HasCode(err, tt.wantCode), "got %v", err)
			assert.Empty(t, env.store.payouts)
		})
	}
}

func TestPayPalPayout(t *testing.T) {
	env := payoutEnv()
	env.store.seedWallet("bob", 1000)

	p, err := env.payouts.RequestPayout(context.Background(), models.PayoutRequest{
		FromUserID: "bob", ToUserID: "alice", AmountCents: 400, Method: models.PayoutMethodPayPal, Note: "dinner",
	})
	require.NoError(t, err)

	assert.Equal(t, models.PayoutStatusProcessing, p.Status)
	require.NotNil(t, p.ToPayPalEmail)
	assert.Equal(t, "alice@paypal.example", *p.ToPayPalEmail)
	require.NotNil(t, p.PayPalBatchID)
	assert.Equal(t, "BATCH-"+p.ID, *p.PayPalBatchID)
	assert.Equal(t, []string{p.ID}, env.sender.sent)
	assert.Equal(t, int64(600), env.store.balance("bob"), "debited when requested")
	assert.Equal(t, int64(0), env.store.balance("alice"), "funds leave the system")
}

func TestPayPalPayoutSubmissionFailureReverses(t *testing.T) {
	env := payoutEnv()
	env.store.seedWallet("bob", 1000)
	env.sender.err = errors.New("connection reset")

	_, err := env.payouts.RequestPayout(context.Background(), models.PayoutRequest{
		FromUserID: "bob", ToUserID: "alice", AmountCents: 400, Method: models.PayoutMethodPayPal,
	})
	require.Error(t, err)
	appErr, ok := apperrors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.CodeProviderError, appErr.Code)
	assert.True(t, appErr.Retryable)

	require.Len(t, env.store.payouts, 1)
	for _, p := range env.store.payouts {
		assert.Equal(t, models.PayoutStatusFailed, p.Status)
		require.NotNil(t, p.ErrorCode)
		assert.Equal(t, "SUBMISSION_FAILED", *p.ErrorCode)
	}
	assert.Equal(t, int64(1000), env.store.balance("bob"))
	require.Len(t, env.store.txsOf("bob", models.WalletTxPayoutOut), 1, "original debit kept")
	require.Len(t, env.store.txsOf("bob", models.WalletTxAdjustment), 1)
	assert.Equal(t, int64(400), env.store.txsOf("bob", models.WalletTxAdjustment)[0].AmountCents)
}

func TestPayPalPayoutSubmissionFailureRestoresBalance(t *testing.T) {
	tests := []struct {
		name   string
		seed   int64
		amount int64
	}{
		{name: "part of the wallet", seed: 1000, amount: 400},
		{name: "whole wallet", seed: 1000, amount: 1000},
		{name: "single cent", seed: 1, amount: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := payoutEnv()
			env.store.seedWallet("bob", tt.seed)
			env.sender.err = errors.New("dial tcp: i/o timeout")

			_, err := env.payouts.RequestPayout(context.Background(), models.PayoutRequest{
				FromUserID: "bob", ToUserID: "alice", AmountCents: tt.amount, Method: models.PayoutMethodPayPal,
			})
			require.True(t, apperrors.HasCode(err, apperrors.CodeProviderError), "got %v", err)
			assert.Equal(t, []string{"payout.paypal_reserve", "payout.provider_status"}, env.db.purposes)

			assert.Equal(t, tt.seed, env.store.balance("bob"))
			audit, err := env.wallet.Audit(context.Background(), "bob")
			require.NoError(t, err)
			assert.True(t, audit.Consistent)
			assert.Equal(t, tt.seed, audit.LedgerCents)

			// the reserved funds are spendable again
			_, err = env.wallet.Withdraw(context.Background(), "bob", tt.seed, "")
			require.NoError(t, err)
			assert.Equal(t, int64(0), env.store.balance("bob"))
		})
	}
}

func TestProviderStatusTransitions(t *testing.T) {
	tests := []struct {
		name        string
		steps       []models.PayoutStatus
		wantStatus  models.PayoutStatus
		wantBalance int64
		wantAdjusts int
		wantErrCode apperrors.ErrorCode
	}{
		{name: "delivered", steps: []models.PayoutStatus{"success"}, wantStatus: "success", wantBalance: 600},
		{name: "failed is reversed", steps: []models.PayoutStatus{"failed"}, wantStatus: "failed", wantBalance: 1000, wantAdjusts: 1},
		{name: "unclaimed then claimed", steps: []models.PayoutStatus{"unclaimed", "success"}, wantStatus: "success", wantBalance: 600},
		{name: "unclaimed then returned", steps: []models.PayoutStatus{"unclaimed", "returned"}, wantStatus: "returned", wantBalance: 1000, wantAdjusts: 1},
		{name: "repeated failure reverses once", steps: []models.PayoutStatus{"failed", "failed"}, wantStatus: "failed", wantBalance: 1000, wantAdjusts: 1},
		{name: "success cannot fail", steps: []models.PayoutStatus{"success", "failed"}, wantStatus: "success", wantBalance: 600, wantErrCode: apperrors.CodeInvalidTransition},
		{name: "return before unclaimed", steps: []models.PayoutStatus{"returned"}, wantStatus: "processing", wantBalance: 600, wantErrCode: apperrors.CodeTransitionOutOfOrder},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := payoutEnv()
			env.store.seedWallet("bob", 1000)
			p, err := env.payouts.RequestPayout(context.Background(), models.PayoutRequest{
				FromUserID: "bob", ToUserID: "alice", AmountCents: 400, Method: models.PayoutMethodPayPal,
			})
			require.NoError(t, err)

			var lastErr error
			for _, st := range tt.steps {
				_, lastErr = env.payouts.ApplyProviderStatus(context.Background(), models.ProviderPayoutUpdate{
					PayoutID: p.ID, ItemID: "ITEM-1", Status: st,
				})
			}
			if tt.wantErrCode != "" {
				assert.True(t, apperrors.HasCode(lastErr, tt.wantErrCode), "got %v", lastErr)
			} else {
				require.NoError(t, lastErr)
			}

			assert.Equal(t, tt.wantStatus, env.store.payouts[p.ID].Status)
			assert.Equal(t, tt.wantBalance, env.store.balance("bob"))
			assert.Len(t, env.store.txsOf("bob", models.WalletTxAdjustment), tt.wantAdjusts)
		})
	}
}

func TestApplyProviderStatusByItemID(t *testing.T) {
	env := payoutEnv()
	env.store.seedWallet("bob", 1000)
	p, err := env.payouts.RequestPayout(context.Background(), models.PayoutRequest{
		FromUserID: "bob", ToUserID: "alice", AmountCents: 400, Method: models.PayoutMethodPayPal,
	})
	require.NoError(t, err)

	_, err = env.payouts.ApplyProviderStatus(context.Background(), models.ProviderPayoutUpdate{
		PayoutID: p.ID, ItemID: "ITEM-9", Status: models.PayoutStatusUnclaimed,
	})
	require.NoError(t, err)

	got, err := env.payouts.ApplyProviderStatus(context.Background(), models.ProviderPayoutUpdate{
		ItemID: "ITEM-9", Status: models.PayoutStatusSuccess, TxnID: "TXN-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusSuccess, got.Status)
	require.NotNil(t, got.PayPalTxnID)
	assert.Equal(t, "TXN-1", *got.PayPalTxnID)
}

func TestConfirmPayout(t *testing.T) {
	env := payoutEnv()
	p, err := env.payouts.RequestPayout(context.Background(), models.PayoutRequest{
		FromUserID: "bob", ToUserID: "alice", AmountCents: 400, Method: models.PayoutMethodManual,
	})
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusProcessing, p.Status)

	_, err = env.payouts.ConfirmPayout(context.Background(), p.ID, "bob")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInsufficientPermissions), "sender cannot confirm")

	got, err := env.payouts.ConfirmPayout(context.Background(), p.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusSuccess, got.Status)

	got, err = env.payouts.ConfirmPayout(context.Background(), p.ID, "alice")
	require.NoError(t, err, "confirming twice is harmless")
	assert.Equal(t, models.PayoutStatusSuccess, got.Status)
	assert.Len(t, env.store.eventsOf(EventPayoutStatus), 1)

	_, err = env.payouts.ConfirmPayout(context.Background(), "missing", "alice")
	assert.True(t, apperrors.HasCode(err, apperrors.CodePayoutNotFound))
}

func TestMarkPaidOutOfBand(t *testing.T) {
	tests := []struct {
		name     string
		actor    string
		wantCode apperrors.ErrorCode
	}{
		{name: "debtor records", actor: "bob"},
		{name: "creditor records", actor: "alice"},
		{name: "third party refused", actor: "carol", wantCode: apperrors.CodeInsufficientPermissions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := payoutEnv()
			p, err := env.payouts.MarkPaidOutOfBand(context.Background(), tt.actor, models.PayoutRequest{
				FromUserID: "bob", ToUserID: "alice", AmountCents: 1000, Note: "cash at the bar",
			})
			if tt.wantCode != "" {
				assert.True(t, apperrors.HasCode(err, tt.wantCode), "got %v", err)
				assert.Empty(t, env.store.payouts)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, models.PayoutMethodCash, p.Method)
			assert.Equal(t, models.PayoutStatusSuccess, p.Status)
			assert.Empty(t, env.store.txs, "no wallet movement")
		})
	}
}

func TestGetPayoutHiddenFromOthers(t *testing.T) {
	env := payoutEnv()
	p, err := env.payouts.RequestPayout(context.Background(), models.PayoutRequest{
		FromUserID: "bob", ToUserID: "alice", AmountCents: 100, Method: models.PayoutMethodManual,
	})
	require.NoError(t, err)

	_, err = env.payouts.GetByID(context.Background(), p.ID, "alice")
	assert.NoError(t, err)
	_, err = env.payouts.GetByID(context.Background(), p.ID, "carol")
	assert.True(t, apperrors.HasCode(err, apperrors.CodePayoutNotFound))

	list, err := env.payouts.ListForUser(context.Background(), "carol")
	require.NoError(t, err)
	assert.Empty(t, list)
}
