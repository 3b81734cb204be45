package payment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storefront-billing/internal/domain/billing"
	"storefront-billing/internal/testutil"
)

func TestHistory(t *testing.T) {
	h := NewHistory(testutil.NewDB(t), zap.NewNop())
	ctx := context.Background()
	oct := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	first := billing.Payment{TenantID: 3, ExternalInvoiceID: "in_1", ExternalSubscriptionID: "sub_1", Amount: 2990, Currency: "eur", PeriodStart: oct.AddDate(0, -1, 0)}
	second := billing.Payment{TenantID: 3, ExternalInvoiceID: "in_2", ExternalSubscriptionID: "sub_1", Amount: 2990, Currency: "eur", PeriodStart: oct}
	require.NoError(t, h.Record(ctx, first))
	require.NoError(t, h.Record(ctx, second))
	require.NoError(t, h.Record(ctx, second))
	require.NoError(t, h.Record(ctx, billing.Payment{TenantID: 4, ExternalInvoiceID: "in_3", ExternalSubscriptionID: "sub_9", Amount: 100}))

	got, err := h.ForTenant(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "in_2", got[0].ExternalInvoiceID)
	assert.Equal(t, billing.PaymentPaid, got[0].Status)

	assert.Error(t, h.Record(ctx, billing.Payment{TenantID: 3}))
}
