package commission

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"storefront-billing/internal/affiliate"
	"storefront-billing/internal/domain/affiliates"
	"storefront-billing/internal/observability"
	"storefront-billing/internal/testutil"
)

type fixture struct {
	db        *gorm.DB
	ledger    *Ledger
	affiliate affiliates.Affiliate
	referral  affiliates.Referral
}

func setup(t *testing.T, rate string) fixture {
	t.Helper()
	db := testutil.NewDB(t)

	aff := affiliates.Affiliate{
		Name:           "Partner",
		Email:          "partner@example.com",
		CommissionRate: decimal.RequireFromString(rate),
		Status:         affiliates.StatusActive,
	}
	require.NoError(t, db.Create(&aff).Error)
	ref := affiliates.Referral{AffiliateID: aff.ID, ReferredTenantID: 7}
	require.NoError(t, db.Create(&ref).Error)

	l := NewLedger(Params{
		DB:         db,
		Affiliates: affiliate.NewDirectory(db, zap.NewNop()),
		Log:        zap.NewNop(),
		Metrics:    observability.MustNewMetrics(prometheus.NewRegistry()),
	})
	return fixture{db: db, ledger: l, affiliate: aff, referral: ref}
}

func input() affiliates.CommissionInput {
	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	return affiliates.CommissionInput{
		TenantID:       7,
		Amount:         2990,
		PeriodStart:    start,
		PeriodEnd:      start.AddDate(0, 1, 0),
		SubscriptionID: "sub_123",
	}
}

func TestAmount(t *testing.T) {
	assert.Equal(t, int64(299), Amount(2990, decimal.RequireFromString("0.10")))
	assert.Equal(t, int64(3), Amount(25, decimal.RequireFromString("0.10")), "2.5 rounds away from zero")
	assert.Equal(t, int64(-3), Amount(-25, decimal.RequireFromString("0.10")))
	assert.Equal(t, int64(0), Amount(2990, decimal.Zero))
}

func TestRecord_OncePerPeriod(t *testing.T) {
	f := setup(t, "0.10")
	ctx := context.Background()

	ok, err := f.ledger.Record(ctx, input())
	require.NoError(t, err)
	assert.True(t, ok)

	var ref affiliates.Referral
	require.NoError(t, f.db.First(&ref, f.referral.ID).Error)
	require.NotNil(t, ref.FirstPurchaseAt)
	stamped := *ref.FirstPurchaseAt

	ok, err = f.ledger.Record(ctx, input())
	require.NoError(t, err)
	assert.False(t, ok)

	var rows []affiliates.Commission
	require.NoError(t, f.db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2990), rows[0].Amount)
	assert.Equal(t, int64(299), rows[0].CommissionAmount)
	assert.Equal(t, affiliates.CommissionPending, rows[0].Status)

	next := input()
	next.PeriodStart = next.PeriodEnd
	next.PeriodEnd = next.PeriodStart.AddDate(0, 1, 0)
	ok, err = f.ledger.Record(ctx, next)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, f.db.First(&ref, f.referral.ID).Error)
	assert.True(t, ref.FirstPurchaseAt.Equal(stamped), "first purchase is stamped once")
}

func TestRecord_ConcurrentDuplicates(t *testing.T) {
	f := setup(t, "0.10")
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := f.ledger.Record(ctx, input())
			assert.NoError(t, err)
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	recorded := 0
	for ok := range results {
		if ok {
			recorded++
		}
	}
	assert.Equal(t, 1, recorded)

	var count int64
	require.NoError(t, f.db.Model(&affiliates.Commission{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRecord_Skips(t *testing.T) {
	t.Run("no referral", func(t *testing.T) {
		f := setup(t, "0.10")
		in := input()
		in.TenantID = 99
		ok, err := f.ledger.Record(context.Background(), in)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("zero amount", func(t *testing.T) {
		f := setup(t, "0.10")
		in := input()
		in.Amount = 0
		ok, err := f.ledger.Record(context.Background(), in)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("suspended affiliate", func(t *testing.T) {
		f := setup(t, "0.10")
		require.NoError(t, f.db.Model(&affiliates.Affiliate{}).
			Where("id = ?", f.affiliate.ID).
			Update("status", affiliates.StatusSuspended).Error)

		ok, err := f.ledger.Record(context.Background(), input())
		require.NoError(t, err)
		assert.False(t, ok)

		var ref affiliates.Referral
		require.NoError(t, f.db.First(&ref, f.referral.ID).Error)
		assert.Nil(t, ref.FirstPurchaseAt)
	})
}

func TestTotals(t *testing.T) {
	f := setup(t, "0.10")
	ctx := context.Background()

	_, err := f.ledger.Record(ctx, input())
	require.NoError(t, err)

	paid := input()
	paid.PeriodStart = paid.PeriodStart.AddDate(0, -1, 0)
	_, err = f.ledger.Record(ctx, paid)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&affiliates.Commission{}).
		Where("period_start = ?", paid.PeriodStart).
		Update("status", affiliates.CommissionPaid).Error)

	totals, err := f.ledger.Totals(ctx, f.affiliate.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(299), totals.Pending)
	assert.Equal(t, int64(299), totals.Paid)
	assert.Equal(t, int64(2), totals.Count)

	_, err = f.ledger.Totals(ctx, 999)
	assert.ErrorIs(t, err, affiliates.ErrAffiliateNotFound)
}
