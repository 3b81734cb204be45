package affiliate

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storefront-billing/internal/domain/affiliates"
	"storefront-billing/internal/testutil"
)

func TestRegisterReferral(t *testing.T) {
	db := testutil.NewDB(t)
	dir := NewDirectory(db, zap.NewNop())
	ctx := context.Background()

	first := affiliates.Affiliate{Name: "A", Email: "a@example.com", CommissionRate: decimal.RequireFromString("0.10"), Status: affiliates.StatusActive}
	second := affiliates.Affiliate{Name: "B", Email: "b@example.com", CommissionRate: decimal.RequireFromString("0.20"), Status: affiliates.StatusActive}
	require.NoError(t, db.Create(&first).Error)
	require.NoError(t, db.Create(&second).Error)

	ref, err := dir.RegisterReferral(ctx, first.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, first.ID, ref.AffiliateID)

	again, err := dir.RegisterReferral(ctx, second.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.AffiliateID, "first referrer wins")

	var count int64
	require.NoError(t, db.Model(&affiliates.Referral{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	_, err = dir.RegisterReferral(ctx, 999, 8)
	assert.ErrorIs(t, err, affiliates.ErrAffiliateNotFound)
}

func TestReferralForTenant_None(t *testing.T) {
	db := testutil.NewDB(t)
	dir := NewDirectory(db, zap.NewNop())

	ref, err := dir.ReferralForTenant(context.Background(), 42)
	require.NoError(t, err)
	assert.Nil(t, ref)
}
