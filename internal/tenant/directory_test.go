package tenant

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"storefront-billing/internal/domain/tenants"
	"storefront-billing/internal/testutil"
)

func TestDirectory(t *testing.T) {
	db := testutil.NewDB(t)
	dir := NewDirectory(db, zap.NewNop())
	ctx := context.Background()

	owner := tenants.Tenant{Name: "Shop", Email: "Owner@Example.com"}
	require.NoError(t, db.Create(&owner).Error)

	t.Run("by id", func(t *testing.T) {
		got, err := dir.FindByID(ctx, owner.ID)
		require.NoError(t, err)
		assert.Equal(t, "Shop", got.Name)

		_, err = dir.FindByID(ctx, owner.ID+100)
		assert.ErrorIs(t, err, tenants.ErrNotFound)
	})

	t.Run("by email ignores case", func(t *testing.T) {
		got, err := dir.FindByEmail(ctx, " owner@example.COM ")
		require.NoError(t, err)
		assert.Equal(t, owner.ID, got.ID)

		_, err = dir.FindByEmail(ctx, "")
		assert.ErrorIs(t, err, tenants.ErrNotFound)
	})

	t.Run("attach customer once", func(t *testing.T) {
		require.NoError(t, dir.AttachCustomer(ctx, owner.ID, "cus_1"))
		require.NoError(t, dir.AttachCustomer(ctx, owner.ID, "cus_2"))

		got, err := dir.FindByID(ctx, owner.ID)
		require.NoError(t, err)
		assert.Equal(t, "cus_1", got.CustomerID())

		byCustomer, err := dir.FindByCustomerID(ctx, "cus_1")
		require.NoError(t, err)
		assert.Equal(t, owner.ID, byCustomer.ID)

		_, err = dir.FindByCustomerID(ctx, "cus_2")
		assert.ErrorIs(t, err, tenants.ErrNotFound)
	})
}

func TestAttachCustomer_OwnedByAnotherTenant(t *testing.T) {
	db := testutil.NewDB(t)
	core, logs := observer.New(zap.WarnLevel)
	dir := NewDirectory(db, zap.New(core))
	ctx := context.Background()

	first := tenants.Tenant{Name: "First", Email: "first@example.com"}
	second := tenants.Tenant{Name: "Second", Email: "second@example.com"}
	require.NoError(t, db.Create(&first).Error)
	require.NoError(t, db.Create(&second).Error)

	require.NoError(t, dir.AttachCustomer(ctx, first.ID, "cus_1"))
	require.NoError(t, dir.AttachCustomer(ctx, second.ID, "cus_1"))

	got, err := dir.FindByID(ctx, second.ID)
	require.NoError(t, err)
	assert.Empty(t, got.CustomerID())
	assert.Equal(t, 1, logs.FilterMessage("processor customer already attached to another tenant").Len())

	owner, err := dir.FindByCustomerID(ctx, "cus_1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, owner.ID)
}
