package billing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTenantIDFromMetadata(t *testing.T) {
	assert.Equal(t, uint(42), TenantIDFromMetadata(map[string]string{"tenant_id": " 42 "}))
	assert.Zero(t, TenantIDFromMetadata(map[string]string{"tenant_id": "abc"}))
	assert.Zero(t, TenantIDFromMetadata(map[string]string{}))
	assert.Zero(t, TenantIDFromMetadata(nil))
}

func TestSubscriptionEntitling(t *testing.T) {
	for status, want := range map[string]bool{
		StatusActive:   true,
		StatusTrialing: true,
		StatusPastDue:  false,
		StatusCanceled: false,
		"incomplete":   false,
	} {
		s := Subscription{Status: status}
		assert.Equal(t, want, s.Entitling(), status)
	}
}
