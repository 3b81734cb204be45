package app

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
)

func TestServeGraph(t *testing.T) {
	require.NoError(t, fx.ValidateApp(CoreModule, BillingModule, HTTPModule))
}

func TestMigrateGraph(t *testing.T) {
	require.NoError(t, fx.ValidateApp(CoreModule, fx.Invoke(runMigrations)))
}
