package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rumor-ml/commons.systems/budgetter/internal/config"
	"github.com/rumor-ml/commons.systems/budgetter/internal/parser"
	"github.com/rumor-ml/commons.systems/budgetter/internal/streaming"
)

func testConfig() config.Config {
	return config.Config{
		Database:   config.DatabaseConfig{Path: ":memory:"},
		Classifier: config.ClassifierConfig{Provider: config.ProviderNone, Threshold: 0.5},
		Dashboard:  config.DashboardConfig{QueueSize: 8, Room: "dashboard"},
		Import: config.ImportConfig{
			MaxUploadBytes: 1 << 20,
			BalancePolicy:  config.BalancePolicyNewer,
		},
	}
}

func TestNewServerMode(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(), zerolog.Nop(), ModeServer)
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Store)
	assert.NotNil(t, a.Pipeline)
	assert.NotNil(t, a.APIHandler())
	assert.Nil(t, a.Verifier())
	assert.Nil(t, a.Firebase)

	a.Queue.Start()
	client := a.Hub.Register("dashboard")
	defer a.Hub.Unregister("dashboard", client)

	f, err := os.Open(filepath.Join("..", "..", "testdata", "statements", "testbank_cc.ofx"))
	require.NoError(t, err)
	defer f.Close()

	report, err := a.Pipeline.Import(ctx, "testbank_cc.ofx", f, parser.SourceUpload)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Imported)

	select {
	case ev := <-client.Events:
		assert.Equal(t, streaming.EventTypeDashboard, ev.Type)
	case <-time.After(5 * time.Second):
		t.Fatal("no dashboard event after import")
	}

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, a.Queue.Stop(stopCtx))
}

func TestNewCLIModeRefresh(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(), zerolog.Nop(), ModeCLI)
	require.NoError(t, err)
	defer a.Close()

	report, err := a.Pipeline.ImportPath(ctx, filepath.Join("..", "..", "testdata", "statements", "testbank_cc.ofx"))
	require.NoError(t, err)
	assert.Equal(t, 2, report.Imported)
	assert.Zero(t, a.Queue.Built())

	p, err := a.RefreshDashboard(ctx)
	require.NoError(t, err)
	require.NotNil(t, p.LastTransactionAdded)
	assert.Equal(t, "REF102", p.LastTransactionAdded.Reference)
	assert.Equal(t, int64(1), a.Queue.Built())
}

func TestNewBadTransferPattern(t *testing.T) {
	cfg := testConfig()
	cfg.Import.InternalTransferPatterns = []string{"("}

	_, err := New(context.Background(), cfg, zerolog.Nop(), ModeCLI)
	assert.Error(t, err)
}

func TestCloseIsIdempotent(t *testing.T) {
	a, err := New(context.Background(), testConfig(), zerolog.Nop(), ModeCLI)
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}
