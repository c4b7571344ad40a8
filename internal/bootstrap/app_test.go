package bootstrap_test

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/re-search/internal/bootstrap"
	"github.com/jonesrussell/re-search/internal/config"
	"github.com/jonesrussell/re-search/internal/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	off := false
	cfg := &config.Config{}
	cfg.Database.Enabled = &off
	cfg.Fetcher.RenderEnabled = &off
	cfg.Inference.Enabled = &off
	cfg.SetDefaults()
	return cfg
}

func TestNew_InMemory(t *testing.T) {
	t.Parallel()

	app, err := bootstrap.New(context.Background(), testConfig(t), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(app.Close)

	assert.Nil(t, app.Storage.DB)
	assert.Nil(t, app.Storage.Redis)
	assert.Nil(t, app.Services.Budget)

	deps := app.HandlerDeps()
	assert.NotNil(t, deps.Runner)
	assert.NotNil(t, deps.Recent)
	assert.Nil(t, deps.History, "no run log without a database")
	assert.Nil(t, deps.Searcher)
	assert.Nil(t, deps.Explain)
	assert.Empty(t, deps.Checks)

	deleted, err := app.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestNew_RedisAndInference(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.Enabled = true
	cfg.Redis.Address = mr.Addr()
	on := true
	cfg.Inference.Enabled = &on
	cfg.Inference.Provider = "ollama"
	cfg.Inference.APIURL = "http://127.0.0.1:1"

	app, err := bootstrap.New(context.Background(), cfg, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(app.Close)

	require.NotNil(t, app.Storage.Redis)
	require.NotNil(t, app.Services.Budget)
	used, limit, err := app.Services.Budget.Usage(context.Background())
	require.NoError(t, err)
	assert.Zero(t, used)
	assert.Equal(t, config.DefaultDailyCallLimit, limit)

	deps := app.HandlerDeps()
	assert.NotNil(t, deps.Explain)
	require.Contains(t, deps.Checks, "redis")
	assert.NoError(t, deps.Checks["redis"](context.Background()))
}

func TestNew_UnknownProvider(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	on := true
	cfg.Inference.Enabled = &on
	cfg.Inference.Provider = "carrier-pigeon"

	_, err := bootstrap.New(context.Background(), cfg, logger.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "carrier-pigeon")
}

func TestCreateRedisClient(t *testing.T) {
	t.Parallel()

	_, err := bootstrap.CreateRedisClient(context.Background(), &config.RedisConfig{})
	require.ErrorIs(t, err, bootstrap.ErrRedisDisabled)

	_, err = bootstrap.CreateRedisClient(context.Background(), &config.RedisConfig{Enabled: true, Address: "127.0.0.1:1"})
	require.Error(t, err)
}
