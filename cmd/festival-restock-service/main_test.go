package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/festival-restock-service/internal/config"
	httpapi "github.com/fairyhunter13/festival-restock-service/internal/http"
	"github.com/fairyhunter13/festival-restock-service/internal/predict"
	"github.com/fairyhunter13/festival-restock-service/internal/queue"
	"github.com/fairyhunter13/festival-restock-service/internal/store"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	listColor, statusJSON, statusServer, configFile, addr, logLevel = false, false, "", "", "", ""
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func withStoreFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "restockRequests.json")
	if content != "" {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("RESTOCK_STORE_BACKEND", "")
	t.Setenv("RESTOCK_STORE_PATH", path)
	t.Setenv("LOG_LEVEL", "error")
	return path
}

func TestRequestsList(t *testing.T) {
	withStoreFile(t, `[{"item":"rice","qty":50},{"item":"oil","qty":5}]`)
	out, err := execute(t, "requests", "list")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"item":"rice","qty":50},{"item":"oil","qty":5}]`, out)
}

func TestRequestsListMissingFile(t *testing.T) {
	withStoreFile(t, "")
	out, err := execute(t, "requests", "list")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, out)
}

func TestRequestsSetStatus(t *testing.T) {
	path := withStoreFile(t, `[{"item":"rice","qty":50}]`)
	out, err := execute(t, "requests", "set-status", "0", "approved")
	require.NoError(t, err)
	assert.JSONEq(t, `{"item":"rice","qty":50,"status":"approved"}`, out)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"item":"rice","qty":50,"status":"approved"}]`, string(b))

	_, err = execute(t, "requests", "set-status", "3", "approved")
	assert.ErrorIs(t, err, store.ErrInvalidIndex)
}

func TestRequestsSetStatusJSON(t *testing.T) {
	withStoreFile(t, `[{"item":"rice"}]`)
	out, err := execute(t, "requests", "set-status", "--json", "0", `{"code":2}`)
	require.NoError(t, err)
	assert.JSONEq(t, `{"item":"rice","status":{"code":2}}`, out)

	_, err = execute(t, "requests", "set-status", "--json", "0", `{bad`)
	assert.ErrorContains(t, err, "not valid JSON")
}

func TestRequestsNeedFileBackend(t *testing.T) {
	withStoreFile(t, "")
	t.Setenv("RESTOCK_STORE_BACKEND", "memory")
	_, err := execute(t, "requests", "list")
	assert.ErrorContains(t, err, "store backend")
}

func TestBuildStore(t *testing.T) {
	cfg := config.Defaults()
	cfg.StoreBackend = config.BackendMemory
	st, w, err := buildStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &store.MemoryStore{}, st)
	assert.Nil(t, w)

	cfg.StoreBackend = config.BackendFile
	cfg.StorePath = filepath.Join(t.TempDir(), "data", "r.json")
	cfg.StoreWatch = true
	st, w, err = buildStore(cfg)
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.NoError(t, w.Close())
	assert.IsType(t, &store.FileStore{}, st)
}

func TestRequestsSetStatusViaServer(t *testing.T) {
	path := withStoreFile(t, `[{"item":"rice","qty":50}]`)
	cfg := config.Defaults()
	cfg.StorePath = path
	w := queue.NewWriter(cfg, queue.New(cfg.QueueBuffer), store.NewFile(path))
	w.Start(context.Background())
	t.Cleanup(w.Stop)
	srv := httptest.NewServer(httpapi.NewRouter(httpapi.NewApp(cfg, w, predict.NewRandom(1))))
	t.Cleanup(srv.Close)

	out, err := execute(t, "requests", "set-status", "--server", srv.URL+"/", "0", "approved")
	require.NoError(t, err)
	assert.JSONEq(t, `{"item":"rice","qty":50,"status":"approved"}`, out)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"item":"rice","qty":50,"status":"approved"}]`, string(b))

	_, err = execute(t, "requests", "set-status", "--server", srv.URL, "4", "approved")
	assert.ErrorContains(t, err, "server returned 400")
}
