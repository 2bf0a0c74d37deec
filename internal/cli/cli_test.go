package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/cvlacsync/internal/model"
	"github.com/ppiankov/cvlacsync/internal/pipeline"
	"github.com/ppiankov/cvlacsync/internal/store"
)

const profilePage = `<html><body>
<table><tr><td>Categoría</td><td>Investigador Junior</td></tr>
<tr><td>Nombre</td><td>Ana Pérez</td></tr>
<tr><td>Sexo</td><td>Femenino</td></tr></table>
<table><tr><td><h3>Proyectos</h3></td></tr>
<tr><td><b>Investigación</b><blockquote>Título: Anfibios<br>Inicio: 2018</blockquote></td></tr></table>
</body></html>`

func TestReadEntries(t *testing.T) {
	input := "# researchers\n\nAna Pérez\thttp://cvlac/1\nLuis Gómez\thttp://cvlac/2\nAna again\thttp://cvlac/1\n"

	entries, err := readEntries(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, []entry{
		{label: "Ana Pérez", link: "http://cvlac/1"},
		{label: "Luis Gómez", link: "http://cvlac/2"},
	}, entries)
}

func TestReadEntries_Malformed(t *testing.T) {
	_, err := readEntries(strings.NewReader("Ana\thttp://a\njust a name\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestLoadConfig_LegacyEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_USER", "scraper")
	t.Setenv("DB_PASS", "s3cret")
	t.Setenv("DB_NAME", "cvlac")
	t.Setenv("CVLACSYNC_DATABASE_PORT", "6543")

	v := viper.New()
	bindEnv(v)
	cfg, err := loadConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "scraper", cfg.Database.User)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, "cvlac", cfg.Database.Name)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
}

func TestLoadConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  driver: sqlite
  name: /tmp/cvlac.db
concurrency:
  workers: 3
extractor:
  timeout: 45s
`), 0600))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, 3, cfg.Concurrency.Workers)
	assert.Equal(t, 45*time.Second, cfg.Extractor.Timeout)
	assert.Equal(t, "cvlac", cfg.Extractor.Kind)
}

func TestInitConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, initConfigFile(path))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())
	cfg, err := loadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultConfig().HTTP, cfg.HTTP)

	assert.Error(t, initConfigFile(path), "existing file must not be overwritten")
}

func TestRedact(t *testing.T) {
	cfg := *model.DefaultConfig()
	cfg.Database.Password = "pw"
	cfg.Extractor.LLM.APIKey = "sk-1"

	shown := redact(cfg)
	assert.Equal(t, redacted, shown.Database.Password)
	assert.Equal(t, redacted, shown.Extractor.LLM.APIKey)
	assert.Equal(t, "pw", cfg.Database.Password)

	var buf bytes.Buffer
	require.NoError(t, writeConfigYAML(&buf, shown))
	assert.NotContains(t, buf.String(), "sk-1")
}

func TestRunPass_EndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			w.WriteHeader(http.StatusNotFound)
		case "/ok":
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = fmt.Fprint(w, profilePage)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	cfg := model.DefaultConfig()
	cfg.Database = model.DatabaseConfig{Driver: "sqlite", Name: filepath.Join(t.TempDir(), "run.db")}
	cfg.Cache.Dir = filepath.Join(t.TempDir(), "cache")
	cfg.RateLimiting.RequestsPerSecond = 0
	cfg.HTTP.RetryInterval = time.Millisecond
	cfg.Output.JSON = true
	cfg.Output.MetricsTextfile = filepath.Join(t.TempDir(), "cvlacsync.prom")

	ctx := context.Background()
	s, err := store.Open(ctx, cfg.Database)
	require.NoError(t, err)
	require.NoError(t, s.EnsureSchema(ctx))
	_, err = s.AddItem(ctx, "Ana Pérez", server.URL+"/ok")
	require.NoError(t, err)
	_, err = s.AddItem(ctx, "Missing", server.URL+"/missing")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	var stdout bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	require.NoError(t, runPass(ctx, cfg, &stdout, io.Discard, logger))

	var summary model.Summary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	assert.Equal(t, 2, summary.Attempted)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.FactsPersisted)
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, model.StageExtract, summary.Failures[0].Stage)

	metrics, err := os.ReadFile(cfg.Output.MetricsTextfile)
	require.NoError(t, err)
	assert.Contains(t, string(metrics), "cvlacsync_items_succeeded_total 1")

	s, err = store.Open(ctx, cfg.Database)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	counts, err := s.StatusCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCounts{Pending: 1, Processed: 1}, counts)
}

func TestRunPass_SetupFailure(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Database.Driver = "oracle"

	err := runPass(context.Background(), cfg, io.Discard, io.Discard, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrSetup)
}
