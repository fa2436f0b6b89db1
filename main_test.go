package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ahorrove/internal/audit"
	"ahorrove/internal/config"
	"ahorrove/internal/content"
	"ahorrove/internal/handlers"
	"ahorrove/internal/resultcache"
	"ahorrove/internal/taxcalc"
	"ahorrove/internal/taxtable"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	calcularCmd.Flags().VisitAll(func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	})
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	defer rootCmd.SetOut(nil)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCalcularCommand(t *testing.T) {
	out, err := execute(t, "calcular", "--ingresos", "10000000", "--vehiculo", "150000000", "--optima", "--sin-exenta")
	require.NoError(t, err)

	var res taxcalc.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res), out)
	assert.Equal(t, 2025, res.Year)
	require.NotNil(t, res.Optimal)
	assert.Equal(t, 35_341_700.0, res.Optimal.RecommendedDeduction)
	assert.Equal(t, 35_341_700.0, res.VehicleDeductionApplied)
	assert.Equal(t, "19%", res.WithVehicle.Bracket.Name)
}

func TestCalcularCommandUnknownYear(t *testing.T) {
	_, err := execute(t, "calcular", "--ingresos", "1", "--vehiculo", "1000000", "--year", "1990")
	require.Error(t, err)
	assert.ErrorIs(t, err, taxtable.ErrUnknownYear)
}

func TestTablasCommand(t *testing.T) {
	out, err := execute(t, "tablas")
	require.NoError(t, err)
	assert.Contains(t, out, "2025 (default)  UVT=49799")
	assert.Contains(t, out, "2024  UVT=47065")
	assert.Contains(t, out, "[> 4100 UVT]")

	bad := filepath.Join(t.TempDir(), "tablas.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("years: nope\n"), 0o644))
	_, err = execute(t, "tablas", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tablas inválidas")
}

func TestLoadContent(t *testing.T) {
	prev := config.Cfg.ContentDir
	t.Cleanup(func() {
		config.Cfg.ContentDir = prev
		content.LoadEmbedded()
	})

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "faq.md"),
		[]byte("---\ntitle: Preguntas frecuentes\n---\nTexto.\n"), 0o644))
	config.Cfg.ContentDir = dir
	require.NoError(t, loadContent())
	require.NotNil(t, content.Get("faq"))
	assert.Nil(t, content.Get("beneficios-tributarios"))

	config.Cfg.ContentDir = ""
	require.NoError(t, loadContent())
	assert.NotNil(t, content.Get("beneficios-tributarios"))

	config.Cfg.ContentDir = filepath.Join(dir, "missing")
	assert.Error(t, loadContent())
}

func TestServerRoutes(t *testing.T) {
	prev := config.Cfg
	config.Cfg.GzipEnabled = false
	config.Cfg.AdminAPIKey = ""
	defer func() { config.Cfg = prev }()

	tables, err := taxtable.Load("", 0)
	require.NoError(t, err)
	require.NoError(t, content.LoadEmbedded())
	d := audit.NewDispatcher(audit.Options{QueueSize: 4, Workers: 1})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		d.Close(ctx)
	}()
	handlers.Init(handlers.Deps{Tables: tables, Audit: d, Results: resultcache.New(time.Minute)})

	srv := httptest.NewServer(wrap(newMux(d, nil), handlers.NewRateLimiter(100, 100)))
	defer srv.Close()

	cases := []struct {
		path        string
		status      int
		contentType string
	}{
		{"/", http.StatusOK, "text/html"},
		{"/beneficios-tributarios", http.StatusOK, "text/html"},
		{"/robots.txt", http.StatusOK, "text/plain"},
		{"/sitemap.xml", http.StatusOK, "application/xml"},
		{"/api/health", http.StatusOK, "application/json"},
		{"/api/parametros", http.StatusOK, "application/json"},
		{"/api/admin/audit", http.StatusOK, "application/json"},
		{"/api/admin/links", http.StatusOK, "application/json"},
		{"/api/nada", http.StatusNotFound, "application/json"},
		{"/.env", http.StatusNotFound, "text/html"},
	}
	for _, c := range cases {
		t.Run(strings.TrimPrefix(c.path, "/"), func(t *testing.T) {
			resp, err := http.Get(srv.URL + c.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, c.status, resp.StatusCode)
			assert.Contains(t, resp.Header.Get("Content-Type"), c.contentType)
			assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
		})
	}
}
