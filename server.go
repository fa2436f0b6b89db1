package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ahorrove/internal/audit"
	"ahorrove/internal/config"
	"ahorrove/internal/content"
	"ahorrove/internal/handlers"
	"ahorrove/internal/linkcheck"
	"ahorrove/internal/logger"
	"ahorrove/internal/middleware"
	"ahorrove/internal/resultcache"
	sentryutil "ahorrove/internal/sentry"
	"ahorrove/internal/taxtable"
)

const (
	shutdownTimeout  = 10 * time.Second
	drainTimeout     = 15 * time.Second
	limiterSweep     = 5 * time.Minute
	limiterIdleAfter = 10 * time.Minute
)

func runServe(cmd *cobra.Command, args []string) error {
	config.Load()
	if err := logger.Init(config.Cfg.LogLevel); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()

	sentryutil.Init()
	defer sentryutil.Flush()

	tables, err := taxtable.Load(config.Cfg.TaxTablesPath, config.Cfg.TaxYear)
	if err != nil {
		return fmt.Errorf("tax tables: %w", err)
	}
	logger.Info("tax tables loaded", map[string]interface{}{
		"path":         config.Cfg.TaxTablesPath,
		"years":        tables.Years(),
		"default_year": tables.DefaultYear(),
	})

	if err := loadContent(); err != nil {
		return fmt.Errorf("content: %w", err)
	}

	sinks, store := buildSinks()
	dispatcher := audit.NewDispatcher(audit.Options{
		QueueSize: config.Cfg.AuditQueueSize,
		Workers:   config.Cfg.AuditWorkers,
		Timeout:   config.Cfg.AuditTimeout,
	}, sinks...)

	handlers.InitCounter(config.Cfg.CounterFile)
	handlers.Init(handlers.Deps{
		Tables:  tables,
		Audit:   dispatcher,
		Results: resultcache.New(config.Cfg.ResultTTL),
	})

	limiter := handlers.NewRateLimiter(config.Cfg.RateLimitRPS, config.Cfg.RateLimitBurst)
	srv := &http.Server{
		Addr:              ":" + config.Cfg.Port,
		Handler:           wrap(newMux(dispatcher, store), limiter),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server starting", map[string]interface{}{"port": config.Cfg.Port})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("server shutting down", nil)
		return srv.Shutdown(shutdownCtx)
	})
	if config.Cfg.TaxTablesWatch {
		g.Go(func() error {
			if err := tables.Watch(gctx); err != nil {
				// A broken watcher leaves the loaded tables in place.
				logger.Warn("tax tables watcher stopped", map[string]interface{}{"error": err.Error()})
			}
			return nil
		})
	}
	g.Go(func() error {
		return linkcheck.Run(gctx, config.Cfg.LinkCheckInterval)
	})
	g.Go(func() error {
		t := time.NewTicker(limiterSweep)
		defer t.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-t.C:
				if n := limiter.Cleanup(limiterIdleAfter); n > 0 {
					logger.Debug("rate limiter sweep", map[string]interface{}{"removed": n})
				}
			}
		}
	})

	err = g.Wait()

	drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if derr := dispatcher.Close(drainCtx); derr != nil {
		logger.Warn("audit queue not fully drained", map[string]interface{}{"error": derr.Error(), "stats": dispatcher.Stats()})
	}
	handlers.StopCounter()
	if store != nil {
		store.Close()
	}
	logger.Info("server stopped", nil)
	return err
}

// loadContent reads the pages from CONTENT_DIR, or the embedded set when it
// is unset.
func loadContent() error {
	dir := config.Cfg.ContentDir
	if dir == "" {
		return content.LoadEmbedded()
	}
	if err := content.LoadDir(dir); err != nil {
		return err
	}
	logger.Info("content loaded from directory", map[string]interface{}{"dir": dir, "pages": len(content.All())})
	return nil
}

// buildSinks opens every configured audit sink. A sink that cannot be opened
// is logged and skipped; the calculator keeps serving without it.
func buildSinks() ([]audit.Sink, *audit.SQLiteSink) {
	var sinks []audit.Sink

	if config.Cfg.SheetsEnabled() {
		cfg, err := audit.SheetsConfigFromEnv(config.Cfg.GoogleSheetID, config.Cfg.GoogleServiceAccountEmail, config.Cfg.GooglePrivateKeyBase64)
		if err == nil {
			var s *audit.SheetsSink
			if s, err = audit.NewSheetsSink(cfg); err == nil {
				sinks = append(sinks, s)
			}
		}
		if err != nil {
			logger.Error("google sheets sink disabled", map[string]interface{}{"error": err.Error()})
			sentryutil.CaptureError(err, map[string]string{"component": "audit", "sink": "sheets"})
		}
	} else {
		logger.Warn("GOOGLE_SHEET_ID not configured, spreadsheet audit disabled", nil)
	}

	var store *audit.SQLiteSink
	if config.Cfg.AuditDBPath != "" {
		s, err := audit.OpenSQLite(config.Cfg.AuditDBPath)
		if err != nil {
			logger.Error("sqlite audit sink disabled", map[string]interface{}{"path": config.Cfg.AuditDBPath, "error": err.Error()})
			sentryutil.CaptureError(err, map[string]string{"component": "audit", "sink": "sqlite"})
		} else {
			store = s
			sinks = append(sinks, s)
		}
	}

	names := make([]string, len(sinks))
	for i, s := range sinks {
		names[i] = s.Name()
	}
	logger.Info("audit sinks ready", map[string]interface{}{"sinks": names})
	return sinks, store
}

func newMux(d *audit.Dispatcher, store *audit.SQLiteSink) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/calculate", handlers.CalculateHandler)
	mux.HandleFunc("/api/report", handlers.ReportHandler)
	mux.HandleFunc("/api/parse-certificado", handlers.ParseCertificadoHandler)
	mux.HandleFunc("/api/parametros", handlers.ParametrosHandler)
	mux.HandleFunc("/api/stats", handlers.StatsHandler)
	mux.HandleFunc("/api/health", handlers.HealthHandler)
	mux.HandleFunc("/api/admin/audit", audit.AdminHandler(d, store))
	mux.HandleFunc("/api/admin/links", linkcheck.AdminLinksHandler)

	mux.HandleFunc("/beneficios-tributarios", handlers.BeneficiosHandler)
	mux.HandleFunc("/sitemap.xml", handlers.SitemapHandler)
	mux.HandleFunc("/robots.txt", handlers.RobotsTxtHandler)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" || r.URL.Path == "/index.html" {
			handlers.IndexHandler(w, r)
			return
		}
		handlers.NotFoundHandler(w, r)
	})
	return mux
}

// wrap applies the middleware chain: Recovery → SecurityHeaders → Gzip (if
// enabled) → RequestLog → rate limiter (API routes only).
func wrap(mux http.Handler, limiter *handlers.RateLimiter) http.Handler {
	limited := limiter.Middleware(mux)
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") && r.URL.Path != "/api/health" {
			limited.ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})
	handler = middleware.RequestLog(handler)
	if config.Cfg.GzipEnabled {
		handler = middleware.Gzip(handler)
	}
	handler = middleware.SecurityHeaders(handler)
	return middleware.Recovery(handler)
}
