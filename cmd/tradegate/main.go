// Command tradegate runs the risk-screening and approval gate service
// for the trade back office.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/FTHTrading/boutique-sub000/pkg/anchor"
	"github.com/FTHTrading/boutique-sub000/pkg/api"
	"github.com/FTHTrading/boutique-sub000/pkg/auth"
	"github.com/FTHTrading/boutique-sub000/pkg/config"
	"github.com/FTHTrading/boutique-sub000/pkg/docai"
	"github.com/FTHTrading/boutique-sub000/pkg/gate"
	"github.com/FTHTrading/boutique-sub000/pkg/observability"
	"github.com/FTHTrading/boutique-sub000/pkg/policy"
	"github.com/FTHTrading/boutique-sub000/pkg/refdata"
	"github.com/FTHTrading/boutique-sub000/pkg/store"
)

func main() {
	cfg := config.Load()
	initLogger(cfg.LogLevel)
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.OTLPEndpoint != "" {
		obsCfg := observability.DefaultConfig()
		obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
		provider, err := observability.New(ctx, obsCfg)
		if err != nil {
			logger.Error("observability init failed", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = provider.Shutdown(shutdownCtx)
		}()
	}

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Error("database open failed", "url", cfg.DatabaseURL, "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	ref, err := refdata.LoadFile(cfg.RefDataPath)
	if err != nil {
		logger.Error("reference data load failed", "path", cfg.RefDataPath, "error", err)
		os.Exit(1)
	}

	subjects := store.NewSubjectStore(db)
	findings := store.NewFindingStore(db)
	auditLog := store.NewAuditLog(db)

	engine := gate.NewEngine(subjects, findings, ref)
	engine.SetAuditLog(auditLog)

	if advisor := loadPolicyAdvisor(cfg.PolicyRulesPath, logger); advisor != nil {
		engine.SetPolicyAdvisor(advisor)
	}

	if cfg.DocAIURL != "" {
		client := docai.NewOpenAIClient(cfg.DocAIURL, cfg.DocAIKey, cfg.DocAIModel)
		analyzer, err := docai.NewAnalyzer(client)
		if err != nil {
			logger.Error("document analyzer init failed", "error", err)
			os.Exit(1)
		}
		engine.SetDocumentAnalyzer(analyzer)
	}

	anchors := anchor.NewService(store.NewAnchorStore(db), buildLedgers(cfg)...)
	anchors.SetAuditLog(auditLog)

	server := api.NewServer(engine, subjects, anchors, auditLog)

	var handler http.Handler = server.Routes()
	handler = auth.NewMiddleware(auth.NewJWTValidator([]byte(cfg.JWTSecret)))(handler)
	handler = api.NewGlobalRateLimiter(20, 40).Middleware(handler)
	handler = auth.RequestIDMiddleware(handler)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}

func initLogger(level string) {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}

// loadPolicyAdvisor reads the optional staff rule file. A missing file
// just disables the advisor; a malformed one is a startup failure worth
// surfacing, but the service still runs without extra rules.
func loadPolicyAdvisor(path string, logger *slog.Logger) *policy.Advisor {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("policy rules unreadable", "path", path, "error", err)
		}
		return nil
	}

	var rules []policy.Rule
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		logger.Warn("policy rules malformed, advisor disabled", "path", path, "error", err)
		return nil
	}

	advisor, err := policy.NewAdvisor(rules)
	if err != nil {
		logger.Warn("policy advisor init failed", "error", err)
		return nil
	}
	logger.Info("policy advisor loaded", "rules", len(rules))
	return advisor
}

func buildLedgers(cfg *config.Config) []anchor.Ledger {
	var ledgers []anchor.Ledger
	if cfg.LedgerAlphaEndpoint != "" {
		ledgers = append(ledgers, anchor.NewHTTPLedger("alpha",
			cfg.LedgerAlphaEndpoint, cfg.LedgerAlphaAccount, cfg.LedgerAlphaKey))
	}
	if cfg.LedgerBetaEndpoint != "" {
		ledgers = append(ledgers, anchor.NewHTTPLedger("beta",
			cfg.LedgerBetaEndpoint, cfg.LedgerBetaAccount, cfg.LedgerBetaKey))
	}
	return ledgers
}
