// Command stickermatch verifies dealership inventory feature checkboxes
// against factory window stickers: it logs into the dealer portal,
// discovers vehicles, extracts sticker features, maps them to checkbox
// labels, applies corrections, and reports per-run statistics.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/stickermatch/browser"
	"github.com/hazyhaar/stickermatch/catalog"
	"github.com/hazyhaar/stickermatch/config"
	"github.com/hazyhaar/stickermatch/corrections"
	"github.com/hazyhaar/stickermatch/featmap"
	"github.com/hazyhaar/stickermatch/inventory"
	"github.com/hazyhaar/stickermatch/learn"
	"github.com/hazyhaar/stickermatch/login"
	"github.com/hazyhaar/stickermatch/mcptools"
	"github.com/hazyhaar/stickermatch/reporting"
	"github.com/hazyhaar/stickermatch/session"
	"github.com/hazyhaar/stickermatch/sticker"
	"github.com/hazyhaar/stickermatch/store"
	"github.com/hazyhaar/stickermatch/workflow"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "stickermatch.yaml", "path to config file")
	runOnce := flag.Bool("once", false, "run one verification pass and exit, ignoring the schedule")
	flag.Parse()

	// Logging.
	var lvl slog.Level
	switch env("LOG_LEVEL", "info") {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger, *runOnce); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("stickermatch", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.System, logger *slog.Logger, runOnce bool) error {
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	cat := catalog.Load(catalog.Config{
		Path:          cfg.CatalogPath,
		OverridesPath: cfg.OverridePath,
		Logger:        logger,
	})

	scorer, err := featmap.NewScorer(featmap.Algorithm(cfg.Algorithm))
	if err != nil {
		return err
	}
	engine := featmap.NewEngine(scorer, logger)
	learner := learn.New(db, cat, logger)

	reporter := reporting.New(db, reporting.Config{
		OutputDir:    cfg.ReportDir,
		SlackToken:   cfg.Slack.Token,
		SlackChannel: cfg.Slack.Channel,
		Logger:       logger,
	})

	mgr := browser.NewManager(browser.Config{
		RemoteURL:  cfg.Browser.RemoteURL,
		Headless:   cfg.Browser.Headless,
		Stealth:    cfg.Browser.Stealth,
		NavTimeout: cfg.Browser.NavTimeout,
		Logger:     logger,
	})
	defer mgr.Close()

	extractor := sticker.New(sticker.Config{Logger: logger})
	auth := login.New(login.Config{
		LoginURL:    cfg.Portal.LoginURL,
		StepTimeout: cfg.Portal.StepTimeout,
		Logger:      logger,
	})

	// Corrections API.
	if cfg.API.Addr != "" {
		api := corrections.New(learner, db, corrections.Config{
			Username:     cfg.API.Username,
			PasswordHash: cfg.API.PasswordHash,
			Logger:       logger,
		})
		srv := &http.Server{Addr: cfg.API.Addr, Handler: api.Router()}
		go func() {
			logger.Info("corrections API listening", "addr", cfg.API.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("corrections API", "error", err)
			}
		}()
		defer func() {
			shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutCancel()
			srv.Shutdown(shutCtx)
		}()
	}

	// MCP tool surface over stdio.
	if cfg.MCP.Transport == "stdio" {
		tools := &mcptools.Tools{Engine: engine, Catalog: cat, Learner: learner, Logger: logger}
		go func() {
			if err := tools.Serve(ctx, "stickermatch", version); err != nil && ctx.Err() == nil {
				logger.Error("mcp server", "error", err)
			}
		}()
	}

	runAll := func() {
		if err := mgr.Start(ctx); err != nil {
			logger.Error("start browser", "error", err)
			return
		}
		for _, deal := range cfg.Dealerships {
			if ctx.Err() != nil {
				return
			}
			runDealership(ctx, cfg, deal, mgr, auth, extractor, engine, reporter, logger)
		}
	}

	if runOnce || cfg.Schedule == "" {
		runAll()
		return ctx.Err()
	}

	// Cron loop: standard 5-field expressions.
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(cfg.Schedule)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
	}

	for {
		now := time.Now()
		next := sched.Next(now)
		logger.Info("next verification run scheduled", "at", next, "in", next.Sub(now).Round(time.Second))

		t := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		runAll()
	}
}

// runDealership runs one dealership's verification with its own session
// and statistics. Failures are logged; the next dealership still runs.
func runDealership(
	ctx context.Context,
	cfg *config.System,
	deal config.Dealership,
	mgr *browser.Manager,
	auth *login.Authenticator,
	extractor *sticker.Extractor,
	engine *featmap.Engine,
	reporter *reporting.Reporter,
	logger *slog.Logger,
) {
	log := logger.With("dealership", deal.ID)

	// Fresh override-scoped catalog view per run: dealership overrides
	// differ, and a reload also picks up aliases learned since the last
	// run. This instance never saves; only the learner's catalog writes.
	dealCat := catalog.Load(catalog.Config{
		Path:          cfg.CatalogPath,
		OverridesPath: cfg.OverridePath,
		DealershipID:  deal.ID,
		Threshold:     cfg.Threshold,
		Logger:        log,
	})

	creds := login.Credentials{Username: deal.Username, Password: deal.Password}

	// The opener authenticates every fresh page, so mid-batch renewal
	// (MaxAge expiry, dead page) hands actions a logged-in session rather
	// than a login redirect.
	exec := session.New(session.OpenerFunc(func(ctx context.Context) (browser.Driver, error) {
		d, err := mgr.NewPage(ctx)
		if err != nil {
			return nil, err
		}
		if err := auth.EnsureLoggedIn(ctx, d, creds); err != nil {
			d.Close()
			return nil, err
		}
		return d, nil
	}), session.Config{
		MaxAge:      cfg.Session.MaxAge,
		MaxRetries:  cfg.Session.MaxRetries,
		BackoffUnit: cfg.Session.BackoffUnit,
		Logger:      log,
	})

	discoverer := inventory.NewDiscoverer(inventory.DiscoveryConfig{
		InventoryURL: cfg.Portal.InventoryURL,
		MaxVehicles:  deal.MaxVehicles,
		Filters:      deal.Filters,
		StepTimeout:  cfg.Portal.StepTimeout,
		Logger:       log,
	})
	checkboxes := inventory.NewCheckboxManager(inventory.CheckboxConfig{
		StepTimeout: cfg.Portal.StepTimeout,
		Logger:      log,
	})

	wf := workflow.New(workflow.Collaborators{
		Executor:   exec,
		Auth:       auth,
		Discovery:  discoverer,
		Extraction: extractor,
		Checkboxes: checkboxes,
		Engine:     engine,
		Catalog:    dealCat,
		Reporter:   reporter,
	}, workflow.Config{
		Dealership: workflow.Dealership{
			ID:   deal.ID,
			Name: deal.Name,
			Credentials: creds,
		},
		Threshold: cfg.Threshold,
		Logger:    log,
	})

	sum, err := wf.Run(ctx)
	if err != nil {
		log.Error("verification run failed", "run", sum.RunID, "error", err)
		return
	}
	log.Info("verification run finished",
		"run", sum.RunID,
		"outcome", sum.Outcome,
		"vehicles", sum.VehiclesProcessed,
		"updated", sum.SuccessfulUpdates,
		"failed", sum.FailedUpdates,
		"skipped", sum.SkippedVehicles,
		"duration", sum.Duration())
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
