// Package server assembles the notes service and owns its lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/notes-service/internal/api"
	"github.com/JakeFAU/notes-service/internal/browser"
	"github.com/JakeFAU/notes-service/internal/clock/system"
	"github.com/JakeFAU/notes-service/internal/config"
	"github.com/JakeFAU/notes-service/internal/extract"
	"github.com/JakeFAU/notes-service/internal/hash/sha256"
	"github.com/JakeFAU/notes-service/internal/language"
	"github.com/JakeFAU/notes-service/internal/links"
	natspublisher "github.com/JakeFAU/notes-service/internal/publisher/nats"
	gcppublisher "github.com/JakeFAU/notes-service/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/notes-service/internal/queue/memory"
	badgerstorage "github.com/JakeFAU/notes-service/internal/storage/badger"
	gcsstorage "github.com/JakeFAU/notes-service/internal/storage/gcs"
	localstorage "github.com/JakeFAU/notes-service/internal/storage/local"
	memoryStorage "github.com/JakeFAU/notes-service/internal/storage/memory"
	pgstore "github.com/JakeFAU/notes-service/internal/storage/postgres"
	"github.com/JakeFAU/notes-service/internal/worker"
)

// workerStopGrace bounds the wait for the worker loop to return after its
// context is canceled on an unacknowledged shutdown.
var workerStopGrace = 5 * time.Second

// newSession builds the browser session; tests replace it.
var newSession = browser.New

// App contains the application's dependencies.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	apiServer *api.Server
	store     links.Store
	browser   browser.Session
	queue     *queueMemory.Queue
	worker    *worker.Worker
	closers   []namedCloser

	workerCancel context.CancelFunc
}

type namedCloser struct {
	name  string
	close func() error
}

// Build creates the application's dependencies, starts the browser session
// and the enrichment worker, and resubmits articles left pending by a
// previous run. Any failure here is fatal.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("browser_driver", cfg.Browser.Driver),
		zap.String("archive_backend", cfg.Archive.Backend),
	)

	ok := false
	defer func() {
		if ok {
			return
		}
		if app.workerCancel != nil {
			app.workerCancel()
			<-app.worker.Done()
		}
		app.closeInfrastructure()
	}()

	var err error
	if app.store, err = setupStore(ctx, app); err != nil {
		return nil, err
	}
	archive, err := setupArchive(ctx, app)
	if err != nil {
		return nil, err
	}
	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}
	if err := setupBrowser(ctx, app); err != nil {
		return nil, err
	}

	detector := language.NewDetector()
	app.queue = queueMemory.NewQueue(cfg.Enrichment.QueueDepth)
	app.worker = worker.New(
		app.queue,
		app.store,
		app.browser,
		detector,
		archive,
		publisher,
		sha256.New(),
		system.New(),
		worker.Config{Topic: cfg.EventTopic(), ArchivePrefix: cfg.Archive.Prefix},
		logger.Named("worker"),
	)
	workerCtx, cancel := context.WithCancel(context.Background())
	app.workerCancel = cancel
	app.worker.Start(workerCtx)

	if cfg.Enrichment.ResyncOnStart {
		n, err := worker.Resync(ctx, app.store, app.worker, logger.Named("resync"))
		if err != nil {
			return nil, fmt.Errorf("startup resync failed: %w", err)
		}
		logger.Info("startup resync complete", zap.Int("articles", n))
	}

	reconciler := links.NewReconciler(app.store, app.worker, logger.Named("reconciler"))
	app.apiServer = api.NewServer(
		reconciler,
		app.store,
		extract.New(detector),
		app.worker,
		*cfg,
		logger.Named("api"),
	)

	ok = true
	return app, nil
}

// Handler exposes the HTTP routes.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Worker returns the enrichment worker.
func (a *App) Worker() *worker.Worker {
	return a.worker
}

// Run serves HTTP until ctx ends or a termination signal arrives, then shuts
// down.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	httpCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancelShutdown()
	return a.Shutdown(shutdownCtx)
}

// Shutdown stops the worker, waiting for its acknowledgment within ctx, then
// releases the browser and the remaining infrastructure. When the worker
// does not acknowledge in time its context is canceled and the loop gets
// workerStopGrace to return before the browser is closed; the error is
// returned after cleanup.
func (a *App) Shutdown(ctx context.Context) error {
	err := a.worker.Shutdown(ctx)
	if err != nil {
		a.logger.Error("enrichment worker did not acknowledge shutdown", zap.Error(err))
		a.workerCancel()
		select {
		case <-a.worker.Done():
			a.logger.Info("enrichment worker stopped after cancellation")
		case <-time.After(workerStopGrace):
			a.logger.Error("enrichment worker still running, closing browser anyway",
				zap.Duration("grace", workerStopGrace))
		}
	} else {
		a.logger.Info("enrichment worker acknowledged shutdown")
	}
	a.closeInfrastructure()
	if syncErr := a.logger.Sync(); syncErr != nil {
		a.logger.Debug("logger sync failed", zap.Error(syncErr))
	}
	a.logger.Info("shutdown complete")
	return err
}

// closeInfrastructure releases resources in reverse construction order.
func (a *App) closeInfrastructure() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.logger.Warn("close failed", zap.String("resource", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

func setupStore(ctx context.Context, app *App) (links.Store, error) {
	if app.cfg.DB.DSN == "" {
		app.logger.Warn("no DSN specified, using in-memory link store")
		return memoryStorage.NewLinkStore(nil), nil
	}
	store, err := pgstore.NewLinkStore(ctx, pgstore.Config{
		DSN:             app.cfg.DB.DSN,
		MaxConns:        app.cfg.DB.MaxConns,
		MinConns:        app.cfg.DB.MinConns,
		MaxConnLifetime: app.cfg.MaxConnLifetime(),
	})
	if err != nil {
		return nil, fmt.Errorf("link store init failed: %w", err)
	}
	app.onClose("postgres", func() error {
		store.Close()
		return nil
	})
	if err := store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("link store unreachable: %w", err)
	}
	if app.cfg.DB.Migrate {
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		app.logger.Info("links schema applied")
	}
	app.logger.Info("postgres link store initialized")
	return store, nil
}

func setupArchive(ctx context.Context, app *App) (links.BlobStore, error) {
	switch app.cfg.Archive.Backend {
	case "gcs":
		store, closeFn, err := gcsstorage.Open(ctx, gcsstorage.Config{Bucket: app.cfg.Archive.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs archive init failed: %w", err)
		}
		app.onClose("gcs", closeFn)
		app.logger.Info("archiving screenshots to GCS", zap.String("bucket", app.cfg.Archive.Bucket))
		return store, nil
	case "local":
		store, err := localstorage.New(localstorage.Config{BaseDir: app.cfg.Archive.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local archive init failed: %w", err)
		}
		app.logger.Info("archiving screenshots locally", zap.String("path", app.cfg.Archive.Local.BaseDir))
		return store, nil
	case "badger":
		store, err := badgerstorage.Open(badgerstorage.Config{Dir: app.cfg.Archive.Badger.Dir}, app.logger.Named("badger"))
		if err != nil {
			return nil, fmt.Errorf("badger archive init failed: %w", err)
		}
		app.onClose("badger", store.Close)
		return store, nil
	case "memory":
		app.logger.Info("archiving screenshots in memory")
		return memoryStorage.NewBlobStore(), nil
	default:
		app.logger.Info("screenshot archive disabled")
		return nil, nil
	}
}

func setupPublisher(ctx context.Context, app *App) (links.Publisher, error) {
	switch {
	case app.cfg.PubSub.TopicName != "" && app.cfg.PubSub.ProjectID != "":
		pub, err := gcppublisher.Open(ctx, app.cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub init failed: %w", err)
		}
		app.onClose("pubsub", pub.Close)
		app.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", app.cfg.PubSub.ProjectID),
			zap.String("topic", app.cfg.PubSub.TopicName),
		)
		return pub, nil
	case app.cfg.NATS.URL != "":
		pub, err := natspublisher.Open(natspublisher.Config{
			URL:      app.cfg.NATS.URL,
			Stream:   app.cfg.NATS.Stream,
			Subjects: []string{app.cfg.NATS.Subject},
		}, app.logger.Named("nats"))
		if err != nil {
			return nil, fmt.Errorf("nats init failed: %w", err)
		}
		app.onClose("nats", pub.Close)
		app.logger.Info("NATS publisher initialized",
			zap.String("stream", app.cfg.NATS.Stream),
			zap.String("subject", app.cfg.NATS.Subject),
		)
		return pub, nil
	default:
		app.logger.Info("no event topic configured, link.enriched events disabled")
		return nil, nil
	}
}

func setupBrowser(ctx context.Context, app *App) error {
	session, err := newSession(browser.Config{
		Driver:            app.cfg.Browser.Driver,
		ExecPath:          app.cfg.Browser.ExecPath,
		RemoteURL:         app.cfg.Browser.RemoteURL,
		UserAgent:         app.cfg.Browser.UserAgent,
		NavigationTimeout: app.cfg.NavigationTimeout(),
		Headless:          app.cfg.Browser.Headless,
		WindowWidth:       app.cfg.Browser.WindowWidth,
		WindowHeight:      app.cfg.Browser.WindowHeight,
	}, app.logger.Named("browser"))
	if err != nil {
		return fmt.Errorf("browser init failed: %w", err)
	}
	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("browser start failed: %w", err)
	}
	app.browser = session
	app.onClose("browser", session.Close)
	return nil
}
