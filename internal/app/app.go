package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"
	"go.uber.org/zap"

	"flowedit/internal/canvas"
	"flowedit/internal/config"
	"flowedit/internal/service"
	"flowedit/internal/storage"
)

// App is the main Wails application struct.
// All exported methods are available as Wails bindings.
type App struct {
	ctx    context.Context
	cfg    *config.Config
	log    *zap.Logger
	events func(ctx context.Context, event string, data ...interface{})

	stores      *stores
	approvals   *storage.ApprovalStore
	metrics     *service.Metrics
	bridge      *service.AsyncBridge
	provider    *canvas.Provider
	solutions   *service.SolutionService
	settings    *service.SettingsService
	maintenance *service.Maintenance
	importer    *service.ImportWatcher
	watcher     *sceneWatcher
	metricsSrv  *http.Server

	sceneMu      sync.Mutex
	lastVersion  uint64
	lastSolution string
}

func New(cfg *config.Config, log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}
	return &App{cfg: cfg, log: log, events: wailsRuntime.EventsEmit}
}

// Emit implements service.EventEmitter on the Wails runtime.
func (a *App) Emit(_ context.Context, event string, data any) {
	if a.ctx == nil || a.events == nil {
		return
	}
	a.events(a.ctx, event, data)
}

// Startup is called when the app starts.
func (a *App) Startup(ctx context.Context) {
	a.ctx = ctx

	st, err := openStores(ctx, a.cfg)
	if err != nil {
		wailsRuntime.LogFatalf(ctx, "Failed to open storage: %v", err)
		return
	}
	a.stores = st
	a.approvals = st.approvals()
	a.settings = service.NewSettingsService(st.settings(), a.log)

	a.metrics = service.NewMetrics()
	a.bridge = service.NewAsyncBridge(st.solutions, a.cfg.Bridge.Service(), a.metrics, a, a.log)
	a.provider = canvas.NewProvider()
	a.solutions = service.NewSolutionService(service.SolutionOptions{
		Store:    st.solutions,
		Bridge:   a.bridge,
		Metrics:  a.metrics,
		Emitter:  a,
		Provider: a.provider,
		Style:    a.cfg.Style,
		Log:      a.log,
	})

	// One guard so a sweep never runs while a solution is being imported.
	jobs := service.NewJobGuard()
	if a.cfg.Maintenance.Enabled {
		a.maintenance = service.NewMaintenance(st.solutions, a.cfg.Maintenance.Schedule, a, a.log)
		a.maintenance.SetGuard(jobs)
		if err := a.maintenance.Start(ctx); err != nil {
			wailsRuntime.LogErrorf(ctx, "Failed to schedule maintenance: %v", err)
			a.maintenance = nil
		}
	}
	if a.cfg.Import.Enabled {
		a.importer = service.NewImportWatcher(a.cfg.Import.Dir, a.solutions, a.log)
		a.importer.SetGuard(jobs)
		if err := a.importer.Start(ctx); err != nil {
			wailsRuntime.LogErrorf(ctx, "Failed to watch import dir: %v", err)
			a.importer = nil
		}
	}
	if a.cfg.MetricsAddr != "" {
		a.serveMetrics()
	}

	size := a.settings.LoadWindowSize(ctx)
	wailsRuntime.WindowSetSize(ctx, size.Width, size.Height)

	if last := a.settings.LastSolution(ctx); last != "" {
		if _, err := a.solutions.Open(ctx, last); err != nil {
			a.log.Warn("reopen last solution", zap.String("solution", last), zap.Error(err))
		}
	}

	a.watcher = newSceneWatcher(ctx, a)
	a.watcher.Start()
}

// Shutdown is called when the app is closing.
func (a *App) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if a.watcher != nil {
		a.watcher.Stop()
	}
	if w, h := wailsRuntime.WindowGetSize(a.ctx); a.settings != nil && w > 0 && h > 0 {
		if err := a.settings.SaveWindowSize(ctx, w, h); err != nil {
			a.log.Warn("save window size", zap.Error(err))
		}
	}
	if a.importer != nil {
		a.importer.Stop(ctx)
	}
	if a.maintenance != nil {
		a.maintenance.Stop(ctx)
	}
	if a.metricsSrv != nil {
		_ = a.metricsSrv.Shutdown(ctx)
	}
	if a.solutions != nil {
		if err := a.solutions.Close(ctx); err != nil {
			a.log.Error("drain persistence", zap.Error(err))
		}
	}
	if a.stores != nil {
		if err := a.stores.close(ctx); err != nil {
			a.log.Error("close storage", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}

func (a *App) serveMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	a.metricsSrv = &http.Server{Addr: a.cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server", zap.Error(err))
		}
	}()
	a.log.Info("serving metrics", zap.String("addr", a.cfg.MetricsAddr))
}
