package cli

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/aretw0/weft"
	"github.com/aretw0/weft/internal/config"
	"github.com/aretw0/weft/internal/demo"
	"github.com/aretw0/weft/internal/logging"
	"github.com/aretw0/weft/pkg/adapters/process"
	"github.com/aretw0/weft/pkg/domain"
	"github.com/aretw0/weft/pkg/observability"
	"github.com/aretw0/weft/pkg/registry"
)

// App is an engine wired from configuration, ready to serve one demo graph.
type App struct {
	Engine *weft.Engine
	Demo   demo.Demo
	Config config.Config
	Logger *slog.Logger

	backend *config.Backend
}

// NewApp opens the configured store and builds an engine for the demo
// called name. Logs go to logOut. extra hooks run after the built-in
// logging and metrics hooks.
func NewApp(cfg config.Config, name string, logOut io.Writer, extra ...domain.LifecycleHooks) (*App, error) {
	logger, err := logging.Parse(cfg.Log.Level, cfg.Log.Format, logOut)
	if err != nil {
		return nil, err
	}

	toolbox, err := loadToolbox(cfg.Tools)
	if err != nil {
		return nil, err
	}
	d, err := demo.Get(name, demo.WithToolbox(toolbox))
	if err != nil {
		return nil, err
	}

	backend, err := cfg.Store.Open(logger)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}

	hooks := append([]domain.LifecycleHooks{
		observability.LoggingHooks(logger),
		observability.Default().Hooks(),
	}, extra...)

	engine := weft.New(d.Graph,
		weft.WithLogger(logger),
		weft.WithSessions(backend.Sessions),
		weft.WithStepLimit(stepLimit(cfg, d)),
		weft.WithNodeTimeout(cfg.Engine.NodeTimeout),
		weft.WithMaxConcurrency(cfg.Engine.MaxConcurrency),
		weft.WithLifecycleHooks(domain.CombineHooks(hooks...)),
	)

	logger.Debug("engine ready", "graph", d.Graph.Name(), "store", cfg.Store.Backend)
	return &App{Engine: engine, Demo: d, Config: cfg, Logger: logger, backend: backend}, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.backend.Close()
}

// loadToolbox extends the demo toolbox with the commands of the tools file.
func loadToolbox(cfg config.ToolsConfig) (*registry.Registry, error) {
	reg := demo.Toolbox()
	if cfg.File == "" {
		return reg, nil
	}
	tools, err := process.LoadTools(cfg.File)
	if err != nil {
		return nil, err
	}
	process.NewRunner(process.WithTools(tools), process.WithBaseDir(cfg.Dir)).Install(reg)
	return reg, nil
}

// stepLimit picks the tighter of the configured ceiling and the demo's own.
func stepLimit(cfg config.Config, d demo.Demo) int {
	limit := cfg.Engine.StepLimit
	if d.StepLimit > 0 && (limit == 0 || d.StepLimit < limit) {
		limit = d.StepLimit
	}
	return limit
}
