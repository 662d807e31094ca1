// Package internal provides the App struct that wires all components of the
// staffdesk client together and initializes the CLI layer.
package internal

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/valter-silva-au/staffdesk/internal/cli"
	"github.com/valter-silva-au/staffdesk/internal/core"
	"github.com/valter-silva-au/staffdesk/internal/integration"
	"github.com/valter-silva-au/staffdesk/internal/observability"
	"github.com/valter-silva-au/staffdesk/internal/storage"
	"github.com/valter-silva-au/staffdesk/pkg/models"
)

// EventLogFileName is the JSONL event log kept in the base path.
const EventLogFileName = ".staffdesk_events.jsonl"

// redisConnectTimeout bounds the initial Redis ping.
const redisConnectTimeout = 5 * time.Second

// App holds all service dependencies of the staffdesk client.
type App struct {
	BasePath string

	// Configuration
	ConfigMgr core.ConfigurationManager
	Config    *models.GlobalConfig
	Logger    *observability.Logger

	// Integration services
	CRM *integration.CRMClient

	// Storage layer
	Layouts storage.LayoutStore

	// Core services
	Records   *core.RecordLoader
	Resolver  core.ReferenceResolver
	Workflows *core.Workflows

	// Observability
	EventLog    observability.EventLog
	MetricsCalc observability.MetricsCalculator
}

// NewApp creates and wires all components of the staffdesk client.
// basePath is the directory holding .staffdesk.yaml, the layout file and the
// event log.
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}

	// --- Configuration ---
	app.ConfigMgr = core.NewConfigurationManager(basePath)
	globalCfg, cfgErr := app.ConfigMgr.LoadGlobalConfig()
	if cfgErr != nil {
		// Use defaults if the config file is unreadable.
		globalCfg = core.DefaultGlobalConfig()
	}
	app.Config = globalCfg

	logger, err := observability.NewLogger(globalCfg.Log.Mode, globalCfg.Log.Level)
	if err != nil {
		logger = observability.NopLogger()
	}
	app.Logger = logger
	if cfgErr != nil {
		logger.Warn("config load failed, using defaults", "path", filepath.Join(basePath, core.ConfigFileName), "error", cfgErr)
	} else if err := app.ConfigMgr.ValidateConfig(globalCfg); err != nil {
		logger.Warn("invalid configuration", "error", err)
	}

	// --- Integration services ---
	tokens := integration.NewStaticToken(globalCfg.API.Token)
	app.CRM, err = integration.NewCRMClient(integration.CRMClientConfig{
		BaseURL: globalCfg.API.BaseURL,
		Timeout: globalCfg.API.Timeout,
		Tokens:  tokens,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating CRM client: %w", err)
	}

	// --- Storage layer ---
	app.Layouts = newLayoutStore(basePath, globalCfg.Store, logger)

	// --- Observability ---
	eventLogPath := filepath.Join(basePath, EventLogFileName)
	app.EventLog, err = observability.NewJSONLEventLog(eventLogPath)
	if err != nil {
		// Non-fatal: disable observability if log can't be created.
		logger.Warn("event log disabled", "path", eventLogPath, "error", err)
		app.EventLog = nil
	}
	if app.EventLog != nil {
		app.MetricsCalc = observability.NewMetricsCalculator(app.EventLog)
	}

	// --- Core services ---
	app.Records = core.NewRecordLoader(app.CRM, logger, app.EventLog)
	app.Resolver = core.NewReferenceResolver(app.CRM, core.ResolverOptions{
		Limit:    globalCfg.Search.Limit,
		MinChars: globalCfg.Search.MinChars,
		Logger:   logger,
		Events:   app.EventLog,
	})
	app.Workflows = core.NewWorkflows(app.CRM, logger, app.EventLog)

	// --- Wire CLI package-level variables ---
	cli.BasePath = basePath
	cli.Config = globalCfg
	cli.Logger = logger
	cli.Account = tokens.Subject()

	cli.Records = app.Records
	cli.Sources = app.CRM
	cli.Resolver = app.Resolver
	cli.Notes = app.CRM
	cli.Headers = app.CRM
	cli.Layouts = app.Layouts
	cli.Users = app.CRM
	cli.Workflows = app.Workflows

	cli.EventLog = app.EventLog
	cli.MetricsCalc = app.MetricsCalc

	return app, nil
}

// newLayoutStore opens the configured layout backend. A Redis store that
// cannot be reached falls back to the local layout file.
func newLayoutStore(basePath string, cfg models.StoreConfig, logger *observability.Logger) storage.LayoutStore {
	if cfg.Backend != models.StoreBackendRedis {
		return storage.NewFileLayoutStore(basePath)
	}
	ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
	defer cancel()
	store, err := storage.NewRedisLayoutStore(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn("redis layout store unavailable, using layout file", "error", err)
		return storage.NewFileLayoutStore(basePath)
	}
	return store
}

// Close releases resources held by the App, such as the event log file handle
// and the Redis connection pool. It is safe to call Close on a partially
// wired App.
func (a *App) Close() error {
	var firstErr error
	if c, ok := a.Layouts.(io.Closer); ok {
		if err := c.Close(); err != nil {
			firstErr = err
		}
	}
	if a.EventLog != nil {
		if err := a.EventLog.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.Logger != nil {
		a.Logger.Sync()
	}
	return firstErr
}

// ResolveBasePath determines the staffdesk data directory. It checks the
// STAFFDESK_HOME env var, then walks up from the working directory looking for
// .staffdesk.yaml, then falls back to the working directory.
func ResolveBasePath() string {
	if home := os.Getenv("STAFFDESK_HOME"); home != "" {
		return home
	}
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, core.ConfigFileName)); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	cwd, _ := os.Getwd()
	return cwd
}
