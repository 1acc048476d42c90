package container

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/travel-approval/internal/application/dispatcher"
	"github.com/garyjia/travel-approval/internal/application/port"
	"github.com/garyjia/travel-approval/internal/application/workflow"
	"github.com/garyjia/travel-approval/internal/domain/event"
	"github.com/garyjia/travel-approval/internal/infrastructure/export"
	infraLark "github.com/garyjia/travel-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/travel-approval/internal/infrastructure/metrics"
	"github.com/garyjia/travel-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/travel-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/travel-approval/pkg/database"
)

// Handler names registered on the dispatcher
const (
	workflowHandlerName = "workflow_engine"
	notifierHandlerName = "lark_notifier"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Conn           *database.DB
	TransactionMgr *sqlite.DB
}

// LarkBundle holds all Lark-related components.
type LarkBundle struct {
	Client    *infraLark.SDKClient
	Messenger infraLark.MessageSender
	Notifier  *infraLark.StatusNotifier
}

// WorkflowDeps holds the dependencies of the workflow engine.
type WorkflowDeps struct {
	Repository port.ApplicationRepository
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Recorder   workflow.Recorder
	Notifier   *infraLark.StatusNotifier
	Logger     *zap.Logger
}

// ProvideDatabase opens the database, applies pending migrations and wraps the
// connection in a transaction manager.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	conn, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	migrator := database.NewMigrator(conn, logger)
	if err := migrator.RunMigrations(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		Conn:           conn,
		TransactionMgr: sqlite.NewDB(conn.DB, logger),
	}, nil
}

// ProvideRepository creates the application repository.
func ProvideRepository(db *sqlite.DB, logger *zap.Logger) (port.ApplicationRepository, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return repository.NewApplicationRepository(db, logger), nil
}

// ProvideLarkClients creates the Lark client and status notifier. It returns
// nil when notifications are not configured.
func ProvideLarkClients(cfg *LarkConfig, logger *zap.Logger) (*LarkBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("lark config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	larkCfg := infraLark.Config{
		AppID:        cfg.AppID,
		AppSecret:    cfg.AppSecret,
		NotifyChatID: cfg.NotifyChatID,
	}
	if !larkCfg.Enabled() {
		logger.Info("Lark notifications disabled")
		return nil, nil
	}

	client := infraLark.NewSDKClient(larkCfg, logger)
	messenger := infraLark.NewMessageAPI(client, logger)

	return &LarkBundle{
		Client:    client,
		Messenger: messenger,
		Notifier:  infraLark.NewStatusNotifier(messenger, cfg.NotifyChatID, logger),
	}, nil
}

// ProvideMetrics creates the transition metrics. It returns nil when metrics
// are disabled.
func ProvideMetrics(cfg *MetricsConfig) *metrics.Metrics {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	return metrics.New()
}

// ProvideExporter creates the history exporter.
func ProvideExporter(logger *zap.Logger) port.HistoryExporter {
	return export.NewHistoryWorkbook(logger)
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(&dispatcherLoggerAdapter{logger: logger}),
	), nil
}

// ProvideWorkflowEngine creates the workflow engine and subscribes it, along
// with the notifier when present, to the dispatcher.
func ProvideWorkflowEngine(deps *WorkflowDeps) (workflow.WorkflowEngine, error) {
	if deps == nil {
		return nil, fmt.Errorf("workflow dependencies are required")
	}
	if deps.Repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	opts := []workflow.EngineOption{
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithLogger(&zapLoggerAdapter{logger: deps.Logger}),
	}
	if deps.Recorder != nil {
		opts = append(opts, workflow.WithRecorder(deps.Recorder))
	}

	engine := workflow.NewEngine(deps.Repository, deps.TxManager, opts...)

	if err := deps.Dispatcher.Subscribe(event.TypeApplicationEdited, workflowHandlerName, engine.HandleEvent); err != nil {
		return nil, fmt.Errorf("failed to subscribe workflow engine: %w", err)
	}

	if deps.Notifier != nil {
		if err := deps.Dispatcher.Subscribe(event.TypeStatusChanged, notifierHandlerName, deps.Notifier.HandleStatusChanged); err != nil {
			return nil, fmt.Errorf("failed to subscribe lark notifier: %w", err)
		}
	}

	deps.Logger.Info("Workflow engine ready",
		zap.Strings("edited_handlers", deps.Dispatcher.Handlers(event.TypeApplicationEdited)),
		zap.Strings("status_handlers", deps.Dispatcher.Handlers(event.TypeStatusChanged)))

	return engine, nil
}

// LoggerAdapter exposes logger through the key-value Logger interface shared
// by the workflow engine and the HTTP layer.
func LoggerAdapter(logger *zap.Logger) workflow.Logger {
	return &zapLoggerAdapter{logger: logger}
}

// zapLoggerAdapter adapts zap.Logger to the workflow.Logger interface.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// dispatcherLoggerAdapter adapts zap.Logger to the dispatcher.Logger interface.
type dispatcherLoggerAdapter struct {
	logger *zap.Logger
}

func (a *dispatcherLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *dispatcherLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}

// Verify interface compliance
var (
	_ workflow.Logger   = (*zapLoggerAdapter)(nil)
	_ dispatcher.Logger = (*dispatcherLoggerAdapter)(nil)
	_ workflow.Recorder = (*metrics.Metrics)(nil)
)
