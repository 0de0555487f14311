package bootstrap

import (
	"context"
	"fmt"

	"dispatch-server/internal/auth"
	"dispatch-server/internal/config"
	"dispatch-server/internal/control"
	"dispatch-server/internal/dispatch"
	"dispatch-server/internal/gateway"
	"dispatch-server/internal/maturation"
	"dispatch-server/internal/notify"
	"dispatch-server/internal/observability"
	"dispatch-server/internal/progress"
	"dispatch-server/internal/scheduler"
	"dispatch-server/internal/store"
	"dispatch-server/internal/variation"

	campaignHandler "dispatch-server/internal/campaign/handler"
	campaignProcessor "dispatch-server/internal/campaign/processor"
	"dispatch-server/internal/clients/evolution"
	"dispatch-server/internal/clients/googleai"
	"dispatch-server/internal/clients/mail"
	"dispatch-server/internal/clients/openai"
	redisclient "dispatch-server/internal/clients/redis"
	"dispatch-server/internal/clients/telegram"
	"dispatch-server/internal/clients/twiliosms"
	"dispatch-server/internal/clients/waha"
	instanceHandler "dispatch-server/internal/instance/handler"
	scheduleHandler "dispatch-server/internal/scheduler/handler"
)

// Dependencies holds all initialized application dependencies
type Dependencies struct {
	// Core
	Store  store.Store
	Logger *observability.Logger

	// Handlers
	AuthMiddleware  *auth.Middleware
	CampaignHandler campaignHandler.Handler
	ScheduleHandler scheduleHandler.Handler
	InstanceHandler instanceHandler.Handler

	// Background workers
	DispatchEngine   *dispatch.Engine
	MaturationEngine *maturation.Engine
	ScheduleManager  *scheduler.Manager

	// Redis (for cleanup, nil when disabled)
	RedisClient *redisclient.Client
}

// Initialize sets up all application dependencies
func Initialize(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Logger: logger,
	}

	// Initialize database store
	connectionString := cfg.Database.ConnectionString()
	var err error
	deps.Store, err = store.New(connectionString, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Optional Redis backend for progress and control state
	deps.RedisClient, err = redisclient.NewClient(cfg.Redis, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	var progressStore progress.Store
	var controlSignal control.Signal
	if deps.RedisClient.IsEnabled() {
		progressStore = progress.NewRedisStore(deps.RedisClient)
		controlSignal = control.NewRedisSignal(deps.RedisClient)
		logger.Info(ctx, "progress and control state backed by redis")
	} else {
		progressStore = progress.NewMemoryStore()
		controlSignal = control.NewMemorySignal()
		logger.Info(ctx, "progress and control state kept in memory")
	}

	// Gateway provider clients
	senders := map[string]gateway.Sender{
		store.ProviderEvolution: evolution.NewClient(cfg.Dispatch.GatewayRequestTimeout, logger),
		store.ProviderWAHA:      waha.NewClient(cfg.Dispatch.GatewayRequestTimeout, logger),
		store.ProviderTelegram:  telegram.NewClient(cfg.Dispatch.GatewayRequestTimeout, logger),
	}
	if cfg.Services.TwilioAccountSID != "" {
		senders[store.ProviderTwilio] = twiliosms.NewClient(
			cfg.Services.TwilioAccountSID,
			cfg.Services.TwilioAuthToken,
			cfg.Services.TwilioFromNumber,
			logger,
		)
	}
	registry := gateway.NewRegistry(senders)

	// Message variation generator
	var variants variation.Generator
	switch cfg.Services.VariationProvider {
	case "openai":
		variants = openai.NewClient(cfg.Services.OpenAIAPIKey, logger)
	case "googleai":
		variants = googleai.NewClient(cfg.Services.GoogleAIAPIKey, logger)
	default:
		variants = variation.Static{}
	}

	// Completion notifications (optional)
	var notifier dispatch.Notifier
	if cfg.Services.ResendAPIKey != "" {
		mailClient, err := mail.NewResendClient(cfg.Services.ResendAPIKey, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create resend client: %w", err)
		}
		notifier = notify.New(&deps.Store, mailClient, cfg.Services.DefaultEmailSender, cfg.Services.WebAppURI, logger)
	}

	// Dispatch engine and campaign processor
	typing := dispatch.NewTypingSimulator(registry, logger)
	retry := dispatch.RetryPolicy{
		MaxRetries: cfg.Dispatch.MaxRetries,
		BaseDelay:  cfg.Dispatch.RetryBaseDelay,
		MaxDelay:   cfg.Dispatch.RetryMaxDelay,
	}
	deps.DispatchEngine = dispatch.NewEngine(
		&deps.Store,
		registry,
		variants,
		progressStore,
		controlSignal,
		notifier,
		typing,
		dispatch.EngineConfig{
			Retry:                 retry,
			GatewayRequestTimeout: cfg.Dispatch.GatewayRequestTimeout,
			InstanceRetryDelay:    cfg.Scheduler.InstanceRetryDelay,
		},
		logger,
	)

	cProcessor := campaignProcessor.New(
		&deps.Store,
		deps.DispatchEngine,
		controlSignal,
		progressStore,
		cfg.Dispatch.DefaultLotSize,
		logger,
	)

	// Maturation engine and schedule manager
	deps.MaturationEngine = maturation.NewEngine(
		&deps.Store,
		registry,
		typing,
		retry,
		controlSignal,
		progressStore,
		cfg.Dispatch.GatewayRequestTimeout,
		logger,
	)
	deps.ScheduleManager = scheduler.NewManager(
		&deps.Store,
		cProcessor,
		deps.MaturationEngine,
		logger,
		cfg.Scheduler.ScanInterval,
	)
	sProcessor := scheduler.NewProcessor(&deps.Store, controlSignal, logger)

	// HTTP layer
	deps.AuthMiddleware = auth.NewMiddleware(cfg.Auth, logger)
	deps.CampaignHandler = campaignHandler.New(cProcessor, logger)
	deps.ScheduleHandler = scheduleHandler.New(sProcessor, logger)
	deps.InstanceHandler = instanceHandler.New(&deps.Store, logger)

	return deps, nil
}

// Cleanup releases held resources in reverse dependency order
func (d *Dependencies) Cleanup() {
	if d.RedisClient != nil {
		if err := d.RedisClient.Close(); err != nil {
			d.Logger.Error(context.Background(), "failed to close redis client", err)
		}
	}
	if err := d.Store.Close(); err != nil {
		d.Logger.Error(context.Background(), "failed to close database", err)
	}
}
