package app

import (
	"context"
	"time"

	"github.com/appetiteclub/apt"
	aptevents "github.com/appetiteclub/apt/events"
	"github.com/appetiteclub/apt/middleware"
	"github.com/appetiteclub/kds/internal/events"
	"github.com/appetiteclub/kds/internal/kds"
	"github.com/appetiteclub/kds/internal/mongo"
	"github.com/appetiteclub/kds/pkg"
	"github.com/appetiteclub/kds/pkg/event"
)

const (
	AppName    = "kds"
	AppVersion = "0.1.0"
)

// App encapsulates the KDS engine service
type App struct {
	config *apt.Config
	logger apt.Logger
	micro  *apt.Micro
}

// New creates a new KDS service application
func New(config *apt.Config, logger apt.Logger) (*App, error) {
	return &App{
		config: config,
		logger: logger,
	}, nil
}

// Initialize sets up all dependencies and components
func (a *App) Initialize(ctx context.Context) error {
	registry, err := kds.LoadStationRegistry(a.config, a.logger)
	if err != nil {
		return err
	}

	engine := kds.NewEngine(kds.EngineDeps{
		Router:     kds.DefaultRouter(),
		Registry:   registry,
		Thresholds: kds.LoadThresholds(a.config),
	}, a.logger)

	orderRepo := mongo.NewOrderRepo(a.config, a.logger)
	ticketRepo := mongo.NewTicketRepo(a.config, a.logger)

	natsURL, _ := a.config.GetString("nats.url")
	if natsURL == "" {
		natsURL = "nats://localhost:4222"
	}

	var publisher aptevents.Publisher
	var subscriber aptevents.Subscriber
	var kdsStream *pkg.NATSStream

	streamEnabled, _ := a.config.GetString("nats.stream.enabled")
	if streamEnabled == "true" {
		streamCfg := pkg.NATSStreamConfig{
			URL:          natsURL,
			StreamName:   "KDS_EVENTS",
			Topic:        event.KDSTopic,
			ConsumerName: "kds-engine",
			MaxAge:       24 * time.Hour,
		}
		kdsStream, err = pkg.NewNATSStream(streamCfg)
		if err != nil {
			return err
		}
		a.logger.Info("NATS stream initialized for persistent events")
		publisher = kdsStream
		subscriber, err = pkg.NewNATSSubscriber(natsURL)
		if err != nil {
			return err
		}
	} else {
		natsPublisher, err := pkg.NewNATSPublisher(natsURL)
		if err != nil {
			return err
		}
		publisher = natsPublisher

		natsSubscriber, err := pkg.NewNATSSubscriber(natsURL)
		if err != nil {
			return err
		}
		subscriber = natsSubscriber
	}

	relay := events.NewRelay(engine, publisher, subscriber, orderRepo, ticketRepo, a.logger)

	handler := kds.NewHandler(engine, a.config, a.logger)

	stack := middleware.DefaultStack(middleware.StackOptions{
		Logger:      a.logger,
		DisableCORS: true,
	})
	stack = append(stack, middleware.InternalOnly())

	lifecycles := []interface{}{orderRepo, ticketRepo}

	warmLifecycle := apt.LifecycleHooks{
		OnStart: func(ctx context.Context) error {
			if err := relay.Warm(ctx); err != nil {
				a.logger.Errorf("Failed to warm engine from persistence: %v", err)
			}
			if kdsStream != nil {
				if err := relay.Replay(ctx, kdsStream); err != nil {
					a.logger.Errorf("Failed to replay retained events: %v", err)
				}
			}
			if err := kds.ApplyDemoOrders(engine, a.config, a.logger); err != nil {
				a.logger.Errorf("Demo seeding failed (non-fatal): %v", err)
			}
			return nil
		},
	}
	lifecycles = append(lifecycles, warmLifecycle, relay)

	if kdsStream != nil {
		streamLifecycle := apt.LifecycleHooks{
			OnStop: func(context.Context) error { return kdsStream.Close() },
		}
		lifecycles = append(lifecycles, streamLifecycle)
	}

	options := []apt.Option{
		apt.WithConfig(a.config),
		apt.WithLogger(a.logger),
		apt.WithHTTPMiddleware(stack...),
		apt.WithHTTPServerModules("web.port", handler),
		apt.WithLifecycle(lifecycles...),
		apt.WithHealthChecks(AppName),
	}

	a.micro = apt.NewMicro(options...)
	return nil
}

// Run starts the application
func (a *App) Run(ctx context.Context) error {
	a.logger.Infof("Starting %s(%s)", AppName, AppVersion)
	if err := a.micro.Run(ctx); err != nil {
		return err
	}
	a.logger.Infof("%s(%s) stopped", AppName, AppVersion)
	return nil
}
