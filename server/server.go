package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"signage-server/cache"
	"signage-server/confs"
	"signage-server/db"
	"signage-server/handlers"
	httpHandler "signage-server/handlers/http"
	"signage-server/repositories"
	"signage-server/services"
	"signage-server/storage"
	"signage-server/transport"
	"signage-server/usecases"
	"signage-server/utils"
	"signage-server/ws"
)

type Server struct {
	app    *gin.Engine
	db     db.Database
	cfg    *confs.Config
	logger zerolog.Logger

	pool       *utils.WorkerPool
	dispatcher *services.Dispatcher
	tracker    *services.Tracker
	janitor    *services.Janitor
	mqtt       *transport.MQTT
	sink       transport.Sink
	registry   *usecases.DeviceUseCase
	presence   *handlers.Presence
	httpServer *http.Server
}

// NewServer wires the engine and registers every route.
func NewServer(cfg *confs.Config, database db.Database, logger zerolog.Logger) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		app:    gin.New(),
		db:     database,
		cfg:    cfg,
		logger: logger,
	}
	s.app.Use(gin.Recovery(), handlers.RequestLogger(logger))

	// Setup CORS middleware
	corsCfg := cors.DefaultConfig()
	if len(cfg.HTTP.AllowOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.HTTP.AllowOrigins
	}
	corsCfg.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Viewer-ID"}
	s.app.Use(cors.New(corsCfg))

	// Initialize repositories
	deviceRepo := repositories.NewDevicePgRepository(database)
	groupRepo := repositories.NewGroupPgRepository(database)
	commandRepo := repositories.NewCommandPgRepository(database)
	pushRepo := repositories.NewPushJobPgRepository(database)

	// Transports, most direct first
	manager := ws.NewManager()
	mailbox := transport.NewMailbox(cfg.Mailbox.PollGrace)
	chain := []transport.Transport{transport.NewWebSocket(manager)}
	if cfg.MQTT.Broker != "" {
		client, err := transport.DialMQTT(cfg.MQTT.Broker, cfg.MQTT.ClientID, cfg.MQTT.Username, cfg.MQTT.Password)
		if err != nil {
			return nil, err
		}
		s.mqtt = transport.NewMQTT(client, cfg.MQTT.TopicPrefix, byte(cfg.MQTT.QOS), logger.With().Str("component", "mqtt").Logger())
		chain = append(chain, s.mqtt)
	}
	chain = append(chain, mailbox)
	deliverer := transport.NewChain(chain...)

	locator, err := newLocator(cfg)
	if err != nil {
		return nil, err
	}

	// Engine
	s.pool = utils.NewWorkerPool(cfg.Dispatch.Workers, cfg.Dispatch.QueueSize)
	s.dispatcher = services.NewDispatcher(commandRepo, deliverer, s.pool, services.DispatcherConfig{
		AttemptTimeout:  cfg.Dispatch.AttemptTimeout,
		DeliveryTimeout: cfg.Dispatch.DeliveryTimeout,
		SweepInterval:   cfg.Dispatch.SweepInterval,
	}, logger.With().Str("component", "dispatcher").Logger())
	s.tracker = services.NewTracker(pushRepo, deliverer, locator, s.pool, services.TrackerConfig{
		AttemptTimeout:  cfg.Dispatch.AttemptTimeout,
		ProgressTimeout: cfg.Push.ProgressTimeout,
		SweepInterval:   cfg.Dispatch.SweepInterval,
	}, logger.With().Str("component", "tracker").Logger())

	viewers := cache.NewViewerTable(cfg.Status.GraceWindow)
	aggregator := services.NewStatusAggregator(commandRepo, pushRepo, deviceRepo, viewers, services.StatusConfig{
		Retention:  cfg.Status.Retention,
		StaleAfter: cfg.Dispatch.StaleAfter,
	})
	s.janitor = services.NewJanitor(commandRepo, pushRepo, viewers, services.JanitorConfig{
		Interval:  cfg.Status.JanitorInterval,
		Retention: cfg.Status.Retention,
		ViewerTTL: cfg.Status.ViewerTTL,
	}, logger.With().Str("component", "janitor").Logger())

	// Initialize use cases
	s.registry = usecases.NewDeviceUseCase(deviceRepo, groupRepo, logger.With().Str("component", "registry").Logger())
	s.registry.OnOnline(s.dispatcher)
	s.registry.OnOnline(s.tracker)
	resolver := usecases.NewResolver(deviceRepo, groupRepo)
	commandsUseCase := usecases.NewCommandsUseCase(commandRepo, resolver, s.dispatcher)
	pushUseCase := usecases.NewPushUseCase(pushRepo, resolver, s.tracker)
	s.sink = handlers.NewEventSink(s.dispatcher, s.tracker, s.registry)
	s.presence = handlers.NewPresence(s.registry, deliverer)

	// Initialize handlers
	deviceHandler := httpHandler.NewDeviceHandler(s.registry)
	groupHandler := httpHandler.NewGroupHandler(s.registry)
	cmdHandler := httpHandler.NewCommandHandler(commandsUseCase, s.dispatcher, mailbox, s.registry, s.dispatcher, s.tracker)
	pushHandler := httpHandler.NewPushHandler(pushUseCase, s.tracker)
	statusHandler := httpHandler.NewStatusHandler(aggregator)
	wsHandler := handlers.NewWSHandler(manager, s.presence, s.sink, logger.With().Str("component", "ws").Logger())

	// Setup healthcheck route
	s.app.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "OK",
			"connected": len(manager.List()),
			"viewers":   viewers.Stats(),
		})
	})

	// Setup API routes
	api := s.app.Group("/api/v1")
	{
		devices := api.Group("/devices")
		{
			devices.POST("", deviceHandler.CreateDevice)
			devices.GET("", deviceHandler.GetAllDevices)
			devices.GET("/connected", wsHandler.GetConnectedDevices)
			devices.GET("/:id", deviceHandler.GetDevice)
			devices.GET("/:id/commands", cmdHandler.GetDeviceCommands)
			devices.PUT("/:id/group", deviceHandler.AssignGroup)
			devices.DELETE("/:id", deviceHandler.DeleteDevice)
		}

		groups := api.Group("/groups")
		{
			groups.POST("", groupHandler.CreateGroup)
			groups.GET("", groupHandler.GetAllGroups)
			groups.GET("/:id", groupHandler.GetGroup)
			groups.GET("/:id/devices", groupHandler.GetGroupDevices)
			groups.DELETE("/:id", groupHandler.DeleteGroup)
		}

		api.POST("/commands", cmdHandler.Submit)
		api.GET("/commands/poll", cmdHandler.Poll) // Devices without a socket fetch envelopes
		api.GET("/commands/:id", cmdHandler.GetCommand)
		api.POST("/command-responses", cmdHandler.Ack) // Devices acknowledge

		api.POST("/pushes", pushHandler.Submit)
		api.GET("/pushes/:id", pushHandler.GetPush)
		api.GET("/push-jobs/:id", pushHandler.GetJob)
		api.POST("/push-jobs/:id/progress", pushHandler.Progress)
		api.POST("/push-responses", pushHandler.Ack)

		status := api.Group("/status")
		{
			status.GET("", statusHandler.ListActive)
			status.POST("/dismiss", statusHandler.Dismiss)
			status.POST("/dismiss-all", statusHandler.DismissAll)
		}
	}

	s.app.GET("/ws", wsHandler.HandleDeviceWS)

	return s, nil
}

func newLocator(cfg *confs.Config) (storage.ContentLocator, error) {
	if cfg.Storage.Endpoint == "" {
		return storage.NewStaticLocator(cfg.Storage.BaseURL), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return storage.NewObjectStore(ctx, cfg.Storage.Endpoint, cfg.Storage.AccessKey, cfg.Storage.SecretKey,
		cfg.Storage.Bucket, cfg.Storage.UseSSL, cfg.Storage.URLExpiry)
}

// Start runs the background services and serves HTTP until Shutdown.
func (s *Server) Start() error {
	if s.mqtt != nil {
		if err := s.mqtt.Start(s.sink, s.presence); err != nil {
			return err
		}
	}
	for _, svc := range []interface{ Start() error }{s.dispatcher, s.tracker, s.janitor} {
		if err := svc.Start(); err != nil {
			return err
		}
	}

	s.httpServer = &http.Server{Addr: s.cfg.HTTP.Addr, Handler: s.app}
	s.logger.Info().Str("addr", s.cfg.HTTP.Addr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, then the services, then the worker pool.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	for _, svc := range []interface{ Stop() error }{s.janitor, s.tracker, s.dispatcher} {
		if stopErr := svc.Stop(); stopErr != nil {
			s.logger.Warn().Err(stopErr).Msg("Service stop")
		}
	}
	if s.mqtt != nil {
		s.mqtt.Stop()
	}
	s.pool.Shutdown()
	if closeErr := s.db.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
