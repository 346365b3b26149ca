package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"roadstream/internal/config"
	"roadstream/internal/handler"
	"roadstream/internal/logger"
	"roadstream/internal/middleware"
	"roadstream/internal/monitor"
	"roadstream/internal/repository/sqlite"
	"roadstream/internal/route"
	"roadstream/internal/service/ai"
	"roadstream/internal/service/alert"
	"roadstream/internal/service/lane"
	"roadstream/internal/service/storage"
	"roadstream/internal/service/stream"
	"roadstream/internal/service/websocket"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config  *config.Config
	logger  *logger.Logger
	db      *sqlite.DB
	model   *ai.Model
	hub     *websocket.HubService
	mqtt    *alert.MQTTNotifier
	store   *alert.StoreNotifier
	metrics *monitor.Metrics
	janitor *storage.Janitor
	handler http.Handler
}

// NewApp loads configuration and builds every service. The detection model
// is optional: without it pothole feeds answer 503 and lane feeds still work.
func NewApp() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log, err := logger.NewLogger(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{config: cfg, logger: log}
	if err := a.build(); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *App) build() error {
	cfg, log := a.config, a.logger

	db, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return err
	}
	a.db = db
	videos := sqlite.NewVideoRepository(db)
	alerts := sqlite.NewAlertRepository(db)
	uploads := storage.NewUploads(cfg, videos, alerts, log)

	a.hub = websocket.NewHubService(log)
	a.store = alert.NewStoreNotifier(alerts, log)
	notifier := alert.Multi{a.store, alert.NewHubNotifier(a.hub, log)}

	if sound, err := alert.NewSoundNotifier(cfg.Alert.SoundPath, cfg.Alert.Player, log); err != nil {
		log.Warning("Alert sound disabled: %v", err)
	} else {
		notifier = append(notifier, sound)
	}
	if cfg.Alert.Webhook != "" {
		notifier = append(notifier, alert.NewWebhookNotifier(cfg.Alert.Webhook, log))
	}
	if cfg.Alert.MQTT != "" {
		a.mqtt = alert.NewMQTTNotifier(cfg.Alert.MQTT, cfg.Alert.MQTTTopic, log)
		notifier = append(notifier, a.mqtt)
	}

	factory := &stream.Factory{
		Lane:       lane.New(lane.DefaultParams()),
		Notifier:   notifier,
		AlertLabel: cfg.Alert.Label,
		Encoder:    stream.JPEGEncoder{Quality: cfg.JPEGQuality},
		WorkSize:   image.Pt(cfg.Detection.WorkWidth, cfg.Detection.WorkHeight),
		Logger:     log.Zap(),
	}

	model, err := ai.LoadModel(cfg.Model, log)
	if err != nil {
		log.Warning("Pothole detection unavailable: %v", err)
	} else {
		a.model = model
		factory.Detector = ai.NewEngine(model, cfg.Detection)
		factory.Annotator = ai.NewRenderer()
	}

	var metricsHandler http.Handler
	var uploadCounter handler.UploadCounter
	if cfg.MetricsEnabled {
		a.metrics = monitor.NewMetrics(log)
		a.metrics.WatchHub(a.hub)
		if a.mqtt != nil {
			a.metrics.WatchMQTT(a.mqtt)
		}
		factory.Observer = a.metrics
		metricsHandler = a.metrics.Handler()
		uploadCounter = a.metrics
	}

	if cfg.UploadRetentionHours > 0 {
		retention := time.Duration(cfg.UploadRetentionHours) * time.Hour
		if a.janitor, err = storage.NewJanitor(cfg.RetentionSchedule, retention, uploads, log); err != nil {
			return err
		}
	}

	a.handler = route.SetupRoutes(route.Deps{
		Config:  cfg,
		Logger:  log,
		Auth:    middleware.NewAuth(cfg.Password),
		Uploads: uploads,
		Videos:  videos,
		Alerts:  alerts,
		Streams: factory,
		Hub:     a.hub,
		Counter: uploadCounter,
		Metrics: metricsHandler,
	})
	return nil
}

// Run serves HTTP until SIGINT or SIGTERM, then shuts down gracefully and
// releases every resource.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer a.close()

	go a.hub.Run(ctx)
	if a.metrics != nil {
		go a.metrics.Run(ctx, 5*time.Second)
	}
	if a.janitor != nil {
		a.janitor.Start()
	}
	if a.mqtt != nil {
		if err := a.mqtt.Connect(ctx); err != nil {
			a.logger.Warning("MQTT alerts unavailable: %v", err)
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.config.Port),
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		// feeds end with the process context
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	a.logger.Info("Road stream server listening on http://localhost:%d", a.config.Port)
	a.logger.Info("Uploads: %s, catalogue: %s, model loaded: %t", a.config.UploadDir, a.config.DBPath, a.model != nil)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("HTTP shutdown: %v", err)
	}
	return nil
}

// close releases resources in reverse order of creation.
func (a *App) close() {
	if a.janitor != nil {
		a.janitor.Stop()
	}
	if a.store != nil {
		a.store.Wait()
	}
	if a.mqtt != nil {
		a.mqtt.Close()
	}
	if a.model != nil {
		a.model.Close()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("Closing database: %v", err)
		}
	}
	a.logger.Close()
}
