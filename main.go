package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	alertapp "watertap/internal/alerts/application"
	alerts "watertap/internal/alerts/domain"
	alertmemory "watertap/internal/alerts/infrastructure/memory"
	alertpostgres "watertap/internal/alerts/infrastructure/postgres"
	alerthttp "watertap/internal/alerts/interfaces/http"
	alertnotify "watertap/internal/alerts/notify"
	anomalyapp "watertap/internal/anomaly/application"
	"watertap/internal/anomaly/infrastructure/llm"
	"watertap/internal/audit"
	"watertap/internal/auth"
	"watertap/internal/config"
	"watertap/internal/logging"
	"watertap/internal/observability/metrics"
	reportapp "watertap/internal/reports/application"
	reporthttp "watertap/internal/reports/interfaces/http"
	settingsapp "watertap/internal/settings/application"
	settings "watertap/internal/settings/domain"
	settingsmemory "watertap/internal/settings/infrastructure/memory"
	settingspostgres "watertap/internal/settings/infrastructure/postgres"
	settingshttp "watertap/internal/settings/interfaces/http"
	telemetryapp "watertap/internal/telemetry/application"
	telemetry "watertap/internal/telemetry/domain"
	telemetrymemory "watertap/internal/telemetry/infrastructure/memory"
	telemetrypostgres "watertap/internal/telemetry/infrastructure/postgres"
	telemetryredis "watertap/internal/telemetry/infrastructure/redis"
	telemetryhttp "watertap/internal/telemetry/interfaces/http"
	telemetrymqtt "watertap/internal/telemetry/interfaces/mqtt"
	"watertap/internal/telemetry/live"
)

func main() {
	logger, err := logging.NewLogger()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config error", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("pgx", cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("db open error", zap.Error(err))
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			logger.Fatal("db ping error", zap.Error(err))
		}
	} else {
		logger.Warn("DATABASE_URL not set; using in-memory stores")
	}
	metrics.Init(db, logger)

	stores := buildStores(db)
	var auditLogger audit.Logger = audit.NewZapLogger(logger)
	if db != nil {
		auditLogger = audit.NewRepository(db)
	}

	telemetryService, err := telemetryapp.NewService(stores.seriesReader, stores.seriesWriter, stores.exclusions,
		telemetryapp.WithLogger(logger.Named("telemetry")))
	if err != nil {
		logger.Fatal("telemetry service error", zap.Error(err))
	}

	settingsService, err := settingsapp.NewService(stores.settings, cfg.Location(), logger.Named("settings"))
	if err != nil {
		logger.Fatal("settings service error", zap.Error(err))
	}

	notifier, closeNotifiers := buildNotifiers(cfg, stores.alerts, logger.Named("notify"))
	defer closeNotifiers()

	hub, err := alertapp.NewHub(stores.alerts,
		alertapp.WithNotifier(notifier),
		alertapp.WithLogger(logger.Named("alerts")),
		alertapp.WithSubscriberBuffer(cfg.Alerts.SubscriberBuffer),
	)
	if err != nil {
		logger.Fatal("alert hub error", zap.Error(err))
	}
	go hub.StartAutoResolve(ctx, cfg.Alerts.AutoResolveInterval, cfg.Alerts.AutoResolveAfter)

	if cfg.AI.APIKey != "" {
		classifier, err := llm.NewClient(cfg.AI.APIKey, llm.WithBaseURL(cfg.AI.BaseURL), llm.WithModel(cfg.AI.Model))
		if err != nil {
			logger.Fatal("classifier client error", zap.Error(err))
		}
		detector, err := anomalyapp.NewDetector(settingsService, telemetryService, classifier, hub, cfg.Rules,
			anomalyapp.WithRecentWindow(cfg.AI.RecentWindow),
			anomalyapp.WithClassifyTimeout(cfg.AI.ClassifyTimeout),
			anomalyapp.WithLogger(logger.Named("anomaly")),
		)
		if err != nil {
			logger.Fatal("anomaly detector error", zap.Error(err))
		}
		go detector.Start(ctx, cfg.AI.Interval, cfg.AI.InitialDelay)
	} else {
		logger.Warn("AI_API_KEY not set; anomaly detection disabled")
	}

	feedOpts := []live.Option{
		live.WithWindow(cfg.Live.Window),
		live.WithInterval(cfg.Live.Interval),
		live.WithLogger(logger.Named("live")),
	}
	if cfg.Redis.Addr != "" {
		client, err := telemetryredis.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("redis unavailable; live cache disabled", zap.Error(err))
		} else {
			defer client.Close()
			cache, err := telemetryredis.NewLiveCache(client, cfg.Redis.Key, cfg.Redis.TTL)
			if err != nil {
				logger.Fatal("live cache error", zap.Error(err))
			}
			feedOpts = append(feedOpts, live.WithCache(cache))
		}
	}
	feed, err := live.NewFeed(telemetryService, feedOpts...)
	if err != nil {
		logger.Fatal("live feed error", zap.Error(err))
	}
	go feed.Start(ctx)

	if cfg.MQTT.Broker != "" {
		subscriber, err := telemetrymqtt.NewSubscriber(telemetrymqtt.Config{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Username: cfg.MQTT.Username,
			Password: cfg.MQTT.Password,
			Topic:    cfg.MQTT.Topic,
			QoS:      byte(cfg.MQTT.QoS),
		}, telemetryService, logger.Named("mqtt"))
		if err != nil {
			logger.Fatal("mqtt subscriber error", zap.Error(err))
		}
		if err := subscriber.Start(); err != nil {
			logger.Error("mqtt subscriber not started", zap.Error(err))
		} else {
			defer subscriber.Stop()
		}
	}

	reportService, err := reportapp.NewService(telemetryService, logger.Named("reports"))
	if err != nil {
		logger.Fatal("report service error", zap.Error(err))
	}

	sensorHandler, err := telemetryhttp.NewHandler(telemetryService, auditLogger, logger)
	if err != nil {
		logger.Fatal("telemetry handler error", zap.Error(err))
	}
	alertHandler, err := alerthttp.NewHandler(hub, auditLogger, logger)
	if err != nil {
		logger.Fatal("alert handler error", zap.Error(err))
	}
	settingsHandler, err := settingshttp.NewHandler(settingsService, auditLogger, logger)
	if err != nil {
		logger.Fatal("settings handler error", zap.Error(err))
	}
	reportHandler, err := reporthttp.NewHandler(reportService, logger)
	if err != nil {
		logger.Fatal("report handler error", zap.Error(err))
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy, logger)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/sensors/stream", telemetryhttp.NewStreamHandler(feed, cfg.Alerts.StreamKeepAlive, logger))
	mux.Handle("/api/v1/sensors/", sensorHandler)
	mux.Handle("/api/v1/alerts/stream", alerthttp.NewStreamHandler(hub, cfg.Alerts.StreamKeepAlive, logger))
	mux.Handle("/api/v1/alerts/ws", alerthttp.NewWebSocketHandler(hub, cfg.Alerts.AllowedOrigins, logger))
	mux.Handle("/api/v1/alerts", alertHandler)
	mux.Handle("/api/v1/alerts/", alertHandler)
	mux.Handle("/api/v1/ai/", settingsHandler)
	mux.Handle("/api/v1/reports", reportHandler)
	mux.Handle("/api/v1/reports/", reportHandler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(authMiddleware.Wrap(mux), logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown error", zap.Error(err))
		}
	}()

	logger.Info("http listening", zap.String("addr", cfg.HTTPAddr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("http server error", zap.Error(err))
	}
}

type storeSet struct {
	seriesReader telemetry.SeriesReader
	seriesWriter telemetry.SeriesWriter
	exclusions   telemetry.ExclusionStore
	alerts       alerts.Repository
	settings     settings.Repository
}

func buildStores(db *sql.DB) storeSet {
	if db == nil {
		series := telemetrymemory.NewSeriesStore()
		return storeSet{
			seriesReader: series,
			seriesWriter: series,
			exclusions:   telemetrymemory.NewExclusionStore(),
			alerts:       alertmemory.NewAlertRepository(),
			settings:     settingsmemory.NewScheduleRepository(),
		}
	}
	series := telemetrypostgres.NewSeriesStore(db)
	return storeSet{
		seriesReader: series,
		seriesWriter: series,
		exclusions:   telemetrypostgres.NewExclusionRepository(db),
		alerts:       alertpostgres.NewAlertRepository(db),
		settings:     settingspostgres.NewScheduleRepository(db),
	}
}

func buildNotifiers(cfg config.Config, reader alertnotify.AlertReader, logger *zap.Logger) (alertapp.Notifier, func()) {
	var (
		notifiers []alertapp.Notifier
		closers   []func()
	)

	if cfg.Alerts.WebhookURL != "" {
		template, err := alertnotify.NewTemplate(cfg.Alerts.NotifyTemplate)
		if err != nil {
			logger.Fatal("alert notify template error", zap.Error(err))
		}
		channel, err := alertnotify.NewWebhookChannel(cfg.Alerts.WebhookURL,
			alertnotify.WithHTTPClient(&http.Client{Timeout: cfg.Alerts.NotifyTimeout}))
		if err != nil {
			logger.Fatal("alert webhook error", zap.Error(err))
		}
		webhook, err := alertnotify.NewNotifier(reader, channel, template,
			alertnotify.WithEscalation(cfg.Alerts.EscalationAfter),
			alertnotify.WithRequestTimeout(cfg.Alerts.NotifyTimeout),
			alertnotify.WithCooldown(cfg.Alerts.NotifyCooldown),
			alertnotify.WithDedupeWindow(cfg.Alerts.NotifyDedupeWindow),
			alertnotify.WithLogger(logger),
		)
		if err != nil {
			logger.Fatal("alert notifier error", zap.Error(err))
		}
		notifiers = append(notifiers, webhook)
		closers = append(closers, webhook.Close)
	}

	if len(cfg.Kafka.Brokers) > 0 {
		writer, err := alertnotify.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			logger.Fatal("kafka writer error", zap.Error(err))
		}
		publisher, err := alertnotify.NewKafkaPublisher(writer, cfg.Kafka.Timeout, logger)
		if err != nil {
			logger.Fatal("kafka publisher error", zap.Error(err))
		}
		notifiers = append(notifiers, publisher)
		closers = append(closers, func() { _ = publisher.Close() })
	}

	multi := alertnotify.NewMultiNotifier(notifiers...)
	return multi, func() {
		for _, closeFn := range closers {
			closeFn()
		}
	}
}

func loggingMiddleware(next http.Handler, logger *zap.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Info("http request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", resp.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Flush keeps SSE handlers working behind the middleware.
func (w *statusWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// Hijack lets the WebSocket upgrader take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("http: hijack not supported")
	}
	w.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}
