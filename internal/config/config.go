package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	anomaly "watertap/internal/anomaly/domain"
)

// Config is the process configuration.
type Config struct {
	HTTPAddr    string          `yaml:"http_addr"`
	DatabaseURL string          `yaml:"database_url"`
	JWTSecret   string          `yaml:"jwt_secret"`
	Timezone    string          `yaml:"timezone"`
	Rules       anomaly.RuleSet `yaml:"rules"`
	AI          AIConfig        `yaml:"ai"`
	Alerts      AlertsConfig    `yaml:"alerts"`
	Kafka       KafkaConfig     `yaml:"kafka"`
	MQTT        MQTTConfig      `yaml:"mqtt"`
	Redis       RedisConfig     `yaml:"redis"`
	Live        LiveConfig      `yaml:"live"`
}

// AIConfig configures the anomaly cycle and the classifier endpoint.
type AIConfig struct {
	APIKey          string        `yaml:"api_key"`
	BaseURL         string        `yaml:"base_url"`
	Model           string        `yaml:"model"`
	Interval        time.Duration `yaml:"interval"`
	InitialDelay    time.Duration `yaml:"initial_delay"`
	ClassifyTimeout time.Duration `yaml:"classify_timeout"`
	RecentWindow    time.Duration `yaml:"recent_window"`
}

// AlertsConfig configures the alert hub and its notifiers.
type AlertsConfig struct {
	AutoResolveAfter    time.Duration `yaml:"auto_resolve_after"`
	AutoResolveInterval time.Duration `yaml:"auto_resolve_interval"`
	SubscriberBuffer    int           `yaml:"subscriber_buffer"`
	StreamKeepAlive     time.Duration `yaml:"stream_keep_alive"`
	AllowedOrigins      []string      `yaml:"allowed_origins"`
	WebhookURL          string        `yaml:"webhook_url"`
	NotifyTemplate      string        `yaml:"notify_template"`
	NotifyTimeout       time.Duration `yaml:"notify_timeout"`
	NotifyCooldown      time.Duration `yaml:"notify_cooldown"`
	NotifyDedupeWindow  time.Duration `yaml:"notify_dedupe_window"`
	EscalationAfter     time.Duration `yaml:"escalation_after"`
}

// KafkaConfig enables the alert event publisher when brokers are set.
type KafkaConfig struct {
	Brokers []string      `yaml:"brokers"`
	Topic   string        `yaml:"topic"`
	Timeout time.Duration `yaml:"timeout"`
}

// MQTTConfig enables telemetry ingestion when a broker is set.
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
	QoS      int    `yaml:"qos"`
}

// RedisConfig enables the live feed cache when an address is set.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Key      string        `yaml:"key"`
	TTL      time.Duration `yaml:"ttl"`
}

// LiveConfig configures the live telemetry feed.
type LiveConfig struct {
	Window   time.Duration `yaml:"window"`
	Interval time.Duration `yaml:"interval"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		HTTPAddr: ":8080",
		Timezone: "America/Bogota",
		Rules:    anomaly.DefaultRuleSet(),
		AI: AIConfig{
			Interval:        5 * time.Minute,
			InitialDelay:    30 * time.Second,
			ClassifyTimeout: 60 * time.Second,
			RecentWindow:    10 * time.Minute,
		},
		Alerts: AlertsConfig{
			AutoResolveAfter:    30 * time.Minute,
			AutoResolveInterval: 5 * time.Minute,
			SubscriberBuffer:    64,
			StreamKeepAlive:     25 * time.Second,
			NotifyTimeout:       5 * time.Second,
		},
		Kafka: KafkaConfig{Topic: "water.alerts", Timeout: 5 * time.Second},
		MQTT:  MQTTConfig{ClientID: "watertap-ingest", Topic: "water/telemetry"},
		Redis: RedisConfig{TTL: 10 * time.Minute},
		Live:  LiveConfig{Window: 5 * time.Minute, Interval: 15 * time.Second},
	}
}

// Load reads the optional YAML file named by CONFIG_FILE over the defaults,
// then applies environment overrides and validates the result.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: decode yaml: %w", err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.HTTPAddr = getenvDefault("HTTP_ADDR", cfg.HTTPAddr)
	cfg.DatabaseURL = getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", cfg.DatabaseURL))
	cfg.JWTSecret = getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", cfg.JWTSecret))
	cfg.Timezone = getenvDefault("APP_TIMEZONE", cfg.Timezone)
	cfg.Rules.Language = getenvDefault("AI_RESPONSE_LANGUAGE", cfg.Rules.Language)

	cfg.AI.APIKey = getenvDefault("AI_API_KEY", getenvDefault("GROQ_API_KEY", cfg.AI.APIKey))
	cfg.AI.BaseURL = getenvDefault("AI_BASE_URL", cfg.AI.BaseURL)
	cfg.AI.Model = getenvDefault("AI_MODEL", cfg.AI.Model)
	cfg.AI.Interval = getenvDuration("AI_INTERVAL", cfg.AI.Interval)
	cfg.AI.InitialDelay = getenvDuration("AI_INITIAL_DELAY", cfg.AI.InitialDelay)
	cfg.AI.ClassifyTimeout = getenvDuration("AI_CLASSIFY_TIMEOUT", cfg.AI.ClassifyTimeout)
	cfg.AI.RecentWindow = getenvDuration("AI_RECENT_WINDOW", cfg.AI.RecentWindow)

	cfg.Alerts.AutoResolveAfter = getenvDuration("ALERT_AUTO_RESOLVE_AFTER", cfg.Alerts.AutoResolveAfter)
	cfg.Alerts.AutoResolveInterval = getenvDuration("ALERT_AUTO_RESOLVE_INTERVAL", cfg.Alerts.AutoResolveInterval)
	cfg.Alerts.SubscriberBuffer = getenvIntDefault("ALERT_SUBSCRIBER_BUFFER", cfg.Alerts.SubscriberBuffer)
	cfg.Alerts.StreamKeepAlive = getenvDuration("ALERT_STREAM_KEEP_ALIVE", cfg.Alerts.StreamKeepAlive)
	if origins := splitCSV(os.Getenv("ALERT_ALLOWED_ORIGINS")); len(origins) > 0 {
		cfg.Alerts.AllowedOrigins = origins
	}
	cfg.Alerts.WebhookURL = getenvDefault("ALERT_WEBHOOK_URL", cfg.Alerts.WebhookURL)
	cfg.Alerts.NotifyTemplate = getenvDefault("ALERT_NOTIFY_TEMPLATE", cfg.Alerts.NotifyTemplate)
	cfg.Alerts.NotifyTimeout = getenvDuration("ALERT_NOTIFY_TIMEOUT", cfg.Alerts.NotifyTimeout)
	cfg.Alerts.NotifyCooldown = getenvDuration("ALERT_NOTIFY_COOLDOWN", cfg.Alerts.NotifyCooldown)
	cfg.Alerts.NotifyDedupeWindow = getenvDuration("ALERT_NOTIFY_DEDUP_WINDOW", cfg.Alerts.NotifyDedupeWindow)
	cfg.Alerts.EscalationAfter = getenvDuration("ALERT_ESCALATION_AFTER", cfg.Alerts.EscalationAfter)

	if brokers := splitCSV(os.Getenv("KAFKA_BROKERS")); len(brokers) > 0 {
		cfg.Kafka.Brokers = brokers
	}
	cfg.Kafka.Topic = getenvDefault("KAFKA_ALERT_TOPIC", cfg.Kafka.Topic)

	cfg.MQTT.Broker = getenvDefault("MQTT_BROKER", cfg.MQTT.Broker)
	cfg.MQTT.ClientID = getenvDefault("MQTT_CLIENT_ID", cfg.MQTT.ClientID)
	cfg.MQTT.Username = getenvDefault("MQTT_USERNAME", cfg.MQTT.Username)
	cfg.MQTT.Password = getenvDefault("MQTT_PASSWORD", cfg.MQTT.Password)
	cfg.MQTT.Topic = getenvDefault("MQTT_TOPIC", cfg.MQTT.Topic)
	cfg.MQTT.QoS = getenvIntDefault("MQTT_QOS", cfg.MQTT.QoS)

	cfg.Redis.Addr = getenvDefault("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getenvDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getenvIntDefault("REDIS_DB", cfg.Redis.DB)

	cfg.Live.Window = getenvDuration("LIVE_WINDOW", cfg.Live.Window)
	cfg.Live.Interval = getenvDuration("LIVE_INTERVAL", cfg.Live.Interval)
}

// Validate checks required fields and ranges.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("config: AUTH_JWT_SECRET is required"))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("config: timezone %q: %w", c.Timezone, err))
	}
	if c.Rules.PHMin >= c.Rules.PHMax {
		errs = append(errs, fmt.Errorf("config: rules ph_min %.2f must be below ph_max %.2f", c.Rules.PHMin, c.Rules.PHMax))
	}
	if c.AI.Interval <= 0 {
		errs = append(errs, errors.New("config: ai interval must be positive"))
	}
	if c.Alerts.AutoResolveAfter < 0 {
		errs = append(errs, errors.New("config: alerts auto_resolve_after must not be negative"))
	}
	if c.Alerts.SubscriberBuffer <= 0 {
		errs = append(errs, errors.New("config: alerts subscriber_buffer must be positive"))
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("config: mqtt qos %d out of range", c.MQTT.QoS))
	}
	if c.Live.Window <= 0 || c.Live.Interval <= 0 {
		errs = append(errs, errors.New("config: live window and interval must be positive"))
	}
	return errors.Join(errs...)
}

// Location returns the configured zone.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvIntDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	var result []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}
