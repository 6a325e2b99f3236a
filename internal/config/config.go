package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Драйверы хранилища
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// MaxSweepInterval реже фоновый проход запускать нельзя: напоминания опоздают
const MaxSweepInterval = time.Minute

type Config struct {
	Environment   string
	StorageDriver string
	DBDSN         string
	HTTPAddr      string
	RedisURL      string
	TelegramToken string
	LogFile       string

	SweepInterval       time.Duration
	NoShowGrace         time.Duration
	ReminderLeads       []time.Duration
	RescheduleMinNotice time.Duration
	AutoStart           bool

	NotifyWorkers int
	NotifyBuffer  int

	TracingEnabled     bool
	TracingSampleRatio float64
}

// Load читает .env (если есть) и переменные окружения
func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	return FromEnv(os.Getenv)
}

// FromEnv собирает конфиг из getenv и проверяет его
func FromEnv(getenv func(string) string) (*Config, error) {
	p := envParser{getenv: getenv}

	cfg := &Config{
		Environment:   p.str("ENV", "development"),
		StorageDriver: p.str("STORAGE_DRIVER", StoragePostgres),
		DBDSN:         getenv("DB_DSN"),
		HTTPAddr:      p.str("HTTP_ADDR", ":8080"),
		RedisURL:      getenv("REDIS_URL"),
		TelegramToken: getenv("TELEGRAM_TOKEN"),
		LogFile:       getenv("LOG_FILE"),

		SweepInterval:       p.duration("SWEEP_INTERVAL", time.Minute),
		NoShowGrace:         p.duration("NO_SHOW_GRACE", 30*time.Minute),
		ReminderLeads:       p.durations("REMINDER_LEADS", []time.Duration{24 * time.Hour, time.Hour, 15 * time.Minute}),
		RescheduleMinNotice: p.duration("RESCHEDULE_MIN_NOTICE", 2*time.Hour),
		AutoStart:           p.boolean("AUTO_START", true),

		NotifyWorkers: p.integer("NOTIFY_WORKERS", 4),
		NotifyBuffer:  p.integer("NOTIFY_BUFFER", 256),

		TracingEnabled:     p.boolean("TRACING_ENABLED", false),
		TracingSampleRatio: p.float("TRACING_SAMPLE_RATIO", 1),
	}

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет обязательные поля и диапазоны
func (c *Config) Validate() error {
	var errs []error

	switch c.StorageDriver {
	case StorageMemory:
	case StoragePostgres:
		if c.DBDSN == "" {
			errs = append(errs, errors.New("DB_DSN is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_DRIVER must be %q or %q, got %q", StoragePostgres, StorageMemory, c.StorageDriver))
	}

	if c.SweepInterval <= 0 || c.SweepInterval > MaxSweepInterval {
		errs = append(errs, fmt.Errorf("SWEEP_INTERVAL must be in (0, %s], got %s", MaxSweepInterval, c.SweepInterval))
	}
	if c.NoShowGrace <= 0 {
		errs = append(errs, errors.New("NO_SHOW_GRACE must be positive"))
	}
	if len(c.ReminderLeads) == 0 {
		errs = append(errs, errors.New("REMINDER_LEADS must not be empty"))
	}
	for _, lead := range c.ReminderLeads {
		if lead <= 0 {
			errs = append(errs, fmt.Errorf("REMINDER_LEADS must be positive, got %s", lead))
		}
	}
	if c.RescheduleMinNotice < 0 {
		errs = append(errs, errors.New("RESCHEDULE_MIN_NOTICE must not be negative"))
	}
	if c.NotifyWorkers <= 0 {
		errs = append(errs, errors.New("NOTIFY_WORKERS must be positive"))
	}
	if c.NotifyBuffer <= 0 {
		errs = append(errs, errors.New("NOTIFY_BUFFER must be positive"))
	}
	if c.TracingSampleRatio < 0 || c.TracingSampleRatio > 1 {
		errs = append(errs, errors.New("TRACING_SAMPLE_RATIO must be in [0, 1]"))
	}

	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// envParser запоминает первую ошибку разбора
type envParser struct {
	getenv func(string) string
	err    error
}

func (p *envParser) fail(key, raw string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("parse %s=%q: %w", key, raw, err)
	}
}

func (p *envParser) str(key, def string) string {
	if v := strings.TrimSpace(p.getenv(key)); v != "" {
		return v
	}
	return def
}

func (p *envParser) duration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(p.getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return d
}

// durations список через запятую, например "24h,1h,15m"
func (p *envParser) durations(key string, def []time.Duration) []time.Duration {
	raw := strings.TrimSpace(p.getenv(key))
	if raw == "" {
		return def
	}
	var out []time.Duration
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil {
			p.fail(key, raw, err)
			return def
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] > out[j] })
	return out
}

func (p *envParser) boolean(key string, def bool) bool {
	raw := strings.TrimSpace(p.getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *envParser) integer(key string, def int) int {
	raw := strings.TrimSpace(p.getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}

func (p *envParser) float(key string, def float64) float64 {
	raw := strings.TrimSpace(p.getenv(key))
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, raw, err)
		return def
	}
	return v
}
