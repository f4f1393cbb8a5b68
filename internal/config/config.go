package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
)

// Config stores service-offers and worker settings.
type Config struct {
	Port      int
	DB        DB
	Kafka     Kafka
	Offers    Offers
	Sweep     Sweep
	Dispatch  Dispatch
	Operators Operators
	Notify    Notify
	RateLimit RateLimit
	Pprof     Pprof
	Log       Log
}

// DB stores PostgreSQL connection settings.
type DB struct {
	Host string
	Port string
	User string
	Pass string
	Name string
}

// DSN returns a pgx connection string.
func (d DB) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", d.User, d.Pass, d.Host, d.Port, d.Name)
}

// Kafka stores broker and topic settings.
type Kafka struct {
	Brokers            []string
	GroupID            string
	JobsTopic          string
	NotificationsTopic string
}

// Offers stores offer windows and token settings.
type Offers struct {
	TaskWindow       time.Duration
	RouteWindow      time.Duration
	ReconfirmWindow  time.Duration
	TokenSecret      string
	TokenTaskTTL     time.Duration
	TokenRouteTTL    time.Duration
	PublicURL        string
	OperationTimeout time.Duration
	TimeZone         string
}

// Sweep stores expiry sweep settings.
type Sweep struct {
	Schedule   string
	BatchSize  int
	StallAfter time.Duration
}

// Dispatch stores the external dispatch provider client settings.
type Dispatch struct {
	BaseURL      string
	Timeout      time.Duration
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	OperatorPool string
}

// Operators stores where escalations are sent.
type Operators struct {
	ConsoleURL string
	Channel    string
}

// Notify stores notification settings.
type Notify struct {
	DedupTTL time.Duration
}

// RateLimit stores per-client limits for the public endpoints.
type RateLimit struct {
	Enabled    bool
	Rate       float64
	Burst      int
	TTL        time.Duration
	MaxBuckets int
}

// Pprof stores the debug server settings.
type Pprof struct {
	Enabled bool
	Addr    string
	User    string
	Pass    string
}

// Log stores logger settings.
type Log struct {
	Format string // json | zap
	Level  string
}

// Load reads configuration in order: .env (if present) → environment → flags.
func Load() (*Config, error) {
	return LoadFrom(pflag.CommandLine, os.Args[1:])
}

// LoadFrom is Load with an explicit flag set and argument list.
func LoadFrom(fs *pflag.FlagSet, args []string) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		log.Printf("warning: .env not loaded: %v", err)
	}

	cfg := &Config{
		Port:      DefaultPort(),
		DB:        DefaultDB(),
		Kafka:     DefaultKafka(),
		Offers:    DefaultOffers(),
		Sweep:     DefaultSweep(),
		Dispatch:  DefaultDispatch(),
		Operators: DefaultOperators(),
		Notify:    DefaultNotify(),
		RateLimit: DefaultRateLimit(),
		Pprof:     DefaultPprof(),
		Log:       DefaultLog(),
	}

	e := &envReader{}
	e.int("PORT", &cfg.Port)

	e.str("POSTGRES_HOST", &cfg.DB.Host)
	e.str("POSTGRES_PORT", &cfg.DB.Port)
	e.str("POSTGRES_USER", &cfg.DB.User)
	e.str("POSTGRES_PASSWORD", &cfg.DB.Pass)
	e.str("POSTGRES_DB", &cfg.DB.Name)

	e.list("KAFKA_BROKERS", &cfg.Kafka.Brokers)
	e.str("KAFKA_GROUP_ID", &cfg.Kafka.GroupID)
	e.str("KAFKA_JOBS_TOPIC", &cfg.Kafka.JobsTopic)
	e.str("KAFKA_NOTIFICATIONS_TOPIC", &cfg.Kafka.NotificationsTopic)

	e.duration("OFFER_TASK_WINDOW", &cfg.Offers.TaskWindow)
	e.duration("OFFER_ROUTE_WINDOW", &cfg.Offers.RouteWindow)
	e.duration("OFFER_RECONFIRM_WINDOW", &cfg.Offers.ReconfirmWindow)
	e.str("OFFER_TOKEN_SECRET", &cfg.Offers.TokenSecret)
	e.duration("OFFER_TOKEN_TASK_TTL", &cfg.Offers.TokenTaskTTL)
	e.duration("OFFER_TOKEN_ROUTE_TTL", &cfg.Offers.TokenRouteTTL)
	e.str("OFFER_PUBLIC_URL", &cfg.Offers.PublicURL)
	e.duration("OFFER_OPERATION_TIMEOUT", &cfg.Offers.OperationTimeout)
	e.str("OFFER_TIMEZONE", &cfg.Offers.TimeZone)

	e.str("SWEEP_SCHEDULE", &cfg.Sweep.Schedule)
	e.int("SWEEP_BATCH_SIZE", &cfg.Sweep.BatchSize)
	e.duration("SWEEP_STALL_AFTER", &cfg.Sweep.StallAfter)

	e.str("DISPATCH_BASE_URL", &cfg.Dispatch.BaseURL)
	e.duration("DISPATCH_TIMEOUT", &cfg.Dispatch.Timeout)
	e.int("DISPATCH_MAX_ATTEMPTS", &cfg.Dispatch.MaxAttempts)
	e.duration("DISPATCH_BASE_DELAY", &cfg.Dispatch.BaseDelay)
	e.duration("DISPATCH_MAX_DELAY", &cfg.Dispatch.MaxDelay)
	e.str("DISPATCH_OPERATOR_POOL", &cfg.Dispatch.OperatorPool)

	e.str("OPERATORS_CONSOLE_URL", &cfg.Operators.ConsoleURL)
	e.str("OPERATORS_CHANNEL", &cfg.Operators.Channel)

	e.duration("NOTIFY_DEDUP_TTL", &cfg.Notify.DedupTTL)

	e.bool("RATE_LIMIT_ENABLED", &cfg.RateLimit.Enabled)
	e.float("RATE_LIMIT_RATE", &cfg.RateLimit.Rate)
	e.int("RATE_LIMIT_BURST", &cfg.RateLimit.Burst)
	e.duration("RATE_LIMIT_TTL", &cfg.RateLimit.TTL)
	e.int("RATE_LIMIT_MAX_BUCKETS", &cfg.RateLimit.MaxBuckets)

	e.bool("PPROF_ENABLED", &cfg.Pprof.Enabled)
	e.str("PPROF_ADDR", &cfg.Pprof.Addr)
	e.str("PPROF_USER", &cfg.Pprof.User)
	e.str("PPROF_PASSWORD", &cfg.Pprof.Pass)

	e.str("LOG_FORMAT", &cfg.Log.Format)
	e.str("LOG_LEVEL", &cfg.Log.Level)

	if e.err != nil {
		return nil, e.err
	}

	if fs.Lookup("port") == nil {
		fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "port to listen on")
	}
	if fs.Lookup("sweep-schedule") == nil {
		fs.StringVar(&cfg.Sweep.Schedule, "sweep-schedule", cfg.Sweep.Schedule, "cron spec of the expiry sweep")
	}
	if fs.Lookup("log-format") == nil {
		fs.StringVar(&cfg.Log.Format, "log-format", cfg.Log.Format, "log backend: json or zap")
	}
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	if c.Offers.TaskWindow <= 0 || c.Offers.RouteWindow <= 0 || c.Offers.ReconfirmWindow <= 0 {
		return fmt.Errorf("offer windows must be positive")
	}
	if c.Offers.TokenTaskTTL <= 0 || c.Offers.TokenRouteTTL <= 0 {
		return fmt.Errorf("token ttl must be positive")
	}
	if len(c.Offers.TokenSecret) < 32 {
		return fmt.Errorf("OFFER_TOKEN_SECRET must be at least 32 bytes")
	}
	if _, err := time.LoadLocation(c.Offers.TimeZone); err != nil {
		return fmt.Errorf("invalid OFFER_TIMEZONE %q: %w", c.Offers.TimeZone, err)
	}
	if c.Sweep.BatchSize <= 0 {
		return fmt.Errorf("invalid sweep batch size: %d", c.Sweep.BatchSize)
	}
	if c.Sweep.StallAfter <= 0 {
		return fmt.Errorf("sweep stall threshold must be positive")
	}
	if strings.TrimSpace(c.Sweep.Schedule) == "" {
		return fmt.Errorf("sweep schedule is empty")
	}
	if c.Dispatch.MaxAttempts <= 0 {
		return fmt.Errorf("invalid dispatch max attempts: %d", c.Dispatch.MaxAttempts)
	}
	if c.Notify.DedupTTL <= 0 {
		return fmt.Errorf("notification dedup ttl must be positive")
	}
	switch c.Log.Format {
	case "json", "zap":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// Location returns the zone availability windows are evaluated in.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Offers.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type envReader struct {
	err error
}

func (e *envReader) fail(key, v string, err error) {
	if e.err == nil {
		e.err = fmt.Errorf("invalid %s=%q: %w", key, v, err)
	}
}

func (e *envReader) str(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func (e *envReader) list(key string, dst *[]string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func (e *envReader) int(key string, dst *int) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = n
}

func (e *envReader) float(key string, dst *float64) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = f
}

func (e *envReader) bool(key string, dst *bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = b
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, err)
		return
	}
	*dst = d
}
