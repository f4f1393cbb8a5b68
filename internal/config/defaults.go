package config

import "time"

const defaultPort = 8080

var defaultDB = DB{
	Host: "127.0.0.1",
	Port: "5432",
	User: "offers",
	Pass: "offers",
	Name: "offers",
}

var defaultKafka = Kafka{
	Brokers:            []string{"localhost:9092"},
	GroupID:            "offer-dispatch",
	JobsTopic:          "jobs",
	NotificationsTopic: "notifications",
}

var defaultOffers = Offers{
	TaskWindow:       2 * time.Hour,
	RouteWindow:      20 * time.Minute,
	ReconfirmWindow:  20 * time.Minute,
	TokenTaskTTL:     2 * time.Hour,
	TokenRouteTTL:    20 * time.Minute,
	PublicURL:        "http://localhost:8080",
	OperationTimeout: 3 * time.Second,
	TimeZone:         "UTC",
}

var defaultSweep = Sweep{
	Schedule:   "@every 5m",
	BatchSize:  100,
	StallAfter: time.Minute,
}

var defaultDispatch = Dispatch{
	BaseURL:      "http://localhost:9000",
	Timeout:      5 * time.Second,
	MaxAttempts:  4,
	BaseDelay:    150 * time.Millisecond,
	MaxDelay:     2 * time.Second,
	OperatorPool: "operators",
}

var defaultOperators = Operators{
	ConsoleURL: "http://localhost:8080/console",
	Channel:    "dispatch-ops",
}

var defaultNotify = Notify{DedupTTL: 24 * time.Hour}

var defaultRateLimit = RateLimit{
	Enabled:    true,
	Rate:       5,
	Burst:      10,
	TTL:        10 * time.Minute,
	MaxBuckets: 10000,
}

var defaultPprof = Pprof{Addr: ":6060"}

var defaultLog = Log{Format: "json", Level: "info"}

// DefaultPort returns the default port.
func DefaultPort() int { return defaultPort }

// DefaultDB returns the default database settings.
func DefaultDB() DB { return defaultDB }

// DefaultKafka returns the default Kafka settings.
func DefaultKafka() Kafka {
	k := defaultKafka
	k.Brokers = append([]string(nil), defaultKafka.Brokers...)
	return k
}

// DefaultOffers returns the default offer windows. The token secret has no default.
func DefaultOffers() Offers { return defaultOffers }

// DefaultSweep returns the default sweep settings.
func DefaultSweep() Sweep { return defaultSweep }

// DefaultDispatch returns the default dispatch provider settings.
func DefaultDispatch() Dispatch { return defaultDispatch }

// DefaultOperators returns the default operator channel settings.
func DefaultOperators() Operators { return defaultOperators }

// DefaultNotify returns the default notification settings.
func DefaultNotify() Notify { return defaultNotify }

// DefaultRateLimit returns the default rate limit settings.
func DefaultRateLimit() RateLimit { return defaultRateLimit }

// DefaultPprof returns the default pprof settings.
func DefaultPprof() Pprof { return defaultPprof }

// DefaultLog returns the default logger settings.
func DefaultLog() Log { return defaultLog }
