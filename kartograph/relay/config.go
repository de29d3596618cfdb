package relay

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/openshift-hyperfleet/kartograph-sub003/kartograph"
)

// ErrInvalidConfig is returned when the relay configuration fails
// validation.
var ErrInvalidConfig = errors.New("invalid relay configuration")

// Config carries everything a Relay needs, loadable from KARTOGRAPH_
// environment variables. Zero values defer to the defaults of the component
// they configure: a blank OutboxTable means the repository default, a zero
// BatchSize means the worker default, and so on.
type Config struct {
	// PostgresPrimaryDSN points at the read/write database that holds the
	// outbox table. The listener and the migrator dial it directly.
	PostgresPrimaryDSN string `env:"KARTOGRAPH_POSTGRES_PRIMARY_DSN" validate:"required"`
	// PostgresReplicaDSN serves reads; blank means reuse the primary.
	PostgresReplicaDSN string `env:"KARTOGRAPH_POSTGRES_REPLICA_DSN"`
	// PostgresDatabaseName is the database migrations record against; only
	// needed when Migrate is set.
	PostgresDatabaseName string `env:"KARTOGRAPH_POSTGRES_DB" validate:"required_if=Migrate true"`
	// Migrate applies the outbox schema migrations before the loops start.
	Migrate bool `env:"KARTOGRAPH_OUTBOX_MIGRATE"`

	// OutboxTable and OutboxChannel override the outbox table name and the
	// LISTEN/NOTIFY channel it announces appends on.
	OutboxTable   string `env:"KARTOGRAPH_OUTBOX_TABLE"`
	OutboxChannel string `env:"KARTOGRAPH_OUTBOX_CHANNEL"`
	// Worker tuning. Zero values keep the worker defaults.
	BatchSize    int           `env:"KARTOGRAPH_OUTBOX_BATCH_SIZE" validate:"omitempty,gt=0"`
	MaxRetries   int           `env:"KARTOGRAPH_OUTBOX_MAX_RETRIES" validate:"omitempty,gt=0"`
	PollInterval time.Duration `env:"KARTOGRAPH_OUTBOX_POLL_INTERVAL" validate:"omitempty,gt=0"`
	// MonitorSchedule is the cron expression for queue depth sampling.
	MonitorSchedule string `env:"KARTOGRAPH_OUTBOX_MONITOR_SCHEDULE"`

	// SpiceDBEndpoint is the host:port of the SpiceDB gRPC API.
	SpiceDBEndpoint string `env:"KARTOGRAPH_SPICEDB_ENDPOINT" validate:"required,hostname_port"`
	// SpiceDBToken is the preshared key; required unless SpiceDBInsecure.
	SpiceDBToken string `env:"KARTOGRAPH_SPICEDB_TOKEN" validate:"required_unless=SpiceDBInsecure true"`
	// SpiceDBInsecure dials without TLS (local development only).
	SpiceDBInsecure bool `env:"KARTOGRAPH_SPICEDB_INSECURE"`
	// SpiceDBBreakerDisabled removes the circuit breaker around SpiceDB
	// calls. On by default.
	SpiceDBBreakerDisabled bool `env:"KARTOGRAPH_SPICEDB_BREAKER_DISABLED"`
}

// LoadConfig reads the relay configuration from its KARTOGRAPH_ environment
// variables and validates it.
func LoadConfig() (Config, error) {
	var cfg Config

	if err := kartograph.SetConfigFromEnvVars(&cfg); err != nil {
		return Config{}, fmt.Errorf("loading relay configuration: %w", err)
	}

	cfg = cfg.withDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the configuration against its struct tags and reports
// every failing field.
func (cfg Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())

	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	failures := make([]string, 0, len(fieldErrors))
	for _, fieldError := range fieldErrors {
		failures = append(failures, fmt.Sprintf("%s fails %q", fieldError.Field(), fieldError.Tag()))
	}

	return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(failures, "; "))
}

func (cfg Config) withDefaults() Config {
	if strings.TrimSpace(cfg.PostgresReplicaDSN) == "" {
		cfg.PostgresReplicaDSN = cfg.PostgresPrimaryDSN
	}

	return cfg
}
