package configuration

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/armadaproject/batchsched/internal/common/config"
	"github.com/armadaproject/batchsched/internal/common/database"
	"github.com/armadaproject/batchsched/internal/common/logging"
	"github.com/armadaproject/batchsched/internal/scheduler/hostdb"
	"github.com/armadaproject/batchsched/internal/scheduler/planner"
	"github.com/armadaproject/batchsched/internal/scheduler/schedulerobjects"
)

const (
	MemoryStateStore   = "memory"
	RedisStateStore    = "redis"
	PostgresStateStore = "postgres"

	SimulatorBackend = "simulator"
	NatsBackend      = "nats"
)

type Configuration struct {
	Logging logging.Config
	Http    HttpConfig
	Metrics MetricsConfig
	// Where the enable flag and in-flight registry are persisted
	StateStore StateStoreConfig
	// The directory and execution substrate the scheduler talks to
	Backend    BackendConfig
	Scheduling SchedulingConfig
}

func (c Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterStructValidation(StateStoreConfigValidation, StateStoreConfig{})
	validate.RegisterStructValidation(BackendConfigValidation, BackendConfig{})
	return validate.Struct(c)
}

type HttpConfig struct {
	Port uint16 `validate:"required"`
}

type MetricsConfig struct {
	Port uint16 `validate:"required"`
}

type StateStoreConfig struct {
	Type string `validate:"oneof=memory redis postgres"`
	// Required if Type is redis
	Redis *config.RedisConfig
	// Required if Type is postgres
	Postgres *database.PostgresConfig
	// Table holding documents when Type is postgres
	PostgresTable string
	// Prepended to every redis key
	KeyPrefix string
	// Key of the document holding the enable flag
	FlagsKey string `validate:"required"`
	// Key of the document holding the in-flight registry
	InFlightKey string `validate:"required"`
}

func StateStoreConfigValidation(sl validator.StructLevel) {
	c := sl.Current().Interface().(StateStoreConfig)
	switch c.Type {
	case RedisStateStore:
		if c.Redis == nil {
			sl.ReportError(c.Redis, "Redis", "Redis", "required_for_redis", "")
		}
	case PostgresStateStore:
		if c.Postgres == nil {
			sl.ReportError(c.Postgres, "Postgres", "Postgres", "required_for_postgres", "")
		}
		if c.PostgresTable == "" {
			sl.ReportError(c.PostgresTable, "PostgresTable", "PostgresTable", "required_for_postgres", "")
		}
	}
}

type BackendConfig struct {
	Type string `validate:"oneof=simulator nats"`
	// Required if Type is nats
	Nats      *config.NatsConfig
	Simulator SimulatorConfig
}

func BackendConfigValidation(sl validator.StructLevel) {
	c := sl.Current().Interface().(BackendConfig)
	if c.Type == NatsBackend && c.Nats == nil {
		sl.ReportError(c.Nats, "Nats", "Nats", "required_for_nats", "")
	}
}

type SimulatorConfig struct {
	// Yaml file describing the simulated targets and hosts. A built-in world is used if empty.
	WorldFile string
}

type SchedulingConfig struct {
	// Percentage of a target's max value extracted by each batch
	ExtractPercent float64 `validate:"gt=0,lte=100"`
	// Time between the first and second Suppress of a batch
	TimeWindow time.Duration `validate:"gt=0"`
	// Wall clock time allowed for planning future-dated batches each cycle
	PlanningBudget time.Duration `validate:"gt=0"`
	// Shortest time the scheduler sleeps between cycles
	MinCyclePeriod time.Duration `validate:"gt=0"`
	// Time the scheduler sleeps after a cycle that dispatched nothing
	IdleCyclePeriod time.Duration `validate:"gt=0"`
	// How often the enable flag is polled while scheduling is disabled
	DisabledPollInterval time.Duration `validate:"gt=0"`
	// Number of top ranked targets considered for harvesting each cycle
	ReadyTargetSlots int `validate:"gt=0"`
	// Timeout applied to each call to the directory or execution substrate
	QueryTimeout time.Duration `validate:"gt=0"`
	CapacityPerUnit schedulerobjects.CapacityPerUnit
	// Hosts left with this much capacity or less receive no further operations in a cycle
	MinRemainingCapacity float64 `validate:"gte=0"`
	Reserve              ReserveConfig
	// Whether scheduling runs if the enable flag has never been set
	EnabledByDefault bool
	Model            ModelConfig
}

type ReserveConfig struct {
	HostName  string
	Threshold float64 `validate:"gte=0"`
	Amount    float64 `validate:"gte=0"`
}

func (c ReserveConfig) Policy() hostdb.ReservePolicy {
	return hostdb.ReservePolicy{
		HostName:  c.HostName,
		Threshold: c.Threshold,
		Amount:    c.Amount,
	}
}

// ModelConfig parameterises the linear unit cost model.
type ModelConfig struct {
	ExtractSecurityPerUnit float64 `validate:"gte=0"`
	RestoreSecurityPerUnit float64 `validate:"gte=0"`
	SuppressPerUnit        float64 `validate:"gt=0"`
}

func (c ModelConfig) Analyzer() planner.LinearModel {
	return planner.LinearModel{
		ExtractSecurityPerUnit: c.ExtractSecurityPerUnit,
		RestoreSecurityPerUnit: c.RestoreSecurityPerUnit,
		SuppressPerUnit:        c.SuppressPerUnit,
	}
}
