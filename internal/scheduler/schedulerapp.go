package scheduler

import (
	"net/http"

	"github.com/go-redis/redis"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/armadaproject/batchsched/internal/common"
	"github.com/armadaproject/batchsched/internal/common/app"
	"github.com/armadaproject/batchsched/internal/common/batchcontext"
	dbcommon "github.com/armadaproject/batchsched/internal/common/database"
	"github.com/armadaproject/batchsched/internal/common/health"
	"github.com/armadaproject/batchsched/internal/common/logging"
	schedulerconfig "github.com/armadaproject/batchsched/internal/scheduler/configuration"
	"github.com/armadaproject/batchsched/internal/scheduler/database"
	"github.com/armadaproject/batchsched/internal/scheduler/interfaces"
	"github.com/armadaproject/batchsched/internal/scheduler/natsapi"
	"github.com/armadaproject/batchsched/internal/simulator"
)

// Run sets up a Scheduler application and runs it until a SIGTERM is received
func Run(config schedulerconfig.Configuration) error {
	g, ctx := batchcontext.ErrGroup(app.CreateContextWithShutdown())

	//////////////////////////////////////////////////////////////////////////
	// Health Checks
	//////////////////////////////////////////////////////////////////////////
	mux := http.NewServeMux()

	startupCompleteCheck := health.NewStartupCompleteChecker()
	schedulerHeartbeat := health.NewHeartbeatChecker(clock.RealClock{}, config.Scheduling.IdleCyclePeriod)
	healthChecks := health.NewMultiChecker(startupCompleteCheck, schedulerHeartbeat)
	health.SetupHttpMux(mux, healthChecks)
	shutdownHttpServer := common.ServeHttp(config.Http.Port, mux)
	defer shutdownHttpServer()

	// List of services to run concurrently.
	// Because we want to start services only once all input validation has been completed,
	// we add all services to a slice and start them together at the end of this function.
	var services []func() error

	//////////////////////////////////////////////////////////////////////////
	// State store
	//////////////////////////////////////////////////////////////////////////
	ctx.Log.Infof("Setting up %s state store", config.StateStore.Type)
	store, closeStore, err := NewStateStore(ctx, config.StateStore)
	if err != nil {
		return errors.WithMessage(err, "error setting up state store")
	}
	defer closeStore()

	//////////////////////////////////////////////////////////////////////////
	// Directory and execution substrate
	//////////////////////////////////////////////////////////////////////////
	ctx.Log.Infof("Setting up %s backend", config.Backend.Type)
	directory, substrate, closeBackend, err := NewBackend(config.Backend, clock.RealClock{})
	if err != nil {
		return errors.WithMessage(err, "error setting up backend")
	}
	defer closeBackend()

	//////////////////////////////////////////////////////////////////////////
	// Scheduler
	//////////////////////////////////////////////////////////////////////////
	schedulerMetrics, err := NewSchedulerMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return errors.WithMessage(err, "error registering scheduler metrics")
	}
	logHook, err := logging.NewPrometheusHook(prometheus.DefaultRegisterer)
	if err != nil {
		return errors.WithMessage(err, "error registering log metrics")
	}
	log.AddHook(logHook)

	schedulingAlgo, err := NewBatchSchedulingAlgo(config.Scheduling, directory, clock.RealClock{})
	if err != nil {
		return errors.WithMessage(err, "error creating scheduling algo")
	}
	scheduler := NewScheduler(
		schedulingAlgo,
		NewDispatcher(substrate, config.Scheduling.QueryTimeout),
		database.NewFlagRepository(store, config.StateStore.FlagsKey, config.Scheduling.EnabledByDefault),
		database.NewInFlightRepository(store, config.StateStore.InFlightKey),
		config.Scheduling,
		schedulerMetrics,
	).WithHeartbeat(schedulerHeartbeat)
	services = append(services, func() error { return scheduler.Run(ctx) })

	//////////////////////////////////////////////////////////////////////////
	// Metrics
	//////////////////////////////////////////////////////////////////////////
	shutdownMetricServer := common.ServeMetrics(config.Metrics.Port)
	defer shutdownMetricServer()

	// start all services
	for _, service := range services {
		g.Go(service)
	}

	startupCompleteCheck.MarkComplete()
	return g.Wait()
}

// NewStateStore connects to the configured state store, returning it along with a function that closes it.
func NewStateStore(ctx *batchcontext.Context, config schedulerconfig.StateStoreConfig) (database.StateStore, func(), error) {
	switch config.Type {
	case schedulerconfig.MemoryStateStore:
		return database.NewMemoryStateStore(), func() {}, nil
	case schedulerconfig.RedisStateStore:
		if config.Redis == nil {
			return nil, nil, errors.New("redis state store requires redis configuration")
		}
		redisClient := redis.NewClient(config.Redis.AsOptions())
		if err := redisClient.Ping().Err(); err != nil {
			_ = redisClient.Close()
			return nil, nil, errors.Wrapf(err, "error connecting to redis at %s", config.Redis.Addr)
		}
		closeFn := func() {
			if err := redisClient.Close(); err != nil {
				log.WithError(errors.WithStack(err)).Warnf("Redis client didn't close down cleanly")
			}
		}
		return database.NewRedisStateStore(redisClient, config.KeyPrefix), closeFn, nil
	case schedulerconfig.PostgresStateStore:
		if config.Postgres == nil {
			return nil, nil, errors.New("postgres state store requires postgres configuration")
		}
		db, err := dbcommon.OpenPgxPool(ctx, *config.Postgres)
		if err != nil {
			return nil, nil, errors.WithMessage(err, "error opening connection to postgres")
		}
		store, err := database.NewPostgresStateStore(db, config.PostgresTable)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, db.Close, nil
	default:
		return nil, nil, errors.Errorf("unknown state store type %q", config.Type)
	}
}

// NewBackend returns the configured directory and execution substrate, along with a function that releases them.
func NewBackend(
	config schedulerconfig.BackendConfig,
	clock clock.Clock,
) (interfaces.Directory, interfaces.ExecutionSubstrate, func(), error) {
	switch config.Type {
	case schedulerconfig.SimulatorBackend:
		world, err := NewSimulatedWorld(config.Simulator, clock)
		if err != nil {
			return nil, nil, nil, err
		}
		return world, world, func() {}, nil
	case schedulerconfig.NatsBackend:
		if config.Nats == nil {
			return nil, nil, nil, errors.New("nats backend requires nats configuration")
		}
		conn, err := config.Nats.Connect()
		if err != nil {
			return nil, nil, nil, errors.Wrapf(err, "error connecting to nats at %s", config.Nats.Url)
		}
		client := natsapi.NewClient(conn, config.Nats.SubjectPrefix, config.Nats.RequestTimeout)
		return client, client, conn.Close, nil
	default:
		return nil, nil, nil, errors.Errorf("unknown backend type %q", config.Type)
	}
}

// NewSimulatedWorld loads the configured world file, or the built-in world if none is set.
func NewSimulatedWorld(config schedulerconfig.SimulatorConfig, clock clock.Clock) (*simulator.World, error) {
	spec := simulator.DefaultWorldSpec()
	if config.WorldFile != "" {
		var err error
		spec, err = simulator.WorldSpecFromFilePath(config.WorldFile)
		if err != nil {
			return nil, err
		}
	}
	return simulator.NewWorld(spec, clock)
}
