package agent

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/mohitkumar/chatflow/action"
	"github.com/mohitkumar/chatflow/analytics"
	"github.com/mohitkumar/chatflow/cluster"
	"github.com/mohitkumar/chatflow/config"
	"github.com/mohitkumar/chatflow/dispatcher"
	"github.com/mohitkumar/chatflow/engine"
	"github.com/mohitkumar/chatflow/executor"
	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/metadata"
	"github.com/mohitkumar/chatflow/outbound"
	"github.com/mohitkumar/chatflow/persistence"
	"github.com/mohitkumar/chatflow/persistence/memory"
	"github.com/mohitkumar/chatflow/persistence/redis"
	"github.com/mohitkumar/chatflow/persistence/sqlite"
	"github.com/mohitkumar/chatflow/rest"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Agent struct {
	Config          config.Config
	redisClient     rd.UniversalClient
	db              *sql.DB
	contexts        persistence.ContextStore
	ledger          persistence.Ledger
	flowStorage     persistence.FlowDefinitionStorage
	queue           persistence.Queue
	delayQueue      persistence.DelayQueue
	ring            *cluster.Ring
	registry        *action.Registry
	metadataService *metadata.Service
	fileLoader      *metadata.FileLoader
	dispatcher      *dispatcher.Dispatcher
	engine          *engine.Engine
	executors       []executor.Executor
	httpServer      *rest.Server
	shutdown        bool
	shutdownLock    sync.Mutex
	wg              sync.WaitGroup
}

func New(config config.Config) (*Agent, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	a := &Agent{
		Config:    config,
	}
	setup := []func() error{
		a.setupAnalytics,
		a.setupStorage,
		a.setupQueues,
		a.setupCluster,
		a.setupActions,
		a.setupMetadata,
		a.setupEngine,
		a.setupExecutors,
		a.setupHttpServer,
	}
	for _, fn := range setup {
		if err := fn(); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *Agent) setupAnalytics() error {
	return analytics.InitDataCollector(a.Config.AnalyticsConfig)
}

func (a *Agent) redis() (rd.UniversalClient, redis.Config) {
	conf := redis.Config{
		Addrs:     a.Config.RedisConfig.Addrs,
		Namespace: a.Config.RedisConfig.Namespace,
		PoolSize:  a.Config.RedisConfig.PoolSize,
		Password:  a.Config.RedisConfig.Password,
		LockTTL:   a.Config.RedisConfig.LockTTL,
	}
	if a.redisClient == nil {
		a.redisClient = redis.NewClient(conf)
	}
	return a.redisClient, conf
}

func (a *Agent) setupStorage() error {
	switch a.Config.StorageType {
	case config.STORAGE_TYPE_REDIS:
		client, conf := a.redis()
		a.contexts = redis.NewRedisContextStore(client, conf)
		a.ledger = redis.NewRedisLedger(client, conf)
		a.flowStorage = redis.NewRedisMetadataStorage(client, conf)
	case config.STORAGE_TYPE_SQLITE:
		db, err := sqlite.Open(a.Config.SqliteConfig.Path)
		if err != nil {
			return err
		}
		a.db = db
		a.contexts = sqlite.NewContextStore(db)
		a.ledger = sqlite.NewLedger(db)
		a.flowStorage = memory.NewMetadataStorage()
	default:
		a.contexts = memory.NewContextStore()
		a.ledger = memory.NewLedger()
		a.flowStorage = memory.NewMetadataStorage()
	}
	logger.Info("storage initialized", zap.String("impl", string(a.Config.StorageType)))
	return nil
}

func (a *Agent) setupQueues() error {
	switch a.Config.QueueType {
	case config.QUEUE_TYPE_REDIS:
		client, conf := a.redis()
		a.queue = redis.NewRedisQueue(client, conf)
		a.delayQueue = redis.NewRedisDelayQueue(client, conf)
	default:
		a.queue = memory.NewQueue()
		a.delayQueue = memory.NewDelayQueue()
	}
	return nil
}

func (a *Agent) setupCluster() error {
	a.ring = cluster.NewRing(cluster.RingConfig{PartitionCount: a.Config.ClusterConfig.PartitionCount})
	a.ring.Join(a.Config.ClusterConfig.NodeName, true)
	for _, peer := range a.Config.ClusterConfig.Peers {
		if peer != a.Config.ClusterConfig.NodeName {
			a.ring.Join(peer, false)
		}
	}
	logger.Info("local partitions", zap.String("node", a.Config.ClusterConfig.NodeName), zap.Ints("partitions", a.ring.GetPartitions()))
	return nil
}

func (a *Agent) setupActions() error {
	var err error
	a.registry, err = action.RegisterBuiltins(action.NewBuilder(), a.Config.Actions).Build()
	if err != nil {
		return err
	}
	logger.Info("actions registered", zap.Strings("actions", a.registry.Names()))
	return nil
}

func (a *Agent) setupMetadata() error {
	a.metadataService = metadata.NewService(a.flowStorage, a.registry, a.Config.EngineConfig.MaxHops)
	if a.Config.FlowConfig.Dir == "" {
		return nil
	}
	a.fileLoader = metadata.NewFileLoader(a.Config.FlowConfig.Dir, a.metadataService)
	n, err := a.fileLoader.Load(context.Background())
	if err != nil {
		return err
	}
	logger.Info("flow files loaded", zap.String("dir", a.Config.FlowConfig.Dir), zap.Int("saved", n))
	return nil
}

func (a *Agent) setupEngine() error {
	var sink outbound.Sink = outbound.NewLogSink()
	if a.Config.OutboundConfig.Url != "" {
		sink = outbound.NewWebhookSink(a.Config.OutboundConfig.Url, time.Duration(a.Config.OutboundConfig.TimeoutSeconds)*time.Second)
	}
	a.dispatcher = dispatcher.NewDispatcher(a.queue, a.delayQueue, a.ring, sink, a.ledger)
	a.engine = engine.NewEngine(a.contexts, a.ledger, a.metadataService, a.registry, nil, a.dispatcher, engine.Options{
		DefaultFlow: a.Config.EngineConfig.DefaultFlow,
		Sync:        a.Config.DispatchMode == config.DISPATCH_MODE_SYNC,
		RetryCount:  a.Config.EngineConfig.RetryCount,
		RetryAfter:  time.Duration(a.Config.EngineConfig.RetryAfterSeconds) * time.Second,
		RetryPolicy: a.Config.EngineConfig.RetryPolicy,
	})
	return nil
}

func (a *Agent) setupExecutors() error {
	ec := a.Config.ExecutorConfig
	a.executors = []executor.Executor{
		executor.NewResumeExecutor(a.engine, a.queue, a.ring, executor.ResumeExecutorConfig{
			Lanes:        ec.Lanes,
			Capacity:     ec.Capacity,
			BatchSize:    ec.BatchSize,
			PollInterval: ec.PollInterval,
		}, &a.wg),
		executor.NewRetryExecutor(a.delayQueue, a.dispatcher, time.Second, &a.wg),
		executor.NewTimeoutExecutor(a.engine, a.delayQueue, time.Second, &a.wg),
		executor.NewSweepExecutor(a.engine, ec.SweepInterval, ec.SweepAfter, ec.BatchSize, &a.wg),
	}
	return nil
}

func (a *Agent) setupHttpServer() error {
	var err error
	a.httpServer, err = rest.NewServer(a.Config.HttpPort, a.engine, a.metadataService, a.registry)
	return err
}

func (a *Agent) Start() error {
	if a.fileLoader != nil && a.Config.FlowConfig.ReloadSchedule != "" {
		if err := a.fileLoader.Start(a.Config.FlowConfig.ReloadSchedule); err != nil {
			return err
		}
	}
	for _, ex := range a.executors {
		if err := ex.Start(); err != nil {
			return err
		}
		logger.Info("executor started", zap.String("executor", ex.Name()))
	}
	go func() {
		if err := a.httpServer.Start(); err != nil {
			logger.Error("http server stopped", zap.Error(err))
			_ = a.Shutdown()
		}
	}()
	return nil
}

func (a *Agent) Shutdown() error {
	logger.Info("shutting down server")
	a.shutdownLock.Lock()
	defer a.shutdownLock.Unlock()
	if a.shutdown {
		return nil
	}
	a.shutdown = true

	shutdown := []func() error{
		a.httpServer.Stop,
		func() error {
			if a.fileLoader != nil {
				a.fileLoader.Stop()
			}
			return nil
		},
	}
	for _, ex := range a.executors {
		shutdown = append(shutdown, ex.Stop)
	}
	for _, fn := range shutdown {
		if err := fn(); err != nil {
			return err
		}
	}
	a.wg.Wait()
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			logger.Error("error closing redis client", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logger.Error("error closing sqlite database", zap.Error(err))
		}
	}
	return logger.Sync()
}
