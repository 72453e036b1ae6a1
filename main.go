package main

import (
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mohitkumar/chatflow/agent"
	"github.com/mohitkumar/chatflow/analytics"
	"github.com/mohitkumar/chatflow/config"
	"github.com/mohitkumar/chatflow/logger"
	"github.com/mohitkumar/chatflow/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type cfg struct {
	config.Config
}
type cli struct {
	cfg cfg
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().String("config-file", "", "Path to config file.")
	cmd.Flags().String("redis-addr", "localhost:6379", "comma separated list of redis host:port")
	cmd.Flags().String("namespace", "chatflow", "namespace used in storage")
	cmd.Flags().Int("redis-pool-size", 0, "redis connection pool size, 0 uses the client default")
	cmd.Flags().Int("lock-ttl-ms", 30000, "expiry of the per contact lock")
	cmd.Flags().Int("http-port", 8080, "http port for rest endpoints")
	cmd.Flags().String("storage-impl", "memory", "implementation of context and ledger storage: redis, sqlite or memory")
	cmd.Flags().String("sqlite-path", "chatflow.db", "sqlite database file used by the sqlite storage")
	cmd.Flags().String("queue-impl", "memory", "implementation of underline queue: redis or memory")
	cmd.Flags().String("dispatch-mode", "async", "async queues events for workers, sync processes them in the request")
	cmd.Flags().Int("partition-count", 16, "number of partitions contacts are hashed to")
	cmd.Flags().String("node-name", "node-1", "name of this node in the partition ring")
	cmd.Flags().String("peers", "", "comma separated list of other node names sharing the queues")
	cmd.Flags().Int("worker-lanes", 4, "number of resume worker lanes")
	cmd.Flags().Int("executor-capacity", 512, "buffered jobs per worker lane")
	cmd.Flags().Int("batch-size", 32, "jobs popped per partition per poll")
	cmd.Flags().Int("poll-interval-ms", 100, "resume queue poll interval")
	cmd.Flags().Int("sweep-interval-ms", 60000, "interval between sweeps for stuck inbound entries")
	cmd.Flags().Int("sweep-after-seconds", 300, "age after which a new or queued inbound entry is swept")
	cmd.Flags().Int("max-hops", 0, "default auto advance hop limit, 0 uses the built in default")
	cmd.Flags().String("default-flow", "", "flow started when a contact without an active flow writes in")
	cmd.Flags().Int("resume-retry-count", 3, "times a failed resume job is retried")
	cmd.Flags().Int("resume-retry-after-seconds", 5, "delay before a failed resume job is retried")
	cmd.Flags().String("resume-retry-policy", "FIXED", "retry delay policy: FIXED or BACKOFF")
	cmd.Flags().String("flow-dir", "", "directory of flow definition yaml files loaded on start")
	cmd.Flags().String("flow-reload-schedule", "", "cron schedule for reloading the flow directory")
	cmd.Flags().String("outbound-url", "", "webhook receiving outbound instructions, empty logs them")
	cmd.Flags().Int("outbound-timeout-seconds", 10, "timeout of an outbound webhook call")
	cmd.Flags().String("analytics-file", "", "file receiving flow analytics events, empty disables them")
	cmd.Flags().String("log-level", "info", "log level")
	cmd.Flags().String("log-encoding", "json", "log encoding: json or console")
	return viper.BindPFlags(cmd.Flags())
}

func (c *cli) setupConfig(cmd *cobra.Command, args []string) error {
	var err error

	configFile, err := cmd.Flags().GetString("config-file")
	if err != nil {
		return err
	}
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err = viper.ReadInConfig(); err != nil {
			// it's ok if config file doesn't exist
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return err
			}
		}
	}
	viper.SetEnvPrefix("CHATFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	c.cfg.RedisConfig.Addrs = strings.Split(viper.GetString("redis-addr"), ",")
	c.cfg.RedisConfig.Namespace = viper.GetString("namespace")
	c.cfg.RedisConfig.PoolSize = viper.GetInt("redis-pool-size")
	c.cfg.RedisConfig.LockTTL = time.Duration(viper.GetInt("lock-ttl-ms")) * time.Millisecond
	c.cfg.SqliteConfig.Path = viper.GetString("sqlite-path")
	c.cfg.HttpPort = viper.GetInt("http-port")
	c.cfg.StorageType = config.StorageType(viper.GetString("storage-impl"))
	c.cfg.QueueType = config.QueueType(viper.GetString("queue-impl"))
	c.cfg.DispatchMode = config.DispatchMode(viper.GetString("dispatch-mode"))

	c.cfg.ClusterConfig.NodeName = viper.GetString("node-name")
	c.cfg.ClusterConfig.PartitionCount = viper.GetInt("partition-count")
	if peers := viper.GetString("peers"); peers != "" {
		c.cfg.ClusterConfig.Peers = strings.Split(peers, ",")
	}

	c.cfg.ExecutorConfig.Lanes = viper.GetInt("worker-lanes")
	c.cfg.ExecutorConfig.Capacity = viper.GetInt("executor-capacity")
	c.cfg.ExecutorConfig.BatchSize = viper.GetInt("batch-size")
	c.cfg.ExecutorConfig.PollInterval = time.Duration(viper.GetInt("poll-interval-ms")) * time.Millisecond
	c.cfg.ExecutorConfig.SweepInterval = time.Duration(viper.GetInt("sweep-interval-ms")) * time.Millisecond
	c.cfg.ExecutorConfig.SweepAfter = time.Duration(viper.GetInt("sweep-after-seconds")) * time.Second

	c.cfg.EngineConfig.MaxHops = viper.GetInt("max-hops")
	c.cfg.EngineConfig.DefaultFlow = viper.GetString("default-flow")
	c.cfg.EngineConfig.RetryCount = viper.GetInt("resume-retry-count")
	c.cfg.EngineConfig.RetryAfterSeconds = viper.GetInt("resume-retry-after-seconds")
	c.cfg.EngineConfig.RetryPolicy = model.RetryPolicy(strings.ToUpper(viper.GetString("resume-retry-policy")))

	c.cfg.FlowConfig.Dir = viper.GetString("flow-dir")
	c.cfg.FlowConfig.ReloadSchedule = viper.GetString("flow-reload-schedule")

	c.cfg.OutboundConfig.Url = viper.GetString("outbound-url")
	c.cfg.OutboundConfig.TimeoutSeconds = viper.GetInt("outbound-timeout-seconds")

	c.cfg.AnalyticsConfig.CollectorType = analytics.NOOP_DATA_COLLECTOR
	if file := viper.GetString("analytics-file"); file != "" {
		c.cfg.AnalyticsConfig.CollectorType = analytics.LOG_FILE_DATA_COLLECTOR
		c.cfg.AnalyticsConfig.FileName = file
	}

	c.cfg.LogConfig.Level = viper.GetString("log-level")
	c.cfg.LogConfig.Encoding = viper.GetString("log-encoding")

	if err = viper.UnmarshalKey("actions", &c.cfg.Actions); err != nil {
		return err
	}
	return logger.Init(c.cfg.LogConfig.Level, c.cfg.LogConfig.Encoding)
}

func (c *cli) run(cmd *cobra.Command, args []string) error {
	var err error
	agent, err := agent.New(c.cfg.Config)
	if err != nil {
		return err
	}
	err = agent.Start()
	if err != nil {
		return err
	}
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	return agent.Shutdown()
}

func main() {
	cli := &cli{}

	cmd := &cobra.Command{
		Use:     "chatflow",
		Short:   "conversational flow engine",
		PreRunE: cli.setupConfig,
		RunE:    cli.run,
	}

	if err := setupFlags(cmd); err != nil {
		log.Fatal(err)
	}

	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
