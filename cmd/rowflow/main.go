// Command rowflow executes a pipeline definition.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/rowflow/pkg/cluster"
	"github.com/vnykmshr/rowflow/pkg/metrics"
	"github.com/vnykmshr/rowflow/pkg/pipeline"
	"github.com/vnykmshr/rowflow/pkg/status"
	"github.com/vnykmshr/rowflow/pkg/steps"
	"github.com/vnykmshr/rowflow/pkg/trans"
)

type options struct {
	config     string
	validate   bool
	statusAddr string
	redisAddr  string
	clusterID  string
	monitor    time.Duration
	verbose    bool
}

func main() {
	var opts options
	flag.StringVar(&opts.config, "config", envOr("ROWFLOW_CONFIG", "pipeline.json"), "pipeline definition JSON path")
	flag.BoolVar(&opts.validate, "validate", false, "validate the definition and exit")
	flag.StringVar(&opts.statusAddr, "status-addr", os.Getenv("ROWFLOW_STATUS_ADDR"), "serve status, control and metrics on this address")
	flag.StringVar(&opts.redisAddr, "redis-addr", os.Getenv("ROWFLOW_REDIS_ADDR"), "Redis address used to share the cluster distribution table")
	flag.StringVar(&opts.clusterID, "cluster-id", os.Getenv("ROWFLOW_CLUSTER_ID"), "key of the shared distribution table (defaults to the pipeline name)")
	flag.DurationVar(&opts.monitor, "monitor", envDuration("ROWFLOW_MONITOR", 10*time.Second), "status log interval, 0 disables it")
	flag.BoolVar(&opts.verbose, "v", envBool("ROWFLOW_VERBOSE"), "enable debug logs")
	flag.Parse()

	level := slog.LevelInfo
	if opts.verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(opts, logger); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(opts options, logger *slog.Logger) error {
	def, err := pipeline.LoadFile(opts.config)
	if err != nil {
		return err
	}

	issues := def.Validate()
	for _, iss := range issues {
		fmt.Fprintln(os.Stderr, iss.Error())
	}
	if err := issues.Err(); err != nil {
		return err
	}
	if opts.validate {
		logger.Info("definition is valid", "config", opts.config, "stages", len(def.Stages))
		return nil
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	cfg := trans.DefaultConfig()
	cfg.Logger = logger
	cfg.Metrics = metrics.NewRegistry(reg)
	cfg.MonitorInterval = opts.monitor
	cfg.ClusterID = opts.clusterID
	if opts.redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: opts.redisAddr})
		defer rdb.Close()
		cfg.Store = cluster.NewRedisStore(cluster.RedisConfig{Redis: rdb, TTL: 24 * time.Hour})
	}

	t, err := trans.New(def, steps.Factory(), cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if opts.statusAddr != "" {
		h := status.NewHandler(t, status.Config{Logger: logger, Gatherer: reg})
		srvDone := make(chan error, 1)
		go func() { srvDone <- status.Serve(ctx, opts.statusAddr, h, logger) }()
		defer func() {
			cancel()
			if err := <-srvDone; err != nil {
				logger.Warn("status server", "error", err)
			}
		}()
	}

	if err := t.Prepare(ctx); err != nil {
		return err
	}
	if err := t.Start(ctx); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	interrupts := 0
	for {
		select {
		case <-t.Done():
			st := t.Status()
			logger.Info("run complete", "state", st.State, "elapsed", st.Elapsed.Truncate(time.Millisecond))
			return t.Err()
		case sig := <-sigCh:
			interrupts++
			if interrupts == 1 {
				logger.Warn("stopping sources, send again to abort", "signal", sig.String())
				t.SafeStop()
				continue
			}
			logger.Warn("aborting run", "signal", sig.String())
			t.StopAll()
		}
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string) bool {
	v, err := strconv.ParseBool(os.Getenv(key))
	return err == nil && v
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
		slog.Warn("ignoring invalid duration", "key", key, "value", v, "error", err)
	}
	return def
}
