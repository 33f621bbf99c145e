package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/taskpool/pkg/metrics"
	"github.com/vnykmshr/taskpool/pkg/ratelimit/bucket"
	"github.com/vnykmshr/taskpool/pkg/scheduling/scheduler"
	"github.com/vnykmshr/taskpool/pkg/scheduling/workerpool"
	"github.com/vnykmshr/taskpool/pkg/sink"
	"github.com/vnykmshr/taskpool/pkg/sink/eventsink"
	"github.com/vnykmshr/taskpool/pkg/sink/journal"
	"github.com/vnykmshr/taskpool/pkg/sink/redissink"
)

// runtime is the pool and its collaborators for one command run.
type runtime struct {
	pool    *workerpool.Pool
	sched   *scheduler.Scheduler
	text    *sink.Text
	closers []func()
}

func (a *app) start(ctx context.Context) (*runtime, error) {
	cfg := a.cfg
	log := a.logger.Sugar()
	rt := &runtime{text: sink.NewText()}
	sinks := sink.Multi{newConsole(a.out), rt.text}

	var reg *metrics.Registry
	if cfg.Metrics.Addr != "" {
		promReg := prometheus.NewRegistry()
		promReg.MustRegister(collectors.NewGoCollector())
		reg = metrics.Config{
			Enabled:   true,
			Registry:  promReg,
			Namespace: cfg.Metrics.Namespace,
		}.Build()

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Errorw("metrics server failed", "addr", cfg.Metrics.Addr, "error", err)
			}
		}()
		rt.closers = append(rt.closers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		})
		log.Infow("serving metrics", "addr", cfg.Metrics.Addr)
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		rs, err := redissink.New(redissink.Config{
			Redis:   rdb,
			Prefix:  cfg.Redis.Prefix,
			Timeout: cfg.Redis.Timeout,
			Logger:  a.logger,
		})
		if err != nil {
			_ = rdb.Close()
			rt.close(false)
			return nil, err
		}
		sinks = append(sinks, rs)
		rt.closers = append(rt.closers, func() { _ = rdb.Close() })
	}

	if cfg.Events.Enabled {
		pubsub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: int64(cfg.Pool.DeliveryBuffer)}, watermill.NopLogger{})
		messages, err := pubsub.Subscribe(ctx, cfg.Events.Topic)
		if err != nil {
			rt.close(false)
			return nil, err
		}
		go func() {
			for msg := range messages {
				log.Infow("event", "topic", cfg.Events.Topic, "kind", msg.Metadata.Get(eventsink.MetadataKind), "payload", string(msg.Payload))
				msg.Ack()
			}
		}()

		es, err := eventsink.New(eventsink.Config{Publisher: pubsub, Topic: cfg.Events.Topic, Logger: a.logger})
		if err != nil {
			_ = pubsub.Close()
			rt.close(false)
			return nil, err
		}
		sinks = append(sinks, es)
		rt.closers = append(rt.closers, func() { _ = pubsub.Close() })
	}

	if cfg.Journal.Path != "" {
		f, err := os.OpenFile(cfg.Journal.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			rt.close(false)
			return nil, fmt.Errorf("open journal: %w", err)
		}
		j, err := journal.New(journal.Config{
			Writer:        f,
			FlushInterval: cfg.Journal.FlushInterval,
			MaxRetries:    journal.DefaultConfig().MaxRetries,
			Logger:        a.logger,
		})
		if err != nil {
			_ = f.Close()
			rt.close(false)
			return nil, err
		}
		sinks = append(sinks, j)
		rt.closers = append(rt.closers, func() {
			if err := j.Close(); err != nil {
				log.Warnw("journal close", "path", cfg.Journal.Path, "error", err)
			}
			_ = f.Close()
		})
	}

	pool, err := workerpool.NewWithConfig(workerpool.Config{
		Name:           cfg.Pool.Name,
		WorkerCount:    cfg.Pool.Workers,
		DeliveryBuffer: cfg.Pool.DeliveryBuffer,
		TaskTimeout:    cfg.Pool.TaskTimeout,
		ProgressRate:   bucket.Limit(cfg.Pool.ProgressRate),
		ProgressBurst:  cfg.Pool.ProgressBurst,
		Sink:           sinks,
		Logger:         a.logger,
		Metrics:        reg,
	})
	if err != nil {
		rt.close(false)
		return nil, err
	}
	rt.pool = pool
	rt.sched = scheduler.New(pool,
		scheduler.WithName(cfg.Pool.Name),
		scheduler.WithLogger(a.logger),
		scheduler.WithMetrics(reg),
	)
	return rt, nil
}

// close stops the scheduler and pool, then releases the outputs.
func (rt *runtime) close(drain bool) {
	if rt.sched != nil {
		rt.sched.Close(drain)
	}
	if rt.pool != nil {
		rt.pool.Shutdown(drain)
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}
