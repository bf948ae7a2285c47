// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ManuGH/ordertrack/internal/cache"
	"github.com/ManuGH/ordertrack/internal/changestream"
	"github.com/ManuGH/ordertrack/internal/changestream/amqpstream"
	"github.com/ManuGH/ordertrack/internal/changestream/memory"
	"github.com/ManuGH/ordertrack/internal/changestream/redisstream"
	"github.com/ManuGH/ordertrack/internal/changestream/wsstream"
	"github.com/ManuGH/ordertrack/internal/config"
	"github.com/ManuGH/ordertrack/internal/directions"
	"github.com/ManuGH/ordertrack/internal/health"
	"github.com/ManuGH/ordertrack/internal/log"
	"github.com/ManuGH/ordertrack/internal/metrics"
	"github.com/ManuGH/ordertrack/internal/notify"
	"github.com/ManuGH/ordertrack/internal/realtime"
	"github.com/ManuGH/ordertrack/internal/statusstore"
	"github.com/ManuGH/ordertrack/internal/telemetry"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const streamKeyPrefix = "ordertrack:"

// Runtime is the wired engine plus every resource it owns.
type Runtime struct {
	Engine   *realtime.Engine
	Store    statusstore.Store
	Provider changestream.Provider
	// Hub re-serves Provider to WebSocket clients.
	Hub    *wsstream.Hub
	Health *health.Manager

	logger     zerolog.Logger
	telemetry  *telemetry.Provider
	directions *directions.Client
	closeSinks func() error
	closers    []namedCloser
	handles    []*realtime.Handle
}

type namedCloser struct {
	name  string
	close func() error
}

// Build wires the runtime from cfg. On error everything opened so far is
// released.
func Build(ctx context.Context, cfg config.AppConfig) (_ *Runtime, err error) {
	rt := &Runtime{logger: log.WithComponent("bootstrap")}
	defer func() {
		if err != nil {
			_ = rt.Close(context.WithoutCancel(ctx))
		}
	}()

	rt.telemetry, err = telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:      cfg.Telemetry.Enabled,
		ServiceName:  cfg.Log.Service,
		Environment:  cfg.Telemetry.Environment,
		ExporterType: cfg.Telemetry.Exporter,
		Endpoint:     cfg.Telemetry.Endpoint,
		SamplingRate: cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	rt.Store, err = statusstore.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, namedCloser{"status_store", rt.Store.Close})

	rt.Provider, err = rt.openProvider(ctx, cfg.Stream)
	if err != nil {
		return nil, err
	}

	sinks, closeSinks, err := notify.FromConfig(cfg.Notify, dialAMQPChannel)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, namedCloser{"notify_sinks", closeSinks})

	var routes directions.Provider
	if cfg.Directions.Enabled {
		if rt.directions, err = rt.openDirections(cfg.Directions); err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, namedCloser{"directions", rt.directions.Close})
		routes = rt.directions
	}

	rt.Engine, err = realtime.New(realtime.Options{
		Provider:   rt.Provider,
		Sink:       sinks,
		Store:      rt.Store,
		Directions: routes,
	})
	if err != nil {
		return nil, err
	}
	rt.Hub = wsstream.NewHub(rt.Provider, nil)

	rt.Health = health.NewManager()
	rt.Health.Register(health.StoreChecker(rt.Store))
	for _, s := range sinks.Sinks() {
		if w, ok := s.(*notify.WebhookSink); ok {
			rt.Health.Register(health.BreakerChecker(metrics.BreakerWebhook, w.BreakerState))
		}
	}
	if rt.directions != nil {
		rt.Health.Register(health.BreakerChecker(metrics.BreakerDirections, rt.directions.BreakerState))
	}

	rt.logger.Info().
		Str("store", cfg.Store.Backend).
		Str("stream", cfg.Stream.Provider).
		Int("sinks", sinks.Len()).
		Bool("directions", cfg.Directions.Enabled).
		Msg("runtime wired")
	return rt, nil
}

func (rt *Runtime) openProvider(ctx context.Context, cfg config.StreamConfig) (changestream.Provider, error) {
	switch cfg.Provider {
	case "", "memory":
		p := memory.New()
		rt.closers = append(rt.closers, namedCloser{"stream_memory", p.Close})
		return p, nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, namedCloser{"stream_redis_client", client.Close})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("stream: redis ping: %w", err)
		}
		p := redisstream.NewProvider(client, redisstream.Options{Prefix: streamKeyPrefix})
		rt.closers = append(rt.closers, namedCloser{"stream_redis", p.Close})
		return p, nil

	case "amqp":
		conn, err := amqp.Dial(cfg.AMQP.URL)
		if err != nil {
			return nil, fmt.Errorf("stream: dial amqp: %w", err)
		}
		rt.closers = append(rt.closers, namedCloser{"stream_amqp_conn", conn.Close})
		p := amqpstream.NewProvider(amqpstream.ConnectionOpener(conn), cfg.AMQP.Exchange)
		rt.closers = append(rt.closers, namedCloser{"stream_amqp", p.Close})
		return p, nil

	case "ws":
		p, err := wsstream.Dial(ctx, cfg.WSURL, nil)
		if err != nil {
			return nil, fmt.Errorf("stream: %w", err)
		}
		rt.closers = append(rt.closers, namedCloser{"stream_ws", p.Close})
		return p, nil

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

func (rt *Runtime) openDirections(cfg config.DirectionsConfig) (*directions.Client, error) {
	if cfg.CacheBackend == "redis" {
		c, err := cache.NewRedis[directions.Route](cache.RedisConfig{
			Addr:     cfg.CacheRedis.Addr,
			Password: cfg.CacheRedis.Password,
			DB:       cfg.CacheRedis.DB,
			Prefix:   streamKeyPrefix + "route:",
		}, log.WithComponent("cache"))
		if err != nil {
			return nil, fmt.Errorf("directions cache: %w", err)
		}
		client, err := directions.New(cfg, directions.WithCache(c))
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		return client, nil
	}
	return directions.New(cfg)
}

// amqpNotifyChannel releases the connection together with its channel.
type amqpNotifyChannel struct {
	*amqp.Channel
	conn *amqp.Connection
}

func (c amqpNotifyChannel) Close() error {
	return errors.Join(c.Channel.Close(), c.conn.Close())
}

func dialAMQPChannel(url string) (notify.AMQPChannel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return amqpNotifyChannel{Channel: ch, conn: conn}, nil
}

// Start primes the status cache and opens the configured background
// subscriptions.
func (rt *Runtime) Start(ctx context.Context, watch config.WatchConfig) error {
	primed, err := rt.Engine.PrimeFromStore(ctx)
	if err != nil {
		rt.logger.Warn().Err(err).Msg("could not prime status cache from store")
	} else {
		rt.logger.Info().Int("statuses", primed).Msg("primed status cache")
	}

	for _, userID := range watch.Users {
		logger := rt.logger.With().Str(log.FieldUserID, userID).Logger()
		h, err := rt.Engine.SubscribeToUserOrders(userID, func(u realtime.ListUpdate) {
			if u.Err != nil {
				logger.Warn().Err(u.Err).Msg("order list update carried errors")
			}
			logger.Debug().Int("orders", len(u.Orders)).Msg("order list updated")
		})
		if err != nil {
			return fmt.Errorf("watch user %q: %w", userID, err)
		}
		rt.handles = append(rt.handles, h)
	}

	for _, orderID := range watch.Orders {
		logger := rt.logger.With().Str(log.FieldOrderID, orderID).Logger()
		h, err := rt.Engine.SubscribeToOrder(orderID, func(u realtime.Update) {
			switch {
			case u.Err != nil:
				logger.Warn().Err(u.Err).Msg("order update carried an error")
			case u.Order == nil:
				logger.Debug().Msg("order does not exist")
			default:
				logger.Debug().Str("status", string(u.Order.StatusProgress)).Msg("order updated")
			}
		})
		if err != nil {
			return fmt.Errorf("watch order %q: %w", orderID, err)
		}
		rt.handles = append(rt.handles, h)
	}
	return nil
}

// Handler returns the ops HTTP surface over this runtime.
func (rt *Runtime) Handler(cfg config.AppConfig) http.Handler {
	tracingService := ""
	if cfg.Telemetry.Enabled {
		tracingService = cfg.Log.Service
	}
	return NewRouter(rt.Engine, RouterConfig{
		RateLimit:      cfg.Server.RateLimit,
		TracingService: tracingService,
		Stream:         rt.Hub,
		Readiness:      rt.Health,
	})
}

// RegisterHooks hands the runtime's teardown to m. Hooks run LIFO, so the
// engine stops before the resources it uses.
func (rt *Runtime) RegisterHooks(m Manager) {
	m.RegisterShutdownHook("telemetry", rt.telemetry.Shutdown)
	m.RegisterShutdownHook("resources", func(context.Context) error { return rt.close() })
	m.RegisterShutdownHook("stream_hub", func(context.Context) error {
		rt.Hub.Close()
		return nil
	})
	m.RegisterShutdownHook("engine", rt.Engine.Shutdown)
}

// close releases owned resources in reverse opening order.
func (rt *Runtime) close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		c := rt.closers[i]
		if err := c.close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// Close tears the runtime down without a Manager. Build uses it to unwind
// a partial runtime.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.Engine != nil {
		errs = append(errs, rt.Engine.Shutdown(ctx))
	}
	if rt.Hub != nil {
		rt.Hub.Close()
	}
	errs = append(errs, rt.close())
	if rt.telemetry != nil {
		errs = append(errs, rt.telemetry.Shutdown(ctx))
	}
	return errors.Join(errs...)
}
