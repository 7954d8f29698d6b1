package sessionauth

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/relaychat/sessionauth/kv"
	"github.com/relaychat/sessionauth/session"
)

// Builder wires a [Service] from its configuration and collaborators.
//
// Builder instances are intended to be configured before Build and then
// discarded; construction is allocation-only until Build.
type Builder struct {
	config   Config
	store    kv.Store
	logger   zerolog.Logger
	registry prometheus.Registerer
}

// New returns a Builder seeded with the default configuration: 24h session
// TTL, 24h inactivity ceiling, 3 create retries, key prefix "sa".
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
		logger: zerolog.Nop(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStore supplies the key-value backend directly, bypassing the Redis
// settings in the configuration.
func (b *Builder) WithStore(store kv.Store) *Builder {
	b.store = store
	return b
}

// WithRedis wraps an existing Redis client as the key-value backend. The
// caller keeps ownership of the client's lifecycle.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.store = kv.NewRedisFromClient(client)
	return b
}

// WithLogger sets the structured logger. Without one the service is silent.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsRegistry registers the lifecycle counters against reg.
func (b *Builder) WithMetricsRegistry(reg prometheus.Registerer) *Builder {
	b.registry = reg
	return b
}

// Build validates the configuration, dials Redis when no store was supplied,
// and returns the ready Service.
func (b *Builder) Build(ctx context.Context) (*Service, error) {
	b.config.normalize()
	if err := b.config.validate(); err != nil {
		return nil, err
	}

	store := b.store
	if store == nil {
		if b.config.Redis.Addr == "" {
			return nil, fmt.Errorf("%w: no store or redis address configured", ErrServiceNotReady)
		}
		redisStore, err := kv.NewRedis(ctx, b.config.Redis)
		if err != nil {
			return nil, err
		}
		store = redisStore
	}

	return &Service{
		store:   store,
		keys:    session.NewKeys(b.config.Session.KeyPrefix),
		cfg:     b.config.Session,
		log:     b.logger,
		metrics: newMetrics(b.registry),
	}, nil
}
