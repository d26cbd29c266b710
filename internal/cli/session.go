package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bagoessprasetyo/property-management-sub000/internal/config"
	"github.com/bagoessprasetyo/property-management-sub000/internal/domain"
	"github.com/bagoessprasetyo/property-management-sub000/internal/engine"
	"github.com/bagoessprasetyo/property-management-sub000/internal/feed"
	"github.com/bagoessprasetyo/property-management-sub000/internal/store"
)

// session is the store, engine and feed transport of one command run.
type session struct {
	cfg    config.Config
	logger *zap.Logger
	store  *store.Store
	engine *engine.Engine

	// Exactly one of broker and redis is set, per cfg.Feed.Source.
	broker *feed.Broker
	redis  *redis.Client
}

// openSession loads the configuration, opens the store and builds an
// engine over it. Store writes are published on the configured feed
// transport so other pmgrid processes see them.
func (o *RootOptions) openSession() (*session, error) {
	cfg, logger, err := o.load()
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, logger: logger}
	var pub feed.Publisher
	switch cfg.Feed.Source {
	case config.SourceRedis:
		s.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pub = feed.NewRedisPublisher(s.redis, feed.WithRedisLogger(logger))
	default:
		s.broker = feed.NewBroker(0)
		pub = s.broker
	}

	st, err := store.Open(cfg.Database,
		store.WithPublisher(pub),
		store.WithLogger(logger),
	)
	if err != nil {
		s.close()
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to open database %s", cfg.Database), err)
	}
	s.store = st

	s.engine = engine.New(st,
		engine.WithLogger(logger),
		engine.WithPropertyID(cfg.PropertyID),
		engine.WithDebounce(cfg.Debounce),
		engine.WithPollInterval(cfg.PollInterval),
	)
	return s, nil
}

// source returns the change feed for watch.
func (s *session) source(ctx context.Context) (feed.Source, error) {
	if s.redis == nil {
		return s.broker, nil
	}
	if err := feed.Ping(ctx, s.redis); err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("redis %s unreachable", s.cfg.Redis.Addr), err)
	}
	return feed.NewRedisSource(s.redis, feed.WithRedisLogger(s.logger)), nil
}

func (s *session) close() {
	if s.engine != nil {
		s.engine.Stop()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("closing store", zap.Error(err))
		}
	}
	if s.broker != nil {
		s.broker.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	_ = s.logger.Sync()
}

// today is the current local date.
func today() domain.Date {
	return domain.DateOf(time.Now())
}

// parseDateFlag parses a YYYY-MM-DD flag value; empty yields def.
func parseDateFlag(name, value string, def domain.Date) (domain.Date, error) {
	if value == "" {
		return def, nil
	}
	d, err := domain.ParseDate(value)
	if err != nil {
		return domain.Date{}, NewExitError(ExitCommandError, fmt.Sprintf("--%s: %v", name, err))
	}
	return d, nil
}
