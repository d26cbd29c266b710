package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bagoessprasetyo/property-management-sub000/internal/domain"
)

// Redis pub/sub channels carrying change envelopes.
const (
	StaysChannel = "pm:changes:stays"
	RoomsChannel = "pm:changes:rooms"
)

// Channel returns the pub/sub channel for kind.
func Channel(kind domain.EntityKind) string {
	if kind == domain.EntityRoom {
		return RoomsChannel
	}
	return StaysChannel
}

// EncodeEvent returns the JSON envelope for e.
func EncodeEvent(e domain.ChangeEvent) ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEvent parses and checks a JSON envelope.
func DecodeEvent(data []byte) (domain.ChangeEvent, error) {
	var e domain.ChangeEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return domain.ChangeEvent{}, fmt.Errorf("decode change envelope: %w", err)
	}
	switch e.Entity {
	case domain.EntityStay, domain.EntityRoom:
	default:
		return domain.ChangeEvent{}, fmt.Errorf("decode change envelope: unknown entity %q", e.Entity)
	}
	switch e.Op {
	case domain.OpInsert, domain.OpUpdate, domain.OpDelete:
	default:
		return domain.ChangeEvent{}, fmt.Errorf("decode change envelope: unknown op %q", e.Op)
	}
	if e.StayID() == "" && e.RoomID() == "" {
		return domain.ChangeEvent{}, errors.New("decode change envelope: no record")
	}
	return e, nil
}

// RedisSource is a Source reading change envelopes from Redis pub/sub.
// A subscription is acknowledged when Redis answers the SUBSCRIBE.
type RedisSource struct {
	client redis.UniversalClient
	logger *zap.Logger
	buffer int
}

// RedisOption configures a RedisSource or RedisPublisher.
type RedisOption func(*redisConfig)

type redisConfig struct {
	logger  *zap.Logger
	buffer  int
	timeout time.Duration
}

// WithRedisLogger sets the logger.
func WithRedisLogger(logger *zap.Logger) RedisOption {
	return func(c *redisConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRedisBuffer sets the per-subscription event buffer.
func WithRedisBuffer(n int) RedisOption {
	return func(c *redisConfig) {
		if n > 0 {
			c.buffer = n
		}
	}
}

// WithPublishTimeout bounds each PUBLISH.
func WithPublishTimeout(d time.Duration) RedisOption {
	return func(c *redisConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func newRedisConfig(opts []RedisOption) redisConfig {
	cfg := redisConfig{logger: zap.NewNop(), buffer: DefaultBuffer, timeout: 2 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// NewRedisSource creates a source on client.
func NewRedisSource(client redis.UniversalClient, opts ...RedisOption) *RedisSource {
	cfg := newRedisConfig(opts)
	return &RedisSource{client: client, logger: cfg.logger, buffer: cfg.buffer}
}

// Subscribe implements Source.
func (s *RedisSource) Subscribe(ctx context.Context, kind domain.EntityKind, filter domain.ChangeFilter) (Subscription, error) {
	channel := Channel(kind)
	ps := s.client.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	sub := &redisSub{
		ps:     ps,
		events: make(chan domain.ChangeEvent, s.buffer),
		done:   make(chan struct{}),
	}
	go sub.run(kind, filter, s.logger.With(zap.String("channel", channel)))
	return sub, nil
}

type redisSub struct {
	ps      *redis.PubSub
	events  chan domain.ChangeEvent
	done    chan struct{}
	closing atomic.Bool
	once    sync.Once

	mu  sync.Mutex
	err error
}

func (s *redisSub) Events() <-chan domain.ChangeEvent { return s.events }

func (s *redisSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() {
		s.closing.Store(true)
		close(s.done)
		err = s.ps.Close()
	})
	return err
}

func (s *redisSub) run(kind domain.EntityKind, filter domain.ChangeFilter, logger *zap.Logger) {
	defer close(s.events)
	for {
		msg, err := s.ps.ReceiveMessage(context.Background())
		if err != nil {
			if s.closing.Load() || errors.Is(err, redis.ErrClosed) {
				return
			}
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			return
		}

		e, err := DecodeEvent([]byte(msg.Payload))
		if err != nil {
			logger.Warn("dropping malformed change envelope", zap.Error(err))
			continue
		}
		if e.Entity != kind || !filter.Matches(e) {
			continue
		}
		select {
		case s.events <- e:
		case <-s.done:
			return
		}
	}
}

// RedisPublisher publishes change envelopes to Redis. It implements
// Publisher; publish failures are logged, not returned, so a store write
// never fails because the feed is down.
type RedisPublisher struct {
	client  redis.UniversalClient
	logger  *zap.Logger
	timeout time.Duration
}

// NewRedisPublisher creates a publisher on client.
func NewRedisPublisher(client redis.UniversalClient, opts ...RedisOption) *RedisPublisher {
	cfg := newRedisConfig(opts)
	return &RedisPublisher{client: client, logger: cfg.logger, timeout: cfg.timeout}
}

// Publish implements Publisher.
func (p *RedisPublisher) Publish(e domain.ChangeEvent) {
	data, err := EncodeEvent(e)
	if err != nil {
		p.logger.Error("encoding change envelope", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.client.Publish(ctx, Channel(e.Entity), data).Err(); err != nil {
		p.logger.Warn("publishing change envelope",
			zap.String("channel", Channel(e.Entity)),
			zap.Error(err),
		)
	}
}

// Ping checks that the Redis server is reachable.
func Ping(ctx context.Context, client redis.UniversalClient) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}
