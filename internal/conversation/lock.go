package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-booking-engine/pkg/logging"
)

// ErrLockHeld is returned when the session lock could not be obtained before
// the context ended.
var ErrLockHeld = errors.New("conversation: session lock held")

const (
	defaultLockTTL      = 2 * time.Minute
	lockPollInterval    = 50 * time.Millisecond
	lockReleaseTimeout  = 2 * time.Second
	turnLockKeyTemplate = "conversation:lock:%s"
)

// TurnLocker serialises turns for one (clinic, phone). Acquire blocks until
// the lock is free or ctx ends; the returned func releases it.
type TurnLocker interface {
	Acquire(ctx context.Context, clinicID, phone string) (release func(), err error)
}

// MemoryTurnLocker is a keyed mutex for single-process deployments.
type MemoryTurnLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func NewMemoryTurnLocker() *MemoryTurnLocker {
	return &MemoryTurnLocker{slots: make(map[string]chan struct{})}
}

func (l *MemoryTurnLocker) Acquire(ctx context.Context, clinicID, phone string) (func(), error) {
	key := SessionID(clinicID, phone)
	l.mu.Lock()
	slot, ok := l.slots[key]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[key] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-slot }) }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrLockHeld, ctx.Err())
	}
}

// releaseScript deletes the key only if it still holds our token, so an
// expired lock taken over by another worker is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisTurnLocker shares the turn lock across worker processes.
type RedisTurnLocker struct {
	client *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

func NewRedisTurnLocker(client *redis.Client, ttl time.Duration, logger *logging.Logger) *RedisTurnLocker {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RedisTurnLocker{client: client, ttl: ttl, logger: logger}
}

func (l *RedisTurnLocker) Acquire(ctx context.Context, clinicID, phone string) (func(), error) {
	key := fmt.Sprintf(turnLockKeyTemplate, SessionID(clinicID, phone))
	token := uuid.NewString()

	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("conversation: acquire lock: %w", err)
		}
		if ok {
			var once sync.Once
			return func() { once.Do(func() { l.release(key, token) }) }, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrLockHeld, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *RedisTurnLocker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), lockReleaseTimeout)
	defer cancel()
	if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil {
		l.logger.Warn("failed to release turn lock", "key", key, "error", err)
	}
}
