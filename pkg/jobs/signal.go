package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pinger wakes a sleeping processor. Pings are fire-and-forget and coalesce.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Waiter blocks a processor until a ping arrives or the timeout passes.
type Waiter interface {
	WaitForPing(ctx context.Context, timeout time.Duration) (bool, error)
}

// Signal is both ends of a ping channel.
type Signal interface {
	Pinger
	Waiter
}

// LocalSignal is an in-process ping channel for a worker running in the same binary.
type LocalSignal struct {
	ch chan struct{}
}

// NewLocalSignal creates an in-process signal.
func NewLocalSignal() *LocalSignal {
	return &LocalSignal{ch: make(chan struct{}, 1)}
}

// Ping never blocks; a pending ping absorbs any further ones.
func (s *LocalSignal) Ping(context.Context) error {
	select {
	case s.ch <- struct{}{}:
	default:
	}
	return nil
}

// WaitForPing implements Waiter.
func (s *LocalSignal) WaitForPing(ctx context.Context, timeout time.Duration) (bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-s.ch:
		return true, nil
	case <-timer.C:
		return false, nil
	}
}

// ErrSignalClosed is returned when the Redis subscription was closed underneath a waiter.
var ErrSignalClosed = errors.New("ping subscription closed")

// RedisSignal carries pings between the API and worker processes over Redis pub/sub.
type RedisSignal struct {
	client  *redis.Client
	channel string

	mu   sync.Mutex
	sub  *redis.PubSub
	msgs <-chan *redis.Message
}

// NewRedisSignal binds a signal to a pub/sub channel, e.g. "mutaties:bestel".
func NewRedisSignal(client *redis.Client, channel string) *RedisSignal {
	return &RedisSignal{client: client, channel: channel}
}

// Ping publishes a wake-up message.
func (s *RedisSignal) Ping(ctx context.Context) error {
	if err := s.client.Publish(ctx, s.channel, "ping").Err(); err != nil {
		return fmt.Errorf("publish ping %s: %w", s.channel, err)
	}
	return nil
}

// Listen subscribes to the channel. WaitForPing calls it lazily.
func (s *RedisSignal) Listen(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		return nil
	}
	sub := s.client.Subscribe(ctx, s.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", s.channel, err)
	}
	s.sub = sub
	s.msgs = sub.Channel()
	return nil
}

// WaitForPing implements Waiter. Messages queued behind the first are drained so they count as one wake.
func (s *RedisSignal) WaitForPing(ctx context.Context, timeout time.Duration) (bool, error) {
	if err := s.Listen(ctx); err != nil {
		return false, err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timer.C:
		return false, nil
	case _, ok := <-s.msgs:
		if !ok {
			// resubscribe on the next wait
			_ = s.Close()
			return false, ErrSignalClosed
		}
		for {
			select {
			case _, ok := <-s.msgs:
				if !ok {
					return true, nil
				}
			default:
				return true, nil
			}
		}
	}
}

// Close releases the subscription.
func (s *RedisSignal) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return nil
	}
	err := s.sub.Close()
	s.sub = nil
	s.msgs = nil
	return err
}
