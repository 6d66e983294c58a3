// Package broadcast implements a bounded fan-out channel where every subscriber
// receives its own copy of every published item.
//
// Items are kept in a fixed-size ring. Each [Subscriber] tracks its own read
// cursor, so a slow subscriber never steals items from a fast one. What happens
// when a subscriber falls more than the ring capacity behind is decided by the
// channel's [Policy]:
//
//   - [PolicyDrop]: Publish never blocks. The slow subscriber receives a
//     [*LaggedError] reporting how many items it missed and resumes from the
//     oldest item still buffered.
//   - [PolicyBlock]: Publish waits until the slowest subscriber has room.
//
// Closing the channel is the only end-of-stream signal. Once a subscriber has
// drained everything buffered before the close, Recv returns [ErrClosed].
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultCapacity is the ring size used when New is given a non-positive capacity.
const DefaultCapacity = 2000

// ErrClosed is returned by Recv after the channel was closed and the subscriber
// drained its backlog, and by Publish on a closed channel.
var ErrClosed = errors.New("broadcast: channel closed")

// LaggedError reports that a subscriber fell behind the ring and missed items.
// The subscriber stays usable; the next Recv returns the oldest retained item.
type LaggedError struct {
	Skipped uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("broadcast: subscriber lagged, %d items skipped", e.Skipped)
}

// Policy selects how Publish treats subscribers that fall behind.
type Policy string

const (
	PolicyDrop  Policy = "drop"
	PolicyBlock Policy = "block"
)

// ParsePolicy maps a configuration string onto a Policy. Empty means PolicyDrop.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyDrop:
		return PolicyDrop, nil
	case PolicyBlock:
		return PolicyBlock, nil
	default:
		return "", fmt.Errorf("unknown lag policy %q (use %q or %q)", s, PolicyDrop, PolicyBlock)
	}
}

// Channel is a bounded broadcast channel. It is safe for concurrent use by one
// or more publishers and any number of subscribers.
type Channel[T any] struct {
	mu     sync.Mutex
	buf    []T
	head   uint64 // sequence number of the next published item
	closed bool
	policy Policy
	subs   map[*Subscriber[T]]struct{}

	// Wake-up channels are created lazily by waiters and closed by the side
	// that makes progress.
	itemReady chan struct{}
	roomReady chan struct{}
}

// New creates a channel holding up to capacity undelivered items per subscriber.
func New[T any](capacity int, policy Policy) *Channel[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if policy == "" {
		policy = PolicyDrop
	}
	return &Channel[T]{
		buf:    make([]T, capacity),
		policy: policy,
		subs:   make(map[*Subscriber[T]]struct{}),
	}
}

// Capacity returns the ring size.
func (c *Channel[T]) Capacity() int {
	return len(c.buf)
}

// Policy returns the lag policy the channel was created with.
func (c *Channel[T]) Policy() Policy {
	return c.policy
}

// Subscribe registers a new subscriber. It observes items published after the call.
func (c *Channel[T]) Subscribe() *Subscriber[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := &Subscriber[T]{ch: c, next: c.head}
	c.subs[s] = struct{}{}
	return s
}

// Publish appends v to the ring. Under PolicyDrop it never blocks; under
// PolicyBlock it waits for the slowest subscriber or for ctx to be done.
func (c *Channel[T]) Publish(ctx context.Context, v T) error {
	c.mu.Lock()
	for {
		if c.closed {
			c.mu.Unlock()
			return ErrClosed
		}
		if c.policy != PolicyBlock || c.head-c.minCursorLocked() < uint64(len(c.buf)) {
			break
		}
		if c.roomReady == nil {
			c.roomReady = make(chan struct{})
		}
		wait := c.roomReady
		c.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
	}

	c.buf[c.head%uint64(len(c.buf))] = v
	c.head++
	c.wakeReadersLocked()
	c.mu.Unlock()
	return nil
}

// Close marks the end of the stream. Buffered items remain readable.
// Calling Close more than once is a no-op.
func (c *Channel[T]) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.wakeReadersLocked()
	c.wakeWritersLocked()
}

// Published returns how many items have been published so far.
func (c *Channel[T]) Published() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head
}

func (c *Channel[T]) oldestLocked() uint64 {
	size := uint64(len(c.buf))
	if c.head > size {
		return c.head - size
	}
	return 0
}

func (c *Channel[T]) minCursorLocked() uint64 {
	min := c.head
	for s := range c.subs {
		if s.next < min {
			min = s.next
		}
	}
	return min
}

func (c *Channel[T]) wakeReadersLocked() {
	if c.itemReady != nil {
		close(c.itemReady)
		c.itemReady = nil
	}
}

func (c *Channel[T]) wakeWritersLocked() {
	if c.roomReady != nil {
		close(c.roomReady)
		c.roomReady = nil
	}
}

// Subscriber is one reader of a Channel. A Subscriber must not be used from
// more than one goroutine at a time.
type Subscriber[T any] struct {
	ch     *Channel[T]
	next   uint64
	lagged uint64
	gone   bool
}

// Recv returns the next item for this subscriber. The error is ErrClosed at end
// of stream, a *LaggedError when items were dropped, or ctx.Err().
func (s *Subscriber[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	c := s.ch
	c.mu.Lock()
	for {
		if s.gone {
			c.mu.Unlock()
			return zero, ErrClosed
		}
		if s.next < c.head {
			if oldest := c.oldestLocked(); s.next < oldest {
				skipped := oldest - s.next
				s.next = oldest
				s.lagged += skipped
				c.mu.Unlock()
				return zero, &LaggedError{Skipped: skipped}
			}
			v := c.buf[s.next%uint64(len(c.buf))]
			s.next++
			if c.policy == PolicyBlock {
				c.wakeWritersLocked()
			}
			c.mu.Unlock()
			return v, nil
		}
		if c.closed {
			c.mu.Unlock()
			return zero, ErrClosed
		}
		if c.itemReady == nil {
			c.itemReady = make(chan struct{})
		}
		wait := c.itemReady
		c.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
		c.mu.Lock()
	}
}

// Lagged returns the total number of items this subscriber has missed.
func (s *Subscriber[T]) Lagged() uint64 {
	s.ch.mu.Lock()
	defer s.ch.mu.Unlock()
	return s.lagged
}

// Unsubscribe detaches the subscriber so it no longer holds back publishers
// under PolicyBlock. Further Recv calls return ErrClosed.
func (s *Subscriber[T]) Unsubscribe() {
	c := s.ch
	c.mu.Lock()
	defer c.mu.Unlock()
	if s.gone {
		return
	}
	s.gone = true
	delete(c.subs, s)
	c.wakeWritersLocked()
}
