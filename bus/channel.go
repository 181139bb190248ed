package bus

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/mofa-org/mofa-go/core"
)

// LaggedError reports that a receiver fell behind the ring buffer and Count
// messages were overwritten before it could read them.
type LaggedError struct {
	Count uint64
}

// Error implements the error interface.
func (e *LaggedError) Error() string {
	return fmt.Sprintf("receiver lagged: %d messages overwritten", e.Count)
}

// slot is one buffered frame with its global sequence and priority.
type slot struct {
	seq   uint64
	pri   core.Priority
	frame []byte
}

// channel is a multi-subscriber ring buffer. Frames are retained until
// overwritten; each subscriber tracks its own cursor, so a slow subscriber
// observes lag rather than blocking fast ones. All methods are safe for
// concurrent use.
type channel struct {
	mu   sync.Mutex
	cond *sync.Cond
	cfg  ChannelConfig

	buf  []slot
	next uint64
	// cursors maps subscriber id to the next sequence it wants.
	cursors map[string]uint64
	closed  bool

	dropped uint64
	// onDrop is invoked under the lock for each unread eviction; it must not
	// call back into the channel.
	onDrop func(n uint64)
}

func newChannel(cfg ChannelConfig, onDrop func(n uint64)) *channel {
	c := &channel{cfg: cfg, cursors: map[string]uint64{}, onDrop: onDrop}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// subscribe registers a cursor starting at the next message. Idempotent.
func (c *channel) subscribe(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.cursors[id]; !ok {
		c.cursors[id] = c.next
	}
}

// unsubscribe removes the cursor; pending slots stay until overwritten.
func (c *channel) unsubscribe(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cursors, id)
	c.cond.Broadcast()
}

func (c *channel) minCursor() uint64 {
	min := uint64(math.MaxUint64)
	for _, cur := range c.cursors {
		if cur < min {
			min = cur
		}
	}
	return min
}

// evict removes buf[i], counting it as dropped when some subscriber had not
// read it yet (or nobody was subscribed to read it at all).
func (c *channel) evict(i int) {
	seq := c.buf[i].seq
	if len(c.cursors) == 0 || c.minCursor() <= seq {
		c.dropped++
		if c.onDrop != nil {
			c.onDrop(1)
		}
	}
	c.buf = append(c.buf[:i], c.buf[i+1:]...)
}

// send appends a frame, applying the drop strategy when the buffer is full.
// Block waits for the context; the other strategies never block.
func (c *channel) send(ctx context.Context, frame []byte, pri core.Priority) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.buf) >= c.cfg.bufferSize() {
		if c.closed {
			return core.NewError(core.KindDispatch, "channel closed")
		}
		switch c.cfg.DropStrategy {
		case DropOldest:
			c.evict(0)
		case DropLowPriority:
			victim := -1
			worst := pri
			for i, s := range c.buf {
				if s.pri > worst {
					worst = s.pri
					victim = i
				}
			}
			if victim < 0 {
				// Everything buffered is at least as important; the new
				// message is the one that gives way.
				c.dropped++
				if c.onDrop != nil {
					c.onDrop(1)
				}
				return nil
			}
			c.evict(victim)
		case Block:
			// Wait until every subscriber has consumed the oldest slot, then
			// release it without counting a drop.
			if len(c.cursors) > 0 && c.minCursor() > c.buf[0].seq {
				c.buf = c.buf[1:]
				continue
			}
			if err := c.wait(ctx); err != nil {
				return core.WrapError(core.KindBackpressure, err, "blocked send aborted")
			}
		}
	}

	if c.closed {
		return core.NewError(core.KindDispatch, "channel closed")
	}
	c.buf = append(c.buf, slot{seq: c.next, pri: pri, frame: frame})
	c.next++
	c.cond.Broadcast()
	return nil
}

// receive returns the next frame for the subscriber, a LaggedError when the
// cursor points below the oldest retained slot, or the context error.
func (c *channel) receive(ctx context.Context, id string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.cursors[id]; !ok {
		c.cursors[id] = c.next
	}

	for {
		if len(c.buf) > 0 {
			cur := c.cursors[id]
			if cur < c.buf[0].seq {
				n := c.buf[0].seq - cur
				c.cursors[id] = c.buf[0].seq
				return nil, &LaggedError{Count: n}
			}
			for _, s := range c.buf {
				if s.seq >= cur {
					c.cursors[id] = s.seq + 1
					c.cond.Broadcast()
					return s.frame, nil
				}
			}
		}
		if c.closed {
			return nil, core.NewError(core.KindDispatch, "channel closed")
		}
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
	}
}

// wait blocks on the condition variable until a broadcast or context
// cancellation. Must be called with the lock held.
func (c *channel) wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			c.mu.Lock()
			c.cond.Broadcast()
			c.mu.Unlock()
		case <-done:
		}
	}()
	c.cond.Wait()
	close(done)
	return ctx.Err()
}

// close wakes all waiters; further sends fail and receives drain then fail.
func (c *channel) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.cond.Broadcast()
}

// droppedCount reports how many frames were evicted unread.
func (c *channel) droppedCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// inflight reports the number of retained frames.
func (c *channel) inflight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}
