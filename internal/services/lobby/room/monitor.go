package room

import (
	"context"
	"sync"
	"time"
)

const (
	// DefaultIdleTick is the interval between inactivity checks.
	DefaultIdleTick = time.Minute
	// DefaultIdleTicks is how many consecutive idle ticks expire a room.
	DefaultIdleTicks = 30
)

type countdown struct {
	cancel context.CancelFunc
}

func (c *countdown) stop() {
	if c != nil && c.cancel != nil {
		c.cancel()
	}
}

// Monitor expires rooms that see no activity for IdleTicks consecutive
// ticks of IdleTick.
//
// Each room owns at most one countdown. RecordActivity replaces it; a
// replaced countdown notices it is no longer current and exits without
// touching the room.
type Monitor struct {
	registry  *Registry
	tick      time.Duration
	threshold int
	onExpire  func(roomName string)

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewMonitor builds a Monitor. onExpire runs on the countdown goroutine after
// the room has been marked inactive; it is responsible for evacuating the
// members. When onExpire is nil the room is deleted outright.
func NewMonitor(registry *Registry, tick time.Duration, threshold int, onExpire func(roomName string)) *Monitor {
	if tick <= 0 {
		tick = DefaultIdleTick
	}
	if threshold <= 0 {
		threshold = DefaultIdleTicks
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		registry:  registry,
		tick:      tick,
		threshold: threshold,
		onExpire:  onExpire,
		ctx:       ctx,
		cancel:    cancel,
	}
	if m.onExpire == nil {
		m.onExpire = func(roomName string) { registry.DeleteRoom(roomName) }
	}
	return m
}

// IdleTimeout is the full idle period after which a room expires.
func (m *Monitor) IdleTimeout() time.Duration {
	return m.tick * time.Duration(m.threshold)
}

// RecordActivity cancels the room's countdown, resets its idle ticks, and
// starts a fresh countdown. It never creates a room and reports false for
// absent or already expired rooms.
func (m *Monitor) RecordActivity(roomName string) bool {
	started := false
	m.registry.withRoom(NormalizeRoomName(roomName), false, func(room *liveRoom) {
		if !room.active {
			return
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.stopped {
			return
		}

		room.stopCountdown()
		room.idleTicks = 0
		ctx, cancel := context.WithCancel(m.ctx)
		c := &countdown{cancel: cancel}
		room.countdown = c
		m.wg.Add(1)
		go m.run(ctx, room, c)
		started = true
	})
	return started
}

// Stop cancels every countdown and waits for their goroutines, including
// any expiry callback already in flight.
func (m *Monitor) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	m.cancel()
	m.wg.Wait()
}

func (m *Monitor) run(ctx context.Context, room *liveRoom, c *countdown) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, current := m.advance(room, c)
			if expired {
				m.onExpire(room.name)
				return
			}
			if !current {
				return
			}
		}
	}
}

// advance counts one idle tick for the countdown c. A countdown that has been
// superseded or whose room was deleted reports current=false.
func (m *Monitor) advance(room *liveRoom, c *countdown) (expired bool, current bool) {
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.closed || room.countdown != c {
		return false, false
	}
	room.idleTicks++
	if room.idleTicks < m.threshold {
		return false, true
	}
	room.active = false
	room.countdown = nil
	c.stop()
	return true, false
}
