// ABOUTME: Connectivity signals for the sync scheduler
// ABOUTME: Probing network monitor plus a static switch for tests and forced-offline mode
package sync

import (
	"context"
	"net"
	gosync "sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/harperreed/studysync/logging"
)

// Connectivity reports whether the remote is reachable and announces changes.
type Connectivity interface {
	Online() bool
	// Changes delivers the new state after each transition.
	Changes() <-chan bool
}

// StaticConnectivity is flipped by hand.
type StaticConnectivity struct {
	mu     gosync.Mutex
	online bool
	ch     chan bool
}

// NewStaticConnectivity starts in the given state.
func NewStaticConnectivity(online bool) *StaticConnectivity {
	return &StaticConnectivity{online: online, ch: make(chan bool, 8)}
}

func (s *StaticConnectivity) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

func (s *StaticConnectivity) Changes() <-chan bool {
	return s.ch
}

// SetOnline changes state and announces it when it differs.
func (s *StaticConnectivity) SetOnline(online bool) {
	s.mu.Lock()
	changed := s.online != online
	s.online = online
	s.mu.Unlock()

	if changed {
		select {
		case s.ch <- online:
		default:
		}
	}
}

// ProbeFunc returns nil when the remote is reachable.
type ProbeFunc func(ctx context.Context) error

// Pinger is implemented by remotes that expose a health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingProbe probes through a remote's health check.
func PingProbe(p Pinger) ProbeFunc {
	return p.Ping
}

// TCPProbe dials addr.
func TCPProbe(addr string) ProbeFunc {
	return func(ctx context.Context) error {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return err
		}
		return conn.Close()
	}
}

// NetworkMonitor polls a probe and tracks transitions.
type NetworkMonitor struct {
	probe    ProbeFunc
	interval time.Duration
	timeout  time.Duration
	online   atomic.Bool
	ch       chan bool
	logger   *zap.Logger
}

// NewNetworkMonitor creates a monitor that assumes it is online until the
// first probe says otherwise.
func NewNetworkMonitor(probe ProbeFunc, interval time.Duration, logger *zap.Logger) *NetworkMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	m := &NetworkMonitor{
		probe:    probe,
		interval: interval,
		timeout:  5 * time.Second,
		ch:       make(chan bool, 8),
		logger:   logging.OrNop(logger),
	}
	m.online.Store(true)
	return m
}

func (m *NetworkMonitor) Online() bool {
	return m.online.Load()
}

func (m *NetworkMonitor) Changes() <-chan bool {
	return m.ch
}

// Check runs one probe and records the result.
func (m *NetworkMonitor) Check(ctx context.Context) bool {
	pctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.probe(pctx)
	now := err == nil
	if prev := m.online.Swap(now); prev != now {
		if now {
			m.logger.Info("connectivity restored")
		} else {
			m.logger.Info("connectivity lost", zap.Error(err))
		}
		select {
		case m.ch <- now:
		default:
		}
	}
	return now
}

// Run probes on the interval until ctx ends.
func (m *NetworkMonitor) Run(ctx context.Context) {
	m.Check(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}
