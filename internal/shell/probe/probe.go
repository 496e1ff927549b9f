// Package probe implements TCP readiness probing for stack services.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// =============================================================================
// Probe Types
// =============================================================================

const (
	// DefaultInterval is the delay between connection attempts.
	DefaultInterval = 1 * time.Second

	// DefaultTimeout is the overall readiness deadline per service.
	DefaultTimeout = 30 * time.Second

	// dialTimeout bounds a single connection attempt.
	dialTimeout = 2 * time.Second
)

// ErrReadinessTimeout is returned when a service does not accept TCP
// connections within the readiness deadline.
var ErrReadinessTimeout = errors.New("readiness timeout")

// TimeoutError reports a service that never became ready.
type TimeoutError struct {
	Service string
	Address string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("service %s not ready at %s after %s", e.Service, e.Address, e.Elapsed.Round(time.Millisecond))
}

func (e *TimeoutError) Unwrap() error {
	return ErrReadinessTimeout
}

// Target identifies a single readiness check.
type Target struct {
	Service string
	Host    string
	Port    int
	Timeout time.Duration // Overall deadline; DefaultTimeout when zero
}

// Prober checks whether a service endpoint accepts connections.
type Prober interface {
	// WaitReady blocks until the target accepts a TCP connection, the
	// deadline expires, or ctx is cancelled. Cancellation returns ctx.Err().
	WaitReady(ctx context.Context, target Target) error
}

// =============================================================================
// TCP Prober
// =============================================================================

// TCPProber probes readiness by attempting TCP connections.
type TCPProber struct {
	Interval time.Duration // Delay between attempts; DefaultInterval when zero
	Dialer   net.Dialer
}

// NewTCPProber creates a prober with default settings.
func NewTCPProber() *TCPProber {
	return &TCPProber{Interval: DefaultInterval}
}

// WaitReady polls the target address until a TCP connection succeeds.
func (p *TCPProber) WaitReady(ctx context.Context, target Target) error {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	timeout := target.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	host := target.Host
	if host == "" {
		host = "127.0.0.1"
	}
	address := net.JoinHostPort(host, fmt.Sprintf("%d", target.Port))

	start := time.Now()
	deadline := start.Add(timeout)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if p.tryConnect(ctx, address) {
			return nil
		}

		if time.Now().After(deadline) {
			return &TimeoutError{
				Service: target.Service,
				Address: address,
				Elapsed: time.Since(start),
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *TCPProber) tryConnect(ctx context.Context, address string) bool {
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, err := p.Dialer.DialContext(dialCtx, "tcp", address)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
