package estimator

import (
	"context"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/neuropose/internal/pose"
)

// Mock is a test implementation of the Estimator interface.
// It replays a script of estimates, looping when it reaches the end.
type Mock struct {
	mu     sync.Mutex
	script []pose.Estimate
	next   int
	err    error
	delay  time.Duration
	calls  int
	closed bool
}

// NewMock creates a new Mock that reports nobody in view.
func NewMock() *Mock {
	return &Mock{}
}

// SetEstimates sets the estimates returned by successive Estimate calls.
func (m *Mock) SetEstimates(script ...pose.Estimate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = script
	m.next = 0
}

// SetError sets the error that will be returned by Estimate.
func (m *Mock) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetDelay makes Estimate block for d or until its context ends.
func (m *Mock) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Calls returns how many times Estimate has been called.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed reports whether Close has been called.
func (m *Mock) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Estimate returns the next scripted estimate or the configured error.
func (m *Mock) Estimate(ctx context.Context, frame *gocv.Mat) (pose.Estimate, error) {
	m.mu.Lock()
	m.calls++
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}
	if len(m.script) == 0 {
		return pose.Estimate{}, nil
	}
	est := m.script[m.next%len(m.script)]
	m.next++
	return est.Clone(), nil
}

// Close marks the mock closed.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
