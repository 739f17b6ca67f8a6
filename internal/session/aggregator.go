// Package session holds the live pose state for one detection session: the
// latest reading, the rolling confidence history and the idle flag.
package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/neuropose/internal/classifier"
	"github.com/ayusman/neuropose/internal/pose"
)

// Default session tuning.
const (
	DefaultHistorySize   = 20
	DefaultIdleThreshold = 10 * time.Second
)

// Reading is the latest classification. It is replaced wholesale, never
// mutated in place.
type Reading struct {
	Action       classifier.Action `json:"action"`
	Confidence   float64           `json:"confidence"`
	JointScore   float64           `json:"joint_score"`
	Keypoints    pose.Estimate     `json:"keypoints"`
	LastMovement time.Time         `json:"last_movement"`
}

// State is an immutable snapshot handed to readers and subscribers.
type State struct {
	Reading
	History   []float64 `json:"history"`
	Idle      bool      `json:"idle"`
	Detecting bool      `json:"detecting"`
	UpdatedAt time.Time `json:"updated_at"`
	Seq       uint64    `json:"seq"`
}

// IsPunch reports whether the current action is a punch.
func (s State) IsPunch() bool {
	return s.Action == classifier.Punch
}

// Config holds the session tuning.
type Config struct {
	HistorySize   int
	IdleThreshold time.Duration
}

// DefaultConfig returns the reference tuning.
func DefaultConfig() Config {
	return Config{
		HistorySize:   DefaultHistorySize,
		IdleThreshold: DefaultIdleThreshold,
	}
}

// Aggregator owns the session state. Writers serialize on a mutex; readers
// load the latest snapshot without locking.
type Aggregator struct {
	config Config

	mu        sync.Mutex
	reading   Reading
	history   *History
	idle      bool
	detecting bool
	seq       uint64
	subs      map[int]chan State
	nextSub   int
	closed    bool

	current atomic.Pointer[State]
}

// New creates an Aggregator whose last movement is now.
func New(config Config, now time.Time) *Aggregator {
	if config.HistorySize <= 0 {
		config.HistorySize = DefaultHistorySize
	}
	if config.IdleThreshold <= 0 {
		config.IdleThreshold = DefaultIdleThreshold
	}

	a := &Aggregator{
		config: config,
		subs:   make(map[int]chan State),
	}
	a.mu.Lock()
	a.resetLocked(now)
	a.mu.Unlock()
	return a
}

// Reset returns the state to its session-start values.
func (a *Aggregator) Reset(now time.Time) State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.resetLocked(now)
}

func (a *Aggregator) resetLocked(now time.Time) State {
	a.reading = Reading{
		Action:       classifier.Neutral,
		LastMovement: now,
	}
	a.history = NewHistory(a.config.HistorySize)
	a.idle = false
	return a.publishLocked(now)
}

// Current returns the latest snapshot.
func (a *Aggregator) Current() State {
	return *a.current.Load()
}

// Update replaces the current reading.
func (a *Aggregator) Update(r Reading) State {
	a.mu.Lock()
	defer a.mu.Unlock()

	r.Keypoints = r.Keypoints.Clone()
	a.reading = r
	return a.publishLocked(time.Now())
}

// PushConfidence appends v to the confidence history.
func (a *Aggregator) PushConfidence(v float64) State {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.history.Push(v)
	return a.publishLocked(time.Now())
}

// Apply folds one classification into the state as a single snapshot. The
// last movement time advances only when res reports movement, and movement
// clears the idle flag immediately.
func (a *Aggregator) Apply(res classifier.Result, now time.Time) State {
	a.mu.Lock()
	defer a.mu.Unlock()

	last := a.reading.LastMovement
	if res.Movement {
		last = now
		a.idle = false
	}

	a.reading = Reading{
		Action:       res.Action,
		Confidence:   res.Confidence,
		JointScore:   res.JointScore,
		Keypoints:    res.Keypoints.Clone(),
		LastMovement: last,
	}
	a.history.Push(res.Confidence)
	return a.publishLocked(now)
}

// RecomputeIdle sets the idle flag from the time elapsed since the last
// movement. A snapshot is published only when the flag changes.
func (a *Aggregator) RecomputeIdle(now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	idle := now.Sub(a.reading.LastMovement) > a.config.IdleThreshold
	if idle != a.idle {
		a.idle = idle
		a.publishLocked(now)
	}
	return idle
}

// SetDetecting records whether a detection loop is feeding this session.
func (a *Aggregator) SetDetecting(detecting bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.detecting == detecting {
		return
	}
	a.detecting = detecting
	a.publishLocked(time.Now())
}

// Subscribe returns a channel that receives the current state immediately and
// every later snapshot. A subscriber that falls behind loses intermediate
// snapshots but always gets the newest one. The returned func unsubscribes and
// closes the channel.
func (a *Aggregator) Subscribe(buffer int) (<-chan State, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan State, buffer)

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		close(ch)
		return ch, func() {}
	}

	id := a.nextSub
	a.nextSub++
	a.subs[id] = ch
	ch <- *a.current.Load()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			if c, ok := a.subs[id]; ok {
				delete(a.subs, id)
				close(c)
			}
		})
	}
}

// Subscribers returns the number of active subscriptions.
func (a *Aggregator) Subscribers() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.subs)
}

// Close closes every subscriber channel. Later writes still update Current.
func (a *Aggregator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	a.closed = true
	for id, ch := range a.subs {
		delete(a.subs, id)
		close(ch)
	}
}

// publishLocked builds a fresh snapshot, swaps it in and fans it out.
// a.mu must be held.
func (a *Aggregator) publishLocked(now time.Time) State {
	a.seq++
	st := State{
		Reading:   a.reading,
		History:   a.history.Values(),
		Idle:      a.idle,
		Detecting: a.detecting,
		UpdatedAt: now,
		Seq:       a.seq,
	}
	a.current.Store(&st)

	for _, ch := range a.subs {
		select {
		case ch <- st:
		default:
			// Drop the stale snapshot so the newest one fits.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- st:
			default:
			}
		}
	}
	return st
}
