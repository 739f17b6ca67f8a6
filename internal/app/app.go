// Package app runs the detection loop: camera frames go through the pose
// estimator and classifier into the session aggregator, while a second
// goroutine keeps the idle flag current.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/neuropose/internal/alert"
	"github.com/ayusman/neuropose/internal/capture"
	"github.com/ayusman/neuropose/internal/classifier"
	"github.com/ayusman/neuropose/internal/estimator"
	"github.com/ayusman/neuropose/internal/log"
	"github.com/ayusman/neuropose/internal/session"
	"github.com/ayusman/neuropose/internal/store"
)

// Status is the lifecycle state of the detection loop.
type Status string

const (
	StatusStopped           Status = "stopped"
	StatusLoading           Status = "loading"
	StatusDetecting         Status = "detecting"
	StatusModelFailed       Status = "model_failed"
	StatusCameraUnavailable Status = "camera_unavailable"
)

var (
	// ErrModelLoad is returned by Start when the pose model cannot be loaded.
	ErrModelLoad = errors.New("pose model failed to load")
	// ErrCameraUnavailable is returned by Start when the camera cannot be opened.
	ErrCameraUnavailable = errors.New("camera unavailable")
)

// Config holds configuration options for the application.
type Config struct {
	Store  *store.Store
	Alerts *alert.Notifier

	Estimator estimator.Config
	// Classifier defaults to classifier.DefaultConfig when left zero.
	Classifier classifier.Config
	Session    session.Config

	CameraID          int
	FPS               int
	ModelTimeout      time.Duration
	WarmupFrames      int
	IdleCheckInterval time.Duration

	// Camera replaces the device camera when set.
	Camera capture.Camera
	// OpenEstimator replaces estimator.Open when set.
	OpenEstimator func(estimator.Config) (estimator.Estimator, error)
	// Clock replaces time.Now when set.
	Clock func() time.Time
}

// App owns the camera, the estimator and the session aggregator.
type App struct {
	config     Config
	camera     capture.Camera
	aggregator *session.Aggregator
	clock      func() time.Time

	// startMu serializes Start and Stop.
	startMu sync.Mutex

	mu        sync.RWMutex
	status    Status
	lastErr   error
	enabled   bool
	estimator estimator.Estimator
	cancel    context.CancelFunc
	sessionID string
	listeners []func(Status)

	wg      sync.WaitGroup
	frames  atomic.Int64
	punches atomic.Int64

	viewers     atomic.Int32
	frameMu     sync.RWMutex
	latestFrame []byte
}

// New creates a new App instance with the given configuration.
func New(config Config) *App {
	if config.FPS <= 0 {
		config.FPS = capture.DefaultFPS
	}
	if config.IdleCheckInterval <= 0 {
		config.IdleCheckInterval = time.Second
	}
	if config.Classifier == (classifier.Config{}) {
		config.Classifier = classifier.DefaultConfig()
	}
	if config.OpenEstimator == nil {
		config.OpenEstimator = estimator.Open
	}

	clock := config.Clock
	if clock == nil {
		clock = time.Now
	}

	cam := config.Camera
	if cam == nil {
		cam = capture.NewCamera(config.CameraID)
	}

	return &App{
		config:     config,
		camera:     cam,
		aggregator: session.New(config.Session, clock()),
		clock:      clock,
		status:     StatusStopped,
		enabled:    true,
	}
}

// Start loads the model, opens the camera and starts detection. It returns
// nil without doing anything if detection is already running. A failed Start
// leaves the App stopped; calling Start again is the way to retry.
func (a *App) Start(ctx context.Context) error {
	a.startMu.Lock()
	defer a.startMu.Unlock()

	a.mu.RLock()
	running := a.cancel != nil
	a.mu.RUnlock()
	if running {
		return nil
	}

	a.frames.Store(0)
	a.punches.Store(0)
	a.setStatus(StatusLoading, nil)

	est, err := a.config.OpenEstimator(a.config.Estimator)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrModelLoad, err)
		log.Error("pose model failed to load", "estimator", a.estimatorKind(), "error", err)
		a.journalFailure(store.EventModelFailed)
		a.setStatus(StatusModelFailed, err)
		return err
	}

	if err := a.camera.Open(); err != nil {
		est.Close()
		err = fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
		log.Error("camera unavailable", "camera", a.config.CameraID, "error", err)
		a.journalFailure(store.EventCameraDenied)
		a.setStatus(StatusCameraUnavailable, err)
		return err
	}
	a.camera.SetFPS(a.config.FPS)

	a.aggregator.Reset(a.clock())
	sessionID := a.startSession()

	loopCtx, cancel := context.WithCancel(ctx)

	a.mu.Lock()
	a.estimator = est
	a.cancel = cancel
	a.sessionID = sessionID
	a.mu.Unlock()

	l := newLoop(a, est, sessionID)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		l.run(loopCtx)
	}()
	go func() {
		defer a.wg.Done()
		a.runIdle(loopCtx)
	}()

	a.aggregator.SetDetecting(true)
	a.setStatus(StatusDetecting, nil)
	log.Info("detection started", "estimator", a.estimatorKind(), "fps", a.config.FPS, "session", sessionID)
	return nil
}

// Stop halts detection and releases the camera and the estimator. Results
// of estimator calls still in flight are discarded.
func (a *App) Stop() {
	a.startMu.Lock()
	defer a.startMu.Unlock()

	a.mu.Lock()
	cancel := a.cancel
	est := a.estimator
	sessionID := a.sessionID
	a.cancel = nil
	a.estimator = nil
	a.sessionID = ""
	a.mu.Unlock()

	if cancel == nil {
		// Clears a failed status so the next Start begins from stopped.
		if a.Status() != StatusStopped {
			a.setStatus(StatusStopped, nil)
		}
		return
	}

	cancel()
	a.wg.Wait()

	if err := a.camera.Close(); err != nil {
		log.Warn("error closing camera", "error", err)
	}
	if err := est.Close(); err != nil {
		log.Warn("error closing estimator", "error", err)
	}
	a.endSession(sessionID)

	a.frameMu.Lock()
	a.latestFrame = nil
	a.frameMu.Unlock()

	a.aggregator.SetDetecting(false)
	a.setStatus(StatusStopped, nil)
	log.Info("detection stopped", "frames", a.frames.Load(), "punches", a.punches.Load())
}

// Status returns the current lifecycle state.
func (a *App) Status() Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.status
}

// Err returns the error behind a failed status, or nil.
func (a *App) Err() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastErr
}

// OnStatus registers fn to be called after every status change.
func (a *App) OnStatus(fn func(Status)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, fn)
}

func (a *App) setStatus(s Status, err error) {
	a.mu.Lock()
	a.status = s
	a.lastErr = err
	listeners := append([]func(Status){}, a.listeners...)
	a.mu.Unlock()

	for _, fn := range listeners {
		fn(s)
	}
}

// SetEnabled pauses or resumes frame processing without releasing the camera.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

// IsEnabled returns whether frame processing is enabled.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// Aggregator returns the session state.
func (a *App) Aggregator() *session.Aggregator {
	return a.aggregator
}

// Camera returns the camera instance.
func (a *App) Camera() capture.Camera {
	return a.camera
}

// SessionID returns the journal session of the running detection, if any.
func (a *App) SessionID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.sessionID
}

// Frames returns how many frames the current run has classified.
func (a *App) Frames() int64 {
	return a.frames.Load()
}

// Punches returns how many punches the current run has seen start.
func (a *App) Punches() int64 {
	return a.punches.Load()
}

// AttachViewer asks the loop to render overlay frames until the returned
// func is called.
func (a *App) AttachViewer() func() {
	a.viewers.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() { a.viewers.Add(-1) })
	}
}

// LatestFrame returns the most recent overlay JPEG, or nil when none has
// been rendered.
func (a *App) LatestFrame() []byte {
	a.frameMu.RLock()
	defer a.frameMu.RUnlock()
	return a.latestFrame
}

func (a *App) estimatorKind() string {
	if a.config.Estimator.Kind == "" {
		return estimator.KindMoveNet
	}
	return a.config.Estimator.Kind
}

func (a *App) setLatestFrame(jpeg []byte) {
	a.frameMu.Lock()
	a.latestFrame = jpeg
	a.frameMu.Unlock()
}
