package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ayusman/neuropose/internal/alert"
	"github.com/ayusman/neuropose/internal/capture"
	"github.com/ayusman/neuropose/internal/classifier"
	"github.com/ayusman/neuropose/internal/estimator"
	"github.com/ayusman/neuropose/internal/log"
	"github.com/ayusman/neuropose/internal/metrics"
	"github.com/ayusman/neuropose/internal/overlay"
	"github.com/ayusman/neuropose/internal/session"
	"github.com/ayusman/neuropose/internal/store"
	"gocv.io/x/gocv"
)

// DefaultModelTimeout bounds a single estimator call.
const DefaultModelTimeout = 2 * time.Second

// loop is the state owned by one detection run.
type loop struct {
	app        *App
	est        estimator.Estimator
	classifier *classifier.Classifier
	timeout    time.Duration
	warmup     int
	lastAction classifier.Action
	logger     *slog.Logger
	// failing is set while consecutive estimates error out.
	failing bool
}

func newLoop(a *App, est estimator.Estimator, sessionID string) *loop {
	timeout := a.config.ModelTimeout
	if timeout <= 0 {
		timeout = DefaultModelTimeout
	}
	return &loop{
		app:        a,
		est:        est,
		classifier: classifier.New(a.config.Classifier),
		timeout:    timeout,
		warmup:     a.config.WarmupFrames,
		lastAction: classifier.Neutral,
		logger:     log.With("session", sessionID),
	}
}

// run ticks at the camera frame rate until ctx is done.
func (l *loop) run(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(l.app.config.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !l.app.IsEnabled() {
				continue
			}
			if !l.tick(ctx) {
				return
			}
		}
	}
}

// tick processes one camera frame. It returns false when ctx was cancelled
// while the estimator was running.
func (l *loop) tick(ctx context.Context) bool {
	frame, err := l.app.camera.ReadFrame()
	if err != nil {
		if errors.Is(err, capture.ErrFrameNotReady) {
			metrics.FramesTotal.WithLabelValues(metrics.FrameNotReady).Inc()
		} else {
			l.logger.Debug("frame read failed", "error", err)
		}
		return true
	}
	defer frame.Close()

	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	start := time.Now()
	est, err := l.est.Estimate(callCtx, frame)
	cancel()
	metrics.EstimateDuration.Observe(time.Since(start).Seconds())

	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			metrics.FramesTotal.WithLabelValues(metrics.FrameTimeout).Inc()
			l.logger.Debug("pose estimate timed out", "timeout", l.timeout)
		} else {
			metrics.FramesTotal.WithLabelValues(metrics.FrameError).Inc()
			if !l.failing {
				l.logger.Warn("pose estimate failed", "error", err)
			} else {
				l.logger.Debug("pose estimate failed", "error", err)
			}
			l.failing = true
		}
		return true
	}
	l.failing = false

	if l.warmup > 0 {
		l.warmup--
		metrics.FramesTotal.WithLabelValues(metrics.FrameWarmup).Inc()
		return true
	}

	if len(est) == 0 {
		metrics.FramesTotal.WithLabelValues(metrics.FrameNoPose).Inc()
		return true
	}

	res, ok := l.classifier.Classify(est)
	if !ok {
		metrics.FramesTotal.WithLabelValues(metrics.FrameSkipped).Inc()
		return true
	}

	now := l.app.clock()
	st := l.app.aggregator.Apply(res, now)
	l.app.frames.Add(1)
	metrics.ObserveAction(string(res.Action), res.Confidence)

	if res.Action != l.lastAction {
		l.transition(res, now)
		l.lastAction = res.Action
	}

	if l.app.viewers.Load() > 0 {
		l.render(frame, st)
	}
	return true
}

// transition journals a punch starting or ending and tells the alert hooks.
func (l *loop) transition(res classifier.Result, now time.Time) {
	kind, event := store.EventPunchEnd, alert.EventStop
	if res.Action == classifier.Punch {
		kind, event = store.EventPunchStart, alert.EventStart
		l.app.punches.Add(1)
		metrics.PunchesTotal.Inc()
	}

	sessionID := l.app.SessionID()
	l.app.journal(sessionID, kind, res.Confidence, now)

	if l.app.config.Alerts != nil {
		l.app.config.Alerts.Notify(alert.Request{
			Event:      event,
			Action:     string(res.Action),
			Confidence: res.Confidence,
			SessionID:  sessionID,
			Time:       now,
		})
	}
}

func (l *loop) render(frame *gocv.Mat, st session.State) {
	overlay.Draw(frame, st)
	jpeg, err := overlay.Encode(*frame)
	if err != nil {
		l.logger.Debug("overlay encode failed", "error", err)
		return
	}
	l.app.setLatestFrame(jpeg)
}

// runIdle re-evaluates the idle flag on a fixed interval so it flips even
// when no frames are classified.
func (a *App) runIdle(ctx context.Context) {
	ticker := time.NewTicker(a.config.IdleCheckInterval)
	defer ticker.Stop()

	idle := a.aggregator.Current().Idle
	metrics.SetIdle(idle)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := a.clock()
			next := a.aggregator.RecomputeIdle(now)
			if next == idle {
				continue
			}
			idle = next
			metrics.SetIdle(idle)

			kind := store.EventActive
			if idle {
				kind = store.EventIdle
				log.Info("session idle", "since", a.aggregator.Current().LastMovement)
			}
			a.journal(a.SessionID(), kind, 0, now)
		}
	}
}
