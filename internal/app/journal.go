package app

import (
	"time"

	"github.com/ayusman/neuropose/internal/log"
	"github.com/ayusman/neuropose/internal/store"
)

// startSession opens a journal session and returns its ID, or "" when no
// store is configured or the insert failed.
func (a *App) startSession() string {
	if a.config.Store == nil {
		return ""
	}
	sess, err := a.config.Store.Sessions().Start(a.estimatorKind(), a.clock())
	if err != nil {
		log.Warn("failed to start journal session", "error", err)
		return ""
	}
	return sess.ID
}

func (a *App) endSession(id string) {
	if a.config.Store == nil || id == "" {
		return
	}
	err := a.config.Store.Sessions().End(id, int(a.frames.Load()), int(a.punches.Load()), a.clock())
	if err != nil {
		log.Warn("failed to end journal session", "session", id, "error", err)
	}
}

// journalFailure records a Start that never reached detection as a session
// that ends as soon as it begins.
func (a *App) journalFailure(kind store.EventKind) {
	if a.config.Store == nil {
		return
	}
	id := a.startSession()
	if id == "" {
		return
	}
	a.journal(id, kind, 0, a.clock())
	a.endSession(id)
}

func (a *App) journal(sessionID string, kind store.EventKind, confidence float64, at time.Time) {
	if a.config.Store == nil || sessionID == "" {
		return
	}
	err := a.config.Store.Events().Add(&store.Event{
		SessionID:  sessionID,
		Kind:       kind,
		Confidence: confidence,
		CreatedAt:  at,
	})
	if err != nil {
		log.Warn("failed to journal event", "session", sessionID, "kind", kind, "error", err)
	}
}
