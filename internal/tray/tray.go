// Package tray provides a system tray menu for controlling detection.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/neuropose/internal/session"
)

// Tray represents the system tray application.
type Tray struct {
	onToggle    func(enabled bool)
	onStartStop func(start bool)
	onDashboard func()
	onQuit      func()
	enabled     bool
	detecting   bool
	status      string
	state       session.State
	mu          sync.RWMutex

	// Menu items stored for later updates
	menuStatus    *systray.MenuItem
	menuStartStop *systray.MenuItem
	menuToggle    *systray.MenuItem
	menuLast      *systray.MenuItem
	menuIdle      *systray.MenuItem
}

// New creates a new Tray instance with enabled state set to true by default.
func New() *Tray {
	return &Tray{
		enabled: true,
		status:  "stopped",
	}
}

// OnToggle sets the callback function to be called when the enabled state is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnStartStop sets the callback for the start/stop item. start is true
// when detection should begin.
func (t *Tray) OnStartStop(fn func(start bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onStartStop = fn
}

// OnDashboard sets the callback function to be called when the dashboard menu item is clicked.
func (t *Tray) OnDashboard(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDashboard = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit closes the tray and makes Run return.
func (t *Tray) Quit() {
	systray.Quit()
}

// onReady is called when the system tray is ready.
// It sets up the menu structure.
func (t *Tray) onReady() {
	systray.SetTitle("NeuroPose")
	systray.SetTooltip("NeuroPose punch detection")

	t.mu.Lock()
	t.menuStatus = systray.AddMenuItem(statusTitle(t.status), "Detection status")
	t.menuStatus.Disable()
	t.menuStartStop = systray.AddMenuItem(startStopTitle(t.detecting), "Start or stop detection")
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.enabled), "Pause or resume frame processing")
	systray.AddSeparator()

	t.menuLast = systray.AddMenuItem(actionTitle(t.state), "Latest classification")
	t.menuLast.Disable()
	t.menuIdle = systray.AddMenuItem(idleTitle(t.state.Idle), "Movement in the last 10 seconds")
	t.menuIdle.Disable()
	systray.AddSeparator()

	menuDashboard := systray.AddMenuItem("Open Dashboard...", "Open the dashboard in a browser")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit NeuroPose")
	startStop, toggle := t.menuStartStop, t.menuToggle
	t.mu.Unlock()

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-startStop.ClickedCh:
				t.handleStartStop()
			case <-toggle.ClickedCh:
				t.handleToggle()
			case <-menuDashboard.ClickedCh:
				t.handleDashboard()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// handleToggle handles the toggle menu item click.
func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.enabled = !t.enabled
	enabled := t.enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) handleStartStop() {
	t.mu.RLock()
	start := !t.detecting
	callback := t.onStartStop
	t.mu.RUnlock()

	if callback != nil {
		callback(start)
	}
}

// handleDashboard handles the dashboard menu item click.
func (t *Tray) handleDashboard() {
	t.mu.RLock()
	callback := t.onDashboard
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// handleQuit handles the quit menu item click.
func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}

	systray.Quit()
}

// SetStatus updates the status line. detecting selects the label of the
// start/stop item.
func (t *Tray) SetStatus(status string, detecting bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.status = status
	t.detecting = detecting
	if t.menuStatus != nil {
		t.menuStatus.SetTitle(statusTitle(status))
		t.menuStartStop.SetTitle(startStopTitle(detecting))
	}
}

// SetState updates the last action and idle lines from a session snapshot.
func (t *Tray) SetState(st session.State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = st
	if t.menuLast != nil {
		t.menuLast.SetTitle(actionTitle(st))
		t.menuIdle.SetTitle(idleTitle(st.Idle))
	}
}

// IsEnabled returns the current enabled state.
func (t *Tray) IsEnabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

func statusTitle(status string) string {
	return "Status: " + status
}

func startStopTitle(detecting bool) string {
	if detecting {
		return "Stop Detection"
	}
	return "Start Detection"
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Enabled"
	}
	return "○ Paused"
}

func actionTitle(st session.State) string {
	if st.Seq == 0 || st.Confidence == 0 {
		return "Last: none"
	}
	return fmt.Sprintf("Last: %s %.0f%%", st.Action, st.Confidence*100)
}

func idleTitle(idle bool) string {
	if idle {
		return "◌ Idle"
	}
	return "● Active"
}
