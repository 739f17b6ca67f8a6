package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/neuropose/internal/alert"
	"github.com/ayusman/neuropose/internal/app"
	"github.com/ayusman/neuropose/internal/classifier"
	"github.com/ayusman/neuropose/internal/config"
	"github.com/ayusman/neuropose/internal/estimator"
	"github.com/ayusman/neuropose/internal/hub"
	"github.com/ayusman/neuropose/internal/log"
	"github.com/ayusman/neuropose/internal/publish"
	"github.com/ayusman/neuropose/internal/server"
	"github.com/ayusman/neuropose/internal/session"
	"github.com/ayusman/neuropose/internal/store"
	"github.com/ayusman/neuropose/internal/tray"
)

// serveFlags are applied over config.Load only when set on the command line.
var serveFlags struct {
	addr      string
	web       string
	db        string
	logLevel  string
	camera    int
	fps       int
	estimator string
	model     string
	minScore  float64
	redis     string
	alert     string
	tray      bool
	noStart   bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run detection and serve the dashboard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		applyServeFlags(cmd, &cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		return serve(cmd.Context(), cfg, !serveFlags.noStart)
	},
}

func init() {
	f := serveCmd.Flags()
	f.StringVar(&serveFlags.addr, "addr", config.DefaultAddr, "HTTP listen address")
	f.StringVar(&serveFlags.web, "web", "", "dashboard directory (default: search web, ../web, ~/.neuropose/web)")
	f.StringVar(&serveFlags.db, "db", "", "journal database path")
	f.StringVar(&serveFlags.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	f.IntVar(&serveFlags.camera, "camera", 0, "camera device index")
	f.IntVar(&serveFlags.fps, "fps", config.DefaultFPS, "camera frames per second")
	f.StringVar(&serveFlags.estimator, "estimator", config.DefaultEstimator, "pose estimator: movenet, service or mock")
	f.StringVar(&serveFlags.model, "model", config.DefaultModelPath, "MoveNet ONNX model path")
	f.Float64Var(&serveFlags.minScore, "min-score", 0, "drop keypoints scored below this, 0 to 1")
	f.StringVar(&serveFlags.redis, "redis", "", "Redis address for state publishing")
	f.StringVar(&serveFlags.alert, "alert", "", "executable run on punch start and stop")
	f.BoolVar(&serveFlags.tray, "tray", false, "show the system tray menu")
	f.BoolVar(&serveFlags.noStart, "no-start", false, "serve without starting detection")

	rootCmd.AddCommand(serveCmd)
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("addr") {
		cfg.Addr = serveFlags.addr
	}
	if f.Changed("web") {
		cfg.StaticDir = serveFlags.web
	}
	if f.Changed("db") {
		cfg.DBPath = serveFlags.db
	}
	if f.Changed("log-level") {
		cfg.LogLevel = serveFlags.logLevel
	}
	if f.Changed("camera") {
		cfg.CameraID = serveFlags.camera
	}
	if f.Changed("fps") {
		cfg.FPS = serveFlags.fps
	}
	if f.Changed("estimator") {
		cfg.Estimator = serveFlags.estimator
	}
	if f.Changed("model") {
		cfg.ModelPath = serveFlags.model
	}
	if f.Changed("min-score") {
		cfg.MinScore = serveFlags.minScore
	}
	if f.Changed("redis") {
		cfg.RedisAddr = serveFlags.redis
	}
	if f.Changed("alert") {
		cfg.AlertCommand = serveFlags.alert
	}
	if f.Changed("tray") {
		cfg.Tray = serveFlags.tray
	}
}

func serve(ctx context.Context, cfg config.Config, autoStart bool) error {
	log.Init(cfg.LogLevel)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	st, err := store.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer st.Close()

	hooks := alert.NewManager(cfg.AlertDir)
	if err := hooks.Discover(); err != nil {
		log.Warn("alert hook discovery failed", "dir", cfg.AlertDir, "error", err)
	}
	if cfg.AlertCommand != "" {
		hooks.Add("command", cfg.AlertCommand)
	}
	notifier := alert.NewNotifier(hooks, alert.NewExecutor(cfg.AlertTimeout))
	defer notifier.Close()
	log.Info("alert hooks loaded", "count", len(hooks.List()))

	a := app.New(app.Config{
		Store:  st,
		Alerts: notifier,
		Estimator: estimator.Config{
			Kind:       cfg.Estimator,
			ModelPath:  cfg.ModelPath,
			ScriptPath: cfg.ScriptPath,
			MinScore:   cfg.MinScore,
		},
		Classifier: classifier.Config{
			MovementThreshold: cfg.MovementThreshold,
			ExtensionMargin:   cfg.ExtensionMargin,
		},
		Session: session.Config{
			HistorySize:   cfg.HistorySize,
			IdleThreshold: cfg.IdleThreshold,
		},
		CameraID:          cfg.CameraID,
		FPS:               cfg.FPS,
		ModelTimeout:      cfg.ModelTimeout,
		WarmupFrames:      cfg.WarmupFrames,
		IdleCheckInterval: cfg.IdleCheckInterval,
	})
	defer a.Aggregator().Close()
	defer a.Stop()

	states := hub.New("state")
	go states.Run(ctx)
	go bridge(a.Aggregator(), states)

	if cfg.RedisAddr != "" {
		startPublisher(ctx, cfg, a.Aggregator())
	}

	webDir := cfg.StaticDir
	if webDir == "" {
		webDir = findWebDir()
	}
	if webDir != "" {
		log.Info("serving dashboard", "dir", webDir)
	}

	srv := server.New(server.Config{
		StaticDir: webDir,
		Store:     st,
		App:       a,
		Hub:       states,
		Context:   ctx,
	})
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe(cfg.Addr)
	}()
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", "error", err)
		}
	}()

	if autoStart {
		// A failed start leaves the server up; the status endpoint and the
		// tray report it and a later start can recover.
		if err := a.Start(ctx); err != nil {
			log.Warn("detection not started", "error", err)
		}
	}

	if cfg.Tray {
		runTray(ctx, cancel, a, dashboardURL(cfg.Addr))
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}

// bridge forwards every session snapshot to the WebSocket hub until the
// aggregator closes.
func bridge(agg *session.Aggregator, h *hub.Hub) {
	ch, unsubscribe := agg.Subscribe(16)
	defer unsubscribe()

	for st := range ch {
		if err := h.BroadcastJSON(st); err != nil {
			log.Warn("failed to broadcast state", "error", err)
		}
	}
}

// startPublisher connects to Redis in the background and mirrors session
// state there until ctx ends. The returned channel closes when it gives up
// connecting or stops publishing.
func startPublisher(ctx context.Context, cfg config.Config, agg *session.Aggregator) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)

		pub, err := publish.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, 5)
		if err != nil {
			log.Warn("redis unavailable, state will not be published", "addr", cfg.RedisAddr, "error", err)
			return
		}
		defer pub.Close()
		log.Info("publishing state to redis", "addr", cfg.RedisAddr)

		ch, unsubscribe := agg.Subscribe(16)
		defer unsubscribe()
		pub.Run(ctx, ch)
	}()
	return done
}

// runTray blocks in the system tray loop until Quit is chosen or ctx ends.
func runTray(ctx context.Context, cancel context.CancelFunc, a *app.App, url string) {
	t := tray.New()
	t.OnToggle(a.SetEnabled)
	t.OnStartStop(func(start bool) {
		if !start {
			a.Stop()
			return
		}
		if err := a.Start(ctx); err != nil {
			log.Warn("detection not started", "error", err)
		}
	})
	t.OnDashboard(func() {
		if err := openBrowser(url); err != nil {
			log.Warn("failed to open dashboard", "url", url, "error", err)
		}
	})
	t.OnQuit(cancel)

	a.OnStatus(func(s app.Status) {
		t.SetStatus(string(s), s == app.StatusDetecting)
	})
	t.SetStatus(string(a.Status()), a.Status() == app.StatusDetecting)

	ch, unsubscribe := a.Aggregator().Subscribe(4)
	go func() {
		defer unsubscribe()
		for st := range ch {
			t.SetState(st)
		}
	}()

	go func() {
		<-ctx.Done()
		t.Quit()
	}()

	t.Run()
}

func dashboardURL(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func openBrowser(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	return cmd.Start()
}

// findWebDir searches for the dashboard directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.neuropose/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	p := filepath.Join(homeDir, ".neuropose", "web")
	if info, err := os.Stat(p); err == nil && info.IsDir() {
		return p
	}
	return ""
}
