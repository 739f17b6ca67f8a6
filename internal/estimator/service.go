package estimator

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/neuropose/internal/log"
	"github.com/ayusman/neuropose/internal/pose"
)

const serviceScript = "pose_service.py"

// ServiceIdleTimeout is how long the pose service may sit unused before it is
// shut down. The next Estimate starts it again.
const ServiceIdleTimeout = 30 * time.Second

// Service implements Estimator using a Python pose service subprocess. Frames
// go to its stdin as a 4-byte big-endian length followed by JPEG bytes; it
// answers each with one JSON line.
type Service struct {
	config      Config
	command     []string
	idleTimeout time.Duration

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	started   bool
	lastUsed  time.Time
	idleTimer *time.Timer
}

// NewService creates a service estimator.
// The Python process is started lazily on first estimate.
func NewService(config Config) (*Service, error) {
	scriptPath := config.ScriptPath
	if scriptPath != "" {
		if _, err := os.Stat(scriptPath); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, scriptPath)
		}
	} else {
		scriptPath = findServiceScript()
		if scriptPath == "" {
			return nil, fmt.Errorf("%w: %s", ErrModelNotFound, serviceScript)
		}
	}

	pythonPath := findVenvPython()
	if pythonPath == "" {
		pythonPath = "python3"
	}

	return &Service{
		config:      config,
		command:     []string{pythonPath, scriptPath},
		idleTimeout: ServiceIdleTimeout,
	}, nil
}

// Estimate sends frame to the service and returns its keypoints.
// If ctx ends before the service answers, the process is killed and the next
// call starts a fresh one.
func (s *Service) Estimate(ctx context.Context, frame *gocv.Mat) (pose.Estimate, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	return s.exchange(ctx, buf.GetBytes())
}

// Close shuts down the Python process.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown()
}

type serviceResponse struct {
	Keypoints []pose.Keypoint `json:"keypoints"`
	Error     string          `json:"error,omitempty"`
}

type exchangeResult struct {
	est pose.Estimate
	err error
}

func (s *Service) exchange(ctx context.Context, data []byte) (pose.Estimate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ensureStarted(); err != nil {
		return nil, err
	}

	stdin, stdout := s.stdin, s.stdout
	done := make(chan exchangeResult, 1)
	go func() {
		est, err := roundTrip(stdin, stdout, data)
		done <- exchangeResult{est: est, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			// The stream is out of sync after a failed exchange.
			s.kill()
			return nil, res.err
		}
		s.lastUsed = time.Now()
		s.resetIdleTimer()
		return res.est, nil
	case <-ctx.Done():
		s.kill()
		<-done
		return nil, ctx.Err()
	}
}

func roundTrip(w io.Writer, r *bufio.Reader, data []byte) (pose.Estimate, error) {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := w.Write(length); err != nil {
		return nil, fmt.Errorf("write length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("write data: %w", err)
	}

	line, err := r.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var response serviceResponse
	if err := json.Unmarshal([]byte(line), &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != "" {
		return nil, errors.New("pose service: " + response.Error)
	}
	if response.Keypoints == nil {
		return pose.Estimate{}, nil
	}
	return pose.Estimate(response.Keypoints), nil
}

func (s *Service) ensureStarted() error {
	if s.started {
		return nil
	}

	s.cmd = exec.Command(s.command[0], s.command[1:]...)

	stdin, err := s.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	s.cmd.Stderr = os.Stderr

	if err := s.cmd.Start(); err != nil {
		return fmt.Errorf("start pose service: %w", err)
	}

	log.Debug("pose service started", "pid", s.cmd.Process.Pid)

	s.stdin = stdin
	s.stdout = bufio.NewReader(stdout)
	s.started = true
	s.lastUsed = time.Now()

	return nil
}

// kill stops the process without waiting for it to drain stdin.
func (s *Service) kill() {
	if !s.started {
		return
	}
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	s.shutdown()
}

func (s *Service) shutdown() error {
	if !s.started {
		return nil
	}

	if s.idleTimer != nil {
		s.idleTimer.Stop()
		s.idleTimer = nil
	}

	if s.stdin != nil {
		s.stdin.Close()
	}

	err := s.cmd.Wait()
	s.started = false
	s.cmd = nil
	s.stdin = nil
	s.stdout = nil

	return err
}

func (s *Service) resetIdleTimer() {
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	s.idleTimer = time.AfterFunc(s.idleTimeout, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		log.Debug("pose service idle, shutting down")
		s.shutdown()
	})
}

// running reports whether the subprocess is up.
func (s *Service) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func findServiceScript() string {
	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		filepath.Join("scripts", serviceScript),
		filepath.Join("..", "scripts", serviceScript),
		filepath.Join(execDir, "scripts", serviceScript),
		filepath.Join(os.Getenv("HOME"), ".neuropose", "scripts", serviceScript),
	}

	return firstExisting(candidates)
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		"../../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".neuropose/venv/bin/python"),
	}

	return firstExisting(candidates)
}

func firstExisting(paths []string) string {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}
