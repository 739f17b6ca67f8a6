package alert

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// writeScript writes an executable shell script into dir.
func writeScript(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return path
}

func TestExecutor_Execute(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	tests := []struct {
		name        string
		script      string
		wantErr     string
		wantSuccess bool
	}{
		{
			name:        "json success",
			script:      "#!/bin/sh\necho '{\"success\":true}'\n",
			wantSuccess: true,
		},
		{
			name:        "silent success",
			script:      "#!/bin/sh\ncat > /dev/null\n",
			wantSuccess: true,
		},
		{
			name:        "reported failure",
			script:      "#!/bin/sh\necho '{\"success\":false,\"error\":\"no speaker\"}'\n",
			wantSuccess: false,
		},
		{
			name:    "non-zero exit",
			script:  "#!/bin/sh\necho 'boom' >&2\nexit 1\n",
			wantErr: "boom",
		},
		{
			name:    "invalid json",
			script:  "#!/bin/sh\necho 'not json'\n",
			wantErr: "parse",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			hook := &Hook{
				Manifest:   Manifest{Name: "test"},
				Path:       dir,
				Executable: writeScript(t, dir, "hook.sh", tt.script),
			}

			resp, err := NewExecutor(5*time.Second).Execute(context.Background(), hook, &Request{Event: EventStart})
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("Execute() error = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if resp.Success != tt.wantSuccess {
				t.Errorf("Success = %v, want %v", resp.Success, tt.wantSuccess)
			}
		})
	}
}

func TestExecutor_ReadsStdin(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	dir := t.TempDir()
	out := filepath.Join(dir, "received.json")
	hook := &Hook{
		Manifest:   Manifest{Name: "recorder"},
		Path:       dir,
		Executable: writeScript(t, dir, "hook.sh", "#!/bin/sh\ncat > received.json\n"),
	}

	req := &Request{Event: EventStart, Action: "punch", Confidence: 0.95, SessionID: "abc"}
	if _, err := NewExecutor(5*time.Second).Execute(context.Background(), hook, req); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("hook did not write its input: %v", err)
	}
	for _, want := range []string{`"event":"start"`, `"action":"punch"`, `"confidence":0.95`, `"session_id":"abc"`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("stdin %s missing %s", data, want)
		}
	}
}

func TestExecutor_Timeout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	dir := t.TempDir()
	hook := &Hook{
		Manifest:   Manifest{Name: "slow"},
		Path:       dir,
		Executable: writeScript(t, dir, "hook.sh", "#!/bin/sh\nsleep 10\n"),
	}

	start := time.Now()
	_, err := NewExecutor(100*time.Millisecond).Execute(context.Background(), hook, &Request{Event: EventStop})
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("expected timeout error, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("Execute should return soon after the timeout")
	}
}

func TestExecutor_MissingExecutable(t *testing.T) {
	hook := &Hook{
		Manifest:   Manifest{Name: "ghost"},
		Executable: filepath.Join(t.TempDir(), "missing"),
	}
	if _, err := NewExecutor(time.Second).Execute(context.Background(), hook, &Request{}); err == nil {
		t.Error("expected error for a missing executable")
	}
}
