package consumer

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestRunExitCodes(t *testing.T) {
	tables := []struct {
		name         string
		script       string
		expectedCode int
	}{
		{"success", "exit 0", 0},
		{"failure code propagated", "exit 3", 3},
		{"killed by signal", "kill -KILL $$", 128 + 9},
	}

	for _, table := range tables {
		t.Run(table.name, func(t *testing.T) {
			code, err := Command{Argv: []string{"sh", "-c", table.script}, Stdin: strings.NewReader("")}.Run(context.Background())
			if err != nil {
				t.Fatalf("Run() error: %v", err)
			}
			if diff := cmp.Diff(table.expectedCode, code); diff != "" {
				t.Errorf("Run() exit code mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRunPassesArgsAndEnv(t *testing.T) {
	stdout := &bytes.Buffer{}
	cmd := Command{
		Argv:   []string{"sh", "-c", `echo "$0 $CONFIG_PATH"`, "--config"},
		Env:    []string{"CONFIG_PATH=/app/config.yaml"},
		Stdin:  strings.NewReader(""),
		Stdout: stdout,
	}
	if _, err := cmd.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff("--config /app/config.yaml\n", stdout.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestRunMissingBinary(t *testing.T) {
	code, err := Command{Argv: []string{"/nonexistent/litellm"}}.Run(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if diff := cmp.Diff(127, code); diff != "" {
		t.Error(diff)
	}

	if _, err = (Command{}).Run(context.Background()); err == nil {
		t.Fatal("expected an error for an empty command")
	}
}

func TestCancelSendsSigterm(t *testing.T) {
	stdout := &bytes.Buffer{}
	ctx, cancel := context.WithCancel(context.Background())

	// The trap exits cleanly so a 0 proves SIGTERM was delivered rather than SIGKILL
	cmd := Command{
		Argv:        []string{"sh", "-c", `trap 'echo term; exit 0' TERM; echo up; while true; do sleep 0.05; done`},
		Stdin:       strings.NewReader(""),
		Stdout:      stdout,
		GracePeriod: 5 * time.Second,
	}

	done := make(chan int, 1)
	go func() {
		code, _ := cmd.Run(ctx)
		done <- code
	}()

	time.Sleep(300 * time.Millisecond)
	cancel()

	select {
	case code := <-done:
		if diff := cmp.Diff(0, code); diff != "" {
			t.Errorf("exit code mismatch (-want +got):\n%s", diff)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("consumer did not stop")
	}
}
