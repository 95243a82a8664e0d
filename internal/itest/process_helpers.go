// If you are AI: This file provides helper functions for starting and managing portbridge processes in tests.

package itest

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// BuildBinary compiles cmd/portbridge into a temp dir and returns its path.
func BuildBinary(t *testing.T) string {
	t.Helper()
	binPath := filepath.Join(t.TempDir(), "portbridge")
	buildCmd := exec.Command("go", "build", "-o", binPath, "../../cmd/portbridge")
	buildCmd.Stderr = os.Stderr
	require.NoError(t, buildCmd.Run(), "build binary")
	return binPath
}

// FreePort returns a TCP port that was free at the time of the call.
func FreePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()
	return port
}

// WriteConfig writes a YAML config with the given status ports and extra sections.
func WriteConfig(t *testing.T, healthPort, httpPort int, extra string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := fmt.Sprintf("server:\n  health_port: %d\n  http_port: %d\n%s", healthPort, httpPort, extra)
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0o644))
	return configPath
}

// StartProcess launches the binary with configPath. The process is killed on test cleanup
// if it is still running.
func StartProcess(t *testing.T, ctx context.Context, binPath, configPath string) *exec.Cmd {
	t.Helper()
	cmd := exec.CommandContext(ctx, binPath, "--config", configPath)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	require.NoError(t, cmd.Start(), "start portbridge")
	t.Cleanup(func() {
		if cmd.ProcessState == nil {
			_ = cmd.Process.Kill()
			_ = cmd.Wait()
		}
	})
	return cmd
}

// WaitForHealth waits for the health endpoint to become available.
// Returns an error if the endpoint is not available within the timeout.
func WaitForHealth(port int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	url := fmt.Sprintf("http://127.0.0.1:%d/healthz", port)

	for time.Now().Before(deadline) {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}

	return fmt.Errorf("health endpoint not available after %v", timeout)
}

// EchoServer is a WebSocket server that echoes every message.
type EchoServer struct {
	*http.Server
	Addr string
}

// StartEchoServer listens on a loopback port and echoes WebSocket messages.
func StartEchoServer(t *testing.T) *EchoServer {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	es := &EchoServer{Addr: listener.Addr().String()}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	es.Server = &http.Server{
		ReadHeaderTimeout: 5 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			conn, err := upgrader.Upgrade(w, r, nil)
			if err != nil {
				return
			}
			defer conn.Close()
			for {
				mt, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				if err := conn.WriteMessage(mt, data); err != nil {
					return
				}
			}
		}),
	}
	go func() { _ = es.Serve(listener) }()
	t.Cleanup(func() { _ = es.Close() })
	return es
}
