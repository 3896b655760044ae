package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/climate-core/internal/api"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// writeConfig writes a config with every transport disabled and returns its
// path. extra is appended verbatim.
func writeConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`
database:
  path: %q
  wal_mode: true
  busy_timeout: 5

mqtt:
  enabled: false

logging:
  level: error
  format: text
  output: stdout
%s`, filepath.Join(dir, "climate.db"), extra)

	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

// execute runs the command tree with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port //nolint:errcheck // always a TCP listener
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx, "/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_InvalidPolicy verifies configuration validation stops startup.
func TestRun_InvalidPolicy(t *testing.T) {
	path := writeConfig(t, `
api:
  enabled: false
ingest:
  device_policy: trust_everyone
`)
	err := run(context.Background(), path)
	if err == nil || !strings.Contains(err.Error(), "device_policy") {
		t.Fatalf("run() error = %v, want device_policy validation error", err)
	}
}

// TestRun_ServesUntilCancelled starts the daemon with only the API enabled
// and shuts it down through the context.
func TestRun_ServesUntilCancelled(t *testing.T) {
	port := freePort(t)
	path := writeConfig(t, fmt.Sprintf(`
api:
  enabled: true
  host: 127.0.0.1
  port: %d
security:
  jwt:
    secret: %q
`, port, testSecret))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- run(ctx, path) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/api/v1/ingest/stats", port)
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(url) //nolint:gosec,noctx // test URL
		if err == nil {
			var body map[string]any
			decodeErr := json.NewDecoder(resp.Body).Decode(&body)
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK || decodeErr != nil {
				t.Fatalf("stats status = %d, decode error = %v", resp.StatusCode, decodeErr)
			}
			if body["policy"] != "require_provisioned" {
				t.Errorf("policy = %v, want require_provisioned", body["policy"])
			}
			break
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("API never came up: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(20 * time.Second):
		t.Fatal("run() did not return after cancellation")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("CLIMATE_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}
	t.Setenv("CLIMATE_CONFIG", "/etc/climated/config.yaml")
	if got := getConfigPath(); got != "/etc/climated/config.yaml" {
		t.Errorf("getConfigPath() = %q", got)
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.HasPrefix(out, "climated "+version) {
		t.Errorf("output = %q", out)
	}
}

func TestMigrateCmd(t *testing.T) {
	path := writeConfig(t, "api:\n  enabled: false\n")

	out, err := execute(t, "--config", path, "migrate", "status")
	if err != nil {
		t.Fatalf("migrate status error = %v", err)
	}
	if !strings.Contains(out, "current version:") || !strings.Contains(out, "pending:") {
		t.Errorf("status before migrate = %q", out)
	}

	out, err = execute(t, "--config", path, "migrate")
	if err != nil {
		t.Fatalf("migrate error = %v", err)
	}
	if !strings.Contains(out, "migrated from version 0") {
		t.Errorf("migrate output = %q", out)
	}

	out, err = execute(t, "--config", path, "migrate")
	if err != nil {
		t.Fatalf("second migrate error = %v", err)
	}
	if !strings.Contains(out, "up to date") {
		t.Errorf("second migrate output = %q", out)
	}

	out, err = execute(t, "--config", path, "migrate", "status")
	if err != nil {
		t.Fatalf("migrate status error = %v", err)
	}
	if strings.Contains(out, "pending:") || !strings.Contains(out, "applied:") {
		t.Errorf("status after migrate = %q", out)
	}
}

func TestProvisionCmd(t *testing.T) {
	path := writeConfig(t, "api:\n  enabled: false\n")

	out, err := execute(t, "--config", path, "provision", "--uid", "temp001", "--label", "Salon sensor", "--room-name", "Salon")
	if err != nil {
		t.Fatalf("provision error = %v", err)
	}
	var result map[string]any
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("provision output %q: %v", out, err)
	}
	if room, _ := result["room"].(map[string]any); room["id"] != "salon" { //nolint:errcheck // checked by comparison
		t.Errorf("result = %v", result)
	}

	if _, err := execute(t, "--config", path, "provision", "--uid", "temp001", "--label", "again"); err == nil {
		t.Error("provisioning an existing uid should fail")
	}

	out, err = execute(t, "--config", path, "provision", "status", "temp001")
	if err != nil {
		t.Fatalf("provision status error = %v", err)
	}
	if !strings.Contains(out, `"room_id": "salon"`) {
		t.Errorf("status output = %q", out)
	}

	if _, err := execute(t, "--config", path, "provision", "move", "temp001", "attic"); err == nil {
		t.Error("moving to an unknown room should fail")
	}
}

func TestTokenCmd(t *testing.T) {
	path := writeConfig(t, fmt.Sprintf(`
api:
  enabled: true
  port: 8080
security:
  jwt:
    secret: %q
    access_token_ttl: 30
`, testSecret))

	out, err := execute(t, "--config", path, "token", "--subject", "commissioning")
	if err != nil {
		t.Fatalf("token error = %v", err)
	}
	claims, err := api.ParseToken(testSecret, strings.TrimSpace(out))
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if claims.Subject != "commissioning" {
		t.Errorf("subject = %q", claims.Subject)
	}
	if ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time); ttl != 30*time.Minute {
		t.Errorf("ttl = %v, want 30m", ttl)
	}
}

func TestParseAssignments(t *testing.T) {
	got, err := parseAssignments([]string{"homeId=house-1", "floor=2"})
	if err != nil {
		t.Fatalf("parseAssignments() error = %v", err)
	}
	if got["homeId"] != "house-1" || got["floor"] != "2" {
		t.Errorf("got %v", got)
	}

	for _, bad := range []string{"homeId", "=x"} {
		if _, err := parseAssignments([]string{bad}); err == nil {
			t.Errorf("parseAssignments(%q) should fail", bad)
		}
	}
}
