package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowctl/console/internal/domain/permission"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// writeMockConfig writes a config that needs no external service.
func writeMockConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	policy := writeFile(t, dir, "policy.csv",
		"p, group:ops, n1, flow, view\np, user:alice, n1, flow, update\np, user:alice, *, member, *\n")

	cfg := fmt.Sprintf(`
app:
  mode: mock
eventbus:
  type: inmemory
authz:
  mode: casbin
  casbin_policy: %s
  cache_enabled: false
log:
  level: error
%s`, policy, extra)
	return writeFile(t, dir, "config.yaml", cfg)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	err := cmd.Execute()
	return out.String(), err
}

func TestConfigCheck(t *testing.T) {
	path := writeMockConfig(t, "rate_limit:\n  enabled: true\n  requests_per_minute: 60\n")

	out, err := execute(t, "config", "check", "--config", path)
	require.NoError(t, err)

	assert.Contains(t, out, "mode:")
	assert.Contains(t, out, "mock")
	assert.Contains(t, out, "casbin")
	assert.Contains(t, out, "60/min")
	assert.Contains(t, out, "unused")
	assert.Contains(t, out, "configuration OK")
}

func TestConfigCheck_Invalid(t *testing.T) {
	path := writeMockConfig(t, "server:\n  port: 70000\n")

	_, err := execute(t, "config", "check", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestConfigCheck_MissingFile(t *testing.T) {
	_, err := execute(t, "config", "check", "--config", "/non/existent/config.yaml")
	require.Error(t, err)
}

func TestPermissionsCheck(t *testing.T) {
	path := writeMockConfig(t, "")

	tests := []struct {
		name     string
		args     []string
		expected permission.ResourcePermissions
	}{
		{
			name:     "user and group grants",
			args:     []string{"--user", "alice", "--group", "ops", "--resource", "flow", "--namespace", "n1"},
			expected: permission.ResourcePermissions{CanRead: true, CanUpdate: true},
		},
		{
			name:     "group grant only",
			args:     []string{"--user", "bob", "--group", "ops", "--resource", "flow", "--namespace", "n1"},
			expected: permission.ResourcePermissions{CanRead: true},
		},
		{
			name:     "other namespace",
			args:     []string{"--user", "alice", "--group", "ops", "--resource", "flow", "--namespace", "n2"},
			expected: permission.ResourcePermissions{},
		},
		{
			name:     "wildcard namespace and action",
			args:     []string{"--user", "alice", "--resource", "member", "--namespace", "n9"},
			expected: permission.ResourcePermissions{CanCreate: true, CanRead: true, CanUpdate: true, CanDelete: true},
		},
		{
			name:     "restricted actions",
			args:     []string{"--user", "alice", "--resource", "member", "--namespace", "n9", "--action", "view,delete"},
			expected: permission.ResourcePermissions{CanRead: true, CanDelete: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"permissions", "check", "--config", path}, tt.args...)
			out, err := execute(t, args...)
			require.NoError(t, err, out)

			var result permissionsCheckResult
			require.NoError(t, json.Unmarshal([]byte(out), &result), out)
			assert.Equal(t, tt.expected, result.Permissions)
		})
	}
}

func TestPermissionsCheck_InvalidInput(t *testing.T) {
	path := writeMockConfig(t, "")

	tests := []struct {
		name string
		args []string
	}{
		{"unknown resource", []string{"--user", "alice", "--resource", "task", "--namespace", "n1"}},
		{"unknown action", []string{"--user", "alice", "--resource", "flow", "--namespace", "n1", "--action", "run"}},
		{"missing user", []string{"--resource", "flow", "--namespace", "n1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"permissions", "check", "--config", path}, tt.args...)
			_, err := execute(t, args...)
			assert.Error(t, err)
		})
	}
}
