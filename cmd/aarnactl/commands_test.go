package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zorrojurro/project-aarna/internal/registry"
	"github.com/Zorrojurro/project-aarna/internal/session"
	"github.com/Zorrojurro/project-aarna/pkg/workflows"
)

func run(t *testing.T, dataDir, identity string, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--demo", "--data-dir", dataDir, "--config", "", "--as", identity}, args...))
	err := root.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, dataDir, identity string, args ...string) string {
	t.Helper()
	out, err := run(t, dataDir, identity, args...)
	require.NoError(t, err, "aarnactl %s", strings.Join(args, " "))
	return out
}

func TestProjectLifecycleAcrossInvocations(t *testing.T) {
	dir := t.TempDir()
	validator := session.DemoSigner("validator").Address()

	mustRun(t, dir, "admin", "deploy")
	mustRun(t, dir, "admin", "validator", validator)
	mustRun(t, dir, "admin", "token")
	mustRun(t, dir, "developer", "optin")

	out := mustRun(t, dir, "developer", "submit",
		"--name", "Sundarbans Mangrove Restoration",
		"--location", "West Bengal, India",
		"--ecosystem", "Mangrove",
		"--evidence", "bafy123")
	assert.JSONEq(t, `{"id":0}`, out)

	_, err := run(t, dir, "developer", "approve", "0", "2500")
	assert.Error(t, err)

	mustRun(t, dir, "validator", "approve", "0", "2500")
	out = mustRun(t, dir, "validator", "issue", "0")
	assert.JSONEq(t, `{"id":0,"issued":2500}`, out)

	var snap registry.Snapshot
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, dir, "developer", "state")), &snap))
	require.Len(t, snap.Projects, 1)
	assert.Equal(t, workflows.StatusCreditsIssued, snap.Projects[0].Status)
	assert.Equal(t, uint64(2500), snap.TotalCreditsIssued)
	assert.Equal(t, string(session.RoleDeveloper), snap.Role)

	csv := mustRun(t, dir, "developer", "export", "--format", "csv")
	assert.Contains(t, csv, "Sundarbans Mangrove Restoration")
}

func TestArgumentValidation(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, dir, "admin", "approve", "zero", "1")
	assert.EqualError(t, err, `invalid id "zero"`)

	_, err = run(t, dir, "admin", "list", "10")
	assert.Error(t, err)

	_, err = run(t, dir, "developer", "submit")
	assert.Error(t, err)
}

func TestAddress(t *testing.T) {
	out := mustRun(t, t.TempDir(), "", "address", "buyer")
	assert.Equal(t, session.DemoSigner("buyer").Address()+"\n", out)
}
