package main

import (
	"os"
	"path/filepath"
	"testing"

	infraBQ "github.com/dvloznov/expense-assistant/internal/infra/bigquery"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFilename(t *testing.T) {
	tests := []struct {
		filename string
		valid    bool
		version  int
		name     string
	}{
		{"0001_create_accounts.sql", true, 1, "create_accounts"},
		{"0012_add_rule_prompt.sql", true, 12, "add_rule_prompt"},
		{"001_invalid.sql", false, 0, ""},
		{"0001_test", false, 0, ""},
		{"0001.sql", false, 0, ""},
		{"invalid_0001_test.sql", false, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := parseFilename(tt.filename)
			assert.Equal(t, tt.valid, ok)
			assert.Equal(t, tt.version, version)
			assert.Equal(t, tt.name, name)
		})
	}
}

func TestReadMigrations(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
	}
	write("0002_create_categories.sql", "CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.categories` (x INT64);")
	write("0001_create_accounts.sql", "CREATE TABLE `{{PROJECT_ID}}.{{DATASET_ID}}.accounts` (x INT64);")
	write("README.md", "not a migration")

	ds := infraBQ.Dataset{Project: "p", Name: "d"}
	got, err := readMigrations(dir, ds, zerolog.Nop())
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, 1, got[0].Version)
	assert.Equal(t, "create_accounts", got[0].Name)
	assert.Equal(t, "CREATE TABLE `p.d.accounts` (x INT64);", got[0].SQL)
	assert.Equal(t, 2, got[1].Version)

	other, err := readMigrations(dir, infraBQ.Dataset{Project: "q", Name: "e"}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, got[0].Checksum, other[0].Checksum, "checksum must not depend on the target dataset")
}

func TestReadMigrations_DuplicateVersion(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001_a.sql"), []byte("SELECT 1"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001_b.sql"), []byte("SELECT 2"), 0o600))

	_, err := readMigrations(dir, infraBQ.Dataset{Project: "p", Name: "d"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestRepositoryMigrationsParse(t *testing.T) {
	got, err := readMigrations("migrations/bigquery", infraBQ.Dataset{Project: "p", Name: "d"}, zerolog.Nop())
	require.NoError(t, err)
	require.NotEmpty(t, got)
	for i, m := range got {
		assert.Equal(t, i+1, m.Version, "versions must be contiguous")
		assert.NotContains(t, m.SQL, "{{")
	}
}

func TestPendingAndDrift(t *testing.T) {
	all := []Migration{
		{Version: 1, Name: "a", Checksum: "aaa"},
		{Version: 2, Name: "b", Checksum: "bbb"},
		{Version: 3, Name: "c", Checksum: "ccc"},
	}
	applied := []AppliedMigration{
		{Version: 1, Checksum: "aaa"},
		{Version: 2, Checksum: "old"},
	}

	pending := pendingMigrations(all, applied)
	require.Len(t, pending, 1)
	assert.Equal(t, 3, pending[0].Version)

	drift := checksumDrift(all, applied)
	require.Len(t, drift, 1)
	assert.Equal(t, 2, drift[0].Version)
}
