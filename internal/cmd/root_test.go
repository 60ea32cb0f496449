package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetVersionInfo(t *testing.T) {
	orig := versionInfo
	defer func() { versionInfo = orig }()

	SetVersionInfo("1.2.3", "abc123", "2026-01-01")
	assert.Equal(t, "1.2.3", versionInfo.Version)
	assert.Equal(t, "abc123", versionInfo.Commit)
	assert.Equal(t, "2026-01-01", versionInfo.BuildDate)

	// Empty fields leave the previous values in place.
	SetVersionInfo("", "", "")
	assert.Equal(t, "1.2.3", versionInfo.Version)
}

func TestVersionCommandOutput(t *testing.T) {
	orig := versionInfo
	defer func() { versionInfo = orig }()
	SetVersionInfo("9.9.9", "deadbeef", "2026-02-02")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())

	assert.Contains(t, out.String(), "9.9.9")
	assert.Contains(t, out.String(), "deadbeef")
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"analyze", "scan", "describe", "render", "update", "serve", "version"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestUpdateFlags(t *testing.T) {
	for _, flag := range []string{
		"skip-process-new", "skip-analyze", "skip-scan",
		"skip-describe", "skip-render", "force-type", "max-workers",
	} {
		assert.NotNil(t, updateCmd.Flags().Lookup(flag), "missing flag %s", flag)
	}
}
