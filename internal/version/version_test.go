package version

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/toastdotdev/toast/internal/compiler"
)

func TestGetVersionPrefersLinkedValue(t *testing.T) {
	old := Version
	defer func() { Version = old }()

	Version = "v1.4.0"
	assert.Equal(t, "v1.4.0", GetVersion())
	assert.True(t, IsRelease())
}

func TestGetGitCommitPrefersLinkedValue(t *testing.T) {
	old := GitCommit
	defer func() { GitCommit = old }()

	GitCommit = "0123456789abcdef"
	assert.Equal(t, "0123456789abcdef", GetGitCommit())
}

func TestShortVersion(t *testing.T) {
	assert.Equal(t, "v1.0.0 (0123456)", shortVersion("v1.0.0", "0123456789"))
	assert.Equal(t, "dev-0123456", shortVersion("dev", "0123456789"))
	assert.Equal(t, "v1.0.0", shortVersion("v1.0.0", "unknown"))
	assert.Equal(t, "dev", shortVersion("dev", "abc"))
}

func TestParseISOTime(t *testing.T) {
	assert.True(t, parseISOTime("unknown").IsZero())
	assert.True(t, parseISOTime("").IsZero())
	assert.True(t, parseISOTime("yesterday").IsZero())
	assert.Equal(t, time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC), parseISOTime("2024-05-01T12:30:00Z"))
	assert.Equal(t, time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC), parseISOTime("2024-05-01 12:30:00"))
}

func TestBuildInfo(t *testing.T) {
	info := GetBuildInfo()
	assert.Equal(t, compiler.FormatVersion, info.ArtifactFormat)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, "/")

	info.GitCommit = "unknown"
	out := info.String()
	assert.True(t, strings.HasPrefix(out, "Version: "))
	assert.NotContains(t, out, "Commit:")
	assert.Contains(t, out, "Artifact format: "+compiler.FormatVersion)
}
