package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetCurrentVersion(t *testing.T) {
	assert.Equal(t, DevVersion, GetCurrentVersion("dev"))
	assert.Equal(t, DevVersion, GetCurrentVersion("demo"))
	assert.Equal(t, Version, GetCurrentVersion("prod"))
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid(Version))
	assert.True(t, IsValid(DevVersion))
	assert.True(t, IsValid("v1.2.3"))
	assert.False(t, IsValid("latest"))
	assert.False(t, IsValid(""))
}

func TestString(t *testing.T) {
	prevCommit, prevBuild := GitCommit, BuildTime
	t.Cleanup(func() { GitCommit, BuildTime = prevCommit, prevBuild })

	GitCommit, BuildTime = "unknown", "unknown"
	assert.Equal(t, Version, String())
	assert.Equal(t, "Version="+Version, StringFull())

	GitCommit, BuildTime = "0123456789abcdef", "2026-01-02T03:04:05Z"
	assert.Equal(t, Version+"-01234567", String())
	assert.Equal(t, "Version="+Version+" Commit=01234567 BuildTime=2026-01-02T03:04:05Z", StringFull())
}
