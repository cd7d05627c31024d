package ralph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetRalphConfig(t *testing.T) {
	tests := []struct {
		name         string
		file         string
		disabled     string
		wantFile     string
		wantDisabled bool
	}{
		{name: "defaults", wantFile: "RALPH.md"},
		{name: "custom file", file: "TODO.md", wantFile: "TODO.md"},
		{name: "disabled true", disabled: "true", wantFile: "RALPH.md", wantDisabled: true},
		{name: "disabled 1", disabled: "1", wantFile: "RALPH.md", wantDisabled: true},
		{name: "yes is not truthy", disabled: "yes", wantFile: "RALPH.md"},
		{name: "TRUE is not truthy", disabled: "TRUE", wantFile: "RALPH.md"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvTaskFile, tt.file)
			t.Setenv(EnvDisabled, tt.disabled)

			cfg := GetRalphConfig()
			assert.Equal(t, tt.wantFile, cfg.TaskFile)
			assert.Equal(t, tt.wantDisabled, cfg.Disabled)
		})
	}
}

func TestIsDangerousPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.True(t, IsDangerousPath(home))
	assert.True(t, IsDangerousPath(home+"/"))
	assert.True(t, IsDangerousPath("/"))
	assert.True(t, IsDangerousPath("/usr"))
	assert.True(t, IsDangerousPath("/usr/local/bin"))
	assert.True(t, IsDangerousPath("/etc/ssh"))
	assert.True(t, IsDangerousPath("/bin"))
	assert.True(t, IsDangerousPath("/System/Library"))
	assert.True(t, IsDangerousPath("/tmp/../usr/lib"), "dot segments are resolved")

	assert.False(t, IsDangerousPath("/tmp/my-project"))
	assert.False(t, IsDangerousPath("/usrdata/project"), "prefix match is per path segment")
	assert.False(t, IsDangerousPath(t.TempDir()))
}

func TestBuildRalphPrompt(t *testing.T) {
	prompts := []string{
		"Build the login page",
		"Handle 100% of cases with %s and %d verbs",
		"multi\nline\nprompt",
		"",
	}
	path := filepath.Join(t.TempDir(), "RALPH.md")

	for _, p := range prompts {
		out := BuildRalphPrompt(p, path)
		assert.Contains(t, out, p)
		assert.Contains(t, out, path)
		assert.Contains(t, out, "## [ ]")
		assert.Contains(t, out, "## [x]")
		assert.Contains(t, out, "### Updates")
		assert.Contains(t, out, "Continue autonomously")
	}
}

func TestTaskFilePath(t *testing.T) {
	dir := t.TempDir()

	p, err := Config{TaskFile: "RALPH.md"}.TaskFilePath(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "RALPH.md"), p)

	p, err = Config{TaskFile: "/abs/TASKS.md"}.TaskFilePath(dir)
	require.NoError(t, err)
	assert.Equal(t, "/abs/TASKS.md", p)
}
