package configs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aissist/indexbot/internal/config"
)

func TestProjectConfigTemplate_MatchesDefaults(t *testing.T) {
	// Given: the template written to disk and no overriding environment
	for _, name := range []string{"PROJECT_NAME", "PROJECT_BASE", "OLLAMA_URL", "MODEL", "EMBED_MODEL",
		"INDEXBOT_EMBED_PROVIDER", "INDEXBOT_EMBED_DEVICE", "INDEXBOT_OLLAMA_HOST", "INDEXBOT_TOP_K",
		"INDEXBOT_POOL_SIZE", "INDEXBOT_LOG_LEVEL"} {
		t.Setenv(name, "")
	}
	path := filepath.Join(t.TempDir(), config.ProjectConfigFile)
	require.NoError(t, os.WriteFile(path, []byte(ProjectConfigTemplate), 0o644))

	// When: it is loaded
	cfg, err := config.Load(config.LoadOptions{ConfigFile: path, Dir: t.TempDir(), SkipUserConfig: true})

	// Then: it is valid and equals the built-in defaults
	require.NoError(t, err)
	assert.Equal(t, config.NewConfig(), cfg)
}
