package botlist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvCSVOnly(t *testing.T) {
	set, err := LoadFromEnv("AutoModerator, SpamBot,,  ", "")
	require.NoError(t, err)

	assert.Contains(t, set, "automoderator")
	assert.Contains(t, set, "spambot")
	assert.Len(t, set, 2)
}

func TestLoadFromEnvMergesFileAndCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bots.txt")
	require.NoError(t, os.WriteFile(path, []byte("BotOne\nBotTwo\n\n"), 0o644))

	set, err := LoadFromEnv("BotThree", path)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"botone", "bottwo", "botthree"}, Names(set))
}

func TestLoadFromEnvEmptyIsEmptySet(t *testing.T) {
	set, err := LoadFromEnv("", "")
	require.NoError(t, err)
	assert.Empty(t, set)
	assert.NotNil(t, set)
}

func TestLoadFromEnvMissingFileIsError(t *testing.T) {
	_, err := LoadFromEnv("", filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}
