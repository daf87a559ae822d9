package importer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumhq/stratum/internal/archive"
	"github.com/stratumhq/stratum/internal/engine"
	"github.com/stratumhq/stratum/internal/storage/sqlite"
	"github.com/stratumhq/stratum/pkg/types"
)

func TestParseLine(t *testing.T) {
	turn, ok := ParseLine("user: I met [[Ana]] at the [[Mission Rock|cafe]] today")
	require.True(t, ok)
	assert.Equal(t, "user", turn.Speaker)
	assert.Equal(t, "I met Ana at the cafe today", turn.Content)
	assert.Equal(t, []string{"Ana", "Mission Rock"}, turn.Entities)
}

func TestParseLineRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"# session 2026-08-30",
		"no speaker separator here",
		": text without speaker",
		"user:   ",
	}
	for _, line := range cases {
		_, ok := ParseLine(line)
		assert.False(t, ok, "line %q should be rejected", line)
	}
}

func TestExtractEntitiesDeduplicates(t *testing.T) {
	entities := ExtractEntities("[[Ana]] told [[ana]] about [[Rio]]")
	assert.Equal(t, []string{"Ana", "Rio"}, entities)
}

func TestStripEntityMarkers(t *testing.T) {
	assert.Equal(t, "Ana moved to Rio",
		StripEntityMarkers("[[Ana]] moved to [[Rio de Janeiro|Rio]]"))
}

func TestImportDirReplaysTranscripts(t *testing.T) {
	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	cfg := engine.DefaultConfig()
	controller, err := engine.NewTierController(store, archive.NewChain(store, nil), cfg, nil)
	require.NoError(t, err)

	dir := t.TempDir()
	transcript := "# morning session\n" +
		"user: my sister [[Ana]] is visiting next week\n" +
		"assistant: noted, Ana arrives next week\n" +
		"garbage line without separator\n" +
		"user: she loves [[sailing]]\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "session-1.txt"), []byte(transcript), 0o600))

	imp := NewImporter(controller, types.Signals{SemanticNovelty: 5, SentimentIntensity: 3})
	result, err := imp.ImportDir(context.Background(), "owner-1", dir)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Files)
	assert.Equal(t, 3, result.Turns)
	assert.Equal(t, 2, result.Skipped) // comment + garbage line
	assert.Equal(t, 0, result.Failed)

	recall, err := controller.RecallContext(context.Background(), "owner-1", "", engine.DepthShallow)
	require.NoError(t, err)
	require.Len(t, recall.Entries, 3)

	var contents []string
	for _, e := range recall.Entries {
		contents = append(contents, e.Content)
	}
	assert.Contains(t, contents, "my sister Ana is visiting next week")
	assert.Contains(t, contents, "she loves sailing")
}

func TestImportDirEmpty(t *testing.T) {
	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	controller, err := engine.NewTierController(store, archive.NewChain(store, nil), engine.DefaultConfig(), nil)
	require.NoError(t, err)

	imp := NewImporter(controller, types.Signals{})
	_, err = imp.ImportDir(context.Background(), "owner-1", t.TempDir())
	assert.Error(t, err)
}
