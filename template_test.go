package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTemplateTree lays out a minimal template directory on disk
func writeTemplateTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	write := func(dir, name string, w, h int) {
		full := filepath.Join(root, dir)
		require.NoError(t, os.MkdirAll(full, 0o755))
		tpl := solidTemplate(name, TagUnknown, w, h, colRed)
		require.NoError(t, savePNG(filepath.Join(full, name+".png"), tpl.Image))
	}

	write("victory", "tap_to_proceed", 40, 40)
	write("battle_selection", "expansions", 40, 40)
	write("battle_selection", "hourglass", 32, 32)
	write("expansions", "GA", 60, 60)
	write("expansions", "MI", 60, 60)
	write("scratch", "ignored", 10, 10) // not a screen tag
	return root
}

func TestLoadTemplateLibrary(t *testing.T) {
	lib, err := LoadTemplateLibrary(writeTemplateTree(t))
	require.NoError(t, err)

	victory := lib.Candidates(TagVictory)
	require.Len(t, victory, 1)
	assert.Equal(t, "tap_to_proceed", victory[0].Name)
	assert.Equal(t, TagVictory, victory[0].Tag)
	assert.NotNil(t, victory[0].Image)

	selection := lib.Candidates(TagBattleSelection)
	require.Len(t, selection, 2)
	// Candidate order is name-sorted, not directory order
	assert.Equal(t, "expansions", selection[0].Name)
	assert.Equal(t, "hourglass", selection[1].Name)

	assert.Empty(t, lib.Candidates(TagDefeat))
}

func TestLoadTemplateLibraryExpansions(t *testing.T) {
	lib, err := LoadTemplateLibrary(writeTemplateTree(t))
	require.NoError(t, err)

	ga, ok := lib.Expansion("GA")
	require.True(t, ok)
	assert.Equal(t, "GA", ga.Name)
	assert.Equal(t, 60, ga.Image.Bounds().Dx())

	_, ok = lib.Expansion("ZZ")
	assert.False(t, ok)
}

func TestLoadTemplateLibraryMissingRoot(t *testing.T) {
	_, err := LoadTemplateLibrary(filepath.Join(t.TempDir(), "nope"))
	assert.Error(t, err)
}

func TestCandidateLookupByName(t *testing.T) {
	lib, err := LoadTemplateLibrary(writeTemplateTree(t))
	require.NoError(t, err)

	tpl, ok := lib.Candidate(TagBattleSelection, "hourglass")
	require.True(t, ok)
	assert.Equal(t, "hourglass", tpl.Name)

	_, ok = lib.Candidate(TagBattleSelection, "nonexistent")
	assert.False(t, ok)
}

func TestParseScreenTag(t *testing.T) {
	tag, ok := parseScreenTag("battle_in_progress")
	require.True(t, ok)
	assert.Equal(t, TagBattleInProgress, tag)

	_, ok = parseScreenTag("unknown")
	assert.False(t, ok)

	_, ok = parseScreenTag("scratch")
	assert.False(t, ok)
}

func TestScreenTagStrings(t *testing.T) {
	assert.Equal(t, "victory", TagVictory.String())
	assert.Equal(t, "unknown", TagUnknown.String())
	for _, tag := range allScreenTags {
		assert.NotEqual(t, "unknown", tag.String())
	}
}
