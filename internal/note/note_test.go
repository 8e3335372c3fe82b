package note

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingNoteIsEmpty(t *testing.T) {
	s := NewStore(t.TempDir())
	text, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, "", text)
}

func TestSaveKeepsTextVerbatim(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	s := NewStore(dir)
	text := "  โทรหาผู้ปกครอง S1 \n\tbring the metronome\n\n"

	require.NoError(t, s.Save(text))
	assert.Equal(t, filepath.Join(dir, Key), s.Path())

	got, err := NewStore(dir).Load()
	require.NoError(t, err)
	assert.Equal(t, text, got)

	require.NoError(t, s.Save(""))
	got, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, "", got)
}
