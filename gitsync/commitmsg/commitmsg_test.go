package commitmsg_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byte4ever/codepublish/gitsync/commitmsg"
)

func TestGenerate_produces_markers(t *testing.T) {
	t.Parallel()

	msg := commitmsg.Generate("Update generated code\n", commitmsg.Trailer{
		RunID: "r1", Digest: "abc", Files: 3,
	})

	assert.Contains(t, msg, "Update generated code\n\n--- codepublish run begin ---\n")
	assert.Contains(t, msg, "run: r1\n")
	assert.Contains(t, msg, "digest: abc\n")
	assert.Contains(t, msg, "files: 3\n")
	assert.Contains(t, msg, "--- codepublish run end ---")
}

func TestExtract_roundtrip(t *testing.T) {
	t.Parallel()

	want := commitmsg.Trailer{RunID: "r1", Digest: "abc", Files: 2}

	got, ok := commitmsg.Extract(commitmsg.Generate("subject", want))

	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestExtract_crlf(t *testing.T) {
	t.Parallel()

	msg := "s\r\n\r\n--- codepublish run begin ---\r\n" +
		"run: r9\r\n--- codepublish run end ---\r\n"

	got, ok := commitmsg.Extract(msg)

	require.True(t, ok)
	assert.Equal(t, "r9", got.RunID)
}

func TestExtract_no_markers(t *testing.T) {
	t.Parallel()

	_, ok := commitmsg.Extract("just a regular commit message")

	assert.False(t, ok)
}

func TestExtract_missing_end_marker(t *testing.T) {
	t.Parallel()

	got, ok := commitmsg.Extract("--- codepublish run begin ---\nrun: r1\n")

	assert.False(t, ok)
	assert.Empty(t, got)
}
