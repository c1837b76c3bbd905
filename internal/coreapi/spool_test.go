package coreapi

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpooledBufferStaysInMemoryUnderThreshold(t *testing.T) {
	t.Parallel()

	s := newSpooledBuffer(1024)
	defer s.Close()

	_, err := io.Copy(s, strings.NewReader("small"))
	require.NoError(t, err)
	assert.Nil(t, s.file)

	r, err := s.Reader()
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "small", string(got))
}

func TestSpooledBufferSpillsToDiskOverThreshold(t *testing.T) {
	t.Parallel()

	s := newSpooledBuffer(8)
	defer s.Close()

	content := strings.Repeat("x", 64)
	_, err := io.Copy(s, strings.NewReader(content))
	require.NoError(t, err)
	assert.NotNil(t, s.file)

	r, err := s.Reader()
	require.NoError(t, err)
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, content, string(got))
}

func TestSpooledBufferCloseRemovesSpillFile(t *testing.T) {
	t.Parallel()

	s := newSpooledBuffer(4)
	_, err := io.Copy(s, strings.NewReader("more than four bytes"))
	require.NoError(t, err)
	require.NotNil(t, s.file)
	name := s.file.Name()

	require.NoError(t, s.Close())
	_, err = os.Stat(name)
	assert.True(t, os.IsNotExist(err), "spill file should have been removed")
}
