package videox

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenVideoMissingFile(t *testing.T) {
	_, err := OpenVideo(filepath.Join(t.TempDir(), "does-not-exist.mp4"))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnreadableVideo))
}

func TestOpenVideoEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.mp4")
	require.NoError(t, os.WriteFile(path, nil, 0644))
	_, err := OpenVideo(path)
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnreadableVideo))
}
