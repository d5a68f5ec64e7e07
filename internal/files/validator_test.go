package files

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o644))
	return p
}

func TestValidateMedia(t *testing.T) {
	video := write(t, "cam.ivf", []byte("DKIF0000"))
	audio := write(t, "mic.OGG", []byte("OggS0000"))

	infos, err := ValidateMedia(video, audio)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, KindVideo, infos[0].Kind)
	assert.Equal(t, "cam.ivf", infos[0].Name)
	assert.Equal(t, KindAudio, infos[1].Kind)
	assert.Equal(t, int64(16), GetTotalSize(infos))
}

func TestValidateMediaNone(t *testing.T) {
	infos, err := ValidateMedia("", "")
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestValidateMediaErrors(t *testing.T) {
	empty := write(t, "empty.ivf", nil)
	wrong := write(t, "clip.mp4", []byte("x"))

	_, err := ValidateMedia(empty, wrong)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "file is empty")
	assert.Contains(t, err.Error(), "audio must be one of .ogg, .opus")

	_, err = ValidateMedia(filepath.Join(t.TempDir(), "missing.ivf"), "")
	assert.ErrorContains(t, err, "does not exist")

	dir := filepath.Join(t.TempDir(), "dir.ivf")
	require.NoError(t, os.Mkdir(dir, 0o755))
	_, err = ValidateMedia(dir, "")
	assert.ErrorContains(t, err, "is a directory")
}
