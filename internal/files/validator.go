// Package files checks the media files a call plays as camera and microphone.
package files

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Kind is what a media file stands in for.
type Kind string

const (
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

var extensions = map[Kind][]string{
	KindVideo: {".ivf"},
	KindAudio: {".ogg", ".opus"},
}

// FileInfo holds information about a media file
type FileInfo struct {
	// Path is the absolute path to the file
	Path string

	// Name is the filename (without directory)
	Name string

	// Size is the file size in bytes
	Size int64

	Kind Kind
}

// ValidateMedia checks the video and audio files given on the command line.
// Empty paths are skipped. All problems are reported together.
func ValidateMedia(video, audio string) ([]FileInfo, error) {
	var infos []FileInfo
	var errors []string

	for _, in := range []struct {
		path string
		kind Kind
	}{{video, KindVideo}, {audio, KindAudio}} {
		if in.path == "" {
			continue
		}
		info, err := validateSingleFile(in.path, in.kind)
		if err != nil {
			errors = append(errors, err.Error())
			continue
		}
		infos = append(infos, info)
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("media validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}
	return infos, nil
}

// validateSingleFile checks a single file and returns its info
func validateSingleFile(path string, kind Kind) (FileInfo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: failed to get absolute path: %w", path, err)
	}

	ext := strings.ToLower(filepath.Ext(absPath))
	if !slices.Contains(extensions[kind], ext) {
		return FileInfo{}, fmt.Errorf("%s: %s must be one of %s", path, kind, strings.Join(extensions[kind], ", "))
	}

	stat, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return FileInfo{}, fmt.Errorf("%s: file does not exist", path)
		}
		return FileInfo{}, fmt.Errorf("%s: failed to stat file: %w", path, err)
	}

	if stat.IsDir() {
		return FileInfo{}, fmt.Errorf("%s: is a directory", path)
	}

	if stat.Size() == 0 {
		return FileInfo{}, fmt.Errorf("%s: file is empty", path)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return FileInfo{}, fmt.Errorf("%s: cannot open file (check permissions): %w", path, err)
	}
	file.Close()

	return FileInfo{
		Path: absPath,
		Name: filepath.Base(absPath),
		Size: stat.Size(),
		Kind: kind,
	}, nil
}

// GetTotalSize returns the total size of all files
func GetTotalSize(infos []FileInfo) int64 {
	var total int64
	for _, f := range infos {
		total += f.Size
	}
	return total
}
