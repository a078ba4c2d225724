// Package output resolves artifact paths in the user's save directory and
// encodes still images.
package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// AppName is the artifact filename prefix.
const AppName = "Tiny Clips"

// ErrIO reports a failure resolving or creating an output path: directory
// creation failed, disk full, or the target file already exists. The
// wrapped message always carries the attempted path.
var ErrIO = errors.New("output I/O error")

// Kind classifies a produced artifact.
type Kind int

const (
	// KindScreenshot is a still image (PNG or JPEG).
	KindScreenshot Kind = iota
	// KindVideo is an H.264 MP4.
	KindVideo
	// KindGIF is an animated GIF89a.
	KindGIF
)

// String returns a human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindScreenshot:
		return "screenshot"
	case KindVideo:
		return "video"
	case KindGIF:
		return "gif"
	default:
		return "unknown"
	}
}

// Ext returns the default file extension for the kind.
func (k Kind) Ext() string {
	switch k {
	case KindScreenshot:
		return "png"
	case KindVideo:
		return "mp4"
	case KindGIF:
		return "gif"
	default:
		return "bin"
	}
}

// ArtifactPath resolves the output path for a new artifact created at t:
//
//	<dir>/<AppName> <yyyy-MM-dd> at <HH.mm.ss>.<ext>
//
// The directory is created if missing. Returns ErrIO (with the attempted
// path in the message) if creation fails or the file already exists.
func ArtifactPath(dir string, t time.Time, ext string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("output: cannot create directory %s (%v): %w", dir, err, ErrIO)
	}

	name := fmt.Sprintf("%s %s at %s.%s",
		AppName,
		t.Format("2006-01-02"),
		t.Format("15.04.05"),
		ext,
	)
	path := filepath.Join(dir, name)

	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("output: file already exists at %s: %w", path, ErrIO)
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("output: cannot stat %s (%v): %w", path, err, ErrIO)
	}
	return path, nil
}

// TrimmedPath derives the output path for a trimmed artifact from its
// source: " (trimmed)" is inserted before the extension.
func TrimmedPath(src string) string {
	ext := filepath.Ext(src)
	return strings.TrimSuffix(src, ext) + " (trimmed)" + ext
}
