// Package imaging sniffs retinal image files before they are mirrored into
// the managed directory. Files that no registered decoder understands are
// still accepted by callers; the probe only enriches what gets stored.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrUnknownFormat is returned when no registered decoder recognises a file.
var ErrUnknownFormat = errors.New("unrecognised image format")

// Probe is what the header of an image file reveals.
type Probe struct {
	Format      string // decoder name, e.g. "jpeg"
	Width       int
	Height      int
	ContentType string
}

// Metadata renders the probe as blob annotations.
func (p Probe) Metadata() map[string]string {
	if p.Format == "" {
		return nil
	}
	return map[string]string{
		"format": p.Format,
		"width":  fmt.Sprint(p.Width),
		"height": fmt.Sprint(p.Height),
	}
}

// Inspect reads the header of r.
func Inspect(r io.Reader) (Probe, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return Probe{}, ErrUnknownFormat
		}
		return Probe{}, fmt.Errorf("%w: %v", ErrUnknownFormat, err)
	}
	return Probe{Format: format, Width: cfg.Width, Height: cfg.Height, ContentType: contentTypes[format]}, nil
}

// ReadFile reads all of path and inspects it. When decoding fails the
// content is still returned, with a probe carrying a content type guessed
// from the extension, alongside ErrUnknownFormat. Read errors are returned
// as is.
func ReadFile(path string) ([]byte, Probe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, Probe{}, err
	}
	p, err := Inspect(bytes.NewReader(data))
	if err != nil {
		return data, Probe{ContentType: ContentTypeForName(path)}, err
	}
	return data, p, nil
}

// ContentTypeForName guesses a MIME type from a file name.
func ContentTypeForName(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

var contentTypes = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",
	"webp": "image/webp",
}
