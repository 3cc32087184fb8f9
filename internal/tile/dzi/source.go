package dzi

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"slidescope/internal/tile"
)

// FileSource serves tiles of a pyramid stored on the local filesystem as
// <name>.dzi next to <name>_files/.
type FileSource struct {
	desc     tile.Descriptor
	filesDir string
}

var _ tile.Source = (*FileSource)(nil)

// Open loads the descriptor at path and returns a source for its tiles.
func Open(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dzi: %w", err)
	}
	defer f.Close()

	desc, err := ParseDescriptor(f)
	if err != nil {
		return nil, err
	}
	base := strings.TrimSuffix(path, filepath.Ext(path))
	return &FileSource{desc: desc, filesDir: base + "_files"}, nil
}

// Descriptor returns the pyramid description.
func (s *FileSource) Descriptor() tile.Descriptor {
	return s.desc
}

// Fetch reads and decodes one tile.
func (s *FileSource) Fetch(ctx context.Context, id tile.ID) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !s.desc.Contains(id) {
		return nil, fmt.Errorf("tile %s outside pyramid", id)
	}
	f, err := os.Open(filepath.Join(s.filesDir, filepath.FromSlash(TilePath(id, s.desc.Format))))
	if err != nil {
		return nil, fmt.Errorf("failed to open tile %s: %w", id, err)
	}
	defer f.Close()

	img, err := DecodeTile(f)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return img, nil
}
