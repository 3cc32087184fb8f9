// Package dzi reads and writes Deep Zoom (DZI) image pyramids.
package dzi

import (
	"encoding/xml"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"strings"

	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"slidescope/internal/tile"
)

const namespace = "http://schemas.microsoft.com/deepzoom/2008"

type xmlImage struct {
	XMLName  xml.Name `xml:"Image"`
	Xmlns    string   `xml:"xmlns,attr"`
	Format   string   `xml:"Format,attr"`
	Overlap  int      `xml:"Overlap,attr"`
	TileSize int      `xml:"TileSize,attr"`
	// MicronsPerPixel is not part of the DZI schema; readers that do not
	// know it ignore the attribute.
	MicronsPerPixel float64 `xml:"MicronsPerPixel,attr,omitempty"`
	Size            struct {
		Width  int `xml:"Width,attr"`
		Height int `xml:"Height,attr"`
	} `xml:"Size"`
}

// ParseDescriptor reads a .dzi document.
func ParseDescriptor(r io.Reader) (tile.Descriptor, error) {
	var doc xmlImage
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return tile.Descriptor{}, fmt.Errorf("failed to parse dzi: %w", err)
	}
	d := tile.Descriptor{
		Width:           doc.Size.Width,
		Height:          doc.Size.Height,
		TileSize:        doc.TileSize,
		Overlap:         doc.Overlap,
		Format:          strings.ToLower(doc.Format),
		MicronsPerPixel: doc.MicronsPerPixel,
	}
	if err := d.Validate(); err != nil {
		return tile.Descriptor{}, err
	}
	return d, nil
}

// WriteDescriptor writes d as a .dzi document.
func WriteDescriptor(w io.Writer, d tile.Descriptor) error {
	doc := xmlImage{
		Xmlns:           namespace,
		Format:          d.Format,
		Overlap:         d.Overlap,
		TileSize:        d.TileSize,
		MicronsPerPixel: d.MicronsPerPixel,
	}
	doc.Size.Width = d.Width
	doc.Size.Height = d.Height

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to write dzi: %w", err)
	}
	return nil
}

// TilePath returns the slash-separated path of a tile relative to the
// pyramid's "_files" directory.
func TilePath(id tile.ID, format string) string {
	return fmt.Sprintf("%d/%d_%d.%s", id.Level, id.Col, id.Row, format)
}

// DecodeTile decodes an encoded tile in any registered format.
func DecodeTile(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decode tile: %w", err)
	}
	return img, nil
}
