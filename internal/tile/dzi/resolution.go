package dzi

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// ReadTIFFMicronsPerPixel extracts the physical pixel size from the
// resolution tags of a TIFF file.
func ReadTIFFMicronsPerPixel(path string) (float64, error) {
	dpi, err := extractTIFFDPI(path)
	if err != nil {
		return 0, err
	}
	return 25400 / dpi, nil
}

// extractTIFFDPI attempts to extract DPI from TIFF metadata.
func extractTIFFDPI(path string) (float64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	header := make([]byte, 8)
	if _, err := io.ReadFull(file, header); err != nil {
		return 0, err
	}

	var byteOrder binary.ByteOrder
	switch {
	case header[0] == 'I' && header[1] == 'I':
		byteOrder = binary.LittleEndian
	case header[0] == 'M' && header[1] == 'M':
		byteOrder = binary.BigEndian
	default:
		return 0, fmt.Errorf("not a valid TIFF file")
	}

	ifdOffset := byteOrder.Uint32(header[4:8])
	if _, err := file.Seek(int64(ifdOffset), io.SeekStart); err != nil {
		return 0, err
	}

	var numEntries uint16
	if err := binary.Read(file, byteOrder, &numEntries); err != nil {
		return 0, err
	}

	var xRes, yRes float64
	var resUnit uint16 = 2 // inches

	entry := make([]byte, 12)
	for i := uint16(0); i < numEntries; i++ {
		if _, err := io.ReadFull(file, entry); err != nil {
			return 0, err
		}

		tag := byteOrder.Uint16(entry[0:2])
		fieldType := byteOrder.Uint16(entry[2:4])
		valueOffset := byteOrder.Uint32(entry[8:12])

		switch tag {
		case 282: // XResolution
			if fieldType == 5 {
				xRes = readTIFFRational(file, int64(valueOffset), byteOrder)
			}
		case 283: // YResolution
			if fieldType == 5 {
				yRes = readTIFFRational(file, int64(valueOffset), byteOrder)
			}
		case 296: // ResolutionUnit
			if fieldType == 3 {
				resUnit = byteOrder.Uint16(entry[8:10])
			}
		}
	}

	dpi := xRes
	if dpi == 0 {
		dpi = yRes
	}
	if dpi == 0 {
		return 0, fmt.Errorf("no resolution tags found")
	}

	// Centimeters
	if resUnit == 3 {
		dpi *= 2.54
	}
	return dpi, nil
}

// readTIFFRational reads a RATIONAL value (two uint32s) at offset without
// disturbing the current read position.
func readTIFFRational(file *os.File, offset int64, byteOrder binary.ByteOrder) float64 {
	buf := make([]byte, 8)
	if _, err := file.ReadAt(buf, offset); err != nil {
		return 0
	}
	num := byteOrder.Uint32(buf[0:4])
	denom := byteOrder.Uint32(buf[4:8])
	if denom == 0 {
		return 0
	}
	return float64(num) / float64(denom)
}
