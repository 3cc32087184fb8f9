package screenshot

import (
	"fmt"
	"image"
	"math"
	"strings"
)

// BlendMode specifies how a layer is composited onto the layers below it.
type BlendMode int

const (
	BlendNormal BlendMode = iota
	BlendMultiply
	BlendScreen
	BlendOverlay
	BlendDifference
)

func (m BlendMode) String() string {
	switch m {
	case BlendNormal:
		return "normal"
	case BlendMultiply:
		return "multiply"
	case BlendScreen:
		return "screen"
	case BlendOverlay:
		return "overlay"
	case BlendDifference:
		return "difference"
	default:
		return "unknown"
	}
}

// ParseBlendMode maps a configuration name to a BlendMode.
func ParseBlendMode(s string) (BlendMode, error) {
	for m := BlendNormal; m <= BlendDifference; m++ {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	if s == "" {
		return BlendNormal, nil
	}
	return BlendNormal, fmt.Errorf("unknown blend mode %q", s)
}

// Blend composites src onto dst with the given mode and opacity. Both
// rasters hold premultiplied colour and are aligned at their minimum
// points; pixels outside either raster are left alone.
func Blend(dst, src *image.RGBA, mode BlendMode, opacity float64) {
	if dst == nil || src == nil || opacity <= 0 {
		return
	}
	opacity = clamp(opacity, 0, 1)
	db, sb := dst.Bounds(), src.Bounds()
	w := min(db.Dx(), sb.Dx())
	h := min(db.Dy(), sb.Dy())

	for y := 0; y < h; y++ {
		si := src.PixOffset(sb.Min.X, sb.Min.Y+y)
		di := dst.PixOffset(db.Min.X, db.Min.Y+y)
		for x := 0; x < w; x, si, di = x+1, si+4, di+4 {
			sa := float64(src.Pix[si+3]) / 255
			if sa == 0 {
				continue
			}
			blendPixel(dst.Pix[di:di+4:di+4], src.Pix[si:si+4:si+4], sa, mode, opacity)
		}
	}
}

// blendPixel mixes one premultiplied source pixel into d.
func blendPixel(d, s []uint8, sa float64, mode BlendMode, opacity float64) {
	da := float64(d[3]) / 255
	var sf, df [3]float64
	for i := 0; i < 3; i++ {
		sf[i] = float64(s[i]) / 255 / sa
		if da > 0 {
			df[i] = float64(d[i]) / 255 / da
		}
	}

	var rf [3]float64
	switch mode {
	case BlendMultiply:
		for i := range rf {
			rf[i] = sf[i] * df[i]
		}
	case BlendScreen:
		for i := range rf {
			rf[i] = 1 - (1-sf[i])*(1-df[i])
		}
	case BlendOverlay:
		for i := range rf {
			if df[i] < 0.5 {
				rf[i] = 2 * sf[i] * df[i]
			} else {
				rf[i] = 1 - 2*(1-sf[i])*(1-df[i])
			}
		}
	case BlendDifference:
		for i := range rf {
			rf[i] = math.Abs(sf[i] - df[i])
		}
	default:
		rf = sf
	}

	// Source-over with the mixed colour, kept premultiplied.
	alpha := sa * opacity
	for i := 0; i < 3; i++ {
		v := clamp(rf[i], 0, 1)*alpha + float64(d[i])/255*(1-alpha)
		d[i] = to8(v)
	}
	d[3] = to8(alpha + da*(1-alpha))
}

func to8(v float64) uint8 {
	return uint8(clamp(v, 0, 1)*255 + 0.5)
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
