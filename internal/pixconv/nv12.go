// Package pixconv converts captured BGRA frames to the NV12 format the
// video encoder consumes, using the BT.601 coefficients spec §4.C5
// specifies byte-for-byte.
package pixconv

import rerrors "github.com/alxayo/go-broadcaster/internal/errors"

// BGRAToNV12 converts a BGRA buffer of arbitrary row pitch (>= width*4) to
// a packed NV12 buffer of exactly width*height*3/2 bytes. The output size
// is independent of the input pitch.
func BGRAToNV12(bgra []byte, width, height, stride int) ([]byte, error) {
	if stride < width*4 {
		return nil, rerrors.NewInvalidInputError("pixconv.bgra_to_nv12", errStride(stride))
	}
	if len(bgra) < stride*height {
		return nil, rerrors.NewInvalidInputError("pixconv.bgra_to_nv12", errShortBuffer(len(bgra)))
	}

	ySize := width * height
	out := make([]byte, ySize+ySize/2)
	yPlane := out[:ySize]
	uvPlane := out[ySize:]

	for y := 0; y < height; y++ {
		row := bgra[y*stride:]
		for x := 0; x < width; x++ {
			b := float64(row[x*4+0])
			g := float64(row[x*4+1])
			r := float64(row[x*4+2])

			yVal := 0.299*r + 0.587*g + 0.114*b
			yPlane[y*width+x] = clip8(yVal)

			if x%2 == 0 && y%2 == 0 {
				u := -0.169*r - 0.331*g + 0.500*b + 128
				v := 0.500*r - 0.419*g - 0.081*b + 128
				uvOffset := (y/2)*width + (x/2)*2
				uvPlane[uvOffset] = clip8(u)
				uvPlane[uvOffset+1] = clip8(v)
			}
		}
	}
	return out, nil
}

func clip8(v float64) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v + 0.5)
}

type errStride int

func (e errStride) Error() string { return "row stride shorter than width*4" }

type errShortBuffer int

func (e errShortBuffer) Error() string { return "bgra buffer shorter than stride*height" }
