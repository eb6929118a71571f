package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		f    *Frame
		ok   bool
	}{
		{"valid", New(64, 64), true},
		{"minimum size", New(MinDimension, MinDimension), true},
		{"too narrow", New(16, 64), false},
		{"too short", New(64, 16), false},
		{"too wide", &Frame{Width: MaxWidth + 1, Height: 64, Stride: MaxWidth + 1, Pix: make([]uint8, (MaxWidth+1)*64)}, false},
		{"short buffer", &Frame{Width: 64, Height: 64, Stride: 64, Pix: make([]uint8, 100)}, false},
		{"stride below width", &Frame{Width: 64, Height: 64, Stride: 32, Pix: make([]uint8, 64*64)}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.f.Validate()
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestValidateNil(t *testing.T) {
	var f *Frame
	assert.Error(t, f.Validate())
}

func TestBilinearInterpolation(t *testing.T) {
	f := New(32, 32)
	f.Set(10, 10, 100)
	f.Set(11, 10, 200)

	assert.InDelta(t, 100, f.Bilinear(10, 10), 1e-9)
	assert.InDelta(t, 150, f.Bilinear(10.5, 10), 1e-9)
	assert.InDelta(t, 200, f.Bilinear(11, 10), 1e-9)
}

func TestBilinearClampsAtBorder(t *testing.T) {
	f := New(32, 32)
	for i := range f.Pix {
		f.Pix[i] = 77
	}
	assert.InDelta(t, 77, f.Bilinear(-5, -5), 1e-9)
	assert.InDelta(t, 77, f.Bilinear(100, 100), 1e-9)
}

func TestCloneIndependence(t *testing.T) {
	f := New(32, 32)
	f.Set(5, 5, 42)

	c := f.Clone()
	require.Equal(t, uint8(42), c.At(5, 5))

	c.Set(5, 5, 99)
	assert.Equal(t, uint8(42), f.At(5, 5))
}

func TestGrayRoundTrip(t *testing.T) {
	f := Textured(64, 48, 1)
	g := f.ToGray()
	back := FromGray(g)

	require.Equal(t, f.Width, back.Width)
	require.Equal(t, f.Height, back.Height)
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			require.Equal(t, f.At(x, y), back.At(x, y))
		}
	}
}

func TestPyramidLevels(t *testing.T) {
	f := New(256, 128)
	pyr := BuildPyramid(f, 3)

	require.Len(t, pyr.Levels, 3)
	assert.Equal(t, 256, pyr.Levels[0].Width)
	assert.Equal(t, 128, pyr.Levels[1].Width)
	assert.Equal(t, 64, pyr.Levels[2].Width)
	assert.Equal(t, 32, pyr.Levels[2].Height)
}

func TestPyramidStopsAtMinimum(t *testing.T) {
	f := New(64, 64)
	pyr := BuildPyramid(f, 5)

	// 64 -> 32; the next level would be 16, below the minimum.
	require.Len(t, pyr.Levels, 2)
}

func TestDownsampleAverages(t *testing.T) {
	f := New(64, 64)
	for i := range f.Pix {
		f.Pix[i] = 100
	}
	pyr := BuildPyramid(f, 2)
	require.Len(t, pyr.Levels, 2)
	assert.Equal(t, uint8(100), pyr.Levels[1].At(10, 10))
}

func TestTexturedDeterministic(t *testing.T) {
	a := Textured(128, 96, 7)
	b := Textured(128, 96, 7)
	assert.Equal(t, a.Pix, b.Pix)

	c := Textured(128, 96, 8)
	assert.NotEqual(t, a.Pix, c.Pix)
}

func TestTranslatedShiftsContent(t *testing.T) {
	src := Textured(128, 96, 3)
	dst := Translated(src, 4, 0)

	// Away from borders the shifted frame should equal the source
	// displaced by exactly four columns.
	for y := 20; y < 76; y++ {
		for x := 20; x < 108; x++ {
			require.Equal(t, src.At(x-4, y), dst.At(x, y), "at (%d,%d)", x, y)
		}
	}
}
