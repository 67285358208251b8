package export

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func volume(n int) []byte {
	v := make([]byte, n*n*n)
	for i := range v {
		if i%3 == 0 {
			v[i] = 1
		}
	}
	return v
}

func TestVoxels_Raw(t *testing.T) {
	vox := volume(8)
	var buf bytes.Buffer
	require.NoError(t, WriteVoxels(&buf, vox, false))
	assert.Equal(t, vox, buf.Bytes(), "raw dump has no header")

	got, err := ReadVoxels(&buf)
	require.NoError(t, err)
	assert.Equal(t, vox, got)
}

func TestVoxels_Compressed(t *testing.T) {
	vox := volume(32)
	var buf bytes.Buffer
	require.NoError(t, WriteVoxels(&buf, vox, true))
	assert.Less(t, buf.Len(), len(vox))
	assert.Equal(t, zstdMagic, buf.Bytes()[:4])

	got, err := ReadVoxels(&buf)
	require.NoError(t, err)
	assert.Equal(t, vox, got)
}

func TestVoxels_Tiny(t *testing.T) {
	got, err := ReadVoxels(bytes.NewReader([]byte{1, 0}))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0}, got)
}

func TestVoxels_Files(t *testing.T) {
	dir := t.TempDir()
	vox := volume(6)
	for _, compress := range []bool{false, true} {
		path := filepath.Join(dir, "vox.bin")
		require.NoError(t, SaveVoxels(path, vox, compress))
		got, err := LoadVoxels(path)
		require.NoError(t, err)
		assert.Equal(t, vox, got)
	}
}

func TestDebug_Formats(t *testing.T) {
	values := []float32{-1, 0.5, 123.25, -1}

	var raw bytes.Buffer
	require.NoError(t, WriteDebug(&raw, values, DebugRaw))
	assert.Equal(t, 16, raw.Len())
	got, err := ReadDebug(&raw, DebugRaw)
	require.NoError(t, err)
	assert.Equal(t, values, got)

	var bc bytes.Buffer
	require.NoError(t, WriteDebug(&bc, values, DebugBincode))
	assert.Equal(t, 24, bc.Len())
	assert.Equal(t, []byte{4, 0, 0, 0, 0, 0, 0, 0}, bc.Bytes()[:8])
	got, err = ReadDebug(&bc, DebugBincode)
	require.NoError(t, err)
	assert.Equal(t, values, got)
}

func TestDebug_Truncated(t *testing.T) {
	_, err := ReadDebug(bytes.NewReader([]byte{1, 2, 3}), DebugRaw)
	assert.ErrorIs(t, err, ErrTruncated)
	_, err = ReadDebug(bytes.NewReader([]byte{1, 2}), DebugBincode)
	assert.ErrorIs(t, err, ErrTruncated)
	_, err = ReadDebug(bytes.NewReader([]byte{9, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0}), DebugBincode)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestParseDebugFormat(t *testing.T) {
	f, err := ParseDebugFormat("")
	require.NoError(t, err)
	assert.Equal(t, DebugRaw, f)
	f, err = ParseDebugFormat("Bincode")
	require.NoError(t, err)
	assert.Equal(t, DebugBincode, f)
	assert.Equal(t, "bincode", f.String())
	_, err = ParseDebugFormat("json")
	assert.Error(t, err)
}

func TestImageFormatFromPath(t *testing.T) {
	cases := map[string]ImageFormat{
		"out.png":    ImagePNG,
		"OUT.PNG":    ImagePNG,
		"a/b.jpg":    ImageJPEG,
		"frame.tiff": ImageTIFF,
		"frame.tif":  ImageTIFF,
		"bulb.bmp":   ImageBMP,
	}
	for path, want := range cases {
		got, err := ImageFormatFromPath(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, got, path)
	}
	_, err := ImageFormatFromPath("frame.exr")
	assert.Error(t, err)
	_, err = ImageFormatFromPath("frame")
	assert.Error(t, err)
}

func TestRGBAImage(t *testing.T) {
	pix := []byte{
		255, 0, 0, 255, 0, 255, 0, 255,
		0, 0, 255, 255, 10, 20, 30, 255,
	}
	img, err := RGBAImage(pix, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{0, 255, 0, 255}, img.RGBAAt(1, 0))
	assert.Equal(t, color.RGBA{10, 20, 30, 255}, img.RGBAAt(1, 1))

	_, err = RGBAImage(pix, 3, 2)
	assert.Error(t, err)
}

func TestSaveImage_RoundTrip(t *testing.T) {
	const w, h = 5, 3
	pix := make([]byte, w*h*4)
	for i := 0; i < w*h; i++ {
		pix[i*4] = byte(i * 10)
		pix[i*4+1] = byte(255 - i)
		pix[i*4+2] = 7
		pix[i*4+3] = 255
	}
	dir := t.TempDir()
	for _, name := range []string{"out.png", "out.tiff", "out.bmp"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, SaveImage(path, pix, w, h))

			f, err := os.Open(path)
			require.NoError(t, err)
			defer f.Close()
			img, _, err := image.Decode(f)
			require.NoError(t, err)
			assert.Equal(t, image.Rect(0, 0, w, h), img.Bounds())
			r, g, b, _ := img.At(2, 1).RGBA()
			i := 1*w + 2
			assert.Equal(t, []uint32{uint32(pix[i*4]), uint32(pix[i*4+1]), 7}, []uint32{r >> 8, g >> 8, b >> 8})
		})
	}
}

func TestSaveImage_BadExtension(t *testing.T) {
	err := SaveImage(filepath.Join(t.TempDir(), "x.gif"), make([]byte, 4), 1, 1)
	assert.Error(t, err)
}
