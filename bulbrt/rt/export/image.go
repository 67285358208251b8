package export

import (
	"bufio"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

type ImageFormat int

const (
	ImagePNG ImageFormat = iota + 1
	ImageJPEG
	ImageTIFF
	ImageBMP
)

func (f ImageFormat) String() string {
	switch f {
	case ImagePNG:
		return "png"
	case ImageJPEG:
		return "jpeg"
	case ImageTIFF:
		return "tiff"
	case ImageBMP:
		return "bmp"
	}
	return fmt.Sprintf("ImageFormat(%d)", int(f))
}

// ImageFormatFromPath picks the format from the file extension.
func ImageFormatFromPath(path string) (ImageFormat, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	switch ext {
	case "png":
		return ImagePNG, nil
	case "jpg", "jpeg":
		return ImageJPEG, nil
	case "tif", "tiff":
		return ImageTIFF, nil
	case "bmp":
		return ImageBMP, nil
	}
	return 0, fmt.Errorf("export: unsupported image extension %q", ext)
}

// RGBAImage wraps a rendered color buffer without copying it.
func RGBAImage(pixels []byte, width, height int) (*image.RGBA, error) {
	n := width * height * 4
	if width < 1 || height < 1 || len(pixels) < n {
		return nil, fmt.Errorf("export: %d bytes do not hold a %dx%d image", len(pixels), width, height)
	}
	return &image.RGBA{
		Pix:    pixels[:n:n],
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}, nil
}

func WriteImage(w io.Writer, img image.Image, format ImageFormat) error {
	switch format {
	case ImagePNG:
		return png.Encode(w, img)
	case ImageJPEG:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
	case ImageTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case ImageBMP:
		return bmp.Encode(w, img)
	}
	return fmt.Errorf("export: image format %v not valid", format)
}

// SaveImage writes a width×height RGBA buffer to path, the format inferred
// from the extension.
func SaveImage(path string, pixels []byte, width, height int) error {
	format, err := ImageFormatFromPath(path)
	if err != nil {
		return err
	}
	img, err := RGBAImage(pixels, width, height)
	if err != nil {
		return err
	}
	return writeFile(path, func(w io.Writer) error {
		return WriteImage(w, img, format)
	})
}

func writeFile(path string, write func(w io.Writer) error) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()
	bw := bufio.NewWriter(file)
	if err := write(bw); err != nil {
		return fmt.Errorf("export: %s: %w", path, err)
	}
	return bw.Flush()
}
