// Package export writes engine results to disk: voxel dumps, debug dumps and
// rendered images.
//
// A voxel dump is the volume as one byte per voxel, x fastest, with no
// header. It may be zstd compressed; ReadVoxels tells the two apart by the
// zstd frame magic. A debug dump is the per-pixel float32 buffer, either raw
// little-endian values or prefixed with a little-endian uint64 element count.
package export

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

var ErrTruncated = errors.New("export: truncated dump")

func WriteVoxels(w io.Writer, voxels []byte, compress bool) error {
	if !compress {
		_, err := w.Write(voxels)
		return err
	}
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return err
	}
	if _, err := enc.Write(voxels); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

func ReadVoxels(r io.Reader) ([]byte, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(zstdMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if !bytes.Equal(head, zstdMagic) {
		return io.ReadAll(br)
	}
	dec, err := zstd.NewReader(br)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return io.ReadAll(dec)
}

func SaveVoxels(path string, voxels []byte, compress bool) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteVoxels(w, voxels, compress)
	})
}

func LoadVoxels(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadVoxels(f)
}

type DebugFormat int

const (
	// DebugRaw is the values back to back.
	DebugRaw DebugFormat = iota
	// DebugBincode prefixes the values with their count as a uint64.
	DebugBincode
)

func ParseDebugFormat(s string) (DebugFormat, error) {
	switch strings.ToLower(s) {
	case "", "raw":
		return DebugRaw, nil
	case "bincode":
		return DebugBincode, nil
	}
	return 0, fmt.Errorf("export: unknown debug format %q", s)
}

func (f DebugFormat) String() string {
	if f == DebugBincode {
		return "bincode"
	}
	return "raw"
}

func WriteDebug(w io.Writer, values []float32, format DebugFormat) error {
	n := len(values) * 4
	if format == DebugBincode {
		n += 8
	}
	buf := make([]byte, 0, n)
	if format == DebugBincode {
		buf = binary.LittleEndian.AppendUint64(buf, uint64(len(values)))
	}
	for _, v := range values {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
	}
	_, err := w.Write(buf)
	return err
}

func ReadDebug(r io.Reader, format DebugFormat) ([]float32, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	count := len(data) / 4
	if format == DebugBincode {
		if len(data) < 8 {
			return nil, ErrTruncated
		}
		n := binary.LittleEndian.Uint64(data)
		data = data[8:]
		if n > uint64(len(data)/4) {
			return nil, fmt.Errorf("%w: header says %d values, %d bytes follow", ErrTruncated, n, len(data))
		}
		count = int(n)
	} else if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a whole number of float32", ErrTruncated, len(data))
	}
	out := make([]float32, count)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out, nil
}

func SaveDebug(path string, values []float32, format DebugFormat) error {
	return writeFile(path, func(w io.Writer) error {
		return WriteDebug(w, values, format)
	})
}
