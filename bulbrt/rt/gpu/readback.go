package gpu

import (
	"encoding/binary"
	"math"

	"github.com/gekko3d/bulb/bulbrt/rt/device"
)

// ReadbackExporter copies device buffers to host memory. Reads land in a
// staging slice first so a failed copy never touches caller memory.
type ReadbackExporter struct {
	ctx     device.Context
	staging []byte
}

func NewReadbackExporter(ctx device.Context) *ReadbackExporter {
	return &ReadbackExporter{ctx: ctx}
}

func (r *ReadbackExporter) stage(buf device.Buffer, n int) ([]byte, error) {
	if cap(r.staging) < n {
		r.staging = make([]byte, n)
	}
	s := r.staging[:n]
	if err := r.ctx.ReadBuffer(buf, s); err != nil {
		return nil, err
	}
	return s, nil
}

// ReadInto fills out with the first len(out) bytes of buf. On error out is
// left unmodified.
func (r *ReadbackExporter) ReadInto(buf device.Buffer, out []byte) error {
	s, err := r.stage(buf, len(out))
	if err != nil {
		return err
	}
	copy(out, s)
	return nil
}

// Bytes returns a host-owned copy of the first n bytes of buf.
func (r *ReadbackExporter) Bytes(buf device.Buffer, n int) ([]byte, error) {
	out := make([]byte, n)
	if err := r.ReadInto(buf, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Float32s returns a host-owned copy of the first n little-endian float32
// values of buf.
func (r *ReadbackExporter) Float32s(buf device.Buffer, n int) ([]float32, error) {
	s, err := r.stage(buf, n*4)
	if err != nil {
		return nil, err
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(s[i*4:]))
	}
	return out, nil
}
