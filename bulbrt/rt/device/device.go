// Package device abstracts the compute device the fractal engine runs on.
//
// A Context is created once by the caller and handed to the engine, which
// owns every buffer and kernel it creates on it. Calls on a Context are
// blocking: Dispatch and ReadBuffer return once the device is idle again.
// A Context is not safe for concurrent use.
package device

import (
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrAllocationFailed reports a buffer that could not be created
	// (out of device memory or an invalid size).
	ErrAllocationFailed = errors.New("device: allocation failed")
	// ErrKernelDispatchFailed reports a dispatch the device rejected,
	// including invalid or stale argument bindings.
	ErrKernelDispatchFailed = errors.New("device: kernel dispatch failed")
	// ErrReadbackFailed reports a failed device to host copy.
	ErrReadbackFailed = errors.New("device: readback failed")
	// ErrKernelLoad reports a kernel program that could not be loaded.
	ErrKernelLoad = errors.New("device: kernel load failed")
)

type Usage uint32

const (
	UsageStorage Usage = 1 << iota
	UsageUniform
	UsageCopySrc
	UsageCopyDst
)

// Has reports whether every flag of o is set in u.
func (u Usage) Has(o Usage) bool { return u&o == o }

type Buffer interface {
	// ID identifies the allocation. A reallocated buffer always gets a new ID.
	ID() uuid.UUID
	Label() string
	// Size is the logical size in bytes as requested at creation.
	Size() uint64
	Released() bool
	// Release frees the device memory. Releasing twice is a no-op.
	Release()
}

type Kernel interface {
	Name() string
	Source() KernelSource
	Release()
}

type Context interface {
	Name() string
	CreateBuffer(label string, size uint64, usage Usage) (Buffer, error)
	WriteBuffer(buf Buffer, data []byte) error
	// ReadBuffer copies len(dst) bytes from the start of buf into dst,
	// blocking until the copy completed. dst is left untouched on error.
	ReadBuffer(buf Buffer, dst []byte) error
	LoadKernel(src KernelSource) (Kernel, error)
	// Dispatch runs k over grid, one work item per cell, and blocks until
	// the device reports completion.
	Dispatch(k Kernel, args map[string]Arg, grid [3]uint32) error
	Release()
}
