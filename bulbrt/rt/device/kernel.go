package device

import (
	"fmt"
)

type ArgKind int

const (
	// ArgBuffer is a storage buffer bound by name.
	ArgBuffer ArgKind = iota
	// ArgScalar is a single float32.
	ArgScalar
	// ArgDomain carries the dispatch extent. Backends fill it themselves,
	// callers never bind it.
	ArgDomain
)

func (k ArgKind) String() string {
	switch k {
	case ArgBuffer:
		return "buffer"
	case ArgScalar:
		return "scalar"
	case ArgDomain:
		return "domain"
	}
	return fmt.Sprintf("ArgKind(%d)", int(k))
}

type Access int

const (
	ReadOnly Access = iota
	WriteOnly
	ReadWrite
)

// ArgSpec declares one named kernel argument and where the program expects it.
type ArgSpec struct {
	Name     string
	Binding  uint32
	Kind     ArgKind
	Access   Access
	Optional bool
}

// KernelSource is a compute program together with its argument contract.
type KernelSource struct {
	Name          string
	EntryPoint    string
	Code          string // WGSL
	WorkgroupSize [3]uint32
	Args          []ArgSpec
	// ConfigSlots is the float count of the render config, 0 when unused.
	ConfigSlots int
}

func (s KernelSource) Arg(name string) (ArgSpec, bool) {
	for _, a := range s.Args {
		if a.Name == name {
			return a, true
		}
	}
	return ArgSpec{}, false
}

// Arg is a value bound to a kernel argument: a Buffer or a scalar.
type Arg struct {
	Buffer Buffer
	Scalar float32
}

func BufferArg(b Buffer) Arg  { return Arg{Buffer: b} }
func ScalarArg(v float32) Arg { return Arg{Scalar: v} }
func (a Arg) IsBuffer() bool  { return a.Buffer != nil }

// CheckArgs validates args against the kernel's contract. Every required
// buffer argument must be bound to a live buffer and every scalar must be
// present. Backends call it before touching the device.
func CheckArgs(src KernelSource, args map[string]Arg) error {
	for name := range args {
		if _, ok := src.Arg(name); !ok {
			return fmt.Errorf("%w: kernel %q has no argument %q", ErrKernelDispatchFailed, src.Name, name)
		}
	}
	for _, spec := range src.Args {
		if spec.Kind == ArgDomain {
			continue
		}
		a, ok := args[spec.Name]
		if !ok {
			if spec.Optional {
				continue
			}
			return fmt.Errorf("%w: kernel %q: argument %q is not bound", ErrKernelDispatchFailed, src.Name, spec.Name)
		}
		switch spec.Kind {
		case ArgBuffer:
			if a.Buffer == nil {
				return fmt.Errorf("%w: kernel %q: argument %q needs a buffer", ErrKernelDispatchFailed, src.Name, spec.Name)
			}
			if a.Buffer.Released() {
				return fmt.Errorf("%w: kernel %q: argument %q is bound to released buffer %s (%s)",
					ErrKernelDispatchFailed, src.Name, spec.Name, a.Buffer.Label(), a.Buffer.ID())
			}
		case ArgScalar:
			if a.Buffer != nil {
				return fmt.Errorf("%w: kernel %q: argument %q is a scalar", ErrKernelDispatchFailed, src.Name, spec.Name)
			}
		}
	}
	return nil
}

// CheckGrid rejects empty dispatch domains.
func CheckGrid(grid [3]uint32) error {
	if grid[0] == 0 || grid[1] == 0 || grid[2] == 0 {
		return fmt.Errorf("%w: empty dispatch grid %v", ErrKernelDispatchFailed, grid)
	}
	return nil
}
