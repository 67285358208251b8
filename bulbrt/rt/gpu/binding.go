package gpu

import (
	"fmt"

	"github.com/gekko3d/bulb/bulbrt/rt/device"
)

// KernelBinding is the argument table of one loaded kernel. Resources are
// bound by name and checked for liveness before every dispatch.
type KernelBinding struct {
	kernel device.Kernel
	args   map[string]device.Arg
}

func NewKernelBinding(k device.Kernel) *KernelBinding {
	return &KernelBinding{kernel: k, args: make(map[string]device.Arg)}
}

func (b *KernelBinding) Kernel() device.Kernel { return b.kernel }

func (b *KernelBinding) spec(name string, kind device.ArgKind) error {
	src := b.kernel.Source()
	spec, ok := src.Arg(name)
	if !ok {
		return fmt.Errorf("%w: %s has no argument %q", ErrUnknownArg, src.Name, name)
	}
	if spec.Kind != kind {
		return fmt.Errorf("%w: %s.%s is a %s argument, not a %s", ErrUnknownArg, src.Name, name, spec.Kind, kind)
	}
	return nil
}

// Has reports whether the kernel declares an argument called name.
func (b *KernelBinding) Has(name string) bool {
	_, ok := b.kernel.Source().Arg(name)
	return ok
}

func (b *KernelBinding) BindBuffer(name string, buf device.Buffer) error {
	if err := b.spec(name, device.ArgBuffer); err != nil {
		return err
	}
	b.args[name] = device.BufferArg(buf)
	return nil
}

func (b *KernelBinding) BindScalar(name string, v float32) error {
	if err := b.spec(name, device.ArgScalar); err != nil {
		return err
	}
	b.args[name] = device.ScalarArg(v)
	return nil
}

func (b *KernelBinding) Unbind(name string) { delete(b.args, name) }

func (b *KernelBinding) Bound(name string) (device.Arg, bool) {
	a, ok := b.args[name]
	return a, ok
}

// Validate checks that every required argument is bound and that no bound
// buffer has been released.
func (b *KernelBinding) Validate() error {
	return device.CheckArgs(b.kernel.Source(), b.args)
}

// Dispatch validates the table and runs the kernel over grid.
func (b *KernelBinding) Dispatch(ctx device.Context, grid [3]uint32) error {
	if err := b.Validate(); err != nil {
		return err
	}
	return ctx.Dispatch(b.kernel, b.args, grid)
}
