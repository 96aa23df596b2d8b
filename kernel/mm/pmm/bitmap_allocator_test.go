package pmm

import (
	"arcore/kernel/kfmt"
	"arcore/kernel/mm"
	"testing"

	"github.com/pkg/errors"
)

func TestBitmapAllocatorAllocAndFree(t *testing.T) {
	var (
		alloc BitmapAllocator
		base  = mm.Frame(0x80000)
		seen  = make(map[mm.Frame]bool)
	)

	if err := alloc.Init(base, 130, 2); err != nil {
		t.Fatal(err)
	}

	// 128 frames are available before the reserve is hit
	for i := 0; i < 128; i++ {
		f, err := alloc.AllocFrame()
		if err != nil {
			t.Fatalf("[alloc %d] unexpected error: %v", i, err)
		}

		if f < base || f >= base+130 {
			t.Fatalf("[alloc %d] frame %d outside managed range", i, f)
		}

		if seen[f] {
			t.Fatalf("[alloc %d] frame %d handed out twice", i, f)
		}
		seen[f] = true
	}

	if _, err := alloc.AllocFrame(); err != ErrOutOfMemory {
		t.Fatalf("expected ErrOutOfMemory once only the reserve is left; got %v", err)
	}

	// the reserve is still available to bookkeeping allocations
	for i := 0; i < 2; i++ {
		f, err := alloc.AllocReservedFrame()
		if err != nil {
			t.Fatalf("[reserve %d] unexpected error: %v", i, err)
		}
		if seen[f] {
			t.Fatalf("[reserve %d] frame %d handed out twice", i, f)
		}
		seen[f] = true
	}

	if _, err := alloc.AllocReservedFrame(); err != ErrOutOfMemory {
		t.Fatalf("expected ErrOutOfMemory after exhausting the reserve; got %v", err)
	}

	// freeing frames replenishes the reserve before regular allocations succeed
	alloc.FreeFrame(base)
	alloc.FreeFrame(base + 1)
	if _, err := alloc.AllocFrame(); err != ErrOutOfMemory {
		t.Fatalf("expected freed frames to refill the reserve first; got %v", err)
	}

	alloc.FreeFrame(base + 2)
	f, err := alloc.AllocFrame()
	if err != nil {
		t.Fatal(err)
	}

	if f < base || f > base+2 {
		t.Fatalf("expected one of the released frames to be reused; got %d", f)
	}

	if exp, got := uint32(2), alloc.FreeCount(); got != exp {
		t.Fatalf("expected free count %d; got %d", exp, got)
	}
}

func TestBitmapAllocatorMarkReserved(t *testing.T) {
	var alloc BitmapAllocator
	base := mm.Frame(100)

	if err := alloc.Init(base, 8, 0); err != nil {
		t.Fatal(err)
	}

	// the range partially overlaps the managed frames
	alloc.MarkReserved(base-2, 6)
	alloc.MarkReserved(base+1, 1)

	if exp, got := uint32(4), alloc.FreeCount(); got != exp {
		t.Fatalf("expected %d free frames; got %d", exp, got)
	}

	for i := 0; i < 4; i++ {
		f, err := alloc.AllocFrame()
		if err != nil {
			t.Fatal(err)
		}

		if f < base+4 {
			t.Fatalf("allocated reserved frame %d", f)
		}
	}
}

func TestBitmapAllocatorFatalFree(t *testing.T) {
	defer func() { panicFn = kfmt.Panic }()

	var panicErr error
	panicFn = func(e interface{}) {
		panicErr = e.(error)
	}

	var alloc BitmapAllocator
	if err := alloc.Init(mm.Frame(0), 64, 1); err != nil {
		t.Fatal(err)
	}

	f, err := alloc.AllocFrame()
	if err != nil {
		t.Fatal(err)
	}

	alloc.FreeFrame(f)
	if panicErr != nil {
		t.Fatalf("unexpected panic: %v", panicErr)
	}

	specs := []struct {
		frame  mm.Frame
		expErr error
	}{
		{f, ErrDoubleFree},
		{mm.Frame(64), ErrFrameOutOfRange},
	}

	for specIndex, spec := range specs {
		panicErr = nil
		alloc.FreeFrame(spec.frame)

		if errors.Cause(panicErr) != spec.expErr {
			t.Errorf("[spec %d] expected panic with %v; got %v", specIndex, spec.expErr, panicErr)
		}
	}

	if exp, got := uint32(64), alloc.FreeCount(); got != exp {
		t.Fatalf("expected rejected frees to leave the free count at %d; got %d", exp, got)
	}
}

func TestInit(t *testing.T) {
	defer mm.SetFrameAllocator(nil)

	specs := []struct {
		ramStart, ramEnd       uintptr
		kernelStart, kernelEnd uintptr
		reserve                uint32
		expErr                 bool
		expFree                uint32
	}{
		{0x80000000, 0x80000000, 0, 0, 0, true, 0},
		{0x80000000, 0x80010000, 0x80000000, 0x80002001, 2, false, 13},
		{0x80000000, 0x80002000, 0, 0, 2, true, 0},
	}

	for specIndex, spec := range specs {
		err := Init(spec.ramStart, spec.ramEnd, spec.kernelStart, spec.kernelEnd, spec.reserve)
		if gotErr := err != nil; gotErr != spec.expErr {
			t.Errorf("[spec %d] expected error: %t; got %v", specIndex, spec.expErr, err)
			continue
		}

		if spec.expErr {
			continue
		}

		if got := bitmapAllocator.FreeCount(); got != spec.expFree {
			t.Errorf("[spec %d] expected %d free frames; got %d", specIndex, spec.expFree, got)
		}

		f, err := mm.AllocFrame()
		if err != nil {
			t.Errorf("[spec %d] expected mm.AllocFrame to use the bitmap allocator; got %v", specIndex, err)
		}

		if f < mm.FrameFromAddress(spec.kernelEnd)+1 {
			t.Errorf("[spec %d] expected frames after the kernel image; got %#x", specIndex, f.Address())
		}
	}
}
