package mm

import (
	"arcore/kernel"
	"testing"
)

func TestFrameMethods(t *testing.T) {
	for frameIndex := uint64(0); frameIndex < 128; frameIndex++ {
		frame := Frame(frameIndex)

		if !frame.Valid() {
			t.Errorf("expected frame %d to be valid", frameIndex)
		}

		if exp, got := uintptr(frameIndex<<PageShift), frame.Address(); got != exp {
			t.Errorf("expected frame (%d, index: %d) call to Address() to return %x; got %x", frame, frameIndex, exp, got)
		}
	}

	invalidFrame := InvalidFrame
	if invalidFrame.Valid() {
		t.Error("expected InvalidFrame.Valid() to return false")
	}
}

func TestFrameFromAddress(t *testing.T) {
	specs := []struct {
		input    uintptr
		expFrame Frame
	}{
		{0, Frame(0)},
		{4095, Frame(0)},
		{4096, Frame(1)},
		{4123, Frame(1)},
	}

	for specIndex, spec := range specs {
		if got := FrameFromAddress(spec.input); got != spec.expFrame {
			t.Errorf("[spec %d] expected returned frame to be %v; got %v", specIndex, spec.expFrame, got)
		}
	}
}

type recordingAllocator struct {
	allocCalls, reservedCalls int
	freed                     []Frame
}

func (a *recordingAllocator) AllocFrame() (Frame, *kernel.Error) {
	a.allocCalls++
	return FrameFromAddress(0xbadf00), nil
}

func (a *recordingAllocator) AllocReservedFrame() (Frame, *kernel.Error) {
	a.reservedCalls++
	return FrameFromAddress(0xf00d000), nil
}

func (a *recordingAllocator) FreeFrame(f Frame) {
	a.freed = append(a.freed, f)
}

func TestFrameAllocator(t *testing.T) {
	alloc := &recordingAllocator{}

	defer SetFrameAllocator(nil)
	SetFrameAllocator(alloc)

	if _, err := AllocFrame(); err != nil {
		t.Fatal(err)
	}

	frame, err := AllocReservedFrame()
	if err != nil {
		t.Fatal(err)
	}
	FreeFrame(frame)

	if alloc.allocCalls != 1 || alloc.reservedCalls != 1 {
		t.Fatalf("expected one call to each allocation method; got %d, %d", alloc.allocCalls, alloc.reservedCalls)
	}

	if len(alloc.freed) != 1 || alloc.freed[0] != frame {
		t.Fatalf("expected frame %d to be freed; got %v", frame, alloc.freed)
	}
}

func TestPageMethods(t *testing.T) {
	for pageIndex := uint64(0); pageIndex < 128; pageIndex++ {
		page := Page(pageIndex)

		if exp, got := uintptr(pageIndex<<PageShift), page.Address(); got != exp {
			t.Errorf("expected page (%d, index: %d) call to Address() to return %x; got %x", page, pageIndex, exp, got)
		}
	}
}

func TestPageFromAddress(t *testing.T) {
	specs := []struct {
		input   uintptr
		expPage Page
	}{
		{0, Page(0)},
		{4095, Page(0)},
		{4096, Page(1)},
		{4123, Page(1)},
	}

	for specIndex, spec := range specs {
		if got := PageFromAddress(spec.input); got != spec.expPage {
			t.Errorf("[spec %d] expected returned page to be %v; got %v", specIndex, spec.expPage, got)
		}
	}
}

func TestPageAlignUp(t *testing.T) {
	specs := []struct {
		input, exp uintptr
	}{
		{0, 0},
		{1, 4096},
		{4096, 4096},
		{4097, 8192},
	}

	for specIndex, spec := range specs {
		if got := PageAlignUp(spec.input); got != spec.exp {
			t.Errorf("[spec %d] expected %#x; got %#x", specIndex, spec.exp, got)
		}
	}
}
