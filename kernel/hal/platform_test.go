package hal

import (
	"arcore/kernel/hal/fdt"
	"testing"
)

func TestDiscoverPlatform(t *testing.T) {
	defer func() {
		visitMemRegionsFn = fdt.VisitMemRegions
		plicRegionFn = plicRegion
		countHartsFn = fdt.CountHarts
		initrdRangeFn = fdt.InitrdRange
	}()

	var (
		memRegions = [][2]uint64{{0x80000000, 0x8000000}, {0x100000000, 0x1000}}
		plic       = [2]uint64{0xc000000, 0x600000}
		harts      = 2
		initrd     = [2]uint64{0x88200000, 0x88210000}
	)

	visitMemRegionsFn = func(v fdt.MemRegionVisitor) {
		for _, r := range memRegions {
			if !v(r[0], r[1]) {
				return
			}
		}
	}
	plicRegionFn = func() (uint64, uint64) { return plic[0], plic[1] }
	countHartsFn = func() int { return harts }
	initrdRangeFn = func() (uint64, uint64, bool) { return initrd[0], initrd[1], initrd[1] != 0 }

	t.Run("success", func(t *testing.T) {
		p, err := DiscoverPlatform()
		if err != nil {
			t.Fatal(err)
		}

		exp := Platform{
			RAMStart:    0x80000000,
			RAMEnd:      0x88000000,
			PLICBase:    0xc000000,
			PLICSize:    0x600000,
			Harts:       2,
			InitrdStart: 0x88200000,
			InitrdEnd:   0x88210000,
		}
		if p != exp {
			t.Fatalf("expected %+v; got %+v", exp, p)
		}
	})

	t.Run("no cpus node", func(t *testing.T) {
		harts, initrd = 0, [2]uint64{}
		defer func() { harts = 2 }()

		p, err := DiscoverPlatform()
		if err != nil {
			t.Fatal(err)
		}
		if p.Harts != 1 || p.InitrdStart != 0 || p.InitrdEnd != 0 {
			t.Fatalf("unexpected platform %+v", p)
		}
	})

	t.Run("no plic", func(t *testing.T) {
		plic = [2]uint64{}
		defer func() { plic = [2]uint64{0xc000000, 0x600000} }()

		if _, err := DiscoverPlatform(); err != ErrNoInterruptController {
			t.Fatalf("expected ErrNoInterruptController; got %v", err)
		}
	})

	t.Run("no memory", func(t *testing.T) {
		memRegions = nil
		if _, err := DiscoverPlatform(); err != ErrNoMemory {
			t.Fatalf("expected ErrNoMemory; got %v", err)
		}
	})
}
