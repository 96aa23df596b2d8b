package device_test

import (
	"arcore/device"
	"arcore/device/ramdisk"
	_ "arcore/device/tty"
	"arcore/kernel/blk"
	"sort"
	"testing"
)

func TestRegisteredDriverOrder(t *testing.T) {
	ramdisk.SetBootImage(make([]byte, 2*blk.SectorSize))
	defer ramdisk.SetBootImage(nil)

	drivers := append(device.DriverInfoList(nil), device.DriverList()...)
	sort.Stable(drivers)

	position := make(map[string]int)
	for i, info := range drivers {
		if drv := info.Probe(); drv != nil {
			position[drv.DriverName()] = i
		}
	}

	console, ok := position["sbi_console"]
	if !ok {
		t.Fatal("expected the console driver to be registered")
	}
	disk, ok := position["ramdisk"]
	if !ok {
		t.Fatal("expected the ramdisk driver to be registered")
	}

	// the console must be up before storage drivers log their init output
	if console >= disk {
		t.Fatalf("expected sbi_console (%d) to be probed before ramdisk (%d)", console, disk)
	}

	for _, info := range drivers {
		if drv := info.Probe(); drv != nil {
			if _, isBlock := drv.(device.BlockDevice); isBlock && info.Order != device.DetectOrderStorage {
				t.Errorf("expected block driver %s to use DetectOrderStorage; got %d", drv.DriverName(), info.Order)
			}
		}
	}
}
