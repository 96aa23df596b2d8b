// Package hal probes the registered device drivers and connects the devices
// it finds to the rest of the kernel.
package hal

import (
	"arcore/device"
	"arcore/device/tty"
	"arcore/kernel"
	"arcore/kernel/blk"
	"arcore/kernel/irq"
	"arcore/kernel/kfmt"
	"bytes"
	"sort"
)

// managedDevices contains the devices discovered by the HAL.
type managedDevices struct {
	activeTTY   tty.Device
	blockDevice device.BlockDevice
	blockQueue  *blk.Adapter

	// activeDrivers tracks all initialized device drivers.
	activeDrivers []device.Driver
}

var (
	devices managedDevices
	strBuf  bytes.Buffer

	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	handleIRQFn     = irq.HandleIRQ
	setOutputSinkFn = kfmt.SetOutputSink
)

// ActiveTTY returns the currently active TTY
func ActiveTTY() tty.Device {
	return devices.activeTTY
}

// BlockAdapter returns the adapter bound to the first block device found by
// DetectHardware or nil if no block device was found.
func BlockAdapter() *blk.Adapter {
	return devices.blockQueue
}

// DetectHardware probes for hardware devices and initializes the appropriate
// drivers. Interrupts of block devices are routed to the first harts harts.
func DetectHardware(harts int) {
	// Get driver list and sort by detection priority
	drivers := device.DriverList()
	sort.Stable(drivers)

	probe(drivers, harts)
}

// probe executes the probe function for each driver and invokes
// onDriverInit for each successfully initialized driver.
func probe(driverInfoList device.DriverInfoList, harts int) {
	var w = kfmt.PrefixWriter{Sink: console{}}

	for _, info := range driverInfoList {
		drv := info.Probe()
		if drv == nil {
			continue
		}

		strBuf.Reset()
		major, minor, patch := drv.DriverVersion()
		kfmt.Fprintf(&strBuf, "[hal] %s(%d.%d.%d): ", drv.DriverName(), major, minor, patch)
		w.Prefix = strBuf.Bytes()

		if err := drv.DriverInit(&w); err != nil {
			kfmt.Fprintf(&w, "init failed: %s\n", err.Message)
			continue
		}

		if err := onDriverInit(drv, harts); err != nil {
			kfmt.Fprintf(&w, "bind failed: %s\n", err.Message)
			continue
		}

		kfmt.Fprintf(&w, "initialized\n")
		devices.activeDrivers = append(devices.activeDrivers, drv)
	}
}

// console forwards writes to the current kfmt output sink so driver output
// follows the sink once a TTY is attached.
type console struct{}

func (console) Write(p []byte) (int, error) {
	kfmt.Printf("%s", p)
	return len(p), nil
}

// onDriverInit is invoked by probe() whenever a piece of hardware is detected
// and successfully initialized.
func onDriverInit(drv device.Driver, harts int) *kernel.Error {
	switch drvImpl := drv.(type) {
	case tty.Device:
		if devices.activeTTY != nil {
			return nil
		}

		devices.activeTTY = drvImpl
		devices.activeTTY.SetState(tty.StateActive)
		setOutputSinkFn(devices.activeTTY)
	case device.BlockDevice:
		if devices.blockDevice != nil {
			return nil
		}

		return bindBlockDevice(drvImpl, harts)
	}

	return nil
}

// bindBlockDevice puts a request queue in front of dev and routes its
// completion interrupt to the queue.
func bindBlockDevice(dev device.BlockDevice, harts int) *kernel.Error {
	queue := blk.NewAdapter(dev)
	if err := handleIRQFn(dev.IRQSource(), harts, func() { queue.OnCompletionInterrupt() }); err != nil {
		return err
	}

	devices.blockDevice = dev
	devices.blockQueue = queue
	return nil
}
