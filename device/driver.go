// Package device defines the interface implemented by device drivers and the
// registry the hal probes at boot.
package device

import (
	"arcore/kernel"
	"arcore/kernel/blk"
	"io"
)

// Driver is an interface implemented by all drivers.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver version.
	DriverVersion() (major uint16, minor uint16, patch uint16)

	// DriverInit initializes the device driver. If the driver init code
	// needs to log some output, it can use the supplied io.Writer in
	// conjunction with a call to kfmt.Fprintf.
	DriverInit(io.Writer) *kernel.Error
}

// BlockDevice is implemented by drivers for block storage. Completed
// requests are signalled on the interrupt source returned by IRQSource.
type BlockDevice interface {
	Driver
	blk.Transport

	IRQSource() uint32
}

// ProbeFn is a function that scans for the presence of a particular
// piece of hardware and returns a driver for it.
type ProbeFn func() Driver

// DetectOrder specifies when each driver's probe function will be invoked
// by the hal.
type DetectOrder int8

// The available detect orders.
const (
	// DetectOrderEarly is used by drivers that provide early output.
	DetectOrderEarly DetectOrder = -128

	// DetectOrderBeforeStorage is used by drivers that storage drivers
	// depend on.
	DetectOrderBeforeStorage = -1

	// DetectOrderStorage is used by block storage drivers.
	DetectOrderStorage = 0

	// DetectOrderLast is used by drivers that must be probed last.
	DetectOrderLast = 127
)

// DriverInfo is used to register a driver with the driver registry.
type DriverInfo struct {
	// Order specifies at which stage the probe function is invoked.
	Order DetectOrder

	// Probe returns a driver instance if the device is present.
	Probe ProbeFn
}

// DriverInfoList is a list of registered drivers that implements
// sort.Interface.
type DriverInfoList []*DriverInfo

// Len returns the length of the driver info list.
func (l DriverInfoList) Len() int { return len(l) }

// Swap exchanges 2 elements in the driver info list.
func (l DriverInfoList) Swap(i, j int) { l[i], l[j] = l[j], l[i] }

// Less compares 2 elements of the driver info list.
func (l DriverInfoList) Less(i, j int) bool { return l[i].Order < l[j].Order }

var registeredDrivers DriverInfoList

// RegisterDriver adds the supplied driver info object to the list of
// registered drivers. The list can be retrieved by calling DriverList().
func RegisterDriver(info *DriverInfo) {
	registeredDrivers = append(registeredDrivers, info)
}

// DriverList returns the list of registered drivers.
func DriverList() DriverInfoList {
	return registeredDrivers
}
