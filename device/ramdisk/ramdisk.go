// Package ramdisk implements a memory-backed block transport. Requests are
// queued by Submit and transferred when they complete; each completion is
// signalled on the disk's interrupt source like a hardware queue would.
package ramdisk

import (
	"arcore/device"
	"arcore/kernel"
	"arcore/kernel/blk"
	"arcore/kernel/irq"
	"arcore/kernel/kfmt"
	"arcore/kernel/sync"
	"io"

	"github.com/pkg/errors"
)

const (
	// DefaultQueueDepth is the number of requests a disk keeps in flight.
	DefaultQueueDepth = 8

	// DefaultIRQSource is the interrupt source raised on completion. It
	// lies outside the range of sources wired to the PLIC on the virt
	// machine.
	DefaultIRQSource = 63
)

var (
	errTagInUse   = errors.New("tag already in flight")
	errBadTag     = errors.New("tag outside queue")
	errQueueEmpty = errors.New("no such request")

	// raiseFn is mocked by tests.
	raiseFn = irq.Raise
)

type request struct {
	active bool
	header blk.RequestHeader
	data   []byte
}

type completion struct {
	tag    blk.Tag
	status blk.Status
}

// Disk is a block device backed by a byte slice.
type Disk struct {
	lock sync.IRQSpinlock

	image  []byte
	source uint32

	manual   bool
	requests []request

	// done is a ring of completions awaiting PollCompletion.
	done      []completion
	doneHead  int
	doneCount int

	failures map[uint64]blk.Status
}

// New returns a disk exposing image with the given queue depth whose
// completions are signalled on source. The length of image is truncated to
// a whole number of sectors.
func New(image []byte, depth int, source uint32) *Disk {
	return &Disk{
		image:    image[:len(image)/blk.SectorSize*blk.SectorSize],
		source:   source,
		requests: make([]request, depth),
		done:     make([]completion, depth),
		failures: make(map[uint64]blk.Status),
	}
}

// Sectors returns the capacity of the disk in sectors.
func (d *Disk) Sectors() uint64 { return uint64(len(d.image) / blk.SectorSize) }

// IRQSource returns the interrupt source signalled on completion.
func (d *Disk) IRQSource() uint32 { return d.source }

// QueueDepth returns the maximum number of in-flight requests.
func (d *Disk) QueueDepth() int { return len(d.requests) }

// SetManualCompletion controls whether requests complete as soon as they
// are submitted or only when Complete is invoked for their tag.
func (d *Disk) SetManualCompletion(manual bool) {
	d.lock.Acquire()
	d.manual = manual
	d.lock.Release()
}

// FailSector makes every request touching sector complete with status.
func (d *Disk) FailSector(sector uint64, status blk.Status) {
	d.lock.Acquire()
	d.failures[sector] = status
	d.lock.Release()
}

// Submit implements blk.Transport.
func (d *Disk) Submit(tag blk.Tag, header []byte, data []byte) error {
	hdr, err := blk.DecodeHeader(header)
	if err != nil {
		return err
	}

	d.lock.Acquire()
	defer d.lock.Release()

	switch {
	case int(tag) >= len(d.requests):
		return errors.Wrapf(errBadTag, "tag %d", tag)
	case d.requests[tag].active:
		return errors.Wrapf(errTagInUse, "tag %d", tag)
	}

	d.requests[tag] = request{active: true, header: hdr, data: data}
	if !d.manual {
		d.complete(tag)
	}
	return nil
}

// Pending returns the tags of submitted requests that have not completed
// yet in ascending order.
func (d *Disk) Pending() []blk.Tag {
	d.lock.Acquire()
	defer d.lock.Release()

	var tags []blk.Tag
	for i := range d.requests {
		if d.requests[i].active {
			tags = append(tags, blk.Tag(i))
		}
	}
	return tags
}

// Complete finishes the in-flight request identified by tag.
func (d *Disk) Complete(tag blk.Tag) error {
	d.lock.Acquire()
	defer d.lock.Release()

	if int(tag) >= len(d.requests) || !d.requests[tag].active {
		return errors.Wrapf(errQueueEmpty, "tag %d", tag)
	}

	d.complete(tag)
	return nil
}

// complete transfers the data of a request, posts its completion and
// raises the interrupt. The caller must hold the lock.
func (d *Disk) complete(tag blk.Tag) {
	req := &d.requests[tag]
	status := d.transfer(req)
	*req = request{}

	d.done[(d.doneHead+d.doneCount)%len(d.done)] = completion{tag: tag, status: status}
	d.doneCount++
	raiseFn(d.source)
}

func (d *Disk) transfer(req *request) blk.Status {
	var (
		sectors = uint64(len(req.data) / blk.SectorSize)
		first   = req.header.Sector
	)

	if first+sectors > d.Sectors() || first+sectors < first {
		return blk.StatusIOError
	}

	for s := first; s < first+sectors; s++ {
		if status, ok := d.failures[s]; ok {
			return status
		}
	}

	offset := first * blk.SectorSize
	switch blk.RequestType(req.header.Type) {
	case blk.RequestRead:
		kernel.Memcopy(d.image[offset:], req.data)
	case blk.RequestWrite:
		kernel.Memcopy(req.data, d.image[offset:])
	default:
		return blk.StatusUnsupported
	}

	return blk.StatusOK
}

// PollCompletion implements blk.Transport.
func (d *Disk) PollCompletion() (blk.Tag, blk.Status, bool) {
	d.lock.Acquire()
	defer d.lock.Release()

	if d.doneCount == 0 {
		return 0, 0, false
	}

	c := d.done[d.doneHead]
	d.doneHead = (d.doneHead + 1) % len(d.done)
	d.doneCount--
	return c.tag, c.status, true
}

// DriverName returns the name of this driver.
func (d *Disk) DriverName() string {
	return "ramdisk"
}

// DriverVersion returns the version of this driver.
func (d *Disk) DriverVersion() (uint16, uint16, uint16) {
	return 1, 0, 0
}

// DriverInit initializes this driver.
func (d *Disk) DriverInit(w io.Writer) *kernel.Error {
	kfmt.Fprintf(w, "%d sectors, queue depth %d, irq %d\n", d.Sectors(), d.QueueDepth(), d.source)
	return nil
}

// bootImage holds the storage image handed over by the boot loader.
var bootImage []byte

// SetBootImage registers the storage image exposed by the probed disk.
func SetBootImage(image []byte) { bootImage = image }

func probeForRamdisk() device.Driver {
	if len(bootImage) < blk.SectorSize {
		return nil
	}
	return New(bootImage, DefaultQueueDepth, DefaultIRQSource)
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderStorage,
		Probe: probeForRamdisk,
	})
}
