package syscall

import (
	"arcore/kernel"
	"arcore/kernel/blk"
	"arcore/kernel/fs/bundle"
	"arcore/kernel/mm/pmm"
	"arcore/kernel/mm/vmm"
	"arcore/kernel/proc"

	"github.com/pkg/errors"
)

// Errno is a positive error number. System calls return its negation.
type Errno int64

// The error numbers returned by system calls.
const (
	ENOENT       Errno = 2
	EIO          Errno = 5
	ENOEXEC      Errno = 8
	EBADF        Errno = 9
	ECHILD       Errno = 10
	EAGAIN       Errno = 11
	ENOMEM       Errno = 12
	EFAULT       Errno = 14
	EBUSY        Errno = 16
	EINVAL       Errno = 22
	ENAMETOOLONG Errno = 36
	ENOSYS       Errno = 38
	EOPNOTSUPP   Errno = 95
)

var (
	// ErrBadFd is returned for file descriptors other than stdout and
	// stderr.
	ErrBadFd = &kernel.Error{Module: "syscall", Message: "bad file descriptor"}

	// ErrNameTooLong is returned when a program name exceeds the bundle
	// name limit.
	ErrNameTooLong = &kernel.Error{Module: "syscall", Message: "name too long"}

	// ErrInvalidArgument is returned for malformed arguments.
	ErrInvalidArgument = &kernel.Error{Module: "syscall", Message: "invalid argument"}
)

var errnoMap = map[*kernel.Error]Errno{
	vmm.ErrUnmapped:          EFAULT,
	vmm.ErrBadAddress:        EFAULT,
	vmm.ErrSegmentationFault: EFAULT,
	vmm.ErrInvalidBreak:      ENOMEM,
	vmm.ErrInvalidRange:      EINVAL,
	vmm.ErrAlreadyMapped:     EINVAL,
	pmm.ErrOutOfMemory:       ENOMEM,
	blk.ErrBusy:              EBUSY,
	blk.ErrInvalidBuffer:     EINVAL,
	blk.ErrDeviceError:       EIO,
	blk.ErrSubmitFailed:      EIO,
	blk.ErrUnsupported:       EOPNOTSUPP,
	proc.ErrNoChild:          ECHILD,
	proc.ErrTooManyTasks:     EAGAIN,
	bundle.ErrNotFound:       ENOENT,
	bundle.ErrCorrupt:        ENOEXEC,
	ErrBadFd:                 EBADF,
	ErrNameTooLong:           ENAMETOOLONG,
	ErrInvalidArgument:       EINVAL,
}

// ErrnoFor maps an error returned by a kernel component to the error number
// reported to user space. Errors without a mapping are reported as EIO.
func ErrnoFor(err error) Errno {
	if kerr, ok := errors.Cause(err).(*kernel.Error); ok {
		if errno, ok := errnoMap[kerr]; ok {
			return errno
		}
	}
	return EIO
}

// Result encodes a system call error as the value returned in a0.
func (e Errno) Result() uint64 { return uint64(-int64(e)) }
