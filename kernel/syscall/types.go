package syscall

import "github.com/lunixbochs/argjoy"

// Argument types decoded from the system call registers.
type (
	// Fd is a file descriptor.
	Fd int32

	// Ptr is a user virtual address.
	Ptr uintptr

	// Len is a byte count.
	Len uint64

	// Sector is a block device sector number.
	Sector uint64

	// Pid selects a task; negative values select any child.
	Pid int64
)

// argCodec converts a raw register value into one of the argument types.
func argCodec(arg interface{}, vals []interface{}) error {
	reg, ok := vals[0].(uint64)
	if !ok {
		return argjoy.NoMatch
	}

	switch v := arg.(type) {
	case *Fd:
		*v = Fd(int32(reg))
	case *Ptr:
		*v = Ptr(reg)
	case *Len:
		*v = Len(reg)
	case *Sector:
		*v = Sector(reg)
	case *Pid:
		*v = Pid(int64(reg))
	default:
		return argjoy.NoMatch
	}
	return nil
}
