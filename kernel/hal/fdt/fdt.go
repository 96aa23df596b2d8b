// Package fdt reads the flattened device tree blob handed over by the
// firmware to the boot hart.
package fdt

import (
	"arcore/kernel"
	"bytes"
	"encoding/binary"
	"strings"
	"unsafe"

	"github.com/lunixbochs/struc"
)

// Magic is the value stored in the first word of every device tree blob.
const Magic = 0xd00dfeed

const (
	headerSize = 40

	tokenBeginNode = 1
	tokenEndNode   = 2
	tokenProp      = 3
	tokenNop       = 4
	tokenEnd       = 9
)

var (
	// ErrBadMagic is returned when the blob does not start with Magic.
	ErrBadMagic = &kernel.Error{Module: "fdt", Message: "bad device tree magic"}

	// ErrTruncated is returned when a blob offset points past its end.
	ErrTruncated = &kernel.Error{Module: "fdt", Message: "device tree blob truncated"}

	blob      []byte
	hdr       header
	cmdLineKV map[string]string
)

// header describes the big-endian header at the start of the blob.
type header struct {
	Magic           uint32
	TotalSize       uint32
	OffStruct       uint32
	OffStrings      uint32
	OffMemRsvMap    uint32
	Version         uint32
	LastCompVersion uint32
	BootCPUID       uint32
	SizeStrings     uint32
	SizeStruct      uint32
}

// Node is a device tree node together with its properties.
type Node struct {
	// Path is the full path of the node, e.g. "/soc/plic@c000000".
	Path string

	props map[string][]byte
}

// Name returns the last component of the node path.
func (n *Node) Name() string {
	return n.Path[strings.LastIndexByte(n.Path, '/')+1:]
}

// Prop returns the raw value of the named property.
func (n *Node) Prop(name string) ([]byte, bool) {
	v, ok := n.props[name]
	return v, ok
}

// Compatible reports whether the node's compatible list contains any of the
// supplied strings.
func (n *Node) Compatible(compat ...string) bool {
	list, ok := n.props["compatible"]
	if !ok {
		return false
	}

	for _, entry := range bytes.Split(list, []byte{0}) {
		for _, c := range compat {
			if string(entry) == c {
				return true
			}
		}
	}

	return false
}

// Uint reads a property holding a single 32- or 64-bit cell value.
func (n *Node) Uint(name string) (uint64, bool) {
	v, ok := n.props[name]
	switch {
	case !ok:
		return 0, false
	case len(v) == 4:
		return uint64(binary.BigEndian.Uint32(v)), true
	case len(v) == 8:
		return binary.BigEndian.Uint64(v), true
	}

	return 0, false
}

// Reg decodes the node's reg property as (address, size) pairs made up of
// addrCells and sizeCells 32-bit cells.
func (n *Node) Reg(addrCells, sizeCells int) [][2]uint64 {
	v := n.props["reg"]
	stride := 4 * (addrCells + sizeCells)
	if stride == 0 {
		return nil
	}

	var out [][2]uint64
	for ; len(v) >= stride; v = v[stride:] {
		out = append(out, [2]uint64{
			readCells(v, addrCells),
			readCells(v[4*addrCells:], sizeCells),
		})
	}

	return out
}

func readCells(b []byte, cells int) uint64 {
	var v uint64
	for i := 0; i < cells; i++ {
		v = v<<32 | uint64(binary.BigEndian.Uint32(b[4*i:]))
	}
	return v
}

// BlobAt returns a slice covering the device tree blob that starts at addr.
// The total size is read from the blob header.
func BlobAt(addr uintptr) []byte {
	size := binary.BigEndian.Uint32(unsafe.Slice((*byte)(unsafe.Pointer(addr+4)), 4))
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
}

// SetBlob validates and installs the device tree blob queried by the other
// functions of this package.
func SetBlob(b []byte) *kernel.Error {
	var h header
	if len(b) < headerSize {
		return ErrTruncated
	}

	if err := struc.UnpackWithOrder(bytes.NewReader(b[:headerSize]), &h, binary.BigEndian); err != nil || h.Magic != Magic {
		return ErrBadMagic
	}

	if uint64(h.TotalSize) > uint64(len(b)) ||
		uint64(h.OffStruct)+uint64(h.SizeStruct) > uint64(h.TotalSize) ||
		uint64(h.OffStrings)+uint64(h.SizeStrings) > uint64(h.TotalSize) {
		return ErrTruncated
	}

	blob, hdr, cmdLineKV = b[:h.TotalSize], h, nil
	return nil
}

// NodeVisitor is invoked for each node of the tree. Returning false aborts
// the walk.
type NodeVisitor func(n *Node) bool

// VisitNodes walks the device tree and invokes visitor for every node once
// all of its properties have been collected. Children are visited before
// their parent.
func VisitNodes(visitor NodeVisitor) {
	if blob == nil {
		return
	}

	var (
		structs = blob[hdr.OffStruct : hdr.OffStruct+hdr.SizeStruct]
		strs    = blob[hdr.OffStrings : hdr.OffStrings+hdr.SizeStrings]
		stack   []*Node
		off     int
	)

	for off+4 <= len(structs) {
		token := binary.BigEndian.Uint32(structs[off:])
		off += 4

		switch token {
		case tokenBeginNode:
			name := cstring(structs[off:])
			off = align4(off + len(name) + 1)

			path := "/"
			if len(stack) > 0 {
				parent := stack[len(stack)-1].Path
				if parent == "/" {
					parent = ""
				}
				path = parent + "/" + name
			}
			stack = append(stack, &Node{Path: path, props: make(map[string][]byte)})
		case tokenEndNode:
			if len(stack) == 0 {
				return
			}
			n := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if !visitor(n) {
				return
			}
		case tokenProp:
			if off+8 > len(structs) {
				return
			}
			size := int(binary.BigEndian.Uint32(structs[off:]))
			nameOff := int(binary.BigEndian.Uint32(structs[off+4:]))
			off += 8
			if off+size > len(structs) || nameOff >= len(strs) {
				return
			}
			if len(stack) > 0 {
				stack[len(stack)-1].props[cstring(strs[nameOff:])] = structs[off : off+size]
			}
			off = align4(off + size)
		case tokenNop:
		case tokenEnd:
			return
		default:
			return
		}
	}
}

// FindNode returns the first node for which match returns true or nil.
func FindNode(match func(n *Node) bool) *Node {
	var found *Node
	VisitNodes(func(n *Node) bool {
		if match(n) {
			found = n
			return false
		}
		return true
	})
	return found
}

// FindCompatible returns the first node compatible with any of the supplied
// strings.
func FindCompatible(compat ...string) *Node {
	return FindNode(func(n *Node) bool { return n.Compatible(compat...) })
}

// MemRegionVisitor is invoked for each RAM region. Returning false aborts
// the scan.
type MemRegionVisitor func(base, size uint64) bool

// VisitMemRegions invokes visitor for each RAM range listed by the memory
// nodes of the tree.
func VisitMemRegions(visitor MemRegionVisitor) {
	addrCells, sizeCells := rootCells()
	VisitNodes(func(n *Node) bool {
		if dt, _ := n.Prop("device_type"); cstring(dt) != "memory" {
			return true
		}

		for _, r := range n.Reg(addrCells, sizeCells) {
			if !visitor(r[0], r[1]) {
				return false
			}
		}
		return true
	})
}

// CountHarts returns the number of cpu nodes under /cpus.
func CountHarts() int {
	var count int
	VisitNodes(func(n *Node) bool {
		if strings.HasPrefix(n.Path, "/cpus/cpu@") && strings.Count(n.Path, "/") == 2 {
			count++
		}
		return true
	})
	return count
}

// InitrdRange returns the physical range of the initial ramdisk loaded by
// the firmware.
func InitrdRange() (start, end uint64, ok bool) {
	chosen := FindNode(func(n *Node) bool { return n.Path == "/chosen" })
	if chosen == nil {
		return 0, 0, false
	}

	start, okStart := chosen.Uint("linux,initrd-start")
	end, okEnd := chosen.Uint("linux,initrd-end")
	if !okStart || !okEnd || end <= start {
		return 0, 0, false
	}
	return start, end, true
}

// GetBootCmdLine returns the key-value pairs of the bootargs property of the
// /chosen node. A flag without a value maps to itself.
func GetBootCmdLine() map[string]string {
	if cmdLineKV != nil {
		return cmdLineKV
	}

	cmdLineKV = make(map[string]string)

	chosen := FindNode(func(n *Node) bool { return n.Path == "/chosen" })
	if chosen == nil {
		return cmdLineKV
	}

	args, _ := chosen.Prop("bootargs")
	for _, pair := range strings.Fields(cstring(args)) {
		kv := strings.SplitN(pair, "=", 2)
		switch len(kv) {
		case 2: // foo=bar
			cmdLineKV[kv[0]] = kv[1]
		case 1: // nofoo
			cmdLineKV[kv[0]] = kv[0]
		}
	}

	return cmdLineKV
}

// rootCells returns the #address-cells and #size-cells of the root node.
func rootCells() (int, int) {
	addrCells, sizeCells := 2, 1
	if root := FindNode(func(n *Node) bool { return n.Path == "/" }); root != nil {
		if v, ok := root.Uint("#address-cells"); ok {
			addrCells = int(v)
		}
		if v, ok := root.Uint("#size-cells"); ok {
			sizeCells = int(v)
		}
	}
	return addrCells, sizeCells
}

func cstring(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

func align4(off int) int {
	return (off + 3) &^ 3
}
