// Package bundle reads and writes the read-only image that carries user
// programs on the storage device. Sector 0 holds the superblock, followed by
// the directory and the file contents, each file starting on a sector
// boundary.
package bundle

import (
	"arcore/kernel"
	"bytes"
	"encoding/binary"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

const (
	// Magic identifies a bundle image ("ARCB" little-endian).
	Magic = 0x42435241

	// Version is the supported image format version.
	Version = 1

	// SectorSize matches the block device sector size.
	SectorSize = 512

	// MaxNameLen is the longest file name that fits a directory entry.
	MaxNameLen = 32

	superblockSize = 16
	entrySize      = MaxNameLen + 8
)

var (
	// ErrBadMagic is returned when sector 0 does not hold a superblock.
	ErrBadMagic = &kernel.Error{Module: "bundle", Message: "bad superblock magic"}

	// ErrBadVersion is returned for images of an unsupported version.
	ErrBadVersion = &kernel.Error{Module: "bundle", Message: "unsupported image version"}

	// ErrCorrupt is returned when the directory is inconsistent.
	ErrCorrupt = &kernel.Error{Module: "bundle", Message: "corrupt directory"}

	// ErrNotFound is returned when a file is not in the directory.
	ErrNotFound = &kernel.Error{Module: "bundle", Message: "file not found"}
)

// Superblock is stored at the start of sector 0.
type Superblock struct {
	Magic      uint32 `struc:"uint32,little"`
	Version    uint16 `struc:"uint16,little"`
	Count      uint16 `struc:"uint16,little"`
	DirSectors uint32 `struc:"uint32,little"`
	Sectors    uint32 `struc:"uint32,little"`
}

// Entry describes one file of the image.
type Entry struct {
	RawName [MaxNameLen]byte `struc:"[32]byte"`
	Sector  uint32           `struc:"uint32,little"`
	Size    uint32           `struc:"uint32,little"`
}

// Name returns the file name with its NUL padding removed.
func (e Entry) Name() string {
	if i := bytes.IndexByte(e.RawName[:], 0); i >= 0 {
		return string(e.RawName[:i])
	}
	return string(e.RawName[:])
}

// SectorCount returns the number of sectors occupied by the file.
func (e Entry) SectorCount() uint64 {
	return (uint64(e.Size) + SectorSize - 1) / SectorSize
}

// Directory is the decoded table of contents of an image.
type Directory struct {
	Superblock Superblock
	Entries    []Entry
}

// Lookup returns the entry for name.
func (d *Directory) Lookup(name string) (Entry, error) {
	for _, e := range d.Entries {
		if e.Name() == name {
			return e, nil
		}
	}
	return Entry{}, errors.Wrapf(ErrNotFound, "%q", name)
}

// ParseSuperblock decodes and validates the superblock stored in sector.
func ParseSuperblock(sector []byte) (Superblock, error) {
	var sb Superblock
	if len(sector) < superblockSize {
		return sb, errors.Wrap(ErrCorrupt, "short superblock")
	}

	if err := struc.UnpackWithOrder(bytes.NewReader(sector[:superblockSize]), &sb, binary.LittleEndian); err != nil {
		return sb, errors.Wrap(err, "struc.Unpack() failed")
	}

	switch {
	case sb.Magic != Magic:
		return sb, errors.Wrapf(ErrBadMagic, "got 0x%08x", sb.Magic)
	case sb.Version != Version:
		return sb, errors.Wrapf(ErrBadVersion, "got %d", sb.Version)
	case uint64(sb.Count)*entrySize > uint64(sb.DirSectors)*SectorSize:
		return sb, errors.Wrapf(ErrCorrupt, "%d entries do not fit %d directory sectors", sb.Count, sb.DirSectors)
	}

	return sb, nil
}

// ParseDirectory decodes the directory sectors of an image described by sb.
func ParseDirectory(sb Superblock, dir []byte) (*Directory, error) {
	if uint64(len(dir)) < uint64(sb.Count)*entrySize {
		return nil, errors.Wrap(ErrCorrupt, "short directory")
	}

	d := &Directory{Superblock: sb, Entries: make([]Entry, sb.Count)}
	r := bytes.NewReader(dir)
	firstData := uint64(1 + sb.DirSectors)

	for i := range d.Entries {
		e := &d.Entries[i]
		if err := struc.UnpackWithOrder(r, e, binary.LittleEndian); err != nil {
			return nil, errors.Wrapf(err, "entry %d", i)
		}

		if end := uint64(e.Sector) + e.SectorCount(); uint64(e.Sector) < firstData || end > uint64(sb.Sectors) {
			return nil, errors.Wrapf(ErrCorrupt, "entry %q spans sectors [%d, %d)", e.Name(), e.Sector, end)
		}
	}

	return d, nil
}
