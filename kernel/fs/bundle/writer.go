package bundle

import (
	"bytes"
	"encoding/binary"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

// File is an input to Build.
type File struct {
	Name string
	Data []byte
}

// Build assembles an image holding files in the given order.
func Build(files []File) ([]byte, error) {
	if len(files) > 0xffff {
		return nil, errors.Errorf("too many files: %d", len(files))
	}

	dirSectors := (uint32(len(files))*entrySize + SectorSize - 1) / SectorSize
	next := 1 + dirSectors

	entries := make([]Entry, len(files))
	for i, f := range files {
		if len(f.Name) == 0 || len(f.Name) > MaxNameLen {
			return nil, errors.Errorf("invalid file name %q", f.Name)
		}
		for j := 0; j < i; j++ {
			if files[j].Name == f.Name {
				return nil, errors.Errorf("duplicate file name %q", f.Name)
			}
		}

		copy(entries[i].RawName[:], f.Name)
		entries[i].Sector = next
		entries[i].Size = uint32(len(f.Data))
		next += uint32(entries[i].SectorCount())
	}

	sb := Superblock{
		Magic:      Magic,
		Version:    Version,
		Count:      uint16(len(files)),
		DirSectors: dirSectors,
		Sectors:    next,
	}

	image := make([]byte, uint64(next)*SectorSize)

	var buf bytes.Buffer
	if err := struc.PackWithOrder(&buf, &sb, binary.LittleEndian); err != nil {
		return nil, errors.Wrap(err, "struc.Pack() failed")
	}
	copy(image, buf.Bytes())

	buf.Reset()
	for i := range entries {
		if err := struc.PackWithOrder(&buf, &entries[i], binary.LittleEndian); err != nil {
			return nil, errors.Wrap(err, "struc.Pack() failed")
		}
	}
	copy(image[SectorSize:], buf.Bytes())

	for i, f := range files {
		copy(image[uint64(entries[i].Sector)*SectorSize:], f.Data)
	}

	return image, nil
}
