package bundle

import "github.com/pkg/errors"

// SectorReader reads whole sectors synchronously.
type SectorReader interface {
	ReadSync(sector uint64, buf []byte) error
}

// Open reads the superblock and directory of the image behind r.
func Open(r SectorReader) (*Directory, error) {
	buf := make([]byte, SectorSize)
	if err := r.ReadSync(0, buf); err != nil {
		return nil, errors.Wrap(err, "read superblock")
	}

	sb, err := ParseSuperblock(buf)
	if err != nil {
		return nil, err
	}

	dir := make([]byte, uint64(sb.DirSectors)*SectorSize)
	if len(dir) > 0 {
		if err := r.ReadSync(1, dir); err != nil {
			return nil, errors.Wrap(err, "read directory")
		}
	}

	return ParseDirectory(sb, dir)
}

// ReadFile returns the contents of the file described by e.
func ReadFile(r SectorReader, e Entry) ([]byte, error) {
	buf := make([]byte, e.SectorCount()*SectorSize)
	if len(buf) > 0 {
		if err := r.ReadSync(uint64(e.Sector), buf); err != nil {
			return nil, errors.Wrapf(err, "read %q", e.Name())
		}
	}
	return buf[:e.Size], nil
}
