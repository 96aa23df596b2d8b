package blk

import (
	"bytes"
	"encoding/binary"

	"github.com/lunixbochs/struc"
	"github.com/pkg/errors"
)

// SectorSize is the size of a device sector in bytes.
const SectorSize = 512

// HeaderSize is the encoded size of a RequestHeader.
const HeaderSize = 16

// RequestType selects the direction of a transfer.
type RequestType uint32

// The request types understood by block transports.
const (
	RequestRead  RequestType = 0
	RequestWrite RequestType = 1
)

// RequestHeader is the fixed header that precedes every request handed to a
// transport. It is encoded little-endian.
type RequestHeader struct {
	Type     uint32 `struc:"uint32,little"`
	Reserved uint32 `struc:"uint32,little"`
	Sector   uint64 `struc:"uint64,little"`
}

// Status is the completion status reported by a transport for a request.
type Status uint8

// The completion statuses reported by transports.
const (
	StatusOK          Status = 0
	StatusIOError     Status = 1
	StatusUnsupported Status = 2
)

// EncodeHeader packs a request header into dst, which must be at least
// HeaderSize bytes long.
func EncodeHeader(dst []byte, typ RequestType, sector uint64) error {
	var buf bytes.Buffer
	hdr := RequestHeader{Type: uint32(typ), Sector: sector}
	if err := struc.PackWithOrder(&buf, &hdr, binary.LittleEndian); err != nil {
		return errors.Wrap(err, "struc.Pack() failed")
	}

	if len(dst) < buf.Len() {
		return errors.Errorf("header buffer too small: %d < %d", len(dst), buf.Len())
	}
	copy(dst, buf.Bytes())
	return nil
}

// DecodeHeader unpacks a request header produced by EncodeHeader.
func DecodeHeader(src []byte) (RequestHeader, error) {
	var hdr RequestHeader
	if len(src) < HeaderSize {
		return hdr, errors.Errorf("short request header: %d bytes", len(src))
	}

	err := struc.UnpackWithOrder(bytes.NewReader(src[:HeaderSize]), &hdr, binary.LittleEndian)
	return hdr, errors.Wrap(err, "struc.Unpack() failed")
}
