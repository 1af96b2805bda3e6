package core

import (
	"encoding/binary"
	"fmt"
)

// Location is the index's value type: the physical address of a record's
// most recent version.
type Location struct {
	SegmentID uint32
	Offset    int64
	Size      uint32
}

// EncodeLocation serializes loc as three unsigned varints (segment id,
// offset, size). Neither the read/write/delete path nor WriteBatch calls
// it.
func EncodeLocation(loc Location) []byte {
	buf := make([]byte, 3*binary.MaxVarintLen64)
	n := binary.PutUvarint(buf, uint64(loc.SegmentID))
	n += binary.PutUvarint(buf[n:], uint64(loc.Offset))
	n += binary.PutUvarint(buf[n:], uint64(loc.Size))
	return buf[:n]
}

// DecodeLocation reverses EncodeLocation.
func DecodeLocation(buf []byte) (Location, error) {
	segID, n := binary.Uvarint(buf)
	if n <= 0 {
		return Location{}, fmt.Errorf("%w: malformed location segment id", ErrCorruptRecord)
	}
	buf = buf[n:]

	offset, n := binary.Uvarint(buf)
	if n <= 0 {
		return Location{}, fmt.Errorf("%w: malformed location offset", ErrCorruptRecord)
	}
	buf = buf[n:]

	size, n := binary.Uvarint(buf)
	if n <= 0 {
		return Location{}, fmt.Errorf("%w: malformed location size", ErrCorruptRecord)
	}

	return Location{SegmentID: uint32(segID), Offset: int64(offset), Size: uint32(size)}, nil
}
