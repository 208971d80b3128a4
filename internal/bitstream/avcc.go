package bitstream

import (
	"encoding/binary"

	"github.com/alxayo/go-broadcaster/internal/media"
)

// NalsToAVCC serializes NAL units as length-prefixed AVCC records: a 4-byte
// big-endian length followed by the payload, with no Annex-B start codes.
func NalsToAVCC(nals []media.NalUnit) []byte {
	size := 0
	for _, n := range nals {
		size += 4 + len(n.Payload)
	}
	out := make([]byte, 0, size)
	var lenBuf [4]byte
	for _, n := range nals {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(n.Payload)))
		out = append(out, lenBuf[:]...)
		out = append(out, n.Payload...)
	}
	return out
}
