// Package bitstream implements the broadcaster's pure, deterministic
// Annex-B/AVCC/FLV adapters (spec §4.C1): scanning Annex-B NAL streams,
// stripping parameter-set NALs from data tags, building the AVC decoder
// configuration record, and framing video/audio payloads as FLV tags.
package bitstream

import (
	rerrors "github.com/alxayo/go-broadcaster/internal/errors"
	"github.com/alxayo/go-broadcaster/internal/media"
)

// ParseAnnexB scans an Annex-B byte stream for start codes (00 00 01 or
// 00 00 00 01) and returns one NalUnit per NAL found between them. Bytes
// before the first start code are ignored; the final NAL runs to the end
// of input; empty payloads are dropped.
func ParseAnnexB(data []byte) []media.NalUnit {
	starts := findStartCodes(data)
	if len(starts) == 0 {
		return nil
	}

	var nals []media.NalUnit
	for i, s := range starts {
		payloadStart := s.offset + s.length
		payloadEnd := len(data)
		if i+1 < len(starts) {
			payloadEnd = starts[i+1].offset
		}
		if payloadStart >= payloadEnd {
			continue
		}
		payload := data[payloadStart:payloadEnd]
		nals = append(nals, media.NalUnit{
			Type:    nalUnitType(payload[0]),
			Payload: payload,
		})
	}
	return nals
}

type startCode struct {
	offset int
	length int // 3 or 4
}

// findStartCodes locates every Annex-B start code in data, preferring the
// 4-byte form when both a 3- and 4-byte prefix match at the same offset.
func findStartCodes(data []byte) []startCode {
	var codes []startCode
	for i := 0; i+2 < len(data); i++ {
		if data[i] != 0x00 || data[i+1] != 0x00 {
			continue
		}
		if data[i+2] == 0x01 {
			codes = append(codes, startCode{offset: i, length: 3})
			i += 2
			continue
		}
		if i+3 < len(data) && data[i+2] == 0x00 && data[i+3] == 0x01 {
			codes = append(codes, startCode{offset: i, length: 4})
			i += 3
		}
	}
	return codes
}

func nalUnitType(firstByte byte) media.NalUnitType {
	switch firstByte & 0x1F {
	case 1:
		return media.NalUnitNonIdrSlice
	case 5:
		return media.NalUnitIdrSlice
	case 6:
		return media.NalUnitSEI
	case 7:
		return media.NalUnitSPS
	case 8:
		return media.NalUnitPPS
	case 9:
		return media.NalUnitAUD
	default:
		return media.NalUnitOther
	}
}

// FilterParameterSets removes SPS, PPS, and AUD NALs, which belong in the
// sequence header rather than a data tag.
func FilterParameterSets(nals []media.NalUnit) []media.NalUnit {
	out := make([]media.NalUnit, 0, len(nals))
	for _, n := range nals {
		switch n.Type {
		case media.NalUnitSPS, media.NalUnitPPS, media.NalUnitAUD:
			continue
		default:
			out = append(out, n)
		}
	}
	return out
}

// FirstParameterSet returns the payload of the first NAL of the given type,
// or an InvalidInputError if none is present (used to locate SPS/PPS for
// BuildAvcDecoderConfig).
func FirstParameterSet(nals []media.NalUnit, want media.NalUnitType) ([]byte, error) {
	for _, n := range nals {
		if n.Type == want {
			return n.Payload, nil
		}
	}
	return nil, rerrors.NewInvalidInputError("bitstream.first_parameter_set", errNoSuchNal(want))
}

type errNoSuchNal media.NalUnitType

func (e errNoSuchNal) Error() string { return "no NAL unit of requested type found" }
