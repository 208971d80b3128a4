package bitstream

import (
	"bytes"
	"testing"

	"github.com/alxayo/go-broadcaster/internal/media"
)

func TestParseAnnexB(t *testing.T) {
	data := []byte{
		0xAA, 0xBB, // junk before first start code, ignored
		0x00, 0x00, 0x00, 0x01, 0x67, 0x01, 0x02, // SPS (type 7)
		0x00, 0x00, 0x01, 0x68, 0x03, // PPS (type 8), 3-byte start code
		0x00, 0x00, 0x00, 0x01, 0x65, 0x09, 0x0A, // IDR slice (type 5), runs to EOF
	}

	nals := ParseAnnexB(data)
	if len(nals) != 3 {
		t.Fatalf("expected 3 NALs, got %d: %+v", len(nals), nals)
	}
	if nals[0].Type != media.NalUnitSPS || !bytes.Equal(nals[0].Payload, []byte{0x67, 0x01, 0x02}) {
		t.Errorf("unexpected SPS nal: %+v", nals[0])
	}
	if nals[1].Type != media.NalUnitPPS || !bytes.Equal(nals[1].Payload, []byte{0x68, 0x03}) {
		t.Errorf("unexpected PPS nal: %+v", nals[1])
	}
	if nals[2].Type != media.NalUnitIdrSlice || !bytes.Equal(nals[2].Payload, []byte{0x65, 0x09, 0x0A}) {
		t.Errorf("unexpected IDR nal: %+v", nals[2])
	}
}

func TestParseAnnexBNoStartCode(t *testing.T) {
	if nals := ParseAnnexB([]byte{0x01, 0x02, 0x03}); nals != nil {
		t.Fatalf("expected nil for input with no start code, got %+v", nals)
	}
}

func TestFilterParameterSets(t *testing.T) {
	nals := []media.NalUnit{
		{Type: media.NalUnitSPS, Payload: []byte{1}},
		{Type: media.NalUnitPPS, Payload: []byte{2}},
		{Type: media.NalUnitAUD, Payload: []byte{3}},
		{Type: media.NalUnitIdrSlice, Payload: []byte{4}},
		{Type: media.NalUnitNonIdrSlice, Payload: []byte{5}},
	}
	filtered := FilterParameterSets(nals)
	if len(filtered) != 2 {
		t.Fatalf("expected 2 NALs after filtering, got %d: %+v", len(filtered), filtered)
	}
	if filtered[0].Type != media.NalUnitIdrSlice || filtered[1].Type != media.NalUnitNonIdrSlice {
		t.Errorf("unexpected filtered order: %+v", filtered)
	}
}

func TestFirstParameterSet(t *testing.T) {
	nals := []media.NalUnit{
		{Type: media.NalUnitSPS, Payload: []byte{0x67, 0x42, 0x00, 0x1F}},
		{Type: media.NalUnitPPS, Payload: []byte{0x68, 0xCE}},
	}
	sps, err := FirstParameterSet(nals, media.NalUnitSPS)
	if err != nil || !bytes.Equal(sps, nals[0].Payload) {
		t.Fatalf("unexpected SPS lookup: sps=%v err=%v", sps, err)
	}
	if _, err := FirstParameterSet(nals, media.NalUnitAUD); err == nil {
		t.Fatal("expected error when no AUD present")
	}
}
