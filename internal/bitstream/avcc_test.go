package bitstream

import (
	"bytes"
	"testing"

	"github.com/alxayo/go-broadcaster/internal/media"
)

func TestNalsToAVCC(t *testing.T) {
	nals := []media.NalUnit{
		{Payload: []byte{0x65, 0x01, 0x02}},
		{Payload: []byte{0x41, 0xAA}},
	}
	got := NalsToAVCC(nals)
	want := []byte{
		0x00, 0x00, 0x00, 0x03, 0x65, 0x01, 0x02,
		0x00, 0x00, 0x00, 0x02, 0x41, 0xAA,
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("NalsToAVCC mismatch:\ngot  %x\nwant %x", got, want)
	}
}

func TestNalsToAVCCEmpty(t *testing.T) {
	if got := NalsToAVCC(nil); len(got) != 0 {
		t.Fatalf("expected empty output for no NALs, got %x", got)
	}
}
