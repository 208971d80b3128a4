package bitstream

import (
	"bytes"
	"testing"
)

func TestBuildAvcDecoderConfig(t *testing.T) {
	sps := []byte{0x67, 0x42, 0x00, 0x1F, 0xAA, 0xBB}
	pps := []byte{0x68, 0xCE, 0x3C}

	cfg, err := BuildAvcDecoderConfig(sps, pps)
	if err != nil {
		t.Fatalf("BuildAvcDecoderConfig: %v", err)
	}

	want := []byte{0x01, 0x42, 0x00, 0x1F, 0xFF, 0xE1}
	want = append(want, 0x00, byte(len(sps)))
	want = append(want, sps...)
	want = append(want, 0x01, 0x00, byte(len(pps)))
	want = append(want, pps...)

	if !bytes.Equal(cfg.Bytes, want) {
		t.Fatalf("config mismatch:\ngot  %x\nwant %x", cfg.Bytes, want)
	}
}

func TestBuildAvcDecoderConfigRejectsShortSPS(t *testing.T) {
	if _, err := BuildAvcDecoderConfig([]byte{0x67, 0x42}, []byte{0x68}); err == nil {
		t.Fatal("expected error for sps shorter than 4 bytes")
	}
}

func TestBuildAudioSpecificConfig(t *testing.T) {
	b, err := BuildAudioSpecificConfig(48000, 2)
	if err != nil {
		t.Fatalf("BuildAudioSpecificConfig: %v", err)
	}
	if len(b) == 0 {
		t.Fatal("expected nonempty AudioSpecificConfig bytes")
	}
}
