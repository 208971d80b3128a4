package bitstream

import (
	"bytes"
	"testing"
)

func TestBuildFlvVideoTagKeyframe(t *testing.T) {
	payload := []byte{0xAA, 0xBB}
	tag := BuildFlvVideoTag(payload, true, false, 0)
	want := []byte{0x17, 0x01, 0x00, 0x00, 0x00, 0xAA, 0xBB}
	if !bytes.Equal(tag, want) {
		t.Fatalf("got %x want %x", tag, want)
	}
}

func TestBuildFlvVideoTagInterframeSequenceHeader(t *testing.T) {
	payload := []byte{0x01}
	tag := BuildFlvVideoTag(payload, false, true, 5)
	want := []byte{0x27, 0x00, 0x00, 0x00, 0x05, 0x01}
	if !bytes.Equal(tag, want) {
		t.Fatalf("got %x want %x", tag, want)
	}
}

func TestBuildFlvAudioTag(t *testing.T) {
	payload := []byte{0x21, 0x22}
	if got, want := BuildFlvAudioTag(payload, false), []byte{0xAF, 0x01, 0x21, 0x22}; !bytes.Equal(got, want) {
		t.Fatalf("got %x want %x", got, want)
	}
	if got, want := BuildFlvAudioTag(payload, true), []byte{0xAF, 0x00, 0x21, 0x22}; !bytes.Equal(got, want) {
		t.Fatalf("got %x want %x", got, want)
	}
}

func TestVideoTagToWirePacket(t *testing.T) {
	tag := []byte{0x17, 0x01, 0, 0, 0}
	pkt := VideoTagToWirePacket(tag, 1000, true, false)
	if pkt.TimestampMs != 1000 || !pkt.IsKeyframe || pkt.IsSequenceHeader {
		t.Fatalf("unexpected packet: %+v", pkt)
	}
}
