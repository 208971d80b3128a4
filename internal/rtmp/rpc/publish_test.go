package rpc

import (
	"testing"

	"github.com/alxayo/go-broadcaster/internal/rtmp/amf"
	"github.com/alxayo/go-broadcaster/internal/rtmp/chunk"
)

func buildPublishMessage(payload []byte) *chunk.Message {
	return &chunk.Message{TypeID: 20, Payload: payload}
}

func TestBuildPublishRequest_EncodesStructure(t *testing.T) {
	msg, err := BuildPublishRequest("stream1", "live", 1)
	if err != nil {
		t.Fatalf("BuildPublishRequest error: %v", err)
	}
	if msg.MessageStreamID != 1 {
		t.Fatalf("expected message stream id 1, got %d", msg.MessageStreamID)
	}
	vals, err := amf.DecodeAll(msg.Payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(vals) != 5 {
		t.Fatalf("expected 5 AMF values, got %d", len(vals))
	}
	if name, ok := vals[3].(string); !ok || name != "stream1" {
		t.Fatalf("publishingName mismatch: %#v", vals[3])
	}
}

func TestBuildPublishRequest_RejectsUnknownType(t *testing.T) {
	if _, err := BuildPublishRequest("stream1", "bogus", 1); err == nil {
		t.Fatalf("expected error for unsupported publishingType")
	}
}

func TestParsePublishStatus_Start(t *testing.T) {
	payload, err := amf.EncodeAll(
		"onStatus", 0.0, nil,
		map[string]interface{}{"level": "status", "code": "NetStream.Publish.Start", "description": "started"},
	)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	status, err := ParsePublishStatus(buildPublishMessage(payload))
	if err != nil {
		t.Fatalf("ParsePublishStatus error: %v", err)
	}
	if !status.IsPublishStarted() {
		t.Fatalf("expected publish-started status, got %+v", status)
	}
}

func TestParsePublishStatus_BadName(t *testing.T) {
	payload, err := amf.EncodeAll(
		"onStatus", 0.0, nil,
		map[string]interface{}{"level": "error", "code": "NetStream.Publish.BadName", "description": "in use"},
	)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	status, err := ParsePublishStatus(buildPublishMessage(payload))
	if err != nil {
		t.Fatalf("ParsePublishStatus error: %v", err)
	}
	if status.IsPublishStarted() {
		t.Fatalf("expected non-start status, got %+v", status)
	}
}

func TestParsePublishStatus_WrongCommandName(t *testing.T) {
	payload, err := amf.EncodeAll("_result", 0.0)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := ParsePublishStatus(buildPublishMessage(payload)); err == nil {
		t.Fatalf("expected error for non-onStatus command")
	}
}
