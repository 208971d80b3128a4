package rpc

import (
	"fmt"

	"github.com/alxayo/go-broadcaster/internal/errors"
	"github.com/alxayo/go-broadcaster/internal/rtmp/amf"
	"github.com/alxayo/go-broadcaster/internal/rtmp/chunk"
)

// BuildPublishRequest encodes a "publish" command message to be sent on the
// message stream allocated by createStream.
// AMF0 sequence: ["publish", 0, null, publishingName, publishingType].
// publishingType is conventionally "live" for a broadcaster.
func BuildPublishRequest(publishingName, publishingType string, messageStreamID uint32) (*chunk.Message, error) {
	if publishingName == "" {
		return nil, errors.NewProtocolError("publish.request", fmt.Errorf("publishingName required"))
	}
	switch publishingType {
	case "live", "record", "append":
	default:
		return nil, errors.NewProtocolError("publish.request", fmt.Errorf("unsupported publishingType %q", publishingType))
	}

	payload, err := amf.EncodeAll("publish", 0.0, nil, publishingName, publishingType)
	if err != nil {
		return nil, errors.NewProtocolError("publish.request.encode", fmt.Errorf("amf encode: %w", err))
	}

	return &chunk.Message{
		TypeID:          commandMessageAMF0TypeID,
		MessageStreamID: messageStreamID,
		Payload:         payload,
		MessageLength:   uint32(len(payload)),
	}, nil
}

// PublishStatus is the parsed "onStatus" event the server sends in reply to
// publish, carrying a status code such as "NetStream.Publish.Start" or
// "NetStream.Publish.BadName".
type PublishStatus struct {
	Code        string
	Level       string // "status" | "error" | "warning"
	Description string
}

// ParsePublishStatus parses an "onStatus" command message.
// Expected AMF0 sequence: ["onStatus", 0, null, infoObject].
func ParsePublishStatus(msg *chunk.Message) (*PublishStatus, error) {
	if msg == nil {
		return nil, errors.NewProtocolError("publish.status.parse", fmt.Errorf("nil message"))
	}
	if msg.TypeID != commandMessageAMF0TypeID {
		return nil, errors.NewProtocolError("publish.status.parse", fmt.Errorf("unexpected message type %d", msg.TypeID))
	}

	vals, err := amf.DecodeAll(msg.Payload)
	if err != nil {
		return nil, errors.NewProtocolError("publish.status.parse.decode", err)
	}
	if len(vals) < 1 {
		return nil, errors.NewProtocolError("publish.status.parse", fmt.Errorf("empty command payload"))
	}
	name, ok := vals[0].(string)
	if !ok || name != "onStatus" {
		return nil, errors.NewProtocolError("publish.status.parse", fmt.Errorf("first value must be string 'onStatus'"))
	}

	status := &PublishStatus{}
	for _, v := range vals[1:] {
		obj, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		if code, ok := obj["code"].(string); ok {
			status.Code = code
		}
		if level, ok := obj["level"].(string); ok {
			status.Level = level
		}
		if desc, ok := obj["description"].(string); ok {
			status.Description = desc
		}
	}
	if status.Code == "" {
		return nil, errors.NewProtocolError("publish.status.parse", fmt.Errorf("missing info object with code"))
	}
	return status, nil
}

// IsPublishStarted reports whether the status reflects a successful publish.
func (s *PublishStatus) IsPublishStarted() bool {
	return s != nil && s.Code == "NetStream.Publish.Start"
}
