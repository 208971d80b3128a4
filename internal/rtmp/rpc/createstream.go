package rpc

import (
	"fmt"

	"github.com/alxayo/go-broadcaster/internal/errors"
	"github.com/alxayo/go-broadcaster/internal/rtmp/amf"
	"github.com/alxayo/go-broadcaster/internal/rtmp/chunk"
)

// BuildCreateStreamRequest encodes a "createStream" command message.
// AMF0 sequence: ["createStream", transactionID, null].
func BuildCreateStreamRequest(transactionID float64) (*chunk.Message, error) {
	payload, err := amf.EncodeAll("createStream", transactionID, nil)
	if err != nil {
		return nil, errors.NewProtocolError("createstream.request.encode", fmt.Errorf("amf encode: %w", err))
	}
	return &chunk.Message{
		TypeID:          commandMessageAMF0TypeID,
		MessageStreamID: 0,
		Payload:         payload,
		MessageLength:   uint32(len(payload)),
	}, nil
}

// CreateStreamResult is the parsed "_result"/"_error" response to createStream.
type CreateStreamResult struct {
	TransactionID float64
	Accepted      bool
	StreamID      uint32 // only meaningful when Accepted
}

// ParseCreateStreamResult parses the server's response to a createStream
// request. Expected AMF0 sequence on success:
// ["_result", transactionID, null, streamID]
func ParseCreateStreamResult(msg *chunk.Message) (*CreateStreamResult, error) {
	if msg == nil {
		return nil, errors.NewProtocolError("createstream.result.parse", fmt.Errorf("nil message"))
	}
	if msg.TypeID != commandMessageAMF0TypeID {
		return nil, errors.NewProtocolError("createstream.result.parse", fmt.Errorf("unexpected message type %d", msg.TypeID))
	}

	vals, err := amf.DecodeAll(msg.Payload)
	if err != nil {
		return nil, errors.NewProtocolError("createstream.result.parse.decode", err)
	}
	if len(vals) < 2 {
		return nil, errors.NewProtocolError("createstream.result.parse", fmt.Errorf("expected >=2 AMF values, got %d", len(vals)))
	}

	name, ok := vals[0].(string)
	if !ok || (name != "_result" && name != "_error") {
		return nil, errors.NewProtocolError("createstream.result.parse", fmt.Errorf("unexpected command name %#v", vals[0]))
	}
	trx, ok := vals[1].(float64)
	if !ok {
		return nil, errors.NewProtocolError("createstream.result.parse", fmt.Errorf("second value must be number transaction ID"))
	}

	res := &CreateStreamResult{TransactionID: trx, Accepted: name == "_result"}
	if res.Accepted && len(vals) >= 4 {
		if id, ok := vals[3].(float64); ok {
			res.StreamID = uint32(id)
		}
	}
	return res, nil
}
