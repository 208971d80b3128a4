package rpc

import (
	"fmt"

	"github.com/alxayo/go-broadcaster/internal/errors"
	"github.com/alxayo/go-broadcaster/internal/rtmp/amf"
	"github.com/alxayo/go-broadcaster/internal/rtmp/chunk"
)

// RTMP message type ID for AMF0 command messages.
const commandMessageAMF0TypeID = 20

// CommandMessageAMF0TypeIDForTest exposes the command message type id (20) to
// other packages that need to build AMF0 command messages without exporting
// the constant itself.
func CommandMessageAMF0TypeIDForTest() uint8 { return commandMessageAMF0TypeID }

// ConnectRequest carries the fields the client sends in a "connect" command
// object. App and TcURL are required; FlashVer falls back to a default
// identifier when empty.
type ConnectRequest struct {
	App            string
	TcURL          string
	FlashVer       string
	ObjectEncoding float64
}

// BuildConnectRequest encodes a "connect" command message (type 20, MSID 0).
// AMF0 sequence: ["connect", transactionID, commandObject].
func BuildConnectRequest(transactionID float64, req ConnectRequest) (*chunk.Message, error) {
	if req.App == "" {
		return nil, errors.NewProtocolError("connect.request", fmt.Errorf("app required"))
	}
	if req.TcURL == "" {
		return nil, errors.NewProtocolError("connect.request", fmt.Errorf("tcUrl required"))
	}
	flashVer := req.FlashVer
	if flashVer == "" {
		flashVer = "FMLE/3.0 (compatible; go-broadcaster)"
	}

	cmdObj := map[string]interface{}{
		"app":            req.App,
		"type":           "nonprivate",
		"flashVer":       flashVer,
		"tcUrl":          req.TcURL,
		"objectEncoding": req.ObjectEncoding,
	}

	payload, err := amf.EncodeAll("connect", transactionID, cmdObj)
	if err != nil {
		return nil, errors.NewProtocolError("connect.request.encode", fmt.Errorf("amf encode: %w", err))
	}

	return &chunk.Message{
		TypeID:          commandMessageAMF0TypeID,
		MessageStreamID: 0,
		Payload:         payload,
		MessageLength:   uint32(len(payload)),
	}, nil
}

// ConnectResult is the parsed outcome of a connect "_result"/"_error" response.
type ConnectResult struct {
	TransactionID float64
	Accepted      bool // true for "_result", false for "_error"
	Code          string
	Description   string
}

// ParseConnectResult parses the server's response to a connect request.
// Expected AMF0 sequence: [name, transactionID, properties(object), information(object)],
// where name is "_result" or "_error" and the last object carries code/description.
func ParseConnectResult(msg *chunk.Message) (*ConnectResult, error) {
	if msg == nil {
		return nil, errors.NewProtocolError("connect.result.parse", fmt.Errorf("nil message"))
	}
	if msg.TypeID != commandMessageAMF0TypeID {
		return nil, errors.NewProtocolError("connect.result.parse", fmt.Errorf("unexpected message type %d", msg.TypeID))
	}

	vals, err := amf.DecodeAll(msg.Payload)
	if err != nil {
		return nil, errors.NewProtocolError("connect.result.parse.decode", err)
	}
	if len(vals) < 2 {
		return nil, errors.NewProtocolError("connect.result.parse", fmt.Errorf("expected >=2 AMF values, got %d", len(vals)))
	}

	name, ok := vals[0].(string)
	if !ok {
		return nil, errors.NewProtocolError("connect.result.parse", fmt.Errorf("first value must be string command name"))
	}
	if name != "_result" && name != "_error" {
		return nil, errors.NewProtocolError("connect.result.parse", fmt.Errorf("unexpected command name %q", name))
	}

	trx, ok := vals[1].(float64)
	if !ok {
		return nil, errors.NewProtocolError("connect.result.parse", fmt.Errorf("second value must be number transaction ID"))
	}

	res := &ConnectResult{TransactionID: trx, Accepted: name == "_result"}

	// The information object (code/description) is conventionally the last
	// value; some servers omit the properties object entirely.
	for _, v := range vals[2:] {
		obj, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		if code, ok := obj["code"].(string); ok {
			res.Code = code
		}
		if desc, ok := obj["description"].(string); ok {
			res.Description = desc
		}
	}

	return res, nil
}
