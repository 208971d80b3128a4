package encoder

import (
	"errors"

	astiav "github.com/asticode/go-astiav"
)

// errIsAgainOrEOF reports whether err is FFmpeg's "try again"/"end of
// stream" sentinel from ReceivePacket/ReceiveFrame, the normal "nothing
// buffered yet" outcome rather than a real failure.
func errIsAgainOrEOF(err error) bool {
	return errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof)
}
