package docstore

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// Frame types carried on a listener websocket.
const (
	FrameSnapshot = "snapshot"
	FrameError    = "error"
)

// Frame is one binary websocket message of the listener protocol.
type Frame struct {
	Type      string     `cbor:"type"`
	Documents []Document `cbor:"documents,omitempty"`
	Error     string     `cbor:"error,omitempty"`
}

var (
	frameEnc cbor.EncMode
	frameDec cbor.DecMode
)

func init() {
	var err error
	frameEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	// nested objects decode as map[string]any, matching JSON-sourced documents
	frameDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// EncodeFrame serializes a frame to CBOR.
func EncodeFrame(f Frame) ([]byte, error) {
	return frameEnc.Marshal(f)
}

// DecodeFrame parses a CBOR frame.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := frameDec.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if f.Type != FrameSnapshot && f.Type != FrameError {
		return Frame{}, fmt.Errorf("decode frame: unknown type %q", f.Type)
	}
	return f, nil
}
