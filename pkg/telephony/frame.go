// Package telephony implements the duplex media-stream protocol spoken by
// the telephony edge (Twilio Media Streams). Frames are JSON text messages
// tagged by an "event" field; audio payloads are opaque base64 strings that
// are forwarded without decoding.
package telephony

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedFrame wraps parse failures so callers can distinguish a bad
// frame (log and drop) from a transport error (terminate the call).
var ErrMalformedFrame = errors.New("telephony: malformed frame")

// Frame is one inbound media-stream event. The concrete types form a closed
// set; unrecognised event tags decode to [ControlFrame] so new protocol
// events are a logged-and-ignored decision rather than silent fallthrough.
type Frame interface {
	isFrame()
}

// StartFrame announces the beginning of a media stream and carries the
// stream identifier required to address outbound playback frames.
type StartFrame struct {
	StreamSID string
}

// MediaFrame carries one opaque base64-encoded audio payload from the caller.
type MediaFrame struct {
	Payload string
}

// StopFrame signals that the telephony edge intends to end the stream.
type StopFrame struct{}

// ControlFrame is any recognised-but-unhandled protocol event, such as the
// initial "connected" handshake or playback "mark" acknowledgements.
type ControlFrame struct {
	Event string
}

func (StartFrame) isFrame()   {}
func (MediaFrame) isFrame()   {}
func (StopFrame) isFrame()    {}
func (ControlFrame) isFrame() {}

// wireFrame mirrors the JSON layout of inbound media-stream messages.
type wireFrame struct {
	Event string `json:"event"`
	Start *struct {
		StreamSID string `json:"streamSid"`
	} `json:"start,omitempty"`
	Media *struct {
		Payload string `json:"payload"`
	} `json:"media,omitempty"`
}

// outboundMedia is the JSON layout of an outbound playback frame.
type outboundMedia struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
	Media     struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

// ParseFrame decodes one inbound media-stream message into its [Frame]
// variant. Parse failures return an error wrapping [ErrMalformedFrame];
// one malformed message must never terminate the caller's read loop.
func ParseFrame(data []byte) (Frame, error) {
	var w wireFrame
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch w.Event {
	case "start":
		if w.Start == nil {
			return nil, fmt.Errorf("%w: start frame without start body", ErrMalformedFrame)
		}
		return StartFrame{StreamSID: w.Start.StreamSID}, nil

	case "media":
		if w.Media == nil {
			return nil, fmt.Errorf("%w: media frame without media body", ErrMalformedFrame)
		}
		return MediaFrame{Payload: w.Media.Payload}, nil

	case "stop":
		return StopFrame{}, nil

	case "":
		return nil, fmt.Errorf("%w: missing event tag", ErrMalformedFrame)

	default:
		return ControlFrame{Event: w.Event}, nil
	}
}

// EncodeMedia serialises an outbound playback frame addressed to streamSID.
func EncodeMedia(streamSID, payload string) ([]byte, error) {
	out := outboundMedia{Event: "media", StreamSID: streamSID}
	out.Media.Payload = payload
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("telephony: encode media: %w", err)
	}
	return data, nil
}
