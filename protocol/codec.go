package protocol

import (
	"encoding/json"
	"fmt"
)

// Encode wraps payload in an Envelope for the given outbound event.
func Encode(e Outbound, payload any) ([]byte, error) {
	if e == "" {
		return nil, fmt.Errorf("encode: empty event name")
	}
	if payload == nil {
		payload = Empty{}
	}
	pb, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e, err)
	}
	return json.Marshal(Envelope{Event: string(e), Data: pb})
}

// MustEncode is Encode for payload types that cannot fail to marshal.
func MustEncode(e Outbound, payload any) []byte {
	b, err := Encode(e, payload)
	if err != nil {
		panic(err)
	}
	return b
}

// Frame is a decoded inbound message. Only the field matching Event is set.
type Frame struct {
	Event  Inbound
	Room   RoomRef
	Paddle Paddle
}

// DecodeInbound parses a client frame and rejects events outside the inbound set.
func DecodeInbound(b []byte) (Frame, error) {
	if len(b) == 0 {
		return Frame{}, fmt.Errorf("decode: empty frame")
	}
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Frame{}, fmt.Errorf("decode envelope: %w", err)
	}
	f := Frame{Event: Inbound(env.Event)}
	switch f.Event {
	case InQueueJoin, InQueueCancel:
	case InRoomJoin:
		p, err := DecodePayload[RoomRef](env)
		if err != nil {
			return Frame{}, err
		}
		f.Room = p
	case InPaddle:
		p, err := DecodePayload[Paddle](env)
		if err != nil {
			return Frame{}, err
		}
		f.Paddle = p
	default:
		return Frame{}, fmt.Errorf("decode: unknown event %q", env.Event)
	}
	return f, nil
}

// DecodePayload unmarshals the envelope data into T.
func DecodePayload[T any](env Envelope) (T, error) {
	var out T
	if len(env.Data) == 0 {
		return out, fmt.Errorf("empty payload for event %q", env.Event)
	}
	if err := json.Unmarshal(env.Data, &out); err != nil {
		return out, fmt.Errorf("decode %s payload: %w", env.Event, err)
	}
	return out, nil
}

// DecodeOutbound parses a server frame; used by clients and tests.
func DecodeOutbound(b []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}
