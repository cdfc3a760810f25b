package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pierrec/lz4/v4"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec turns envelopes into websocket frames and back.
type Codec interface {
	Name() string
	// Binary reports whether frames are sent as binary websocket messages.
	Binary() bool
	Encode(msg Message) ([]byte, error)
	Decode(data []byte) (Message, error)
}

// ErrEncode marks a message the codec could not turn into a frame. The
// message is at fault, not the connection.
var ErrEncode = errors.New("encode frame")

// CodecByName resolves the codec named by configuration or a connection
// query parameter. An empty name selects JSON.
func CodecByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "json":
		return JSONCodec{}, nil
	case "msgpack":
		return MsgpackCodec{CompressThreshold: DefaultCompressThreshold}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// JSONCodec is the text codec browsers and debugging tools use.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

func (JSONCodec) Binary() bool { return false }

func (JSONCodec) Encode(msg Message) ([]byte, error) {
	if msg.Ver == 0 {
		msg.Ver = Version
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("%w: json: %w", ErrEncode, err)
	}
	return data, nil
}

func (JSONCodec) Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("decode json frame: %w", err)
	}
	if err := Validate(&msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// DefaultCompressThreshold is the encoded size above which msgpack frames
// are lz4 compressed. Join snapshots cross it; per-tick updates do not.
const DefaultCompressThreshold = 1024

const (
	frameRaw byte = iota
	frameLZ4
)

// MsgpackCodec encodes envelopes as msgpack using the json field names. Each
// frame starts with one byte telling whether the rest is lz4 compressed.
type MsgpackCodec struct {
	CompressThreshold int
}

func (MsgpackCodec) Name() string { return "msgpack" }

func (MsgpackCodec) Binary() bool { return true }

func (c MsgpackCodec) Encode(msg Message) ([]byte, error) {
	if msg.Ver == 0 {
		msg.Ver = Version
	}
	var raw bytes.Buffer
	enc := msgpack.NewEncoder(&raw)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(msg); err != nil {
		return nil, fmt.Errorf("%w: msgpack: %w", ErrEncode, err)
	}

	if c.CompressThreshold <= 0 || raw.Len() <= c.CompressThreshold {
		return append([]byte{frameRaw}, raw.Bytes()...), nil
	}

	var out bytes.Buffer
	out.WriteByte(frameLZ4)
	zw := lz4.NewWriter(&out)
	if _, err := zw.Write(raw.Bytes()); err != nil {
		return nil, fmt.Errorf("%w: compress: %w", ErrEncode, err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("%w: compress: %w", ErrEncode, err)
	}
	return out.Bytes(), nil
}

func (c MsgpackCodec) Decode(data []byte) (Message, error) {
	if len(data) == 0 {
		return Message{}, fmt.Errorf("decode msgpack frame: empty")
	}
	var body io.Reader
	switch data[0] {
	case frameRaw:
		body = bytes.NewReader(data[1:])
	case frameLZ4:
		body = lz4.NewReader(bytes.NewReader(data[1:]))
	default:
		return Message{}, fmt.Errorf("decode msgpack frame: unknown flag %d", data[0])
	}

	var msg Message
	dec := msgpack.NewDecoder(body)
	dec.SetCustomStructTag("json")
	if err := dec.Decode(&msg); err != nil {
		return Message{}, fmt.Errorf("decode msgpack frame: %w", err)
	}
	if err := Validate(&msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
