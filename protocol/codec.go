package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrEmptyPayload = errors.New("empty payload")
	ErrUnknownCodec = errors.New("unknown codec")
)

// Codec 下行帧编码方式
type Codec string

const (
	CodecJSON    Codec = "json"
	CodecMsgpack Codec = "msgpack"
)

// ParseCodec 解析查询参数中的编码名，空串为 JSON
func ParseCodec(s string) (Codec, error) {
	switch Codec(s) {
	case "", CodecJSON:
		return CodecJSON, nil
	case CodecMsgpack:
		return CodecMsgpack, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCodec, s)
	}
}

// Binary 是否使用二进制帧
func (c Codec) Binary() bool { return c == CodecMsgpack }

// Encode 按编码方式生成一帧
func (c Codec) Encode(t string, payload any) ([]byte, error) {
	if c.Binary() {
		return EncodeBinary(t, payload)
	}
	return Encode(t, payload)
}

// Encode JSON 信封
func Encode(t string, payload any) ([]byte, error) {
	if t == "" {
		return nil, fmt.Errorf("encode envelope: empty type")
	}
	if payload == nil {
		return nil, fmt.Errorf("encode %q: nil payload", t)
	}
	pb, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", t, err)
	}
	return json.Marshal(Envelope{T: t, P: pb})
}

func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, fmt.Errorf("decode envelope: %w", ErrEmptyPayload)
	}
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return e, nil
}

func DecodePayload[T any](env Envelope) (T, error) {
	var out T
	if len(env.P) == 0 {
		return out, fmt.Errorf("decode %q: %w", env.T, ErrEmptyPayload)
	}
	err := json.Unmarshal(env.P, &out)
	return out, err
}

// binaryEnvelope msgpack 帧外层
type binaryEnvelope struct {
	T string             `msgpack:"t"`
	P msgpack.RawMessage `msgpack:"p"`
}

// EncodeBinary msgpack 信封
func EncodeBinary(t string, payload any) ([]byte, error) {
	if t == "" {
		return nil, fmt.Errorf("encode envelope: empty type")
	}
	pb, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", t, err)
	}
	return msgpack.Marshal(&binaryEnvelope{T: t, P: pb})
}

// DecodeFrame 解码任意一帧；binary=true 时按 msgpack 处理。返回类型与载荷解码函数。
func DecodeFrame(b []byte, binary bool) (string, func(v any) error, error) {
	if len(b) == 0 {
		return "", nil, fmt.Errorf("decode frame: %w", ErrEmptyPayload)
	}
	if !binary {
		env, err := DecodeEnvelope(b)
		if err != nil {
			return "", nil, err
		}
		return env.T, func(v any) error { return json.Unmarshal(env.P, v) }, nil
	}
	var env binaryEnvelope
	if err := msgpack.Unmarshal(b, &env); err != nil {
		return "", nil, fmt.Errorf("decode frame: %w", err)
	}
	return env.T, func(v any) error { return msgpack.Unmarshal(env.P, v) }, nil
}
