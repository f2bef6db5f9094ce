package protocol

import "encoding/json"

const (
	MsgInput   = "input"
	MsgWelcome = "welcome"
	MsgState   = "state"
)

// Version 协议版本，Welcome 中下发
const Version = 1

// Envelope 文本帧外层：{"t": 类型, "p": 载荷}
type Envelope struct {
	T string          `json:"t"`
	P json.RawMessage `json:"p"`
}
