package protocol

import "arenasync/intent"

// InputMessage 客户端 -> 服务端的输入载荷。
// 服务端不直接反序列化到这个结构，而是用 intent.Parse 做逐字段的结构校验。
type InputMessage struct {
	Up    bool    `json:"up"`
	Down  bool    `json:"down"`
	Left  bool    `json:"left"`
	Right bool    `json:"right"`
	AX    float64 `json:"ax"`
	AY    float64 `json:"ay"`
	Axis  bool    `json:"axis"`
	TS    int64   `json:"ts"`
	Seq   uint32  `json:"seq"`
}

// InputFromSample 客户端把采样编码为线上格式（统一走摇杆字段）
func InputFromSample(s intent.Sample) InputMessage {
	return InputMessage{
		AX:   s.Intent.X,
		AY:   s.Intent.Y,
		Axis: true,
		TS:   s.CapturedAt,
		Seq:  s.Seq,
	}
}
