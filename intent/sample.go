package intent

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"arenasync/game"
)

// ErrMalformed 输入结构不合法（缺字段 / 类型错误 / 越界）
var ErrMalformed = errors.New("malformed input sample")

// Sample 一次输入采样：意图 + 客户端采集时间戳 + 摇杆是否激活
type Sample struct {
	Intent     game.Vec2
	AxisActive bool
	CapturedAt int64 // 客户端毫秒时间戳
	Seq        uint32

	// ReceivedAt 由服务端入口在接收时写入，用于判断是否过期
	ReceivedAt time.Time
}

// Normalized 归一化后的意图（模长 ≤ 1）
func (s Sample) Normalized() game.Vec2 {
	return game.ClampIntent(s.Intent)
}

// Validate 检查已解码的采样是否可用
func Validate(s Sample) error {
	if !s.Intent.Finite() {
		return fmt.Errorf("%w: non-finite intent", ErrMalformed)
	}
	if math.Abs(s.Intent.X) > game.AxisTolerance || math.Abs(s.Intent.Y) > game.AxisTolerance {
		return fmt.Errorf("%w: axis out of range (%.3f, %.3f)", ErrMalformed, s.Intent.X, s.Intent.Y)
	}
	if s.CapturedAt < 0 {
		return fmt.Errorf("%w: negative timestamp", ErrMalformed)
	}
	return nil
}

var directionKeys = [...]string{"up", "down", "left", "right"}

// Parse 对客户端原始 JSON 做结构校验后转换为 Sample。
// 字段: ts(number) axis(bool)；axis=true 时需要 ax/ay(number)，否则需要 up/down/left/right(bool)。
func Parse(raw []byte) (Sample, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Sample{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if fields == nil {
		return Sample{}, fmt.Errorf("%w: empty object", ErrMalformed)
	}

	ts, ok := number(fields, "ts")
	if !ok || ts != math.Trunc(ts) {
		return Sample{}, fmt.Errorf("%w: ts", ErrMalformed)
	}
	axis, ok := fields["axis"].(bool)
	if !ok {
		return Sample{}, fmt.Errorf("%w: axis flag", ErrMalformed)
	}

	s := Sample{AxisActive: axis, CapturedAt: int64(ts)}

	if v, present := fields["seq"]; present {
		seq, isNum := v.(float64)
		if !isNum || seq < 0 || seq > math.MaxUint32 || seq != math.Trunc(seq) {
			return Sample{}, fmt.Errorf("%w: seq", ErrMalformed)
		}
		s.Seq = uint32(seq)
	}

	if axis {
		ax, okX := number(fields, "ax")
		ay, okY := number(fields, "ay")
		if !okX || !okY {
			return Sample{}, fmt.Errorf("%w: axis values", ErrMalformed)
		}
		s.Intent = game.Vec2{X: ax, Y: ay}
	} else {
		var keys [len(directionKeys)]bool
		for i, k := range directionKeys {
			b, isBool := fields[k].(bool)
			if !isBool {
				return Sample{}, fmt.Errorf("%w: %s", ErrMalformed, k)
			}
			keys[i] = b
		}
		s.Intent = KeyState{Up: keys[0], Down: keys[1], Left: keys[2], Right: keys[3]}.Vector()
	}

	if err := Validate(s); err != nil {
		return Sample{}, err
	}
	// 容忍区间 [1, 1.1] 内的值压回 [-1, 1]
	s.Intent = game.Vec2{X: clampUnit(s.Intent.X), Y: clampUnit(s.Intent.Y)}
	return s, nil
}

func number(fields map[string]any, key string) (float64, bool) {
	f, ok := fields[key].(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
