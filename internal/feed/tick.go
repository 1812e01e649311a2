package feed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"

	"github.com/spf13/cast"
)

// Tick 单个代币的一次行情推送
type Tick struct {
	Address  string         `json:"address"`
	Symbol   string         `json:"symbol"`
	Price    float64        `json:"price"`
	Flag     Flag           `json:"lfg"`
	Metadata map[string]any `json:"metadata,omitempty"` // 准入判断使用的附加数据
}

// Valid 地址和价格都有效
func (t Tick) Valid() bool {
	return t.Address != "" && t.Price > 0
}

// Flag 外部信号，推送方可能给出 bool、数字、字符串或 null
type Flag struct {
	Set   bool
	Value bool
}

// True 信号存在且为真
func (f Flag) True() bool {
	return f.Set && f.Value
}

func (f *Flag) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = Flag{}
		return nil
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v, err := cast.ToBoolE(raw)
	if err != nil {
		return err
	}
	*f = Flag{Set: true, Value: v}
	return nil
}

func (f Flag) MarshalJSON() ([]byte, error) {
	if !f.Set {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// Handler 处理一批行情
type Handler func(ctx context.Context, batch []Tick)

// Source 行情来源
type Source interface {
	// Run 持续推送行情直到 ctx 结束
	Run(ctx context.Context, handle Handler) error
}

var errEmptyMessage = errors.New("empty tick message")

// DecodeBatch 解析一条推送消息，支持单个对象、数组以及 {"ticks": [...]} 三种格式
func DecodeBatch(data []byte) ([]Tick, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errEmptyMessage
	}
	switch data[0] {
	case '[':
		var batch []Tick
		if err := json.Unmarshal(data, &batch); err != nil {
			return nil, err
		}
		return batch, nil
	default:
		var envelope struct {
			Ticks []Tick `json:"ticks"`
		}
		if err := json.Unmarshal(data, &envelope); err == nil && envelope.Ticks != nil {
			return envelope.Ticks, nil
		}
		var tick Tick
		if err := json.Unmarshal(data, &tick); err != nil {
			return nil, err
		}
		return []Tick{tick}, nil
	}
}
