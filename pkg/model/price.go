package model

import (
	"fmt"
	"time"
)

// ReferencePrice 计价资产的最新参考价格
type ReferencePrice struct {
	Value      float64   `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
}

// Age 返回价格相对 now 的时长
func (p ReferencePrice) Age(now time.Time) time.Duration {
	return now.Sub(p.ObservedAt)
}

// ParsePrice 解析价格字段，要求为有限正数
func ParsePrice(v any) (float64, error) {
	if v == nil {
		return 0, fmt.Errorf("价格缺失")
	}
	f, err := toFloat64(v)
	if err != nil {
		return 0, err
	}
	if f <= 0 {
		return 0, fmt.Errorf("价格必须为正数: %v", f)
	}
	return f, nil
}
