package model

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// toFloat64 将接口类型转换为float64
func toFloat64(v interface{}) (float64, error) {
	var f float64
	switch value := v.(type) {
	case float64:
		f = value
	case float32:
		f = float64(value)
	case int:
		f = float64(value)
	case int64:
		f = float64(value)
	case json.Number:
		parsed, err := value.Float64()
		if err != nil {
			return 0, err
		}
		f = parsed
	case string:
		if value == "" {
			return 0, fmt.Errorf("空字符串")
		}
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, err
		}
		f = parsed
	default:
		return 0, fmt.Errorf("无法转换为float64: %v", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("非有限数值: %v", f)
	}
	return f, nil
}

// toInt64 将接口类型转换为int64，带小数部分的数值视为非法
func toInt64(v interface{}) (int64, error) {
	switch value := v.(type) {
	case int64:
		return value, nil
	case int:
		return int64(value), nil
	case json.Number:
		return value.Int64()
	case string:
		if value == "" {
			return 0, fmt.Errorf("空字符串")
		}
		return strconv.ParseInt(value, 10, 64)
	default:
		f, err := toFloat64(v)
		if err != nil {
			return 0, err
		}
		if f != math.Trunc(f) {
			return 0, fmt.Errorf("不是整数: %v", f)
		}
		return int64(f), nil
	}
}

// toTime 支持RFC3339字符串与毫秒时间戳
func toTime(v interface{}) (time.Time, error) {
	if s, ok := v.(string); ok {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, err
		}
		return t, nil
	}
	ms, err := toInt64(v)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}
