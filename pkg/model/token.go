package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/mr-tron/base58"
)

// 趋势源原始记录中的字段名
const (
	FieldTokenAddress        = "tokenAddress"
	FieldPairAddress         = "pairAddress"
	FieldTokenName           = "tokenName"
	FieldTokenTicker         = "tokenTicker"
	FieldProtocol            = "protocol"
	FieldVolumeSol           = "volumeSol"
	FieldMarketCapSol        = "marketCapSol"
	FieldBundlersHoldPercent = "bundlersHoldPercent"
	FieldNumHolders          = "numHolders"
	FieldCreatedAt           = "createdAt"
)

// solanaAddressLen Solana公钥长度
const solanaAddressLen = 32

// RawCandidate 趋势源返回的原始代币记录
type RawCandidate map[string]any

// Candidate 一次筛选周期中的候选代币快照
type Candidate struct {
	Address             string    `json:"tokenAddress"`
	PairID              string    `json:"pairAddress"`
	Name                string    `json:"tokenName"`
	Ticker              string    `json:"tokenTicker"`
	Protocol            string    `json:"protocol"`
	VolumeUnits         float64   `json:"volumeSol"`
	MarketCapUnits      float64   `json:"marketCapSol"`
	BundlersHoldPercent float64   `json:"bundlersHoldPercent"`
	NumHolders          int64     `json:"numHolders"`
	CreatedAt           time.Time `json:"createdAt"`

	// Raw 解析前的原始记录，用于与详情合并
	Raw RawCandidate `json:"-"`
}

// Age 返回代币在 now 时刻的存活时长，创建时间晚于 now 时按0处理
func (c Candidate) Age(now time.Time) time.Duration {
	age := now.Sub(c.CreatedAt)
	if age < 0 {
		return 0
	}
	return age
}

// Label 日志中使用的代币标识
func (c Candidate) Label() string {
	return fmt.Sprintf("%s (%s)", c.Name, c.Ticker)
}

// ParseCandidate 将原始记录解析为候选代币，缺失或非法字段返回 ErrMalformedCandidate
func ParseCandidate(raw RawCandidate) (Candidate, error) {
	if raw == nil {
		return Candidate{}, fmt.Errorf("%w: 空记录", ErrMalformedCandidate)
	}

	var (
		c   = Candidate{Raw: raw}
		err error
	)

	if c.Address, err = addressField(raw, FieldTokenAddress); err != nil {
		return Candidate{}, err
	}
	if c.PairID, err = addressField(raw, FieldPairAddress); err != nil {
		return Candidate{}, err
	}

	c.Name, _ = raw[FieldTokenName].(string)
	c.Ticker, _ = raw[FieldTokenTicker].(string)

	protocol, ok := raw[FieldProtocol].(string)
	if !ok || strings.TrimSpace(protocol) == "" {
		return Candidate{}, malformed(FieldProtocol, "缺失或不是字符串")
	}
	c.Protocol = protocol

	if c.VolumeUnits, err = nonNegativeFloat(raw, FieldVolumeSol); err != nil {
		return Candidate{}, err
	}
	if c.MarketCapUnits, err = nonNegativeFloat(raw, FieldMarketCapSol); err != nil {
		return Candidate{}, err
	}
	if c.BundlersHoldPercent, err = nonNegativeFloat(raw, FieldBundlersHoldPercent); err != nil {
		return Candidate{}, err
	}

	holders, ok := raw[FieldNumHolders]
	if !ok || holders == nil {
		return Candidate{}, malformed(FieldNumHolders, "缺失")
	}
	if c.NumHolders, err = toInt64(holders); err != nil || c.NumHolders < 0 {
		return Candidate{}, malformed(FieldNumHolders, fmt.Sprintf("非法取值 %v", holders))
	}

	created, ok := raw[FieldCreatedAt]
	if !ok || created == nil {
		return Candidate{}, malformed(FieldCreatedAt, "缺失")
	}
	if c.CreatedAt, err = toTime(created); err != nil {
		return Candidate{}, malformed(FieldCreatedAt, err.Error())
	}

	return c, nil
}

func addressField(raw RawCandidate, key string) (string, error) {
	s, ok := raw[key].(string)
	if !ok || s == "" {
		return "", malformed(key, "缺失或不是字符串")
	}
	decoded, err := base58.Decode(s)
	if err != nil {
		return "", malformed(key, "不是合法的base58地址")
	}
	if len(decoded) != solanaAddressLen {
		return "", malformed(key, fmt.Sprintf("地址长度为 %d 字节", len(decoded)))
	}
	return s, nil
}

func nonNegativeFloat(raw RawCandidate, key string) (float64, error) {
	v, ok := raw[key]
	if !ok || v == nil {
		return 0, malformed(key, "缺失")
	}
	f, err := toFloat64(v)
	if err != nil {
		return 0, malformed(key, err.Error())
	}
	if f < 0 {
		return 0, malformed(key, fmt.Sprintf("负数 %v", f))
	}
	return f, nil
}

func malformed(key, reason string) error {
	return fmt.Errorf("%w: 字段 %s %s", ErrMalformedCandidate, key, reason)
}
