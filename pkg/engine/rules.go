package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"TokenRadar/pkg/model"
)

// 规则名，按评估顺序排列
const (
	RuleProtocol       = "protocol"
	RuleMinAge         = "min_age"
	RuleBundlers       = "bundlers"
	RulePriceAvailable = "price_available"
	RuleMinVolume      = "min_volume"
	RuleMinMarketCap   = "min_market_cap"
	RuleMinHolders     = "min_holders"
)

// PriceReader 参考价格读取接口，价格缺失或过期时 ok 为 false
type PriceReader interface {
	Get() (float64, bool)
}

// Policy 准入阈值与建仓参数
type Policy struct {
	AllowedProtocols   []string
	MinAge             time.Duration
	MaxBundlersPercent float64
	MinVolumeUSD       float64
	MinMarketCapUSD    float64
	MinHolders         int64

	BuyAmountUSD          float64
	StopLossPct           float64
	TakeProfitElevatedPct float64
	TakeProfitBasePct     float64
	// AgeTierBoundary 小于该存活时长使用较高止盈
	AgeTierBoundary time.Duration
}

// evaluation 单个候选在规则链中的中间状态
type evaluation struct {
	cand   model.Candidate
	now    time.Time
	prices PriceReader

	price        decimal.Decimal
	volumeUSD    decimal.Decimal
	marketCapUSD decimal.Decimal
}

// rule 返回非空 reason 表示拒绝，返回 error 表示跳过
type rule struct {
	name  string
	check func(ev *evaluation) (reason string, err error)
}

// Chain 有序短路规则链
type Chain struct {
	policy  Policy
	allowed map[string]struct{}
	rules   []rule

	minVolume    decimal.Decimal
	minMarketCap decimal.Decimal
}

// NewChain 按固定顺序构建规则链
func NewChain(policy Policy) *Chain {
	c := &Chain{
		policy:       policy,
		allowed:      make(map[string]struct{}, len(policy.AllowedProtocols)),
		minVolume:    decimal.NewFromFloat(policy.MinVolumeUSD),
		minMarketCap: decimal.NewFromFloat(policy.MinMarketCapUSD),
	}
	for _, p := range policy.AllowedProtocols {
		c.allowed[p] = struct{}{}
	}

	c.rules = []rule{
		{RuleProtocol, c.checkProtocol},
		{RuleMinAge, c.checkMinAge},
		{RuleBundlers, c.checkBundlers},
		{RulePriceAvailable, c.checkPrice},
		{RuleMinVolume, c.checkVolume},
		{RuleMinMarketCap, c.checkMarketCap},
		{RuleMinHolders, c.checkHolders},
	}
	return c
}

// Policy 返回规则链使用的策略
func (c *Chain) Policy() Policy {
	return c.policy
}

// Evaluate 依次评估规则，遇到第一条失败即停止
func (c *Chain) Evaluate(cand model.Candidate, prices PriceReader, now time.Time) model.ScreeningVerdict {
	ev := &evaluation{cand: cand, now: now, prices: prices}
	verdict := model.ScreeningVerdict{Candidate: cand}

	for _, r := range c.rules {
		reason, err := r.check(ev)
		if err != nil {
			verdict.Outcome = model.OutcomeSkipped
			verdict.FailedRule = r.name
			verdict.Reason = err.Error()
			return verdict
		}
		if reason != "" {
			verdict.Outcome = model.OutcomeRejected
			verdict.FailedRule = r.name
			verdict.Reason = reason
			verdict.PriceUsed = ev.price.InexactFloat64()
			return verdict
		}
	}

	verdict.Outcome = model.OutcomeApproved
	verdict.Approved = true
	verdict.PriceUsed = ev.price.InexactFloat64()
	verdict.VolumeUSD = ev.volumeUSD.InexactFloat64()
	verdict.MarketCapUSD = ev.marketCapUSD.InexactFloat64()
	verdict.BuyAmountUSD = c.policy.BuyAmountUSD
	verdict.StopLossPct = c.policy.StopLossPct
	verdict.TakeProfitPct = c.TakeProfitFor(cand.Age(now))
	return verdict
}

// TakeProfitFor 按存活时长选择止盈档位
func (c *Chain) TakeProfitFor(age time.Duration) float64 {
	if age < c.policy.AgeTierBoundary {
		return c.policy.TakeProfitElevatedPct
	}
	return c.policy.TakeProfitBasePct
}

func (c *Chain) checkProtocol(ev *evaluation) (string, error) {
	if _, ok := c.allowed[ev.cand.Protocol]; !ok {
		return fmt.Sprintf("协议 %q 不在允许列表中", ev.cand.Protocol), nil
	}
	return "", nil
}

func (c *Chain) checkMinAge(ev *evaluation) (string, error) {
	if age := ev.cand.Age(ev.now); age < c.policy.MinAge {
		return fmt.Sprintf("存活时长 %s 小于 %s", age.Round(time.Second), c.policy.MinAge), nil
	}
	return "", nil
}

func (c *Chain) checkBundlers(ev *evaluation) (string, error) {
	if ev.cand.BundlersHoldPercent > c.policy.MaxBundlersPercent {
		return fmt.Sprintf("捆绑持仓 %.2f%% 超过 %.2f%%", ev.cand.BundlersHoldPercent, c.policy.MaxBundlersPercent), nil
	}
	return "", nil
}

func (c *Chain) checkPrice(ev *evaluation) (string, error) {
	price, ok := ev.prices.Get()
	if !ok {
		return "", model.ErrStalePrice
	}
	ev.price = decimal.NewFromFloat(price)
	ev.volumeUSD = decimal.NewFromFloat(ev.cand.VolumeUnits).Mul(ev.price)
	ev.marketCapUSD = decimal.NewFromFloat(ev.cand.MarketCapUnits).Mul(ev.price)
	return "", nil
}

func (c *Chain) checkVolume(ev *evaluation) (string, error) {
	if ev.volumeUSD.LessThan(c.minVolume) {
		return fmt.Sprintf("成交额 $%s 低于 $%s", ev.volumeUSD.StringFixed(2), c.minVolume.StringFixed(2)), nil
	}
	return "", nil
}

func (c *Chain) checkMarketCap(ev *evaluation) (string, error) {
	if ev.marketCapUSD.LessThan(c.minMarketCap) {
		return fmt.Sprintf("市值 $%s 低于 $%s", ev.marketCapUSD.StringFixed(2), c.minMarketCap.StringFixed(2)), nil
	}
	return "", nil
}

func (c *Chain) checkHolders(ev *evaluation) (string, error) {
	if ev.cand.NumHolders < c.policy.MinHolders {
		return fmt.Sprintf("持有人数 %d 低于 %d", ev.cand.NumHolders, c.policy.MinHolders), nil
	}
	return "", nil
}
