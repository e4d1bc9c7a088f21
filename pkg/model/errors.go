package model

import "errors"

// 筛选流水线的错误分类，调用方使用 errors.Is 判断
var (
	// ErrTransientFetch 外部数据源请求失败（含超时）
	ErrTransientFetch = errors.New("外部数据获取失败")
	// ErrStalePrice 缓存价格缺失或已过期
	ErrStalePrice = errors.New("参考价格不可用")
	// ErrMalformedCandidate 候选代币缺少字段或字段非法
	ErrMalformedCandidate = errors.New("候选代币数据非法")
	// ErrPublish 事件发布失败
	ErrPublish = errors.New("事件发布失败")
)
