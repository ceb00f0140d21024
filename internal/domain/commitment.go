package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Commitment 承诺领域模型
// 承诺是订单私密字段的隐藏摘要。摘要在 consumed=false 期间全局唯一；
// 一旦被消费（揭示或取消），同一摘要永远不可复用（防止重放已取消的订单）。
type Commitment struct {
	ID           string          // 承诺 ID
	Digest       common.Hash     // 256 位承诺摘要
	Owner        common.Address  // 所有者账户
	EscrowAmount decimal.Decimal // 托管金额（可为零）
	CreatedAt    time.Time       // 创建时间（揭示延迟从此刻起算）
	Consumed     bool            // 是否已消费（揭示或取消）
}

// RevealTime 返回最早可揭示时刻（边界含）
func (c *Commitment) RevealTime(delay time.Duration) time.Time {
	return c.CreatedAt.Add(delay)
}

// RevealDeadline 返回最晚可揭示时刻（边界含）。
// 揭示窗口有界，避免托管资金被无限期锁定。
func (c *Commitment) RevealDeadline(delay, window time.Duration) time.Time {
	return c.CreatedAt.Add(delay).Add(window)
}

// OrderFields 揭示时提交的订单私密字段。
// 摘要覆盖 (salt, amount, price, side, tokenId, owner)；
// 作废符只由 (salt, owner) 导出，与具体承诺无关。
type OrderFields struct {
	Salt          common.Hash     `json:"salt"`           // 盲化盐值
	TokenID       string          `json:"token_id"`       // 标的资产
	Side          Side            `json:"side"`           // 方向
	Type          OrderType       `json:"type"`           // 订单类型
	Amount        decimal.Decimal `json:"amount"`         // 总量（必须为正）
	LimitPrice    decimal.Decimal `json:"limit_price"`    // 限价（Market 撮合时忽略，但承诺中必须非零）
	MinFillAmount decimal.Decimal `json:"min_fill"`       // 单笔最小成交量（防尘埃，可为零）
	VisibleSlice  decimal.Decimal `json:"visible_slice"`  // Iceberg 可见切片大小
	Expiry        time.Time       `json:"expiry"`         // 订单过期时间
	Public        bool            `json:"public"`         // 揭示后是否公开订单明细
}
