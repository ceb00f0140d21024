// Package settlement 定义撮合引擎消费的外部结算收口。
// 结算方只承诺一件事：两方之间的原子价值转移；
// 成败是单笔撮合的唯一故障点，失败时整次撮合必须回滚。
package settlement

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Adapter 外部结算适配器接口（消费，不在此实现链上逻辑）
type Adapter interface {
	// Transfer 在 from 与 to 之间原子转移 amount 的 tokenID。
	// 返回非 nil 错误时必须保证转移双方余额均未变化。
	Transfer(from, to common.Address, tokenID string, amount decimal.Decimal) error
}
