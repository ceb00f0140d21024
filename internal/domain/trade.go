package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade 成交记录，一经生成不可变更
type Trade struct {
	ID           string          // 成交 ID
	MakerOrderID string          // 挂单方订单 ID
	TakerOrderID string          // 吃单方订单 ID
	TokenID      string          // 标的资产
	Amount       decimal.Decimal // 成交量
	Price        decimal.Decimal // 成交价（挂单方价格）
	Timestamp    time.Time       // 成交时间
}
