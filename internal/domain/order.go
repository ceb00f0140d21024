package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Side 订单方向
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid 方向只允许两个取值
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Opposite 返回对手方向
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderType 订单类型（封闭枚举，撮合策略按类型穷举）
type OrderType string

const (
	OrderTypeMarket  OrderType = "MARKET"  // 立即吃掉对手方最优流动性，残量取消
	OrderTypeLimit   OrderType = "LIMIT"   // 挂单，价格时间优先
	OrderTypeIceberg OrderType = "ICEBERG" // 限价挂单，只暴露可见切片
	OrderTypeVWAP    OrderType = "VWAP"    // 按近期成交量加权分片释放
	OrderTypeTWAP    OrderType = "TWAP"    // 按剩余时间均匀分片释放
)

// Valid 检查订单类型是否为已知取值
func (t OrderType) Valid() bool {
	switch t {
	case OrderTypeMarket, OrderTypeLimit, OrderTypeIceberg, OrderTypeVWAP, OrderTypeTWAP:
		return true
	}
	return false
}

// Resting 该类型是否会在订单簿中挂单
func (t OrderType) Resting() bool {
	return t == OrderTypeLimit || t == OrderTypeIceberg
}

// Sliced 该类型是否由外部 tick 驱动分片
func (t OrderType) Sliced() bool {
	return t == OrderTypeVWAP || t == OrderTypeTWAP
}

// OrderStatus 订单状态
type OrderStatus string

const (
	OrderStatusActive          OrderStatus = "active"
	OrderStatusPartiallyFilled OrderStatus = "partial" // Active 的子状态，可反复进入
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusExpired         OrderStatus = "expired"
)

// Order 揭示后的订单领域模型。
// 订单由撮合引擎独占持有，只能通过成交操作变更；
// Filled/Cancelled/Expired 为终态，终态后不再变更。
type Order struct {
	ID            string          // 订单 ID
	CommitmentID  string          // 来源承诺 ID
	Owner         common.Address  // 所有者账户
	TokenID       string          // 标的资产
	Side          Side            // 方向
	Type          OrderType       // 订单类型
	Amount        decimal.Decimal // 总量
	LimitPrice    decimal.Decimal // 限价（Market 为零值，撮合时忽略）
	MinFillAmount decimal.Decimal // 单笔最小成交量
	Filled        decimal.Decimal // 已成交量（0 <= Filled <= Amount）
	VisibleSlice  decimal.Decimal // Iceberg 可见切片大小
	Expiry        time.Time       // 过期时间
	Public        bool            // 是否公开
	Status        OrderStatus     // 状态
	RevealedAt    time.Time       // 揭示时间（时间优先的排序键）
}

// Remaining 剩余未成交量
func (o *Order) Remaining() decimal.Decimal {
	return o.Amount.Sub(o.Filled)
}

// IsTerminal 是否处于终态
func (o *Order) IsTerminal() bool {
	return o.Status == OrderStatusFilled || o.Status == OrderStatusCancelled || o.Status == OrderStatusExpired
}

// IsExpiredAt 订单在 now 时刻是否已过期
func (o *Order) IsExpiredAt(now time.Time) bool {
	return !o.Expiry.IsZero() && now.After(o.Expiry)
}

// ApplyFill 记录一笔成交并推进状态机
// Active → PartiallyFilled → Filled
func (o *Order) ApplyFill(amount decimal.Decimal) {
	o.Filled = o.Filled.Add(amount)
	if o.Filled.GreaterThanOrEqual(o.Amount) {
		o.Status = OrderStatusFilled
		return
	}
	o.Status = OrderStatusPartiallyFilled
}

// Crosses 判断本订单的限价是否与对手价格交叉。
// Market 订单无价格约束，恒为真。
func (o *Order) Crosses(price decimal.Decimal) bool {
	if o.Type == OrderTypeMarket || o.LimitPrice.IsZero() {
		return true
	}
	if o.Side == SideBuy {
		return o.LimitPrice.GreaterThanOrEqual(price)
	}
	return o.LimitPrice.LessThanOrEqual(price)
}
