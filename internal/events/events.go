package events

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// 事件类型名（websocket 推送的 type 字段）
const (
	TypeOrderCommitted      = "order_committed"
	TypeOrderRevealed       = "order_revealed"
	TypeCommitmentCancelled = "commitment_cancelled"
	TypeTrade               = "trade"
	TypeOrderExpired        = "order_expired"
)

// OrderCommittedEvent 承诺登记事件
type OrderCommittedEvent struct {
	CommitmentID string          `json:"commitment_id"`
	Digest       common.Hash     `json:"digest"`
	Owner        common.Address  `json:"owner"`
	EscrowAmount decimal.Decimal `json:"escrow_amount"`
	Timestamp    time.Time       `json:"timestamp"`
}

// OrderRevealedEvent 承诺揭示事件
type OrderRevealedEvent struct {
	CommitmentID string         `json:"commitment_id"`
	Digest       common.Hash    `json:"digest"`
	OrderID      string         `json:"order_id"`
	Owner        common.Address `json:"owner"`
	Timestamp    time.Time      `json:"timestamp"`
}

// CommitmentCancelledEvent 承诺取消事件
type CommitmentCancelledEvent struct {
	CommitmentID string          `json:"commitment_id"`
	Digest       common.Hash     `json:"digest"`
	Owner        common.Address  `json:"owner"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
	Timestamp    time.Time       `json:"timestamp"`
}

// TradeEvent 成交事件
type TradeEvent struct {
	TradeID      string          `json:"trade_id"`
	MakerOrderID string          `json:"maker_order_id"`
	TakerOrderID string          `json:"taker_order_id"`
	TokenID      string          `json:"token_id"`
	Amount       decimal.Decimal `json:"amount"`
	Price        decimal.Decimal `json:"price"`
	Timestamp    time.Time       `json:"timestamp"`
}

// OrderExpiredEvent 订单过期事件（残余托管已退还）
type OrderExpiredEvent struct {
	OrderID      string          `json:"order_id"`
	CommitmentID string          `json:"commitment_id"`
	Owner        common.Address  `json:"owner"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
	Timestamp    time.Time       `json:"timestamp"`
}
