// Package venue 把注册表、金库、撮合引擎与结算适配器装配成对外操作面：
// commit / reveal / cancel / tick 加三个只读查询。
// 变更操作由单把互斥锁全序化，等价于账本的串行原子执行模型。
package venue

import (
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/veilbook/darkpool/internal/domain"
	"github.com/veilbook/darkpool/internal/engine"
	"github.com/veilbook/darkpool/internal/events"
	"github.com/veilbook/darkpool/internal/registry"
)

// Clock 可注入时钟
type Clock func() time.Time

// Venue 场内核心装配体
type Venue struct {
	mu       sync.Mutex
	registry *registry.Registry
	engine   *engine.Engine
	bus      *events.Bus
	clock    Clock
	log      *logrus.Entry
}

// New 装配场内核心；撮合成交自动转发到事件总线
func New(reg *registry.Registry, eng *engine.Engine, bus *events.Bus, clock Clock, log *logrus.Logger) *Venue {
	v := &Venue{
		registry: reg,
		engine:   eng,
		bus:      bus,
		clock:    clock,
		log:      log.WithField("component", "venue"),
	}
	eng.OnTrade(func(t domain.Trade) {
		bus.Publish(events.TypeTrade, events.TradeEvent{
			TradeID:      t.ID,
			MakerOrderID: t.MakerOrderID,
			TakerOrderID: t.TakerOrderID,
			TokenID:      t.TokenID,
			Amount:       t.Amount,
			Price:        t.Price,
			Timestamp:    t.Timestamp,
		}, t.Timestamp)
	})
	return v
}

// Commit 登记承诺并锁定托管，返回承诺 ID
func (v *Venue) Commit(owner common.Address, digest common.Hash, escrowAmount decimal.Decimal) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	c, err := v.registry.Commit(owner, digest, escrowAmount)
	if err != nil {
		return "", err
	}
	v.bus.Publish(events.TypeOrderCommitted, events.OrderCommittedEvent{
		CommitmentID: c.ID,
		Digest:       c.Digest,
		Owner:        c.Owner,
		EscrowAmount: c.EscrowAmount,
		Timestamp:    c.CreatedAt,
	}, c.CreatedAt)
	return c.ID, nil
}

// Reveal 揭示承诺并把订单送入撮合。
// 返回订单 ID 与立即产生的成交；撮合期间的结算失败不回滚揭示本身，
// 以 error 报告给调用方（订单保持当前状态等待后续尝试）。
func (v *Venue) Reveal(commitmentID string, caller common.Address, fields domain.OrderFields, proof []byte) (string, []domain.Trade, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	order, c, err := v.registry.Reveal(commitmentID, caller, fields, proof)
	if err != nil {
		return "", nil, err
	}
	now := v.clock()
	v.bus.Publish(events.TypeOrderRevealed, events.OrderRevealedEvent{
		CommitmentID: c.ID,
		Digest:       c.Digest,
		OrderID:      order.ID,
		Owner:        c.Owner,
		Timestamp:    now,
	}, now)

	trades, serr := v.engine.Submit(order, now)
	return order.ID, trades, serr
}

// Cancel 取消未消费的承诺并退还托管
func (v *Venue) Cancel(commitmentID string, caller common.Address) (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	c, refund, err := v.registry.Cancel(commitmentID, caller)
	if err != nil {
		return decimal.Zero, err
	}
	now := v.clock()
	v.bus.Publish(events.TypeCommitmentCancelled, events.CommitmentCancelledEvent{
		CommitmentID: c.ID,
		Digest:       c.Digest,
		Owner:        c.Owner,
		RefundAmount: refund,
		Timestamp:    now,
	}, now)
	return refund, nil
}

// Tick 驱动 VWAP/TWAP 的窗口切片。订单已过期时顺带做一轮过期清理。
func (v *Venue) Tick(orderID string) ([]domain.Trade, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.clock()
	trades, err := v.engine.Tick(orderID, now)
	if err != nil && errors.Is(err, domain.ErrOrderExpired) {
		v.expireDueLocked(now)
	}
	return trades, err
}

// ExpireDue 清理所有过期订单并广播过期事件
func (v *Venue) ExpireDue() []engine.Expiry {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.expireDueLocked(v.clock())
}

func (v *Venue) expireDueLocked(now time.Time) []engine.Expiry {
	expired := v.engine.ExpireDue(now)
	for _, ex := range expired {
		v.bus.Publish(events.TypeOrderExpired, events.OrderExpiredEvent{
			OrderID:      ex.OrderID,
			CommitmentID: ex.CommitmentID,
			Owner:        ex.Owner,
			RefundAmount: ex.Refund,
			Timestamp:    now,
		}, now)
	}
	return expired
}

// Order 查询活跃订单快照
func (v *Venue) Order(orderID string) (domain.Order, bool) {
	return v.engine.Order(orderID)
}

// CommitmentTimestamp 只读查询：承诺创建时间
func (v *Venue) CommitmentTimestamp(commitmentID string) (time.Time, error) {
	return v.registry.CommitmentTimestamp(commitmentID)
}

// IsNullifierSpent 只读查询：作废符是否已花费
func (v *Venue) IsNullifierSpent(n common.Hash) (bool, error) {
	return v.registry.IsNullifierSpent(n)
}

// RevealDelay 只读查询：揭示延迟
func (v *Venue) RevealDelay() time.Duration {
	return v.registry.RevealDelay()
}
