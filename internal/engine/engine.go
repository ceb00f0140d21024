// Package engine 撮合引擎：持有揭示后的活跃订单，按订单类型语义撮合并结算。
//
// 引擎没有任何自主后台工作：Market/Limit/Iceberg 在提交时撮合，
// VWAP/TWAP 由外部调度方（自动中继）通过 Tick 驱动。所有状态变更
// 与结算一起提交或一起中止。
package engine

import (
	"math"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/veilbook/darkpool/internal/codec"
	"github.com/veilbook/darkpool/internal/domain"
	"github.com/veilbook/darkpool/internal/settlement"
	"github.com/veilbook/darkpool/internal/vault"
)

var (
	// ErrUnknownOrder 引擎中没有该活跃订单
	ErrUnknownOrder = errors.New("engine: unknown order")
	// ErrNotTickable 只有 VWAP/TWAP 订单接受 tick
	ErrNotTickable = errors.New("engine: order type does not accept ticks")
)

// Config 引擎参数
type Config struct {
	TickInterval       time.Duration // VWAP/TWAP 切片窗口长度
	VWAPTrailingWindow time.Duration // VWAP 参考的近期成交量窗口
}

// TradeCallback 成交回调（事件总线、成交落盘由上层挂接）
type TradeCallback func(domain.Trade)

// Expiry 过期清理结果
type Expiry struct {
	OrderID      string
	CommitmentID string
	Owner        common.Address
	Refund       decimal.Decimal
}

// sliceState VWAP/TWAP 母单的窗口状态
type sliceState struct {
	order      *domain.Order
	lastWindow int64      // 已释放切片的窗口序号（-1 表示尚未释放）
	child      *bookEntry // 当前窗口挂簿的瞬态切片
}

// Engine 撮合引擎
type Engine struct {
	mu      sync.Mutex
	cfg     Config
	vault   *vault.Vault
	adapter settlement.Adapter

	books   map[string]*book          // tokenID -> 订单簿
	orders  map[string]*domain.Order  // 活跃订单
	entries map[string]*bookEntry     // 订单 ID -> 挂簿条目（非瞬态）
	parents map[string]*sliceState    // VWAP/TWAP 母单
	volumes map[string]*volumeTracker // tokenID -> 近期成交量

	seq      uint64
	tradeCBs []TradeCallback

	log *logrus.Entry
}

// New 创建撮合引擎
func New(cfg Config, v *vault.Vault, adapter settlement.Adapter, log *logrus.Logger) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Minute
	}
	if cfg.VWAPTrailingWindow <= 0 {
		cfg.VWAPTrailingWindow = 15 * time.Minute
	}
	return &Engine{
		cfg:     cfg,
		vault:   v,
		adapter: adapter,
		books:   make(map[string]*book),
		orders:  make(map[string]*domain.Order),
		entries: make(map[string]*bookEntry),
		parents: make(map[string]*sliceState),
		volumes: make(map[string]*volumeTracker),
		log:     log.WithField("component", "engine"),
	}
}

// OnTrade 注册成交回调
func (e *Engine) OnTrade(cb TradeCallback) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tradeCBs = append(e.tradeCBs, cb)
}

// Order 返回活跃订单快照
func (e *Engine) Order(orderID string) (domain.Order, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if o, ok := e.orders[orderID]; ok {
		return *o, true
	}
	return domain.Order{}, false
}

// Submit 接收揭示闸门晋升的订单并按类型撮合。
// 返回本次产生的成交；ErrSettlementFailed 只中止当前撮合尝试，
// 已完成的成交与挂单状态保持不变。
func (e *Engine) Submit(o *domain.Order, now time.Time) ([]domain.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !o.Type.Valid() || !o.Side.Valid() {
		return nil, errors.Wrapf(ErrUnknownOrder, "invalid order %s", o.ID)
	}
	if o.IsExpiredAt(now) {
		return nil, errors.Wrapf(domain.ErrOrderExpired, "order %s", o.ID)
	}
	e.orders[o.ID] = o

	switch o.Type {
	case domain.OrderTypeMarket:
		trades, serr := e.sweepLocked(o, o.Remaining(), now)
		// Market 不挂簿：残量取消，残余托管退还
		if !o.IsTerminal() {
			o.Status = domain.OrderStatusCancelled
			e.finalizeLocked(o)
		}
		return trades, serr

	case domain.OrderTypeLimit, domain.OrderTypeIceberg:
		trades, serr := e.sweepLocked(o, o.Remaining(), now)
		if !o.IsTerminal() {
			if o.Side == domain.SideBuy && e.vault.Available(o.CommitmentID).Sign() <= 0 {
				// 买方托管耗尽，挂簿永远无法成交
				o.Status = domain.OrderStatusCancelled
				e.finalizeLocked(o)
				return trades, serr
			}
			e.restLocked(o)
		}
		return trades, serr

	case domain.OrderTypeVWAP, domain.OrderTypeTWAP:
		// 全量不立即参与撮合，等外部 tick 释放切片
		e.parents[o.ID] = &sliceState{order: o, lastWindow: -1}
		return nil, nil
	}
	return nil, errors.Wrapf(ErrUnknownOrder, "unhandled type %s", o.Type)
}

// Tick VWAP/TWAP 的切片入口。窗口内幂等：同一窗口无论被 tick 多少次，
// 至多释放一个切片预算。
func (e *Engine) Tick(orderID string, now time.Time) ([]domain.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ps, ok := e.parents[orderID]
	if !ok {
		if _, exists := e.orders[orderID]; exists {
			return nil, errors.Wrapf(ErrNotTickable, "order %s", orderID)
		}
		return nil, errors.Wrapf(ErrUnknownOrder, "order %s", orderID)
	}
	o := ps.order
	if o.IsExpiredAt(now) {
		// 过期清理走 ExpireDue，这里保持「错误即无副作用」
		return nil, errors.Wrapf(domain.ErrOrderExpired, "order %s", orderID)
	}

	w := int64(now.Sub(o.RevealedAt) / e.cfg.TickInterval)
	if w <= ps.lastWindow {
		return nil, nil
	}

	// 回收上一窗口未吃完的瞬态切片，剩量归还母单
	if ps.child != nil {
		e.bookFor(o.TokenID).remove(ps.child)
		ps.child = nil
	}

	slice := e.sliceSizeLocked(o, now)
	ps.lastWindow = w
	if slice.Sign() <= 0 {
		return nil, nil
	}

	trades, serr := e.sweepLocked(o, slice, now)
	if o.IsTerminal() {
		e.finalizeLocked(o)
		return trades, serr
	}
	filledNow := decimal.Zero
	for i := range trades {
		filledNow = filledNow.Add(trades[i].Amount)
	}
	rest := slice.Sub(filledNow)
	// 带限价的切片在本窗口内作为瞬态限价单挂簿；无限价切片不挂簿
	if serr == nil && rest.Sign() > 0 && !o.LimitPrice.IsZero() {
		child := &bookEntry{order: o, visible: rest, seq: e.nextSeq(), transient: true}
		e.bookFor(o.TokenID).insert(child)
		ps.child = child
	}
	return trades, serr
}

// ExpireDue 清理所有已过期的活跃订单：摘簿、标记 Expired、退还残余托管
func (e *Engine) ExpireDue(now time.Time) []Expiry {
	e.mu.Lock()
	defer e.mu.Unlock()

	var due []*domain.Order
	for _, o := range e.orders {
		if o.IsExpiredAt(now) {
			due = append(due, o)
		}
	}
	var out []Expiry
	for _, o := range due {
		refund := e.expireLocked(o)
		out = append(out, Expiry{
			OrderID:      o.ID,
			CommitmentID: o.CommitmentID,
			Owner:        o.Owner,
			Refund:       refund,
		})
	}
	return out
}

// --- 内部：已持锁 ---

func (e *Engine) bookFor(tokenID string) *book {
	bk, ok := e.books[tokenID]
	if !ok {
		bk = newBook()
		e.books[tokenID] = bk
	}
	return bk
}

func (e *Engine) volumeFor(tokenID string) *volumeTracker {
	vt, ok := e.volumes[tokenID]
	if !ok {
		vt = newVolumeTracker(e.cfg.VWAPTrailingWindow)
		e.volumes[tokenID] = vt
	}
	return vt
}

func (e *Engine) nextSeq() uint64 {
	e.seq++
	return e.seq
}

// restLocked 按类型把订单剩量挂簿
func (e *Engine) restLocked(o *domain.Order) {
	visible := o.Remaining()
	if o.Type == domain.OrderTypeIceberg {
		visible = decimal.Min(o.VisibleSlice, o.Remaining())
	}
	entry := &bookEntry{order: o, visible: visible, seq: e.nextSeq()}
	e.bookFor(o.TokenID).insert(entry)
	e.entries[o.ID] = entry
}

// sweepLocked 以 taker 身份扫对手方订单簿，预算 budget。
// 单笔候选低于任一方 minFill 时跳过该对手条目继续向下，不否决整单。
func (e *Engine) sweepLocked(taker *domain.Order, budget decimal.Decimal, now time.Time) ([]domain.Trade, error) {
	if budget.GreaterThan(taker.Remaining()) {
		budget = taker.Remaining()
	}
	bk := e.bookFor(taker.TokenID)
	var trades []domain.Trade
	skip := make(map[*bookEntry]bool)

	for budget.Sign() > 0 && !taker.IsTerminal() {
		opp := bk.entriesFor(taker.Side.Opposite())
		var entry *bookEntry
		for i := 0; i < len(opp); i++ {
			cand := opp[i]
			if skip[cand] {
				continue
			}
			if cand.order.IsExpiredAt(now) {
				e.expireLocked(cand.order)
				opp = bk.entriesFor(taker.Side.Opposite())
				i--
				continue
			}
			entry = cand
			break
		}
		if entry == nil {
			break
		}
		maker := entry.order
		price := entry.price()
		if !taker.Crosses(price) {
			break
		}
		if maker.Owner == taker.Owner {
			// 禁止自成交
			skip[entry] = true
			continue
		}

		q := decimal.Min(budget, entry.visible, maker.Remaining())

		buyer, seller := taker, maker
		if taker.Side == domain.SideSell {
			buyer, seller = maker, taker
		}
		afford := affordableQty(e.vault.Available(buyer.CommitmentID), price)
		if afford.Sign() <= 0 {
			if buyer == taker {
				break
			}
			// 买方挂单托管耗尽：撤单并退还残余
			e.cancelLocked(maker)
			continue
		}
		if q.GreaterThan(afford) {
			q = afford
		}
		if q.Sign() <= 0 ||
			q.LessThan(maker.MinFillAmount) ||
			q.LessThan(taker.MinFillAmount) {
			skip[entry] = true
			continue
		}

		trade, err := e.fillLocked(buyer, seller, taker, maker, entry, q, price, now)
		if err != nil {
			return trades, err
		}
		trades = append(trades, trade)
		budget = budget.Sub(q)
	}
	return trades, nil
}

// fillLocked 执行单笔成交：先改状态，再调结算，两腿任一失败整体恢复。
// 买方从托管按 q*price 划给卖方，卖方经结算适配器把标的划给买方。
func (e *Engine) fillLocked(buyer, seller, taker, maker *domain.Order, entry *bookEntry, q, price decimal.Decimal, now time.Time) (domain.Trade, error) {
	cost := q.Mul(price)

	buyerFilled, buyerStatus := buyer.Filled, buyer.Status
	sellerFilled, sellerStatus := seller.Filled, seller.Status
	visible := entry.visible

	buyer.ApplyFill(q)
	seller.ApplyFill(q)
	entry.visible = entry.visible.Sub(q)

	restore := func() {
		buyer.Filled, buyer.Status = buyerFilled, buyerStatus
		seller.Filled, seller.Status = sellerFilled, sellerStatus
		entry.visible = visible
	}

	if err := e.vault.ApplyToFill(buyer.CommitmentID, seller.Owner, cost); err != nil {
		restore()
		return domain.Trade{}, errors.Wrap(domain.ErrSettlementFailed, err.Error())
	}
	if err := e.adapter.Transfer(seller.Owner, buyer.Owner, taker.TokenID, q); err != nil {
		if uerr := e.vault.Unapply(buyer.CommitmentID, seller.Owner, cost); uerr != nil {
			e.log.WithError(uerr).WithField("commitment", buyer.CommitmentID).
				Error("结算失败后的托管补偿未完成")
		}
		restore()
		return domain.Trade{}, errors.Wrap(domain.ErrSettlementFailed, err.Error())
	}

	trade := domain.Trade{
		ID:           uuid.NewString(),
		MakerOrderID: maker.ID,
		TakerOrderID: taker.ID,
		TokenID:      taker.TokenID,
		Amount:       q,
		Price:        price,
		Timestamp:    now,
	}
	e.volumeFor(taker.TokenID).record(now, q)

	bk := e.bookFor(taker.TokenID)
	if maker.IsTerminal() {
		bk.remove(entry)
		delete(e.entries, maker.ID)
		if entry.transient {
			e.clearChildLocked(maker, entry)
		}
		e.finalizeLocked(maker)
	} else if entry.visible.Sign() <= 0 {
		if entry.transient {
			// 窗口切片吃完，剩量留在母单等下个窗口
			bk.remove(entry)
			e.clearChildLocked(maker, entry)
		} else if maker.Type == domain.OrderTypeIceberg {
			// 补片：从剩量再曝光一个切片，排队优先级重置
			bk.remove(entry)
			entry.visible = decimal.Min(maker.VisibleSlice, maker.Remaining())
			entry.seq = e.nextSeq()
			bk.insert(entry)
		}
	}
	if taker.IsTerminal() {
		e.finalizeLocked(taker)
	}

	e.log.WithFields(logrus.Fields{
		"trade":  trade.ID,
		"maker":  maker.ID,
		"taker":  taker.ID,
		"amount": q.String(),
		"price":  price.String(),
	}).Info("成交")
	for _, cb := range e.tradeCBs {
		cb(trade)
	}
	return trade, nil
}

// sliceSizeLocked 计算当前窗口应释放的切片：
// TWAP 按剩余窗口数均分；VWAP 按近期量占比，无量时退化为 TWAP。
func (e *Engine) sliceSizeLocked(o *domain.Order, now time.Time) decimal.Decimal {
	remaining := o.Remaining()
	if remaining.Sign() <= 0 {
		return decimal.Zero
	}

	twapSlice := func() decimal.Decimal {
		left := o.Expiry.Sub(now)
		if left <= 0 {
			return remaining
		}
		windows := int64(math.Ceil(float64(left) / float64(e.cfg.TickInterval)))
		if windows < 1 {
			windows = 1
		}
		return remaining.DivRound(decimal.NewFromInt(windows), codec.FixedPointScale)
	}

	var slice decimal.Decimal
	switch o.Type {
	case domain.OrderTypeTWAP:
		slice = twapSlice()
	case domain.OrderTypeVWAP:
		vt := e.volumeFor(o.TokenID)
		recent := vt.since(now.Add(-e.cfg.TickInterval))
		trailing := vt.since(now.Add(-e.cfg.VWAPTrailingWindow))
		if recent.Sign() <= 0 || trailing.Sign() <= 0 {
			slice = twapSlice()
		} else {
			slice = remaining.Mul(recent).DivRound(trailing, codec.FixedPointScale)
		}
	default:
		return decimal.Zero
	}

	if slice.LessThan(o.MinFillAmount) {
		slice = o.MinFillAmount
	}
	// 尾量不足 minFill 时切片仍受剩量封顶，撮合时会因低于 minFill 被跳过，
	// 剩量留待到期退还。
	if slice.GreaterThan(remaining) {
		slice = remaining
	}
	return slice
}

// cancelLocked 撤销挂单并退还残余托管
func (e *Engine) cancelLocked(o *domain.Order) {
	if entry, ok := e.entries[o.ID]; ok {
		e.bookFor(o.TokenID).remove(entry)
		delete(e.entries, o.ID)
	}
	o.Status = domain.OrderStatusCancelled
	e.finalizeLocked(o)
}

// expireLocked 过期处理：摘簿、终态、退款
func (e *Engine) expireLocked(o *domain.Order) decimal.Decimal {
	if entry, ok := e.entries[o.ID]; ok {
		e.bookFor(o.TokenID).remove(entry)
		delete(e.entries, o.ID)
	}
	if ps, ok := e.parents[o.ID]; ok && ps.child != nil {
		e.bookFor(o.TokenID).remove(ps.child)
		ps.child = nil
	}
	o.Status = domain.OrderStatusExpired
	return e.finalizeLocked(o)
}

// finalizeLocked 终态收尾：从引擎摘除并退还残余托管
func (e *Engine) finalizeLocked(o *domain.Order) decimal.Decimal {
	delete(e.orders, o.ID)
	delete(e.entries, o.ID)
	delete(e.parents, o.ID)
	refund, err := e.vault.ReleaseToOwner(o.CommitmentID)
	if err != nil {
		e.log.WithError(err).WithField("order", o.ID).Error("残余托管退还失败")
		return decimal.Zero
	}
	e.log.WithFields(logrus.Fields{
		"order":  o.ID,
		"status": o.Status,
		"filled": o.Filled.String(),
		"refund": refund.String(),
	}).Info("订单终态")
	return refund
}

func (e *Engine) clearChildLocked(o *domain.Order, entry *bookEntry) {
	if ps, ok := e.parents[o.ID]; ok && ps.child == entry {
		ps.child = nil
	}
}

// affordableQty 托管余额在该价格下最多负担的数量（向下取整，绝不透支）
func affordableQty(available, price decimal.Decimal) decimal.Decimal {
	if price.Sign() <= 0 {
		return decimal.Zero
	}
	q := available.DivRound(price, codec.FixedPointScale)
	if q.Mul(price).GreaterThan(available) {
		q = q.Sub(decimal.New(1, -codec.FixedPointScale))
	}
	if q.Sign() < 0 {
		return decimal.Zero
	}
	return q
}
