package engine

import (
	"github.com/shopspring/decimal"

	"github.com/veilbook/darkpool/internal/domain"
)

// bookEntry 订单簿条目。
// 条目与订单分离：Iceberg 只把可见切片放进条目，VWAP/TWAP 的窗口切片
// 以瞬态条目挂簿且与母订单共享同一 *domain.Order（成交直接累计到母单）。
type bookEntry struct {
	order     *domain.Order
	visible   decimal.Decimal // 当前对外暴露的数量
	seq       uint64          // 时间优先的决胜序号（Iceberg 补片取新序号，排队位置后移）
	transient bool            // VWAP/TWAP 窗口切片，下一个窗口回收
}

func (e *bookEntry) price() decimal.Decimal {
	return e.order.LimitPrice
}

// book 单一标的的限价订单簿，价格时间优先
type book struct {
	bids []*bookEntry // 按价格降序，同价按 seq 升序
	asks []*bookEntry // 按价格升序，同价按 seq 升序
}

func newBook() *book {
	return &book{}
}

// entriesFor 返回指定方向的条目切片（最优在前）
func (b *book) entriesFor(side domain.Side) []*bookEntry {
	if side == domain.SideBuy {
		return b.bids
	}
	return b.asks
}

// insert 按价格时间优先插入
func (b *book) insert(e *bookEntry) {
	if e.order.Side == domain.SideBuy {
		b.bids = insertSorted(b.bids, e, func(a, bb *bookEntry) bool {
			if !a.price().Equal(bb.price()) {
				return a.price().GreaterThan(bb.price())
			}
			return a.seq < bb.seq
		})
		return
	}
	b.asks = insertSorted(b.asks, e, func(a, bb *bookEntry) bool {
		if !a.price().Equal(bb.price()) {
			return a.price().LessThan(bb.price())
		}
		return a.seq < bb.seq
	})
}

// remove 从簿中摘除条目
func (b *book) remove(e *bookEntry) {
	if e.order.Side == domain.SideBuy {
		b.bids = removeEntry(b.bids, e)
		return
	}
	b.asks = removeEntry(b.asks, e)
}

func insertSorted(entries []*bookEntry, e *bookEntry, before func(a, b *bookEntry) bool) []*bookEntry {
	at := len(entries)
	for i := range entries {
		if before(e, entries[i]) {
			at = i
			break
		}
	}
	entries = append(entries, nil)
	copy(entries[at+1:], entries[at:])
	entries[at] = e
	return entries
}

func removeEntry(entries []*bookEntry, e *bookEntry) []*bookEntry {
	for i := range entries {
		if entries[i] == e {
			return append(entries[:i], entries[i+1:]...)
		}
	}
	return entries
}
