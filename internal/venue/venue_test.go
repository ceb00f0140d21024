package venue

import (
	"io"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/veilbook/darkpool/internal/codec"
	"github.com/veilbook/darkpool/internal/domain"
	"github.com/veilbook/darkpool/internal/engine"
	"github.com/veilbook/darkpool/internal/events"
	"github.com/veilbook/darkpool/internal/registry"
	"github.com/veilbook/darkpool/internal/settlement"
	"github.com/veilbook/darkpool/internal/vault"
)

var (
	vaultAccount = common.HexToAddress("0xff")
	alice        = common.HexToAddress("0xa1")
	bob          = common.HexToAddress("0xb0")
)

type world struct {
	venue  *Venue
	ledger *settlement.Ledger
	bus    *events.Bus
	now    time.Time
}

func (w *world) clock() time.Time { return w.now }

func newWorld(t *testing.T) *world {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	store, err := registry.OpenStore("")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	w := &world{
		ledger: settlement.NewLedger(),
		bus:    events.NewBus(),
		now:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
	v := vault.New(vaultAccount, "USDC", w.ledger, log)
	reg := registry.New(store, v, codec.DevVerifier{}, registry.Config{
		RevealDelay:  time.Hour,
		RevealWindow: 24 * time.Hour,
	}, w.clock, log)
	eng := engine.New(engine.Config{
		TickInterval:       time.Minute,
		VWAPTrailingWindow: 15 * time.Minute,
	}, v, w.ledger, log)
	w.venue = New(reg, eng, w.bus, w.clock, log)
	return w
}

func fields(salt byte, owner common.Address, side domain.Side, amount, price string) domain.OrderFields {
	return domain.OrderFields{
		Salt:       common.BytesToHash([]byte{salt}),
		TokenID:    "WETH",
		Side:       side,
		Type:       domain.OrderTypeLimit,
		Amount:     decimal.RequireFromString(amount),
		LimitPrice: decimal.RequireFromString(price),
	}
}

func (w *world) commit(t *testing.T, owner common.Address, f domain.OrderFields, escrow string) string {
	t.Helper()
	digest, err := codec.Digest(f, owner)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	id, err := w.venue.Commit(owner, digest, decimal.RequireFromString(escrow))
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	return id
}

// 承诺 -> 揭示 -> 撮合 -> 结算的全链路
func TestCommitRevealMatchPipeline(t *testing.T) {
	w := newWorld(t)
	w.ledger.Deposit(alice, "USDC", decimal.NewFromInt(2000))
	w.ledger.Deposit(bob, "WETH", decimal.NewFromInt(100))

	ch, cancel := w.bus.Subscribe(32)
	defer cancel()

	sellFields := fields(1, bob, domain.SideSell, "100", "10")
	sellID := w.commit(t, bob, sellFields, "0")
	buyFields := fields(2, alice, domain.SideBuy, "100", "10")
	buyID := w.commit(t, alice, buyFields, "1000")

	w.now = w.now.Add(time.Hour)

	orderID, trades, err := w.venue.Reveal(sellID, bob, sellFields, nil)
	if err != nil {
		t.Fatalf("reveal sell: %v", err)
	}
	if orderID == "" || len(trades) != 0 {
		t.Fatalf("卖单揭示: %s %d", orderID, len(trades))
	}

	_, trades, err = w.venue.Reveal(buyID, alice, buyFields, nil)
	if err != nil {
		t.Fatalf("reveal buy: %v", err)
	}
	if len(trades) != 1 || !trades[0].Amount.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("成交 = %+v", trades)
	}

	// 结算落账：买方得标的，卖方得货款，托管花光
	if got := w.ledger.BalanceOf(alice, "WETH"); !got.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("买方标的 = %s", got)
	}
	if got := w.ledger.BalanceOf(bob, "USDC"); !got.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("卖方货款 = %s", got)
	}
	if got := w.ledger.BalanceOf(alice, "USDC"); !got.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("买方剩余 = %s", got)
	}

	// 事件序列：2×committed、2×revealed、1×trade
	counts := map[string]int{}
	for len(ch) > 0 {
		counts[(<-ch).Type]++
	}
	if counts[events.TypeOrderCommitted] != 2 || counts[events.TypeOrderRevealed] != 2 || counts[events.TypeTrade] != 1 {
		t.Fatalf("事件计数 = %v", counts)
	}
}

func TestCancelPublishesEvent(t *testing.T) {
	w := newWorld(t)
	w.ledger.Deposit(alice, "USDC", decimal.NewFromInt(1000))

	ch, cancel := w.bus.Subscribe(8)
	defer cancel()

	f := fields(1, alice, domain.SideBuy, "10", "10")
	id := w.commit(t, alice, f, "100")

	refund, err := w.venue.Cancel(id, alice)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !refund.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("退款 = %s", refund)
	}

	var sawCancelled bool
	for len(ch) > 0 {
		if (<-ch).Type == events.TypeCommitmentCancelled {
			sawCancelled = true
		}
	}
	if !sawCancelled {
		t.Fatal("未广播取消事件")
	}
}

// Tick 碰到过期订单时顺带做一轮过期清理并广播事件
func TestTickSweepsExpired(t *testing.T) {
	w := newWorld(t)
	w.ledger.Deposit(alice, "USDC", decimal.NewFromInt(10000))

	f := fields(1, alice, domain.SideBuy, "600", "10")
	f.Type = domain.OrderTypeTWAP
	f.Expiry = w.now.Add(time.Hour + 3*time.Minute)
	id := w.commit(t, alice, f, "6000")

	w.now = w.now.Add(time.Hour)
	orderID, _, err := w.venue.Reveal(id, alice, f, nil)
	if err != nil {
		t.Fatalf("reveal: %v", err)
	}

	ch, cancel := w.bus.Subscribe(8)
	defer cancel()

	// 过期后 tick：报错并触发清理
	w.now = w.now.Add(time.Hour)
	if _, err := w.venue.Tick(orderID); err == nil {
		t.Fatal("过期 tick 未报错")
	}
	if _, ok := w.venue.Order(orderID); ok {
		t.Fatal("过期订单未被清理")
	}
	// 残余托管退还
	if got := w.ledger.BalanceOf(alice, "USDC"); !got.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("退还后余额 = %s", got)
	}

	var sawExpired bool
	for len(ch) > 0 {
		if (<-ch).Type == events.TypeOrderExpired {
			sawExpired = true
		}
	}
	if !sawExpired {
		t.Fatal("未广播过期事件")
	}
}
