package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestSideOpposite(t *testing.T) {
	if SideBuy.Opposite() != SideSell || SideSell.Opposite() != SideBuy {
		t.Fatal("对手方向错误")
	}
	if Side("SIDEWAYS").Valid() {
		t.Fatal("非法方向通过了校验")
	}
}

func TestOrderTypeTraits(t *testing.T) {
	cases := []struct {
		typ     OrderType
		resting bool
		sliced  bool
	}{
		{OrderTypeMarket, false, false},
		{OrderTypeLimit, true, false},
		{OrderTypeIceberg, true, false},
		{OrderTypeVWAP, false, true},
		{OrderTypeTWAP, false, true},
	}
	for _, tc := range cases {
		if !tc.typ.Valid() {
			t.Fatalf("%s 无效", tc.typ)
		}
		if tc.typ.Resting() != tc.resting || tc.typ.Sliced() != tc.sliced {
			t.Fatalf("%s: resting=%v sliced=%v", tc.typ, tc.typ.Resting(), tc.typ.Sliced())
		}
	}
	if OrderType("STOP").Valid() {
		t.Fatal("未知类型通过了校验")
	}
}

func TestApplyFillStateMachine(t *testing.T) {
	o := Order{Amount: decimal.NewFromInt(100), Status: OrderStatusActive}

	o.ApplyFill(decimal.NewFromInt(40))
	if o.Status != OrderStatusPartiallyFilled || !o.Remaining().Equal(decimal.NewFromInt(60)) {
		t.Fatalf("部分成交: %s 剩 %s", o.Status, o.Remaining())
	}
	o.ApplyFill(decimal.NewFromInt(60))
	if o.Status != OrderStatusFilled || !o.IsTerminal() {
		t.Fatalf("完全成交: %s", o.Status)
	}
}

func TestCrosses(t *testing.T) {
	buy := Order{Side: SideBuy, Type: OrderTypeLimit, LimitPrice: decimal.NewFromInt(10)}
	if !buy.Crosses(decimal.NewFromInt(10)) || !buy.Crosses(decimal.NewFromInt(9)) {
		t.Fatal("买单应与不高于限价的卖价交叉")
	}
	if buy.Crosses(decimal.NewFromInt(11)) {
		t.Fatal("买单不应高于限价成交")
	}

	sell := Order{Side: SideSell, Type: OrderTypeLimit, LimitPrice: decimal.NewFromInt(10)}
	if !sell.Crosses(decimal.NewFromInt(10)) || !sell.Crosses(decimal.NewFromInt(11)) {
		t.Fatal("卖单应与不低于限价的买价交叉")
	}
	if sell.Crosses(decimal.NewFromInt(9)) {
		t.Fatal("卖单不应低于限价成交")
	}

	market := Order{Side: SideBuy, Type: OrderTypeMarket}
	if !market.Crosses(decimal.NewFromInt(999)) {
		t.Fatal("Market 订单无价格约束")
	}
}

func TestIsExpiredAt(t *testing.T) {
	now := time.Now()
	o := Order{Expiry: now}
	if o.IsExpiredAt(now) {
		t.Fatal("到期时刻本身不算过期")
	}
	if !o.IsExpiredAt(now.Add(time.Second)) {
		t.Fatal("过期未生效")
	}
	forever := Order{}
	if forever.IsExpiredAt(now.Add(time.Hour)) {
		t.Fatal("零值到期时间表示永不过期")
	}
}
