package tradestore

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/veilbook/darkpool/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "trades.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleTrade(i int, tokenID string, ts time.Time) domain.Trade {
	return domain.Trade{
		ID:           fmt.Sprintf("t%d", i),
		MakerOrderID: "m1",
		TakerOrderID: "k1",
		TokenID:      tokenID,
		Amount:       decimal.NewFromInt(int64(i + 1)),
		Price:        decimal.RequireFromString("10.5"),
		Timestamp:    ts,
	}
}

func TestSaveAndRecent(t *testing.T) {
	s := openTestStore(t)
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		if err := s.Save(sampleTrade(i, "WETH", base.Add(time.Duration(i)*time.Second))); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	if err := s.Save(sampleTrade(9, "WBTC", base)); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Recent("WETH", 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("条数 = %d", len(got))
	}
	// 时间倒序，且只含该标的
	if got[0].ID != "t4" || got[2].ID != "t2" {
		t.Fatalf("排序错误: %s .. %s", got[0].ID, got[2].ID)
	}
	for _, tr := range got {
		if tr.TokenID != "WETH" {
			t.Fatalf("串标的: %s", tr.TokenID)
		}
	}
	// decimal 往返无损
	if !got[0].Price.Equal(decimal.RequireFromString("10.5")) {
		t.Fatalf("价格 = %s", got[0].Price)
	}
}

// 成交不可变：重复 ID 必须报错
func TestSaveRejectsDuplicateID(t *testing.T) {
	s := openTestStore(t)
	tr := sampleTrade(1, "WETH", time.Now())

	if err := s.Save(tr); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Save(tr); err == nil {
		t.Fatal("重复成交 ID 未被拒绝")
	}
}

func TestRecentEmpty(t *testing.T) {
	s := openTestStore(t)
	got, err := s.Recent("WETH", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("空库返回了 %d 条", len(got))
	}
}
