package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// volumeTracker 单一标的的近期成交量滑动窗口，VWAP 分片依据
type volumeTracker struct {
	window  time.Duration
	samples []volumeSample
}

type volumeSample struct {
	at     time.Time
	amount decimal.Decimal
}

func newVolumeTracker(window time.Duration) *volumeTracker {
	return &volumeTracker{window: window}
}

// record 记录一笔成交量
func (v *volumeTracker) record(at time.Time, amount decimal.Decimal) {
	v.samples = append(v.samples, volumeSample{at: at, amount: amount})
	v.prune(at)
}

// since 统计 [t0, 最新] 区间的成交量
func (v *volumeTracker) since(t0 time.Time) decimal.Decimal {
	total := decimal.Zero
	for i := range v.samples {
		if !v.samples[i].at.Before(t0) {
			total = total.Add(v.samples[i].amount)
		}
	}
	return total
}

// prune 丢弃滑出追踪窗口的样本
func (v *volumeTracker) prune(now time.Time) {
	cutoff := now.Add(-v.window)
	keep := v.samples[:0]
	for i := range v.samples {
		if !v.samples[i].at.Before(cutoff) {
			keep = append(keep, v.samples[i])
		}
	}
	v.samples = keep
}
