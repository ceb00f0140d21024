// Package relayer 自动中继：事件流的纯消费者。
// 订阅场内事件，替托管了揭示载荷的被动持有人在延迟届满后提交 reveal，
// 并周期性驱动 VWAP/TWAP 的 tick 与过期清理。
// 场内正确性从不依赖中继——任何持有人都可以自行揭示或取消。
package relayer

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/veilbook/darkpool/internal/codec"
	"github.com/veilbook/darkpool/internal/domain"
	"github.com/veilbook/darkpool/internal/events"
)

// Payload 托管的揭示载荷：持有人预先把订单字段交给中继代为揭示
type Payload struct {
	Owner  common.Address     `json:"owner"`
	Fields domain.OrderFields `json:"fields"`
	Proof  []byte             `json:"proof,omitempty"`
}

// Config 中继参数
type Config struct {
	VenueURL     string
	VenueWSURL   string
	PollInterval time.Duration
	PayloadsFile string
}

// pendingReveal 已观察到承诺、等待延迟届满的揭示任务
type pendingReveal struct {
	commitmentID string
	payload      Payload
	due          time.Time
}

// Relayer 自动中继
type Relayer struct {
	cfg    Config
	client *Client
	feed   *Feed
	log    *logrus.Entry

	mu       sync.Mutex
	payloads map[common.Hash]Payload  // 摘要 -> 托管载荷
	pending  map[string]pendingReveal // 承诺 ID -> 待揭示
	ticking  map[string]struct{}      // 需要周期 tick 的订单
	delay    time.Duration
}

// New 创建中继
func New(cfg Config, log *logrus.Logger) (*Relayer, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	r := &Relayer{
		cfg:      cfg,
		client:   NewClient(cfg.VenueURL),
		feed:     NewFeed(cfg.VenueWSURL, log),
		log:      log.WithField("component", "relayer"),
		payloads: make(map[common.Hash]Payload),
		pending:  make(map[string]pendingReveal),
		ticking:  make(map[string]struct{}),
	}
	if cfg.PayloadsFile != "" {
		if err := r.loadPayloads(cfg.PayloadsFile); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// loadPayloads 读取托管载荷并按本地重算的摘要建立索引
func (r *Relayer) loadPayloads(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "relayer: read payloads %s", path)
	}
	var payloads []Payload
	if err := json.Unmarshal(raw, &payloads); err != nil {
		return errors.Wrapf(err, "relayer: parse payloads %s", path)
	}
	for _, p := range payloads {
		digest, err := codec.Digest(p.Fields, p.Owner)
		if err != nil {
			return errors.Wrap(err, "relayer: payload digest")
		}
		r.payloads[digest] = p
	}
	r.log.WithField("count", len(payloads)).Info("托管载荷已装载")
	return nil
}

// Run 主循环：消费事件流 + 周期调度
func (r *Relayer) Run(ctx context.Context) error {
	delay, err := r.client.RevealDelay()
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.delay = delay
	r.mu.Unlock()

	eventCh := r.feed.Run(ctx)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-eventCh:
			if !ok {
				return errors.New("relayer: event feed closed")
			}
			r.handleEvent(env)
		case <-ticker.C:
			now := time.Now()
			r.submitDue(now)
			r.submitTicks()
			if err := r.client.ExpireDue(); err != nil {
				r.log.WithError(err).Warn("过期清理失败")
			}
		}
	}
}

// handleEvent 根据事件类型维护调度状态
func (r *Relayer) handleEvent(env events.Envelope) {
	switch env.Type {
	case events.TypeOrderCommitted:
		var ev events.OrderCommittedEvent
		if !decodePayload(env.Payload, &ev) {
			return
		}
		r.onCommitted(ev)
	case events.TypeOrderRevealed:
		var ev events.OrderRevealedEvent
		if !decodePayload(env.Payload, &ev) {
			return
		}
		r.mu.Lock()
		delete(r.pending, ev.CommitmentID)
		// 自家托管的 VWAP/TWAP 订单需要持续 tick
		if p, ok := r.payloads[ev.Digest]; ok && p.Fields.Type.Sliced() {
			r.ticking[ev.OrderID] = struct{}{}
		}
		r.mu.Unlock()
	case events.TypeCommitmentCancelled:
		var ev events.CommitmentCancelledEvent
		if !decodePayload(env.Payload, &ev) {
			return
		}
		r.mu.Lock()
		delete(r.pending, ev.CommitmentID)
		r.mu.Unlock()
	case events.TypeOrderExpired:
		var ev events.OrderExpiredEvent
		if !decodePayload(env.Payload, &ev) {
			return
		}
		r.mu.Lock()
		delete(r.ticking, ev.OrderID)
		r.mu.Unlock()
	}
}

// onCommitted 承诺事件：命中托管载荷则按 揭示时间 = 创建时间 + 延迟 排期
func (r *Relayer) onCommitted(ev events.OrderCommittedEvent) {
	r.mu.Lock()
	payload, ok := r.payloads[ev.Digest]
	delay := r.delay
	r.mu.Unlock()
	if !ok {
		return
	}
	createdAt, err := r.client.CommitmentTimestamp(ev.CommitmentID)
	if err != nil {
		r.log.WithError(err).WithField("commitment", ev.CommitmentID).Warn("查询承诺时间失败")
		createdAt = ev.Timestamp
	}
	due := createdAt.Add(delay)
	r.mu.Lock()
	r.pending[ev.CommitmentID] = pendingReveal{
		commitmentID: ev.CommitmentID,
		payload:      payload,
		due:          due,
	}
	r.mu.Unlock()
	r.log.WithFields(logrus.Fields{
		"commitment": ev.CommitmentID,
		"due":        due.Format(time.RFC3339),
	}).Info("揭示已排期")
}

// submitDue 提交所有到期的揭示；失败不重试排期（下轮 poll 再试）
func (r *Relayer) submitDue(now time.Time) {
	r.mu.Lock()
	var due []pendingReveal
	for _, p := range r.pending {
		if !now.Before(p.due) {
			due = append(due, p)
		}
	}
	r.mu.Unlock()

	for _, p := range due {
		orderID, err := r.client.Reveal(p.commitmentID, p.payload.Owner, p.payload.Fields, p.payload.Proof)
		if err != nil {
			r.log.WithError(err).WithField("commitment", p.commitmentID).Warn("代揭示失败")
			continue
		}
		r.mu.Lock()
		delete(r.pending, p.commitmentID)
		if p.payload.Fields.Type.Sliced() {
			r.ticking[orderID] = struct{}{}
		}
		r.mu.Unlock()
		r.log.WithFields(logrus.Fields{
			"commitment": p.commitmentID,
			"order":      orderID,
		}).Info("代揭示成功")
	}
}

// submitTicks 驱动托管的 VWAP/TWAP 订单
func (r *Relayer) submitTicks() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.ticking))
	for id := range r.ticking {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		if err := r.client.Tick(id); err != nil {
			r.log.WithError(err).WithField("order", id).Debug("tick 未被接受")
		}
	}
}

// decodePayload 信封载荷经 JSON 中转还原为具体事件类型
func decodePayload(payload interface{}, out interface{}) bool {
	raw, err := json.Marshal(payload)
	if err != nil {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}
