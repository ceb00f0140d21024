// Package registry 承诺注册表与揭示闸门。
// 注册表维护 摘要 -> {所有者, 托管额, 时间戳, 消费标记} 的持久映射并强制一次性使用；
// 揭示闸门校验时间窗、哈希一致性、作废符新鲜度与可选证明，把承诺晋升为活跃订单。
package registry

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/veilbook/darkpool/internal/codec"
	"github.com/veilbook/darkpool/internal/domain"
	"github.com/veilbook/darkpool/internal/vault"
)

var (
	// ErrMalformedFields 揭示字段本身不合法（与哈希是否匹配无关）
	ErrMalformedFields = errors.New("registry: malformed order fields")
)

// Clock 可注入时钟，测试中冻结时间用
type Clock func() time.Time

// Config 注册表参数
type Config struct {
	RevealDelay  time.Duration // 承诺到可揭示的强制延迟
	RevealWindow time.Duration // 延迟过后允许揭示的窗口长度
	RequireProof bool          // 为真时揭示必须携带有效证明
}

// Registry 承诺注册表
type Registry struct {
	store    *Store
	vault    *vault.Vault
	verifier codec.Verifier // 可为 nil：不校验证明
	cfg      Config
	clock    Clock
	log      *logrus.Entry
}

// New 创建注册表
func New(store *Store, v *vault.Vault, verifier codec.Verifier, cfg Config, clock Clock, log *logrus.Logger) *Registry {
	return &Registry{
		store:    store,
		vault:    v,
		verifier: verifier,
		cfg:      cfg,
		clock:    clock,
		log:      log.WithField("component", "registry"),
	}
}

// RevealDelay 返回配置的揭示延迟
func (r *Registry) RevealDelay() time.Duration {
	return r.cfg.RevealDelay
}

// Commit 登记承诺并锁定托管。
// 摘要曾被占用（包括已消费的墓碑）则拒绝；先占便宜：同一摘要的并发提交
// 按全序裁决，后到者得到 ErrDigestInUse。
func (r *Registry) Commit(owner common.Address, digest common.Hash, escrowAmount decimal.Decimal) (*domain.Commitment, error) {
	if escrowAmount.Sign() < 0 {
		return nil, errors.Wrap(ErrMalformedFields, "negative escrow amount")
	}
	c := &domain.Commitment{
		ID:           uuid.NewString(),
		Digest:       digest,
		Owner:        owner,
		EscrowAmount: escrowAmount,
		CreatedAt:    r.clock(),
	}
	// 先锁托管再登记：锁定失败时注册表无任何痕迹；
	// 登记失败（摘要撞车）时退还刚锁的托管。
	if escrowAmount.Sign() > 0 {
		if err := r.vault.Lock(c.ID, owner, escrowAmount); err != nil {
			return nil, err
		}
	}
	if err := r.store.PutCommitment(c); err != nil {
		if escrowAmount.Sign() > 0 {
			if _, rerr := r.vault.ReleaseToOwner(c.ID); rerr != nil {
				r.log.WithError(rerr).WithField("commitment", c.ID).Error("摘要冲突后托管回退失败")
			}
		}
		return nil, err
	}
	r.log.WithFields(logrus.Fields{
		"commitment": c.ID,
		"digest":     digest.Hex(),
		"owner":      owner.Hex(),
		"escrow":     escrowAmount.String(),
	}).Info("承诺已登记")
	return c, nil
}

// Reveal 校验揭示请求并构造活跃订单。
// 校验顺序：所有者 → 未消费 → 时间窗（下界含、上界含）→ 哈希一致 →
// 作废符新鲜 → 证明有效。任何一步失败整个请求原样中止。
func (r *Registry) Reveal(commitmentID string, caller common.Address, fields domain.OrderFields, proof []byte) (*domain.Order, *domain.Commitment, error) {
	c, err := r.store.GetCommitment(commitmentID)
	if err != nil {
		return nil, nil, err
	}
	if c.Owner != caller {
		return nil, nil, errors.Wrapf(domain.ErrUnauthorized, "caller %s, owner %s", caller.Hex(), c.Owner.Hex())
	}
	if c.Consumed {
		return nil, nil, errors.Wrapf(domain.ErrUnauthorized, "commitment %s already consumed", commitmentID)
	}

	now := r.clock()
	if now.Before(c.RevealTime(r.cfg.RevealDelay)) {
		return nil, nil, errors.Wrapf(domain.ErrRevealTooEarly,
			"reveal opens at %s", c.RevealTime(r.cfg.RevealDelay).Format(time.RFC3339))
	}
	if now.After(c.RevealDeadline(r.cfg.RevealDelay, r.cfg.RevealWindow)) {
		return nil, nil, errors.Wrapf(domain.ErrRevealExpired,
			"reveal closed at %s", c.RevealDeadline(r.cfg.RevealDelay, r.cfg.RevealWindow).Format(time.RFC3339))
	}

	if err := validateFields(fields); err != nil {
		return nil, nil, err
	}
	digest, err := codec.Digest(fields, c.Owner)
	if err != nil {
		return nil, nil, errors.Wrap(ErrMalformedFields, err.Error())
	}
	if digest != c.Digest {
		return nil, nil, errors.Wrapf(domain.ErrHashMismatch, "commitment %s", commitmentID)
	}

	nullifier := codec.Nullifier(fields.Salt, c.Owner)
	if spent, err := r.store.IsNullifierSpent(nullifier); err != nil {
		return nil, nil, err
	} else if spent {
		return nil, nil, errors.Wrapf(domain.ErrNullifierReused, "nullifier %s", nullifier.Hex())
	}

	if r.cfg.RequireProof && len(proof) == 0 {
		return nil, nil, errors.Wrapf(domain.ErrInvalidProof, "commitment %s: proof required", commitmentID)
	}
	if r.verifier != nil && len(proof) > 0 {
		public := codec.PublicInputs{Digest: digest, Nullifier: nullifier, Owner: c.Owner}
		if !r.verifier.Verify(public, proof) {
			return nil, nil, errors.Wrapf(domain.ErrInvalidProof, "commitment %s", commitmentID)
		}
	}

	if !fields.Expiry.IsZero() && now.After(fields.Expiry) {
		return nil, nil, errors.Wrapf(domain.ErrOrderExpired, "expiry %s", fields.Expiry.Format(time.RFC3339))
	}
	// 买单成交要从托管付款，没有托管的买单永远无法结算
	if fields.Side == domain.SideBuy && c.EscrowAmount.Sign() <= 0 {
		return nil, nil, errors.Wrapf(domain.ErrInsufficientFunds, "buy order requires escrow, commitment %s has none", commitmentID)
	}

	// 花费作废符并消费承诺，单事务落盘；此后才允许订单进入撮合引擎
	if err := r.store.ConsumeAndSpend(commitmentID, nullifier); err != nil {
		return nil, nil, err
	}

	order := &domain.Order{
		ID:            uuid.NewString(),
		CommitmentID:  c.ID,
		Owner:         c.Owner,
		TokenID:       fields.TokenID,
		Side:          fields.Side,
		Type:          fields.Type,
		Amount:        fields.Amount,
		MinFillAmount: fields.MinFillAmount,
		Filled:        decimal.Zero,
		VisibleSlice:  fields.VisibleSlice,
		Expiry:        fields.Expiry,
		Public:        fields.Public,
		Status:        domain.OrderStatusActive,
		RevealedAt:    now,
	}
	// Market 订单的承诺价只参与哈希的非零约束，不参与撮合
	if fields.Type != domain.OrderTypeMarket {
		order.LimitPrice = fields.LimitPrice
	}

	r.log.WithFields(logrus.Fields{
		"commitment": c.ID,
		"order":      order.ID,
		"type":       order.Type,
		"side":       order.Side,
	}).Info("承诺已揭示")
	return order, c, nil
}

// Cancel 取消未消费的承诺并退还全部托管。
// 仅所有者可取消；消费后的承诺对任何后续揭示/取消都报 ErrUnauthorized。
// 取消不花费作废符：摘要墓碑已经阻止同一承诺重放。
func (r *Registry) Cancel(commitmentID string, caller common.Address) (*domain.Commitment, decimal.Decimal, error) {
	c, err := r.store.GetCommitment(commitmentID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	if c.Owner != caller {
		return nil, decimal.Zero, errors.Wrapf(domain.ErrUnauthorized, "caller %s, owner %s", caller.Hex(), c.Owner.Hex())
	}
	if c.Consumed {
		return nil, decimal.Zero, errors.Wrapf(domain.ErrUnauthorized, "commitment %s already consumed", commitmentID)
	}
	if err := r.store.Consume(commitmentID); err != nil {
		return nil, decimal.Zero, err
	}
	refund, err := r.vault.ReleaseToOwner(commitmentID)
	if err != nil {
		return nil, decimal.Zero, err
	}
	r.log.WithFields(logrus.Fields{
		"commitment": commitmentID,
		"refund":     refund.String(),
	}).Info("承诺已取消")
	return c, refund, nil
}

// CommitmentTimestamp 只读查询：承诺创建时间
func (r *Registry) CommitmentTimestamp(commitmentID string) (time.Time, error) {
	c, err := r.store.GetCommitment(commitmentID)
	if err != nil {
		return time.Time{}, err
	}
	return c.CreatedAt, nil
}

// IsNullifierSpent 只读查询：作废符是否已花费
func (r *Registry) IsNullifierSpent(n common.Hash) (bool, error) {
	return r.store.IsNullifierSpent(n)
}

func validateFields(f domain.OrderFields) error {
	if !f.Side.Valid() {
		return errors.Wrap(ErrMalformedFields, "invalid side")
	}
	if !f.Type.Valid() {
		return errors.Wrap(ErrMalformedFields, "invalid order type")
	}
	if f.Amount.Sign() <= 0 {
		return errors.Wrap(ErrMalformedFields, "amount must be positive")
	}
	if f.MinFillAmount.Sign() < 0 {
		return errors.Wrap(ErrMalformedFields, "negative min fill")
	}
	if f.MinFillAmount.GreaterThan(f.Amount) {
		return errors.Wrapf(domain.ErrFillBelowMinimum,
			"min fill %s exceeds amount %s", f.MinFillAmount, f.Amount)
	}
	if f.Type == domain.OrderTypeIceberg {
		if f.VisibleSlice.Sign() <= 0 || f.VisibleSlice.GreaterThan(f.Amount) {
			return errors.Wrap(ErrMalformedFields, "iceberg visible slice must be in (0, amount]")
		}
	}
	if f.Type.Sliced() && f.Expiry.IsZero() {
		return errors.Wrap(ErrMalformedFields, "vwap/twap orders require an expiry")
	}
	return nil
}
