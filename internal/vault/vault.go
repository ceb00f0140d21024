// Package vault 托管金库：资金在承诺与揭示之间由金库独占保管。
// 锁定中的资金只能经由金库流出，其他组件不得直接扣减。
package vault

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/veilbook/darkpool/internal/settlement"
)

var (
	// ErrAlreadyLocked 每个承诺只允许一次锁定
	ErrAlreadyLocked = errors.New("vault: escrow already locked for commitment")
	// ErrEscrowExceeded 扣减超出剩余托管额度
	ErrEscrowExceeded = errors.New("vault: draw exceeds remaining escrow")
	// ErrUnknownCommitment 承诺没有托管记录
	ErrUnknownCommitment = errors.New("vault: no escrow for commitment")
)

// entry 单个承诺的托管台账
// 守恒律：任意时刻 Locked == Applied + Released + 剩余
type entry struct {
	owner    common.Address
	locked   decimal.Decimal
	applied  decimal.Decimal
	released decimal.Decimal
}

func (e *entry) remaining() decimal.Decimal {
	return e.locked.Sub(e.applied).Sub(e.released)
}

// Vault 托管金库。托管一律以场内抵押币计价（承诺阶段订单方向尚未揭示，
// 无法按标的资产区分），买方成交按比例扣减，终态时退还残余。
type Vault struct {
	mu          sync.Mutex
	account     common.Address // 金库自身账户
	collateral  string         // 抵押币种
	transferrer settlement.Adapter
	entries     map[string]*entry // 承诺 ID -> 台账
	log         *logrus.Entry
}

// New 创建金库
func New(account common.Address, collateral string, transferrer settlement.Adapter, log *logrus.Logger) *Vault {
	return &Vault{
		account:     account,
		collateral:  collateral,
		transferrer: transferrer,
		entries:     make(map[string]*entry),
		log:         log.WithField("component", "vault"),
	}
}

// Account 返回金库账户地址
func (v *Vault) Account() common.Address {
	return v.account
}

// Collateral 返回托管币种
func (v *Vault) Collateral() string {
	return v.collateral
}

// Lock 从所有者外部余额划入金库托管。
// 余额不足时由转账方返回 ErrInsufficientFunds，此处不产生任何台账。
func (v *Vault) Lock(commitmentID string, owner common.Address, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return errors.New("vault: lock amount must be positive")
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.entries[commitmentID]; ok {
		return errors.Wrapf(ErrAlreadyLocked, "commitment %s", commitmentID)
	}
	if err := v.transferrer.Transfer(owner, v.account, v.collateral, amount); err != nil {
		return err
	}
	v.entries[commitmentID] = &entry{owner: owner, locked: amount}
	v.log.WithFields(logrus.Fields{
		"commitment": commitmentID,
		"owner":      owner.Hex(),
		"amount":     amount.String(),
	}).Debug("托管锁定")
	return nil
}

// Available 剩余可用托管额度；无台账返回零
func (v *Vault) Available(commitmentID string) decimal.Decimal {
	v.mu.Lock()
	defer v.mu.Unlock()
	if e, ok := v.entries[commitmentID]; ok {
		return e.remaining()
	}
	return decimal.Zero
}

// ApplyToFill 成交扣减：把 amount 抵押币从托管划给对手方。
// 扣减永远不会让托管为负。
func (v *Vault) ApplyToFill(commitmentID string, counterparty common.Address, amount decimal.Decimal) error {
	if amount.Sign() <= 0 {
		return errors.New("vault: fill draw must be positive")
	}
	v.mu.Lock()
	defer v.mu.Unlock()

	e, ok := v.entries[commitmentID]
	if !ok {
		return errors.Wrapf(ErrUnknownCommitment, "commitment %s", commitmentID)
	}
	if e.remaining().LessThan(amount) {
		return errors.Wrapf(ErrEscrowExceeded, "remaining %s, draw %s", e.remaining().String(), amount.String())
	}
	if err := v.transferrer.Transfer(v.account, counterparty, v.collateral, amount); err != nil {
		return err
	}
	e.applied = e.applied.Add(amount)
	return nil
}

// Unapply 撤销一笔成交扣减（结算另一腿失败时的补偿路径）。
// 资金从对手方划回金库，台账回到扣减前的状态。
func (v *Vault) Unapply(commitmentID string, counterparty common.Address, amount decimal.Decimal) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	e, ok := v.entries[commitmentID]
	if !ok {
		return errors.Wrapf(ErrUnknownCommitment, "commitment %s", commitmentID)
	}
	if err := v.transferrer.Transfer(counterparty, v.account, v.collateral, amount); err != nil {
		return err
	}
	e.applied = e.applied.Sub(amount)
	return nil
}

// ReleaseToOwner 把全部剩余托管退还所有者（取消或订单终态的残余退款）。
// 没有台账或剩余为零时返回零退款，不算错误。
func (v *Vault) ReleaseToOwner(commitmentID string) (decimal.Decimal, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	e, ok := v.entries[commitmentID]
	if !ok {
		return decimal.Zero, nil
	}
	refund := e.remaining()
	if refund.Sign() <= 0 {
		return decimal.Zero, nil
	}
	if err := v.transferrer.Transfer(v.account, e.owner, v.collateral, refund); err != nil {
		return decimal.Zero, err
	}
	e.released = e.released.Add(refund)
	v.log.WithFields(logrus.Fields{
		"commitment": commitmentID,
		"refund":     refund.String(),
	}).Debug("托管退还")
	return refund, nil
}

// Balances 返回 (locked, applied, released)，守恒律断言用
func (v *Vault) Balances(commitmentID string) (locked, applied, released decimal.Decimal, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	e, ok := v.entries[commitmentID]
	if !ok {
		return decimal.Zero, decimal.Zero, decimal.Zero, errors.Wrapf(ErrUnknownCommitment, "commitment %s", commitmentID)
	}
	return e.locked, e.applied, e.released, nil
}
