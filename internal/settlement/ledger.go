package settlement

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/veilbook/darkpool/internal/domain"
)

// Ledger 内存账本，Adapter 的本地实现。
// 本地运行与测试使用；生产环境替换为链上结算适配器。
type Ledger struct {
	mu       sync.RWMutex
	balances map[common.Address]map[string]decimal.Decimal
}

// NewLedger 创建空账本
func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[common.Address]map[string]decimal.Decimal),
	}
}

// Deposit 给账户记入余额（初始化注资用）
func (l *Ledger) Deposit(account common.Address, tokenID string, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(account, tokenID, amount)
}

// BalanceOf 查询余额
func (l *Ledger) BalanceOf(account common.Address, tokenID string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if tokens, ok := l.balances[account]; ok {
		if b, ok := tokens[tokenID]; ok {
			return b
		}
	}
	return decimal.Zero
}

// Transfer 原子转账：余额不足则整体失败，双方余额不变
func (l *Ledger) Transfer(from, to common.Address, tokenID string, amount decimal.Decimal) error {
	if amount.Sign() < 0 {
		return errors.New("ledger: negative transfer amount")
	}
	if amount.Sign() == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	have := decimal.Zero
	if tokens, ok := l.balances[from]; ok {
		have = tokens[tokenID]
	}
	if have.LessThan(amount) {
		return errors.Wrapf(domain.ErrInsufficientFunds, "ledger: %s has %s %s, need %s",
			from.Hex(), have.String(), tokenID, amount.String())
	}
	l.balances[from][tokenID] = have.Sub(amount)
	l.credit(to, tokenID, amount)
	return nil
}

func (l *Ledger) credit(account common.Address, tokenID string, amount decimal.Decimal) {
	tokens, ok := l.balances[account]
	if !ok {
		tokens = make(map[string]decimal.Decimal)
		l.balances[account] = tokens
	}
	tokens[tokenID] = tokens[tokenID].Add(amount)
}
