// Package codec 承诺编解码器：从订单私密字段确定性地导出承诺摘要与作废符。
//
// 哈希使用 BN254 标量域上的 MiMC（gnark-crypto），链下证明方与验证方
// 可以在证明系统内外重算同一函数。纯函数，无任何状态。
package codec

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/veilbook/darkpool/internal/domain"
)

// FixedPointScale 数量与价格进入哈希前的定点精度（小数位数）。
// 证明方与验证方必须使用同一精度，否则摘要不一致。
const FixedPointScale = 8

var (
	// ErrNonPositiveAmount 数量必须严格为正（电路中以乘法逆元约束，此处为显式检查）
	ErrNonPositiveAmount = errors.New("codec: amount must be strictly positive")
	// ErrNonPositivePrice 价格必须严格为正
	ErrNonPositivePrice = errors.New("codec: price must be strictly positive")
	// ErrInvalidSide 方向只能是 BUY 或 SELL
	ErrInvalidSide = errors.New("codec: side must be BUY or SELL")
	// ErrPrecisionExceeded 定点化后仍有小数残留
	ErrPrecisionExceeded = errors.New("codec: value exceeds fixed-point precision")
)

// Digest 计算承诺摘要 = MiMC(salt, amount, price, side, tokenId, owner)
func Digest(f domain.OrderFields, owner common.Address) (common.Hash, error) {
	amount, err := fieldFromDecimal(f.Amount)
	if err != nil {
		return common.Hash{}, err
	}
	if f.Amount.Sign() <= 0 {
		return common.Hash{}, ErrNonPositiveAmount
	}
	price, err := fieldFromDecimal(f.LimitPrice)
	if err != nil {
		return common.Hash{}, err
	}
	if f.LimitPrice.Sign() <= 0 {
		return common.Hash{}, ErrNonPositivePrice
	}
	side, err := fieldFromSide(f.Side)
	if err != nil {
		return common.Hash{}, err
	}

	elems := []fr.Element{
		fieldFromHash(f.Salt),
		amount,
		price,
		side,
		fieldFromString(f.TokenID),
		fieldFromAddress(owner),
	}
	return sponge(elems), nil
}

// Nullifier 计算作废符 = MiMC(salt, owner)。
// 作废符与承诺摘要相互独立：同一 (salt, owner) 即便挂在不同承诺之下，
// 也只能被花费一次。
func Nullifier(salt common.Hash, owner common.Address) common.Hash {
	return sponge([]fr.Element{fieldFromHash(salt), fieldFromAddress(owner)})
}

// sponge 将一串域元素吸入 MiMC 并挤出 256 位摘要
func sponge(elems []fr.Element) common.Hash {
	h := mimc.NewMiMC()
	for i := range elems {
		b := elems[i].Bytes()
		_, _ = h.Write(b[:]) // 输入已约简到域内，Write 不会失败
	}
	return common.BytesToHash(h.Sum(nil))
}

// fieldFromDecimal 定点化到 FixedPointScale 位小数后嵌入标量域
func fieldFromDecimal(d decimal.Decimal) (fr.Element, error) {
	var e fr.Element
	if d.Sign() < 0 {
		return e, ErrPrecisionExceeded
	}
	scaled := d.Shift(FixedPointScale)
	if !scaled.IsInteger() {
		return e, errors.Wrapf(ErrPrecisionExceeded, "value %s", d.String())
	}
	e.SetBigInt(scaled.BigInt())
	return e, nil
}

// fieldFromSide 方向约束到 {1, 2}
func fieldFromSide(s domain.Side) (fr.Element, error) {
	var e fr.Element
	switch s {
	case domain.SideBuy:
		e.SetUint64(1)
	case domain.SideSell:
		e.SetUint64(2)
	default:
		return e, ErrInvalidSide
	}
	return e, nil
}

// fieldFromString 任意字符串先过 Keccak 再模约简入域
func fieldFromString(s string) fr.Element {
	var e fr.Element
	e.SetBytes(crypto.Keccak256([]byte(s)))
	return e
}

func fieldFromHash(h common.Hash) fr.Element {
	var e fr.Element
	e.SetBytes(h[:])
	return e
}

func fieldFromAddress(a common.Address) fr.Element {
	var e fr.Element
	e.SetBigInt(new(big.Int).SetBytes(a[:]))
	return e
}
