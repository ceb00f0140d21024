package codec

import (
	"testing"
	"testing/quick"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/veilbook/darkpool/internal/domain"
)

func sampleFields() domain.OrderFields {
	return domain.OrderFields{
		Salt:       common.HexToHash("0x01"),
		TokenID:    "WETH",
		Side:       domain.SideBuy,
		Type:       domain.OrderTypeLimit,
		Amount:     decimal.NewFromInt(100),
		LimitPrice: decimal.RequireFromString("2.5"),
	}
}

// 同一字段两次计算摘要必须一致
func TestDigestDeterministic(t *testing.T) {
	owner := common.HexToAddress("0xaa")
	f := sampleFields()

	d1, err := Digest(f, owner)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	d2, err := Digest(f, owner)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if d1 != d2 {
		t.Fatalf("摘要不确定: %s vs %s", d1.Hex(), d2.Hex())
	}
}

// 任一输入变化都应该改变摘要
func TestDigestSensitivity(t *testing.T) {
	owner := common.HexToAddress("0xaa")
	base := sampleFields()
	baseDigest, err := Digest(base, owner)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*domain.OrderFields)
		owner  common.Address
	}{
		{"salt", func(f *domain.OrderFields) { f.Salt = common.HexToHash("0x02") }, owner},
		{"amount", func(f *domain.OrderFields) { f.Amount = decimal.NewFromInt(101) }, owner},
		{"price", func(f *domain.OrderFields) { f.LimitPrice = decimal.RequireFromString("2.6") }, owner},
		{"side", func(f *domain.OrderFields) { f.Side = domain.SideSell }, owner},
		{"token", func(f *domain.OrderFields) { f.TokenID = "WBTC" }, owner},
		{"owner", func(f *domain.OrderFields) {}, common.HexToAddress("0xbb")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := base
			tc.mutate(&f)
			d, err := Digest(f, tc.owner)
			if err != nil {
				t.Fatalf("digest: %v", err)
			}
			if d == baseDigest {
				t.Fatalf("改变 %s 后摘要未变化", tc.name)
			}
		})
	}
}

// 作废符只由 (salt, owner) 决定，与其余字段无关
func TestNullifierIndependentOfFields(t *testing.T) {
	owner := common.HexToAddress("0xaa")
	salt := common.HexToHash("0x0102")

	n1 := Nullifier(salt, owner)
	n2 := Nullifier(salt, owner)
	if n1 != n2 {
		t.Fatal("作废符不确定")
	}
	if Nullifier(common.HexToHash("0x0103"), owner) == n1 {
		t.Fatal("不同盐值产生了相同作废符")
	}
	if Nullifier(salt, common.HexToAddress("0xbb")) == n1 {
		t.Fatal("不同所有者产生了相同作废符")
	}
}

func TestDigestValidation(t *testing.T) {
	owner := common.HexToAddress("0xaa")

	f := sampleFields()
	f.Amount = decimal.Zero
	if _, err := Digest(f, owner); err != ErrNonPositiveAmount {
		t.Fatalf("零数量: got %v", err)
	}

	f = sampleFields()
	f.LimitPrice = decimal.Zero
	if _, err := Digest(f, owner); err != ErrNonPositivePrice {
		t.Fatalf("零价格: got %v", err)
	}

	f = sampleFields()
	f.Side = "SIDEWAYS"
	if _, err := Digest(f, owner); err != ErrInvalidSide {
		t.Fatalf("非法方向: got %v", err)
	}

	// 超出定点精度的小数必须拒绝，否则证明方与验证方会算出不同摘要
	f = sampleFields()
	f.Amount = decimal.RequireFromString("1.000000001")
	if _, err := Digest(f, owner); err == nil {
		t.Fatal("超精度数量未被拒绝")
	}
}

// 属性：任意两个不同盐值不应撞出相同摘要
func TestPropertyDistinctSaltsDistinctDigests(t *testing.T) {
	owner := common.HexToAddress("0xaa")
	property := func(a, b [32]byte) bool {
		if a == b {
			return true
		}
		fa := sampleFields()
		fa.Salt = common.BytesToHash(a[:])
		fb := sampleFields()
		fb.Salt = common.BytesToHash(b[:])
		da, err := Digest(fa, owner)
		if err != nil {
			return false
		}
		db, err := Digest(fb, owner)
		if err != nil {
			return false
		}
		return da != db
	}
	if err := quick.Check(property, &quick.Config{MaxCount: 64}); err != nil {
		t.Fatal(err)
	}
}

func TestDevVerifier(t *testing.T) {
	public := PublicInputs{
		Digest:    common.HexToHash("0x01"),
		Nullifier: common.HexToHash("0x02"),
		Owner:     common.HexToAddress("0xaa"),
	}
	proof := DevProof(public)

	var v DevVerifier
	if !v.Verify(public, proof) {
		t.Fatal("合法证明被拒绝")
	}
	if v.Verify(public, append([]byte{0x00}, proof...)) {
		t.Fatal("篡改证明被接受")
	}
	other := public
	other.Nullifier = common.HexToHash("0x03")
	if v.Verify(other, proof) {
		t.Fatal("证明绑定了错误的公开输入仍被接受")
	}
}
