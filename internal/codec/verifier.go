package codec

import (
	"bytes"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// PublicInputs 证明的公开输入：链上可见的承诺摘要、作废符与所有者
type PublicInputs struct {
	Digest    common.Hash
	Nullifier common.Hash
	Owner     common.Address
}

// Verifier 订单良构性证明的验证能力。
// 以注入接口建模，撮合核心无需真实证明系统即可测试；
// 电路编译与可信设置不在本仓库范围内。
type Verifier interface {
	Verify(public PublicInputs, proof []byte) bool
}

// DevVerifier 开发用验证器：证明即公开输入的 Keccak 绑定标签。
// 只校验证明确实绑定了 (digest, nullifier, owner) 三元组，
// 不提供零知识性，仅供本地联调与测试。
type DevVerifier struct{}

// DevProof 生成 DevVerifier 认可的绑定标签
func DevProof(public PublicInputs) []byte {
	return crypto.Keccak256(public.Digest[:], public.Nullifier[:], public.Owner[:])
}

func (DevVerifier) Verify(public PublicInputs, proof []byte) bool {
	return bytes.Equal(proof, DevProof(public))
}
