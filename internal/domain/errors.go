package domain

import "errors"

// 业务错误分类。所有操作都是同步失败：一旦返回错误，
// 整个请求不产生任何部分状态（无部分承诺、无部分揭示、无部分释放）。
var (
	// ErrDigestInUse 摘要已存在（存活或已消费的墓碑均算占用）
	ErrDigestInUse = errors.New("commitment digest already in use")
	// ErrInsufficientFunds 托管锁定时余额不足
	ErrInsufficientFunds = errors.New("insufficient funds for escrow lock")
	// ErrRevealTooEarly 揭示早于 createdAt + revealDelay
	ErrRevealTooEarly = errors.New("reveal submitted before reveal delay elapsed")
	// ErrRevealExpired 揭示晚于最大揭示窗口
	ErrRevealExpired = errors.New("reveal window has expired")
	// ErrHashMismatch 揭示字段重新哈希与承诺摘要不一致
	ErrHashMismatch = errors.New("revealed fields do not match commitment digest")
	// ErrNullifierReused 作废符已被花费（防二次揭示）
	ErrNullifierReused = errors.New("nullifier already spent")
	// ErrInvalidProof 零知识证明验证失败
	ErrInvalidProof = errors.New("order well-formedness proof is invalid")
	// ErrUnauthorized 调用者不是承诺所有者，或承诺已被消费
	ErrUnauthorized = errors.New("caller not authorized for this commitment")
	// ErrOrderExpired 订单已过期，不再接受成交
	ErrOrderExpired = errors.New("order is past expiry")
	// ErrFillBelowMinimum minFillAmount 超过订单总量，任何单笔成交都无法满足。
	// 撮合中低于 minFill 的候选只会被跳过，不会返回此错误。
	ErrFillBelowMinimum = errors.New("fill below minimum fill amount")
	// ErrSettlementFailed 结算适配器转账失败，本次撮合整体回滚
	ErrSettlementFailed = errors.New("settlement transfer failed")
)
