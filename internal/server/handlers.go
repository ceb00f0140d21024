package server

import (
	"encoding/base64"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/veilbook/darkpool/internal/domain"
)

type commitRequest struct {
	Owner        common.Address  `json:"owner"`
	Digest       common.Hash     `json:"digest"`
	EscrowAmount decimal.Decimal `json:"escrow_amount"`
}

func (s *Server) handleCommit(c *gin.Context) {
	var req commitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := s.venue.Commit(req.Owner, req.Digest, req.EscrowAmount)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"commitment_id": id})
}

type revealRequest struct {
	Caller common.Address     `json:"caller"`
	Fields domain.OrderFields `json:"fields"`
	Proof  string             `json:"proof,omitempty"` // base64
}

func (s *Server) handleReveal(c *gin.Context) {
	var req revealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var proof []byte
	if req.Proof != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.Proof)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "proof must be base64"})
			return
		}
		proof = decoded
	}
	orderID, trades, err := s.venue.Reveal(c.Param("id"), req.Caller, req.Fields, proof)
	if err != nil && orderID == "" {
		s.fail(c, err)
		return
	}
	resp := gin.H{"order_id": orderID, "trades": tradesJSON(trades)}
	// 揭示成功但随即的撮合结算失败：订单保持现状等待后续尝试
	if err != nil {
		resp["settlement_error"] = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

type cancelRequest struct {
	Caller common.Address `json:"caller"`
}

func (s *Server) handleCancel(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	refund, err := s.venue.Cancel(c.Param("id"), req.Caller)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refund_amount": refund})
}

func (s *Server) handleTick(c *gin.Context) {
	trades, err := s.venue.Tick(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": tradesJSON(trades)})
}

func (s *Server) handleExpireDue(c *gin.Context) {
	expired := s.venue.ExpireDue()
	out := make([]gin.H, 0, len(expired))
	for _, ex := range expired {
		out = append(out, gin.H{
			"order_id":      ex.OrderID,
			"commitment_id": ex.CommitmentID,
			"owner":         ex.Owner,
			"refund_amount": ex.Refund,
		})
	}
	c.JSON(http.StatusOK, gin.H{"expired": out})
}

func (s *Server) handleCommitmentTimestamp(c *gin.Context) {
	ts, err := s.venue.CommitmentTimestamp(c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"created_at": ts})
}

func (s *Server) handleNullifier(c *gin.Context) {
	value := common.HexToHash(c.Param("value"))
	spent, err := s.venue.IsNullifierSpent(value)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"nullifier": value, "spent": spent})
}

func (s *Server) handleRevealDelay(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"reveal_delay_seconds": int64(s.venue.RevealDelay().Seconds())})
}

func (s *Server) handleOrderGet(c *gin.Context) {
	order, ok := s.venue.Order(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}
	// 暗池语义：非公开订单不暴露明细
	if !order.Public {
		c.JSON(http.StatusOK, gin.H{"order_id": order.ID, "status": order.Status})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order_id":   order.ID,
		"token_id":   order.TokenID,
		"side":       order.Side,
		"type":       order.Type,
		"amount":     order.Amount,
		"filled":     order.Filled,
		"limit":      order.LimitPrice,
		"status":     order.Status,
		"expiry":     order.Expiry,
		"revealed":   order.RevealedAt,
	})
}

func (s *Server) handleTrades(c *gin.Context) {
	tokenID := c.Query("token_id")
	if tokenID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token_id is required"})
		return
	}
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	trades, err := s.trades.Recent(tokenID, limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": tradesJSON(trades)})
}

func tradesJSON(trades []domain.Trade) []gin.H {
	out := make([]gin.H, 0, len(trades))
	for _, t := range trades {
		out = append(out, gin.H{
			"trade_id":       t.ID,
			"maker_order_id": t.MakerOrderID,
			"taker_order_id": t.TakerOrderID,
			"token_id":       t.TokenID,
			"amount":         t.Amount,
			"price":          t.Price,
			"timestamp":      t.Timestamp,
		})
	}
	return out
}
