package relayer

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/veilbook/darkpool/internal/domain"
)

// Client 场内 HTTP API 客户端
type Client struct {
	http *resty.Client
}

// NewClient 创建客户端
func NewClient(baseURL string) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	return &Client{http: c}
}

// RevealDelay 查询场内揭示延迟
func (c *Client) RevealDelay() (time.Duration, error) {
	var out struct {
		Seconds int64 `json:"reveal_delay_seconds"`
	}
	resp, err := c.http.R().SetResult(&out).Get("/api/params/reveal-delay")
	if err != nil {
		return 0, errors.Wrap(err, "relayer: query reveal delay")
	}
	if resp.IsError() {
		return 0, errors.Errorf("relayer: reveal delay query: %s", resp.Status())
	}
	return time.Duration(out.Seconds) * time.Second, nil
}

// CommitmentTimestamp 查询承诺创建时间
func (c *Client) CommitmentTimestamp(commitmentID string) (time.Time, error) {
	var out struct {
		CreatedAt time.Time `json:"created_at"`
	}
	resp, err := c.http.R().SetResult(&out).
		Get(fmt.Sprintf("/api/commitments/%s/timestamp", commitmentID))
	if err != nil {
		return time.Time{}, errors.Wrap(err, "relayer: query commitment timestamp")
	}
	if resp.IsError() {
		return time.Time{}, errors.Errorf("relayer: timestamp query: %s", resp.Status())
	}
	return out.CreatedAt, nil
}

// Reveal 代持有人提交揭示
func (c *Client) Reveal(commitmentID string, caller common.Address, fields domain.OrderFields, proof []byte) (string, error) {
	body := map[string]interface{}{
		"caller": caller,
		"fields": fields,
	}
	if len(proof) > 0 {
		body["proof"] = base64.StdEncoding.EncodeToString(proof)
	}
	var out struct {
		OrderID string `json:"order_id"`
	}
	resp, err := c.http.R().SetBody(body).SetResult(&out).
		Post(fmt.Sprintf("/api/commitments/%s/reveal", commitmentID))
	if err != nil {
		return "", errors.Wrap(err, "relayer: submit reveal")
	}
	if resp.IsError() {
		return "", errors.Errorf("relayer: reveal rejected: %s %s", resp.Status(), resp.String())
	}
	return out.OrderID, nil
}

// Tick 驱动一次 VWAP/TWAP 切片
func (c *Client) Tick(orderID string) error {
	resp, err := c.http.R().Post(fmt.Sprintf("/api/orders/%s/tick", orderID))
	if err != nil {
		return errors.Wrap(err, "relayer: submit tick")
	}
	if resp.IsError() {
		return errors.Errorf("relayer: tick rejected: %s %s", resp.Status(), resp.String())
	}
	return nil
}

// ExpireDue 触发一轮过期清理
func (c *Client) ExpireDue() error {
	resp, err := c.http.R().Post("/api/orders/expire-due")
	if err != nil {
		return errors.Wrap(err, "relayer: expire sweep")
	}
	if resp.IsError() {
		return errors.Errorf("relayer: expire sweep rejected: %s", resp.Status())
	}
	return nil
}
