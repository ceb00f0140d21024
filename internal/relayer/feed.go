package relayer

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/veilbook/darkpool/internal/events"
)

const (
	reconnectMinBackoff = time.Second
	reconnectMaxBackoff = 30 * time.Second
)

// Feed 场内事件流的 websocket 订阅端，断线自动重连（指数退避）
type Feed struct {
	url string
	log *logrus.Entry
}

// NewFeed 创建订阅端
func NewFeed(url string, log *logrus.Logger) *Feed {
	return &Feed{
		url: url,
		log: log.WithField("component", "relayer.feed"),
	}
}

// Run 启动订阅循环，返回事件通道；ctx 取消后通道关闭
func (f *Feed) Run(ctx context.Context) <-chan events.Envelope {
	out := make(chan events.Envelope, 256)
	go func() {
		defer close(out)
		backoff := reconnectMinBackoff
		for {
			if ctx.Err() != nil {
				return
			}
			start := time.Now()
			if err := f.consume(ctx, out); err != nil && ctx.Err() == nil {
				f.log.WithError(err).Warnf("事件流断开，%s 后重连", backoff)
			}
			// 连接存活过一个完整退避周期视为健康，退避归位
			if time.Since(start) > reconnectMaxBackoff {
				backoff = reconnectMinBackoff
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > reconnectMaxBackoff {
				backoff = reconnectMaxBackoff
			}
		}
	}()
	return out
}

// consume 单次连接的读取循环
func (f *Feed) consume(ctx context.Context, out chan<- events.Envelope) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	f.log.Info("事件流已连接")

	// ctx 取消时强制断开阻塞中的 ReadJSON
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		var env events.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return err
		}
		select {
		case out <- env:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
