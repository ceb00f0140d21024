package events

import (
	"sync"
	"time"
)

// Envelope 统一事件信封
type Envelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
	At      time.Time   `json:"at"`
}

// Bus 进程内事件总线。
// 发布是非阻塞的：订阅者跟不上时丢弃最旧的积压，
// 核心流水线不会被慢消费者拖住（自动中继只是旁观者）。
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Envelope
	next int
}

// NewBus 创建事件总线
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Envelope)}
}

// Subscribe 订阅事件流，返回通道与退订函数
func (b *Bus) Subscribe(buffer int) (<-chan Envelope, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Envelope, buffer)
	b.subs[id] = ch
	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Publish 向所有订阅者投递事件（非阻塞）
func (b *Bus) Publish(eventType string, payload interface{}, at time.Time) {
	env := Envelope{Type: eventType, Payload: payload, At: at}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- env:
		default:
			// 腾出最旧的一条再投递
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- env:
			default:
			}
		}
	}
}
