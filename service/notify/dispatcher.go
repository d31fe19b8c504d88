package notify

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ProjectsTask/EasyAuction/metrics"
)

// 事件类型
const (
	EventBidAccepted         = "bid_accepted"
	EventSettlementCompleted = "settlement_completed"
	EventSettlementFailed    = "settlement_failed"
	EventAuctionCancelled    = "auction_cancelled"
)

// Event 推送给订阅者的消息体
type Event struct {
	Topic   string      `json:"topic"`
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
	Time    int64       `json:"time"`
}

type subscriberID int64

// DeliveryFn 投递函数必须是非阻塞的
type DeliveryFn func(eventData []byte)

type CancelFn func()

// Dispatcher 按拍卖 ID 分组的订阅者注册表, 以扇出方式广播
// 投递是尽力而为: 不重试也不持久化, 断线的订阅者需要主动拉取状态
type Dispatcher struct {
	logger *zap.Logger

	// mu protects "subscribes" and "currentID" fields.
	mu         sync.RWMutex
	currentID  subscriberID
	subscribes map[string]map[subscriberID]DeliveryFn
}

func NewDispatcher(logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		logger:     logger,
		currentID:  1,
		subscribes: map[string]map[subscriberID]DeliveryFn{},
	}
}

// Subscribe 注册订阅者, 返回的 CancelFn 在连接关闭时调用
func (d *Dispatcher) Subscribe(topic string, fn DeliveryFn) CancelFn {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := d.currentID
	d.currentID += 1

	subs, ok := d.subscribes[topic]
	if !ok {
		subs = map[subscriberID]DeliveryFn{}
		d.subscribes[topic] = subs
	}
	subs[id] = fn
	metrics.SubscriberAdded()

	var once sync.Once
	return func() {
		once.Do(func() { d.unsubscribe(topic, id) })
	}
}

func (d *Dispatcher) unsubscribe(topic string, id subscriberID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subs, ok := d.subscribes[topic]
	if !ok {
		return
	}
	if _, ok := subs[id]; !ok {
		return
	}
	delete(subs, id)
	metrics.SubscriberRemoved()
	if len(subs) == 0 {
		delete(d.subscribes, topic)
	}
}

// Subscribers 当前订阅某个主题的数量
func (d *Dispatcher) Subscribers(topic string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribes[topic])
}

// Broadcast 投递给主题下的所有订阅者
// 先在锁内拍快照再逐个投递, 投递过程中的订阅/退订不会影响本次遍历
func (d *Dispatcher) Broadcast(topic, eventType string, payload interface{}) {
	eventData, err := json.Marshal(Event{
		Topic:   topic,
		Type:    eventType,
		Payload: payload,
		Time:    time.Now().Unix(),
	})
	if err != nil {
		d.logger.Error("failed on marshal event", zap.String("topic", topic), zap.Error(err))
		return
	}

	d.mu.RLock()
	targets := make([]DeliveryFn, 0, len(d.subscribes[topic]))
	for _, fn := range d.subscribes[topic] {
		targets = append(targets, fn)
	}
	d.mu.RUnlock()

	for _, fn := range targets {
		d.deliver(topic, fn, eventData)
	}
}

func (d *Dispatcher) deliver(topic string, fn DeliveryFn, eventData []byte) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("subscriber panicked", zap.String("topic", topic), zap.Any("panic", r))
		}
	}()
	fn(eventData)
}
