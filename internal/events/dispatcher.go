package events

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"tempalias/backend/internal/domain"
	"tempalias/backend/internal/monitoring"
)

// deliverTimeout 单个 Sink 的投递超时
const deliverTimeout = 5 * time.Second

// ErrQueueFull 协程池队列已满，通知被丢弃
var ErrQueueFull = errors.New("notification queue full")

// Submitter 异步执行任务，队列已满时返回 false
type Submitter interface {
	TrySubmit(task func()) bool
}

type namedSink struct {
	name string
	sink Sink
}

// Dispatcher 把新邮件事件分发给所有 Sink。
//
// 投递在协程池中执行，调用方立即返回；投递失败只记录日志。
type Dispatcher struct {
	pool    Submitter
	sinks   []namedSink
	metrics *monitoring.Metrics
	log     *zap.Logger
}

// NewDispatcher 创建事件分发器
func NewDispatcher(pool Submitter, metrics *monitoring.Metrics, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{pool: pool, metrics: metrics, log: log}
}

// Register 注册投递目标，需在开始分发前调用
func (d *Dispatcher) Register(name string, sink Sink) {
	if sink == nil {
		return
	}
	d.sinks = append(d.sinks, namedSink{name: name, sink: sink})
}

// NotifyNewMail 实现 inbound.Notifier
func (d *Dispatcher) NotifyNewMail(alias *domain.Alias, email *domain.Email) {
	if len(d.sinks) == 0 {
		return
	}
	event := NewEmailReceived(alias, email)

	for _, s := range d.sinks {
		ok := d.pool.TrySubmit(func() { d.deliver(s, event) })
		if !ok {
			d.metrics.RecordNotification(s.name, ErrQueueFull)
			d.log.Warn("notification dropped, queue full",
				zap.String("notifier", s.name),
				zap.String("email_id", event.EmailID),
			)
		}
	}
}

func (d *Dispatcher) deliver(s namedSink, event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	err := s.sink.Deliver(ctx, event)
	d.metrics.RecordNotification(s.name, err)
	if err != nil {
		d.log.Warn("failed to deliver notification",
			zap.String("notifier", s.name),
			zap.String("email_id", event.EmailID),
			zap.Error(err),
		)
	}
}
