package usecase

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

const defaultQueueSize = 10000

// DataDispatcher publishes payloads from a bounded queue with a fixed pool
// of workers. Dispatch never blocks the packet handler.
type DataDispatcher struct {
	dataChan    chan MQPayload
	producer    DataProducer
	topic       string
	logger      *zap.Logger
	workerCount int
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

// NewDataDispatcher 创建一个新的数据分发器
func NewDataDispatcher(producer DataProducer, topic string, workerCount int, logger *zap.Logger) *DataDispatcher {
	if workerCount <= 0 {
		workerCount = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &DataDispatcher{
		dataChan:    make(chan MQPayload, defaultQueueSize),
		producer:    producer,
		topic:       topic,
		workerCount: workerCount,
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Start 启动 worker 协程池
func (d *DataDispatcher) Start() {
	for i := 0; i < d.workerCount; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	d.logger.Info("DataDispatcher started", zap.Int("workers", d.workerCount), zap.String("topic", d.topic))
}

// Stop 停止分发器并等待所有 worker 退出; 队列中剩余的数据会先发送完
func (d *DataDispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.dataChan)
	d.mu.Unlock()

	d.wg.Wait()
	d.cancel()
	d.logger.Info("DataDispatcher stopped",
		zap.Uint64("sent", d.sent.Load()),
		zap.Uint64("failed", d.failed.Load()),
		zap.Uint64("dropped", d.dropped.Load()))
}

// Dispatch 将数据投递到缓冲通道 (非阻塞，满则丢弃并计数)
func (d *DataDispatcher) Dispatch(p MQPayload) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		return false
	}
	select {
	case d.dataChan <- p:
		return true
	default:
		if d.dropped.Add(1)%1000 == 1 {
			d.logger.Warn("DataDispatcher channel full, dropping data", zap.Uint64("dropped", d.dropped.Load()))
		}
		return false
	}
}

func (d *DataDispatcher) worker(id int) {
	defer d.wg.Done()
	for p := range d.dataChan {
		d.process(id, p)
	}
}

func (d *DataDispatcher) process(id int, p MQPayload) {
	if err := d.producer.Produce(d.ctx, d.topic, p.Robot, p); err != nil {
		d.failed.Add(1)
		d.logger.Error("DataDispatcher failed to send data",
			zap.Int("worker", id),
			zap.String("type", p.Type),
			zap.Error(err))
		return
	}
	d.sent.Add(1)
}

// Stats returns sent, failed and dropped payload counts.
func (d *DataDispatcher) Stats() (sent, failed, dropped uint64) {
	return d.sent.Load(), d.failed.Load(), d.dropped.Load()
}
