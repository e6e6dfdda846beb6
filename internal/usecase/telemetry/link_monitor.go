package telemetry

import (
	"io"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Link 代表一个遥测数据来源 (串口或桥接连接)
type Link struct {
	ID             string
	closer         io.Closer
	ConnectedAt    time.Time
	LastActiveTime time.Time // 最后收到数据的时间
	Lines          uint64
}

// LinkMonitor tracks packet sources by id and drops the ones that have
// gone quiet.
type LinkMonitor struct {
	mu     sync.Mutex
	links  map[string]*Link
	logger *zap.Logger
	now    func() time.Time
}

func NewLinkMonitor(logger *zap.Logger) *LinkMonitor {
	return &LinkMonitor{
		links:  make(map[string]*Link),
		logger: logger,
		now:    time.Now,
	}
}

// Add 注册或替换一个来源; closer 可为 nil
func (m *LinkMonitor) Add(id string, closer io.Closer) {
	now := m.now()
	m.mu.Lock()
	m.links[id] = &Link{ID: id, closer: closer, ConnectedAt: now, LastActiveTime: now}
	m.mu.Unlock()
	m.logger.Info("[LinkMonitor] Link Added", zap.String("link", id))
}

// Touch 更新来源活跃时间; 未知来源自动注册
func (m *LinkMonitor) Touch(id string) {
	now := m.now()
	m.mu.Lock()
	l, ok := m.links[id]
	if !ok {
		l = &Link{ID: id, ConnectedAt: now}
		m.links[id] = l
	}
	l.LastActiveTime = now
	l.Lines++
	m.mu.Unlock()

	if !ok {
		m.logger.Info("[LinkMonitor] Link Up", zap.String("link", id))
	}
}

// Remove 删除来源并关闭其连接
func (m *LinkMonitor) Remove(id string) {
	m.mu.Lock()
	l, ok := m.links[id]
	delete(m.links, id)
	m.mu.Unlock()
	if !ok {
		return
	}
	m.logger.Info("[LinkMonitor] Link Removed", zap.String("link", id), zap.Uint64("lines", l.Lines))
	if l.closer != nil {
		_ = l.closer.Close()
	}
}

// Get returns a copy of the link state.
func (m *LinkMonitor) Get(id string) (Link, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[id]
	if !ok {
		return Link{}, false
	}
	return *l, true
}

func (m *LinkMonitor) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.links)
}

// CheckHeartbeat 检查超时的来源并移除它们, 返回被移除的 id
func (m *LinkMonitor) CheckHeartbeat(timeout time.Duration) []string {
	now := m.now()
	var stale []string
	m.mu.Lock()
	for id, l := range m.links {
		if now.Sub(l.LastActiveTime) > timeout {
			stale = append(stale, id)
			m.logger.Warn("[LinkMonitor] Link Timeout",
				zap.String("link", id),
				zap.Duration("inactive_duration", now.Sub(l.LastActiveTime)))
		}
	}
	m.mu.Unlock()

	for _, id := range stale {
		m.Remove(id)
	}
	return stale
}
