package pool

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"
)

// Config defines the configuration for the worker pool.
type Config struct {
	// Capacity 最大并发 goroutine 数
	Capacity int
	// ExpiryDuration goroutine 空闲过期时间
	ExpiryDuration time.Duration
	// Nonblocking 池满时 Submit 直接返回 ErrPoolOverload
	Nonblocking bool
}

// DefaultPoolConfig 返回默认池配置
func DefaultPoolConfig() *Config {
	return &Config{
		Capacity:       8,
		ExpiryDuration: 10 * time.Second,
	}
}

// Stats contains statistics about the worker pool.
type Stats struct {
	Submitted int64 // 已提交任务数
	Completed int64 // 已完成任务数
	Rejected  int64 // 拒绝任务数
	Panics    int64 // 恢复的 panic 数
	Inline    int64 // 提交失败后在调用方 goroutine 执行的任务数
}

// Pool is a named ants pool with task counters.
type Pool struct {
	name string
	pool *ants.Pool

	submitted atomic.Int64
	completed atomic.Int64
	rejected  atomic.Int64
	panics    atomic.Int64
	inline    atomic.Int64

	closeOnce sync.Once
	closed    atomic.Bool
}

// NewPool creates a new worker pool with the given configuration.
func NewPool(name string, cfg *Config) (*Pool, error) {
	if cfg == nil {
		cfg = DefaultPoolConfig()
	}
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("%w: capacity must be positive", ErrInvalidPoolConfig)
	}

	p := &Pool{name: name}
	ap, err := ants.NewPool(cfg.Capacity,
		ants.WithExpiryDuration(cfg.ExpiryDuration),
		ants.WithNonblocking(cfg.Nonblocking),
		ants.WithPanicHandler(func(r interface{}) {
			p.panics.Add(1)
			logger.Errorw("Worker panic recovered", "pool", name, "panic", r)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("创建 ants 池失败: %w", err)
	}
	p.pool = ap

	logger.Debugw("Worker pool created", "name", name, "capacity", cfg.Capacity)
	return p, nil
}

// Name 返回池名称
func (p *Pool) Name() string { return p.name }

// Cap 返回池容量
func (p *Pool) Cap() int { return p.pool.Cap() }

// Submit 提交任务到池中执行
func (p *Pool) Submit(task func()) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	err := p.pool.Submit(func() {
		defer p.completed.Add(1)
		task()
	})
	if err != nil {
		if errors.Is(err, ants.ErrPoolOverload) {
			p.rejected.Add(1)
			return ErrPoolOverload
		}
		if errors.Is(err, ants.ErrPoolClosed) {
			return ErrPoolClosed
		}
		return err
	}
	p.submitted.Add(1)
	return nil
}

// Run 对 tasks 并发执行并等待全部完成。提交失败的任务在当前 goroutine 中直接执行，
// 因此每个任务恰好执行一次。
func (p *Pool) Run(tasks []func()) {
	var wg sync.WaitGroup
	for _, task := range tasks {
		task := task
		wg.Add(1)
		done := func() {
			defer wg.Done()
			task()
		}
		if err := p.Submit(done); err != nil {
			logger.Debugw("pool submit failed, running inline", "pool", p.name, "error", err.Error())
			p.inline.Add(1)
			done()
		}
	}
	wg.Wait()
}

// Release 关闭池并释放资源
func (p *Pool) Release() {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		p.pool.Release()
		logger.Debugw("Worker pool released", "name", p.name)
	})
}

// Stats 返回池统计信息快照
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Rejected:  p.rejected.Load(),
		Panics:    p.panics.Load(),
		Inline:    p.inline.Load(),
	}
}
