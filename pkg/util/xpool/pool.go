package xpool

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

const (
	maxWorkers   = 1 << 16
	maxQueueSize = 1 << 24
)

var _ io.Closer = (*Pool[struct{}])(nil)

// Pool 是泛型 worker pool。New 创建后 worker 立即启动。
type Pool[T any] struct {
	handler func(T)
	queue   chan T
	opts    options

	mu      sync.RWMutex // 保护 stopped 与 queue 的关闭
	stopped bool

	wg   sync.WaitGroup
	done chan struct{}
	once sync.Once
}

// New 创建并启动 worker pool。
func New[T any](workers, queueSize int, handler func(T), opts ...Option) (*Pool[T], error) {
	if handler == nil {
		return nil, ErrNilHandler
	}
	if workers < 1 || workers > maxWorkers {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWorkers, workers)
	}
	if queueSize < 1 || queueSize > maxQueueSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQueueSize, queueSize)
	}

	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	p := &Pool[T]{
		handler: handler,
		queue:   make(chan T, queueSize),
		opts:    o,
		done:    make(chan struct{}),
	}
	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}
	go func() {
		p.wg.Wait()
		close(p.done)
	}()
	return p, nil
}

// worker 持续消费队列直到 queue 被关闭，保证关闭时排空剩余任务。
func (p *Pool[T]) worker() {
	defer p.wg.Done()
	for task := range p.queue {
		p.run(task)
	}
}

func (p *Pool[T]) run(task T) {
	defer func() {
		if r := recover(); r != nil {
			// 仅记录任务类型，避免任务内容中的敏感信息进入日志
			p.opts.logger.Error("xpool: worker panic recovered",
				slog.String("pool", p.opts.name),
				slog.Any("panic", r),
				slog.String("task_type", fmt.Sprintf("%T", task)),
			)
		}
	}()
	p.handler(task)
}

// Submit 非阻塞提交任务。
// 队列满时返回 ErrQueueFull，pool 已关闭时返回 ErrPoolStopped。
func (p *Pool[T]) Submit(task T) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}
	select {
	case p.queue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown 停止接收新任务并等待队列排空。
// ctx 到期时立即返回 ctx 错误，残留 worker 仍在后台处理剩余任务，可通过 Done() 等待。
func (p *Pool[T]) Shutdown(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	p.once.Do(func() {
		p.mu.Lock()
		p.stopped = true
		close(p.queue)
		p.mu.Unlock()
	})
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 等价于 Shutdown(context.Background())。
func (p *Pool[T]) Close() error {
	return p.Shutdown(context.Background())
}

// Done 返回在所有 worker 退出后关闭的 channel。
func (p *Pool[T]) Done() <-chan struct{} {
	return p.done
}
