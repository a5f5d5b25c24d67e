package xlru

import (
	"reflect"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const maxSize = 1 << 24

// Config 缓存配置。TTL 为 0 表示永不过期。
type Config struct {
	Size int
	TTL  time.Duration
}

// Cache 带 TTL 的 LRU 缓存，必须通过 [New] 创建。
// Close 后读操作返回零值，写操作被忽略。
type Cache[K comparable, V any] struct {
	lru       *expirable.LRU[K, V]
	closed    atomic.Bool
	closeOnce sync.Once
}

// New 创建缓存。onEvicted 可为 nil，它在底层锁内同步执行，不得回调 Cache 自身。
func New[K comparable, V any](cfg Config, onEvicted func(K, V)) (*Cache[K, V], error) {
	switch {
	case cfg.Size <= 0:
		return nil, ErrInvalidSize
	case cfg.Size > maxSize:
		return nil, ErrSizeExceedsMax
	case cfg.TTL < 0:
		return nil, ErrInvalidTTL
	}
	return &Cache[K, V]{lru: expirable.NewLRU(cfg.Size, onEvicted, cfg.TTL)}, nil
}

// Get 获取值并刷新 LRU 顺序。
func (c *Cache[K, V]) Get(key K) (value V, ok bool) {
	if c.closed.Load() {
		return value, false
	}
	return c.lru.Get(key)
}

// Set 写入值，返回是否触发了淘汰。
func (c *Cache[K, V]) Set(key K, value V) bool {
	if c.closed.Load() {
		return false
	}
	return c.lru.Add(key, value)
}

// Contains 检查未过期的 key 是否存在，不刷新 LRU 顺序。
// 上游 Contains 不检查过期，这里用 Peek 代替。
func (c *Cache[K, V]) Contains(key K) bool {
	if c.closed.Load() {
		return false
	}
	_, ok := c.lru.Peek(key)
	return ok
}

// Delete 删除 key，返回是否存在。
func (c *Cache[K, V]) Delete(key K) bool {
	if c.closed.Load() {
		return false
	}
	return c.lru.Remove(key)
}

// Len 返回条目数，可能包含尚未清理的过期条目。
func (c *Cache[K, V]) Len() int {
	if c.closed.Load() {
		return 0
	}
	return c.lru.Len()
}

// Values 按从旧到新返回未过期的值。
func (c *Cache[K, V]) Values() []V {
	if c.closed.Load() {
		return nil
	}
	return c.lru.Values()
}

// Purge 清空缓存。
func (c *Cache[K, V]) Purge() {
	if c.closed.Load() {
		return
	}
	c.lru.Purge()
}

// Close 清空缓存并停止后台过期清理 goroutine。幂等。
func (c *Cache[K, V]) Close() {
	c.closed.Store(true)
	c.closeOnce.Do(func() {
		c.lru.Purge()
		stopCleanup(c.lru)
	})
}

// stopCleanup 关闭 expirable.LRU 未导出的 done 通道，让 TTL>0 时启动的清理 goroutine 退出。
// golang-lru v2.0.7 没有公开 Close；上游结构变化时返回 false（goroutine 泄漏，由测试捕获）。
func stopCleanup(lru any) (stopped bool) {
	defer func() {
		if recover() != nil {
			stopped = false
		}
	}()

	v := reflect.ValueOf(lru)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return false
	}
	done := v.Elem().FieldByName("done")
	if !done.IsValid() || done.Type() != reflect.TypeOf(make(chan struct{})) || done.IsNil() {
		return false
	}
	ch := *(*chan struct{})(unsafe.Pointer(done.UnsafeAddr())) //nolint:gosec // 访问上游未导出字段
	close(ch)
	return true
}
