// Package xlru 带 TTL 的并发安全 LRU 缓存，封装 hashicorp/golang-lru/v2/expirable。
//
// xmongo.Advisor 用它在时间窗口内对重复的索引建议去重。
package xlru
