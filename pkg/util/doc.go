// Package util 提供通用工具相关的子包。
//
// 子包列表：
//   - xjson: MongoDB Extended JSON 解析与格式化输出
//   - xlru: LRU 缓存，泛型支持、自动 TTL 过期
//   - xpool: 泛型 Worker Pool，可配置 worker/队列大小、优雅关闭
package util
