// Package storage 提供数据存储相关的子包。
//
// 子包列表：
//   - xmongo: MongoDB 查询整形与批量执行工具
package storage
