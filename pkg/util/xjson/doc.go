// Package xjson 提供 MongoDB Extended JSON 的解析与格式化。
//
// 命令行与日志场景下，查询条件、排序与执行计划都以 JSON 形式出入。
// 本包统一使用 relaxed 模式：ObjectID 写作 {"$oid": ...}，时间写作 {"$date": ...}，
// 普通数值保持 JSON 数字。
//
// # 功能概览
//
//   - [ParseDocument]: 解析为 bson.M，用于查询条件。
//   - [ParseOrdered]: 解析为 bson.D，保留键顺序，用于排序与索引键。
//   - [PrettyE]: 格式化输出，失败时返回 [ErrMarshal] 包装的错误。
//   - [Pretty]: 便捷版本，失败时返回 "<marshal error: ...>" 标记字符串。
//
// 非文档值（切片、标量、nil）无法按 BSON 文档编码，Pretty 回退到 encoding/json。
package xjson
