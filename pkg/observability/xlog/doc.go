// Package xlog 基于 log/slog 的结构化日志库。
//
// # 核心功能
//
//   - Builder 模式配置（输出目标、级别、格式、轮转）
//   - 动态级别调整（运行时热更新）
//   - 强制 context 传递，方法签名只接受 slog.Attr
//   - Discard() 丢弃型 Logger，作为库组件未注入 logger 时的默认值
//
// xlog 不提供全局 Logger。库代码通过依赖注入获得 Logger，
// 测试可将 Builder 输出指向 bytes.Buffer 捕获日志。
//
// # 创建 Logger
//
// Builder 采用 first-error-wins：遇到第一个配置错误后，Build 返回该错误。
//
//	logger, cleanup, err := xlog.New().
//		SetLevel(xlog.LevelDebug).
//		SetFormat("json").
//		SetRotation("/var/log/xmongoctl/app.log").
//		Build()
//	if err != nil {
//		return err
//	}
//	defer cleanup()
//
// # 便捷属性
//
// [Err]、[Duration]、[Component]、[Operation]、[Count]、[Collection]、[Database]、[RunID]。
package xlog
