// Package xconf 基于 koanf 的配置加载器。
//
// 支持 YAML（.yaml/.yml）与 JSON（.json），可从文件或字节加载，
// 并通过 fsnotify 监视文件变更自动重载。xmongoctl 用它加载
// 连接参数、分析阈值和 advise 查询清单。
//
// Reload 解析成功后原子替换 koanf 实例；Client() 返回的指针是快照，
// Reload 后仍可用但数据过期，需要时应重新调用 Client()。
//
//	cfg, err := xconf.New("/etc/xmongoctl/config.yaml")
//	if err != nil {
//		return err
//	}
//	var mc xmongo.Config
//	if err := cfg.Unmarshal("mongo", &mc); err != nil {
//		return err
//	}
package xconf
