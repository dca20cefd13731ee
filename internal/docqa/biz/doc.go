// Package biz 提供文档问答服务的业务逻辑层。
//
// 该包将业务逻辑拆分为以下组件：
//   - ExtractCitations: 从检索生成响应中提取去重后的来源文件名
//   - Orchestrator: 发起单次检索生成调用、计时并返回结构化结果
//   - Provisioner: 驱动 暂存 -> 建索引 -> 同步 -> 建 Agent 的部署状态机
//   - TeardownController: 按依赖顺序回收远端资源
//   - Session / SessionManager: 会话历史与统计
//   - Service: 组合以上组件，提供统一的服务接口
package biz
