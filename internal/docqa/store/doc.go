// Package store 提供文档问答服务的外部协作方访问层。
//
// 该包定义了三类协作方接口及其实现：
//   - KnowledgeService: 检索生成网关（索引、同步、Agent、问答），由 GatewayClient 实现
//   - ObjectStore: 文档暂存用的 S3 兼容对象存储，由 MinioStore 实现
//   - SessionStore: 会话快照持久化，由 RedisSessionStore 实现
package store
