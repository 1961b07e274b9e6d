// Package biz 提供文档检索服务的业务逻辑层。
//
// 该包采用分层架构，将业务逻辑拆分为以下组件：
//   - DocumentStore: 包装嵌入供应商与向量索引，负责惰性初始化与持久化
//   - RAGService: 编排摄取（分块、嵌入、索引、落盘）与查询（检索、提示组装、生成）
//   - QueryCache: 基于 Redis 的查询结果缓存
package biz
