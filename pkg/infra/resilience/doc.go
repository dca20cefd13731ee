// Package resilience 提供对外部服务调用的韧性原语：指数退避重试、熔断器，
// 以及用于等待异步操作完成的轮询器。
package resilience
