// Package engine — клиент внешнего workflow engine поверх RabbitMQ.
//
// Engine сам планирует workflows и вызывает зарегистрированные
// handlers; Conveyor разговаривает с ним только через этот пакет:
//   - connection.go — соединение с бесконечным reconnect
//   - topology.go   — exchanges, queues, bindings
//   - publisher.go  — публикация результатов и координационных сообщений
//   - consumer.go   — потребление task-вызовов
//   - client.go     — границa engine: registerTaskHandler, start/stop,
//     reconnect, isConnected, подписка на события
//
// Типы сообщений:
//   - task.invoke     — engine вызывает task handler
//   - task.result     — envelope с результатом обратно в engine
//   - coordination.*  — cross-workflow примитивы (state, event,
//     resource handoff, completion signal)
//
// Exchanges:
//   - conveyor.tasks        — вызовы tasks (queue per task name)
//   - conveyor.results      — результаты
//   - conveyor.coordination — cross-workflow сообщения
//   - conveyor.dlq          — dead letter queue
package engine
