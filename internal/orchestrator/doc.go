// Package orchestrator управляет жизненным циклом task handlers.
//
// Оркестратор регистрирует handlers в engine-клиенте, следит за их
// здоровьем и перезапускает unhealthy экземпляры:
//
//   - success rate <= 50% по окну handler'а — unhealthy
//   - unhealthy больше половины — critical, перезапуск каждого
//     unhealthy handler'а
//   - серия timeout-ошибок одного handler'а — точечный перезапуск
//     без ожидания critical
//   - backlog выше порога — снижение concurrency ceiling (backpressure)
//
// Упавший restart переводит регистрацию в терминальный failed;
// остальные handlers продолжают работать.
package orchestrator
