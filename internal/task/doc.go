// Package task реализует ядро выполнения tasks.
//
// Ядро сидит между внешним workflow engine и бизнес-логикой task body:
//
//  1. Валидация входа (VALIDATION_ERROR — сразу, без retry и кэша)
//  2. Сборка execution context: поля task, записанное состояние
//     workflow (история команд, счётчик), complexity/model hints
//  3. Проба response cache (hit — сразу к envelope)
//  4. Выполнение task body через retry executor, запись в кэш
//  5. Envelope с continuation-метаданными: suggested actions,
//     next steps по статической карте intent → steps, insights
//     по истории workflow
//
// Execute никогда не паникует и не возвращает ошибку: engine ждёт
// result object, поэтому любая ошибка конвертируется в envelope
// с intent=workflow_error.
package task
