// Package api реализует operational HTTP surface worker'а.
//
// Surface — только наблюдение и ручные операции оператора:
// статус регистраций, счётчики, просмотр записей компенсаций,
// ручной запуск компенсации и cross-workflow операций.
// Вызовы tasks идут исключительно через engine, не через HTTP.
package api
