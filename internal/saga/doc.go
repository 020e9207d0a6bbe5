// Package saga реализует реестр компенсаций saga-шагов.
//
// Worker — участник распределённых транзакций, не их координатор:
// он записывает compensation data после успешных side-effecting шагов
// и откатывает их по команде engine. Инварианты:
//
//   - не более одной живой записи на sagaId (новый шаг перезаписывает)
//   - компенсация без записи — идемпотентный no-op, не ошибка
//   - частичная неудача компенсации СОХРАНЯЕТ запись и помечает её
//     для ручного вмешательства; автоматический повтор запрещён
//
// Порядок отката фиксированный: артефакты, затем ресурсы, затем
// инвалидация cache keys.
package saga
