// Package cache реализует response cache для идемпотентных результатов tasks.
//
// Кэш процессно-локальный и не шарится между worker instances:
// входы tasks считаются пере-вычислимыми. TTL проверяется лениво на
// чтении, фонового sweep'а нет. Вытеснение при переполнении — FIFO
// по порядку вставки (НЕ LRU: чтение не продвигает запись).
package cache

import (
	"sync"
	"time"
)

// Default configuration values.
const (
	defaultCapacity = 1000
	defaultTTL      = 5 * time.Minute
)

// entry — одна запись кэша.
type entry struct {
	value     any
	createdAt time.Time
}

// Cache — bounded TTL key/value кэш.
//
// Потокобезопасен: один мьютекс на структуру, операции дешёвые и
// in-memory, блокировок на suspension points нет.
type Cache struct {
	mu       sync.Mutex
	entries  map[string]entry
	order    []string // порядок вставки для FIFO-вытеснения
	capacity int
	ttl      time.Duration

	// now подменяется в тестах.
	now func() time.Time
}

// New создаёт Cache. capacity <= 0 и ttl <= 0 заменяются дефолтами.
func New(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{
		entries:  make(map[string]entry, capacity),
		order:    make([]string, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get возвращает значение по ключу.
// Запись старше TTL никогда не возвращается как hit — она лениво
// удаляется прямо на чтении.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	if c.now().Sub(e.createdAt) > c.ttl {
		c.remove(key)
		return nil, false
	}

	return e.value, true
}

// Put вставляет значение. При переполнении вытесняется
// самая старая по порядку вставки запись.
func (c *Cache) Put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Перезапись существующего ключа не меняет порядок вставки
	if _, exists := c.entries[key]; exists {
		c.entries[key] = entry{value: value, createdAt: c.now()}
		return
	}

	if len(c.entries) >= c.capacity {
		c.evictOldest()
	}

	c.entries[key] = entry{value: value, createdAt: c.now()}
	c.order = append(c.order, key)
}

// Invalidate удаляет запись по ключу (для saga-компенсации).
func (c *Cache) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return false
	}
	c.remove(key)
	return true
}

// Len возвращает количество резидентных записей.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Utilization возвращает заполненность кэша [0..1].
func (c *Cache) Utilization() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return float64(len(c.entries)) / float64(c.capacity)
}

// evictOldest вытесняет первую по порядку вставки запись.
// Вызывается под мьютексом.
func (c *Cache) evictOldest() {
	for len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		if _, ok := c.entries[oldest]; ok {
			delete(c.entries, oldest)
			return
		}
		// Ключ уже удалён (Invalidate/TTL) — берём следующий
	}
}

// remove удаляет запись и её место в порядке вставки.
// Вызывается под мьютексом.
func (c *Cache) remove(key string) {
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
