// Package lock взаимное исключение по участникам бронирования: проверка
// занятости и запись занятия выполняются под одной блокировкой.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrTimeout не удалось взять блокировку до отмены контекста
var ErrTimeout = errors.New("lock acquire timeout")

// Local блокировки внутри одного процесса
type Local struct {
	mu    sync.Mutex
	locks map[string]*localEntry
}

type localEntry struct {
	sem  chan struct{}
	refs int
}

// NewLocal создаёт блокировки внутри процесса
func NewLocal() *Local {
	return &Local{locks: make(map[string]*localEntry)}
}

// Acquire берёт все ключи по порядку. При отмене контекста уже взятые ключи отпускаются.
func (l *Local) Acquire(ctx context.Context, keys ...string) (func(), error) {
	keys = normalizeKeys(keys)
	acquired := make([]*localEntry, 0, len(keys))

	releaseAll := func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			<-acquired[i].sem
		}
		l.mu.Lock()
		for _, key := range keys {
			l.unref(key)
		}
		l.mu.Unlock()
	}

	l.mu.Lock()
	entries := make([]*localEntry, len(keys))
	for i, key := range keys {
		e, ok := l.locks[key]
		if !ok {
			e = &localEntry{sem: make(chan struct{}, 1)}
			l.locks[key] = e
		}
		e.refs++
		entries[i] = e
	}
	l.mu.Unlock()

	for i, e := range entries {
		select {
		case e.sem <- struct{}{}:
			acquired = append(acquired, e)
		case <-ctx.Done():
			releaseAll()
			return nil, fmt.Errorf("%w: %s: %v", ErrTimeout, keys[i], ctx.Err())
		}
	}

	var once sync.Once
	return func() { once.Do(releaseAll) }, nil
}

func (l *Local) unref(key string) {
	e, ok := l.locks[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// normalizeKeys сортирует и убирает дубликаты
func normalizeKeys(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
