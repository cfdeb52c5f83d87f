package core

import (
	"fmt"
	"iter"
	"sync"

	"papila/internal/ident"
	"papila/internal/infra/persistence/jsonfile"
	"papila/pkg/domain"
)

// LoadError reports a backing file that exists but cannot be used. The
// process should stop rather than overwrite it.
type LoadError struct {
	Entity domain.EntityType
	Path   string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s store from %s: %v", e.Entity, e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// table is one write-through collection: the in-memory rows, the file they
// mirror and the allocator for new ids.
type table[T any] struct {
	entity domain.EntityType
	path   string

	mu   sync.RWMutex
	rows *jsonfile.Collection[T]
	ids  *ident.Allocator
}

func openTable[T any](entity domain.EntityType, path string) (*table[T], error) {
	rows, err := jsonfile.Load[T](path)
	if err != nil {
		return nil, &LoadError{Entity: entity, Path: path, Err: err}
	}
	ids, err := ident.Seed(rows.Keys())
	if err != nil {
		return nil, &LoadError{Entity: entity, Path: path, Err: err}
	}
	return &table[T]{entity: entity, path: path, rows: rows, ids: ids}, nil
}

func (t *table[T]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.rows.Len()
}

func (t *table[T]) get(id string) (T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows.Get(id)
	if !ok {
		var zero T
		return zero, domain.ErrNotFound{Entity: t.entity, ID: id}
	}
	return row, nil
}

// scan yields the rows accepted by keep. Each range takes a fresh snapshot,
// so the sequence can be iterated again and reflects later mutations.
func (t *table[T]) scan(keep func(T) bool) iter.Seq[T] {
	return func(yield func(T) bool) {
		t.mu.RLock()
		rows := make([]T, 0, t.rows.Len())
		for _, row := range t.rows.All() {
			if keep == nil || keep(row) {
				rows = append(rows, row)
			}
		}
		t.mu.RUnlock()
		for _, row := range rows {
			if !yield(row) {
				return
			}
		}
	}
}

// commit runs fn on a copy of the rows, saves the copy and only then makes it
// current. On any error memory and file are left as they were.
func (t *table[T]) commit(fn func(rows *jsonfile.Collection[T]) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.commitLocked(fn)
}

func (t *table[T]) commitLocked(fn func(rows *jsonfile.Collection[T]) error) error {
	next := t.rows.Clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := jsonfile.Save(t.path, next); err != nil {
		return fmt.Errorf("save %s store: %w", t.entity, err)
	}
	t.rows = next
	return nil
}

// insert builds a row for the next id and persists it. The id is consumed
// only when the save succeeds.
func (t *table[T]) insert(build func(id string) (T, error)) (T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.ids.Peek()
	row, err := build(id)
	if err != nil {
		var zero T
		return zero, err
	}
	if err := t.commitLocked(func(rows *jsonfile.Collection[T]) error {
		rows.Put(id, row)
		return nil
	}); err != nil {
		var zero T
		return zero, err
	}
	t.ids.Commit()
	return row, nil
}

func (t *table[T]) replace(id string, fn func(T) (T, error)) (T, error) {
	var out T
	err := t.commit(func(rows *jsonfile.Collection[T]) error {
		cur, ok := rows.Get(id)
		if !ok {
			return domain.ErrNotFound{Entity: t.entity, ID: id}
		}
		next, err := fn(cur)
		if err != nil {
			return err
		}
		rows.Put(id, next)
		out = next
		return nil
	})
	return out, err
}

func (t *table[T]) remove(id string) (T, error) {
	var removed T
	err := t.commit(func(rows *jsonfile.Collection[T]) error {
		cur, ok := rows.Get(id)
		if !ok {
			return domain.ErrNotFound{Entity: t.entity, ID: id}
		}
		rows.Delete(id)
		removed = cur
		return nil
	})
	return removed, err
}
