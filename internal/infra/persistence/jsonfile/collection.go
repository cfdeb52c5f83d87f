// Package jsonfile persists one record collection as a single JSON object
// whose keys are record identifiers. Key order is preserved across a
// load/save cycle and the whole file is rewritten on every save.
package jsonfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
)

// Indent is the per-level indentation of a saved file.
const Indent = "    "

// ErrParse is returned when a backing file exists but does not hold a JSON
// object of records.
var ErrParse = errors.New("backing file is not a valid record collection")

// Collection is an insertion-ordered map of records keyed by identifier.
type Collection[T any] struct {
	keys  []string
	items map[string]T
}

// New returns an empty collection.
func New[T any]() *Collection[T] {
	return &Collection[T]{items: make(map[string]T)}
}

// Len returns the number of records.
func (c *Collection[T]) Len() int { return len(c.keys) }

// Get returns the record stored under key.
func (c *Collection[T]) Get(key string) (T, bool) {
	v, ok := c.items[key]
	return v, ok
}

// Has reports whether key is present.
func (c *Collection[T]) Has(key string) bool {
	_, ok := c.items[key]
	return ok
}

// Put inserts v at the end or replaces an existing record in place.
func (c *Collection[T]) Put(key string, v T) {
	if _, ok := c.items[key]; !ok {
		c.keys = append(c.keys, key)
	}
	c.items[key] = v
}

// Delete removes key, reporting whether it was present.
func (c *Collection[T]) Delete(key string) bool {
	if _, ok := c.items[key]; !ok {
		return false
	}
	delete(c.items, key)
	for i, k := range c.keys {
		if k == key {
			c.keys = append(c.keys[:i:i], c.keys[i+1:]...)
			break
		}
	}
	return true
}

// Keys yields identifiers in insertion order.
func (c *Collection[T]) Keys() iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, k := range c.keys {
			if !yield(k) {
				return
			}
		}
	}
}

// All yields key/record pairs in insertion order.
func (c *Collection[T]) All() iter.Seq2[string, T] {
	return func(yield func(string, T) bool) {
		for _, k := range c.keys {
			if !yield(k, c.items[k]) {
				return
			}
		}
	}
}

// Clone returns an independent copy. Records are copied by value.
func (c *Collection[T]) Clone() *Collection[T] {
	cp := &Collection[T]{
		keys:  append([]string(nil), c.keys...),
		items: make(map[string]T, len(c.items)),
	}
	for k, v := range c.items {
		cp.items[k] = v
	}
	return cp
}

// Marshal renders the collection as an indented JSON object.
func Marshal[T any](c *Collection[T]) ([]byte, error) {
	if c.Len() == 0 {
		return []byte("{}\n"), nil
	}
	var buf bytes.Buffer
	buf.WriteString("{\n")
	for i, k := range c.keys {
		key, err := encode(k, "")
		if err != nil {
			return nil, err
		}
		val, err := encode(c.items[k], Indent)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", k, err)
		}
		buf.WriteString(Indent)
		buf.Write(key)
		buf.WriteString(": ")
		buf.Write(val)
		if i < len(c.keys)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

func encode(v any, prefix string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent(prefix, Indent)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Unmarshal parses a JSON object of records, keeping key order. Duplicate
// keys keep their first position and last value.
func Unmarshal[T any](data []byte) (*Collection[T], error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("%w: expected object, found %v", ErrParse, tok)
	}
	c := New[T]()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrParse, err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected key %v", ErrParse, tok)
		}
		var v T
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("%w: record %s: %v", ErrParse, key, err)
		}
		c.Put(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after object", ErrParse)
	}
	return c, nil
}

// Read loads the collection at path. A missing file yields an error
// matching fs.ErrNotExist; an unparseable one matches ErrParse.
func Read[T any](path string) (*Collection[T], error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Unmarshal[T](data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Load is Read with a missing file treated as an empty collection.
func Load[T any](path string) (*Collection[T], error) {
	c, err := Read[T](path)
	if errors.Is(err, fs.ErrNotExist) {
		return New[T](), nil
	}
	return c, err
}

// Save atomically replaces the file at path with the rendered collection.
func Save[T any](path string, c *Collection[T]) error {
	data, err := Marshal(c)
	if err != nil {
		return err
	}
	return WriteAtomic(path, data)
}

// WriteAtomic writes data to a temp file beside path and renames it into
// place, so readers never observe a partially written file.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dirs: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
