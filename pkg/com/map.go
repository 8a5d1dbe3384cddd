// Package com contains small concurrency-safe containers shared
// across the broker.
package com

import (
	"errors"
	"sync"
)

// Map defines a concurrent-safe map structure.
type Map[K comparable, V any] struct {
	m  map[K]V
	mu sync.Mutex
}

var ErrNotFound = errors.New("not found")

func NewMap[K comparable, V any]() *Map[K, V] { return &Map[K, V]{m: make(map[K]V, 10)} }

func (m *Map[K, _]) Has(key K) bool    { _, err := m.Find(key); return err == nil }
func (m *Map[K, V]) Put(key K, v V)    { m.mu.Lock(); m.m[key] = v; m.mu.Unlock() }
func (m *Map[K, _]) RemoveByKey(key K) { m.mu.Lock(); delete(m.m, key); m.mu.Unlock() }

// Find searches for the first match by a specified key value,
// returns ErrNotFound otherwise.
func (m *Map[K, V]) Find(key K) (v V, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.m[key]; ok {
		return c, nil
	}
	return v, ErrNotFound
}

// RemoveIf deletes the key only while its value still satisfies the
// predicate; the check and the delete are one atomic step.
func (m *Map[K, V]) RemoveIf(key K, fn func(v V) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.m[key]; ok && fn(v) {
		delete(m.m, key)
		return true
	}
	return false
}
