// Package cache provides a bounded in-memory store for finished
// simulation results. It is injected explicitly: nothing in the core
// holds cache state globally.
package cache

import (
	"container/list"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/crypto/sha3"
)

// Store is the minimal interface the simulators need. Implementations
// must be safe for concurrent use.
type Store interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{})
}

// Key builds a deterministic cache key from a parameter struct: the
// msgpack encoding (stable field order, unlike maps) hashed with
// SHA3-256.
func Key(prefix string, params interface{}) (string, error) {
	raw, err := msgpack.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encoding cache key params: %w", err)
	}
	digest := sha3.Sum256(raw)
	return "qkd:" + prefix + ":" + hex.EncodeToString(digest[:8]), nil
}

type entry struct {
	key   string
	value interface{}
}

// LRU is a fixed-capacity store evicting the least recently used entry
// once full. Both Get and Set count as use.
type LRU struct {
	mu    sync.Mutex
	cap   int
	ll    *list.List
	items map[string]*list.Element
}

// NewLRU creates a store holding at most capacity entries.
func NewLRU(capacity int) *LRU {
	if capacity < 1 {
		capacity = 1
	}
	return &LRU{
		cap:   capacity,
		ll:    list.New(),
		items: make(map[string]*list.Element, capacity),
	}
}

// Get returns the cached value for key, marking it recently used.
func (c *LRU) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*entry).value, true
}

// Set stores value under key, evicting the oldest entry when the store
// is full.
func (c *LRU) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*entry).value = value
		c.ll.MoveToFront(el)
		return
	}

	el := c.ll.PushFront(&entry{key: key, value: value})
	c.items[key] = el

	if c.ll.Len() > c.cap {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*entry).key)
	}
}

// Len reports the number of cached entries.
func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
