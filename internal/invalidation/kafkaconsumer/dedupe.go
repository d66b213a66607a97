package kafkaconsumer

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// refDedupe skips events that are strictly older than the last applied
// event for the same parcel reference. Recording happens only after a
// successful apply so failed messages stay retryable.
type refDedupe struct {
	mu  sync.Mutex
	lru *lru.Cache[string, int64]
}

func newRefDedupe(size int) *refDedupe {
	if size <= 0 {
		size = 4096
	}
	c, _ := lru.New[string, int64](size)
	return &refDedupe{lru: c}
}

func (d *refDedupe) stale(key string, ts int64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	last, ok := d.lru.Get(key)
	return ok && ts < last
}

func (d *refDedupe) record(key string, ts int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if last, ok := d.lru.Get(key); ok && ts < last {
		return
	}
	d.lru.Add(key, ts)
}
