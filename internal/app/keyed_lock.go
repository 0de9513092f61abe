package app

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 64

// keyedLock serializes work per string key using a fixed set of striped
// mutexes. Two keys may share a stripe; that only costs contention, never
// correctness.
type keyedLock struct {
	stripes [lockStripes]sync.Mutex
}

func (l *keyedLock) Lock(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	m := &l.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m
}
