package registry

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/rudder-cd/rudder/domain"
)

// KeyedMutex serializes work per key. Callers on the same key block until
// the holder releases; different keys proceed in parallel. Entries are never
// removed: the key space is bounded by project count times environment
// classes.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*sync.Mutex)}
}

// Lock blocks until the key's mutex is held and returns the release func
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// envKey is the lock key for one (project, environment) pair
func envKey(projectID uuid.UUID, env domain.EnvironmentClass) string {
	return fmt.Sprintf("%s/%s", projectID, env)
}
