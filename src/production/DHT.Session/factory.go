package session

import (
	"fmt"

	config "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Config"
)

// NewStore builds the store named by SESSION_STORE. Memory stores get a
// cleanup routine; badger expires entries on its own.
func NewStore(cfg *config.SessionConfig) (Store, error) {
	switch cfg.Store {
	case config.SessionStoreMemory, "":
		store := NewMemoryStore()
		if cfg.CleanupInterval > 0 {
			store.StartCleanupRoutine(cfg.CleanupInterval)
		}
		return store, nil
	case config.SessionStoreBadger:
		return OpenBadgerStore(cfg.BadgerPath)
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Store)
	}
}
