package translator

import "sync"

type pairKey struct {
	from Format
	to   Format
}

var (
	registryMu sync.RWMutex
	registry   = make(map[pairKey]TranslatorConfig)
)

// Register associates a TranslatorConfig with a (from, to) format pair.
// Later calls for the same pair overwrite earlier ones.
func Register(from, to Format, cfg TranslatorConfig) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[pairKey{from: from, to: to}] = cfg
}

// Lookup returns the TranslatorConfig registered for a (from, to) pair, if any.
func Lookup(from, to Format) (TranslatorConfig, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	cfg, ok := registry[pairKey{from: from, to: to}]
	return cfg, ok
}
