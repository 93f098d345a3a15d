package jobqueue

import (
	"crypto/sha256"
	"sync"
)

// ProvenanceEntry points a generated output back at the source it came from.
type ProvenanceEntry struct {
	SourcePath string
	Label      string
}

// Provenance maps output references to their source images for the lifetime
// of the process. References are keyed by digest so large data URIs are not
// retained as map keys.
type Provenance struct {
	mu      sync.RWMutex
	entries map[[sha256.Size]byte]ProvenanceEntry
}

// NewProvenance creates an empty provenance map.
func NewProvenance() *Provenance {
	return &Provenance{entries: make(map[[sha256.Size]byte]ProvenanceEntry)}
}

// Put records (or replaces) the entry for ref.
func (p *Provenance) Put(ref string, entry ProvenanceEntry) {
	key := sha256.Sum256([]byte(ref))
	p.mu.Lock()
	p.entries[key] = entry
	p.mu.Unlock()
}

// Lookup returns the entry recorded for ref.
func (p *Provenance) Lookup(ref string) (ProvenanceEntry, bool) {
	key := sha256.Sum256([]byte(ref))
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[key]
	return e, ok
}

// Len returns the number of recorded entries.
func (p *Provenance) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}
