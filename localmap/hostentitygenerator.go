package localmap

import (
	"sync"
	"time"

	"replicon"
	"replicon/internal/idcache"
)

// reservationTTL mirrors Config.Entities.ReservationTTLSeconds' default.
const reservationTTL = 60 * time.Second

// HostEntityGenerator mints HostEntity ids, recycling freed ones once
// their reservation window has elapsed so a packet still in flight for
// a just-freed id can never be misread as addressing its successor.
type HostEntityGenerator struct {
	mu       sync.Mutex
	next     replicon.HostEntity
	freed    []replicon.HostEntity
	reserved *idcache.ReservationCache[replicon.HostEntity]
}

// NewHostEntityGenerator returns a generator starting from HostEntity 0.
func NewHostEntityGenerator() *HostEntityGenerator {
	return &HostEntityGenerator{reserved: idcache.New[replicon.HostEntity](4096, reservationTTL)}
}

// Generate returns the next available HostEntity, preferring a freed id
// whose reservation has expired over minting a new one.
func (g *HostEntityGenerator) Generate() replicon.HostEntity {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.freed) > 0 {
		candidate := g.freed[0]
		if !g.reserved.IsReserved(candidate) {
			g.freed = g.freed[1:]
			return candidate
		}
	}
	id := g.next
	g.next++
	return id
}

// Free returns id to the pool, reserving it for reservationTTL before
// it becomes eligible for reuse by Generate.
func (g *HostEntityGenerator) Free(id replicon.HostEntity) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reserved.Reserve(id)
	g.freed = append(g.freed, id)
}
