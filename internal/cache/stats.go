package cache

// StoreStats holds per-store counters.
type StoreStats struct {
	Entries   int     `json:"entries"`
	Bytes     int64   `json:"bytes"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

// Stats aggregates counters across all stores.
type Stats struct {
	Stores    map[string]StoreStats `json:"stores"`
	Entries   int                   `json:"entries"`
	Bytes     int64                 `json:"bytes"`
	MaxBytes  int64                 `json:"max_bytes"`
	Hits      int64                 `json:"hits"`
	Misses    int64                 `json:"misses"`
	Evictions int64                 `json:"evictions"`
	HitRate   float64               `json:"hit_rate"`
}

// Stats returns a snapshot of per-store and global counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := Stats{
		Stores:   make(map[string]StoreStats, len(c.stores)),
		MaxBytes: c.maxBytes,
	}
	for name, st := range c.stores {
		ss := StoreStats{
			Entries:   len(st.entries),
			Bytes:     st.bytes,
			Hits:      st.hits,
			Misses:    st.misses,
			Evictions: st.evictions,
			HitRate:   hitRate(st.hits, st.misses),
		}
		out.Stores[name] = ss
		out.Entries += ss.Entries
		out.Bytes += ss.Bytes
		out.Hits += ss.Hits
		out.Misses += ss.Misses
		out.Evictions += ss.Evictions
	}
	out.HitRate = hitRate(out.Hits, out.Misses)
	return out
}

func hitRate(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
