// Package resultcache keeps recent calculation results in memory so the PDF
// report can be rendered from an id without recomputing. An entry holds the
// name and city printed on the report but none of the contact fields (email,
// cédula/NIT, phone), and it is gone once the TTL expires.
package resultcache

import (
	"time"

	"github.com/patrickmn/go-cache"

	"ahorrove/internal/taxcalc"
)

// Entry is what the report needs about one calculation.
type Entry struct {
	ID            string
	CreatedAt     time.Time
	Nombre        string
	TipoCliente   string
	Ciudad        string
	ValorVehiculo float64
	Result        taxcalc.Result
}

type Store struct {
	c *cache.Cache
}

// New returns a store whose entries expire after ttl.
func New(ttl time.Duration) *Store {
	return &Store{c: cache.New(ttl, 2*ttl)}
}

func (s *Store) Put(e Entry) {
	s.c.Set(e.ID, e, cache.DefaultExpiration)
}

func (s *Store) Get(id string) (Entry, bool) {
	v, ok := s.c.Get(id)
	if !ok {
		return Entry{}, false
	}
	return v.(Entry), true
}

// Len counts entries, including expired ones not yet evicted.
func (s *Store) Len() int {
	return s.c.ItemCount()
}
