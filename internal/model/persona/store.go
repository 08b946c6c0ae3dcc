package persona

// Store exposes persona retrieval for HTTP handlers.
type Store interface {
	List() []Persona
	FindByID(id string) (Persona, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Persona
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied personas.
func NewMemoryStore(items []Persona) *MemoryStore {
	return &MemoryStore{items: append([]Persona(nil), items...)}
}

// List returns every persona in load order.
func (s *MemoryStore) List() []Persona {
	return append([]Persona(nil), s.items...)
}

// FindByID looks up a persona by identifier.
func (s *MemoryStore) FindByID(id string) (Persona, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Persona{}, false
}

// Replace swaps in p, keeping its position when the id already exists.
func (s *MemoryStore) Replace(p Persona) {
	for i, item := range s.items {
		if item.ID == p.ID {
			s.items[i] = p
			return
		}
	}
	s.items = append(s.items, p)
}

// Default returns the companion persona from store, falling back to the
// built-in definition.
func Default(store Store) Persona {
	if store != nil {
		if p, ok := store.FindByID(DefaultID); ok {
			return p
		}
		if items := store.List(); len(items) > 0 {
			return items[0]
		}
	}
	return Seed()[0]
}
