package utils

// BiMap is an immutable bidirectional map. If two keys share a value, the
// reverse mapping keeps only one of them.
type BiMap[K comparable, V comparable] struct {
	forward map[K]V
	reverse map[V]K
}

// NewBiMap copies input into a new BiMap.
func NewBiMap[K comparable, V comparable](input map[K]V) *BiMap[K, V] {
	m := &BiMap[K, V]{
		forward: make(map[K]V, len(input)),
		reverse: make(map[V]K, len(input)),
	}
	for k, v := range input {
		m.forward[k] = v
		m.reverse[v] = k
	}
	return m
}

// Lookup finds the value stored for key.
func (m *BiMap[K, V]) Lookup(key K) (V, bool) {
	value, ok := m.forward[key]
	return value, ok
}

// DirectLookup is Lookup returning the zero value for a missing key.
func (m *BiMap[K, V]) DirectLookup(key K) V {
	return m.forward[key]
}

// RLookup finds the key stored for value.
func (m *BiMap[K, V]) RLookup(value V) (K, bool) {
	key, ok := m.reverse[value]
	return key, ok
}

// DirectRLookup is RLookup returning the zero value for a missing value.
func (m *BiMap[K, V]) DirectRLookup(value V) K {
	return m.reverse[value]
}

// Len returns the number of entries.
func (m *BiMap[K, V]) Len() int {
	return len(m.forward)
}
