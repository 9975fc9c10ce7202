package main

// Ordered is a string-keyed map that remembers insertion order. Sync plans
// are built walking the filesystem top down and the bucket in listing order,
// and everything downstream processes keys in that same order.
type Ordered[V any] struct {
	keys   []string
	values map[string]V
}

func NewOrdered[V any]() *Ordered[V] {
	return &Ordered[V]{
		keys:   make([]string, 0),
		values: make(map[string]V),
	}
}

// Set inserts or overwrites a value. Overwriting keeps the key's original
// position.
func (o *Ordered[V]) Set(key string, value V) {
	if _, exists := o.values[key]; !exists {
		o.keys = append(o.keys, key)
	}
	o.values[key] = value
}

func (o *Ordered[V]) Get(key string) (V, bool) {
	value, exists := o.values[key]
	return value, exists
}

func (o *Ordered[V]) Has(key string) bool {
	_, exists := o.values[key]
	return exists
}

// Keys returns the keys in insertion order. The slice is shared, callers
// must not modify it.
func (o *Ordered[V]) Keys() []string {
	return o.keys
}

func (o *Ordered[V]) Len() int {
	return len(o.keys)
}
