package cache

// Merge reconciles a freshly fetched entity into items. An entity with the
// same identifier is replaced at its index; otherwise e is appended. items is
// not modified.
func Merge[T Entity](items []T, e T) []T {
	id := e.EntityID()
	out := make([]T, len(items), len(items)+1)
	copy(out, items)
	for i := range out {
		if out[i].EntityID() == id {
			out[i] = e
			return out
		}
	}
	return append(out, e)
}

// collection is the ordered, identifier-indexed slice held by a Store.
type collection[T Entity] struct {
	items []T
	index map[string]int
}

func newCollection[T Entity](items []T) collection[T] {
	c := collection[T]{index: make(map[string]int, len(items))}
	for _, e := range items {
		c.merge(e)
	}
	return c
}

func (c *collection[T]) merge(e T) {
	id := e.EntityID()
	if i, ok := c.index[id]; ok {
		c.items[i] = e
		return
	}
	c.index[id] = len(c.items)
	c.items = append(c.items, e)
}

func (c *collection[T]) get(id string) (T, bool) {
	i, ok := c.index[id]
	if !ok {
		var zero T
		return zero, false
	}
	return c.items[i], true
}

func (c *collection[T]) remove(id string) bool {
	i, ok := c.index[id]
	if !ok {
		return false
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	delete(c.index, id)
	for j := i; j < len(c.items); j++ {
		c.index[c.items[j].EntityID()] = j
	}
	return true
}

func (c *collection[T]) snapshot() []T {
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}
