package overlay

import (
	"sort"
)

// collection stores shapes by ID and remembers insertion order.
type collection struct {
	order []string
	byID  map[string]*Shape
}

func newCollection() *collection {
	return &collection{byID: make(map[string]*Shape)}
}

func (c *collection) get(id string) (*Shape, bool) {
	s, ok := c.byID[id]
	return s, ok
}

func (c *collection) add(s *Shape) {
	c.byID[s.ID] = s
	c.order = append(c.order, s.ID)
}

func (c *collection) remove(id string) {
	if _, ok := c.byID[id]; !ok {
		return
	}
	delete(c.byID, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

func (c *collection) clear() int {
	n := len(c.order)
	c.order = nil
	c.byID = make(map[string]*Shape)
	return n
}

func (c *collection) len() int {
	return len(c.order)
}

// zOrdered returns shapes bottom to top: by Order, then insertion order.
func (c *collection) zOrdered() []*Shape {
	out := make([]*Shape, len(c.order))
	for i, id := range c.order {
		out[i] = c.byID[id]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}
