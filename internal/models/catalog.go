package models

import (
	"fmt"
	"sort"
)

// Class labels produced by the bank surveillance model
const (
	LabelGun           = "Gun"
	LabelHandsUp       = "Hands-up"
	LabelKnife         = "Knife"
	LabelMask          = "Mask"
	LabelNormalPerson  = "Normal-Person"
	LabelSecurityGuard = "Security-Guard"
)

// ClassCatalog maps detector class ids to semantic labels. It is read-only
// once built and safe to share between goroutines.
type ClassCatalog struct {
	labels map[int]string
	ids    map[string]int
}

// NewClassCatalog builds a catalog from an id to label mapping. Labels must be unique.
func NewClassCatalog(labels map[int]string) (*ClassCatalog, error) {
	c := &ClassCatalog{
		labels: make(map[int]string, len(labels)),
		ids:    make(map[string]int, len(labels)),
	}
	for id, label := range labels {
		if label == "" {
			return nil, fmt.Errorf("empty label for class id %d", id)
		}
		if prev, dup := c.ids[label]; dup {
			return nil, fmt.Errorf("label %q used by class ids %d and %d", label, prev, id)
		}
		c.labels[id] = label
		c.ids[label] = id
	}
	return c, nil
}

// DefaultClassCatalog returns the catalog of the GuardIQ detection model
func DefaultClassCatalog() *ClassCatalog {
	c, err := NewClassCatalog(map[int]string{
		0: LabelGun,
		1: LabelHandsUp,
		2: LabelKnife,
		3: LabelMask,
		4: LabelNormalPerson,
		5: LabelSecurityGuard,
	})
	if err != nil {
		panic(err)
	}
	return c
}

// Label returns the label for a class id, or an error matching ErrUnknownClass
func (c *ClassCatalog) Label(id int) (string, error) {
	label, ok := c.labels[id]
	if !ok {
		return "", &UnknownClassError{ClassID: id}
	}
	return label, nil
}

// Has reports whether the class id has a label
func (c *ClassCatalog) Has(id int) bool {
	_, ok := c.labels[id]
	return ok
}

// ID returns the class id registered for a label
func (c *ClassCatalog) ID(label string) (int, bool) {
	id, ok := c.ids[label]
	return id, ok
}

// IDs returns all known class ids in ascending order
func (c *ClassCatalog) IDs() []int {
	ids := make([]int, 0, len(c.labels))
	for id := range c.labels {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
