// Package registry holds the sensor whitelist: a fixed table with exactly one
// slot per supported sensor category. The slot table is the part of the
// registry that survives a halt; the initialized flag and the occupied count
// are recomputed on every boot.
package registry

import (
	"fmt"

	"github.com/mjasion/balena-home/vitalsgw/pkg/types"
)

// Entry is one category slot.
type Entry struct {
	Category types.Category
	Address  types.Address
	Occupied bool
}

// Table is the preserved slot table. Its length is the registry capacity.
type Table []Entry

// NewTable returns an empty table with one slot per category.
func NewTable(categories ...types.Category) (Table, error) {
	seen := make(map[types.Category]bool, len(categories))
	table := make(Table, 0, len(categories))
	for _, c := range categories {
		if seen[c] {
			return nil, fmt.Errorf("duplicate category %s", c)
		}
		seen[c] = true
		table = append(table, Entry{Category: c})
	}
	return table, nil
}

// Categories lists the slot categories in table order.
func (t Table) Categories() []types.Category {
	out := make([]types.Category, len(t))
	for i, e := range t {
		out[i] = e.Category
	}
	return out
}

// Registry is not safe for concurrent use; the pairing machine serializes access.
type Registry struct {
	table       Table
	initialized bool
	occupied    int
}

// New wraps a slot table. The table is used in place, so callers that restore
// it from preserved storage see every mutation.
func New(table Table) *Registry {
	return &Registry{table: table}
}

// Init recounts occupied slots from the table, resuming state after a halt.
func (r *Registry) Init() error {
	if r.initialized {
		return ErrAlreadyInitialized
	}
	r.occupied = r.countOccupied()
	r.initialized = true
	return nil
}

// Deinit forgets the in-memory state. The slot table is left untouched.
func (r *Registry) Deinit() error {
	if !r.initialized {
		return ErrNotInitialized
	}
	r.occupied = 0
	r.initialized = false
	return nil
}

func (r *Registry) countOccupied() int {
	n := 0
	for _, e := range r.table {
		if e.Occupied {
			n++
		}
	}
	return n
}

// Len returns the number of occupied slots.
func (r *Registry) Len() int { return r.occupied }

// Capacity returns the number of slots.
func (r *Registry) Capacity() int { return len(r.table) }

// Insert binds address to the first free slot of category.
func (r *Registry) Insert(category types.Category, address types.Address) error {
	if !r.initialized {
		return ErrNotInitialized
	}
	if r.occupied == len(r.table) {
		return ErrFull
	}
	for i := range r.table {
		if !r.table[i].Occupied && r.table[i].Category == category {
			r.table[i].Address = address
			r.table[i].Occupied = true
			r.occupied++
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNoSuchCategory, category)
}

// RemoveByAddress frees the slot bound to address. The stale address bytes
// stay in the table and are ignored through the occupancy flag.
func (r *Registry) RemoveByAddress(address types.Address) error {
	return r.remove(func(e Entry) bool { return e.Address.Equal(address) })
}

// RemoveByCategory frees the occupied slot of category.
func (r *Registry) RemoveByCategory(category types.Category) error {
	return r.remove(func(e Entry) bool { return e.Category == category })
}

func (r *Registry) remove(match func(Entry) bool) error {
	if !r.initialized {
		return ErrNotInitialized
	}
	if r.occupied == 0 {
		return ErrNotFound
	}
	for i := range r.table {
		if r.table[i].Occupied && match(r.table[i]) {
			r.table[i].Occupied = false
			r.occupied--
			return nil
		}
	}
	return ErrNotFound
}

// ContainsAddress reports whether address occupies a slot.
func (r *Registry) ContainsAddress(address types.Address) bool {
	if !r.initialized || r.occupied == 0 {
		return false
	}
	for _, e := range r.table {
		if e.Occupied && e.Address.Equal(address) {
			return true
		}
	}
	return false
}

// IsEmpty reports whether no slot is occupied.
func (r *Registry) IsEmpty() bool { return r.occupied == 0 }

// WantsCategory reports whether category has a free slot.
func (r *Registry) WantsCategory(category types.Category) bool {
	if !r.initialized || r.occupied == len(r.table) {
		return false
	}
	for _, e := range r.table {
		if !e.Occupied && e.Category == category {
			return true
		}
	}
	return false
}

// ExportAddresses returns the occupied addresses, in slot order, for use as a
// discovery allow-list.
func (r *Registry) ExportAddresses() ([]types.Address, error) {
	if !r.initialized {
		return nil, ErrNotInitialized
	}
	if r.occupied == 0 {
		return nil, ErrEmpty
	}
	out := make([]types.Address, 0, r.occupied)
	for _, e := range r.table {
		if e.Occupied {
			out = append(out, e.Address)
		}
	}
	return out, nil
}

// Entries returns a copy of the occupied slots.
func (r *Registry) Entries() []Entry {
	var out []Entry
	for _, e := range r.table {
		if e.Occupied {
			out = append(out, e)
		}
	}
	return out
}

// Table returns a copy of the full slot table for persistence.
func (r *Registry) Table() Table {
	out := make(Table, len(r.table))
	copy(out, r.table)
	return out
}
