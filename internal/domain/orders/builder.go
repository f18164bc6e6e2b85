package orders

import (
	"sync"

	"github.com/google/uuid"
)

// Builder accumulates one draft requisition for a workspace session. The
// four kinds are mutually exclusive, so switching kind discards the draft
// list and search text.
type Builder struct {
	mu       sync.Mutex
	kind     Kind
	items    []*DraftOrderItem
	search   string
	priority string
	notes    string
}

func NewBuilder() *Builder {
	return &Builder{kind: KindInvestigation, priority: PriorityRoutine}
}

// SelectType switches the requisition kind, resetting the draft list and
// search text regardless of prior state.
func (b *Builder) SelectType(kind Kind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.kind = kind
	b.items = nil
	b.search = ""
}

// Kind returns the selected requisition kind.
func (b *Builder) Kind() Kind {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.kind
}

// AddItem appends a draft line for the catalog item. Re-adding an item id
// already in the draft is a no-op.
func (b *Builder) AddItem(item CatalogItem) *DraftOrderItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.items {
		if existing.ItemID == item.ID {
			return existing
		}
	}
	d := &DraftOrderItem{
		LocalID:   uuid.New(),
		ItemID:    item.ID,
		ItemName:  item.Name,
		ItemCode:  item.Code,
		Quantity:  1,
		UnitPrice: item.UnitPrice,
	}
	b.items = append(b.items, d)
	return d
}

// SetQuantity updates a draft line's quantity, clamped to a minimum of 1.
func (b *Builder) SetQuantity(localID uuid.UUID, qty int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if qty < 1 {
		qty = 1
	}
	for _, d := range b.items {
		if d.LocalID == localID {
			d.Quantity = qty
			return true
		}
	}
	return false
}

// SetNotes attaches free-text notes to a draft line.
func (b *Builder) SetNotes(localID uuid.UUID, notes string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, d := range b.items {
		if d.LocalID == localID {
			d.Notes = notes
			return true
		}
	}
	return false
}

// RemoveItem drops a draft line unconditionally.
func (b *Builder) RemoveItem(localID uuid.UUID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, d := range b.items {
		if d.LocalID == localID {
			b.items = append(b.items[:i], b.items[i+1:]...)
			return true
		}
	}
	return false
}

// SetSearch stores the builder's catalog search text.
func (b *Builder) SetSearch(q string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.search = q
}

// Search returns the current search text.
func (b *Builder) Search() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.search
}

// SetPriority sets the requisition priority if valid.
func (b *Builder) SetPriority(p string) bool {
	if !validPriorities[p] {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.priority = p
	return true
}

// SetClinicalNotes sets the requisition-level clinical notes.
func (b *Builder) SetClinicalNotes(notes string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.notes = notes
}

// Items returns the draft lines in drafted order.
func (b *Builder) Items() []*DraftOrderItem {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*DraftOrderItem, len(b.items))
	copy(out, b.items)
	return out
}

// Total returns the running sum over all draft lines.
func (b *Builder) Total() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var total float64
	for _, d := range b.items {
		total += d.LineTotal()
	}
	return total
}

// State is a read snapshot of the builder for clients.
type State struct {
	Kind     Kind              `json:"kind"`
	Items    []*DraftOrderItem `json:"items"`
	Search   string            `json:"search"`
	Priority string            `json:"priority"`
	Notes    string            `json:"notes"`
	Total    float64           `json:"total"`
}

// Snapshot returns the builder's current state.
func (b *Builder) Snapshot() State {
	items := b.Items()
	b.mu.Lock()
	defer b.mu.Unlock()
	var total float64
	for _, d := range items {
		total += d.LineTotal()
	}
	return State{
		Kind:     b.kind,
		Items:    items,
		Search:   b.search,
		Priority: b.priority,
		Notes:    b.notes,
		Total:    total,
	}
}

// Reset restores the builder to its defaults after a successful submit.
func (b *Builder) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.kind = KindInvestigation
	b.items = nil
	b.search = ""
	b.priority = PriorityRoutine
	b.notes = ""
}
