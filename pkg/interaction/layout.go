package interaction

// Layout is the table's column order and visibility. Hidden columns stay in
// the order list so that showing them again restores their position.
type Layout struct {
	order   []Column
	visible map[Column]bool
}

var defaultVisible = []Column{
	ColumnMediaType,
	ColumnAgent,
	ColumnCustomer,
	ColumnStartTime,
	ColumnEndTime,
	ColumnDuration,
	ColumnDirection,
	ColumnQueue,
}

// DefaultLayout returns all columns in default order with the standard visible set
func DefaultLayout() *Layout {
	l := &Layout{visible: make(map[Column]bool)}
	for _, c := range columns {
		l.order = append(l.order, c.Key)
	}
	for _, c := range defaultVisible {
		l.visible[c] = true
	}
	return l
}

// NewLayout builds a layout showing exactly the given columns in the given order.
// Unknown and duplicate columns are ignored; the remaining columns are appended hidden.
func NewLayout(visible []Column) *Layout {
	l := &Layout{visible: make(map[Column]bool)}
	for _, c := range visible {
		if !c.Valid() || l.visible[c] {
			continue
		}
		l.visible[c] = true
		l.order = append(l.order, c)
	}
	for _, c := range columns {
		if !l.visible[c.Key] {
			l.order = append(l.order, c.Key)
		}
	}
	return l
}

// Order returns all columns, visible or not
func (l *Layout) Order() []Column {
	out := make([]Column, len(l.order))
	copy(out, l.order)
	return out
}

// Visible returns the visible columns in display order
func (l *Layout) Visible() []Column {
	var out []Column
	for _, c := range l.order {
		if l.visible[c] {
			out = append(out, c)
		}
	}
	return out
}

// IsVisible reports whether col is shown
func (l *Layout) IsVisible(col Column) bool {
	return l.visible[col]
}

// ToggleVisibility shows a hidden column or hides a visible one
func (l *Layout) ToggleVisibility(col Column) {
	if !col.Valid() {
		return
	}
	l.visible[col] = !l.visible[col]
}

// Move drags the visible column at index from to index to. Indexes refer to
// Visible(). After a move, visible columns precede hidden ones.
func (l *Layout) Move(from, to int) {
	vis := l.Visible()
	if from == to || from < 0 || to < 0 || from >= len(vis) || to >= len(vis) {
		return
	}

	dragged := vis[from]
	vis = append(vis[:from], vis[from+1:]...)
	vis = append(vis[:to], append([]Column{dragged}, vis[to:]...)...)

	order := make([]Column, 0, len(l.order))
	order = append(order, vis...)
	for _, c := range l.order {
		if !l.visible[c] {
			order = append(order, c)
		}
	}
	l.order = order
}
