package registration

import "sync"

type PageView interface {
	VisibleIDs() []string
}

// Selection tracks ids chosen for bulk actions. Only ids on the visible page
// count: stored ids that fall off the page after a refetch stay stored but are
// ignored until they are visible again.
type Selection struct {
	page PageView

	mu  sync.Mutex
	ids map[string]struct{}
}

func NewSelection(page PageView) *Selection {
	return &Selection{page: page, ids: make(map[string]struct{})}
}

// Toggle flips id and reports whether it is now selected.
func (s *Selection) Toggle(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// SelectAll replaces the selection with exactly the current page.
func (s *Selection) SelectAll() {
	visible := s.page.VisibleIDs()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.ids = make(map[string]struct{}, len(visible))
	for _, id := range visible {
		s.ids[id] = struct{}{}
	}
}

// ToggleAll clears the selection when the whole page is selected and selects
// the whole page otherwise.
func (s *Selection) ToggleAll() bool {
	visible := s.page.VisibleIDs()

	s.mu.Lock()
	defer s.mu.Unlock()

	all := len(visible) > 0
	for _, id := range visible {
		if _, ok := s.ids[id]; !ok {
			all = false
			break
		}
	}

	s.ids = make(map[string]struct{}, len(visible))
	if all || len(visible) == 0 {
		return false
	}
	for _, id := range visible {
		s.ids[id] = struct{}{}
	}
	return true
}

func (s *Selection) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = make(map[string]struct{})
}

func (s *Selection) Has(id string) bool {
	for _, visible := range s.page.VisibleIDs() {
		if visible == id {
			s.mu.Lock()
			_, ok := s.ids[id]
			s.mu.Unlock()
			return ok
		}
	}
	return false
}

// IDs returns the effective selection in page order.
func (s *Selection) IDs() []string {
	visible := s.page.VisibleIDs()

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.ids))
	for _, id := range visible {
		if _, ok := s.ids[id]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func (s *Selection) Count() int {
	return len(s.IDs())
}
