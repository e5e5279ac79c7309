// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package location

// State remembers the last position a polling backend delivered so it can skip
// re-delivering an unchanged fix.
type State struct {
	last     Position
	haveLast bool
}

// HasChanged reports whether p should be delivered. The first position always is.
func (s *State) HasChanged(p Position) bool {
	if !s.haveLast {
		return true
	}
	return p.HasSignificantChange(s.last)
}

// Update stores p as the last delivered position.
func (s *State) Update(p Position) {
	s.last = p
	s.haveLast = true
}

// Reset forgets the last delivered position.
func (s *State) Reset() {
	s.last = Position{}
	s.haveLast = false
}
