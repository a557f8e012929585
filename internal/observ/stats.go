package observ

import "fmt"

// Stats counts what the call-merging transform did to a module.
type Stats struct {
	FuncsSeen       int
	FuncsChanged    int
	GroupsMerged    int
	CallsEliminated int
}

// Add accumulates other into s.
func (s *Stats) Add(other Stats) {
	s.FuncsSeen += other.FuncsSeen
	s.FuncsChanged += other.FuncsChanged
	s.GroupsMerged += other.GroupsMerged
	s.CallsEliminated += other.CallsEliminated
}

// Changed reports whether any function was restructured.
func (s Stats) Changed() bool { return s.FuncsChanged > 0 }

func (s Stats) String() string {
	return fmt.Sprintf("%d/%d functions changed, %d groups merged, %d calls eliminated",
		s.FuncsChanged, s.FuncsSeen, s.GroupsMerged, s.CallsEliminated)
}
