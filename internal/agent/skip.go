package agent

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// SkipList holds URL globs of pages that are never instrumented.
type SkipList struct {
	globs []glob.Glob
}

// NewSkipList compiles patterns such as "chrome://*". Matching is
// case-insensitive.
func NewSkipList(patterns []string) (*SkipList, error) {
	s := &SkipList{}
	for _, p := range patterns {
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return nil, fmt.Errorf("skip pattern %q: %w", p, err)
		}
		s.globs = append(s.globs, g)
	}
	return s, nil
}

func (s *SkipList) Match(pageURL string) bool {
	if s == nil {
		return false
	}
	u := strings.ToLower(pageURL)
	for _, g := range s.globs {
		if g.Match(u) {
			return true
		}
	}
	return false
}
