package addriver

import (
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// NameSet mints collision-free names, seeded from every name already
// present in the module being transformed — mirroring the way this
// codebase's type interner hands out stable, unique identifiers rather
// than trusting the caller never to collide.
//
// Every name entering or leaving a NameSet is first normalized to NFC, so
// that two spellings of what a reader would call "the same name" (e.g.
// a precomposed vs. combining-mark encoding of an accented identifier,
// plausible for names surviving a round trip through another toolchain's
// frontend) collide instead of silently coexisting.
type NameSet struct {
	taken map[string]struct{}
}

// NewNameSet seeds a NameSet with the given existing names.
func NewNameSet(existing []string) *NameSet {
	ns := &NameSet{taken: make(map[string]struct{}, len(existing))}
	for _, n := range existing {
		ns.taken[norm.NFC.String(n)] = struct{}{}
	}
	return ns
}

// Mint returns base+suffix, or base+suffix+"2", base+suffix+"3", ... if
// that collides with a name already reserved.
func (ns *NameSet) Mint(base, suffix string) string {
	base = norm.NFC.String(base)
	candidate := base + suffix
	if _, taken := ns.taken[candidate]; !taken {
		ns.taken[candidate] = struct{}{}
		return candidate
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s%s%d", base, suffix, n)
		if _, taken := ns.taken[candidate]; !taken {
			ns.taken[candidate] = struct{}{}
			return candidate
		}
	}
}
