// Package itemid derives stable cache identifiers from human-readable page labels.
package itemid

import "strings"

// MaxLen caps identifier length so ids stay usable as store keys and
// externally-visible names.
const MaxLen = 32

// ID is a normalized page identifier. Two labels that normalize identically
// refer to the same cached item; layers that surface ids to users are
// responsible for disambiguating collisions (e.g. with a numeric suffix).
type ID string

// Normalize maps a label to its ID. It is pure: the same label always yields
// the same ID.
//
// Rules: lowercase, runs of non-alphanumeric characters collapse to a single
// "_", leading/trailing "_" stripped, result truncated to MaxLen.
func Normalize(label string) ID {
	var b strings.Builder
	b.Grow(len(label))

	pendingSep := false
	for _, r := range strings.ToLower(label) {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !alnum {
			if b.Len() > 0 {
				pendingSep = true
			}
			continue
		}
		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}
		b.WriteRune(r)
	}

	s := b.String()
	if len(s) > MaxLen {
		s = s[:MaxLen]
	}
	return ID(s)
}
