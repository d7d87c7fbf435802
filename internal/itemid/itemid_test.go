package itemid

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		label string
		want  ID
	}{
		{name: "simple", label: "General", want: "general"},
		{name: "spaces", label: "Weekly Update", want: "weekly_update"},
		{name: "punctuation run", label: "Q&A -- Session!", want: "q_a_session"},
		{name: "leading trailing junk", label: "  ...Rules...  ", want: "rules"},
		{name: "digits kept", label: "Page 12b", want: "page_12b"},
		{name: "unicode stripped", label: "café menu", want: "caf_menu"},
		{name: "empty", label: "", want: ""},
		{name: "only junk", label: "!!! ???", want: ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.label); got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.label, got, tt.want)
			}
		})
	}
}

func TestNormalizeTruncates(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("ab ", 40)
	got := Normalize(long)
	if len(got) != MaxLen {
		t.Fatalf("len = %d, want %d", len(got), MaxLen)
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	t.Parallel()
	label := "Some -- Label (v2)"
	a := Normalize(label)
	b := Normalize(label)
	if a != b {
		t.Fatalf("Normalize not deterministic: %q vs %q", a, b)
	}
}
