// Package tactic defines the canonical MITRE ATT&CK tactic axis used by
// both timeline views. The ordering here is the single source of truth for
// the "all tactics" coordinate space.
package tactic

// canonical holds the eleven tactics in top-to-bottom axis order.
// Index 0 renders at the bottom of the chart.
var canonical = []string{
	"Initial Access",
	"Execution",
	"Persistence",
	"Privilege Escalation",
	"Defense Evasion",
	"Credential Access",
	"Discovery",
	"Lateral Movement",
	"Collection",
	"C2",
	"Exfiltration",
}

// All returns a copy of the canonical tactic list.
func All() []string {
	out := make([]string, len(canonical))
	copy(out, canonical)
	return out
}

// Count is the number of canonical tactics.
func Count() int {
	return len(canonical)
}

// Valid reports whether name is a canonical tactic.
func Valid(name string) bool {
	for _, t := range canonical {
		if t == name {
			return true
		}
	}
	return false
}

// Visible returns the canonical tactics that appear in present, preserving
// canonical relative order regardless of the order tactics were observed.
func Visible(present map[string]bool) []string {
	var out []string
	for _, t := range canonical {
		if present[t] {
			out = append(out, t)
		}
	}
	return out
}

// Missing returns the canonical tactics absent from present, in canonical
// order. Visible(p) and Missing(p) partition All().
func Missing(present map[string]bool) []string {
	var out []string
	for _, t := range canonical {
		if !present[t] {
			out = append(out, t)
		}
	}
	return out
}
