// Package pagesize enumerates named paper sizes in points (1" = 72pt).
package pagesize

import "strings"

// Size is a named page extent.
type Size struct {
	Name   string
	Width  float64
	Height float64
}

var (
	Letter  = Size{Name: "Letter", Width: 612, Height: 792}    // 8.5" x 11"
	Legal   = Size{Name: "Legal", Width: 612, Height: 1008}    // 8.5" x 14"
	A4      = Size{Name: "A4", Width: 595.28, Height: 841.89}  // 210mm x 297mm
	A3      = Size{Name: "A3", Width: 841.89, Height: 1190.55} // 297mm x 420mm
	Tabloid = Size{Name: "Tabloid", Width: 792, Height: 1224}  // 11" x 17"
)

var byName = map[string]Size{
	"letter":  Letter,
	"legal":   Legal,
	"a4":      A4,
	"a3":      A3,
	"tabloid": Tabloid,
}

// Lookup resolves a size by case-insensitive name.
func Lookup(name string) (Size, bool) {
	s, ok := byName[strings.ToLower(strings.TrimSpace(name))]
	return s, ok
}

// LookupOrDefault resolves a size by name, falling back to Letter when
// the name is empty or unknown.
func LookupOrDefault(name string) Size {
	if s, ok := Lookup(name); ok {
		return s
	}
	return Letter
}
