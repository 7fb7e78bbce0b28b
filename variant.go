package ad74xx

import (
	"fmt"
	"strings"
)

// Variant identifies a chip of the AD74xx family.
type Variant int

const (
	AD7466 Variant = iota
	AD7467
	AD7468
	AD7475
	AD7476
	AD7476A
	AD7477
	AD7477A
	AD7478
	AD7478A
	AD7495

	variantCount
)

type variantInfo struct {
	name      string
	bits      int
	powerDown bool // partial power-down via CS toggling
}

// variants must have one entry per Variant; init panics otherwise.
var variants = [variantCount]variantInfo{
	AD7466:  {name: "AD7466", bits: 12},
	AD7467:  {name: "AD7467", bits: 10},
	AD7468:  {name: "AD7468", bits: 8},
	AD7475:  {name: "AD7475", bits: 12, powerDown: true},
	AD7476:  {name: "AD7476", bits: 12},
	AD7476A: {name: "AD7476A", bits: 12},
	AD7477:  {name: "AD7477", bits: 10},
	AD7477A: {name: "AD7477A", bits: 10},
	AD7478:  {name: "AD7478", bits: 8},
	AD7478A: {name: "AD7478A", bits: 8},
	AD7495:  {name: "AD7495", bits: 12, powerDown: true},
}

func init() {
	for i, info := range variants {
		if info.name == "" || (info.bits != 8 && info.bits != 10 && info.bits != 12) {
			panic(fmt.Sprintf("ad74xx: variant %d has no resolution entry", i))
		}
	}
}

// Variants returns all supported variants.
func Variants() []Variant {
	out := make([]Variant, 0, variantCount)
	for v := Variant(0); v < variantCount; v++ {
		out = append(out, v)
	}
	return out
}

// Valid reports whether v is a known variant.
func (v Variant) Valid() bool {
	return v >= 0 && v < variantCount
}

// Resolution returns the conversion resolution in bits, or 0 for an unknown
// variant.
func (v Variant) Resolution() int {
	if !v.Valid() {
		return 0
	}
	return variants[v].bits
}

// SupportsPowerDown reports whether the chip has a partial power-down mode
// entered by raising CS early. Only the AD7475 and AD7495 do.
func (v Variant) SupportsPowerDown() bool {
	return v.Valid() && variants[v].powerDown
}

func (v Variant) String() string {
	if !v.Valid() {
		return fmt.Sprintf("Variant(%d)", int(v))
	}
	return variants[v].name
}

// ParseVariant returns the Variant named s. The match is case-insensitive and
// the "AD" prefix is optional, so "7476a" parses as AD7476A.
func ParseVariant(s string) (Variant, error) {
	n := strings.ToUpper(strings.TrimSpace(s))
	if !strings.HasPrefix(n, "AD") {
		n = "AD" + n
	}
	for v := Variant(0); v < variantCount; v++ {
		if variants[v].name == n {
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w %q", ErrUnknownVariant, s)
}
