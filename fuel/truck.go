/*
truck.go - Truck number normalization

PURPOSE:
  Yard operators type truck numbers free-form ("t872dvh", "T 872-DVH").
  Journey records store the canonical registration form ("T 872 DVH").
  Matching ever happens only on the canonical form, so normalization is
  the first step of every operation that takes a truck number.

ALGORITHM:
  Uppercase, drop everything that is not a letter or digit, then split
  the remainder into maximal same-class runs (letters vs digits) and
  join the runs with single spaces:

    "t872dvh"     -> "T 872 DVH"
    "TEST001ABC"  -> "TEST 001 ABC"
    "T 872-DVH"   -> "T 872 DVH"

  Input with no letters or digits at all fails validation.

SEE ALSO:
  - errors.go: ErrInvalidTruckNumber
  - ../config/lookup.go: Batch resolution keys off Suffix()
*/
package fuel

import (
	"fmt"
	"strings"
	"unicode"
)

// TruckNumber is a canonical truck registration ("T 872 DVH").
// Construct via NormalizeTruckNumber; never store raw operator input.
type TruckNumber string

func (t TruckNumber) String() string { return string(t) }

// Suffix returns the trailing letter group of the registration, the key
// used for truck batch resolution ("T 872 DVH" -> "DVH"). Returns ""
// when the registration does not end in a letter group.
func (t TruckNumber) Suffix() string {
	parts := strings.Fields(string(t))
	if len(parts) == 0 {
		return ""
	}
	last := parts[len(parts)-1]
	for _, r := range last {
		if !unicode.IsLetter(r) {
			return ""
		}
	}
	return last
}

// NormalizeTruckNumber converts raw operator input to the canonical
// registration form. Character class runs become space-separated groups;
// separators and punctuation are discarded.
func NormalizeTruckNumber(raw string) (TruckNumber, error) {
	const (
		classNone = iota
		classLetter
		classDigit
	)

	var groups []string
	var current []rune
	currentClass := classNone

	flush := func() {
		if len(current) > 0 {
			groups = append(groups, string(current))
			current = current[:0]
		}
	}

	for _, r := range strings.ToUpper(strings.TrimSpace(raw)) {
		var class int
		switch {
		case unicode.IsLetter(r):
			class = classLetter
		case unicode.IsDigit(r):
			class = classDigit
		default:
			flush()
			currentClass = classNone
			continue
		}
		if class != currentClass {
			flush()
			currentClass = class
		}
		current = append(current, r)
	}
	flush()

	if len(groups) == 0 {
		return "", fmt.Errorf("truck number %q: %w", raw, ErrInvalidTruckNumber)
	}
	return TruckNumber(strings.Join(groups, " ")), nil
}
