package dof

import (
	"regexp"
	"strconv"
)

var (
	noiRE = regexp.MustCompile(`(?i)net\s+operating\s+income\s+of\s+(\$[\d,.]+)\.`)

	// The fee id follows the unit count, optionally after the charge date.
	rentStabRE = regexp.MustCompile(
		`(?i)(?:Housing-Rent\s+Stabilization|Rent\s+Stabilization\s+Fee-\s+Chg)[ \t]+(\d+)` +
			`(?:[ \t]+(?:\d{1,2}/\d{1,2}/\d{4}[ \t]+)?(\d{5,}))?`)

	starRE = regexp.MustCompile(`(?i)(Star\s+Savings|\w*\s*Star\s+-\s+School\s+Tax\s+Relief)`)
)

// ExtractNetOperatingIncome returns the currency string following "net operating
// income of", e.g. "$5,000.00".
func ExtractNetOperatingIncome(text string) (string, bool) {
	m := noiRE.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ExtractRentStabilizedUnits sums the unit counts of rent stabilization fee
// lines. Lines repeating an already seen fee id are counted once. Nil means no
// units were found.
func ExtractRentStabilizedUnits(text string) *int {
	seen := make(map[string]struct{})
	total := 0
	for _, m := range rentStabRE.FindAllStringSubmatch(text, -1) {
		if id := m[2]; id != "" {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		total += n
	}
	if total == 0 {
		return nil
	}
	return &total
}

// ExtractStarEnrolled reports whether the statement mentions a STAR school tax
// relief program.
func ExtractStarEnrolled(text string) bool {
	return starRE.MatchString(text)
}
