// Package tax resolves tax rates from a tenant's postcode and a product tax class.
package tax

import (
	"errors"
	"fmt"
	"regexp"
	"sort"

	"tpvcore/internal/core/types"
)

// Tax classes shared by every zone.
const (
	ClassGeneral      = "general"
	ClassReduced      = "reduced"
	ClassSuperReduced = "super_reduced"
	ClassExempt       = "exempt"
)

// ZoneDefinition is the configuration form of a zone.
// Rates are decimal strings so the table never passes through float64.
type ZoneDefinition struct {
	Name     string            `mapstructure:"name"`
	Postcode string            `mapstructure:"postcode"` // regular expression
	Priority int               `mapstructure:"priority"`
	Rates    map[string]string `mapstructure:"rates"`
}

// Zone is a compiled zone.
type Zone struct {
	Name     string
	Priority int
	pattern  *regexp.Regexp
	rates    map[string]types.Money
}

// Matches reports whether the postcode lies in the zone.
func (z *Zone) Matches(postcode string) bool {
	return z.pattern.MatchString(postcode)
}

// Rate returns the percentage rate of a class.
func (z *Zone) Rate(class string) (types.Money, bool) {
	r, ok := z.rates[class]
	return r, ok
}

// Table is an immutable, priority-ordered set of zones.
type Table struct {
	zones []*Zone
}

// NewTable compiles and validates definitions.
func NewTable(defs []ZoneDefinition) (*Table, error) {
	if len(defs) == 0 {
		return nil, errors.New("tax zones cannot be empty")
	}

	zones := make([]*Zone, 0, len(defs))
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		if d.Name == "" {
			return nil, errors.New("tax zone without name")
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("duplicate tax zone %q", d.Name)
		}
		seen[d.Name] = true

		re, err := regexp.Compile(d.Postcode)
		if err != nil {
			return nil, fmt.Errorf("tax zone %q: postcode pattern: %w", d.Name, err)
		}
		if len(d.Rates) == 0 {
			return nil, fmt.Errorf("tax zone %q has no rates", d.Name)
		}

		rates := make(map[string]types.Money, len(d.Rates))
		for class, s := range d.Rates {
			r, err := types.NewMoneyFromString(s)
			if err != nil {
				return nil, fmt.Errorf("tax zone %q class %q: %w", d.Name, class, err)
			}
			if r.IsNegative() || r.GreaterThanOrEqual(types.MustMoney("100")) {
				return nil, fmt.Errorf("tax zone %q class %q: rate %s out of range", d.Name, class, s)
			}
			rates[class] = types.Round2(r)
		}

		zones = append(zones, &Zone{Name: d.Name, Priority: d.Priority, pattern: re, rates: rates})
	}

	sort.SliceStable(zones, func(i, j int) bool {
		if zones[i].Priority != zones[j].Priority {
			return zones[i].Priority > zones[j].Priority
		}
		return zones[i].Name < zones[j].Name
	})
	return &Table{zones: zones}, nil
}

// Lookup returns the highest-priority zone matching the postcode.
func (t *Table) Lookup(postcode string) (*Zone, bool) {
	for _, z := range t.zones {
		if z.Matches(postcode) {
			return z, true
		}
	}
	return nil, false
}

// Zones returns the zones in lookup order.
func (t *Table) Zones() []*Zone {
	out := make([]*Zone, len(t.zones))
	copy(out, t.zones)
	return out
}

// DefaultDefinitions is the built-in Spanish table: IGIC for the Canary
// Islands (35xxx, 38xxx), IPSI for Ceuta (51xxx) and Melilla (52xxx), VAT elsewhere.
func DefaultDefinitions() []ZoneDefinition {
	return []ZoneDefinition{
		{
			Name:     "canarias",
			Postcode: `^(35|38)\d{3}$`,
			Priority: 10,
			Rates:    map[string]string{ClassGeneral: "7", ClassReduced: "3", ClassSuperReduced: "0", ClassExempt: "0"},
		},
		{
			Name:     "ceuta_melilla",
			Postcode: `^(51|52)\d{3}$`,
			Priority: 10,
			Rates:    map[string]string{ClassGeneral: "4", ClassReduced: "1", ClassSuperReduced: "0.5", ClassExempt: "0"},
		},
		{
			Name:     "peninsula",
			Postcode: `.*`,
			Priority: 0,
			Rates:    map[string]string{ClassGeneral: "21", ClassReduced: "10", ClassSuperReduced: "4", ClassExempt: "0"},
		},
	}
}

// DefaultTable compiles DefaultDefinitions.
func DefaultTable() *Table {
	t, err := NewTable(DefaultDefinitions())
	if err != nil {
		panic(err)
	}
	return t
}
