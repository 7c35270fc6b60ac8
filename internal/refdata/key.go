package refdata

import (
	"fmt"
	"strings"
)

// Tier is a resolution tier of a reference dataset.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// Tiers lists the tiers from coarsest to finest.
var Tiers = []Tier{TierLow, TierMedium, TierHigh}

// Catalog lists the dataset names the server knows how to draw.
var Catalog = []string{"coastline", "countries", "land", "lakes", "rivers"}

// Key identifies one dataset at one resolution tier.
type Key struct {
	Name string
	Tier Tier
}

// String renders the key as "name-tier", the on-disk base name.
func (k Key) String() string {
	return k.Name + "-" + string(k.Tier)
}

// Polygonal reports whether the dataset is drawn as filled areas.
func (k Key) Polygonal() bool {
	switch k.Name {
	case "countries", "land", "lakes":
		return true
	}
	return false
}

// ParseKey parses "name-tier". A bare name selects the low tier.
func ParseKey(s string) (Key, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return Key{}, fmt.Errorf("empty dataset key")
	}

	name, tier := s, TierLow
	if i := strings.LastIndex(s, "-"); i > 0 {
		name, tier = s[:i], Tier(s[i+1:])
	}

	if !knownName(name) {
		return Key{}, fmt.Errorf("unknown dataset %q (supported: %s)", name, strings.Join(Catalog, ", "))
	}
	if !knownTier(tier) {
		return Key{}, fmt.Errorf("unknown resolution tier %q for dataset %q (supported: low, medium, high)", tier, name)
	}
	return Key{Name: name, Tier: tier}, nil
}

// MustParseKey is ParseKey for keys known at compile time.
func MustParseKey(s string) Key {
	k, err := ParseKey(s)
	if err != nil {
		panic(err)
	}
	return k
}

// SupportedKeys returns every catalog name at every tier.
func SupportedKeys() []Key {
	keys := make([]Key, 0, len(Catalog)*len(Tiers))
	for _, name := range Catalog {
		for _, tier := range Tiers {
			keys = append(keys, Key{Name: name, Tier: tier})
		}
	}
	return keys
}

func knownName(name string) bool {
	for _, n := range Catalog {
		if n == name {
			return true
		}
	}
	return false
}

func knownTier(t Tier) bool {
	for _, v := range Tiers {
		if v == t {
			return true
		}
	}
	return false
}
