package refdata

import (
	"strings"
	"testing"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		in      string
		want    Key
		wantErr string
	}{
		{in: "coastline-high", want: Key{Name: "coastline", Tier: TierHigh}},
		{in: "Countries-Medium", want: Key{Name: "countries", Tier: TierMedium}},
		{in: " lakes ", want: Key{Name: "lakes", Tier: TierLow}},
		{in: "rivers-low", want: Key{Name: "rivers", Tier: TierLow}},
		{in: "", wantErr: "empty"},
		{in: "glaciers-low", wantErr: "unknown dataset"},
		{in: "coastline-ultra", wantErr: "unknown resolution tier"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKey(tt.in)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestKeyString(t *testing.T) {
	k := Key{Name: "coastline", Tier: TierHigh}
	if k.String() != "coastline-high" {
		t.Errorf("expected coastline-high, got %s", k.String())
	}
	back, err := ParseKey(k.String())
	if err != nil || back != k {
		t.Errorf("round trip failed: %+v, %v", back, err)
	}
}

func TestSupportedKeys(t *testing.T) {
	keys := SupportedKeys()
	if len(keys) != len(Catalog)*len(Tiers) {
		t.Fatalf("expected %d keys, got %d", len(Catalog)*len(Tiers), len(keys))
	}
	seen := make(map[Key]bool)
	for _, k := range keys {
		if seen[k] {
			t.Errorf("duplicate key %s", k)
		}
		seen[k] = true
	}
}

func TestPolygonal(t *testing.T) {
	if !MustParseKey("countries-low").Polygonal() {
		t.Error("countries should be polygonal")
	}
	if MustParseKey("coastline-low").Polygonal() {
		t.Error("coastline should not be polygonal")
	}
}
