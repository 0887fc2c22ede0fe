package config

import (
	"testing"
	"time"

	"github.com/eventuary/pipeline/fetch"
	"github.com/eventuary/pipeline/models"
	"github.com/stretchr/testify/require"
)

func TestResolvePrecedenceGlobalThenTierThenSource(t *testing.T) {
	globalPolicy := fetch.DefaultPolicy()
	tierPolicy := fetch.DefaultPolicy()
	tierPolicy.MaxRetries = 7
	sourcePolicy := fetch.DefaultPolicy()
	sourcePolicy.MaxRetries = 9

	f := File{
		Global: Section{Fetch: &globalPolicy},
		Tiers: map[models.SourceTier]Section{
			models.TierFlagship: {Fetch: &tierPolicy},
		},
		Sources: map[string]Section{
			"src-1": {Fetch: &sourcePolicy},
		},
	}

	src := models.Source{ID: "src-1", Tier: models.TierFlagship}
	resolved := Resolve(f, "", src, Section{})
	require.Equal(t, 9, resolved.Fetch.MaxRetries, "source layer should win over tier and global")

	other := models.Source{ID: "src-2", Tier: models.TierFlagship}
	resolved2 := Resolve(f, "", other, Section{})
	require.Equal(t, 7, resolved2.Fetch.MaxRetries, "tier layer should win when no source override exists")
}

func TestResolveFallsBackToDefaultsWhenUnconfigured(t *testing.T) {
	resolved := Resolve(File{}, "", models.Source{ID: "bare"}, Section{})
	require.Equal(t, fetch.DefaultPolicy(), resolved.Fetch)
}

func TestResolveRunOverrideWinsLast(t *testing.T) {
	globalPolicy := fetch.DefaultPolicy()
	f := File{Global: Section{Fetch: &globalPolicy}}
	runPolicy := fetch.DefaultPolicy()
	runPolicy.MaxRetries = 1

	resolved := Resolve(f, "", models.Source{ID: "s"}, Section{Fetch: &runPolicy})
	require.Equal(t, 1, resolved.Fetch.MaxRetries)
}

func TestResolveGeocodeCacheTTLPassthrough(t *testing.T) {
	geo := Geocode{CacheCapacity: 500, CacheTTL: 48 * time.Hour}
	f := File{Global: Section{Geocode: &geo}}
	resolved := Resolve(f, "", models.Source{ID: "s"}, Section{})
	require.Equal(t, 500, resolved.Geocode.CacheCapacity)
	require.Equal(t, 48*time.Hour, resolved.Geocode.CacheTTL)
}
