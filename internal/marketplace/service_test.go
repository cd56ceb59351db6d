package marketplace

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/meridianhq/meridian/internal/entitlement"
)

const blogID = "550e8400-e29b-41d4-a716-446655440001"

type stubSource struct {
	fetches  atomic.Int32
	listings []Listing
	err      error
}

func (s *stubSource) FetchCatalog(ctx context.Context) ([]Listing, error) {
	s.fetches.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.listings, nil
}

type stubAssignments struct {
	tierID string
	err    error
}

func (s stubAssignments) CurrentTierID(ctx context.Context, tenantID int64, pluginID string) (string, error) {
	return s.tierID, s.err
}

func blogListing() Listing {
	return Listing{
		ID:   blogID,
		Name: "Blog",
		Tiers: []entitlement.Tier{
			{ID: "free", Name: "Free", Position: 0},
			{ID: "pro", Name: "Pro", Position: 1, Features: []entitlement.FeatureKey{"a"}},
			{ID: "enterprise", Name: "Enterprise", Position: 2, Features: []entitlement.FeatureKey{"a", "b"}},
		},
	}
}

func newCachedService(t *testing.T, source CatalogSource, assignments TierAssignments) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewService(source, NewCache(client, time.Minute), assignments, nil)
}

func TestCatalogCachesFetches(t *testing.T) {
	source := &stubSource{listings: []Listing{blogListing()}}
	svc := newCachedService(t, source, stubAssignments{})

	for i := 0; i < 3; i++ {
		listings, err := svc.Catalog(context.Background())
		require.NoError(t, err)
		require.Len(t, listings, 1)
	}
	require.Equal(t, int32(1), source.fetches.Load())
}

func TestInvalidateForcesRefetch(t *testing.T) {
	source := &stubSource{listings: []Listing{blogListing()}}
	svc := newCachedService(t, source, stubAssignments{})

	_, err := svc.Catalog(context.Background())
	require.NoError(t, err)
	require.NoError(t, svc.Invalidate(context.Background()))
	_, err = svc.Catalog(context.Background())
	require.NoError(t, err)
	require.Equal(t, int32(2), source.fetches.Load())
}

func TestCurrentTier(t *testing.T) {
	source := &stubSource{listings: []Listing{blogListing()}}

	svc := newCachedService(t, source, stubAssignments{tierID: "pro"})
	tier, err := svc.CurrentTier(context.Background(), 1, blogID)
	require.NoError(t, err)
	require.NotNil(t, tier)
	require.Equal(t, "pro", tier.ID)
}

func TestCurrentTierUnentitled(t *testing.T) {
	source := &stubSource{listings: []Listing{blogListing()}}

	svc := newCachedService(t, source, stubAssignments{})
	tier, err := svc.CurrentTier(context.Background(), 1, blogID)
	require.NoError(t, err)
	require.Nil(t, tier)
}

func TestCurrentTierMissingFromCatalog(t *testing.T) {
	source := &stubSource{listings: []Listing{blogListing()}}

	svc := newCachedService(t, source, stubAssignments{tierID: "retired-tier"})
	tier, err := svc.CurrentTier(context.Background(), 1, blogID)
	require.NoError(t, err)
	require.Nil(t, tier)
}

func TestUpgradeTarget(t *testing.T) {
	source := &stubSource{listings: []Listing{blogListing()}}
	svc := newCachedService(t, source, stubAssignments{tierID: "free"})

	target, err := svc.UpgradeTarget(context.Background(), 1, blogID, "b")
	require.NoError(t, err)
	require.NotNil(t, target)
	require.Equal(t, "enterprise", target.ID)
}

func TestUpgradeTargetUnknownPlugin(t *testing.T) {
	source := &stubSource{listings: []Listing{blogListing()}}
	svc := newCachedService(t, source, stubAssignments{})

	_, err := svc.UpgradeTarget(context.Background(), 1, "550e8400-e29b-41d4-a716-446655440099", "b")
	require.ErrorIs(t, err, ErrUnknownPlugin)
}
