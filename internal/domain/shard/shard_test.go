package shard

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epam/rule-engine/internal/objectstore"
)

func samplePart(policy, location string, ts float64) Part {
	return Part{
		Policy:    policy,
		Location:  location,
		Timestamp: ts,
		Payload:   []byte(`[{"id":"r-1"}]`),
	}
}

func TestEncodeDecodePartRoundTrip(t *testing.T) {
	parts := []Part{
		samplePart("ec2-public-access", "eu-central-1", 1700000000.5),
		samplePart("s3-encryption", "us-east-1", 1700000001.25),
	}

	body, err := EncodeParts(parts)
	require.NoError(t, err)

	decoded, err := DecodeParts(body)
	require.NoError(t, err)
	assert.Equal(t, parts, decoded)
}

func TestDecodePartTruncatedIsUnexpectedEOF(t *testing.T) {
	body, err := EncodeParts([]Part{samplePart("p", "loc", 1.0)})
	require.NoError(t, err)

	_, err = DecodeParts(body[:len(body)-1])
	require.Error(t, err)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestSingleShardDistributorRoutesEverythingTogether(t *testing.T) {
	c := NewShardsCollection(SingleShardDistributor{})
	c.PutPart(samplePart("p1", "eu-central-1", 1))
	c.PutPart(samplePart("p2", "us-east-1", 2))

	assert.Equal(t, []string{"0"}, c.ShardKeys())
	assert.Len(t, c.IterParts(nil), 2)
}

func TestAccountRegionDistributorRoutesByLocation(t *testing.T) {
	c := NewShardsCollection(AccountRegionDistributor{})
	c.PutPart(samplePart("p1", "cluster-a", 1))
	c.PutPart(samplePart("p2", "cluster-b", 2))
	c.PutPart(samplePart("p3", "cluster-a", 3))

	assert.ElementsMatch(t, []string{"cluster-a", "cluster-b"}, c.ShardKeys())
	filtered := c.IterParts(&PartFilter{Location: "cluster-a"})
	assert.Len(t, filtered, 2)
}

func TestMergeIsAssociativeOverPartCount(t *testing.T) {
	a := NewShardsCollection(SingleShardDistributor{})
	a.PutPart(samplePart("p1", "r1", 1))
	b := NewShardsCollection(SingleShardDistributor{})
	b.PutPart(samplePart("p2", "r2", 2))
	c := NewShardsCollection(SingleShardDistributor{})
	c.PutPart(samplePart("p3", "r3", 3))

	left := NewShardsCollection(SingleShardDistributor{})
	left.Merge(a)
	left.Merge(b)
	left.Merge(c)

	right := NewShardsCollection(SingleShardDistributor{})
	bc := NewShardsCollection(SingleShardDistributor{})
	bc.Merge(b)
	bc.Merge(c)
	right.Merge(a)
	right.Merge(bc)

	assert.Len(t, left.IterParts(nil), 3)
	assert.ElementsMatch(t, left.IterParts(nil), right.IterParts(nil))
}

func TestMergeMetaRecursesIntoNestedMaps(t *testing.T) {
	a := NewShardsCollection(SingleShardDistributor{})
	a.SetMeta(Meta{"regions": Meta{"eu-central-1": 3}})
	b := NewShardsCollection(SingleShardDistributor{})
	b.SetMeta(Meta{"regions": Meta{"us-east-1": 5}})

	a.Merge(b)

	regions := a.FetchMeta()["regions"].(Meta)
	assert.Equal(t, 3, regions["eu-central-1"])
	assert.Equal(t, 5, regions["us-east-1"])
}

func TestKeyLayoutMatchesRawPrefixConvention(t *testing.T) {
	key := KeyLayout("epam", "AWS", "111122223333", "2026-07-30", "0")
	assert.Equal(t, "raw/epam/AWS/111122223333/2026-07-30/0.jsonl.gz", key)
}

func TestWriteThenReadRoundTripsAllShardsAndMeta(t *testing.T) {
	store := objectstore.NewMemoryStore()
	ctx := context.Background()

	c := NewShardsCollection(AccountRegionDistributor{})
	c.PutPart(samplePart("p1", "cluster-a", 10))
	c.PutPart(samplePart("p2", "cluster-b", 20))
	c.SetMeta(Meta{"started_at": 10.0})

	require.NoError(t, c.Write(ctx, store, "epam", "KUBERNETES", "acct-1", "2026-07-30"))

	reloaded, err := Read(ctx, store, AccountRegionDistributor{}, "epam", "KUBERNETES", "acct-1", "2026-07-30")
	require.NoError(t, err)

	assert.ElementsMatch(t, c.IterParts(nil), reloaded.IterParts(nil))
	assert.Equal(t, 10.0, reloaded.FetchMeta()["started_at"])
}

func TestDistributorForSelectsByCloud(t *testing.T) {
	_, ok := DistributorFor("KUBERNETES").(AccountRegionDistributor)
	assert.True(t, ok)

	_, ok = DistributorFor("AWS").(SingleShardDistributor)
	assert.True(t, ok)
}
