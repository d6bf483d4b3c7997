package shard

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/epam/rule-engine/internal/objectstore"
)

// Distributor assigns a Part to a shard key within a ShardsCollection.
// AWS/AZURE/GOOGLE scans use SingleShardDistributor (one shard, bounded by
// per-object size rather than per-account fan-out); Kubernetes scans use
// AccountRegionDistributor since a single "account" can span many clusters
// reported as distinct locations (§4.2).
type Distributor interface {
	ShardKey(p Part) string
}

// SingleShardDistributor routes every part to shard "0".
type SingleShardDistributor struct{}

func (SingleShardDistributor) ShardKey(Part) string { return "0" }

// AccountRegionDistributor routes parts by their Location field, so that
// each cluster/region gets its own shard file.
type AccountRegionDistributor struct{}

func (AccountRegionDistributor) ShardKey(p Part) string { return p.Location }

// DistributorFor returns the Distributor appropriate for cloud, per §4.2.
func DistributorFor(cloud string) Distributor {
	if strings.EqualFold(cloud, "KUBERNETES") {
		return AccountRegionDistributor{}
	}
	return SingleShardDistributor{}
}

// Meta is the sidecar metadata persisted alongside shard bodies: per-region
// rule coverage, started/stopped timestamps, and arbitrary nested counters
// merged key-by-key on ShardsCollection.Merge.
type Meta map[string]any

// mergeMeta merges b into a: scalar/list values in b win; map values recurse.
func mergeMeta(a, b Meta) Meta {
	if a == nil {
		a = Meta{}
	}
	for k, bv := range b {
		av, exists := a[k]
		if !exists {
			a[k] = bv
			continue
		}
		var aMap, bMap Meta
		switch v := av.(type) {
		case Meta:
			aMap = v
		case map[string]any:
			aMap = Meta(v)
		}
		switch v := bv.(type) {
		case Meta:
			bMap = v
		case map[string]any:
			bMap = Meta(v)
		}
		if aMap != nil && bMap != nil {
			a[k] = mergeMeta(aMap, bMap)
			continue
		}
		a[k] = bv
	}
	return a
}

// ShardsCollection holds the in-memory working set of Parts for one scan
// execution, grouped into shards by a Distributor, with an associated Meta
// sidecar. It is the Go counterpart of the original's ShardsCollection /
// ShardsCollectionFactory pair (§4.2).
type ShardsCollection struct {
	distributor Distributor
	shards      map[string][]Part
	shardOrder  []string
	meta        Meta
}

// NewShardsCollection creates an empty collection using d to route parts.
func NewShardsCollection(d Distributor) *ShardsCollection {
	return &ShardsCollection{
		distributor: d,
		shards:      make(map[string][]Part),
		meta:        Meta{},
	}
}

// PutPart appends p to whichever shard the Distributor selects for it,
// preserving insertion order within a shard.
func (c *ShardsCollection) PutPart(p Part) {
	key := c.distributor.ShardKey(p)
	if _, exists := c.shards[key]; !exists {
		c.shardOrder = append(c.shardOrder, key)
	}
	c.shards[key] = append(c.shards[key], p)
}

// PartFilter narrows IterParts to a subset of parts.
type PartFilter struct {
	Policy   string // exact match if non-empty
	Location string // exact match if non-empty
}

func (f PartFilter) matches(p Part) bool {
	if f.Policy != "" && f.Policy != p.Policy {
		return false
	}
	if f.Location != "" && f.Location != p.Location {
		return false
	}
	return true
}

// IterParts returns every part across all shards, in shard-then-insertion
// order, optionally narrowed by filter.
func (c *ShardsCollection) IterParts(filter *PartFilter) []Part {
	var out []Part
	for _, key := range c.shardOrder {
		for _, p := range c.shards[key] {
			if filter == nil || filter.matches(p) {
				out = append(out, p)
			}
		}
	}
	return out
}

// ShardKeys returns the shard keys in first-seen order.
func (c *ShardsCollection) ShardKeys() []string {
	out := make([]string, len(c.shardOrder))
	copy(out, c.shardOrder)
	return out
}

// SetMeta replaces the sidecar metadata map wholesale.
func (c *ShardsCollection) SetMeta(m Meta) { c.meta = m }

// FetchMeta returns the sidecar metadata.
func (c *ShardsCollection) FetchMeta() Meta { return c.meta }

// FetchAll returns every part across all shards (alias of IterParts(nil),
// kept distinct to mirror the original's fetch_all naming at the call sites
// that care about "give me everything" rather than "iterate").
func (c *ShardsCollection) FetchAll() []Part { return c.IterParts(nil) }

// Merge appends other's parts into c (shard membership is recomputed via
// c's own Distributor, so merging collections built with different
// distributors is well-defined) and merges the Meta maps key-by-key.
func (c *ShardsCollection) Merge(other *ShardsCollection) {
	for _, p := range other.IterParts(nil) {
		c.PutPart(p)
	}
	c.meta = mergeMeta(c.meta, other.meta)
}

// KeyLayout builds the raw/ storage key for one shard file, per §4.2:
// raw/{customer}/{cloud}/{account}/{date}/{shardKey}.jsonl.gz
func KeyLayout(customer, cloud, account, date, shardKey string) string {
	return fmt.Sprintf("raw/%s/%s/%s/%s/%s.jsonl.gz", customer, cloud, account, date, shardKey)
}

// MetaKeyLayout builds the storage key for the meta.json sidecar of a scan
// execution: raw/{customer}/{cloud}/{account}/{date}/meta.json
func MetaKeyLayout(customer, cloud, account, date string) string {
	return fmt.Sprintf("raw/%s/%s/%s/%s/meta.json", customer, cloud, account, date)
}

// Write flushes every shard (gzip-compressed binary body) and the meta
// sidecar (plain JSON) to store, one object per shard plus one for meta.
func (c *ShardsCollection) Write(ctx context.Context, store objectstore.Store, customer, cloud, account, date string) error {
	for _, key := range c.shardOrder {
		body, err := EncodeParts(c.shards[key])
		if err != nil {
			return fmt.Errorf("encode shard %s: %w", key, err)
		}
		objKey := KeyLayout(customer, cloud, account, date, key)
		if err := store.Put(ctx, objKey, body, true); err != nil {
			return fmt.Errorf("write shard %s: %w", key, err)
		}
	}
	metaBody, err := json.Marshal(c.meta)
	if err != nil {
		return fmt.Errorf("encode meta: %w", err)
	}
	if err := store.Put(ctx, MetaKeyLayout(customer, cloud, account, date), metaBody, false); err != nil {
		return fmt.Errorf("write meta: %w", err)
	}
	return nil
}

// Read loads every shard under the raw/ prefix for one scan execution up
// front, reconstructing shard membership and decoding each shard body.
func Read(ctx context.Context, store objectstore.Store, d Distributor, customer, cloud, account, date string) (*ShardsCollection, error) {
	prefix := fmt.Sprintf("raw/%s/%s/%s/%s/", customer, cloud, account, date)
	entries, err := store.List(ctx, prefix, "")
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}

	c := NewShardsCollection(d)
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })

	for _, e := range entries {
		if strings.HasSuffix(e.Key, "meta.json") {
			body, err := store.Get(ctx, e.Key)
			if err != nil {
				return nil, fmt.Errorf("read meta: %w", err)
			}
			var m Meta
			if err := json.Unmarshal(body, &m); err != nil {
				return nil, fmt.Errorf("decode meta: %w", err)
			}
			c.meta = m
			continue
		}
		if !strings.HasSuffix(e.Key, ".jsonl.gz") {
			continue
		}
		body, err := store.Get(ctx, e.Key)
		if err != nil {
			return nil, fmt.Errorf("read shard %s: %w", e.Key, err)
		}
		parts, err := DecodeParts(body)
		if err != nil {
			return nil, fmt.Errorf("decode shard %s: %w", e.Key, err)
		}
		for _, p := range parts {
			c.PutPart(p)
		}
	}
	return c, nil
}

// StatisticsItem is one per-policy-execution timing/outcome record collected
// during a scan, the raw input to the report pipeline's statistics
// aggregation stage (§3, §4.3.7).
type StatisticsItem struct {
	Policy           string
	Region           string
	Tenant           string
	StartTime        float64
	EndTime          float64
	ScannedResources int
	FailedResources  int
	APICalls         map[string]int
	// Exactly one of (ScannedResources/FailedResources) OR
	// (ErrorType/Reason/Traceback) is populated per invocation (§3).
	ErrorType string
	Reason    string
	Traceback string
}

// Duration returns EndTime - StartTime in seconds.
func (s StatisticsItem) Duration() float64 { return s.EndTime - s.StartTime }

// Succeeded reports whether the policy execution completed without error.
func (s StatisticsItem) Succeeded() bool { return s.ErrorType == "" }
