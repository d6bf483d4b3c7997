// Package report implements the Report Derivation Pipeline (§4.3): pure
// functions turning a ShardsCollection plus the Metadata Registry into
// downstream artifacts (resource reconstruction, dedup/projection, diff,
// coverage, exception filtering, statistics, SIEM convertors).
package report

import (
	"encoding/json"
	"fmt"

	"github.com/epam/rule-engine/internal/domain/metadata"
	"github.com/epam/rule-engine/internal/domain/resource"
	"github.com/epam/rule-engine/internal/domain/shard"
	"github.com/epam/rule-engine/internal/domain/tenant"
)

// RuleResource pairs a reconstructed CloudResource with the (policy,
// region) it was found under, the unit the rest of the pipeline operates on.
type RuleResource struct {
	Policy   string
	Region   string
	Resource resource.CloudResource
}

// IterRuleResources reconstructs every resource referenced by c's parts,
// resolving each part's CloudResource variant via the rule's
// metadata-declared ResourceType rather than a schema registry (the open
// design question resolved in DESIGN.md), and applying the §4.3.2 region
// relocation/disambiguation rules.
func IterRuleResources(c *shard.ShardsCollection, reg metadata.Registry, cloud tenant.Cloud) ([]RuleResource, error) {
	var out []RuleResource
	for _, part := range c.IterParts(nil) {
		rm, ok := reg.Get(part.Policy)
		resourceType := ""
		global := false
		if ok {
			resourceType = rm.ResourceType
			global = rm.Global
		}

		items, err := resource.DecodePayload(part.Payload)
		if err != nil {
			return nil, fmt.Errorf("iter rule resources: policy %s: %w", part.Policy, err)
		}

		region := resource.RelocateRegion(global, resourceType, part.Location, firstOrEmpty(items))

		for _, data := range items {
			if resource.NeedsRegionDisambiguation(resourceType) {
				data["__region"] = part.Location
			}
			res := constructResource(cloud, data, region, resourceType)
			out = append(out, RuleResource{Policy: part.Policy, Region: region, Resource: res})
		}
	}
	return out, nil
}

func firstOrEmpty(items []map[string]any) map[string]any {
	if len(items) == 0 {
		return map[string]any{}
	}
	return items[0]
}

func constructResource(cloud tenant.Cloud, data map[string]any, region, resourceType string) resource.CloudResource {
	discriminators := discriminatorsFor(data)
	switch cloud {
	case tenant.CloudAzure:
		return resource.NewAZUREResource(data, region, resourceType)
	case tenant.CloudGoogle:
		return resource.NewGOOGLEResource(data, region, resourceType, discriminators)
	case tenant.CloudKubernetes:
		return resource.NewK8SResource(data, resourceType)
	default:
		return resource.NewAWSResource(data, region, resourceType, discriminators)
	}
}

// discriminatorsFor extracts the tuple that distinguishes otherwise-
// identical DTOs, e.g. different services reporting on aws.account
// (§4.3.1). Grounded on resources.py's _members() tuples: any "service" or
// "__region" synthesized key becomes a discriminator.
func discriminatorsFor(data map[string]any) []string {
	var out []string
	for _, k := range []string{"Service", "service", "__region"} {
		if v, ok := data[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// MarshalCanonicalJSON re-encodes v with sorted keys, used by report
// consumers that need stable byte-for-byte output (§8 "shard round-trip").
func MarshalCanonicalJSON(v map[string]any) ([]byte, error) {
	return json.Marshal(v)
}
