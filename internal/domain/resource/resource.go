// Package resource reconstructs typed CloudResource values out of raw
// ShardPart JSON payloads (§4.3.1), replacing the original's isinstance-
// dispatched mutable ABC with a closed Go variant plus generic visitor
// dispatch (§9 "Dynamic typing -> variants").
package resource

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// CloudResource is the closed set of reconstructed resource variants. It is
// sealed by the unexported marker method; no type outside this package may
// implement it.
type CloudResource interface {
	ID() string
	Name() string
	ResourceType() string
	Discriminators() []string
	Data() map[string]any
	cloudResource()
}

// identity computes the stable hash used for deduplication (§4.3.1, §8
// "shard round-trip"/"deduplication idempotence" properties): the exposed
// identity attributes plus discriminators, never the full data blob.
func identity(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// AWSResource is a reconstructed AWS finding subject (§4.3.1).
type AWSResource struct {
	id             string
	name           string
	arn            string // optional
	region         string
	resourceType   string
	date           time.Time // zero if absent/unparseable
	data           map[string]any
	discriminators []string
}

func (r AWSResource) cloudResource()            {}
func (r AWSResource) ID() string                { return r.id }
func (r AWSResource) Name() string              { return r.name }
func (r AWSResource) ResourceType() string      { return r.resourceType }
func (r AWSResource) Discriminators() []string  { return r.discriminators }
func (r AWSResource) Data() map[string]any      { return r.data }
func (r AWSResource) ARN() string               { return r.arn }
func (r AWSResource) Region() string            { return r.region }
func (r AWSResource) Date() time.Time           { return r.date }

// Hash is the identity used for deduplication: id/name/arn/region plus
// discriminators, never the raw data blob.
func (r AWSResource) Hash() string {
	return identity(append([]string{r.id, r.name, r.arn, r.region, r.resourceType}, r.discriminators...)...)
}

// AZUREResource is a reconstructed Azure finding subject (§4.3.1).
type AZUREResource struct {
	id           string
	name         string
	location     string
	resourceType string
	data         map[string]any
}

func (r AZUREResource) cloudResource()           {}
func (r AZUREResource) ID() string               { return r.id }
func (r AZUREResource) Name() string             { return r.name }
func (r AZUREResource) ResourceType() string     { return r.resourceType }
func (r AZUREResource) Discriminators() []string { return nil }
func (r AZUREResource) Data() map[string]any     { return r.data }
func (r AZUREResource) Location() string         { return r.location }

func (r AZUREResource) Hash() string {
	return identity(r.id, r.name, r.location, r.resourceType)
}

// GOOGLEResource is a reconstructed GCP finding subject (§4.3.1).
type GOOGLEResource struct {
	id             string
	name           string
	urn            string // optional
	location       string
	resourceType   string
	data           map[string]any
	discriminators []string
}

func (r GOOGLEResource) cloudResource()           {}
func (r GOOGLEResource) ID() string               { return r.id }
func (r GOOGLEResource) Name() string             { return r.name }
func (r GOOGLEResource) ResourceType() string     { return r.resourceType }
func (r GOOGLEResource) Discriminators() []string { return r.discriminators }
func (r GOOGLEResource) Data() map[string]any     { return r.data }
func (r GOOGLEResource) URN() string              { return r.urn }
func (r GOOGLEResource) Location() string         { return r.location }

func (r GOOGLEResource) Hash() string {
	return identity(append([]string{r.id, r.name, r.urn, r.location, r.resourceType}, r.discriminators...)...)
}

// K8SResource is a reconstructed Kubernetes finding subject (§4.3.1).
type K8SResource struct {
	id           string
	name         string
	namespace    string // optional
	resourceType string
	data         map[string]any
}

func (r K8SResource) cloudResource()           {}
func (r K8SResource) ID() string               { return r.id }
func (r K8SResource) Name() string             { return r.name }
func (r K8SResource) ResourceType() string     { return r.resourceType }
func (r K8SResource) Discriminators() []string { return nil }
func (r K8SResource) Data() map[string]any     { return r.data }
func (r K8SResource) Namespace() string        { return r.namespace }

func (r K8SResource) Hash() string {
	return identity(r.id, r.name, r.namespace, r.resourceType)
}

// ResourceVisitor dispatches over the closed CloudResource variant set,
// replacing Python isinstance forks (§4.3.8, §9).
type ResourceVisitor[T any] interface {
	VisitAWS(AWSResource) T
	VisitAzure(AZUREResource) T
	VisitGoogle(GOOGLEResource) T
	VisitK8S(K8SResource) T
}

// Dispatch applies v to res according to its concrete variant.
func Dispatch[T any](res CloudResource, v ResourceVisitor[T]) T {
	switch r := res.(type) {
	case AWSResource:
		return v.VisitAWS(r)
	case AZUREResource:
		return v.VisitAzure(r)
	case GOOGLEResource:
		return v.VisitGoogle(r)
	case K8SResource:
		return v.VisitK8S(r)
	default:
		panic(fmt.Sprintf("resource: unreachable variant %T", res))
	}
}

func stringField(data map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := data[k]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}

// parseDate accepts either an ISO-8601 string or an epoch number (seconds or
// milliseconds, matching date_as_utc_iso's tolerance in the original).
func parseDate(data map[string]any, keys ...string) time.Time {
	for _, k := range keys {
		v, ok := data[k]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case string:
			if t, err := time.Parse(time.RFC3339, val); err == nil {
				return t.UTC()
			}
		case float64:
			sec := val
			if val > 1e12 { // treat as milliseconds
				sec = val / 1000
			}
			return time.Unix(int64(sec), 0).UTC()
		}
	}
	return time.Time{}
}

// NewAWSResource constructs an AWSResource from a raw JSON resource payload
// decoded into data, per resources.py's to_aws_resources.
func NewAWSResource(data map[string]any, region, resourceType string, discriminators []string) AWSResource {
	return AWSResource{
		id:             stringField(data, "Id", "InstanceId", "id"),
		name:           stringField(data, "Name", "name", "InstanceId"),
		arn:            stringField(data, "Arn", "arn"),
		region:         region,
		resourceType:   resourceType,
		date:           parseDate(data, "CreateTime", "LaunchTime", "date"),
		data:           data,
		discriminators: discriminators,
	}
}

// NewAZUREResource constructs an AZUREResource.
func NewAZUREResource(data map[string]any, location, resourceType string) AZUREResource {
	return AZUREResource{
		id:           stringField(data, "id", "Id"),
		name:         stringField(data, "name", "Name"),
		location:     location,
		resourceType: resourceType,
		data:         data,
	}
}

// NewGOOGLEResource constructs a GOOGLEResource.
func NewGOOGLEResource(data map[string]any, location, resourceType string, discriminators []string) GOOGLEResource {
	return GOOGLEResource{
		id:             stringField(data, "id", "Id"),
		name:           stringField(data, "name", "Name"),
		urn:            stringField(data, "urn", "selfLink"),
		location:       location,
		resourceType:   resourceType,
		data:           data,
		discriminators: discriminators,
	}
}

// NewK8SResource constructs a K8SResource.
func NewK8SResource(data map[string]any, resourceType string) K8SResource {
	return K8SResource{
		id:           stringField(data, "uid", "id"),
		name:         stringField(data, "name"),
		namespace:    stringField(data, "namespace"),
		resourceType: resourceType,
		data:         data,
	}
}

// DecodePayload unmarshals a ShardPart's JSON payload into a slice of raw
// attribute maps, the input to the per-cloud resource constructors.
func DecodePayload(payload []byte) ([]map[string]any, error) {
	var items []map[string]any
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("resource: decode payload: %w", err)
	}
	return items, nil
}

const MultiRegion = "multiregion"

// RelocateRegion implements §4.3.2's custom per-resource-type region
// disambiguation: glue-catalog/account resources get the literal region as
// a synthesized disambiguating attribute (handled by the caller attaching
// it to Data before constructing the resource); cloudtrail multi-region
// trails and rules flagged global (per the caller's own
// metadata.RuleMeta.Global lookup, passed in rather than tracked as
// mutable package state) are relocated to the synthetic "multiregion"
// region. Only res's own IsMultiRegionTrail flag is consulted, never
// resources[].accountId (§9 open question, preserved verbatim).
func RelocateRegion(global bool, resourceType, region string, data map[string]any) string {
	if global {
		return MultiRegion
	}
	if strings.EqualFold(resourceType, "aws.cloudtrail") {
		if v, ok := data["IsMultiRegionTrail"]; ok {
			if b, ok := v.(bool); ok && b {
				return MultiRegion
			}
		}
	}
	return region
}

// NeedsRegionDisambiguation reports whether resourceType is one of the
// multi-regional/self-referential types that must carry region as a
// synthesized attribute to disambiguate otherwise-identical DTOs (§4.3.2).
func NeedsRegionDisambiguation(resourceType string) bool {
	switch strings.ToLower(resourceType) {
	case "aws.glue-catalog", "aws.account":
		return true
	default:
		return false
	}
}
