package resource

// InPlaceResourceView is a ResourceVisitor that projects a CloudResource
// into its full attribute map untouched, the identity view used when no
// field projection is requested (§4.3.1/§4.3.3).
type InPlaceResourceView struct{}

func (InPlaceResourceView) VisitAWS(r AWSResource) map[string]any {
	return withIdentity(r.Data(), r.ID(), r.Name(), r.ResourceType())
}

func (InPlaceResourceView) VisitAzure(r AZUREResource) map[string]any {
	return withIdentity(r.Data(), r.ID(), r.Name(), r.ResourceType())
}

func (InPlaceResourceView) VisitGoogle(r GOOGLEResource) map[string]any {
	return withIdentity(r.Data(), r.ID(), r.Name(), r.ResourceType())
}

func (InPlaceResourceView) VisitK8S(r K8SResource) map[string]any {
	return withIdentity(r.Data(), r.ID(), r.Name(), r.ResourceType())
}

func withIdentity(data map[string]any, id, name, resourceType string) map[string]any {
	out := make(map[string]any, len(data)+3)
	for k, v := range data {
		out[k] = v
	}
	out["__id"] = id
	out["__name"] = name
	out["__resource_type"] = resourceType
	return out
}

// FieldProjectionView is a ResourceVisitor that keeps only the rule-declared
// report fields plus the mandatory identity fields (§4.3.3: "keep only the
// report fields declared by the rule's metadata plus mandatory identity
// fields").
type FieldProjectionView struct {
	// Fields are the rule-metadata-declared report field names.
	Fields []string
}

// mandatoryFields are always kept regardless of the rule's declared fields.
var mandatoryFields = []string{"id", "name", "arn", "urn", "namespace"}

func (v FieldProjectionView) project(data map[string]any, id, name, resourceType string) map[string]any {
	out := make(map[string]any, len(v.Fields)+3)
	for _, f := range v.Fields {
		if val, ok := data[f]; ok {
			out[f] = val
		}
	}
	for _, f := range mandatoryFields {
		if val, ok := data[f]; ok {
			out[f] = val
		}
	}
	out["__id"] = id
	out["__name"] = name
	out["__resource_type"] = resourceType
	return out
}

func (v FieldProjectionView) VisitAWS(r AWSResource) map[string]any {
	return v.project(r.Data(), r.ID(), r.Name(), r.ResourceType())
}

func (v FieldProjectionView) VisitAzure(r AZUREResource) map[string]any {
	return v.project(r.Data(), r.ID(), r.Name(), r.ResourceType())
}

func (v FieldProjectionView) VisitGoogle(r GOOGLEResource) map[string]any {
	return v.project(r.Data(), r.ID(), r.Name(), r.ResourceType())
}

func (v FieldProjectionView) VisitK8S(r K8SResource) map[string]any {
	return v.project(r.Data(), r.ID(), r.Name(), r.ResourceType())
}

// HashVisitor extracts the dedup hash from any variant, used by the
// deduplication stage (§4.3.3) without a type switch at call sites.
type HashVisitor struct{}

func (HashVisitor) VisitAWS(r AWSResource) string       { return r.Hash() }
func (HashVisitor) VisitAzure(r AZUREResource) string   { return r.Hash() }
func (HashVisitor) VisitGoogle(r GOOGLEResource) string { return r.Hash() }
func (HashVisitor) VisitK8S(r K8SResource) string       { return r.Hash() }
