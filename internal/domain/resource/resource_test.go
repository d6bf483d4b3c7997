package resource

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayloadParsesResourceList(t *testing.T) {
	items, err := DecodePayload([]byte(`[{"InstanceId":"i-1","Tags":[{"Key":"Env","Value":"Prod"}]}]`))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "i-1", items[0]["InstanceId"])
}

func TestNewAWSResourceExtractsIdentity(t *testing.T) {
	data := map[string]any{"InstanceId": "i-1", "Arn": "arn:aws:ec2:us-east-1:111:instance/i-1"}
	r := NewAWSResource(data, "us-east-1", "aws.ec2", nil)
	assert.Equal(t, "i-1", r.ID())
	assert.Equal(t, "arn:aws:ec2:us-east-1:111:instance/i-1", r.ARN())
	assert.Equal(t, "us-east-1", r.Region())
}

func TestAWSResourceHashIgnoresUnrelatedDataFields(t *testing.T) {
	base := map[string]any{"InstanceId": "i-1", "Extra": "whatever"}
	changed := map[string]any{"InstanceId": "i-1", "Extra": "different"}

	a := NewAWSResource(base, "us-east-1", "aws.ec2", nil)
	b := NewAWSResource(changed, "us-east-1", "aws.ec2", nil)
	assert.Equal(t, a.Hash(), b.Hash())
}

func TestAWSResourceHashDistinguishesByDiscriminator(t *testing.T) {
	data := map[string]any{"InstanceId": "acct-1"}
	a := NewAWSResource(data, "us-east-1", "aws.account", []string{"service-a"})
	b := NewAWSResource(data, "us-east-1", "aws.account", []string{"service-b"})
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestRelocateRegionHandlesCloudtrailMultiRegion(t *testing.T) {
	data := map[string]any{"IsMultiRegionTrail": true}
	region := RelocateRegion(false, "aws.cloudtrail", "us-west-2", data)
	assert.Equal(t, MultiRegion, region)
}

func TestRelocateRegionLeavesSingleRegionTrailAlone(t *testing.T) {
	data := map[string]any{"IsMultiRegionTrail": false}
	region := RelocateRegion(false, "aws.cloudtrail", "us-west-2", data)
	assert.Equal(t, "us-west-2", region)
}

func TestRelocateRegionHonorsGlobalRuleFlag(t *testing.T) {
	region := RelocateRegion(true, "aws.iam", "us-east-1", map[string]any{})
	assert.Equal(t, MultiRegion, region)
}

func TestNeedsRegionDisambiguationForGlueCatalogAndAccount(t *testing.T) {
	assert.True(t, NeedsRegionDisambiguation("aws.glue-catalog"))
	assert.True(t, NeedsRegionDisambiguation("aws.account"))
	assert.False(t, NeedsRegionDisambiguation("aws.ec2"))
}

func TestDispatchRoutesToCorrectVisitorMethod(t *testing.T) {
	var res CloudResource = NewK8SResource(map[string]any{"uid": "u-1", "name": "pod-1"}, "k8s.pod")
	got := Dispatch[string](res, idVisitor{})
	assert.Equal(t, "u-1", got)
}

type idVisitor struct{}

func (idVisitor) VisitAWS(r AWSResource) string       { return r.ID() }
func (idVisitor) VisitAzure(r AZUREResource) string   { return r.ID() }
func (idVisitor) VisitGoogle(r GOOGLEResource) string { return r.ID() }
func (idVisitor) VisitK8S(r K8SResource) string       { return r.ID() }

func TestFieldProjectionViewKeepsDeclaredAndMandatoryFields(t *testing.T) {
	r := NewAWSResource(map[string]any{
		"id":     "i-1",
		"public": true,
		"secret": "shouldnotleak",
	}, "us-east-1", "aws.ec2", nil)

	view := FieldProjectionView{Fields: []string{"public"}}
	projected := view.VisitAWS(r)

	assert.Equal(t, true, projected["public"])
	assert.Equal(t, "i-1", projected["id"])
	_, hasSecret := projected["secret"]
	assert.False(t, hasSecret)
}
