package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epam/rule-engine/internal/domain/metadata"
	"github.com/epam/rule-engine/internal/domain/resource"
	"github.com/epam/rule-engine/internal/domain/shard"
	"github.com/epam/rule-engine/internal/domain/tenant"
	"github.com/epam/rule-engine/internal/domain/trigger"
)

func testRegistry() *metadata.MapRegistry {
	return metadata.NewMapRegistry([]metadata.RuleMeta{
		{
			RuleName:     "ec2-public-access",
			Severity:     metadata.SeverityHigh,
			ResourceType: "aws.ec2",
			Standards:    metadata.StandardControls{"cis-aws": {"1.4": {"1.1", "1.2"}}},
		},
		{
			RuleName:     "cloudtrail-x",
			ResourceType: "aws.cloudtrail",
		},
	}, map[string]string{"ec2-public-access": "AWS", "cloudtrail-x": "AWS"})
}

func TestEmptyCollectionYieldsNoResourcesAndZeroCoverage(t *testing.T) {
	c := shard.NewShardsCollection(shard.SingleShardDistributor{})
	items, err := IterRuleResources(c, testRegistry(), tenant.CloudAWS)
	require.NoError(t, err)
	assert.Empty(t, items)

	coverage := ComputeCoverage(nil, testRegistry(), "AWS", false)
	for _, c := range coverage {
		assert.Equal(t, 0.0, c.Coverage)
	}
}

func TestSingleRuleOneRegionOneResource(t *testing.T) {
	c := shard.NewShardsCollection(shard.SingleShardDistributor{})
	c.PutPart(shard.Part{
		Policy:    "ec2-public-access",
		Location:  "us-east-1",
		Timestamp: 1,
		Payload:   []byte(`[{"InstanceId":"i-1","Tags":[{"Key":"Env","Value":"Prod"}]}]`),
	})

	items, err := IterRuleResources(c, testRegistry(), tenant.CloudAWS)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "i-1", items[0].Resource.ID())
	assert.Equal(t, "us-east-1", items[0].Region)
}

func TestCloudtrailMultiRegionRelocatesToSyntheticRegion(t *testing.T) {
	c := shard.NewShardsCollection(shard.SingleShardDistributor{})
	c.PutPart(shard.Part{
		Policy:    "cloudtrail-x",
		Location:  "us-west-2",
		Timestamp: 1,
		Payload:   []byte(`[{"IsMultiRegionTrail":true,"Name":"trail-1"}]`),
	})

	items, err := IterRuleResources(c, testRegistry(), tenant.CloudAWS)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, resource.MultiRegion, items[0].Region)
}

func TestExceptionFilterRetainsOnlyNonMatchingResource(t *testing.T) {
	prodRes := resource.NewAWSResource(map[string]any{
		"InstanceId": "i-prod",
		"Tags":       []any{map[string]any{"Key": "Env", "Value": "Prod"}},
	}, "us-east-1", "aws.ec2", nil)
	devRes := resource.NewAWSResource(map[string]any{
		"InstanceId": "i-dev",
		"Tags":       []any{map[string]any{"Key": "Env", "Value": "Dev"}},
	}, "us-east-1", "aws.ec2", nil)

	items := []RuleResource{
		{Policy: "ec2-public-access", Region: "us-east-1", Resource: prodRes},
		{Policy: "ec2-public-access", Region: "us-east-1", Resource: devRes},
	}
	exceptions := []trigger.ResourceException{
		{ID: "exc-1", Tenant: "T", TagFilters: []string{"Env=Prod"}},
	}

	result := FilterExceptionResources(items, exceptions, testRegistry(), time.Now())
	require.Len(t, result.Remaining, 1)
	assert.Equal(t, "i-dev", result.Remaining[0].Resource.ID())

	summary := result.SummaryByID["exc-1"]
	assert.Equal(t, 1, summary.Resources[metadata.SeverityHigh])
}

func TestExpiredExceptionNeverMatches(t *testing.T) {
	res := resource.NewAWSResource(map[string]any{"InstanceId": "i-1"}, "us-east-1", "aws.ec2", nil)
	items := []RuleResource{{Policy: "ec2-public-access", Region: "us-east-1", Resource: res}}
	exceptions := []trigger.ResourceException{
		{ID: "exc-1", Tenant: "T", ResourceID: "i-1", ExpiresAt: time.Now().Add(-time.Hour)},
	}

	result := FilterExceptionResources(items, exceptions, testRegistry(), time.Now())
	assert.Empty(t, result.Exceptions)
	assert.Len(t, result.Remaining, 1)
}

func TestDeduplicationIsIdempotent(t *testing.T) {
	res := resource.NewAWSResource(map[string]any{"InstanceId": "i-1"}, "us-east-1", "aws.ec2", nil)
	items := []RuleResource{
		{Policy: "p", Region: "us-east-1", Resource: res},
		{Policy: "p", Region: "us-east-1", Resource: res},
	}
	once := Deduplicate(items)
	twice := Deduplicate(once)
	assert.Equal(t, once, twice)
	assert.Len(t, once, 1)
}

func TestDiffPolicyContainsOnlyNewResources(t *testing.T) {
	prev := resource.NewAWSResource(map[string]any{"InstanceId": "i-1", "Status": "open"}, "us-east-1", "aws.ec2", nil)
	curSame := resource.NewAWSResource(map[string]any{"InstanceId": "i-1", "Status": "open"}, "us-east-1", "aws.ec2", nil)
	curNew := resource.NewAWSResource(map[string]any{"InstanceId": "i-2", "Status": "open"}, "us-east-1", "aws.ec2", nil)

	previous := []RuleResource{{Policy: "p", Region: "us-east-1", Resource: prev}}
	current := []RuleResource{
		{Policy: "p", Region: "us-east-1", Resource: curSame},
		{Policy: "p", Region: "us-east-1", Resource: curNew},
	}

	diff := DiffPolicy(current, previous, DiffOptions{})
	require.Len(t, diff, 1)
	assert.Equal(t, "i-2", diff[0].Resource.ID())
}

func TestCoverageMonotonicityRemovingRuleNeverIncreasesCoverage(t *testing.T) {
	reg := testRegistry()
	withRule := ComputeCoverage([]RuleOutcome{{RuleName: "ec2-public-access", Errored: false, ViolatingCount: 0}}, reg, "AWS", false)
	withoutRule := ComputeCoverage(nil, reg, "AWS", false)

	var withCov, withoutCov float64
	for _, c := range withRule {
		if c.Standard == "cis-aws" {
			withCov = c.Coverage
		}
	}
	for _, c := range withoutRule {
		if c.Standard == "cis-aws" {
			withoutCov = c.Coverage
		}
	}
	assert.GreaterOrEqual(t, withCov, withoutCov)
}

// TestCoverageRequiresEveryMappedRuleToHaveRun guards against the
// regression where a control was marked successful as soon as the rules
// that happened to run were clean, without checking that every rule the
// registry maps to that control actually ran. With r1 and r2 mapped to the
// same control and r1's run violating, dropping r1 from the scan (so only
// its clean sibling r2 runs) must not report the control (or the standard's
// coverage) as more successful.
func TestCoverageRequiresEveryMappedRuleToHaveRun(t *testing.T) {
	reg := metadata.NewMapRegistry([]metadata.RuleMeta{
		{RuleName: "r1", Standards: metadata.StandardControls{"cis-aws": {"1.4": {"1.1"}}}},
		{RuleName: "r2", Standards: metadata.StandardControls{"cis-aws": {"1.4": {"1.1"}}}},
	}, map[string]string{"r1": "AWS", "r2": "AWS"})

	bothRan := ComputeCoverage([]RuleOutcome{
		{RuleName: "r1", ViolatingCount: 1},
		{RuleName: "r2", ViolatingCount: 0},
	}, reg, "AWS", false)
	onlyR2Ran := ComputeCoverage([]RuleOutcome{
		{RuleName: "r2", ViolatingCount: 0},
	}, reg, "AWS", false)

	var bothCov, onlyR2Cov float64
	for _, c := range bothRan {
		if c.Standard == "cis-aws" {
			bothCov = c.Coverage
		}
	}
	for _, c := range onlyR2Ran {
		if c.Standard == "cis-aws" {
			onlyR2Cov = c.Coverage
		}
	}
	assert.Equal(t, 0.0, bothCov, "control 1.1 has a violating rule, so it must not count successful")
	assert.Equal(t, 0.0, onlyR2Cov, "r1 never ran, so control 1.1 can't be called successful even though r2 was clean")
}

func TestAggregateStatisticsComputesArithmeticMeans(t *testing.T) {
	items := []shard.StatisticsItem{
		{Policy: "p", Region: "us-east-1", StartTime: 0, EndTime: 2, ScannedResources: 10},
		{Policy: "p", Region: "us-east-1", StartTime: 0, EndTime: 4, ScannedResources: 20},
	}
	stats := AggregateStatistics(items)
	require.Len(t, stats, 1)
	assert.Equal(t, 3.0, stats[0].AverageExecSeconds)
	assert.Equal(t, 15.0, stats[0].AverageResourcesScanned)
	assert.Equal(t, 2, stats[0].Invocations)
}

func TestFailedOnlyKeepsErrorTypeAndReasonDistinct(t *testing.T) {
	it := shard.StatisticsItem{
		Policy: "p", Region: "us-east-1",
		ErrorType: "AccessDenied", Reason: "missing iam:ListRoles", Traceback: "Traceback (most recent call last): ...",
	}
	view := FailedOnly(it)
	assert.Equal(t, "AccessDenied", view.ErrorType)
	assert.Equal(t, "missing iam:ListRoles", view.Reason)
}

func TestSIEMSeverityMapsUnknownToMedium(t *testing.T) {
	reg := metadata.NewMapRegistry([]metadata.RuleMeta{
		{RuleName: "no-severity-rule", Severity: metadata.SeverityUnknown},
	}, nil)
	res := resource.NewAWSResource(map[string]any{"InstanceId": "i-1"}, "us-east-1", "aws.ec2", nil)
	items := []RuleResource{{Policy: "no-severity-rule", Region: "us-east-1", Resource: res}}

	findings := ToGenericFindings(items, reg, false)
	require.Len(t, findings, 1)
	assert.Equal(t, metadata.SeverityMedium, findings[0].Severity)
}
