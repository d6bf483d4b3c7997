package siem

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epam/rule-engine/internal/domain/metadata"
	"github.com/epam/rule-engine/internal/domain/report"
	"github.com/epam/rule-engine/internal/domain/resource"
	svcerrors "github.com/epam/rule-engine/internal/platform/errors"
	"github.com/epam/rule-engine/internal/platform/logging"
)

type recordingDestination struct {
	mu      sync.Mutex
	batches [][]byte
	failOn  func(batch []byte) bool
}

func (d *recordingDestination) Name() string { return "test-destination" }

func (d *recordingDestination) Push(ctx context.Context, batch []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failOn != nil && d.failOn(batch) {
		return assert.AnError
	}
	d.batches = append(d.batches, batch)
	return nil
}

func testItems() []report.RuleResource {
	return []report.RuleResource{
		{
			Policy:   "s3-public-read-prohibited",
			Region:   "eu-central-1",
			Resource: resource.NewAWSResource(map[string]any{"Id": "bucket-1"}, "eu-central-1", "aws.s3", nil),
		},
		{
			Policy:   "ec2-imdsv2-required",
			Region:   "eu-central-1",
			Resource: resource.NewAWSResource(map[string]any{"Id": "i-123"}, "eu-central-1", "aws.ec2", nil),
		},
	}
}

func testRegistry() metadata.Registry {
	return metadata.NewMapRegistry([]metadata.RuleMeta{
		{RuleName: "s3-public-read-prohibited", Severity: metadata.SeverityHigh, Description: "bucket is public"},
		{RuleName: "ec2-imdsv2-required", Severity: metadata.SeverityUnknown, Description: "imdsv2 not enforced"},
	}, nil)
}

func TestPushGenericFindingsMarkdownAttachment(t *testing.T) {
	dest := &recordingDestination{}
	p := New(dest, logging.New("siem-test", "error", "text"))

	result, err := p.Push(context.Background(), PushRequest{
		Items:            testItems(),
		Registry:         testRegistry(),
		Format:           FormatGenericFindings,
		AttachmentFormat: report.AttachmentMarkdown,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
	require.Len(t, dest.batches, 2)

	var wire genericFindingWire
	require.NoError(t, json.Unmarshal(dest.batches[0], &wire))
	assert.Contains(t, wire.Attachment, "|")
	assert.Equal(t, report.AttachmentMarkdown, wire.AttachmentFormat)
}

func TestPushGenericFindingsNormalizesUnknownSeverity(t *testing.T) {
	dest := &recordingDestination{}
	p := New(dest, logging.New("siem-test", "error", "text"))

	_, err := p.Push(context.Background(), PushRequest{
		Items:            testItems(),
		Registry:         testRegistry(),
		Format:           FormatGenericFindings,
		AttachmentFormat: report.AttachmentJSON,
	})
	require.NoError(t, err)

	var sawNormalized bool
	for _, b := range dest.batches {
		var wire genericFindingWire
		require.NoError(t, json.Unmarshal(b, &wire))
		if wire.RuleName == "ec2-imdsv2-required" {
			assert.Equal(t, string(metadata.SeverityMedium), wire.Severity)
			sawNormalized = true
		}
	}
	assert.True(t, sawNormalized)
}

func TestPushCloudCustodianScanFormat(t *testing.T) {
	dest := &recordingDestination{}
	p := New(dest, logging.New("siem-test", "error", "text"))

	result, err := p.Push(context.Background(), PushRequest{
		Items:  testItems(),
		Format: FormatCloudCustodianScan,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Succeeded)
}

func TestPushUDMEventsAndEntities(t *testing.T) {
	dest := &recordingDestination{}
	p := New(dest, logging.New("siem-test", "error", "text"))

	_, err := p.Push(context.Background(), PushRequest{Items: testItems(), Registry: testRegistry(), Format: FormatUDMEvents})
	require.NoError(t, err)

	_, err = p.Push(context.Background(), PushRequest{Items: testItems(), Format: FormatUDMEntities})
	require.NoError(t, err)
}

func TestPushReturnsPartialFailureWith503(t *testing.T) {
	var failed bool
	dest := &recordingDestination{failOn: func(batch []byte) bool {
		if failed {
			return false
		}
		failed = true
		return true
	}}
	p := New(dest, logging.New("siem-test", "error", "text"))

	result, err := p.Push(context.Background(), PushRequest{
		Items:    testItems(),
		Registry: testRegistry(),
		Format:   FormatCloudCustodianScan,
	})
	require.Error(t, err)
	assert.Equal(t, svcerrors.CodeUpstreamUnavailable, svcerrors.CodeOf(err))
	assert.Equal(t, 503, svcerrors.HTTPStatus(err))
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
}

func TestEncodeAttachmentAllFormats(t *testing.T) {
	resources := []map[string]any{{"id": "r-1", "region": "eu-central-1"}}

	for _, format := range []report.AttachmentFormat{report.AttachmentJSON, report.AttachmentMarkdown, report.AttachmentCSVBase64, report.AttachmentXLSX} {
		out, err := encodeAttachment(resources, format)
		require.NoError(t, err, "format %s", format)
		assert.NotEmpty(t, out, "format %s", format)
	}
}
