// Package siem implements the SIEM push service (§4.3.8): converting a job's
// collected findings into the Generic Findings / Cloud Custodian Scan / UDM
// wire shapes and pushing each batch to its configured external destination
// with bounded parallelism.
package siem

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/epam/rule-engine/internal/domain/metadata"
	"github.com/epam/rule-engine/internal/domain/report"
	svcerrors "github.com/epam/rule-engine/internal/platform/errors"
	"github.com/epam/rule-engine/internal/platform/logging"
	"github.com/epam/rule-engine/internal/platform/metrics"
)

// Destination is the out-of-scope external collaborator: a configured SIEM
// transport (DefectDojo, a Chronicle ingestion endpoint, an S3-backed Cloud
// Custodian Scan bucket). It receives one already-encoded batch at a time.
type Destination interface {
	Name() string
	Push(ctx context.Context, batch []byte) error
}

// Format selects which of the three §4.3.8 wire shapes a push targets.
type Format string

const (
	FormatGenericFindings   Format = "generic_findings"
	FormatCloudCustodianScan Format = "cloud_custodian_scan"
	FormatUDMEvents         Format = "udm_events"
	FormatUDMEntities       Format = "udm_entities"
)

// PushRequest describes one push job: the findings to convert, the format
// and attachment mode, and whether to split one batch per resource.
type PushRequest struct {
	Items            []report.RuleResource
	Registry         metadata.Registry
	Format           Format
	AttachmentFormat report.AttachmentFormat // only meaningful for FormatGenericFindings
	PerResource      bool
}

// PushResult is the per-batch success/failure split §4.3.8 requires a
// partial push to report.
type PushResult struct {
	Succeeded int
	Failed    int
}

// Pusher owns the convert-then-push orchestration for one destination.
type Pusher struct {
	destination Destination
	logger      *logging.Logger
	// batchWorkers bounds push concurrency per job, the Go counterpart to the
	// original's per-job bounded parallelism for downstream pushes (§5).
	batchWorkers int
}

// Option configures a Pusher at construction time.
type Option func(*Pusher)

// WithBatchWorkers overrides the default push concurrency.
func WithBatchWorkers(n int) Option {
	return func(p *Pusher) {
		if n > 0 {
			p.batchWorkers = n
		}
	}
}

func New(destination Destination, logger *logging.Logger, opts ...Option) *Pusher {
	p := &Pusher{destination: destination, logger: logger, batchWorkers: 8}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Push converts req.Items into req.Format's wire shape and pushes each
// resulting batch to the destination concurrently, bounded by batchWorkers.
// A partial failure does not abort the remaining batches: every batch is
// attempted, and the split is returned alongside an UPSTREAM_UNAVAILABLE
// error (HTTP 503) carrying the success/failure counts, per §4.3's
// background-pipelines-log-and-continue propagation rule.
func (p *Pusher) Push(ctx context.Context, req PushRequest) (PushResult, error) {
	batches, err := buildBatches(req)
	if err != nil {
		return PushResult{}, svcerrors.EncodeDecode("siem batch payload", err)
	}

	var result PushResult
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.batchWorkers)
	resultsCh := make(chan bool, len(batches))

	for _, batch := range batches {
		batch := batch
		g.Go(func() error {
			err := p.destination.Push(gctx, batch)
			resultsCh <- err == nil
			if err != nil {
				p.logger.WithError(err).WithFields(map[string]interface{}{
					"destination": p.destination.Name(), "format": string(req.Format),
				}).Warn("siem batch push failed")
			}
			return nil
		})
	}
	// g.Wait never returns an error here: each goroutine swallows its own
	// push error into resultsCh so every batch gets attempted regardless of
	// a sibling's failure.
	_ = g.Wait()
	close(resultsCh)

	for ok := range resultsCh {
		if ok {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}

	outcome := "success"
	if result.Failed > 0 {
		outcome = "partial_failure"
	}
	if result.Succeeded == 0 && result.Failed > 0 {
		outcome = "failure"
	}
	metrics.SIEMPushResults.WithLabelValues(outcome).Inc()

	if result.Failed > 0 {
		return result, svcerrors.New(svcerrors.CodeUpstreamUnavailable, "siem push completed with failures", 503).
			WithDetails("succeeded", result.Succeeded).
			WithDetails("failed", result.Failed)
	}
	return result, nil
}

// buildBatches converts req.Items into req.Format's wire shape and encodes
// each resulting item as one JSON batch.
func buildBatches(req PushRequest) ([][]byte, error) {
	switch req.Format {
	case FormatGenericFindings:
		findings := report.ToGenericFindings(req.Items, req.Registry, req.PerResource)
		return encodeGenericFindings(findings, req.AttachmentFormat)
	case FormatCloudCustodianScan:
		items := report.ToCloudCustodianScan(req.Items, req.PerResource)
		return encodeEach(items)
	case FormatUDMEvents:
		events := report.ToUDMEvents(req.Items, req.Registry)
		return encodeEach(events)
	case FormatUDMEntities:
		entities := report.ToUDMEntities(req.Items)
		return encodeEach(entities)
	default:
		return nil, fmt.Errorf("siem: unsupported format %q", req.Format)
	}
}

func encodeEach[T any](items []T) ([][]byte, error) {
	out := make([][]byte, 0, len(items))
	for _, item := range items {
		b, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
