// Package rulesourcesyncer implements the Rule-Source Syncer (§4.6): pulling
// a git-hosted rule bundle, diffing it against what's already stored, and
// stamping every surviving rule with its blame commit, grounded on the
// original's RuleMetaUpdaterLambdaHandler.pull_rules flow.
package rulesourcesyncer

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/epam/rule-engine/internal/domain/rule"
	"github.com/epam/rule-engine/internal/domain/tenant"
	svcerrors "github.com/epam/rule-engine/internal/platform/errors"
	"github.com/epam/rule-engine/internal/platform/logging"
	"github.com/epam/rule-engine/internal/platform/metrics"
	"github.com/epam/rule-engine/internal/storage"
)

// SecretResolver resolves a RuleSource's opaque SecretName into the
// credential (personal access token, GraphQL bearer token) its git host
// needs. Out of scope: the actual secret store is an external collaborator.
type SecretResolver interface {
	Resolve(ctx context.Context, secretName string) (token string, err error)
}

// PulledFile is one extracted file from a rule source's tarball, relative to
// the repository root (or PathPrefix, if one is configured).
type PulledFile struct {
	Path string
	Body []byte
}

// Puller downloads and unpacks a RuleSource's git-hosted archive.
type Puller interface {
	Pull(ctx context.Context, rs rule.RuleSource, token string) (files []PulledFile, releaseTag string, err error)
}

// BlameRef is the result of a per-file blame query: the commit that last
// touched it and, when the host surfaces it, the commit's timestamp.
type BlameRef struct {
	CommitHash string
	UpdatedAt  time.Time
}

// BlameClient resolves the most recent blame entry for one file path in a
// RuleSource. GitLab's file-metadata endpoint carries no commit timestamp, so
// UpdatedAt is left zero for GitLab-sourced rules.
type BlameClient interface {
	Blame(ctx context.Context, rs rule.RuleSource, token, filePath string) (BlameRef, error)
}

// Syncer owns the RuleSource sync orchestration.
type Syncer struct {
	sources storage.RuleSourceStore
	rules   storage.RuleStore
	secrets SecretResolver
	puller  Puller
	blame   BlameClient
	logger  *logging.Logger
	// blameWorkers bounds the concurrent blame queries per sync run, the Go
	// counterpart to the original's ThreadPoolExecutor pool.
	blameWorkers int
}

// Option configures a Syncer at construction time.
type Option func(*Syncer)

// WithBlameWorkers overrides the default blame-query concurrency.
func WithBlameWorkers(n int) Option {
	return func(s *Syncer) {
		if n > 0 {
			s.blameWorkers = n
		}
	}
}

func New(sources storage.RuleSourceStore, rules storage.RuleStore, secrets SecretResolver, puller Puller, blame BlameClient, logger *logging.Logger, opts ...Option) *Syncer {
	s := &Syncer{
		sources:      sources,
		rules:        rules,
		secrets:      secrets,
		puller:       puller,
		blame:        blame,
		logger:       logger,
		blameWorkers: 8,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync pulls sourceID's current tree, diffs it against the stored rule set,
// deletes whatever dropped out, blame-stamps the survivors, and upserts them
// — mirroring pull_rules's SYNCING -> diff -> blame -> SYNCED/FAILED flow.
func (s *Syncer) Sync(ctx context.Context, sourceID string) error {
	rs, ok, err := s.sources.Get(ctx, sourceID)
	if err != nil {
		return err
	}
	if !ok {
		return svcerrors.NotFound("rule_source", sourceID)
	}

	rs.LatestSync.Status = rule.SyncStatusSyncing
	if err := s.sources.Update(ctx, rs); err != nil {
		return err
	}

	if err := s.sync(ctx, rs); err != nil {
		rs.LatestSync.Status = rule.SyncStatusFailed
		if uErr := s.sources.Update(ctx, rs); uErr != nil {
			s.logger.WithError(uErr).WithFields(map[string]interface{}{"rule_source_id": sourceID}).
				Error("failed to persist FAILED sync status")
		}
		metrics.RuleSourceSyncs.WithLabelValues(string(rule.SyncStatusFailed)).Inc()
		return err
	}

	metrics.RuleSourceSyncs.WithLabelValues(string(rule.SyncStatusSynced)).Inc()
	return nil
}

func (s *Syncer) sync(ctx context.Context, rs rule.RuleSource) error {
	var token string
	if rs.SecretName != "" {
		t, err := s.secrets.Resolve(ctx, rs.SecretName)
		if err != nil {
			return svcerrors.Wrap(svcerrors.CodeUpstreamUnavailable, "resolving rule source secret", 502, err)
		}
		token = t
	}

	files, releaseTag, err := s.puller.Pull(ctx, rs, token)
	if err != nil {
		return svcerrors.Wrap(svcerrors.CodeUpstreamUnavailable, "pulling rule source archive", 502, err)
	}

	rules, version, versionCustodian := loadRules(rs, files, s.logger)

	existing, err := s.rules.ListByRuleSource(ctx, rs.ID)
	if err != nil {
		return err
	}
	survive := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		survive[r.Name] = struct{}{}
	}
	for _, old := range existing {
		if _, ok := survive[old.Name]; !ok {
			if err := s.rules.Delete(ctx, old.Name, rs.ID); err != nil {
				return err
			}
		}
	}

	if err := s.blameStamp(ctx, rs, token, rules); err != nil {
		return err
	}

	for _, r := range rules {
		if err := s.rules.Upsert(ctx, r); err != nil {
			return err
		}
	}

	rs.LatestSync = rule.LatestSync{
		Status:    rule.SyncStatusSynced,
		Tag:       releaseTag,
		Version:   firstNonEmpty(version, versionCustodian),
		Timestamp: time.Now(),
	}
	return s.sources.Update(ctx, rs)
}

// blameStamp resolves a blame ref for every rule concurrently, bounded by
// blameWorkers. A failed blame query is tolerated: the rule keeps its
// previous stamp (zero value on first sync), matching the original's
// best-effort "expand_with_commit_hash" behavior.
func (s *Syncer) blameStamp(ctx context.Context, rs rule.RuleSource, token string, rules []rule.Rule) error {
	if s.blame == nil {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.blameWorkers)
	for i := range rules {
		i := i
		g.Go(func() error {
			ref, err := s.blame.Blame(gctx, rs, token, rules[i].SourcePath)
			if err != nil {
				s.logger.WithError(err).WithFields(map[string]interface{}{
					"rule_source_id": rs.ID, "rule": rules[i].Name,
				}).Warn("blame query failed, leaving rule unstamped")
				return nil
			}
			rules[i].CommitHash = ref.CommitHash
			rules[i].UpdatedAt = ref.UpdatedAt
			return nil
		})
	}
	return g.Wait()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// policyDoc is the subset of a rule-source YAML file's shape this package
// cares about: a list of policy dicts under a top-level "policies" key.
type policyDoc struct {
	Policies []policy `yaml:"policies"`
}

type policy struct {
	Name         string `yaml:"name"`
	ResourceType string `yaml:"resource"`
}

// loadRules walks the pulled file set for YAML policy files (skipping
// .gitlab-ci.yml) and the flat "version"/"version-custodian" marker files,
// mirroring RulesRepo.iter_policies / the version-file lookups in
// rule_meta_updater.
func loadRules(rs rule.RuleSource, files []PulledFile, logger *logging.Logger) (rules []rule.Rule, version, versionCustodian string) {
	for _, f := range files {
		rel := f.Path
		if rs.PathPrefix != "" {
			if !strings.HasPrefix(rel, rs.PathPrefix) {
				continue
			}
		}
		base := path.Base(rel)

		switch {
		case base == "version" && version == "":
			version = strings.TrimSpace(string(f.Body))
			continue
		case base == "version-custodian" && versionCustodian == "":
			versionCustodian = strings.TrimSpace(string(f.Body))
			continue
		case base == ".gitlab-ci.yml":
			continue
		case !strings.HasSuffix(base, ".yaml") && !strings.HasSuffix(base, ".yml"):
			continue
		}

		var doc policyDoc
		if err := yaml.Unmarshal(f.Body, &doc); err != nil {
			logger.WithError(err).WithFields(map[string]interface{}{"file": rel}).Warn("skipping invalid policy file")
			continue
		}

		for _, p := range doc.Policies {
			if p.Name == "" {
				logger.WithFields(map[string]interface{}{"file": rel}).Warn("skipping policy entry with no name")
				continue
			}
			rules = append(rules, rule.Rule{
				Name:         p.Name,
				RuleSourceID: rs.ID,
				Cloud:        cloudFromResourceType(p.ResourceType),
				ResourceType: p.ResourceType,
				SourcePath:   rel,
			})
		}
	}
	return rules, version, versionCustodian
}

// cloudFromResourceType derives the owning cloud from a policy's
// "resource" field, which Cloud Custodian always prefixes with the
// provider it targets (e.g. "aws.s3", "azure.vm", "gcp.instance", "k8s.pod").
func cloudFromResourceType(resourceType string) tenant.Cloud {
	prefix, _, _ := strings.Cut(resourceType, ".")
	switch strings.ToLower(prefix) {
	case "aws":
		return tenant.CloudAWS
	case "azure":
		return tenant.CloudAzure
	case "gcp", "google":
		return tenant.CloudGoogle
	case "k8s", "kubernetes":
		return tenant.CloudKubernetes
	default:
		return tenant.Cloud(strings.ToUpper(prefix))
	}
}

// extractTarball unpacks a (possibly gzip-compressed) tar stream, stripping
// the single top-level directory every GitHub/GitLab archive wraps its
// contents in, mirroring the original's "single top-level extracted
// directory is the repo root" convention. Compression is detected by
// sniffing the gzip magic number rather than trusting a file extension,
// since GitLab's raw archive endpoint can serve either.
func extractTarball(r io.Reader) ([]PulledFile, error) {
	reader, err := maybeGunzip(r)
	if err != nil {
		return nil, err
	}

	tr := tar.NewReader(reader)
	var out []PulledFile
	var root string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("rulesourcesyncer: reading tar entry: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		name := hdr.Name
		if root == "" {
			if idx := strings.IndexByte(name, '/'); idx >= 0 {
				root = name[:idx+1]
			}
		}
		rel := strings.TrimPrefix(name, root)
		if rel == "" {
			continue
		}
		body, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("rulesourcesyncer: reading tar entry %q: %w", name, err)
		}
		out = append(out, PulledFile{Path: rel, Body: body})
	}
	return out, nil
}

type peekReader struct {
	head []byte
	rest io.Reader
}

func (p *peekReader) Read(b []byte) (int, error) {
	if len(p.head) > 0 {
		n := copy(b, p.head)
		p.head = p.head[n:]
		return n, nil
	}
	return p.rest.Read(b)
}

// maybeGunzip sniffs the gzip magic number so a Puller doesn't need to know
// in advance whether the host served a compressed or raw tar stream.
func maybeGunzip(r io.Reader) (io.Reader, error) {
	head := make([]byte, 2)
	n, err := io.ReadFull(r, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	peek := &peekReader{head: head[:n], rest: r}
	if n == 2 && head[0] == 0x1f && head[1] == 0x8b {
		return gzip.NewReader(peek)
	}
	return peek, nil
}

// httpBody is a small helper shared by Pull/Blame implementations: issue a
// request and return its body, translating non-2xx responses into errors.
func httpBody(ctx context.Context, client *http.Client, method, url string, headers map[string]string) ([]byte, http.Header, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, resp.Header, fmt.Errorf("rulesourcesyncer: %s %s: status %d: %s", method, url, resp.StatusCode, bytes.TrimSpace(body))
	}
	body, err := io.ReadAll(resp.Body)
	return body, resp.Header, err
}

