package rulesourcesyncer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/epam/rule-engine/internal/domain/rule"
	"github.com/epam/rule-engine/internal/domain/tenant"
	"github.com/epam/rule-engine/internal/platform/logging"
	"github.com/epam/rule-engine/internal/storage/memory"
)

type fakePuller struct {
	files      []PulledFile
	releaseTag string
	err        error
	calls      int
}

func (f *fakePuller) Pull(ctx context.Context, rs rule.RuleSource, token string) ([]PulledFile, string, error) {
	f.calls++
	return f.files, f.releaseTag, f.err
}

type fakeBlame struct {
	refs map[string]BlameRef
	err  error
}

func (f *fakeBlame) Blame(ctx context.Context, rs rule.RuleSource, token, filePath string) (BlameRef, error) {
	if f.err != nil {
		return BlameRef{}, f.err
	}
	return f.refs[filePath], nil
}

type fakeSecrets struct {
	token string
	err   error
}

func (f *fakeSecrets) Resolve(ctx context.Context, secretName string) (string, error) {
	return f.token, f.err
}

const policyYAML = `
policies:
  - name: s3-public-read-prohibited
    resource: aws.s3
  - name: ec2-imdsv2-required
    resource: aws.ec2
`

func newTestSyncer(t *testing.T) (*Syncer, *memory.RuleSourceStore, *memory.RuleStore, *fakePuller, *fakeBlame) {
	t.Helper()
	sources := memory.NewRuleSourceStore()
	rules := memory.NewRuleStore()
	puller := &fakePuller{
		files: []PulledFile{
			{Path: "repo-root/policies/s3.yaml", Body: []byte(policyYAML)},
			{Path: "repo-root/version", Body: []byte("1.2.3\n")},
		},
	}
	blame := &fakeBlame{refs: map[string]BlameRef{}}
	s := New(sources, rules, &fakeSecrets{token: "tok"}, puller, blame, logging.New("syncer-test", "error", "text"))
	return s, sources, rules, puller, blame
}

func seedSource(t *testing.T, sources *memory.RuleSourceStore) rule.RuleSource {
	t.Helper()
	rs := rule.NewRuleSource("ACME", "https://github.com/acme/rules", "acme/rules", "main", "", rule.RuleSourceGitHub, "", "acme-github-token")
	require.NoError(t, sources.Create(context.Background(), rs))
	return rs
}

func TestSyncPullsDiffsAndStampsRules(t *testing.T) {
	s, sources, rules, puller, _ := newTestSyncer(t)
	rs := seedSource(t, sources)

	require.NoError(t, s.Sync(context.Background(), rs.ID))
	assert.Equal(t, 1, puller.calls)

	stored, err := rules.ListByRuleSource(context.Background(), rs.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	names := map[string]rule.Rule{}
	for _, r := range stored {
		names[r.Name] = r
	}
	s3Rule, ok := names["s3-public-read-prohibited"]
	require.True(t, ok)
	assert.Equal(t, tenant.CloudAWS, s3Rule.Cloud)
	assert.Equal(t, "aws.s3", s3Rule.ResourceType)

	updated, ok, err := sources.Get(context.Background(), rs.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rule.SyncStatusSynced, updated.LatestSync.Status)
	assert.Equal(t, "1.2.3", updated.LatestSync.Version)
}

func TestSyncRemovesRulesDroppedFromSource(t *testing.T) {
	s, sources, rules, _, _ := newTestSyncer(t)
	rs := seedSource(t, sources)

	require.NoError(t, rules.Upsert(context.Background(), rule.Rule{
		Name: "stale-rule", RuleSourceID: rs.ID, Cloud: tenant.CloudAWS,
	}))

	require.NoError(t, s.Sync(context.Background(), rs.ID))

	_, ok, err := rules.Get(context.Background(), "stale-rule", rs.ID)
	require.NoError(t, err)
	assert.False(t, ok, "rule no longer present upstream must be deleted")
}

func TestSyncMarksFailedOnPullError(t *testing.T) {
	s, sources, _, puller, _ := newTestSyncer(t)
	rs := seedSource(t, sources)
	puller.err = assert.AnError

	err := s.Sync(context.Background(), rs.ID)
	require.Error(t, err)

	updated, ok, err := sources.Get(context.Background(), rs.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, rule.SyncStatusFailed, updated.LatestSync.Status)
}

func TestSyncStampsBlameRefsWhenAvailable(t *testing.T) {
	s, sources, rules, _, blame := newTestSyncer(t)
	rs := seedSource(t, sources)
	blame.refs["repo-root/policies/s3.yaml"] = BlameRef{CommitHash: "abc123"}

	require.NoError(t, s.Sync(context.Background(), rs.ID))

	stored, err := rules.ListByRuleSource(context.Background(), rs.ID)
	require.NoError(t, err)
	for _, r := range stored {
		assert.Equal(t, "abc123", r.CommitHash)
	}
}

func TestSyncToleratesBlameFailure(t *testing.T) {
	s, sources, rules, _, blame := newTestSyncer(t)
	rs := seedSource(t, sources)
	blame.err = assert.AnError

	require.NoError(t, s.Sync(context.Background(), rs.ID))

	stored, err := rules.ListByRuleSource(context.Background(), rs.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2, "blame failures must not prevent rules from being saved")
}

func TestSyncUnknownSourceIsNotFound(t *testing.T) {
	s, _, _, _, _ := newTestSyncer(t)
	err := s.Sync(context.Background(), "missing")
	require.Error(t, err)
}

func TestLoadRulesSkipsGitlabCIFile(t *testing.T) {
	files := []PulledFile{
		{Path: "repo-root/.gitlab-ci.yml", Body: []byte("policies:\n  - name: should-not-load\n    resource: aws.s3\n")},
		{Path: "repo-root/rules/real.yaml", Body: []byte(policyYAML)},
	}
	rs := rule.NewRuleSource("ACME", "https://gitlab.com/acme/rules", "1234", "main", "", rule.RuleSourceGitLab, "", "")
	rules, _, _ := loadRules(rs, files, logging.New("loadrules-test", "error", "text"))
	for _, r := range rules {
		assert.NotEqual(t, "should-not-load", r.Name)
	}
	assert.Len(t, rules, 2)
}

func TestLoadRulesReadsVersionFiles(t *testing.T) {
	files := []PulledFile{
		{Path: "repo-root/version", Body: []byte("2.0.0")},
		{Path: "repo-root/version-custodian", Body: []byte("0.9.28")},
	}
	rs := rule.NewRuleSource("ACME", "https://github.com/acme/rules", "acme/rules", "main", "", rule.RuleSourceGitHub, "", "")
	_, version, versionCustodian := loadRules(rs, files, logging.New("loadrules-test", "error", "text"))
	assert.Equal(t, "2.0.0", version)
	assert.Equal(t, "0.9.28", versionCustodian)
}
