package rulesourcesyncer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/epam/rule-engine/internal/domain/rule"
)

// TarballPuller downloads a RuleSource's archive over plain HTTP(S) and
// unpacks it, grounded on GitLabClient.clone_project / GitHubClient.clone_project
// and the GITHUB_RELEASE lookup-then-download path in git_service_clients.py.
type TarballPuller struct {
	// GitLabBaseURL / GitHubBaseURL default to the public hosts; overridable
	// for self-hosted GitLab instances or GitHub Enterprise.
	GitLabBaseURL string
	GitHubBaseURL string
	HTTPClient    *http.Client
}

func NewTarballPuller() *TarballPuller {
	return &TarballPuller{
		GitLabBaseURL: "https://gitlab.com",
		GitHubBaseURL: "https://api.github.com",
		HTTPClient:    &http.Client{Timeout: 2 * time.Minute},
	}
}

func (p *TarballPuller) client() *http.Client {
	if p.HTTPClient != nil {
		return p.HTTPClient
	}
	return http.DefaultClient
}

// Pull implements Puller for all three RuleSourceType variants.
func (p *TarballPuller) Pull(ctx context.Context, rs rule.RuleSource, token string) ([]PulledFile, string, error) {
	switch rs.Type {
	case rule.RuleSourceGitLab:
		body, err := p.pullGitLab(ctx, rs, token)
		if err != nil {
			return nil, "", err
		}
		files, err := extractTarball(bytes.NewReader(body))
		return files, "", err
	case rule.RuleSourceGitHub:
		body, err := p.pullGitHubTarball(ctx, rs, token, rs.Ref)
		if err != nil {
			return nil, "", err
		}
		files, err := extractTarball(bytes.NewReader(body))
		return files, "", err
	case rule.RuleSourceGitHubRelease:
		tag, tarballURL, err := p.latestGitHubRelease(ctx, rs, token)
		if err != nil {
			return nil, "", err
		}
		body, _, err := httpBody(ctx, p.client(), http.MethodGet, tarballURL, githubHeaders(token))
		if err != nil {
			return nil, "", err
		}
		files, err := extractTarball(bytes.NewReader(body))
		return files, tag, err
	default:
		return nil, "", fmt.Errorf("rulesourcesyncer: unsupported rule source type %q", rs.Type)
	}
}

// pullGitLab fetches GET /api/v4/projects/:id/repository/archive, optionally
// pinned to sha=ref, authenticating via the PRIVATE-TOKEN header when a
// token is present.
func (p *TarballPuller) pullGitLab(ctx context.Context, rs rule.RuleSource, token string) ([]byte, error) {
	base := p.GitLabBaseURL
	u := fmt.Sprintf("%s/api/v4/projects/%s/repository/archive", strings.TrimRight(base, "/"), url.PathEscape(rs.ProjectID))
	if rs.Ref != "" {
		u += "?sha=" + url.QueryEscape(rs.Ref)
	}
	headers := map[string]string{}
	if token != "" {
		headers["PRIVATE-TOKEN"] = token
	}
	body, _, err := httpBody(ctx, p.client(), http.MethodGet, u, headers)
	return body, err
}

// pullGitHubTarball fetches GET /repos/:project/tarball[/:ref].
func (p *TarballPuller) pullGitHubTarball(ctx context.Context, rs rule.RuleSource, token, ref string) ([]byte, error) {
	u := fmt.Sprintf("%s/repos/%s/tarball", strings.TrimRight(p.GitHubBaseURL, "/"), rs.ProjectID)
	if ref != "" {
		u += "/" + url.PathEscape(ref)
	}
	body, _, err := httpBody(ctx, p.client(), http.MethodGet, u, githubHeaders(token))
	return body, err
}

type githubRelease struct {
	TagName    string `json:"tag_name"`
	TarballURL string `json:"tarball_url"`
}

// latestGitHubRelease resolves /repos/:project/releases/latest and returns
// its tag and tarball URL, the two-step lookup GITHUB_RELEASE sources need
// before a tarball can be downloaded.
func (p *TarballPuller) latestGitHubRelease(ctx context.Context, rs rule.RuleSource, token string) (tag, tarballURL string, err error) {
	u := fmt.Sprintf("%s/repos/%s/releases/latest", strings.TrimRight(p.GitHubBaseURL, "/"), rs.ProjectID)
	body, _, err := httpBody(ctx, p.client(), http.MethodGet, u, githubHeaders(token))
	if err != nil {
		return "", "", err
	}
	var rel githubRelease
	if err := json.Unmarshal(body, &rel); err != nil {
		return "", "", fmt.Errorf("rulesourcesyncer: decoding github release: %w", err)
	}
	return rel.TagName, rel.TarballURL, nil
}

func githubHeaders(token string) map[string]string {
	h := map[string]string{"Accept": "application/vnd.github+json"}
	if token != "" {
		h["Authorization"] = "Bearer " + token
	}
	return h
}

// GitHubBlameClient resolves a file's last-touching commit via GitHub's
// GraphQL API, grounded on GIT_BLAME_QUERY / most_reset_blame in
// git_service_clients.py. Blame is only queryable with a token: an
// unauthenticated request is rejected upstream, so Blame returns an error
// when no token is available rather than attempting the call.
type GitHubBlameClient struct {
	BaseURL    string // defaults to https://api.github.com/graphql
	HTTPClient *http.Client
}

func NewGitHubBlameClient() *GitHubBlameClient {
	return &GitHubBlameClient{BaseURL: "https://api.github.com/graphql", HTTPClient: &http.Client{Timeout: 30 * time.Second}}
}

const githubBlameQuery = `query($owner:String!,$name:String!,$ref:String!,$path:String!){
  repository(owner:$owner,name:$name){
    object(expression:$ref){
      ... on Commit{
        blame(path:$path){
          ranges{ age commit{ oid committedDate } }
        }
      }
    }
  }
}`

type githubGraphQLRequest struct {
	Query     string            `json:"query"`
	Variables map[string]string `json:"variables"`
}

type githubBlameResponse struct {
	Data struct {
		Repository struct {
			Object struct {
				Blame struct {
					Ranges []struct {
						Age    int `json:"age"`
						Commit struct {
							OID           string `json:"oid"`
							CommittedDate string `json:"committedDate"`
						} `json:"commit"`
					} `json:"ranges"`
				} `json:"blame"`
			} `json:"object"`
		} `json:"repository"`
	} `json:"data"`
}

func (c *GitHubBlameClient) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *GitHubBlameClient) Blame(ctx context.Context, rs rule.RuleSource, token, filePath string) (BlameRef, error) {
	if token == "" {
		return BlameRef{}, fmt.Errorf("rulesourcesyncer: github blame requires an authentication token")
	}
	owner, name, ok := strings.Cut(rs.ProjectID, "/")
	if !ok {
		return BlameRef{}, fmt.Errorf("rulesourcesyncer: github project id %q is not owner/name", rs.ProjectID)
	}
	ref := rs.Ref
	if ref == "" {
		ref = "HEAD"
	}

	reqBody, err := json.Marshal(githubGraphQLRequest{
		Query: githubBlameQuery,
		Variables: map[string]string{
			"owner": owner, "name": name, "ref": ref, "path": filePath,
		},
	})
	if err != nil {
		return BlameRef{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL(), strings.NewReader(string(reqBody)))
	if err != nil {
		return BlameRef{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client().Do(req)
	if err != nil {
		return BlameRef{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return BlameRef{}, fmt.Errorf("rulesourcesyncer: github graphql blame: status %d", resp.StatusCode)
	}

	var parsed githubBlameResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return BlameRef{}, fmt.Errorf("rulesourcesyncer: decoding github blame response: %w", err)
	}

	ranges := parsed.Data.Repository.Object.Blame.Ranges
	if len(ranges) == 0 {
		return BlameRef{}, fmt.Errorf("rulesourcesyncer: no blame ranges for %s", filePath)
	}

	// most_reset_blame: the range with the smallest age is the most recent
	// commit to touch the file; a missing age is treated as old.
	best := ranges[0]
	bestAge := best.Age
	for _, r := range ranges[1:] {
		if r.Age < bestAge {
			best, bestAge = r, r.Age
		}
	}

	ref2 := BlameRef{CommitHash: best.Commit.OID}
	if ts, err := time.Parse(time.RFC3339, best.Commit.CommittedDate); err == nil {
		ref2.UpdatedAt = ts
	}
	return ref2, nil
}

func (c *GitHubBlameClient) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return "https://api.github.com/graphql"
}

// GitLabBlameClient resolves a file's last commit via GitLab's file-metadata
// endpoint, grounded on GitLabClient.get_file_meta in git_service_clients.py.
// The endpoint carries no commit timestamp, so the returned BlameRef never
// has UpdatedAt set.
type GitLabBlameClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewGitLabBlameClient() *GitLabBlameClient {
	return &GitLabBlameClient{BaseURL: "https://gitlab.com", HTTPClient: &http.Client{Timeout: 30 * time.Second}}
}

func (c *GitLabBlameClient) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *GitLabBlameClient) Blame(ctx context.Context, rs rule.RuleSource, token, filePath string) (BlameRef, error) {
	base := c.BaseURL
	if base == "" {
		base = "https://gitlab.com"
	}
	u := fmt.Sprintf("%s/api/v4/projects/%s/repository/files/%s", strings.TrimRight(base, "/"), url.PathEscape(rs.ProjectID), url.PathEscape(filePath))
	if rs.Ref != "" {
		u += "?ref=" + url.QueryEscape(rs.Ref)
	}

	headers := map[string]string{}
	if token != "" {
		headers["PRIVATE-TOKEN"] = token
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	if err != nil {
		return BlameRef{}, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := c.client().Do(req)
	if err != nil {
		return BlameRef{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return BlameRef{}, fmt.Errorf("rulesourcesyncer: gitlab file meta: status %d", resp.StatusCode)
	}

	commit := resp.Header.Get("X-Gitlab-Last-Commit-Id")
	if commit == "" {
		return BlameRef{}, fmt.Errorf("rulesourcesyncer: gitlab response missing X-Gitlab-Last-Commit-Id")
	}
	return BlameRef{CommitHash: commit}, nil
}

// DispatchingBlameClient routes a blame query to the GitHub or GitLab client
// by the RuleSource's Type, the single BlameClient a Syncer needs regardless
// of which hosts its RuleSources use.
type DispatchingBlameClient struct {
	GitHub *GitHubBlameClient
	GitLab *GitLabBlameClient
}

func NewDispatchingBlameClient() *DispatchingBlameClient {
	return &DispatchingBlameClient{GitHub: NewGitHubBlameClient(), GitLab: NewGitLabBlameClient()}
}

func (d *DispatchingBlameClient) Blame(ctx context.Context, rs rule.RuleSource, token, filePath string) (BlameRef, error) {
	switch rs.Type {
	case rule.RuleSourceGitLab:
		return d.GitLab.Blame(ctx, rs, token, filePath)
	case rule.RuleSourceGitHub, rule.RuleSourceGitHubRelease:
		return d.GitHub.Blame(ctx, rs, token, filePath)
	default:
		return BlameRef{}, fmt.Errorf("rulesourcesyncer: unsupported rule source type %q", rs.Type)
	}
}
