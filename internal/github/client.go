// Package github is a minimal client for the directory and collaborator
// endpoints of the GitHub REST API. It exposes only what provisioning needs:
// account resolution, collaborator permission lookup, and repository
// invitations. Request/response shapes beyond that are GitHub's contract,
// not this service's.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"shipmode-access/internal/common/errors"
	"shipmode-access/internal/common/httpx"
	"shipmode-access/internal/common/logging"
)

const acceptHeader = "application/vnd.github.v3+json"

// Account identifies a resolved GitHub account.
type Account struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
}

// InvitationResult carries the upstream response to an invitation request
// for the caller to interpret. Detail is the upstream body, safe to log but
// not to echo to clients.
type InvitationResult struct {
	StatusCode int
	Detail     string
}

// Client talks to the GitHub API for a single protected repository.
type Client struct {
	http    *httpx.Client
	baseURL string
	org     string
	repo    string
	logger  logging.Logger
}

// NewClient creates a client for the given repository. baseURL is normally
// https://api.github.com and overridable for tests.
func NewClient(httpClient *httpx.Client, baseURL, org, repo string, logger logging.Logger) *Client {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		org:     org,
		repo:    repo,
		logger:  logger,
	}
}

// Resolve looks up the account behind a public identifier. Identifiers
// containing "@" are treated as emails and resolved through user search;
// anything else is a direct handle lookup. A missing account is reported as
// a not_found error, an expected outcome the caller maps to its own
// unresolved state.
func (c *Client) Resolve(ctx context.Context, identifier string) (*Account, error) {
	if strings.Contains(identifier, "@") {
		return c.searchByEmail(ctx, identifier)
	}
	return c.lookupUser(ctx, identifier)
}

func (c *Client) lookupUser(ctx context.Context, handle string) (*Account, error) {
	u := fmt.Sprintf("%s/users/%s", c.baseURL, url.PathEscape(handle))

	resp, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var account Account
		if err := json.Unmarshal(resp.Body, &account); err != nil {
			return nil, errors.UpstreamError("failed to decode user response", err)
		}
		return &account, nil

	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.NotFoundError("github account")

	default:
		return nil, upstreamStatus("user lookup", resp)
	}
}

// searchByEmail returns the first match in GitHub's own relevance order.
// When several accounts share an email the first one wins; the ordering is
// GitHub's and is deliberately not re-sorted here.
func (c *Client) searchByEmail(ctx context.Context, email string) (*Account, error) {
	u := fmt.Sprintf("%s/search/users?q=%s+in:email", c.baseURL, url.QueryEscape(email))

	resp, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, upstreamStatus("user search", resp)
	}

	var result struct {
		TotalCount int       `json:"total_count"`
		Items      []Account `json:"items"`
	}
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, errors.UpstreamError("failed to decode search response", err)
	}

	if result.TotalCount == 0 || len(result.Items) == 0 {
		return nil, errors.NotFoundError("github account")
	}

	return &result.Items[0], nil
}

// CollaboratorPermission returns the permission level the account currently
// holds on the repository and whether it is a collaborator at all.
func (c *Client) CollaboratorPermission(ctx context.Context, login string) (string, bool, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/collaborators/%s/permission",
		c.baseURL, url.PathEscape(c.org), url.PathEscape(c.repo), url.PathEscape(login))

	resp, err := c.get(ctx, u)
	if err != nil {
		return "", false, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var result struct {
			Permission string `json:"permission"`
		}
		if err := json.Unmarshal(resp.Body, &result); err != nil {
			return "", false, errors.UpstreamError("failed to decode permission response", err)
		}
		if result.Permission == "" || result.Permission == "none" {
			return "", false, nil
		}
		return result.Permission, true, nil

	case resp.StatusCode == http.StatusNotFound:
		return "", false, nil

	default:
		return "", false, upstreamStatus("permission lookup", resp)
	}
}

// CreateInvitation asks GitHub to invite the account to the repository at
// the given permission ("pull", "push", or "admin"). The raw upstream status
// comes back in the result; interpreting it is the provisioning layer's job.
func (c *Client) CreateInvitation(ctx context.Context, inviteeID int64, permission string) (*InvitationResult, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/invitations",
		c.baseURL, url.PathEscape(c.org), url.PathEscape(c.repo))

	payload, err := json.Marshal(map[string]interface{}{
		"invitee_id": inviteeID,
		"permission": permission,
	})
	if err != nil {
		return nil, errors.InternalError("failed to encode invitation request", err)
	}

	resp, err := c.http.Do(ctx, http.MethodPost, u, payload, map[string]string{
		"Accept":       acceptHeader,
		"Content-Type": "application/json",
	})
	if err != nil {
		return nil, err
	}

	return &InvitationResult{
		StatusCode: resp.StatusCode,
		Detail:     string(resp.Body),
	}, nil
}

func (c *Client) get(ctx context.Context, u string) (*httpx.Response, error) {
	return c.http.Do(ctx, http.MethodGet, u, nil, map[string]string{
		"Accept": acceptHeader,
	})
}

func upstreamStatus(operation string, resp *httpx.Response) *errors.AppError {
	// Upstream bodies are logged by the caller, never echoed to clients.
	return errors.UpstreamError(fmt.Sprintf("%s failed", operation), nil).
		WithContext("status", resp.StatusCode).
		WithContext("body", string(resp.Body))
}
