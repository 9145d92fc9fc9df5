package prcontroller

import (
	"context"
	"net/http"

	"github.com/google/go-github/v43/github"
	"golang.org/x/oauth2"

	"dronehub/internal/apierr"
	"dronehub/internal/config"
	"dronehub/internal/logging"
	"dronehub/internal/metrics"
)

// Controller talks to GitHub on behalf of a drone's attached repo.
type Controller struct {
	client *github.Client
	cfg    *config.Config
	log    *logging.Logger
}

// New builds a Controller authenticated with a static GitHub token, the
// same oauth2.StaticTokenSource + github.NewClient construction
// joshdk/drone-github-comment uses for its own single-token GitHub client.
func New(token string, cfg *config.Config, log *logging.Logger) *Controller {
	httpClient := oauth2.NewClient(context.Background(), oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	))
	return &Controller{client: github.NewClient(httpClient), cfg: cfg, log: log}
}

func (c *Controller) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, c.cfg.PRTimeout())
}

func (c *Controller) observe(op string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	metrics.PRControllerRequestsTotal.WithLabelValues(op, outcome).Inc()
}

// wrapGitHubErr maps a go-github error into DroneHub's error taxonomy
// (spec §7): 401/403 become auth_failure, everything else upstream_http.
func wrapGitHubErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if ghErr, ok := err.(*github.ErrorResponse); ok && ghErr.Response != nil {
		switch ghErr.Response.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			return apierr.Wrap(apierr.CodeAuthFailure, "github rejected credentials for "+op, err)
		}
	}
	return apierr.Wrap(apierr.CodeUpstreamHTTP, "github request failed for "+op, err)
}

func summaryFromPR(pr *github.PullRequest, reviewState ReviewState, checksState ChecksState) Summary {
	s := Summary{
		Number:            pr.GetNumber(),
		Title:             pr.GetTitle(),
		State:             pr.GetState(),
		Draft:             pr.GetDraft(),
		HeadSHA:           pr.GetHead().GetSHA(),
		HeadRefName:       pr.GetHead().GetRef(),
		BaseRefName:       pr.GetBase().GetRef(),
		HTMLURL:           pr.GetHTMLURL(),
		AuthorLogin:       pr.GetUser().GetLogin(),
		IsCrossRepository: crossRepository(pr),
		ReviewState:       reviewState,
		ChecksState:       checksState,
		HasMergeConflicts: pr.Mergeable != nil && !pr.GetMergeable(),
	}
	if pr.GetMergeableState() == "dirty" {
		s.HasMergeConflicts = true
	}
	return s
}

// crossRepository reports whether the PR's head branch lives in a fork
// rather than the base repo itself (spec §3 isCrossRepository).
func crossRepository(pr *github.PullRequest) bool {
	head, base := pr.GetHead().GetRepo(), pr.GetBase().GetRepo()
	if head == nil || base == nil {
		return false
	}
	return head.GetFullName() != base.GetFullName()
}

// blockedReason reports the hard-precondition / policy-gate reason a merge
// of this PR is blocked for, if any (spec §4.7 "merge" preconditions).
func blockedReason(s Summary, force bool) (code apierr.Code, blocked bool) {
	if s.HasMergeConflicts || s.Draft || s.ReviewState == ReviewChangesRequested {
		return apierr.CodeBlockedConflict, true
	}
	if !force && (s.ChecksState == ChecksPending || s.ChecksState == ChecksFailing) {
		return apierr.CodeBlockedPolicy, true
	}
	return "", false
}
