// pkg/verify/verify.go
package verify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"

	"go.uber.org/zap"

	"github.com/kepler-ops/contributor-redact/pkg/config"
	"github.com/kepler-ops/contributor-redact/pkg/model"
)

// taskLocatorPattern extracts the job id and embedded shared secret
// from a task URL handed out by the distribution service
var taskLocatorPattern = regexp.MustCompile(`tasks/(?P<jobId>[\w-]+)\?secret=(?P<secret>[\w-]+)`)

// TaskLocator identifies one unit of work plus its access secret
type TaskLocator struct {
	JobID  string
	Secret string
}

// ParseTaskLocator extracts a locator from a task URL
func ParseTaskLocator(taskURL string) (TaskLocator, error) {
	match := taskLocatorPattern.FindStringSubmatch(taskURL)
	if match == nil {
		return TaskLocator{}, fmt.Errorf("task URL does not match the expected form: %s", taskURL)
	}
	return TaskLocator{JobID: match[1], Secret: match[2]}, nil
}

// AccessState classifies a point-in-time verification result
type AccessState int

const (
	// AccessRevoked means the API rejected the contributor
	AccessRevoked AccessState = iota
	// AccessActive means the API still serves the contributor
	AccessActive
	// AccessUnknown means the check itself could not complete
	AccessUnknown
)

// String returns a string representation of the access state
func (s AccessState) String() string {
	switch s {
	case AccessRevoked:
		return "Revoked"
	case AccessActive:
		return "Active"
	default:
		return "Unknown"
	}
}

// Judgment is one answer submitted through the commit endpoint
type Judgment struct {
	UnitID string `json:"unitId"`
	JobID  string `json:"jobId"`
	Value  string `json:"value"`
}

// Checker issues authenticated fetch/commit calls against the internal
// distribution APIs to observe whether a contributor retains access
type Checker struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewChecker creates a verification checker
func NewChecker(cfg *config.VerificationConfig) *Checker {
	return &Checker{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  zap.L().Named("verify"),
	}
}

// FetchWork calls the fetch endpoint as the contributor and classifies
// the response
func (c *Checker) FetchWork(ctx context.Context, loc TaskLocator, workerID string) (AccessState, error) {
	endpoint := fmt.Sprintf("%s/dist/internal/fetch?jobId=%s&workerId=%s&pageNum=1&secret=%s",
		c.baseURL,
		url.QueryEscape(loc.JobID),
		url.QueryEscape(workerID),
		url.QueryEscape(loc.Secret))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return AccessUnknown, err
	}

	return c.classify(req, "fetch", workerID)
}

// CommitJudgment posts a judgment batch as the contributor and
// classifies the response
func (c *Checker) CommitJudgment(ctx context.Context, loc TaskLocator, workerID string, judgments []Judgment) (AccessState, error) {
	payload, err := json.Marshal(judgments)
	if err != nil {
		return AccessUnknown, err
	}

	endpoint := fmt.Sprintf("%s/dist/internal/commit?workerId=%s&secret=%s",
		c.baseURL,
		url.QueryEscape(workerID),
		url.QueryEscape(loc.Secret))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return AccessUnknown, err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.classify(req, "commit", workerID)
}

// Verify runs the post-masking access check. A contributor who still
// gets work back is surfaced as a warning, never as a run failure;
// this is a point-in-time signal, not a guarantee.
func (c *Checker) Verify(ctx context.Context, contributor model.Contributor, taskURL string, commit bool) model.PhaseOutcome {
	outcome := model.NewPhaseOutcome(model.PhaseVerify)

	loc, err := ParseTaskLocator(taskURL)
	if err != nil {
		outcome.AddError("locator", err)
		return outcome.WithStatus(model.StatusFailed)
	}

	state, err := c.FetchWork(ctx, loc, contributor.ID)
	if err != nil {
		outcome.AddError("fetch", err)
		return outcome.WithStatus(model.StatusUnknown)
	}
	outcome.AddNote("fetch access: %s", state)
	if state == AccessActive {
		c.logger.Warn("Contributor can still fetch work after masking",
			zap.String("contributor_id", contributor.ID),
			zap.String("job_id", loc.JobID))
	}

	if commit {
		commitState, err := c.CommitJudgment(ctx, loc, contributor.ID, []Judgment{
			{UnitID: "verification", JobID: loc.JobID, Value: "verification"},
		})
		if err != nil {
			outcome.AddError("commit", err)
			return outcome
		}
		outcome.AddNote("commit access: %s", commitState)
		if commitState == AccessActive {
			state = AccessActive
		}
	}

	outcome.Matched = 1
	if state == AccessActive {
		outcome.AddNote("WARNING: contributor still has access")
	}
	return outcome
}

func (c *Checker) classify(req *http.Request, endpoint, workerID string) (AccessState, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return AccessUnknown, fmt.Errorf("%s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	state := AccessRevoked
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		state = AccessActive
	}

	c.logger.Info("Verification call complete",
		zap.String("endpoint", endpoint),
		zap.String("worker_id", workerID),
		zap.Int("status_code", resp.StatusCode),
		zap.String("access", state.String()))

	return state, nil
}
