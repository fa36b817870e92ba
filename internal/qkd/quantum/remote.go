package quantum

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RemoteConfig holds connection settings for a remote execution engine
// service.
type RemoteConfig struct {
	// BaseURL of the engine API.
	BaseURL string

	// APIKey exchanged for a bearer token.
	APIKey string

	// HTTPClient may be replaced for testing; a 60s-timeout client is
	// used by default.
	HTTPClient *http.Client

	// PollInterval between job status checks. Defaults to 2s.
	PollInterval time.Duration

	// MaxWait bounds how long Execute waits for a job. Defaults to 5m.
	MaxWait time.Duration
}

// Remote engine API endpoints.
const (
	tokenEndpoint = "/api/v1/auth/token"
	jobsEndpoint  = "/api/v1/jobs"
)

// Job status values reported by the engine service.
const (
	jobStatusQueued    = "QUEUED"
	jobStatusRunning   = "RUNNING"
	jobStatusCompleted = "COMPLETED"
	jobStatusFailed    = "FAILED"
	jobStatusCancelled = "CANCELLED"
)

// RemoteEngine executes circuits on a remote simulator service over
// HTTP. Results carry ProvenanceRemote. Execute is safe for concurrent
// use; token state is guarded by mu so a mid-run refresh serializes.
type RemoteEngine struct {
	cfg RemoteConfig
	log zerolog.Logger

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewRemoteEngine creates a client for a remote execution engine and
// authenticates immediately.
func NewRemoteEngine(cfg RemoteConfig, log zerolog.Logger) (*RemoteEngine, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: no engine URL configured", ErrEngineUnavailable)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("engine API key is required")
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 5 * time.Minute
	}

	e := &RemoteEngine{
		cfg: cfg,
		log: log.With().Str("component", "remote-engine").Logger(),
	}

	if _, err := e.token(context.Background()); err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	return e, nil
}

// Name identifies the remote engine.
func (e *RemoteEngine) Name() string {
	return "remote:" + e.cfg.BaseURL
}

type jobEnvelope struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type resultEnvelope struct {
	Counts  map[string]int `json:"counts"`
	Success bool           `json:"success"`
	Status  string         `json:"status"`
}

// Execute submits the circuit, polls until completion, and fetches the
// outcome histogram. Engine failure fails the run; no retries happen
// here.
func (e *RemoteEngine) Execute(ctx context.Context, c *Circuit, opts ExecOptions) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	token, err := e.token(ctx)
	if err != nil {
		return nil, err
	}

	jobID, err := e.submit(ctx, c, opts, token)
	if err != nil {
		return nil, err
	}

	e.log.Debug().Str("job_id", jobID).Int("shots", opts.Shots).Msg("job submitted")

	if err := e.waitForJob(ctx, jobID, token); err != nil {
		return nil, err
	}

	counts, err := e.fetchResult(ctx, jobID, token)
	if err != nil {
		return nil, err
	}

	e.log.Debug().Str("job_id", jobID).Int("outcomes", len(counts)).Msg("job completed")

	return &Result{Counts: counts, Provenance: ProvenanceRemote}, nil
}

// token returns a bearer token with at least the refresh margin of
// lifetime left. The refresh happens under the lock, so concurrent
// Execute calls hitting an expired token share one authentication
// round instead of racing.
func (e *RemoteEngine) token(ctx context.Context) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if time.Now().After(e.tokenExpiry.Add(-5 * time.Minute)) {
		if err := e.authenticate(ctx); err != nil {
			return "", err
		}
	}
	return e.accessToken, nil
}

// authenticate exchanges the API key for a bearer token. Callers must
// hold e.mu.
func (e *RemoteEngine) authenticate(ctx context.Context) error {
	payload := map[string]string{"api_key": e.cfg.APIKey}

	var out struct {
		AccessToken string `json:"access_token"`
		TTL         int    `json:"ttl"`
	}
	if err := e.post(ctx, tokenEndpoint, payload, &out, ""); err != nil {
		return err
	}

	e.accessToken = out.AccessToken
	e.tokenExpiry = time.Now().Add(time.Duration(out.TTL) * time.Second)
	return nil
}

func (e *RemoteEngine) submit(ctx context.Context, c *Circuit, opts ExecOptions, token string) (string, error) {
	payload := map[string]interface{}{
		"circuit":     c,
		"shots":       opts.Shots,
		"noise_level": opts.NoiseLevel,
	}

	var job jobEnvelope
	if err := e.post(ctx, jobsEndpoint, payload, &job, token); err != nil {
		return "", fmt.Errorf("job submission failed: %w", err)
	}
	return job.ID, nil
}

func (e *RemoteEngine) waitForJob(ctx context.Context, jobID, token string) error {
	timeout := time.After(e.cfg.MaxWait)
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-timeout:
			return fmt.Errorf("job %s timed out after %v", jobID, e.cfg.MaxWait)

		case <-ticker.C:
			var job jobEnvelope
			if err := e.get(ctx, jobsEndpoint+"/"+jobID, &job, token); err != nil {
				return err
			}

			switch job.Status {
			case jobStatusCompleted:
				return nil
			case jobStatusFailed:
				return fmt.Errorf("job %s failed", jobID)
			case jobStatusCancelled:
				return fmt.Errorf("job %s was cancelled", jobID)
			case jobStatusQueued, jobStatusRunning:
				// keep polling
			}
		}
	}
}

func (e *RemoteEngine) fetchResult(ctx context.Context, jobID, token string) (map[string]int, error) {
	var result resultEnvelope
	if err := e.get(ctx, fmt.Sprintf("%s/%s/result", jobsEndpoint, jobID), &result, token); err != nil {
		return nil, fmt.Errorf("result retrieval failed: %w", err)
	}
	if len(result.Counts) == 0 {
		return nil, fmt.Errorf("job %s returned no outcomes", jobID)
	}
	return result.Counts, nil
}

func (e *RemoteEngine) post(ctx context.Context, path string, payload, out interface{}, token string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return e.do(req, out)
}

func (e *RemoteEngine) get(ctx context.Context, path string, out interface{}, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	return e.do(req, out)
}

func (e *RemoteEngine) do(req *http.Request, out interface{}) error {
	resp, err := e.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("engine request %s failed: %s (status: %d)", req.URL.Path, string(body), resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
