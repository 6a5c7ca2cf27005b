package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"callsync_agent/platform/apperr"
	"callsync_agent/platform/config"
	"callsync_agent/platform/logger"

	"golang.org/x/time/rate"
)

// Client is the HTTP client for the CRM backend. It owns the bearer token,
// paces outgoing requests, and enforces a process-wide cooldown window after
// the backend answers 429: requests during the window fail fast with a
// synthetic local error instead of reaching the network.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	cooldown   time.Duration
	email      string
	password   string
	log        *logger.Logger
	now        func() time.Time

	mu            sync.Mutex
	token         string
	selfID        string
	cooldownUntil time.Time
}

// NewClient creates a CRM client from configuration.
func NewClient(cfg config.CRMConfig, log *logger.Logger) *Client {
	rps := cfg.GetCRMRequestsPerSecond()
	if rps <= 0 {
		rps = 5
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.GetCRMBaseURL(), "/"),
		httpClient: &http.Client{Timeout: cfg.GetCRMRequestTimeout()},
		limiter:    rate.NewLimiter(rate.Limit(rps), int(rps)+1),
		cooldown:   cfg.GetCRMCooldown(),
		email:      cfg.GetCRMEmail(),
		password:   cfg.GetCRMPassword(),
		log:        log,
		now:        time.Now,
	}
}

// Login authenticates against the backend and stores the access token.
func (c *Client) Login(ctx context.Context) error {
	payload := map[string]string{"email": c.email, "password": c.password}

	var resp struct {
		Success     bool   `json:"success"`
		AccessToken string `json:"accessToken"`
		Message     string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, payload, &resp, false); err != nil {
		return err
	}
	if resp.AccessToken == "" {
		return apperr.Unauthorized("login rejected: " + resp.Message).WithOp("crm.login")
	}

	c.mu.Lock()
	c.token = resp.AccessToken
	c.mu.Unlock()
	return nil
}

// CurrentProfile fetches the acting salesperson's profile and remembers the
// user id for ownership checks.
func (c *Client) CurrentProfile(ctx context.Context) (Profile, error) {
	var resp struct {
		ID      string `json:"id"`
		MongoID string `json:"_id"`
		Name    string `json:"name"`
		Email   string `json:"email"`
	}
	if err := c.do(ctx, http.MethodGet, "/users/current/profile", nil, nil, &resp, true); err != nil {
		return Profile{}, err
	}

	profile := Profile{ID: resp.ID, Name: resp.Name, Email: resp.Email}
	if profile.ID == "" {
		profile.ID = resp.MongoID
	}

	c.mu.Lock()
	c.selfID = profile.ID
	c.mu.Unlock()
	return profile, nil
}

// SelfID returns the authenticated user's id, or "" before CurrentProfile.
func (c *Client) SelfID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selfID
}

// Health checks backend availability.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil, false)
}

// AssignedLeads fetches one page of the acting user's leads.
func (c *Client) AssignedLeads(ctx context.Context, page, limit int) ([]Lead, error) {
	params := url.Values{}
	params.Set("page", fmt.Sprint(page))
	params.Set("limit", fmt.Sprint(limit))

	var resp struct {
		Success bool      `json:"success"`
		Data    []apiLead `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/leads/assigned", params, nil, &resp, true); err != nil {
		return nil, err
	}

	leads := make([]Lead, 0, len(resp.Data))
	for _, api := range resp.Data {
		leads = append(leads, api.toLead())
	}
	return leads, nil
}

// CheckPhoneExists asks the backend whether any lead carries the number.
func (c *Client) CheckPhoneExists(ctx context.Context, phone string) (ExistsResult, error) {
	params := url.Values{}
	params.Set("phone", phone)

	var resp struct {
		Lead *apiLead `json:"lead"`
	}
	if err := c.do(ctx, http.MethodGet, "/leads/checkandgive", params, nil, &resp, true); err != nil {
		return ExistsResult{}, err
	}

	if resp.Lead == nil {
		return ExistsResult{}, nil
	}

	lead := resp.Lead.toLead()
	return ExistsResult{
		Found:     true,
		LeadID:    lead.ID,
		LeadName:  lead.Name,
		OwnerID:   lead.Owner.ID,
		OwnerName: lead.Owner.Name,
	}, nil
}

// CheckAssignment asks the backend who may work the number's lead.
func (c *Client) CheckAssignment(ctx context.Context, phone string) (AssignmentResult, error) {
	params := url.Values{}
	params.Set("phone", phone)

	var resp struct {
		NotExist   bool   `json:"notexist"`
		AssignSelf bool   `json:"assignself"`
		AssignedTo *Owner `json:"assignedTo"`
	}
	if err := c.do(ctx, http.MethodGet, "/leads/check-phone", params, nil, &resp, true); err != nil {
		return AssignmentResult{}, err
	}

	switch {
	case resp.NotExist:
		return AssignmentResult{State: AssignmentNotExist}, nil
	case resp.AssignSelf:
		result := AssignmentResult{State: AssignmentAssignable}
		if resp.AssignedTo != nil {
			result.AssignedToOther = true
			result.OwnerID = resp.AssignedTo.ID
			result.OwnerName = resp.AssignedTo.Name
		}
		return result, nil
	default:
		return AssignmentResult{State: AssignmentMine, OwnerID: c.SelfID()}, nil
	}
}

// AssignSelf claims the lead for the acting user.
func (c *Client) AssignSelf(ctx context.Context, leadID, phone string) error {
	payload := map[string]string{"leadId": leadID, "phone": phone}
	return c.do(ctx, http.MethodPost, "/leads/assign-self", nil, payload, nil, true)
}

// PostCallRecord submits one finished call to the backend.
func (c *Client) PostCallRecord(ctx context.Context, record CallRecord) error {
	return c.do(ctx, http.MethodPost, "/calls", nil, record, nil, true)
}

func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any, authed bool) error {
	op := "crm." + strings.Trim(path, "/")

	c.mu.Lock()
	until := c.cooldownUntil
	c.mu.Unlock()
	if remaining := until.Sub(c.now()); remaining > 0 {
		return apperr.RateLimited(fmt.Sprintf("backend cooldown, %s remaining", remaining.Round(time.Second))).WithOp(op)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "request cancelled", err).WithOp(op)
	}

	status, err := c.roundTrip(ctx, method, path, params, body, out, authed)
	if status == http.StatusUnauthorized && authed {
		// The session expired; re-login once and retry.
		if loginErr := c.Login(ctx); loginErr != nil {
			return loginErr
		}
		status, err = c.roundTrip(ctx, method, path, params, body, out, authed)
	}
	if err != nil {
		if appErr, ok := err.(*apperr.Error); ok {
			return appErr.WithOp(op)
		}
		return err
	}
	_ = status
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, params url.Values, body, out any, authed bool) (int, error) {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, apperr.Wrap(apperr.KindInternal, "marshal request", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindInternal, "create request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		c.mu.Lock()
		token := c.token
		c.mu.Unlock()
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindUnavailable, "backend unreachable", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		c.mu.Lock()
		c.cooldownUntil = c.now().Add(c.cooldown)
		c.mu.Unlock()
		c.log.Warn("crm rate limited, entering cooldown", "cooldown", c.cooldown.String())
		return resp.StatusCode, apperr.RateLimited("backend rate limited")
	case resp.StatusCode == http.StatusUnauthorized:
		return resp.StatusCode, apperr.Unauthorized("session expired")
	case resp.StatusCode == http.StatusNotFound:
		return resp.StatusCode, apperr.NotFound("not found")
	case resp.StatusCode >= http.StatusBadRequest:
		data, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, apperr.New(apperr.KindBadRequest,
			fmt.Sprintf("backend returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, apperr.Wrap(apperr.KindInternal, "decode response", err)
		}
	}
	return resp.StatusCode, nil
}
