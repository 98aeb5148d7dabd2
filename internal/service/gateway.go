package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/prperemyshlev/shop-session/internal/domain"
	"github.com/prperemyshlev/shop-session/pkg/observability"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	maxResponseBody = 4 << 20
	renewalKey      = "renewal"
)

// Request describes one outbound API call. Body is JSON-encoded per attempt
// so a retried request re-sends it.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// Response is a fully buffered API response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// IsSuccess reports a 2xx status
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// APIError is the classified outcome of a failed API call. errors.Is matches
// it against its Kind sentinel.
type APIError struct {
	Kind       error
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%v (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Message)
}

func (e *APIError) Unwrap() error { return e.Kind }

// GatewayConfig locates the remote API.
type GatewayConfig struct {
	BaseURL     string
	RefreshPath string
	// ExemptPaths never trigger renewal on 401. The refresh path is always exempt.
	ExemptPaths []string
}

// Gateway attaches the access credential to every outbound call and renews
// it once on a 401. Concurrent renewals collapse into one refresh call.
type Gateway struct {
	client   *http.Client
	cfg      GatewayConfig
	exempt   map[string]struct{}
	creds    *CredentialStore
	session  *SessionManager
	refreshd *Topic[struct{}]
	renewals singleflight.Group
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewGateway creates a request gateway
func NewGateway(
	client *http.Client,
	cfg GatewayConfig,
	creds *CredentialStore,
	session *SessionManager,
	events *EventBus,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Gateway {
	exempt := map[string]struct{}{cfg.RefreshPath: {}}
	for _, p := range cfg.ExemptPaths {
		exempt[p] = struct{}{}
	}

	return &Gateway{
		client:   client,
		cfg:      cfg,
		exempt:   exempt,
		creds:    creds,
		session:  session,
		refreshd: events.CredentialRefreshed,
		metrics:  metrics,
		logger:   logger.Named("gateway"),
	}
}

// Do issues req with the current access credential. On a 401 from a
// non-exempt path it renews once and retries once; the retried response is
// returned as-is. If renewal fails the session is expired and the original
// 401 is returned. The error is non-nil only for transport failures.
func (g *Gateway) Do(ctx context.Context, req Request) (*Response, error) {
	token := g.creds.GetAccess(ctx)

	resp, err := g.send(ctx, req, token)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized || g.isExempt(req.Path) {
		return resp, nil
	}

	renewed, err := g.renewAfter(ctx, token)
	if err != nil {
		g.logger.Warn("Request unauthorized and renewal failed",
			zap.String("path", req.Path),
			zap.Error(err),
		)
		return resp, nil
	}

	return g.send(ctx, req, renewed)
}

// DoJSON issues req and decodes a successful payload into out through the
// tolerant envelope unwrapping. Failures are returned as *APIError.
func (g *Gateway) DoJSON(ctx context.Context, req Request, out any) error {
	resp, err := g.Do(ctx, req)
	if err != nil {
		return &APIError{Kind: domain.ErrTransientFailure, Message: err.Error()}
	}

	if !resp.IsSuccess() {
		return classify(resp)
	}

	if out == nil || len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}

	if err := decodeEnvelope(resp.Body, out); err != nil {
		return &APIError{Kind: domain.ErrUnknown, StatusCode: resp.StatusCode, Message: err.Error()}
	}
	return nil
}

// renewAfter returns a fresh access token. A renewal that already replaced
// the token the caller sent is reused instead of starting another.
func (g *Gateway) renewAfter(ctx context.Context, sent string) (string, error) {
	if current := g.creds.GetAccess(ctx); current != "" && current != sent {
		return current, nil
	}

	v, err, shared := g.renewals.Do(renewalKey, func() (any, error) {
		// Renewal outlives any single caller; the others are waiting on it.
		return g.renew(context.WithoutCancel(ctx))
	})
	if shared {
		g.logger.Debug("Joined in-flight renewal")
	}
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (g *Gateway) renew(ctx context.Context) (string, error) {
	refreshToken := g.creds.GetRefresh(ctx)
	if refreshToken == "" {
		g.metrics.Renewal("absent")
		g.expire(ctx)
		return "", fmt.Errorf("no refresh credential: %w", domain.ErrCredentialAbsent)
	}

	pair, err := g.requestRenewal(ctx, refreshToken)
	if err != nil {
		g.metrics.Renewal("failed")
		g.expire(ctx)
		return "", fmt.Errorf("%w: %v", domain.ErrRenewalFailed, err)
	}

	if err := g.creds.SetAccess(ctx, pair.AccessToken); err != nil {
		g.metrics.Renewal("failed")
		g.expire(ctx)
		return "", fmt.Errorf("%w: %v", domain.ErrRenewalFailed, err)
	}
	if pair.RefreshToken != "" {
		if err := g.creds.SetRefresh(ctx, pair.RefreshToken); err != nil {
			g.logger.Error("Failed to persist rotated refresh credential", zap.Error(err))
		}
	}

	g.metrics.Renewal("success")
	g.logger.Info("Credential renewed", zap.Bool("refresh_rotated", pair.RefreshToken != ""))
	g.refreshd.Publish(struct{}{})

	return pair.AccessToken, nil
}

func (g *Gateway) requestRenewal(ctx context.Context, refreshToken string) (domain.TokenPair, error) {
	resp, err := g.send(ctx, Request{
		Method: http.MethodPost,
		Path:   g.cfg.RefreshPath,
		Body:   map[string]string{"refreshToken": refreshToken},
	}, "")
	if err != nil {
		return domain.TokenPair{}, err
	}

	if !resp.IsSuccess() {
		return domain.TokenPair{}, fmt.Errorf("refresh endpoint answered %d", resp.StatusCode)
	}

	pair, ok := extractTokens(resp.Body)
	if !ok {
		return domain.TokenPair{}, errors.New("no access credential in refresh response")
	}
	return pair, nil
}

func (g *Gateway) expire(ctx context.Context) {
	if err := g.session.Expire(ctx); err != nil {
		g.logger.Error("Failed to expire session", zap.Error(err))
	}
}

func (g *Gateway) send(ctx context.Context, req Request, token string) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	target := strings.TrimSuffix(g.cfg.BaseURL, "/") + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	httpResp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read response of %s %s: %w", req.Method, req.Path, err)
	}

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	}, nil
}

func (g *Gateway) isExempt(path string) bool {
	_, ok := g.exempt[path]
	return ok
}

func classify(resp *Response) *APIError {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp)}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		apiErr.Kind = domain.ErrAuthenticationExpired
	case resp.StatusCode >= 500:
		apiErr.Kind = domain.ErrTransientFailure
	case resp.StatusCode >= 400:
		apiErr.Kind = domain.ErrValidationFailure
	default:
		apiErr.Kind = domain.ErrUnknown
	}
	return apiErr
}

// errorMessage picks a human message out of an error body.
func errorMessage(resp *Response) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(resp.Body, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return http.StatusText(resp.StatusCode)
}
