package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"github.com/qepting91/reelfeed/internal/domain"
)

// APIClient talks to the platform's REST backend. It is a feed source, a
// pinned-post source and a view reporter.
type APIClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
	token      string
	userAgent  string
	pageSize   int
	sessionID  string
	viewerID   string
}

type pageResponse struct {
	Posts   []domain.Post `json:"posts"`
	Page    int           `json:"page"`
	HasMore bool          `json:"has_more"`
}

func NewAPIClient(baseURL, token, userAgent string, pageSize int) (*APIClient, error) {
	if _, err := url.Parse(baseURL); err != nil || baseURL == "" {
		return nil, fmt.Errorf("invalid feed api url %q", baseURL)
	}
	ac := &APIClient{
		httpClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		// ~5 req/s with short bursts for view reports
		limiter:   rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		token:     token,
		userAgent: userAgent,
		pageSize:  pageSize,
		sessionID: uuid.NewString(),
	}
	if token != "" {
		ac.viewerID = viewerFromToken(token)
	}
	return ac, nil
}

// viewerFromToken reads the subject of the bearer token without verifying
// it; the server does that. Expired tokens are only logged.
func viewerFromToken(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		slog.Warn("bearer token is not a JWT", "err", err)
		return ""
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil && exp.Before(time.Now()) {
		slog.Warn("bearer token expired", "exp", exp.Time)
	}
	sub, _ := claims.GetSubject()
	return sub
}

func (ac *APIClient) SessionID() string { return ac.sessionID }
func (ac *APIClient) ViewerID() string  { return ac.viewerID }

func (ac *APIClient) FetchPage(ctx context.Context, page int) (domain.Page, error) {
	var resp pageResponse
	u := fmt.Sprintf("%s/feed?page=%d&limit=%d", ac.baseURL, page, ac.pageSize)
	if err := ac.do(ctx, http.MethodGet, u, nil, &resp); err != nil {
		return domain.Page{}, fmt.Errorf("feed page: %w", err)
	}
	if resp.Page == 0 {
		resp.Page = page
	}
	return domain.Page{Posts: resp.Posts, Number: resp.Page, HasMore: resp.HasMore}, nil
}

func (ac *APIClient) FetchPinned(ctx context.Context) ([]domain.Post, error) {
	var resp struct {
		Posts []domain.Post `json:"posts"`
	}
	if err := ac.do(ctx, http.MethodGet, ac.baseURL+"/feed/pinned", nil, &resp); err != nil {
		return nil, fmt.Errorf("pinned posts: %w", err)
	}
	return resp.Posts, nil
}

func (ac *APIClient) ReportView(ctx context.Context, postID string) error {
	u := fmt.Sprintf("%s/posts/%s/views", ac.baseURL, url.PathEscape(postID))
	if err := ac.do(ctx, http.MethodPost, u, ac.viewBody(nil), nil); err != nil {
		return fmt.Errorf("report view: %w", err)
	}
	return nil
}

func (ac *APIClient) ReportViews(ctx context.Context, postIDs []string) error {
	if err := ac.do(ctx, http.MethodPost, ac.baseURL+"/posts/views", ac.viewBody(postIDs), nil); err != nil {
		return fmt.Errorf("report views: %w", err)
	}
	return nil
}

func (ac *APIClient) viewBody(postIDs []string) map[string]any {
	body := map[string]any{"source": "scroll"}
	if postIDs != nil {
		body["post_ids"] = postIDs
	}
	if ac.viewerID != "" {
		body["viewer_id"] = ac.viewerID
	}
	return body
}

func (ac *APIClient) do(ctx context.Context, method, u string, in, out any) error {
	if err := ac.limiter.Wait(ctx); err != nil {
		return err
	}

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", ac.userAgent)
	req.Header.Set("X-Client-Session", ac.sessionID)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if ac.token != "" {
		req.Header.Set("Authorization", "Bearer "+ac.token)
	}

	resp, err := ac.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", domain.ErrRetryable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError("feed api", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// statusError marks 5xx and 429 as retryable.
func statusError(what string, code int) error {
	if code >= 500 || code == http.StatusTooManyRequests {
		return fmt.Errorf("%s status %d: %w", what, code, domain.ErrRetryable)
	}
	return fmt.Errorf("%s status %d", what, code)
}
