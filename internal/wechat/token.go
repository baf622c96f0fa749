package wechat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// tokenEarlyExpiry renews the access token this long before the platform
// says it expires, so in-flight calls never race the deadline.
const tokenEarlyExpiry = 200 * time.Second

// TokenSource supplies a bearer token valid for a bounded window.
// Refresh is the source's responsibility; callers just ask.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// AccessTokenSource fetches and caches the Official Account access token
// from cgi-bin/token. Safe for concurrent use.
type AccessTokenSource struct {
	appID     string
	appSecret string
	apiBase   string
	httpc     *http.Client

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// TokenSourceOpts holds parameters for creating an AccessTokenSource.
type TokenSourceOpts struct {
	AppID      string
	AppSecret  string
	APIBase    string       // defaults to the production API
	HTTPClient *http.Client // defaults to a 10s-timeout client
}

// NewAccessTokenSource creates an AccessTokenSource.
func NewAccessTokenSource(opts TokenSourceOpts) (*AccessTokenSource, error) {
	if opts.AppID == "" || opts.AppSecret == "" {
		return nil, fmt.Errorf("wechat: token source: app id and secret are required")
	}
	apiBase := opts.APIBase
	if apiBase == "" {
		apiBase = "https://api.weixin.qq.com"
	}
	httpc := opts.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	return &AccessTokenSource{
		appID:     opts.AppID,
		appSecret: opts.AppSecret,
		apiBase:   apiBase,
		httpc:     httpc,
	}, nil
}

// tokenResponse is the cgi-bin/token reply. ErrCode is zero on success.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	ErrCode     int    `json:"errcode"`
	ErrMsg      string `json:"errmsg"`
}

// Token returns a valid access token, refreshing it when the cached one
// is near expiry.
func (s *AccessTokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.expiresAt) {
		return s.token, nil
	}

	u := fmt.Sprintf("%s/cgi-bin/token?grant_type=client_credential&appid=%s&secret=%s",
		s.apiBase, url.QueryEscape(s.appID), url.QueryEscape(s.appSecret))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("wechat: token request: %w", err)
	}
	resp, err := s.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("wechat: fetch token: %w", err)
	}
	defer resp.Body.Close()

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("wechat: decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("wechat: fetch token: errcode=%d errmsg=%q", tr.ErrCode, tr.ErrMsg)
	}

	s.token = tr.AccessToken
	s.expiresAt = time.Now().Add(time.Duration(tr.ExpiresIn)*time.Second - tokenEarlyExpiry)
	return s.token, nil
}
