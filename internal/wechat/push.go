package wechat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"
)

// Push delivery is best-effort: a bounded number of attempts with
// exponential backoff, then the message is dropped with a log record.
const (
	pushMaxAttempts = 3
	pushBaseBackoff = 2 * time.Second
)

// PushGateway sends out-of-band customer-service messages to a user,
// outside the webhook request/response cycle.
type PushGateway struct {
	apiBase string
	tokens  TokenSource
	httpc   *http.Client
	backoff time.Duration
}

// PushGatewayOpts holds parameters for creating a PushGateway.
type PushGatewayOpts struct {
	Tokens     TokenSource
	APIBase    string        // defaults to the production API
	HTTPClient *http.Client  // defaults to a 10s-timeout client
	Backoff    time.Duration // base retry backoff, defaults to pushBaseBackoff
}

// NewPushGateway creates a PushGateway.
func NewPushGateway(opts PushGatewayOpts) (*PushGateway, error) {
	if opts.Tokens == nil {
		return nil, fmt.Errorf("wechat: push gateway: token source is required")
	}
	apiBase := opts.APIBase
	if apiBase == "" {
		apiBase = "https://api.weixin.qq.com"
	}
	httpc := opts.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = pushBaseBackoff
	}
	return &PushGateway{
		apiBase: apiBase,
		tokens:  opts.Tokens,
		httpc:   httpc,
		backoff: backoff,
	}, nil
}

// pushRequest is the customer-service message body.
type pushRequest struct {
	ToUser  string `json:"touser"`
	MsgType string `json:"msgtype"`
	Text    struct {
		Content string `json:"content"`
	} `json:"text"`
}

// apiResult is the generic errcode/errmsg envelope.
type apiResult struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// Push delivers text to the user, retrying transient failures with
// exponential backoff up to pushMaxAttempts. The final error is returned
// for logging; callers never retry further and never block on it.
func (g *PushGateway) Push(ctx context.Context, userID, text string) error {
	var err error
	for attempt := 1; attempt <= pushMaxAttempts; attempt++ {
		if err = g.sendOnce(ctx, userID, text); err == nil {
			return nil
		}
		if attempt == pushMaxAttempts {
			break
		}
		log.Printf("wechat: push to %s failed (attempt %d/%d): %v", userID, attempt, pushMaxAttempts, err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("wechat: push to %s: %w", userID, ctx.Err())
		case <-time.After(g.backoff << (attempt - 1)):
		}
	}
	return fmt.Errorf("wechat: push to %s: giving up after %d attempts: %w", userID, pushMaxAttempts, err)
}

// sendOnce performs a single customer-service send call.
func (g *PushGateway) sendOnce(ctx context.Context, userID, text string) error {
	token, err := g.tokens.Token(ctx)
	if err != nil {
		return err
	}

	var body pushRequest
	body.ToUser = userID
	body.MsgType = "text"
	body.Text.Content = text
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal push body: %w", err)
	}

	u := fmt.Sprintf("%s/cgi-bin/message/custom/send?access_token=%s", g.apiBase, url.QueryEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	var result apiResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode push response: %w", err)
	}
	if result.ErrCode != 0 {
		return fmt.Errorf("push rejected: errcode=%d errmsg=%q", result.ErrCode, result.ErrMsg)
	}
	return nil
}
