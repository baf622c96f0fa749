package wechat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// MediaUploader publishes a local file as WeChat temporary material so it
// can be attached to a conversation. Returns the platform media_id.
type MediaUploader struct {
	apiBase string
	tokens  TokenSource
	httpc   *http.Client
}

// MediaUploaderOpts holds parameters for creating a MediaUploader.
type MediaUploaderOpts struct {
	Tokens     TokenSource
	APIBase    string       // defaults to the production API
	HTTPClient *http.Client // defaults to a 30s-timeout client
}

// NewMediaUploader creates a MediaUploader.
func NewMediaUploader(opts MediaUploaderOpts) (*MediaUploader, error) {
	if opts.Tokens == nil {
		return nil, fmt.Errorf("wechat: media uploader: token source is required")
	}
	apiBase := opts.APIBase
	if apiBase == "" {
		apiBase = "https://api.weixin.qq.com"
	}
	httpc := opts.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	return &MediaUploader{apiBase: apiBase, tokens: opts.Tokens, httpc: httpc}, nil
}

// uploadResponse is the media/upload reply.
type uploadResponse struct {
	MediaID string `json:"media_id"`
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// Upload posts the file as temporary material of type "file".
func (m *MediaUploader) Upload(ctx context.Context, filePath string) (string, error) {
	token, err := m.tokens.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("wechat: upload %s: %w", filePath, err)
	}

	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("wechat: upload: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("media", filepath.Base(filePath))
	if err != nil {
		return "", fmt.Errorf("wechat: upload %s: %w", filePath, err)
	}
	if _, err := io.Copy(fw, f); err != nil {
		return "", fmt.Errorf("wechat: upload %s: %w", filePath, err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("wechat: upload %s: %w", filePath, err)
	}

	u := fmt.Sprintf("%s/cgi-bin/media/upload?access_token=%s&type=file", m.apiBase, url.QueryEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &body)
	if err != nil {
		return "", fmt.Errorf("wechat: upload %s: %w", filePath, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := m.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("wechat: upload %s: %w", filePath, err)
	}
	defer resp.Body.Close()

	var ur uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&ur); err != nil {
		return "", fmt.Errorf("wechat: upload %s: decode response: %w", filePath, err)
	}
	if ur.MediaID == "" {
		return "", fmt.Errorf("wechat: upload %s: errcode=%d errmsg=%q", filePath, ur.ErrCode, ur.ErrMsg)
	}
	return ur.MediaID, nil
}
