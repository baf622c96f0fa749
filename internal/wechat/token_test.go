package wechat

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func TestNewAccessTokenSource_RequiresCredentials(t *testing.T) {
	if _, err := NewAccessTokenSource(TokenSourceOpts{AppID: "a"}); err == nil {
		t.Error("expected error without secret")
	}
	if _, err := NewAccessTokenSource(TokenSourceOpts{AppSecret: "s"}); err == nil {
		t.Error("expected error without app id")
	}
}

func TestToken_FetchAndCache(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/cgi-bin/token" {
			t.Errorf("path = %q", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("grant_type") != "client_credential" || q.Get("appid") != "wx123" || q.Get("secret") != "sec" {
			t.Errorf("query = %q", r.URL.RawQuery)
		}
		n := atomic.AddInt32(&calls, 1)
		fmt.Fprintf(w, `{"access_token":"tok-%d","expires_in":7200}`, n)
	}))
	defer srv.Close()

	src, err := NewAccessTokenSource(TokenSourceOpts{AppID: "wx123", AppSecret: "sec", APIBase: srv.URL})
	if err != nil {
		t.Fatalf("new token source: %v", err)
	}

	ctx := context.Background()
	tok, err := src.Token(ctx)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if tok != "tok-1" {
		t.Errorf("token = %q, want tok-1", tok)
	}

	// Second call serves from cache.
	tok, err = src.Token(ctx)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if tok != "tok-1" {
		t.Errorf("cached token = %q, want tok-1", tok)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Errorf("upstream calls = %d, want 1", calls)
	}
}

func TestToken_RefreshesNearExpiry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		// Shorter than the early-expiry margin, so the cache is already
		// stale by the next call.
		fmt.Fprintf(w, `{"access_token":"tok-%d","expires_in":60}`, n)
	}))
	defer srv.Close()

	src, _ := NewAccessTokenSource(TokenSourceOpts{AppID: "wx123", AppSecret: "sec", APIBase: srv.URL})
	ctx := context.Background()

	src.Token(ctx)
	tok, err := src.Token(ctx)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if tok != "tok-2" {
		t.Errorf("token = %q, want refreshed tok-2", tok)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("upstream calls = %d, want 2", calls)
	}
}

func TestToken_PlatformError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"errcode":40013,"errmsg":"invalid appid"}`)
	}))
	defer srv.Close()

	src, _ := NewAccessTokenSource(TokenSourceOpts{AppID: "bad", AppSecret: "sec", APIBase: srv.URL})
	_, err := src.Token(context.Background())
	if err == nil {
		t.Fatal("expected error for platform rejection")
	}
	if !strings.Contains(err.Error(), "40013") {
		t.Errorf("error %q should carry the errcode", err)
	}
}
