package wechat

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Replier produces the reply text for one inbound user message. It must
// return within the platform's response budget; slow work is handed off
// to the pipeline, never done inline.
type Replier interface {
	Reply(ctx context.Context, userID, text string) string
}

// nonTextReply answers message types the service does not handle.
const nonTextReply = "目前只支持文本消息，请发送文本内容。"

// StartOpts holds configuration for the webhook server.
type StartOpts struct {
	Replier  Replier
	Verifier Verifier
	Port     int
	Path     string    // webhook mount path, defaults to /wechat
	Out      io.Writer // optional startup banner
}

// Start launches the webhook HTTP server. It blocks until ctx is
// cancelled, then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Replier == nil {
		return fmt.Errorf("wechat: server: replier is required")
	}
	if opts.Verifier == nil {
		return fmt.Errorf("wechat: server: verifier is required")
	}
	if opts.Port <= 0 {
		opts.Port = 8080
	}
	if opts.Path == "" {
		opts.Path = "/wechat"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	registerRoutes(router, opts)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", opts.Port),
		Handler: router,
	}

	// Graceful shutdown on context cancellation.
	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	if opts.Out != nil {
		fmt.Fprintf(opts.Out, "Webhook listening on :%d%s\n", opts.Port, opts.Path)
	}

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("wechat: server: %w", err)
	}
	return nil
}

// registerRoutes sets up the webhook endpoints on the Gin router.
func registerRoutes(router *gin.Engine, opts StartOpts) {
	router.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, "vidscribe is running")
	})
	router.GET(opts.Path, handleVerify(opts.Verifier))
	router.POST(opts.Path, handleMessage(opts.Replier))
}

// handleVerify answers the one-time endpoint verification: echo echostr
// once the signature checks out.
func handleVerify(verifier Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		signature := c.Query("signature")
		timestamp := c.Query("timestamp")
		nonce := c.Query("nonce")
		echostr := c.Query("echostr")

		if !verifier.Verify(signature, timestamp, nonce) {
			c.String(http.StatusForbidden, "invalid signature")
			return
		}
		c.String(http.StatusOK, echostr)
	}
}

// handleMessage processes an inbound message post. The endpoint must
// never fail to respond: a dropped response triggers platform-side
// redelivery, so every error path still answers 200 with an empty body.
func handleMessage(replier Replier) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("wechat: handler panic: %v", r)
				c.String(http.StatusOK, "")
			}
		}()

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			log.Printf("wechat: read body: %v", err)
			c.String(http.StatusOK, "")
			return
		}

		msg, err := ParseIncoming(body)
		if err != nil {
			log.Printf("wechat: %v", err)
			c.String(http.StatusOK, "")
			return
		}

		var content string
		if msg.MsgType == "text" {
			content = replier.Reply(c.Request.Context(), msg.FromUserName, msg.Content)
		} else {
			content = nonTextReply
		}

		reply, err := BuildReply(msg.FromUserName, msg.ToUserName, content, time.Now())
		if err != nil {
			log.Printf("wechat: %v", err)
			c.String(http.StatusOK, "")
			return
		}
		c.Data(http.StatusOK, "application/xml; charset=utf-8", reply)
	}
}
