// Package bot classifies inbound chat messages against the user's
// session state and produces a reply within the webhook response budget.
package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/mqzhao/vidscribe/internal/media"
	"github.com/mqzhao/vidscribe/internal/models"
	"github.com/mqzhao/vidscribe/internal/pipeline"
	"github.com/mqzhao/vidscribe/internal/store"
)

// Submitter enqueues a video link for background ingestion.
type Submitter interface {
	Submit(userID, url string) (string, error)
}

// Questioner answers a question grounded in transcript text.
type Questioner interface {
	Ask(ctx context.Context, question, contextText string) (string, error)
}

// Uploader publishes a transcript artifact to the chat platform and
// returns a platform media reference.
type Uploader interface {
	Upload(ctx context.Context, filePath string) (string, error)
}

// errStateChanged signals that the session left the expected state
// between classification and update (duplicate webhook delivery).
var errStateChanged = errors.New("bot: session state changed")

// Router is the conversation state machine. Classification order is a
// hard contract: a video link always wins, so link text is never
// mis-routed as a question.
type Router struct {
	sessions    *store.SessionStore
	transcripts *store.TranscriptStore
	submitter   Submitter
	model       Questioner
	uploader    Uploader // optional
	out         io.Writer
}

// RouterOpts holds parameters for creating a Router.
type RouterOpts struct {
	Sessions    *store.SessionStore
	Transcripts *store.TranscriptStore
	Submitter   Submitter
	Model       Questioner
	Uploader    Uploader  // optional; format selection skips upload when nil
	Out         io.Writer // defaults to os.Stdout
}

// NewRouter creates a Router.
func NewRouter(opts RouterOpts) (*Router, error) {
	if opts.Sessions == nil {
		return nil, fmt.Errorf("bot: router: session store is required")
	}
	if opts.Transcripts == nil {
		return nil, fmt.Errorf("bot: router: transcript store is required")
	}
	if opts.Submitter == nil {
		return nil, fmt.Errorf("bot: router: submitter is required")
	}
	if opts.Model == nil {
		return nil, fmt.Errorf("bot: router: model is required")
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Router{
		sessions:    opts.Sessions,
		transcripts: opts.Transcripts,
		submitter:   opts.Submitter,
		model:       opts.Model,
		uploader:    opts.Uploader,
		out:         out,
	}, nil
}

// Reply routes one inbound text message and returns the reply text.
// Routing paths, first match wins:
//  1. Video link: submit to the pipeline, acknowledge
//  2. Awaiting format: treat as a format selection
//  3. Ready: treat as a question about the transcript
//  4. Idle: onboarding prompt
func (r *Router) Reply(ctx context.Context, userID, text string) string {
	text = strings.TrimSpace(text)

	// 1. Link submission, regardless of current state.
	if pipeline.IsVideoLink(text) {
		return r.submit(userID, text)
	}

	sess, err := r.sessions.Get(userID)
	if err != nil {
		log.Printf("bot: get session [user=%s]: %v", userID, err)
		return internalErrText
	}

	switch sess.State {
	case models.StateAwaitingFormat:
		return r.selectFormat(ctx, userID, sess.JobID, text)
	case models.StateReady:
		return r.answer(ctx, sess, text)
	default:
		return onboardingText
	}
}

// submit hands a link to the pipeline and acknowledges immediately. The
// session is left untouched until the pipeline completes the job.
func (r *Router) submit(userID, url string) string {
	jobID, err := r.submitter.Submit(userID, url)
	switch {
	case errors.Is(err, pipeline.ErrInvalidLink):
		return invalidLinkText
	case errors.Is(err, pipeline.ErrQueueFull):
		return busyText
	case err != nil:
		log.Printf("bot: submit [user=%s]: %v", userID, err)
		return internalErrText
	}
	fmt.Fprintf(r.out, "bot: submitted job %s [user=%s]\n", jobID, userID)
	return ackText
}

// selectFormat applies a format choice. Invalid input re-prompts without
// changing state. A valid choice fetches the artifact, uploads it
// best-effort, and moves the session to ready.
func (r *Router) selectFormat(ctx context.Context, userID, jobID, text string) string {
	var format models.Format
	switch text {
	case "1":
		format = models.FormatText
	case "2":
		format = models.FormatSubtitle
	default:
		return rePromptText
	}

	rec, err := r.transcripts.Get(jobID)
	if err != nil {
		// The transcript a non-idle session points at should always
		// exist; recover by resetting rather than trapping the user.
		log.Printf("bot: transcript %s missing [user=%s]: %v", jobID, userID, err)
		r.reset(userID)
		return internalErrText
	}

	_, err = r.sessions.Update(userID, func(s *models.Session) error {
		if s.State != models.StateAwaitingFormat || s.JobID != jobID {
			return errStateChanged
		}
		s.State = models.StateReady
		s.SelectedFormat = format
		return nil
	})
	if errors.Is(err, errStateChanged) {
		// Duplicate delivery: the choice was already applied (or the
		// session moved on). Re-route against the fresh state.
		fresh, ferr := r.sessions.Get(userID)
		if ferr == nil && fresh.State == models.StateReady {
			return r.answer(ctx, fresh, text)
		}
		return rePromptText
	}
	if err != nil {
		log.Printf("bot: select format [user=%s]: %v", userID, err)
		return internalErrText
	}

	// Attach the artifact as platform media. Best-effort: a failed
	// upload must not undo the state transition.
	if r.uploader != nil {
		path := rec.TextPath
		if format == models.FormatSubtitle {
			path = rec.SubtitlePath
		}
		if _, uerr := r.uploader.Upload(ctx, path); uerr != nil {
			log.Printf("bot: upload artifact [user=%s job=%s]: %v", userID, jobID, uerr)
		}
	}

	if format == models.FormatSubtitle {
		return subtitleReadyText
	}
	return textReadyText
}

// answer loads the transcript matching the selected format and asks the
// model. Failures yield an apology; session state is unchanged so the
// user can retry the question.
func (r *Router) answer(ctx context.Context, sess *models.Session, question string) string {
	rec, err := r.transcripts.Get(sess.JobID)
	if err != nil {
		log.Printf("bot: transcript %s missing [user=%s]: %v", sess.JobID, sess.UserID, err)
		r.reset(sess.UserID)
		return internalErrText
	}

	contextText := rec.Text
	if sess.SelectedFormat == models.FormatSubtitle {
		contextText = media.StripSubtitle(rec.Subtitle)
	}

	answer, err := r.model.Ask(ctx, question, contextText)
	if err != nil {
		log.Printf("bot: ask [user=%s job=%s]: %v", sess.UserID, sess.JobID, err)
		return answerFailText
	}
	return answer
}

// reset reverts a session to idle after an unrecoverable inconsistency.
func (r *Router) reset(userID string) {
	_, err := r.sessions.Update(userID, func(s *models.Session) error {
		s.State = models.StateIdle
		s.JobID = ""
		s.SelectedFormat = models.FormatNone
		return nil
	})
	if err != nil {
		log.Printf("bot: reset session [user=%s]: %v", userID, err)
	}
}
