// Package pipeline turns submitted video links into transcript records
// in the background. Submission is non-blocking; a pool of workers does
// the slow download and transcription work and reports completion
// through the session store and the notification gateway.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mqzhao/vidscribe/internal/models"
	"github.com/mqzhao/vidscribe/internal/store"
	"gorm.io/gorm"
)

// ErrQueueFull is returned by Submit when the job queue is saturated.
// The router turns it into a "busy, try again" reply.
var ErrQueueFull = errors.New("pipeline: job queue is full")

// Default worker pool settings and adapter timeouts.
const (
	DefaultWorkers           = 2
	DefaultQueueSize         = 32
	DefaultDownloadTimeout   = 20 * time.Minute
	DefaultTranscribeTimeout = 15 * time.Minute
)

// Downloader fetches a video into destDir and returns the media file path.
type Downloader interface {
	Download(ctx context.Context, url, destDir string) (string, error)
}

// Transcriber converts a media file into text and subtitle artifacts.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaPath, outDir, name string) (textPath, subtitlePath string, err error)
}

// Notifier pushes an out-of-band message to a user. Best-effort from the
// pipeline's perspective; delivery retries live behind this interface.
type Notifier interface {
	Push(ctx context.Context, userID, text string) error
}

// Alerter posts operator-facing alerts. Implementations must not block.
type Alerter interface {
	Alert(ctx context.Context, title, body string)
}

// User-facing push texts.
const (
	readyText = "视频处理完成！请选择您需要的格式：\n1. TXT格式\n2. SRT格式\n\n回复数字1或2进行选择。"
	failText  = "抱歉，视频处理失败了，请稍后重试或更换其他链接。"
)

// Pipeline schedules and executes ingestion jobs.
type Pipeline struct {
	db          *gorm.DB
	sessions    *store.SessionStore
	transcripts *store.TranscriptStore
	downloader  Downloader
	transcriber Transcriber
	notifier    Notifier
	alerter     Alerter
	out         io.Writer

	dataDir           string
	workers           int
	downloadTimeout   time.Duration
	transcribeTimeout time.Duration

	queue chan string // job IDs
	wg    sync.WaitGroup

	mu     sync.Mutex
	latest map[string]string // userID -> most recently submitted job ID
}

// Opts holds parameters for creating a Pipeline.
type Opts struct {
	DB          *gorm.DB
	Sessions    *store.SessionStore
	Transcripts *store.TranscriptStore
	Downloader  Downloader
	Transcriber Transcriber
	Notifier    Notifier
	Alerter     Alerter // optional
	DataDir     string

	Workers           int           // defaults to DefaultWorkers
	QueueSize         int           // defaults to DefaultQueueSize
	DownloadTimeout   time.Duration // defaults to DefaultDownloadTimeout
	TranscribeTimeout time.Duration // defaults to DefaultTranscribeTimeout
	Out               io.Writer     // defaults to os.Stdout
}

// New creates a Pipeline.
func New(opts Opts) (*Pipeline, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("pipeline: db is required")
	}
	if opts.Sessions == nil {
		return nil, fmt.Errorf("pipeline: session store is required")
	}
	if opts.Transcripts == nil {
		return nil, fmt.Errorf("pipeline: transcript store is required")
	}
	if opts.Downloader == nil {
		return nil, fmt.Errorf("pipeline: downloader is required")
	}
	if opts.Transcriber == nil {
		return nil, fmt.Errorf("pipeline: transcriber is required")
	}
	if opts.Notifier == nil {
		return nil, fmt.Errorf("pipeline: notifier is required")
	}
	if opts.DataDir == "" {
		return nil, fmt.Errorf("pipeline: data dir is required")
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	downloadTimeout := opts.DownloadTimeout
	if downloadTimeout <= 0 {
		downloadTimeout = DefaultDownloadTimeout
	}
	transcribeTimeout := opts.TranscribeTimeout
	if transcribeTimeout <= 0 {
		transcribeTimeout = DefaultTranscribeTimeout
	}
	alerter := opts.Alerter
	if alerter == nil {
		alerter = noopAlerter{}
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	return &Pipeline{
		db:                opts.DB,
		sessions:          opts.Sessions,
		transcripts:       opts.Transcripts,
		downloader:        opts.Downloader,
		transcriber:       opts.Transcriber,
		notifier:          opts.Notifier,
		alerter:           alerter,
		out:               out,
		dataDir:           opts.DataDir,
		workers:           workers,
		downloadTimeout:   downloadTimeout,
		transcribeTimeout: transcribeTimeout,
		queue:             make(chan string, queueSize),
		latest:            make(map[string]string),
	}, nil
}

// noopAlerter drops alerts when no operator channel is configured.
type noopAlerter struct{}

func (noopAlerter) Alert(ctx context.Context, title, body string) {}

// Start launches the worker pool. Workers run until ctx is cancelled.
func (p *Pipeline) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go func(n int) {
			defer p.wg.Done()
			p.workerLoop(ctx, n)
		}(i)
	}
	fmt.Fprintf(p.out, "pipeline: %d worker(s) started\n", p.workers)
}

// Wait blocks until all workers have exited.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Submit validates the link, records a queued job as the user's latest
// submission, and enqueues it. It never performs the download inline and
// returns within the webhook response budget. A second submission while
// one is in flight supersedes it: last-submitted-wins on completion.
func (p *Pipeline) Submit(userID, url string) (string, error) {
	videoID, err := ExtractVideoID(url)
	if err != nil {
		return "", err
	}

	job := models.Job{
		ID:        uuid.NewString(),
		UserID:    userID,
		SourceURL: url,
		VideoID:   videoID,
		Status:    models.JobQueued,
	}
	if err := p.db.Create(&job).Error; err != nil {
		return "", fmt.Errorf("pipeline: create job: %w", err)
	}

	// Record the latest pointer before enqueueing: a worker may pick the
	// job up immediately and must see it as the current submission.
	p.mu.Lock()
	prev := p.latest[userID]
	p.latest[userID] = job.ID
	p.mu.Unlock()

	select {
	case p.queue <- job.ID:
	default:
		// Queue saturated. Mark the job failed so nothing dangles.
		p.mu.Lock()
		if p.latest[userID] == job.ID {
			p.latest[userID] = prev
		}
		p.mu.Unlock()
		p.db.Model(&models.Job{}).Where("id = ?", job.ID).
			Updates(map[string]interface{}{"status": models.JobFailed, "error": "queue full"})
		return "", ErrQueueFull
	}

	fmt.Fprintf(p.out, "pipeline: job %s queued [user=%s video=%s]\n", job.ID, userID, videoID)
	return job.ID, nil
}

// isLatest reports whether jobID is still the user's most recent
// submission. Superseded jobs complete silently.
func (p *Pipeline) isLatest(userID, jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest[userID] == jobID
}

// workerLoop consumes job IDs from the queue until ctx is cancelled.
func (p *Pipeline) workerLoop(ctx context.Context, n int) {
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-p.queue:
			p.run(ctx, jobID)
		}
	}
}

// run executes a single job: download, transcribe, persist, update the
// session, notify the user. The job is owned by this worker until it
// reaches a terminal status.
func (p *Pipeline) run(ctx context.Context, jobID string) {
	var job models.Job
	if err := p.db.Where("id = ?", jobID).First(&job).Error; err != nil {
		log.Printf("pipeline: job %s: load: %v", jobID, err)
		return
	}

	p.setStatus(&job, models.JobDownloading)
	dlCtx, cancel := context.WithTimeout(ctx, p.downloadTimeout)
	mediaPath, err := p.downloader.Download(dlCtx, job.SourceURL, filepath.Join(p.dataDir, "downloads", job.ID))
	cancel()
	if err != nil {
		p.fail(ctx, &job, "download", err)
		return
	}

	p.setStatus(&job, models.JobTranscribing)
	trCtx, cancel := context.WithTimeout(ctx, p.transcribeTimeout)
	textPath, subtitlePath, err := p.transcriber.Transcribe(trCtx, mediaPath, filepath.Join(p.dataDir, "transcripts"), job.VideoID+"-"+job.ID[:8])
	cancel()
	if err != nil {
		p.fail(ctx, &job, "transcribe", err)
		return
	}

	text, err := os.ReadFile(textPath)
	if err != nil {
		p.fail(ctx, &job, "read transcript", err)
		return
	}
	subtitle, err := os.ReadFile(subtitlePath)
	if err != nil {
		p.fail(ctx, &job, "read subtitle", err)
		return
	}

	if err := p.transcripts.Put(models.Transcript{
		JobID:        job.ID,
		Text:         string(text),
		Subtitle:     string(subtitle),
		TextPath:     textPath,
		SubtitlePath: subtitlePath,
	}); err != nil {
		p.fail(ctx, &job, "persist transcript", err)
		return
	}

	now := time.Now()
	job.CompletedAt = &now
	p.setStatus(&job, models.JobDone)
	p.complete(ctx, &job)
}

// complete moves the user's session to awaiting-format and pushes the
// format menu. If a newer submission superseded this job, the completion
// is discarded instead.
func (p *Pipeline) complete(ctx context.Context, job *models.Job) {
	if !p.isLatest(job.UserID, job.ID) {
		fmt.Fprintf(p.out, "pipeline: job %s superseded, discarding completion [user=%s]\n", job.ID, job.UserID)
		return
	}

	_, err := p.sessions.Update(job.UserID, func(s *models.Session) error {
		s.State = models.StateAwaitingFormat
		s.JobID = job.ID
		s.SelectedFormat = models.FormatNone
		return nil
	})
	if err != nil {
		log.Printf("pipeline: job %s: session update: %v", job.ID, err)
		p.alerter.Alert(ctx, "session update failed", fmt.Sprintf("job %s user %s: %v", job.ID, job.UserID, err))
		return
	}

	fmt.Fprintf(p.out, "pipeline: job %s done [user=%s]\n", job.ID, job.UserID)
	if err := p.notifier.Push(ctx, job.UserID, readyText); err != nil {
		log.Printf("pipeline: job %s: ready push: %v", job.ID, err)
	}
}

// fail records the error on the job, reverts the user's session to idle,
// and notifies the user exactly once. The user is never left in a state
// referencing a job that cannot complete.
func (p *Pipeline) fail(ctx context.Context, job *models.Job, step string, cause error) {
	log.Printf("pipeline: job %s: %s: %v [user=%s]", job.ID, step, cause, job.UserID)

	now := time.Now()
	job.Error = fmt.Sprintf("%s: %v", step, cause)
	job.CompletedAt = &now
	p.setStatus(job, models.JobFailed)

	p.alerter.Alert(ctx, "ingestion job failed",
		fmt.Sprintf("job %s (user %s, video %s) failed at %s: %v", job.ID, job.UserID, job.VideoID, step, cause))

	if !p.isLatest(job.UserID, job.ID) {
		return
	}

	_, err := p.sessions.Update(job.UserID, func(s *models.Session) error {
		s.State = models.StateIdle
		s.JobID = ""
		s.SelectedFormat = models.FormatNone
		return nil
	})
	if err != nil {
		log.Printf("pipeline: job %s: session revert: %v", job.ID, err)
	}

	if err := p.notifier.Push(ctx, job.UserID, failText); err != nil {
		log.Printf("pipeline: job %s: failure push: %v", job.ID, err)
	}
}

// setStatus persists a job status transition.
func (p *Pipeline) setStatus(job *models.Job, status models.JobStatus) {
	job.Status = status
	if err := p.db.Save(job).Error; err != nil {
		log.Printf("pipeline: job %s: save status %s: %v", job.ID, status, err)
	}
}
