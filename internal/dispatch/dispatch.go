// Package dispatch invokes the external generation backend and tracks a
// long-running video generation through a bounded polling loop.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mediachat/internal/files"
	"mediachat/internal/models"
)

// ErrGenerationFailed means the backend rejected the request or returned
// unusable output. The detail is surfaced verbatim to the caller.
var ErrGenerationFailed = errors.New("generation failed")

// ErrGenerationTimeout means polling exhausted the attempt ceiling without
// resolution. The external job may still complete later; it is orphaned, not
// reconciled. Distinct from ErrGenerationFailed so callers can suggest a
// retry.
var ErrGenerationTimeout = errors.New("generation timed out")

// MediaPayload is the uniform result shape for generated media, independent
// of how the backend delivered it.
type MediaPayload struct {
	URL      string
	MIMEType string
}

// RawMedia is generated output as the backend handed it over: either inline
// bytes or a reference requiring a follow-up download.
type RawMedia struct {
	Data        []byte
	DownloadRef string
	MIMEType    string
}

// VideoOperation is the transient handle of one in-flight video generation.
// It never survives a process restart; a restart abandons unresolved jobs.
type VideoOperation struct {
	Done      bool
	ErrDetail string
	Video     *RawMedia

	// Handle carries backend-private state across polls.
	Handle any
}

// Backend is the external generation capability. Implementations perform
// single pass-through calls; all waiting lives in the Dispatcher.
type Backend interface {
	GenerateText(ctx context.Context, prompt string, attachments []models.Attachment) (string, error)
	GenerateImage(ctx context.Context, prompt string) (*RawMedia, error)
	StartVideo(ctx context.Context, prompt string, seed *models.Attachment) (*VideoOperation, error)
	PollVideo(ctx context.Context, op *VideoOperation) (*VideoOperation, error)
	FetchVideo(ctx context.Context, op *VideoOperation, destPath string) error
}

// Config tunes the polling state machine. The interval is fixed; there is no
// backoff.
type Config struct {
	PollInterval    time.Duration
	PollMaxAttempts int
}

// Dispatcher drives the generation backend and resolves every delivery
// mechanism into a MediaPayload.
type Dispatcher struct {
	backend Backend
	files   *files.Store
	cfg     Config
	sleep   func(time.Duration)
}

func New(backend Backend, fileStore *files.Store, cfg Config) *Dispatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.PollMaxAttempts <= 0 {
		cfg.PollMaxAttempts = 36
	}
	return &Dispatcher{
		backend: backend,
		files:   fileStore,
		cfg:     cfg,
		sleep:   time.Sleep,
	}
}

// SetSleep swaps the wait between polls; tests use it to simulate completion
// timing without real delay.
func (d *Dispatcher) SetSleep(sleep func(time.Duration)) {
	d.sleep = sleep
}

// GenerateText performs one synchronous chat completion. Attachments are
// forwarded to the backend as inline multimodal parts.
func (d *Dispatcher) GenerateText(ctx context.Context, prompt string, attachments []models.Attachment) (string, error) {
	text, err := d.backend.GenerateText(ctx, prompt, attachments)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if text == "" {
		return "", fmt.Errorf("%w: backend returned no text", ErrGenerationFailed)
	}
	return text, nil
}

// GenerateImage performs one synchronous image generation and materializes
// the returned bytes.
func (d *Dispatcher) GenerateImage(ctx context.Context, prompt string) (*MediaPayload, error) {
	raw, err := d.backend.GenerateImage(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}
	if raw == nil || len(raw.Data) == 0 {
		return nil, fmt.Errorf("%w: backend returned no image data", ErrGenerationFailed)
	}
	url, err := d.files.Write(raw.Data, imageExtension(raw.MIMEType))
	if err != nil {
		return nil, err
	}
	mime := raw.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	return &MediaPayload{URL: url, MIMEType: mime}, nil
}

// GenerateVideo submits a video generation request, then re-checks the
// operation on a fixed interval until it completes or the attempt ceiling is
// reached. Polling is strictly sequential: one blocking wait, one status
// check, repeat. The loop holds no shared state while waiting.
func (d *Dispatcher) GenerateVideo(ctx context.Context, prompt string, seed *models.Attachment) (*MediaPayload, error) {
	op, err := d.backend.StartVideo(ctx, prompt, seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	for attempt := 0; attempt < d.cfg.PollMaxAttempts && !op.Done; attempt++ {
		d.sleep(d.cfg.PollInterval)
		op, err = d.backend.PollVideo(ctx, op)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
		}
	}

	if !op.Done {
		return nil, fmt.Errorf("%w: no resolution after %d checks", ErrGenerationTimeout, d.cfg.PollMaxAttempts)
	}
	if op.ErrDetail != "" {
		return nil, fmt.Errorf("%w: %s", ErrGenerationFailed, op.ErrDetail)
	}
	if op.Video == nil {
		return nil, fmt.Errorf("%w: backend returned no video data", ErrGenerationFailed)
	}
	return d.resolveVideo(ctx, op)
}

// resolveVideo turns either delivery mechanism, inline bytes or a follow-up
// download by reference, into the same payload shape.
func (d *Dispatcher) resolveVideo(ctx context.Context, op *VideoOperation) (*MediaPayload, error) {
	mime := op.Video.MIMEType
	if mime == "" {
		mime = "video/mp4"
	}

	if len(op.Video.Data) > 0 {
		url, err := d.files.Write(op.Video.Data, "mp4")
		if err != nil {
			return nil, err
		}
		return &MediaPayload{URL: url, MIMEType: mime}, nil
	}

	absPath, publicURL := d.files.CreatePaths("mp4")
	if err := d.backend.FetchVideo(ctx, op, absPath); err != nil {
		return nil, fmt.Errorf("%w: download video: %v", ErrGenerationFailed, err)
	}
	return &MediaPayload{URL: publicURL, MIMEType: mime}, nil
}

func imageExtension(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	default:
		return "png"
	}
}
