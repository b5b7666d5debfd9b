// Package queue drives upload transfers through a bounded-concurrency
// scheduler: a single in-flight counter and a drain step invoked at
// every state transition, no dedicated workers.
package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mhollis/skiff/internal/collect"
	"github.com/mhollis/skiff/internal/config"
	"github.com/mhollis/skiff/internal/conflict"
	"github.com/mhollis/skiff/internal/models"
	"github.com/mhollis/skiff/internal/vpath"
)

// EventType defines queue event types.
type EventType string

const (
	EventQueued   EventType = "queued"
	EventStarted  EventType = "started"
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is a snapshot of one item at a state transition.
type Event struct {
	Type      EventType           `json:"type"`
	Timestamp time.Time           `json:"timestamp"`
	Item      models.TransferItem `json:"item"`
}

// Uploader performs the binary transport.
type Uploader interface {
	URL(dirPath string) string
	Upload(ctx context.Context, dirPath, name string, r io.Reader, onProgress func(sent int64)) error
}

// Mutator covers the control-plane calls the queue needs.
type Mutator interface {
	Mkdir(ctx context.Context, parentPath, folderName string) error
	Delete(ctx context.Context, path string) error
	Move(ctx context.Context, sourcePath, destinationDirectory string) error
}

// Recorder persists finished transfers. Optional.
type Recorder interface {
	Record(item models.TransferItem) error
}

// progressInterval throttles per-item progress events.
const progressInterval = 100 * time.Millisecond

// Request describes one upload to enqueue.
type Request struct {
	Payload         collect.Payload
	TargetName      string
	DestinationPath string

	// UploadPath is the directory the transport physically writes
	// into. Leave empty to upload directly into DestinationPath; set
	// it to the browsing path to flatten a nested upload and relocate
	// afterwards.
	UploadPath string

	ReplaceExisting bool
}

type entry struct {
	item    *models.TransferItem
	payload collect.Payload
	cancel  context.CancelFunc // set while uploading
}

// Queue is the transfer scheduler. All shared state is guarded by one
// mutex; uploads themselves run in goroutines capped by the limit.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	limit    int
	inFlight int
	pending  []*entry
	entries  map[string]*entry
	history  []*entry
	histCap  int
	ensured  map[string]bool
	seq      int

	uploader Uploader
	mutator  Mutator
	recorder Recorder

	events chan Event
	logger zerolog.Logger
}

// New creates a queue. recorder may be nil.
func New(cfg config.UploadConfig, uploader Uploader, mutator Mutator, recorder Recorder, logger zerolog.Logger) *Queue {
	q := &Queue{
		limit:    cfg.MaxConcurrent,
		histCap:  cfg.HistoryLimit,
		entries:  make(map[string]*entry),
		ensured:  make(map[string]bool),
		uploader: uploader,
		mutator:  mutator,
		recorder: recorder,
		events:   make(chan Event, 256),
		logger:   logger.With().Str("component", "queue").Logger(),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Events returns the queue's event stream. Events are dropped rather
// than blocking the scheduler when the consumer lags.
func (q *Queue) Events() <-chan Event { return q.events }

// SetLimit adjusts the concurrency cap and drains if it was raised.
func (q *Queue) SetLimit(n int) {
	if n < 1 {
		n = 1
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.limit = n
	q.drainLocked()
}

// Limit returns the current concurrency cap.
func (q *Queue) Limit() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.limit
}

// Enqueue adds a transfer and immediately attempts to start work up to
// the concurrency limit. The returned snapshot carries the item's ID.
func (q *Queue) Enqueue(req Request) models.TransferItem {
	q.mu.Lock()

	q.seq++
	uploadPath := req.UploadPath
	if uploadPath == "" {
		uploadPath = req.DestinationPath
	}

	dest := vpath.Normalize(req.DestinationPath)
	item := &models.TransferItem{
		ID:              fmt.Sprintf("t%06d", q.seq),
		SourceName:      req.Payload.Name(),
		TargetName:      req.TargetName,
		TargetPath:      vpath.Join(dest, req.TargetName),
		DestinationPath: dest,
		UploadPath:      vpath.Normalize(uploadPath),
		Size:            req.Payload.Size(),
		Status:          models.StatusQueued,
		ReplaceExisting: req.ReplaceExisting,
		EnqueuedAt:      time.Now(),
	}

	e := &entry{item: item, payload: req.Payload}
	q.entries[item.ID] = e
	q.pending = append(q.pending, e)
	q.history = append(q.history, e)

	snapshot := *item
	q.emitLocked(EventQueued, item)
	q.pruneLocked()
	q.drainLocked()
	q.mu.Unlock()

	return snapshot
}

// EnqueueResolutions enqueues a batch of resolved candidates.
// uploadPath, when non-empty, is the active browsing path nested
// destinations are flattened through.
func (q *Queue) EnqueueResolutions(resolutions []conflict.Resolution, uploadPath string) []models.TransferItem {
	items := make([]models.TransferItem, 0, len(resolutions))
	for _, r := range resolutions {
		req := Request{
			Payload:         r.Candidate.Payload,
			TargetName:      r.TargetName,
			DestinationPath: r.DestinationPath,
			ReplaceExisting: r.ReplaceExisting,
		}
		if uploadPath != "" && vpath.Normalize(uploadPath) != vpath.Normalize(r.DestinationPath) {
			req.UploadPath = uploadPath
		}
		items = append(items, q.Enqueue(req))
	}
	return items
}

// Cancel aborts an item. Queued items are removed from the pending
// queue immediately; uploading items have their transport aborted and
// are marked failed by the abort handler. Cancellation never retries.
func (q *Queue) Cancel(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok {
		return fmt.Errorf("transfer %s: not found", id)
	}

	switch e.item.Status {
	case models.StatusQueued:
		for i, p := range q.pending {
			if p == e {
				q.pending = append(q.pending[:i], q.pending[i+1:]...)
				break
			}
		}
		q.finishLocked(e, models.ErrCancelled)
		return nil

	case models.StatusUploading:
		if e.cancel != nil {
			e.cancel()
		}
		return nil

	default:
		return fmt.Errorf("transfer %s: already finished", id)
	}
}

// Snapshot returns copies of all retained items, oldest first.
func (q *Queue) Snapshot() []models.TransferItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]models.TransferItem, 0, len(q.history))
	for _, e := range q.history {
		out = append(out, *e.item)
	}
	return out
}

// Wait blocks until no items are queued or uploading, or ctx ends.
func (q *Queue) Wait(ctx context.Context) error {
	done := make(chan struct{})
	abandoned := false

	go func() {
		q.mu.Lock()
		for !abandoned && q.activeLocked() > 0 {
			q.cond.Wait()
		}
		q.mu.Unlock()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		// Flag first, then wake the waiter so it exits instead of
		// parking again on a still-busy queue.
		q.mu.Lock()
		abandoned = true
		q.mu.Unlock()
		q.cond.Broadcast()
		return ctx.Err()
	}
}

// drainLocked pulls pending work while capacity remains. Called at
// enqueue and at every completion.
func (q *Queue) drainLocked() {
	for q.inFlight < q.limit && len(q.pending) > 0 {
		e := q.pending[0]
		q.pending = q.pending[1:]
		q.inFlight++
		go q.run(e)
	}
}

func (q *Queue) run(e *entry) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	q.mu.Lock()
	e.item.Status = models.StatusUploading
	e.cancel = cancel
	q.emitLocked(EventStarted, e.item)
	q.mu.Unlock()

	err := q.transfer(ctx, e)

	q.mu.Lock()
	e.cancel = nil
	if err != nil && ctx.Err() != nil {
		err = models.ErrCancelled
	}
	q.finishLocked(e, err)
	q.inFlight--
	q.drainLocked()
	q.mu.Unlock()
}

// transfer runs the per-item upload sequence: ensure ancestors, delete
// before replace, transport, relocate flattened uploads.
func (q *Queue) transfer(ctx context.Context, e *entry) error {
	item := e.item

	if err := q.ensureDirs(ctx, item.DestinationPath); err != nil {
		return fmt.Errorf("prepare destination: %w", err)
	}
	if item.Flattened() {
		if err := q.ensureDirs(ctx, item.UploadPath); err != nil {
			return fmt.Errorf("prepare upload directory: %w", err)
		}
	}

	if item.ReplaceExisting {
		if err := q.mutator.Delete(ctx, item.TargetPath); err != nil && !isNotFound(err) {
			return fmt.Errorf("replace existing: %w", err)
		}
	}

	r, err := e.payload.Open()
	if err != nil {
		return err
	}
	defer r.Close()

	lastEmit := time.Time{}
	onProgress := func(sent int64) {
		q.mu.Lock()
		if sent > item.Size {
			sent = item.Size
		}
		item.Loaded = sent
		if item.Size > 0 {
			item.Progress = int(sent * 100 / item.Size)
		}
		if time.Since(lastEmit) >= progressInterval {
			lastEmit = time.Now()
			q.emitLocked(EventProgress, item)
		}
		q.mu.Unlock()
	}

	if err := q.uploader.Upload(ctx, item.UploadPath, item.TargetName, r, onProgress); err != nil {
		return err
	}

	if item.Flattened() {
		uploadedAs := vpath.Join(item.UploadPath, item.TargetName)
		if err := q.mutator.Move(ctx, uploadedAs, item.DestinationPath); err != nil {
			// Bytes are on the server under the flattened name; callers
			// surface this separately from a failed upload.
			return &models.PartialSuccessError{
				UploadedAs:  uploadedAs,
				Destination: item.DestinationPath,
				Err:         err,
			}
		}
	}

	return nil
}

// ensureDirs walks every ancestor of dir, creating missing ones.
// Confirmed directories are memoized per process so the same ancestor
// is never recreated twice; already-exists answers count as confirmed.
func (q *Queue) ensureDirs(ctx context.Context, dir string) error {
	segs := vpath.Segments(dir)
	cur := vpath.Root

	for _, seg := range segs {
		next := vpath.Join(cur, seg)

		q.mu.Lock()
		done := q.ensured[next]
		q.mu.Unlock()

		if !done {
			if err := q.mutator.Mkdir(ctx, cur, seg); err != nil && !errors.Is(err, models.ErrAlreadyExists) {
				return err
			}
			q.mu.Lock()
			q.ensured[next] = true
			q.mu.Unlock()
		}

		cur = next
	}
	return nil
}

// finishLocked moves an item to its terminal state and notifies.
func (q *Queue) finishLocked(e *entry, err error) {
	item := e.item
	item.FinishedAt = time.Now()

	if err != nil {
		item.Status = models.StatusError
		item.Error = err.Error()
		q.emitLocked(EventError, item)
		q.logger.Warn().Str("id", item.ID).Str("path", item.TargetPath).Err(err).Msg("transfer failed")
	} else {
		item.Status = models.StatusComplete
		item.Loaded = item.Size
		item.Progress = 100
		q.emitLocked(EventComplete, item)
		q.logger.Info().Str("id", item.ID).Str("path", item.TargetPath).Int64("size", item.Size).Msg("transfer complete")
	}

	if q.recorder != nil {
		if recErr := q.recorder.Record(*item); recErr != nil {
			q.logger.Warn().Err(recErr).Msg("failed to record transfer history")
		}
	}

	q.pruneLocked()
	q.cond.Broadcast()
}

// pruneLocked drops finished items beyond the cap, oldest first.
// Active items are always retained.
func (q *Queue) pruneLocked() {
	finished := 0
	for _, e := range q.history {
		if !e.item.Status.Active() {
			finished++
		}
	}

	if finished <= q.histCap {
		return
	}

	kept := q.history[:0]
	for _, e := range q.history {
		if finished > q.histCap && !e.item.Status.Active() {
			finished--
			delete(q.entries, e.item.ID)
			continue
		}
		kept = append(kept, e)
	}
	q.history = kept
}

func (q *Queue) emitLocked(t EventType, item *models.TransferItem) {
	select {
	case q.events <- Event{Type: t, Timestamp: time.Now(), Item: *item}:
	default:
		// Consumer is lagging; drop rather than stall transfers.
	}
}

func (q *Queue) activeLocked() int {
	return q.inFlight + len(q.pending)
}

func isNotFound(err error) bool {
	var up *models.UpstreamError
	return errors.As(err, &up) && up.StatusCode == http.StatusNotFound
}

var mobileUA = regexp.MustCompile(`(?i)mobi|android|iphone|ipad|touch`)

// ConcurrencyFor picks the upload cap for a client: touch and mobile
// clients get the lower limit to avoid saturating constrained
// connections.
func ConcurrencyFor(userAgent string, cfg config.UploadConfig) int {
	if mobileUA.MatchString(userAgent) {
		return cfg.MobileMaxConcurrent
	}
	return cfg.MaxConcurrent
}
