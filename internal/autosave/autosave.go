// Package autosave coalesces rapid editor changes into a bounded, ordered
// sequence of save requests. It is the client-side half of the note editor:
// the server only ever sees the debounced PUT traffic this controller emits.
package autosave

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultDebounce is the quiet period after the last edit before a save
	// is issued. Any further edit within the window resets the timer.
	DefaultDebounce = 300 * time.Millisecond

	// MaxContentBytes caps the snapshot size before submission. The server
	// does not enforce this; it is a client-side guard only.
	MaxContentBytes = 5 * 1024 * 1024

	// DefaultTitle replaces a blank title in the save payload.
	DefaultTitle = "Untitled Note"
)

var ErrContentTooLarge = errors.New("document is too large to save")

// Snapshot is one save payload: the trimmed title and the full rich-text
// content at the time the debounce fired.
type Snapshot struct {
	Title   string
	Content string
}

// Saver persists a snapshot. Implementations issue the PUT /notes/:id call.
type Saver interface {
	Save(ctx context.Context, snap Snapshot) error
}

// SaverFunc adapts a function to the Saver interface.
type SaverFunc func(ctx context.Context, snap Snapshot) error

func (f SaverFunc) Save(ctx context.Context, snap Snapshot) error { return f(ctx, snap) }

// Controller tracks a dirty flag and an in-flight flag. A save is scheduled
// only when dirty and not already in flight; at most one save runs at a time.
// Edits arriving mid-save stay dirty and trigger exactly one follow-up save
// carrying the latest state, so the final state is delivered at least once
// but intermediate states may be skipped.
type Controller struct {
	saver    Saver
	debounce time.Duration

	mu        sync.Mutex
	title     string
	content   string
	dirty     bool
	saving    bool
	closed    bool
	timer     *time.Timer
	lastSaved time.Time
	lastErr   error
}

type Option func(*Controller)

// WithDebounce overrides the debounce window. Tests shrink it.
func WithDebounce(d time.Duration) Option {
	return func(c *Controller) { c.debounce = d }
}

func New(saver Saver, opts ...Option) *Controller {
	c := &Controller{
		saver:    saver,
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Update records an edit. It marks the controller dirty and resets the
// debounce timer; while a save is in flight the timer stays unarmed and the
// completion path schedules the follow-up instead.
func (c *Controller) Update(title, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.title = title
	c.content = content
	c.dirty = true

	if !c.saving {
		c.armLocked()
	}
}

// Close cancels any pending debounce timer. No partial save is forced; an
// in-flight save is left to finish on its own.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Dirty reports whether edits exist that have not been saved yet.
func (c *Controller) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

// Saving reports whether a save is currently in flight.
func (c *Controller) Saving() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saving
}

// LastSaved returns the time of the most recent successful save, zero when
// nothing has been saved yet.
func (c *Controller) LastSaved() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSaved
}

// Err returns the error from the most recent save attempt, nil after a
// success. Local edits are never lost on failure: the dirty flag stays set
// and the next debounce cycle retries.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// armLocked (re)starts the debounce timer. Caller holds c.mu.
func (c *Controller) armLocked() {
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.debounce, c.fire)
}

func (c *Controller) fire() {
	c.mu.Lock()
	if c.closed || !c.dirty || c.saving {
		c.mu.Unlock()
		return
	}

	snap := Snapshot{
		Title:   strings.TrimSpace(c.title),
		Content: c.content,
	}
	if snap.Title == "" {
		snap.Title = DefaultTitle
	}

	if len(snap.Content) > MaxContentBytes {
		// Refused before submission; dirty stays set so a smaller edit can
		// still go out later.
		c.lastErr = ErrContentTooLarge
		c.mu.Unlock()
		return
	}

	c.saving = true
	c.dirty = false
	c.mu.Unlock()

	go c.save(snap)
}

func (c *Controller) save(snap Snapshot) {
	err := c.saver.Save(context.Background(), snap)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.saving = false

	if err != nil {
		c.lastErr = err
		c.dirty = true
	} else {
		c.lastErr = nil
		c.lastSaved = time.Now()
	}

	// Follow-up for edits that arrived mid-save, and retry after a failure.
	if c.dirty && !c.closed {
		c.armLocked()
	}
}
