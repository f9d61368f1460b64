package autosave

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDebounce = 20 * time.Millisecond

// recordingSaver captures every snapshot it is asked to persist. An optional
// gate blocks the save until released, and failures can be scripted per call.
type recordingSaver struct {
	mu    sync.Mutex
	saves []Snapshot
	fails int
	gate  chan struct{}
	done  chan Snapshot
}

func newRecordingSaver() *recordingSaver {
	return &recordingSaver{done: make(chan Snapshot, 16)}
}

func (r *recordingSaver) Save(ctx context.Context, snap Snapshot) error {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	fail := r.fails > 0
	if fail {
		r.fails--
	} else {
		r.saves = append(r.saves, snap)
	}
	r.mu.Unlock()

	if fail {
		return errors.New("save failed")
	}
	r.done <- snap
	return nil
}

func (r *recordingSaver) snapshots() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.saves...)
}

func waitForSave(t *testing.T, saver *recordingSaver) Snapshot {
	t.Helper()
	select {
	case snap := <-saver.done:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for save")
		return Snapshot{}
	}
}

func TestRapidEditsCoalesceIntoOneSave(t *testing.T) {
	saver := newRecordingSaver()
	c := New(saver, WithDebounce(testDebounce))
	defer c.Close()

	c.Update("Draft", "a")
	c.Update("Draft", "ab")
	c.Update("Draft", "abc")

	snap := waitForSave(t, saver)
	assert.Equal(t, "abc", snap.Content)

	// Give a stray second save a chance to show up.
	time.Sleep(3 * testDebounce)
	assert.Len(t, saver.snapshots(), 1)
	assert.False(t, c.Dirty())
	assert.False(t, c.Saving())
	assert.NoError(t, c.Err())
	assert.False(t, c.LastSaved().IsZero())
}

func TestEditDuringSaveTriggersOneFollowUp(t *testing.T) {
	saver := newRecordingSaver()
	saver.gate = make(chan struct{}, 16)
	c := New(saver, WithDebounce(testDebounce))
	defer c.Close()

	c.Update("Draft", "v1")

	// Let the first save start, then edit twice while it is blocked.
	time.Sleep(2 * testDebounce)
	c.Update("Draft", "v2")
	c.Update("Draft", "v3")
	assert.True(t, c.Dirty())

	saver.gate <- struct{}{}
	first := waitForSave(t, saver)
	assert.Equal(t, "v1", first.Content)

	saver.gate <- struct{}{}
	second := waitForSave(t, saver)
	assert.Equal(t, "v3", second.Content)

	time.Sleep(3 * testDebounce)
	assert.Len(t, saver.snapshots(), 2)
}

func TestBlankTitleSavedAsPlaceholder(t *testing.T) {
	saver := newRecordingSaver()
	c := New(saver, WithDebounce(testDebounce))
	defer c.Close()

	c.Update("   ", "body")

	snap := waitForSave(t, saver)
	assert.Equal(t, DefaultTitle, snap.Title)
	assert.Equal(t, "body", snap.Content)
}

func TestFailedSaveKeepsEditsAndRetries(t *testing.T) {
	saver := newRecordingSaver()
	saver.fails = 1
	c := New(saver, WithDebounce(testDebounce))
	defer c.Close()

	c.Update("Draft", "keep me")

	snap := waitForSave(t, saver)
	assert.Equal(t, "keep me", snap.Content)
	assert.NoError(t, c.Err())
	assert.False(t, c.Dirty())
}

func TestOversizedContentRefusedLocally(t *testing.T) {
	saver := newRecordingSaver()
	c := New(saver, WithDebounce(testDebounce))
	defer c.Close()

	c.Update("Big", strings.Repeat("x", MaxContentBytes+1))

	time.Sleep(3 * testDebounce)
	assert.Empty(t, saver.snapshots())
	assert.ErrorIs(t, c.Err(), ErrContentTooLarge)
	assert.True(t, c.Dirty())

	// A smaller edit still goes out afterwards.
	c.Update("Big", "trimmed")
	snap := waitForSave(t, saver)
	assert.Equal(t, "trimmed", snap.Content)
	assert.NoError(t, c.Err())
}

func TestCloseCancelsPendingSave(t *testing.T) {
	saver := newRecordingSaver()
	c := New(saver, WithDebounce(testDebounce))

	c.Update("Draft", "never sent")
	c.Close()

	time.Sleep(3 * testDebounce)
	assert.Empty(t, saver.snapshots())

	// Updates after Close are ignored.
	c.Update("Draft", "still nothing")
	time.Sleep(3 * testDebounce)
	assert.Empty(t, saver.snapshots())
}

func TestSaverFuncAdapter(t *testing.T) {
	var got Snapshot
	fn := SaverFunc(func(ctx context.Context, snap Snapshot) error {
		got = snap
		return nil
	})
	require.NoError(t, fn.Save(context.Background(), Snapshot{Title: "T", Content: "c"}))
	assert.Equal(t, "T", got.Title)
}
