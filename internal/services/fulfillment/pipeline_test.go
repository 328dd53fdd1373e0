package fulfillment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"norelock.dev/nowplaying/bot/internal/cache"
	"norelock.dev/nowplaying/bot/internal/models"
	"norelock.dev/nowplaying/bot/internal/platform"
	"norelock.dev/nowplaying/bot/internal/services/resolver"
	"norelock.dev/nowplaying/bot/internal/utils"
)

type fakeTrackRepo struct {
	mu      sync.Mutex
	stored  *models.Track
	findErr error
	saveErr error
	saved   []*models.Track
}

func (f *fakeTrackRepo) FindByProviderID(context.Context, string, string) (*models.Track, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findErr != nil {
		return nil, f.findErr
	}
	if f.stored == nil {
		return nil, models.ErrTrackNotFound
	}
	return f.stored, nil
}

func (f *fakeTrackRepo) UpsertResolved(_ context.Context, track *models.Track) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.saved = append(f.saved, track)
	return nil
}

type fakeSource struct {
	mu      sync.Mutex
	audio   *resolver.Audio
	err     error
	block   chan struct{}
	resolve int
}

func (f *fakeSource) Resolve(context.Context, models.Track) (*resolver.Audio, error) {
	f.mu.Lock()
	f.resolve++
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.audio, nil
}

func (f *fakeSource) resolveCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resolve
}

type fakeMessenger struct {
	mu        sync.Mutex
	uploads   int
	edits     []models.ResolvedMedia
	editTexts []string
	uploadErr error
	editErr   error
}

func (f *fakeMessenger) UploadAudio(_ context.Context, _ []byte, _ string, _ platform.AudioAttributes) (models.ResolvedMedia, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return models.ResolvedMedia{}, f.uploadErr
	}
	f.uploads++
	return models.ResolvedMedia{MediaID: "real-file", AccessSecret: "secret", ReferenceToken: "42"}, nil
}

func (f *fakeMessenger) EditMessageMedia(_ context.Context, _ platform.MessageRef, media models.ResolvedMedia, _ platform.AudioAttributes, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	f.edits = append(f.edits, media)
	f.editTexts = append(f.editTexts, text)
	return nil
}

func (f *fakeMessenger) AnswerInlineQuery(context.Context, string, []platform.InlineResult, string) error {
	return nil
}

func (f *fakeMessenger) SendMessage(context.Context, int64, string, [][]platform.Button) error {
	return nil
}

type fakeMetrics struct {
	mu       sync.Mutex
	outcomes []string
}

func (f *fakeMetrics) ObserveFulfillment(outcome string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome)
}

func (f *fakeMetrics) IncFulfillmentsInProgress() {}
func (f *fakeMetrics) DecFulfillmentsInProgress() {}

func testTrack() *models.Track {
	return &models.Track{
		Provider:        models.ProviderSpotify,
		ProviderTrackID: "abc",
		Name:            "Karma Police",
		Artist:          "Radiohead",
	}
}

func testPipeline(repo *fakeTrackRepo, source *fakeSource, messenger *fakeMessenger) (*Pipeline, *cache.QueryCache) {
	queries := cache.NewQueryCache(10)
	p := NewPipeline(queries, repo, source, messenger, &fakeMetrics{},
		Options{ResolveTimeout: time.Minute, PerTrackLock: true}, utils.NewNopLogger())
	return p, queries
}

func TestFulfillHappyPath(t *testing.T) {
	repo := &fakeTrackRepo{}
	source := &fakeSource{audio: &resolver.Audio{Data: []byte("audio"), Duration: 262, MimeType: "audio/mp4"}}
	messenger := &fakeMessenger{}
	p, queries := testPipeline(repo, source, messenger)

	track := testTrack()
	queries.Put("result-1", track)
	event := platform.SelectionEvent{ResultID: "result-1", Message: platform.MessageRef{InlineMessageID: "msg-1"}}

	if outcome := p.Fulfill(context.Background(), event); outcome != outcomeFulfilled {
		t.Fatalf("Fulfill() = %q, want %q", outcome, outcomeFulfilled)
	}

	if messenger.uploads != 1 {
		t.Errorf("uploads = %d, want 1", messenger.uploads)
	}
	if len(messenger.edits) != 1 || messenger.edits[0].MediaID != "real-file" {
		t.Errorf("edits = %+v, want one edit with real-file", messenger.edits)
	}
	if len(repo.saved) != 1 || !repo.saved[0].IsResolved() {
		t.Errorf("saved = %+v, want one resolved track", repo.saved)
	}
	if !track.IsResolved() {
		t.Error("cached track was not marked resolved")
	}
}

func TestFulfillStaleSelection(t *testing.T) {
	repo := &fakeTrackRepo{}
	source := &fakeSource{}
	messenger := &fakeMessenger{}
	p, _ := testPipeline(repo, source, messenger)

	event := platform.SelectionEvent{ResultID: "unknown", Message: platform.MessageRef{InlineMessageID: "msg-1"}}
	if outcome := p.Fulfill(context.Background(), event); outcome != outcomeStale {
		t.Fatalf("Fulfill() = %q, want %q", outcome, outcomeStale)
	}

	if source.resolveCalls() != 0 {
		t.Error("stale selection triggered resolution")
	}
	if len(messenger.edits) != 0 {
		t.Error("stale selection edited the message")
	}
}

func TestFulfillStoreHitSkipsResolution(t *testing.T) {
	stored := testTrack()
	stored.Resolved = &models.ResolvedMedia{MediaID: "stored-file"}
	repo := &fakeTrackRepo{stored: stored}
	source := &fakeSource{}
	messenger := &fakeMessenger{}
	p, queries := testPipeline(repo, source, messenger)

	queries.Put("result-1", testTrack())
	event := platform.SelectionEvent{ResultID: "result-1", Message: platform.MessageRef{InlineMessageID: "msg-1"}}

	if outcome := p.Fulfill(context.Background(), event); outcome != outcomeStoreHit {
		t.Fatalf("Fulfill() = %q, want %q", outcome, outcomeStoreHit)
	}

	if source.resolveCalls() != 0 {
		t.Error("store hit still resolved")
	}
	if messenger.uploads != 0 {
		t.Error("store hit re-uploaded audio")
	}
	if len(messenger.edits) != 0 {
		t.Errorf("edits = %+v, want none on a store hit", messenger.edits)
	}

	// The store result is remembered, so a repeat selection short-circuits
	// before the store lookup.
	repo.findErr = errors.New("store down")
	if outcome := p.Fulfill(context.Background(), event); outcome != outcomeAlreadyResolved {
		t.Fatalf("repeat Fulfill() = %q, want %q", outcome, outcomeAlreadyResolved)
	}
}

func TestFulfillRepeatSelectionIsIdempotent(t *testing.T) {
	repo := &fakeTrackRepo{}
	source := &fakeSource{audio: &resolver.Audio{Data: []byte("audio"), Duration: 262}}
	messenger := &fakeMessenger{}
	p, queries := testPipeline(repo, source, messenger)

	queries.Put("result-1", testTrack())
	event := platform.SelectionEvent{ResultID: "result-1", Message: platform.MessageRef{InlineMessageID: "msg-1"}}

	if outcome := p.Fulfill(context.Background(), event); outcome != outcomeFulfilled {
		t.Fatalf("first Fulfill() = %q, want %q", outcome, outcomeFulfilled)
	}
	if outcome := p.Fulfill(context.Background(), event); outcome != outcomeAlreadyResolved {
		t.Fatalf("second Fulfill() = %q, want %q", outcome, outcomeAlreadyResolved)
	}

	if source.resolveCalls() != 1 {
		t.Errorf("resolve calls = %d, want 1", source.resolveCalls())
	}
	if messenger.uploads != 1 {
		t.Errorf("uploads = %d, want 1", messenger.uploads)
	}
	if len(messenger.edits) != 1 {
		t.Errorf("edits = %d, want 1; a repeat selection must not re-edit", len(messenger.edits))
	}
	if len(repo.saved) != 1 {
		t.Errorf("persisted %d times, want 1", len(repo.saved))
	}
}

func TestFulfillConcurrentSelectionsResolveOnce(t *testing.T) {
	repo := &fakeTrackRepo{}
	source := &fakeSource{audio: &resolver.Audio{Data: []byte("audio"), Duration: 262}}
	messenger := &fakeMessenger{}
	p, queries := testPipeline(repo, source, messenger)

	queries.Put("result-1", testTrack())
	event := platform.SelectionEvent{ResultID: "result-1", Message: platform.MessageRef{InlineMessageID: "msg-1"}}

	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Fulfill(context.Background(), event)
		}()
	}
	wg.Wait()

	if source.resolveCalls() != 1 {
		t.Errorf("resolve calls = %d, want 1", source.resolveCalls())
	}
	if messenger.uploads != 1 {
		t.Errorf("uploads = %d, want 1", messenger.uploads)
	}
	if len(messenger.edits) != 1 {
		t.Errorf("edits = %d, want 1 across concurrent selections", len(messenger.edits))
	}
}

// Lock-free mode tolerates duplicate resolution work but must stay memory
// safe: concurrent fulfillments of the same cached track read and write its
// resolved media through the pipeline's guard, not bare field access.
func TestFulfillConcurrentSelectionsWithoutLock(t *testing.T) {
	repo := &fakeTrackRepo{}
	source := &fakeSource{
		audio: &resolver.Audio{Data: []byte("audio"), Duration: 262},
		block: make(chan struct{}),
	}
	messenger := &fakeMessenger{}
	queries := cache.NewQueryCache(10)
	p := NewPipeline(queries, repo, source, messenger, &fakeMetrics{},
		Options{ResolveTimeout: time.Minute, PerTrackLock: false}, utils.NewNopLogger())

	track := testTrack()
	queries.Put("result-1", track)
	event := platform.SelectionEvent{ResultID: "result-1", Message: platform.MessageRef{InlineMessageID: "msg-1"}}

	const selections = 4
	var wg sync.WaitGroup
	for range selections {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Fulfill(context.Background(), event)
		}()
	}

	// Hold every fulfillment inside the resolver so all of them pass the
	// resolved-media check before any of them writes it.
	deadline := time.After(5 * time.Second)
	for source.resolveCalls() < selections {
		select {
		case <-deadline:
			t.Fatalf("resolve calls = %d, want %d before unblocking", source.resolveCalls(), selections)
		case <-time.After(time.Millisecond):
		}
	}
	close(source.block)
	wg.Wait()

	// Duplicate work is the accepted cost of lock-free mode.
	if messenger.uploads != selections {
		t.Errorf("uploads = %d, want %d without the per-track lock", messenger.uploads, selections)
	}
	if p.resolvedOf(track) == nil {
		t.Error("track not marked resolved after concurrent fulfillments")
	}
}

func TestFulfillNoMatchLeavesPlaceholder(t *testing.T) {
	repo := &fakeTrackRepo{}
	source := &fakeSource{err: models.ErrNoMatch}
	messenger := &fakeMessenger{}
	p, queries := testPipeline(repo, source, messenger)

	queries.Put("result-1", testTrack())
	event := platform.SelectionEvent{ResultID: "result-1", Message: platform.MessageRef{InlineMessageID: "msg-1"}}

	if outcome := p.Fulfill(context.Background(), event); outcome != outcomeNoMatch {
		t.Fatalf("Fulfill() = %q, want %q", outcome, outcomeNoMatch)
	}
	if len(messenger.edits) != 0 {
		t.Error("failed resolution edited the message")
	}
	if len(repo.saved) != 0 {
		t.Error("failed resolution persisted a track")
	}
}

func TestFulfillUploadFailure(t *testing.T) {
	repo := &fakeTrackRepo{}
	source := &fakeSource{audio: &resolver.Audio{Data: []byte("audio")}}
	messenger := &fakeMessenger{uploadErr: errors.New("flood wait")}
	p, queries := testPipeline(repo, source, messenger)

	track := testTrack()
	queries.Put("result-1", track)
	event := platform.SelectionEvent{ResultID: "result-1", Message: platform.MessageRef{InlineMessageID: "msg-1"}}

	if outcome := p.Fulfill(context.Background(), event); outcome != outcomeUploadFailed {
		t.Fatalf("Fulfill() = %q, want %q", outcome, outcomeUploadFailed)
	}
	if track.IsResolved() {
		t.Error("track marked resolved despite failed upload")
	}
}

func TestFulfillPersistenceFailureIsNonFatal(t *testing.T) {
	repo := &fakeTrackRepo{saveErr: errors.New("mongo down")}
	source := &fakeSource{audio: &resolver.Audio{Data: []byte("audio")}}
	messenger := &fakeMessenger{}
	p, queries := testPipeline(repo, source, messenger)

	queries.Put("result-1", testTrack())
	event := platform.SelectionEvent{ResultID: "result-1", Message: platform.MessageRef{InlineMessageID: "msg-1"}}

	if outcome := p.Fulfill(context.Background(), event); outcome != outcomeFulfilled {
		t.Fatalf("Fulfill() = %q, want %q", outcome, outcomeFulfilled)
	}
	if len(messenger.edits) != 1 {
		t.Error("message was not patched despite persistence failure")
	}
}

func TestDispatchAndDrain(t *testing.T) {
	repo := &fakeTrackRepo{}
	source := &fakeSource{
		audio: &resolver.Audio{Data: []byte("audio")},
		block: make(chan struct{}),
	}
	messenger := &fakeMessenger{}
	p, queries := testPipeline(repo, source, messenger)

	queries.Put("result-1", testTrack())
	p.Dispatch(platform.SelectionEvent{ResultID: "result-1", Message: platform.MessageRef{InlineMessageID: "msg-1"}})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	if err := p.Drain(ctx); err == nil {
		t.Error("Drain() returned nil while a run was still blocked")
	}
	cancel()

	close(source.block)

	ctx, cancel = context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Drain(ctx); err != nil {
		t.Errorf("Drain() returned error after unblocking: %v", err)
	}

	if messenger.uploads != 1 {
		t.Errorf("uploads = %d, want 1", messenger.uploads)
	}
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	km := newKeyedMutex()

	unlock := km.Lock("a")
	unlock()

	km.mu.Lock()
	remaining := len(km.locks)
	km.mu.Unlock()

	if remaining != 0 {
		t.Errorf("lock map has %d entries after release, want 0", remaining)
	}
}
