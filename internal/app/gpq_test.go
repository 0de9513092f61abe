package app

import (
	"context"
	"errors"
	"testing"

	"assessd/pkg/cache"
	"assessd/pkg/domain"
	"assessd/pkg/store"
)

// countingStore counts the evidence timing writes that reach storage.
type countingStore struct {
	store.Store
	initiated int
	touched   int
}

func (c *countingStore) MarkEvidenceInitiated(ctx context.Context, id string, ts int64) error {
	c.initiated++
	return c.Store.MarkEvidenceInitiated(ctx, id, ts)
}

func (c *countingStore) TouchEvidence(ctx context.Context, id string, ts int64) error {
	c.touched++
	return c.Store.TouchEvidence(ctx, id, ts)
}

func newCountingApp(t *testing.T) (*App, *countingStore) {
	t.Helper()
	cs := &countingStore{Store: store.NewMemoryStore()}
	a, err := New(Config{
		TokenSecret: "test-secret",
		Store:       cs,
		Cache:       cache.NewMemoryTouchCache(),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, cs
}

func seedEvidence(t *testing.T, a *App, rows int) domain.GPQEvidence {
	t.Helper()
	ctx := context.Background()
	project := seedProject(t, a)
	persona := seedPersona(t, a, project.ID, "budi01")
	ev, err := a.CreateGPQTemplate(ctx, superuser(), TemplateInput{
		PrjID:    project.ID,
		Username: persona.Username,
		Rows:     rows,
	})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	return ev
}

func storedEvidence(t *testing.T, a *App, id string) domain.GPQEvidence {
	t.Helper()
	ev, found, err := a.store.GetEvidence(context.Background(), id)
	if err != nil || !found {
		t.Fatalf("stored evidence %s: found=%v err=%v", id, found, err)
	}
	return ev
}

func TestCreateGPQTemplatePermutation(t *testing.T) {
	a, _ := newTestApp(t)
	ev := seedEvidence(t, a, 20)

	if len(ev.Records) != 20 {
		t.Fatalf("expected 20 records, got %d", len(ev.Records))
	}
	seen := make(map[int]bool)
	for i, r := range ev.Records {
		if r.Seq != i+1 {
			t.Fatalf("record %d has seq %d, want %d", i, r.Seq, i+1)
		}
		if r.WbSeq < 1 || r.WbSeq > 20 {
			t.Fatalf("record %d has wb_seq %d outside 1..20", i, r.WbSeq)
		}
		if seen[r.WbSeq] {
			t.Fatalf("wb_seq %d repeated", r.WbSeq)
		}
		seen[r.WbSeq] = true
		if r.Element != "" || r.Statement != "" || r.Saved != 0 || r.Elapsed != 0 {
			t.Fatalf("record %d not blank: %+v", i, r)
		}
	}
}

func TestCreateGPQTemplateDefaultRows(t *testing.T) {
	a, _ := newTestApp(t)
	ev := seedEvidence(t, a, 0)
	if len(ev.Records) != 120 {
		t.Fatalf("expected default 120 records, got %d", len(ev.Records))
	}
}

func TestCreateGPQTemplateUnknownPersona(t *testing.T) {
	a, _ := newTestApp(t)
	project := seedProject(t, a)
	_, err := a.CreateGPQTemplate(context.Background(), superuser(), TemplateInput{
		PrjID:    project.ID,
		Username: "ghost1",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestInitEvidenceFirstVisit(t *testing.T) {
	a, cs := newCountingApp(t)
	ev := seedEvidence(t, a, 10)
	pinClock(a, 1000)

	got, err := a.InitEvidence(context.Background(), superuser(), ev.ID)
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if got != 1000 {
		t.Fatalf("init returned %d, want 1000", got)
	}
	stored := storedEvidence(t, a, ev.ID)
	if stored.Initiated != 1000 || stored.Touched != 1000 {
		t.Fatalf("stored timing = initiated %d touched %d, want 1000/1000", stored.Initiated, stored.Touched)
	}
	if cs.initiated != 1 {
		t.Fatalf("expected exactly one initiated write, got %d", cs.initiated)
	}
}

func TestInitEvidenceIdempotent(t *testing.T) {
	a, cs := newCountingApp(t)
	ev := seedEvidence(t, a, 10)
	pinClock(a, 1000, 2000, 3000)
	ctx := context.Background()

	first, err := a.InitEvidence(ctx, superuser(), ev.ID)
	if err != nil {
		t.Fatalf("first init: %v", err)
	}
	for i := 0; i < 2; i++ {
		again, err := a.InitEvidence(ctx, superuser(), ev.ID)
		if err != nil {
			t.Fatalf("repeat init: %v", err)
		}
		if again != first {
			t.Fatalf("repeat init returned %d, want first timestamp %d", again, first)
		}
	}
	if cs.initiated != 1 {
		t.Fatalf("repeated init wrote initiated %d times, want 1", cs.initiated)
	}
	stored := storedEvidence(t, a, ev.ID)
	if stored.Initiated != 1000 || stored.Touched != 1000 {
		t.Fatalf("repeat init moved stored timing: %+v", stored)
	}
}

func TestInitEvidenceReconcilesAfterRestart(t *testing.T) {
	a, cs := newCountingApp(t)
	ev := seedEvidence(t, a, 10)
	ctx := context.Background()

	pinClock(a, 1000)
	if _, err := a.InitEvidence(ctx, superuser(), ev.ID); err != nil {
		t.Fatalf("init: %v", err)
	}
	// Simulate a process restart: the cache entry is gone, the DB row
	// still carries the original initiation.
	if err := a.cache.Drop(ctx, ev.ID); err != nil {
		t.Fatalf("drop cache: %v", err)
	}

	pinClock(a, 5000)
	got, err := a.InitEvidence(ctx, superuser(), ev.ID)
	if err != nil {
		t.Fatalf("init after restart: %v", err)
	}
	if got != 1000 {
		t.Fatalf("init after restart returned %d, want original 1000", got)
	}
	stored := storedEvidence(t, a, ev.ID)
	if stored.Initiated != 1000 {
		t.Fatalf("restart init rewrote initiated: %d", stored.Initiated)
	}
	if stored.Touched != 5000 {
		t.Fatalf("restart init should advance touched to 5000, got %d", stored.Touched)
	}
	if cs.initiated != 1 || cs.touched != 1 {
		t.Fatalf("writes = initiated %d touched %d, want 1/1", cs.initiated, cs.touched)
	}
}

func TestStartEvidenceOverwrites(t *testing.T) {
	a, _ := newTestApp(t)
	ev := seedEvidence(t, a, 10)
	pinClock(a, 1000, 2000)
	ctx := context.Background()

	if got, err := a.StartEvidence(ctx, superuser(), ev.ID); err != nil || got != 1000 {
		t.Fatalf("first start = (%d, %v), want (1000, nil)", got, err)
	}
	if got, err := a.StartEvidence(ctx, superuser(), ev.ID); err != nil || got != 2000 {
		t.Fatalf("second start = (%d, %v), want (2000, nil)", got, err)
	}
	stored := storedEvidence(t, a, ev.ID)
	if stored.Started != 2000 || stored.Touched != 2000 {
		t.Fatalf("stored timing = started %d touched %d, want 2000/2000", stored.Started, stored.Touched)
	}
}

func TestUpdateEvidenceElapsedFromLastTouch(t *testing.T) {
	a, _ := newTestApp(t)
	ev := seedEvidence(t, a, 10)
	ctx := context.Background()

	pinClock(a, 1000)
	if _, err := a.InitEvidence(ctx, superuser(), ev.ID); err != nil {
		t.Fatalf("init: %v", err)
	}
	pinClock(a, 1600, 2100)
	row := RowInput{Seq: 3, WbSeq: 7, Element: "E2", Statement: "ST14"}
	got, err := a.UpdateEvidence(ctx, superuser(), ev.ID, row)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got != 1600 {
		t.Fatalf("update returned %d, want 1600", got)
	}
	stored := storedEvidence(t, a, ev.ID)
	saved := stored.Records[2]
	if saved.Element != "E2" || saved.Statement != "ST14" || saved.WbSeq != 7 {
		t.Fatalf("row content not saved: %+v", saved)
	}
	if saved.Saved != 1600 || saved.Elapsed != 600 {
		t.Fatalf("row timing = saved %d elapsed %d, want 1600/600", saved.Saved, saved.Elapsed)
	}

	// Next save measures from the previous one.
	if _, err := a.UpdateEvidence(ctx, superuser(), ev.ID, RowInput{Seq: 4, WbSeq: 1, Element: "E1", Statement: "ST2"}); err != nil {
		t.Fatalf("second update: %v", err)
	}
	stored = storedEvidence(t, a, ev.ID)
	if e := stored.Records[3].Elapsed; e != 500 {
		t.Fatalf("second row elapsed = %d, want 500", e)
	}
	if stored.Touched != 2100 {
		t.Fatalf("evidence touched = %d, want 2100", stored.Touched)
	}
}

func TestUpdateEvidenceWithoutTimestamps(t *testing.T) {
	a, _ := newTestApp(t)
	ev := seedEvidence(t, a, 10)
	pinClock(a, 1000)

	if _, err := a.UpdateEvidence(context.Background(), superuser(), ev.ID, RowInput{Seq: 1, WbSeq: 4}); err != nil {
		t.Fatalf("update: %v", err)
	}
	stored := storedEvidence(t, a, ev.ID)
	if e := stored.Records[0].Elapsed; e != 0 {
		t.Fatalf("elapsed without any prior timestamp = %d, want 0", e)
	}
}

func TestUpdateEvidenceFallsBackToStoredTiming(t *testing.T) {
	a, _ := newTestApp(t)
	ev := seedEvidence(t, a, 10)
	ctx := context.Background()

	pinClock(a, 1000)
	if _, err := a.InitEvidence(ctx, superuser(), ev.ID); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := a.cache.Drop(ctx, ev.ID); err != nil {
		t.Fatalf("drop cache: %v", err)
	}

	pinClock(a, 1700)
	if _, err := a.UpdateEvidence(ctx, superuser(), ev.ID, RowInput{Seq: 2, WbSeq: 9}); err != nil {
		t.Fatalf("update: %v", err)
	}
	stored := storedEvidence(t, a, ev.ID)
	if e := stored.Records[1].Elapsed; e != 700 {
		t.Fatalf("elapsed after cache loss = %d, want 700 from stored touch", e)
	}
}

func TestUpdateEvidenceSeqOutOfRange(t *testing.T) {
	a, _ := newTestApp(t)
	ev := seedEvidence(t, a, 10)
	ctx := context.Background()

	for _, seq := range []int{0, -1, 11} {
		_, err := a.UpdateEvidence(ctx, superuser(), ev.ID, RowInput{Seq: seq})
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("seq %d: expected ErrValidation, got %v", seq, err)
		}
	}
}

func TestEvidenceAccessPersonaSelfOnly(t *testing.T) {
	a, _ := newTestApp(t)
	ev := seedEvidence(t, a, 10)
	ctx := context.Background()

	self := domain.Principal{
		Username: ev.Username,
		Scope:    domain.ScopePersona,
		Context:  ev.PrjID,
	}
	if _, err := a.GetEvidence(ctx, self, ev.ID); err != nil {
		t.Fatalf("persona denied own evidence: %v", err)
	}

	other := domain.Principal{
		Username: "sari02",
		Scope:    domain.ScopePersona,
		Context:  ev.PrjID,
	}
	if _, err := a.GetEvidence(ctx, other, ev.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for other persona, got %v", err)
	}
}

func TestGetEvidenceNotFound(t *testing.T) {
	a, _ := newTestApp(t)
	_, err := a.GetEvidence(context.Background(), superuser(), "ffffffffffffffffffffffff")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetEvidenceMalformedID(t *testing.T) {
	a, _ := newTestApp(t)
	ctx := context.Background()

	for _, id := range []string{"not-a-hex-id", "abc", ""} {
		if _, err := a.GetEvidence(ctx, superuser(), id); !errors.Is(err, ErrValidation) {
			t.Fatalf("get %q: expected ErrValidation, got %v", id, err)
		}
	}
	// The timing operations resolve the evidence the same way.
	if _, err := a.InitEvidence(ctx, superuser(), "not-a-hex-id"); !errors.Is(err, ErrValidation) {
		t.Fatalf("init: expected ErrValidation, got %v", err)
	}
	if _, err := a.UpdateEvidence(ctx, superuser(), "not-a-hex-id", RowInput{Seq: 1}); !errors.Is(err, ErrValidation) {
		t.Fatalf("update: expected ErrValidation, got %v", err)
	}
}

// flakyStore drops the first failInit/failSave writes of each kind,
// standing in for a storage outage.
type flakyStore struct {
	store.Store
	failInit int
	failSave int
}

func (f *flakyStore) MarkEvidenceInitiated(ctx context.Context, id string, ts int64) error {
	if f.failInit > 0 {
		f.failInit--
		return errors.New("write lost")
	}
	return f.Store.MarkEvidenceInitiated(ctx, id, ts)
}

func (f *flakyStore) SaveEvidenceRow(ctx context.Context, id string, row domain.GPQRow) error {
	if f.failSave > 0 {
		f.failSave--
		return errors.New("write lost")
	}
	return f.Store.SaveEvidenceRow(ctx, id, row)
}

func newFlakyApp(t *testing.T, fs *flakyStore) *App {
	t.Helper()
	fs.Store = store.NewMemoryStore()
	a, err := New(Config{
		TokenSecret: "test-secret",
		Store:       fs,
		Cache:       cache.NewMemoryTouchCache(),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a
}

func TestInitEvidenceRetryAfterLostWrite(t *testing.T) {
	fs := &flakyStore{failInit: 1}
	a := newFlakyApp(t, fs)
	ev := seedEvidence(t, a, 10)
	ctx := context.Background()

	pinClock(a, 1000, 2000)
	if _, err := a.InitEvidence(ctx, superuser(), ev.ID); err == nil {
		t.Fatal("expected first init to fail")
	}
	// The failed write must not leave a cached initiation behind, or the
	// retry would hand out a timestamp that was never persisted.
	if timing, ok, err := a.cache.Get(ctx, ev.ID); err == nil && ok && timing.Initiated != 0 {
		t.Fatalf("lost write left cached initiated %d", timing.Initiated)
	}

	got, err := a.InitEvidence(ctx, superuser(), ev.ID)
	if err != nil {
		t.Fatalf("retry init: %v", err)
	}
	stored := storedEvidence(t, a, ev.ID)
	if stored.Initiated == 0 {
		t.Fatal("retry did not persist initiated")
	}
	if got != stored.Initiated {
		t.Fatalf("retry returned %d but stored initiated is %d", got, stored.Initiated)
	}
}

func TestUpdateEvidenceReseedsAfterLostWrite(t *testing.T) {
	fs := &flakyStore{failSave: 1}
	a := newFlakyApp(t, fs)
	ev := seedEvidence(t, a, 10)
	ctx := context.Background()

	pinClock(a, 1000)
	if _, err := a.InitEvidence(ctx, superuser(), ev.ID); err != nil {
		t.Fatalf("init: %v", err)
	}

	pinClock(a, 1600, 2200)
	if _, err := a.UpdateEvidence(ctx, superuser(), ev.ID, RowInput{Seq: 1, WbSeq: 4}); err == nil {
		t.Fatal("expected first update to fail")
	}
	// The next save measures from the last persisted touch, not from the
	// save that never landed.
	if _, err := a.UpdateEvidence(ctx, superuser(), ev.ID, RowInput{Seq: 2, WbSeq: 9}); err != nil {
		t.Fatalf("second update: %v", err)
	}
	stored := storedEvidence(t, a, ev.ID)
	if e := stored.Records[1].Elapsed; e != 1200 {
		t.Fatalf("elapsed after lost write = %d, want 1200 from the persisted touch", e)
	}
}

func TestCreateGPQTemplateUsesInjectedOrder(t *testing.T) {
	a, _ := newTestApp(t)
	a.perm = func(n int) []int {
		p := make([]int, n)
		for i := range p {
			p[i] = n - 1 - i
		}
		return p
	}
	ev := seedEvidence(t, a, 5)

	want := []int{5, 4, 3, 2, 1}
	for i, r := range ev.Records {
		if r.WbSeq != want[i] {
			t.Fatalf("record %d has wb_seq %d, want %d", i, r.WbSeq, want[i])
		}
	}
}
