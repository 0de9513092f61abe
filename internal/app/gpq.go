package app

import (
	"context"
	"errors"
	"fmt"

	"assessd/internal/util"
	"assessd/pkg/domain"
	"assessd/pkg/events"
	"assessd/pkg/store"
)

// TemplateInput carries the fields accepted when creating a GPQ answer
// template.
type TemplateInput struct {
	PrjID    string `json:"prj_id"`
	Username string `json:"username"`
	Rows     int    `json:"rows"`
}

// RowInput is the payload of a single answer save.
type RowInput struct {
	Seq       int    `json:"seq"`
	WbSeq     int    `json:"wb_seq"`
	Element   string `json:"element"`
	Statement string `json:"statement"`
}

// CreateGPQTemplate builds a fresh evidence document for a persona. The
// persona must already exist in the project.
func (a *App) CreateGPQTemplate(ctx context.Context, p domain.Principal, in TemplateInput) (domain.GPQEvidence, error) {
	if err := a.requireManage(ctx, p, in.PrjID); err != nil {
		return domain.GPQEvidence{}, err
	}
	persona, found, err := a.store.GetPersonaByName(ctx, in.PrjID, in.Username)
	if err != nil {
		return domain.GPQEvidence{}, fmt.Errorf("fetch persona: %w", err)
	}
	if !found {
		return domain.GPQEvidence{}, fmt.Errorf("%w: no persona %q in project", ErrValidation, in.Username)
	}
	rows := in.Rows
	if rows <= 0 {
		rows = a.gpqRows
	}
	return a.createGPQTemplate(ctx, in.PrjID, persona.Username, persona.Fullname, rows)
}

// createGPQTemplate persists a template of rows records: seq runs 1..N
// in storage order, wb_seq carries a uniform random permutation of 1..N
// fixed once at creation.
func (a *App) createGPQTemplate(ctx context.Context, prjID, username, fullname string, rows int) (domain.GPQEvidence, error) {
	perm := a.perm(rows)
	records := make([]domain.GPQRow, rows)
	for i := range records {
		records[i] = domain.GPQRow{
			Seq:   i + 1,
			WbSeq: perm[i] + 1,
		}
	}
	ev := domain.GPQEvidence{
		ID:       util.NewID(),
		PrjID:    prjID,
		Username: username,
		Fullname: fullname,
		Records:  records,
	}
	created, err := a.store.CreateEvidence(ctx, ev)
	if err != nil {
		return domain.GPQEvidence{}, fmt.Errorf("create evidence: %w", err)
	}
	return created, nil
}

// ListEvidences returns evidence documents, optionally filtered by
// project.
func (a *App) ListEvidences(ctx context.Context, p domain.Principal, prjID string, limit, offset int) ([]domain.GPQEvidence, error) {
	if prjID != "" {
		if err := a.requireAccess(ctx, p, prjID); err != nil {
			return nil, err
		}
	}
	if limit <= 0 {
		limit = 50
	}
	return a.store.ListEvidences(ctx, prjID, limit, offset)
}

// GetEvidence returns one evidence document. Malformed ids are rejected
// before the lookup so they do not read as missing documents.
func (a *App) GetEvidence(ctx context.Context, p domain.Principal, id string) (domain.GPQEvidence, error) {
	if !util.IsValidID(id) {
		return domain.GPQEvidence{}, fmt.Errorf("%w: malformed evidence id", ErrValidation)
	}
	ev, found, err := a.store.GetEvidence(ctx, id)
	if err != nil {
		return domain.GPQEvidence{}, fmt.Errorf("fetch evidence: %w", err)
	}
	if !found {
		return domain.GPQEvidence{}, ErrNotFound
	}
	if err := a.requireEvidenceAccess(ctx, p, ev); err != nil {
		return domain.GPQEvidence{}, err
	}
	return ev, nil
}

// requireEvidenceAccess allows managers of the owning project and the
// evidence's own persona.
func (a *App) requireEvidenceAccess(ctx context.Context, p domain.Principal, ev domain.GPQEvidence) error {
	if p.Scope == domain.ScopePersona {
		if p.Context == ev.PrjID && p.Username == ev.Username {
			return nil
		}
		return ErrForbidden
	}
	return a.requireAccess(ctx, p, ev.PrjID)
}

// InitEvidence marks the form as opened. Idempotent: repeated calls
// return the first initiation timestamp and write the DB at most once.
// After a process restart the cache is reseeded from the DB and only
// the touched timestamp advances.
func (a *App) InitEvidence(ctx context.Context, p domain.Principal, id string) (int64, error) {
	ev, err := a.GetEvidence(ctx, p, id)
	if err != nil {
		return 0, err
	}
	mu := a.locks.Lock("gpq:" + id)
	defer mu.Unlock()

	// Fast path: someone already initiated in this process lifetime.
	if t, ok, err := a.cache.Get(ctx, id); err == nil && ok && t.Initiated != 0 {
		return t.Initiated, nil
	}

	timing := domain.EvidenceTiming{Initiated: ev.Initiated, Started: ev.Started, Touched: ev.Touched}
	ts := a.nowMillis()
	if timing.Initiated == 0 {
		// First visit: initiated and touched share one timestamp. The
		// DB write lands before the cache is seeded, so a failed write
		// never leaves a fast-path timestamp that was never persisted.
		timing.Initiated = ts
		timing.Touched = ts
		if err := a.store.MarkEvidenceInitiated(ctx, id, ts); err != nil {
			return 0, mapStoreErr(err, "mark initiated")
		}
		if err := a.cache.Put(ctx, id, timing); err != nil {
			return 0, fmt.Errorf("seed cache: %w", err)
		}
		a.publish(ctx, events.Event{Name: events.EvidenceInitiated, PrjID: ev.PrjID, Subject: id, At: ts})
		return ts, nil
	}

	// The form was initiated before this process started: reconcile the
	// cache from the DB and only advance touched.
	timing.Touched = ts
	if err := a.store.TouchEvidence(ctx, id, ts); err != nil {
		return 0, mapStoreErr(err, "touch evidence")
	}
	if err := a.cache.Put(ctx, id, timing); err != nil {
		return 0, fmt.Errorf("seed cache: %w", err)
	}
	return timing.Initiated, nil
}

// StartEvidence marks the form as actively started. Unconditional: the
// timestamp is overwritten on every call.
func (a *App) StartEvidence(ctx context.Context, p domain.Principal, id string) (int64, error) {
	ev, err := a.GetEvidence(ctx, p, id)
	if err != nil {
		return 0, err
	}
	mu := a.locks.Lock("gpq:" + id)
	defer mu.Unlock()

	ts := a.nowMillis()
	timing, ok, err := a.cache.Get(ctx, id)
	if err != nil || !ok {
		timing = domain.EvidenceTiming{Initiated: ev.Initiated, Started: ev.Started}
	}
	timing.Started = ts
	timing.Touched = ts
	if err := a.store.MarkEvidenceStarted(ctx, id, ts); err != nil {
		return 0, mapStoreErr(err, "mark started")
	}
	if err := a.cache.Put(ctx, id, timing); err != nil {
		return 0, fmt.Errorf("seed cache: %w", err)
	}
	a.publish(ctx, events.Event{Name: events.EvidenceStarted, PrjID: ev.PrjID, Subject: id, At: ts})
	return ts, nil
}

// UpdateEvidence saves one answered row. Elapsed is computed against
// the last touch known to the cache, falling back to the DB after a
// restart; saved and touched carry the same timestamp.
func (a *App) UpdateEvidence(ctx context.Context, p domain.Principal, id string, in RowInput) (int64, error) {
	ev, err := a.GetEvidence(ctx, p, id)
	if err != nil {
		return 0, err
	}
	if in.Seq < 1 || in.Seq > len(ev.Records) {
		return 0, fmt.Errorf("%w: seq %d outside 1..%d", ErrValidation, in.Seq, len(ev.Records))
	}
	mu := a.locks.Lock("gpq:" + id)
	defer mu.Unlock()

	ts := a.nowMillis()
	// Swap the touch timestamp and read the previous one in a single
	// cache operation, so saves racing from other processes sharing the
	// cache still see each other's touches.
	last, ok, err := a.cache.Touch(ctx, id, ts)
	if err != nil || !ok {
		// Restart-recovery: seed the cache from the persisted
		// timestamps and take over their last touch.
		last = ev.Touched
		timing := domain.EvidenceTiming{Initiated: ev.Initiated, Started: ev.Started, Touched: ts}
		if err := a.cache.Put(ctx, id, timing); err != nil {
			return 0, fmt.Errorf("seed cache: %w", err)
		}
	}
	if last == 0 {
		last = ev.Initiated
	}
	var elapsed int64
	if last > 0 {
		elapsed = ts - last
	}
	row := domain.GPQRow{
		Seq:       in.Seq,
		WbSeq:     in.WbSeq,
		Element:   in.Element,
		Statement: in.Statement,
		Saved:     ts,
		Elapsed:   elapsed,
	}
	if err := a.store.SaveEvidenceRow(ctx, id, row); err != nil {
		// The swap already advanced the cached touch past a write that
		// never landed; drop the entry so the next save reseeds from
		// the persisted timestamps.
		_ = a.cache.Drop(ctx, id)
		return 0, mapStoreErr(err, "save row")
	}
	return ts, nil
}

func mapStoreErr(err error, op string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrOutOfRange):
		return fmt.Errorf("%w: %s", ErrValidation, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
