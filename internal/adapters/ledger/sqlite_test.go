package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jobrunner/sceneport/internal/domain"
	"github.com/jobrunner/sceneport/internal/ports/output"
)

func record(location string, index int, group domain.BandGroup, handle string, at time.Time) output.JobRecord {
	key := domain.JobKey{RunID: "run-1", Location: location, SceneIndex: index, BandGroup: group}
	return output.JobRecord{
		RunID:       "run-1",
		Key:         key,
		Name:        location + "_" + handle,
		Folder:      location,
		Handle:      domain.JobHandle(handle),
		SubmittedAt: at,
	}
}

func TestLedgerRecordsAndLists(t *testing.T) {
	ctx := context.Background()
	l, err := Open(ctx, filepath.Join(t.TempDir(), "state", "ledger.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = l.Close() }()

	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	recs := []output.JobRecord{
		record("sf", 0, domain.BandGroupMultispectral, "op-1", base),
		record("sf", 0, domain.BandGroupPixelQA, "op-2", base.Add(time.Second)),
		record("berlin", 0, domain.BandGroupMultispectral, "op-3", base.Add(2*time.Second)),
	}
	for _, rec := range recs {
		if err := l.RecordSubmission(ctx, rec); err != nil {
			t.Fatalf("RecordSubmission(%s) error = %v", rec.Handle, err)
		}
	}

	got, err := l.Jobs(ctx, "sf")
	if err != nil {
		t.Fatalf("Jobs() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d jobs for sf, want 2", len(got))
	}
	if got[0].Handle != "op-1" || got[1].Handle != "op-2" {
		t.Errorf("order = %s, %s, want op-1, op-2", got[0].Handle, got[1].Handle)
	}
	if got[1].Key.BandGroup != domain.BandGroupPixelQA || got[1].State != domain.JobStateReady {
		t.Errorf("second record = %+v", got[1])
	}
	if got[0].Key != recs[0].Key {
		t.Errorf("Key = %+v, want %+v", got[0].Key, recs[0].Key)
	}
	if !got[0].SubmittedAt.Equal(base) {
		t.Errorf("SubmittedAt = %v, want %v", got[0].SubmittedAt, base)
	}

	none, err := l.Jobs(ctx, "nowhere")
	if err != nil || len(none) != 0 {
		t.Errorf("Jobs(nowhere) = %v, %v", none, err)
	}
}

func TestLedgerRecordState(t *testing.T) {
	ctx := context.Background()
	l, err := Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = l.Close() }()

	later := time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return later }

	if err := l.RecordSubmission(ctx, record("sf", 3, domain.BandGroupRadsatQA, "op-9", time.Time{})); err != nil {
		t.Fatalf("RecordSubmission() error = %v", err)
	}
	if err := l.RecordState(ctx, "op-9", domain.JobStateCompleted); err != nil {
		t.Fatalf("RecordState() error = %v", err)
	}

	got, err := l.Jobs(ctx, "sf")
	if err != nil {
		t.Fatalf("Jobs() error = %v", err)
	}
	if len(got) != 1 || got[0].State != domain.JobStateCompleted {
		t.Fatalf("Jobs() = %+v, want one completed job", got)
	}
	if !got[0].UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", got[0].UpdatedAt, later)
	}

	if err := l.RecordState(ctx, "op-unknown", domain.JobStateFailed); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("RecordState(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestLedgerRejectsMissingHandle(t *testing.T) {
	ctx := context.Background()
	l, err := Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = l.Close() }()

	err = l.RecordSubmission(ctx, record("sf", 0, domain.BandGroupPixelQA, "", time.Now()))
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("RecordSubmission() error = %v, want ErrInvalidInput", err)
	}
}
