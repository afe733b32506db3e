package application

import (
	"errors"
	"testing"
	"time"

	"github.com/jobrunner/sceneport/internal/domain"
)

func key(loc string, idx int, g domain.BandGroup) domain.JobKey {
	return domain.JobKey{RunID: "run", Location: loc, SceneIndex: idx, BandGroup: g}
}

func TestJobRegistryInsert(t *testing.T) {
	reg := NewJobRegistry()
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	reg.Insert("run", key("a", 0, domain.BandGroupPixelQA), "a_00000_2013-04-03_pixelqa", "op-2", base.Add(time.Second))
	reg.Insert("run", key("a", 0, domain.BandGroupMultispectral), "a_00000_2013-04-03_multispectral", "op-1", base)

	if reg.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", reg.Len())
	}
	if !reg.Contains(key("a", 0, domain.BandGroupPixelQA)) {
		t.Error("Contains() = false for an inserted key")
	}
	if reg.Contains(key("b", 0, domain.BandGroupPixelQA)) {
		t.Error("keys of different locations must not collide")
	}

	jobs := reg.Jobs()
	if jobs[0].Handle != "op-1" || jobs[1].Handle != "op-2" {
		t.Errorf("Jobs() not ordered by submission: %v", jobs)
	}
	if jobs[0].State != domain.JobStateReady {
		t.Errorf("new job state = %s, want READY", jobs[0].State)
	}

}

func TestJobRegistryInsertKeepsExistingEntry(t *testing.T) {
	reg := NewJobRegistry()
	now := time.Now()
	k := key("a", 0, domain.BandGroupPixelQA)

	if err := reg.Insert("run", k, "a_00000_2013-04-03_pixelqa", "op-1", now); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	err := reg.Insert("run", k, "a_00000_2013-04-03_pixelqa", "op-2", now)
	if !errors.Is(err, domain.ErrDuplicateJob) {
		t.Fatalf("second Insert() error = %v, want ErrDuplicateJob", err)
	}
	if jobs := reg.Jobs(); len(jobs) != 1 || jobs[0].Handle != "op-1" {
		t.Errorf("existing entry replaced: %+v", jobs)
	}

	// the same location and scene in another run is a different job
	other := k
	other.RunID = "run-2"
	if err := reg.Insert("run-2", other, "a_00000_2013-04-03_pixelqa", "op-3", now); err != nil {
		t.Fatalf("Insert() for another run error = %v", err)
	}
	if reg.Len() != 2 {
		t.Errorf("Len() = %d, want 2", reg.Len())
	}
}

func TestJobRegistryZeroValueInsert(t *testing.T) {
	var reg JobRegistry
	reg.Insert("run", key("a", 0, domain.BandGroupRadsatQA), "n", "op", time.Now())
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}
}

func TestAdvance(t *testing.T) {
	ms := key("a", 0, domain.BandGroupMultispectral)
	pq := key("a", 0, domain.BandGroupPixelQA)
	rq := key("a", 0, domain.BandGroupRadsatQA)
	other := key("b", 0, domain.BandGroupMultispectral)

	newReg := func() JobRegistry {
		reg := NewJobRegistry()
		now := time.Now()
		reg.Insert("run", ms, "ms", "op-1", now)
		reg.Insert("run", pq, "pq", "op-2", now)
		reg.Insert("run", rq, "rq", "op-3", now)
		reg.Insert("run", other, "other", "op-4", now)
		return reg
	}

	tests := []struct {
		name         string
		polled       map[domain.JobKey]domain.JobState
		wantActive   int
		wantFinished []string
		wantKept     []domain.JobKey
	}{
		{
			name:       "nothing polled keeps everything",
			polled:     map[domain.JobKey]domain.JobState{},
			wantActive: 4,
			wantKept:   []domain.JobKey{ms, pq, rq, other},
		},
		{
			name: "active states are kept",
			polled: map[domain.JobKey]domain.JobState{
				ms: domain.JobStateRunning,
				pq: domain.JobStateReady,
			},
			wantActive: 4,
			wantKept:   []domain.JobKey{ms, pq, rq, other},
		},
		{
			name: "every terminal state is dropped",
			polled: map[domain.JobKey]domain.JobState{
				ms:    domain.JobStateCompleted,
				pq:    domain.JobStateFailed,
				rq:    domain.JobStateCancelled,
				other: domain.JobStateUnknown,
			},
			wantActive:   0,
			wantFinished: []string{"ms", "other", "pq", "rq"},
		},
		{
			name: "mixed",
			polled: map[domain.JobKey]domain.JobState{
				ms:    domain.JobStateCompleted,
				other: domain.JobStateRunning,
			},
			wantActive:   3,
			wantFinished: []string{"ms"},
			wantKept:     []domain.JobKey{pq, rq, other},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newReg()
			next, active, finished := Advance(reg, tt.polled)

			if active != tt.wantActive {
				t.Errorf("active = %d, want %d", active, tt.wantActive)
			}
			if active != next.Len() {
				t.Errorf("active = %d but registry holds %d", active, next.Len())
			}
			if len(finished) != len(tt.wantFinished) {
				t.Fatalf("finished = %d jobs, want %d", len(finished), len(tt.wantFinished))
			}
			for i, f := range finished {
				if f.Name != tt.wantFinished[i] {
					t.Errorf("finished[%d] = %s, want %s", i, f.Name, tt.wantFinished[i])
				}
				if f.State != tt.polled[f.Key] {
					t.Errorf("finished[%d] state = %s, want %s", i, f.State, tt.polled[f.Key])
				}
				if f.RunID != "run" {
					t.Errorf("finished[%d] run = %q", i, f.RunID)
				}
			}
			for _, k := range tt.wantKept {
				if !next.Contains(k) {
					t.Errorf("key %s should be kept", k)
				}
			}

			if reg.Len() != 4 {
				t.Errorf("input registry was modified: Len() = %d", reg.Len())
			}
		})
	}
}

func TestAdvanceRecordsState(t *testing.T) {
	reg := NewJobRegistry()
	k := key("a", 0, domain.BandGroupMultispectral)
	reg.Insert("run", k, "ms", "op-1", time.Now())

	next, _, _ := Advance(reg, map[domain.JobKey]domain.JobState{k: domain.JobStateRunning})

	jobs := next.Jobs()
	if len(jobs) != 1 || jobs[0].State != domain.JobStateRunning {
		t.Errorf("state not recorded: %+v", jobs)
	}
	if reg.Jobs()[0].State != domain.JobStateReady {
		t.Error("input registry state changed")
	}
}

func TestAdvanceMonotone(t *testing.T) {
	reg := NewJobRegistry()
	now := time.Now()
	for i := 0; i < 10; i++ {
		reg.Insert("run", key("a", i, domain.BandGroupMultispectral), "n", domain.JobHandle("op"), now)
	}

	polled := make(map[domain.JobKey]domain.JobState)
	for i := 0; i < 10; i += 3 {
		polled[key("a", i, domain.BandGroupMultispectral)] = domain.JobStateCompleted
	}

	next, active, finished := Advance(reg, polled)
	if active > reg.Len() {
		t.Errorf("active %d exceeds previous size %d", active, reg.Len())
	}
	if active+len(finished) != reg.Len() {
		t.Errorf("active %d + finished %d != %d", active, len(finished), reg.Len())
	}
	if next.Len() != 6 {
		t.Errorf("Len() = %d, want 6", next.Len())
	}
}
