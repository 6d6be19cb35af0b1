package download

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestStore_CreateAndGet(t *testing.T) {
	store := NewStore()

	job, err := store.Create("http://x/season1", KindSeason, Options{DownloadDir: "/tmp"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if job.Status != StatusQueued {
		t.Errorf("expected status queued, got %s", job.Status)
	}
	if job.Message != MsgQueuedSeason {
		t.Errorf("expected message %q, got %q", MsgQueuedSeason, job.Message)
	}
	if job.ID == "" || job.StartedAt.IsZero() {
		t.Error("expected id and started_at to be assigned")
	}

	got, err := store.Get(job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.URL != "http://x/season1" || got.Kind != KindSeason {
		t.Errorf("unexpected job %+v", got)
	}
}

func TestStore_CreateRejectsUnknownKind(t *testing.T) {
	store := NewStore()
	if _, err := store.Create("http://x", Kind("playlist"), Options{}); !errors.Is(err, ErrInvalidKind) {
		t.Errorf("expected ErrInvalidKind, got %v", err)
	}
}

func TestStore_NotFound(t *testing.T) {
	store := NewStore()

	if _, err := store.Get("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Get: expected ErrJobNotFound, got %v", err)
	}
	if _, err := store.Update("missing", (*Job).Start); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Update: expected ErrJobNotFound, got %v", err)
	}
}

func TestStore_ListInsertionOrder(t *testing.T) {
	store := NewStore()

	var ids []string
	for i := 0; i < 20; i++ {
		job, _ := store.Create(fmt.Sprintf("http://x/%d", i), KindSingle, Options{})
		ids = append(ids, job.ID)
	}

	jobs := store.List()
	if len(jobs) != len(ids) {
		t.Fatalf("expected %d jobs, got %d", len(ids), len(jobs))
	}
	for i, job := range jobs {
		if job.ID != ids[i] {
			t.Errorf("position %d: expected %s, got %s", i, ids[i], job.ID)
		}
	}
}

func TestStore_SnapshotIsImmutable(t *testing.T) {
	store := NewStore()
	job, _ := store.Create("http://x/season1", KindSeason, Options{})
	store.Update(job.ID, (*Job).Start)
	store.Update(job.ID, func(j *Job) error { return j.DiscoverEpisodes([]string{"a", "b"}) })

	snap := store.List()

	store.Update(job.ID, func(j *Job) error { return j.SetEpisodeStatus(1, EpisodeSkipped) })

	if snap[0].Episodes[1].Status != EpisodePending {
		t.Error("snapshot changed after store mutation")
	}
	if snap[0].SkippedEpisodes != 0 {
		t.Error("snapshot counters changed after store mutation")
	}

	// mutating a snapshot must not leak into the store
	snap[0].Message = "tampered"
	fresh, _ := store.Get(job.ID)
	if fresh.Message == "tampered" {
		t.Error("store shares state with snapshot")
	}
}

func TestStore_UpdateRejectsIllegalTransitions(t *testing.T) {
	store := NewStore()
	job, _ := store.Create("http://x/ep1", KindSingle, Options{})

	_, err := store.Update(job.ID, func(j *Job) error {
		j.Status = StatusCompleted
		j.Message = MsgCompleted
		return nil
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for queued->completed, got %v", err)
	}

	got, _ := store.Get(job.ID)
	if got.Status != StatusQueued {
		t.Errorf("rejected update was applied: status %s", got.Status)
	}

	store.Update(job.ID, (*Job).Start)
	store.Update(job.ID, (*Job).Complete)

	if _, err := store.Update(job.ID, func(j *Job) error { return j.Fail("x", "y") }); !errors.Is(err, ErrJobFinished) {
		t.Errorf("expected ErrJobFinished after completion, got %v", err)
	}
}

func TestStore_UpdateEnforcesErrorInvariant(t *testing.T) {
	store := NewStore()
	job, _ := store.Create("http://x/ep1", KindSingle, Options{})

	_, err := store.Update(job.ID, func(j *Job) error {
		j.Error = "should not be here"
		return nil
	})
	if !errors.Is(err, ErrInvalidJob) {
		t.Errorf("expected ErrInvalidJob, got %v", err)
	}
}

func TestStore_UpdateProtectsImmutableFields(t *testing.T) {
	store := NewStore()
	job, _ := store.Create("http://x/ep1", KindSingle, Options{})

	_, err := store.Update(job.ID, func(j *Job) error {
		j.URL = "http://elsewhere"
		return nil
	})
	if !errors.Is(err, ErrInvalidJob) {
		t.Errorf("expected ErrInvalidJob, got %v", err)
	}
}

func TestStore_ConcurrentEpisodeUpdates(t *testing.T) {
	store := NewStore()
	job, _ := store.Create("http://x/season1", KindSeason, Options{})
	store.Update(job.ID, (*Job).Start)

	const total = 50
	store.Update(job.ID, func(j *Job) error { return j.DiscoverEpisodes(make([]string, total)) })

	var wg sync.WaitGroup
	for n := 1; n <= total; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			status := EpisodeCompleted
			if n%5 == 0 {
				status = EpisodeSkipped
			}
			if _, err := store.Update(job.ID, func(j *Job) error { return j.SetEpisodeStatus(n, status) }); err != nil {
				t.Errorf("episode %d: %v", n, err)
			}
		}(n)
	}

	// readers run alongside writers and must always see consistent counters
	stop := make(chan struct{})
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		for {
			select {
			case <-stop:
				return
			default:
			}
			for _, j := range store.List() {
				assertCountersConsistent(t, j)
			}
		}
	}()

	wg.Wait()
	close(stop)
	<-readerDone

	got, _ := store.Get(job.ID)
	if got.CompletedEpisodes != 40 || got.SkippedEpisodes != 10 || got.TotalEpisodes != total {
		t.Errorf("unexpected counters: completed=%d skipped=%d total=%d",
			got.CompletedEpisodes, got.SkippedEpisodes, got.TotalEpisodes)
	}
}

func TestStore_ListIdempotent(t *testing.T) {
	store := NewStore()
	for i := 0; i < 5; i++ {
		job, _ := store.Create(fmt.Sprintf("http://x/%d", i), KindSeason, Options{})
		store.Update(job.ID, (*Job).Start)
		store.Update(job.ID, func(j *Job) error { return j.DiscoverEpisodes(make([]string, 3)) })
	}

	first, _ := json.Marshal(store.List())
	second, _ := json.Marshal(store.List())

	if !bytes.Equal(first, second) {
		t.Error("two snapshots without mutation differ")
	}
}

// Two polls with one job finishing in between differ only in that job.
func TestStore_SnapshotsDifferOnlyInChangedJob(t *testing.T) {
	store := NewStore()
	var ids []string
	for i := 0; i < 4; i++ {
		job, _ := store.Create(fmt.Sprintf("http://x/%d", i), KindSingle, Options{})
		store.Update(job.ID, (*Job).Start)
		ids = append(ids, job.ID)
	}

	before := marshalEach(t, store.List())
	store.Update(ids[2], (*Job).Complete)
	after := marshalEach(t, store.List())

	for i := range before {
		changed := !bytes.Equal(before[i], after[i])
		if changed != (i == 2) {
			t.Errorf("job %d: changed=%v", i, changed)
		}
	}
}

func TestStore_ObserverSeesEveryPublication(t *testing.T) {
	store := NewStore()

	var mu sync.Mutex
	var created, updated int
	store.Observe(func(job *Job, isNew bool) {
		mu.Lock()
		defer mu.Unlock()
		if isNew {
			created++
		} else {
			updated++
		}
	})

	job, _ := store.Create("http://x/ep1", KindSingle, Options{})
	store.Update(job.ID, (*Job).Start)
	store.Update(job.ID, func(j *Job) error { return j.Fail("", "boom") })
	// rejected update is not published
	store.Update(job.ID, (*Job).Complete)

	if created != 1 || updated != 2 {
		t.Errorf("expected 1 create and 2 updates, got %d and %d", created, updated)
	}
}

func TestStore_Restore(t *testing.T) {
	store := NewStore()
	existing, _ := store.Create("http://x/a", KindSingle, Options{})

	restored := store.Restore([]*Job{
		{ID: "one", URL: "http://x/1", Kind: KindSingle, Status: StatusCompleted, Message: MsgCompleted},
		{ID: existing.ID, URL: "http://x/dup", Kind: KindSingle, Status: StatusQueued, Message: MsgQueued},
		{ID: "two", URL: "http://x/2", Kind: KindSingle, Status: StatusQueued, Message: MsgQueued},
	})

	if restored != 2 {
		t.Errorf("expected 2 restored jobs, got %d", restored)
	}

	jobs := store.List()
	if len(jobs) != 3 || jobs[1].ID != "one" || jobs[2].ID != "two" {
		t.Errorf("unexpected order after restore")
	}
}

func marshalEach(t *testing.T, jobs []*Job) [][]byte {
	t.Helper()
	out := make([][]byte, len(jobs))
	for i, j := range jobs {
		data, err := json.Marshal(j)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		out[i] = data
	}
	return out
}

func assertCountersConsistent(t *testing.T, j *Job) {
	t.Helper()
	if j.CompletedEpisodes+j.SkippedEpisodes > j.TotalEpisodes {
		t.Errorf("job %s: completed %d + skipped %d > total %d",
			j.ID, j.CompletedEpisodes, j.SkippedEpisodes, j.TotalEpisodes)
	}
	if j.Kind == KindSeason && j.TotalEpisodes != len(j.Episodes) {
		t.Errorf("job %s: total %d != %d episodes", j.ID, j.TotalEpisodes, len(j.Episodes))
	}
	if j.Status == StatusCompleted && !j.AllEpisodesTerminal() {
		t.Errorf("job %s: completed with unfinished episodes", j.ID)
	}
	if (j.Status == StatusFailed) != (j.Error != "") {
		t.Errorf("job %s: status %s with error %q", j.ID, j.Status, j.Error)
	}
}

func TestStore_CountByStatus(t *testing.T) {
	s := NewStore()

	a, _ := s.Create("https://www.svtplay.se/video/a", KindSingle, Options{})
	s.Create("https://www.svtplay.se/video/b", KindSingle, Options{})
	if _, err := s.Update(a.ID, (*Job).Start); err != nil {
		t.Fatal(err)
	}

	counts := s.CountByStatus()
	if len(counts) != len(Statuses()) {
		t.Errorf("expected every status, got %v", counts)
	}
	if counts[StatusQueued] != 1 || counts[StatusDownloading] != 1 || counts[StatusFailed] != 0 {
		t.Errorf("unexpected counts %v", counts)
	}
}
