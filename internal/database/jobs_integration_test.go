package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"clip-merger/internal/merge"
	"clip-merger/internal/transcoder"
)

func testJob(id string) *merge.MergeJob {
	intro := merge.NewAsset("/uploads/intro.mp4", merge.RoleIntro)
	return &merge.MergeJob{
		ID: id,
		Clips: []merge.MediaAsset{
			merge.NewAsset("/uploads/a.mp4", merge.RoleClip),
			merge.NewAsset("/uploads/b.mp4", merge.RoleClip),
		},
		Intro:         &intro,
		Preset:        "720p",
		Normalization: merge.NormalizationSpec{Width: 1280, Height: 720, FrameRate: merge.FrameRate},
		Transition:    merge.NewTransitionSpec(merge.TransitionFade, 0.6),
		Audio:         merge.DefaultAudioPolicy(),
		OutputName:    "holiday.mp4",
	}
}

func TestJobLifecycleIntegration(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()
	job := testJob("job-success")

	if err := db.JobStarted(ctx, job); err != nil {
		t.Fatalf("JobStarted: %v", err)
	}

	got, err := db.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != JobRunning {
		t.Errorf("Status = %q, want running", got.Status)
	}
	if got.ClipCount != 2 || !got.HasIntro || got.HasOutro {
		t.Errorf("unexpected request summary: %+v", got)
	}
	if got.FinishedAt != nil {
		t.Error("running job should have no finish time")
	}
	if stats := db.GetStats(); stats.RunningJobs != 1 || stats.TotalJobs != 1 {
		t.Errorf("stats while running = %+v", stats)
	}

	res := &merge.Result{
		JobID:      job.ID,
		Clips:      3,
		Duration:   28.8,
		CrossFade:  true,
		Resolution: merge.Resolution{Width: 1280, Height: 720},
		Diagnostics: []merge.Diagnostic{
			{Stage: merge.StageProbe, Input: "/tmp/norm_1.mp4", Message: "probe failure: duration"},
		},
	}
	if err := db.JobFinished(ctx, job, res, nil); err != nil {
		t.Fatalf("JobFinished: %v", err)
	}

	got, err = db.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != JobSucceeded {
		t.Errorf("Status = %q, want succeeded", got.Status)
	}
	if got.ClipsMerged != 3 || got.Duration != 28.8 || !got.CrossFade {
		t.Errorf("outcome not stored: %+v", got)
	}
	if got.Transition != "fade" || got.TransitionDuration != 0.6 {
		t.Errorf("transition = %q/%v", got.Transition, got.TransitionDuration)
	}
	if got.OutputName != "holiday.mp4" || got.AudioMode != "original" {
		t.Errorf("request fields = %q/%q", got.OutputName, got.AudioMode)
	}
	if got.FinishedAt == nil {
		t.Error("finished job should have a finish time")
	}
	if len(got.Diagnostics) != 1 || got.Diagnostics[0].Stage != "probe" {
		t.Errorf("Diagnostics = %+v", got.Diagnostics)
	}
	if stats := db.GetStats(); stats.RunningJobs != 0 || stats.SucceededJobs != 1 || stats.TotalJobs != 1 {
		t.Errorf("stats after success = %+v", stats)
	}
}

func TestJobFailureIntegration(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()
	job := testJob("job-timeout")

	if err := db.JobStarted(ctx, job); err != nil {
		t.Fatal(err)
	}
	jobErr := fmt.Errorf("%w: %w", merge.ErrConcatenationFailure, transcoder.ErrTimeout)
	if err := db.JobFinished(ctx, job, &merge.Result{JobID: job.ID}, jobErr); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != JobFailed || got.ErrorKind != "timeout" || got.Error == "" {
		t.Errorf("failure not stored: %+v", got)
	}
	if stats := db.GetStats(); stats.FailedJobs != 1 || stats.RunningJobs != 0 {
		t.Errorf("stats after failure = %+v", stats)
	}
}

func TestJobFinishedWithoutStartIntegration(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()
	job := testJob("job-early")

	if err := db.JobFinished(ctx, job, nil, errors.New("workspace: permission denied")); err != nil {
		t.Fatalf("JobFinished: %v", err)
	}
	got, err := db.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != JobFailed || got.ErrorKind != "internal" {
		t.Errorf("got %+v", got)
	}
	if stats := db.GetStats(); stats.TotalJobs != 1 || stats.FailedJobs != 1 || stats.RunningJobs != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestGetJobNotFoundIntegration(t *testing.T) {
	db, _ := setupTestDB(t)
	if _, err := db.GetJob(context.Background(), "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("GetJob error = %v, want ErrJobNotFound", err)
	}
}

func TestListJobsIntegration(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	for i := range 5 {
		job := testJob(fmt.Sprintf("job-%d", i))
		if err := db.JobStarted(ctx, job); err != nil {
			t.Fatal(err)
		}
		var jobErr error
		if i%2 == 1 {
			jobErr = errors.New("boom")
		}
		if err := db.JobFinished(ctx, job, &merge.Result{JobID: job.ID}, jobErr); err != nil {
			t.Fatal(err)
		}
	}

	list, err := db.ListJobs(ctx, ListOptions{PageSize: 2})
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if list.TotalItems != 5 || list.TotalPages != 3 || len(list.Items) != 2 {
		t.Errorf("page 1 = total %d pages %d items %d", list.TotalItems, list.TotalPages, len(list.Items))
	}
	// newest first
	if list.Items[0].ID != "job-4" {
		t.Errorf("first item = %s, want job-4", list.Items[0].ID)
	}

	list, err = db.ListJobs(ctx, ListOptions{Page: 3, PageSize: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Items) != 1 || list.Items[0].ID != "job-0" {
		t.Errorf("last page = %+v", list.Items)
	}

	list, err = db.ListJobs(ctx, ListOptions{Status: JobFailed})
	if err != nil {
		t.Fatal(err)
	}
	if list.TotalItems != 2 {
		t.Errorf("failed jobs = %d, want 2", list.TotalItems)
	}
	for _, j := range list.Items {
		if j.Status != JobFailed {
			t.Errorf("status filter leaked %s", j.Status)
		}
	}

	list, err = db.ListJobs(ctx, ListOptions{Page: 10})
	if err != nil {
		t.Fatal(err)
	}
	if list.Items == nil || len(list.Items) != 0 {
		t.Errorf("out-of-range page should be empty, got %v", list.Items)
	}
}

func TestPruneJobsIntegration(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	done := testJob("old-done")
	running := testJob("old-running")
	for _, j := range []*merge.MergeJob{done, running} {
		if err := db.JobStarted(ctx, j); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.JobFinished(ctx, done, nil, nil); err != nil {
		t.Fatal(err)
	}

	n, err := db.PruneJobs(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("PruneJobs: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d, want 1", n)
	}
	if _, err := db.GetJob(ctx, running.ID); err != nil {
		t.Errorf("running job was pruned: %v", err)
	}
	if stats := db.GetStats(); stats.TotalJobs != 1 || stats.RunningJobs != 1 {
		t.Errorf("stats after prune = %+v", stats)
	}
}

func TestMarkInterruptedIntegration(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	job := testJob("stuck")
	if err := db.JobStarted(ctx, job); err != nil {
		t.Fatal(err)
	}

	n, err := db.MarkInterrupted(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("MarkInterrupted = %d, want 1", n)
	}
	got, _ := db.GetJob(ctx, job.ID)
	if got.Status != JobFailed || got.ErrorKind != "interrupted" {
		t.Errorf("got %+v", got)
	}
	if stats := db.GetStats(); stats.RunningJobs != 0 || stats.FailedJobs != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestConcurrentJobsIntegration(t *testing.T) {
	db, _ := setupTestDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := range 20 {
		wg.Go(func() {
			job := testJob(fmt.Sprintf("c-%d", i))
			if err := db.JobStarted(ctx, job); err != nil {
				errs <- err
				return
			}
			if err := db.JobFinished(ctx, job, &merge.Result{JobID: job.ID, Clips: 1}, nil); err != nil {
				errs <- err
			}
		})
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent job: %v", err)
	}

	if stats := db.GetStats(); stats.TotalJobs != 20 || stats.SucceededJobs != 20 {
		t.Errorf("stats = %+v", stats)
	}
}
