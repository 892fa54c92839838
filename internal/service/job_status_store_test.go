package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/RubachokBoss/exam-grading/import-service/internal/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func newStore(db *memDB, registry *JobRegistry) JobStatusStore {
	return NewJobStatusStore(db.repositories(newMemStorage()), registry, zerolog.Nop())
}

func seedJob(db *memDB, status models.ImportJobStatus) models.ImportJob {
	now := time.Now()
	job := models.ImportJob{
		ID:          uuid.New().String(),
		ArchiveName: "batch.zip",
		ExamID:      testExam,
		Status:      status.String(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	db.jobs[job.ID] = job
	db.jobOrder = append(db.jobOrder, job.ID)
	return job
}

func TestJobStatusStoreNotFound(t *testing.T) {
	store := newStore(newMemDB(), NewJobRegistry(10))
	ctx := context.Background()

	for _, id := range []string{uuid.New().String(), "not-a-uuid"} {
		if _, err := store.GetStatus(ctx, id); KindOf(err) != KindNotFound {
			t.Errorf("GetStatus(%q) kind = %v, want not found", id, KindOf(err))
		}
		if _, err := store.GetResults(ctx, id); KindOf(err) != KindNotFound {
			t.Errorf("GetResults(%q) kind = %v, want not found", id, KindOf(err))
		}
		if err := store.Cancel(ctx, id); KindOf(err) != KindNotFound {
			t.Errorf("Cancel(%q) kind = %v, want not found", id, KindOf(err))
		}
	}
}

func TestJobStatusStoreResultsRequireCompletion(t *testing.T) {
	db := newMemDB()
	store := newStore(db, NewJobRegistry(10))

	for _, status := range []models.ImportJobStatus{models.ImportJobStatusPending, models.ImportJobStatusRunning, models.ImportJobStatusFailed} {
		job := seedJob(db, status)
		if _, err := store.GetResults(context.Background(), job.ID); KindOf(err) != KindInvalidOperation {
			t.Errorf("%s: kind = %v, want invalid operation", status, KindOf(err))
		}
	}
}

func TestJobStatusStoreResults(t *testing.T) {
	db := newMemDB()
	store := newStore(db, NewJobRegistry(10))

	job := seedJob(db, models.ImportJobStatusCompleted)
	started := job.CreatedAt
	completed := started.Add(1500 * time.Millisecond)
	job.StartedAt, job.CompletedAt = &started, &completed
	job.TotalFiles, job.ProcessedFiles, job.SuccessCount = 2, 2, 2
	db.jobs[job.ID] = job

	jobID := job.ID
	db.submissions = []models.Submission{
		{ID: "s1", ExamID: testExam, StudentCode: "SE000001", OriginalFileName: "a.py", ImportJobID: &jobID},
		{ID: "s2", ExamID: testExam, StudentCode: "SE000002", OriginalFileName: "b.py", ImportJobID: &jobID},
	}
	db.groups = []models.DuplicateGroup{{ID: "g1", ExamID: testExam, SimilarityScore: 1, SubmissionIDs: []string{"s1", "s2"}}}

	res, err := store.GetResults(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetResults: %v", err)
	}
	if len(res.Imported) != 2 {
		t.Errorf("imported = %d, want 2", len(res.Imported))
	}
	if len(res.DuplicateGroups) != 1 || len(res.DuplicateGroups[0].Members) != 2 {
		t.Fatalf("groups = %+v", res.DuplicateGroups)
	}
	if res.DuplicateGroups[0].Members[1].StudentCode != "SE000002" {
		t.Errorf("member = %+v", res.DuplicateGroups[0].Members[1])
	}
	if res.Violations == nil {
		t.Error("violations should be an empty list, not nil")
	}
	if res.Summary.ProcessingSeconds != 1.5 || res.Summary.DuplicateGroups != 1 {
		t.Errorf("summary = %+v", res.Summary)
	}
}

func TestJobStatusStoreCancelOrphan(t *testing.T) {
	db := newMemDB()
	store := newStore(db, NewJobRegistry(10))
	job := seedJob(db, models.ImportJobStatusRunning)

	if err := store.Cancel(context.Background(), job.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	got := db.job(job.ID)
	if got.Status != models.ImportJobStatusFailed.String() {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != msgCancelled || got.CompletedAt == nil {
		t.Errorf("cancelled job = %+v", got)
	}
}

func TestJobStatusStoreCancelRefusedWhileCompleting(t *testing.T) {
	db := newMemDB()
	registry := NewJobRegistry(10)
	store := newStore(db, registry)
	job := seedJob(db, models.ImportJobStatusRunning)
	registry.add(job.ID).seal()

	if err := store.Cancel(context.Background(), job.ID); KindOf(err) != KindInvalidOperation {
		t.Errorf("kind = %v, want invalid operation", KindOf(err))
	}
	if got := db.job(job.ID); got.Status != models.ImportJobStatusRunning.String() {
		t.Errorf("status = %s, want running", got.Status)
	}
}

func TestJobStatusStoreCancelLosesRaceWithFinish(t *testing.T) {
	db := newMemDB()
	store := newStore(db, NewJobRegistry(10))
	job := seedJob(db, models.ImportJobStatusRunning)

	// The job finishes between the status read and the update.
	done := job
	done.Status = models.ImportJobStatusCompleted.String()
	db.jobs[job.ID] = done

	err := store.(*jobStatusStore).cancelLoaded(context.Background(), &job)
	if KindOf(err) != KindInvalidOperation {
		t.Errorf("kind = %v, want invalid operation", KindOf(err))
	}
	if got := db.job(job.ID); got.Status != models.ImportJobStatusCompleted.String() {
		t.Errorf("status = %s, want completed to stay", got.Status)
	}
}

func TestJobStatusStoreCancelPropagatesStoreError(t *testing.T) {
	db := newMemDB()
	store := newStore(db, NewJobRegistry(10))
	job := seedJob(db, models.ImportJobStatusPending)
	db.updateErr = errors.New("connection reset")

	if err := store.Cancel(context.Background(), job.ID); KindOf(err) != KindInternal {
		t.Errorf("kind = %v, want internal", KindOf(err))
	}
}

func TestJobStatusStoreProgressLog(t *testing.T) {
	db := newMemDB()
	registry := NewJobRegistry(2)
	store := newStore(db, registry)
	job := seedJob(db, models.ImportJobStatusRunning)

	tracker := registry.add(job.ID)
	tracker.Log("one")
	tracker.Log("two")
	tracker.Log("three")

	status, err := store.GetStatus(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if !status.IsActive {
		t.Error("job with a tracker should be active")
	}
	want := []string{formatDropped(1), "two", "three"}
	if len(status.ProgressLog) != len(want) {
		t.Fatalf("progress = %v, want %v", status.ProgressLog, want)
	}
	for i := range want {
		if status.ProgressLog[i] != want[i] {
			t.Errorf("progress[%d] = %q, want %q", i, status.ProgressLog[i], want[i])
		}
	}
	if status.StatusDescription != "Processing archive" {
		t.Errorf("description = %q", status.StatusDescription)
	}
}

func TestJobStatusStoreList(t *testing.T) {
	db := newMemDB()
	store := newStore(db, NewJobRegistry(10))
	for i := 0; i < 3; i++ {
		seedJob(db, models.ImportJobStatusCompleted)
	}

	if _, err := store.List(context.Background(), "", 10, 0); KindOf(err) != KindValidation {
		t.Errorf("missing exam kind = %v, want validation", KindOf(err))
	}

	resp, err := store.List(context.Background(), testExam, 2, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if resp.Total != 3 || len(resp.Jobs) != 2 || resp.Limit != 2 {
		t.Errorf("list = total %d, jobs %d, limit %d", resp.Total, len(resp.Jobs), resp.Limit)
	}

	resp, err = store.List(context.Background(), testExam, 1000, -5)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if resp.Limit != maxListLimit || resp.Offset != 0 {
		t.Errorf("limit/offset = %d/%d, want %d/0", resp.Limit, resp.Offset, maxListLimit)
	}
}
