package service

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/RubachokBoss/exam-grading/import-service/internal/models"
	"github.com/RubachokBoss/exam-grading/import-service/internal/repository"
)

const (
	testSubject  = "subj-1"
	testSemester = "sem-1"
	testExam     = "exam-1"
	testUser     = "user-1"
)

// memDB is the shared state behind the in-memory repositories.
type memDB struct {
	mu          sync.Mutex
	jobs        map[string]models.ImportJob
	jobOrder    []string
	submissions []models.Submission
	violations  []models.Violation
	groups      []models.DuplicateGroup
	updateErr   error
}

func newMemDB() *memDB {
	return &memDB{jobs: make(map[string]models.ImportJob)}
}

func (db *memDB) repositories(storage repository.FileStorage) Repositories {
	return Repositories{
		Jobs:        &memJobs{db},
		Submissions: &memSubmissions{db},
		Violations:  &memViolations{db},
		Groups:      &memGroups{db},
		References:  &memReferences{},
		Storage:     storage,
	}
}

func (db *memDB) job(id string) models.ImportJob {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.jobs[id]
}

func (db *memDB) violationsOfType(t models.ViolationType) []models.Violation {
	db.mu.Lock()
	defer db.mu.Unlock()
	var out []models.Violation
	for _, v := range db.violations {
		if v.Type == t.String() {
			out = append(out, v)
		}
	}
	return out
}

type memJobs struct{ db *memDB }

func (r *memJobs) Create(_ context.Context, job *models.ImportJob) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.jobs[job.ID] = *job
	r.db.jobOrder = append(r.db.jobOrder, job.ID)
	return nil
}

func (r *memJobs) GetByID(_ context.Context, id string) (*models.ImportJob, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	job, ok := r.db.jobs[id]
	if !ok {
		return nil, nil
	}
	return &job, nil
}

func (r *memJobs) Update(_ context.Context, job *models.ImportJob) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if r.db.updateErr != nil {
		return r.db.updateErr
	}
	stored, ok := r.db.jobs[job.ID]
	if !ok || models.ImportJobStatus(stored.Status).IsTerminal() {
		return repository.ErrJobFinished
	}
	r.db.jobs[job.ID] = *job
	return nil
}

func (r *memJobs) ListByExam(_ context.Context, examID string, limit, offset int) ([]models.ImportJob, int, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var all []models.ImportJob
	for _, id := range r.db.jobOrder {
		if job := r.db.jobs[id]; job.ExamID == examID {
			all = append(all, job)
		}
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (r *memJobs) FailUnfinished(_ context.Context, owner, message string) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var n int64
	for id, job := range r.db.jobs {
		if job.Owner == owner && !models.ImportJobStatus(job.Status).IsTerminal() {
			msg := message
			job.Status = models.ImportJobStatusFailed.String()
			job.ErrorMessage = &msg
			r.db.jobs[id] = job
			n++
		}
	}
	return n, nil
}

func (r *memJobs) Ping(context.Context) error { return nil }

type memSubmissions struct{ db *memDB }

func (r *memSubmissions) Create(_ context.Context, sub *models.Submission) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, s := range r.db.submissions {
		if s.ExamID == sub.ExamID && s.StudentCode == sub.StudentCode {
			return repository.ErrDuplicateSubmission
		}
	}
	r.db.submissions = append(r.db.submissions, *sub)
	return nil
}

func (r *memSubmissions) GetByID(_ context.Context, id string) (*models.Submission, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, s := range r.db.submissions {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, nil
}

func (r *memSubmissions) GetByExamAndStudent(_ context.Context, examID, code string) (*models.Submission, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, s := range r.db.submissions {
		if s.ExamID == examID && s.StudentCode == code {
			return &s, nil
		}
	}
	return nil, nil
}

func (r *memSubmissions) ListByExam(_ context.Context, examID string) ([]models.Submission, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.Submission
	for _, s := range r.db.submissions {
		if s.ExamID == examID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memSubmissions) ListByImportJob(_ context.Context, jobID string) ([]models.Submission, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.Submission
	for _, s := range r.db.submissions {
		if s.ImportJobID != nil && *s.ImportJobID == jobID {
			out = append(out, s)
		}
	}
	return out, nil
}

type memViolations struct{ db *memDB }

func (r *memViolations) Create(_ context.Context, v *models.Violation) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.violations = append(r.db.violations, *v)
	return nil
}

func (r *memViolations) ListByImportJob(_ context.Context, jobID string) ([]models.Violation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.Violation
	for _, v := range r.db.violations {
		if v.ImportJobID != nil && *v.ImportJobID == jobID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (r *memViolations) ListBySubmission(_ context.Context, submissionID string) ([]models.Violation, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []models.Violation
	for _, v := range r.db.violations {
		if v.SubmissionID != nil && *v.SubmissionID == submissionID {
			out = append(out, v)
		}
	}
	return out, nil
}

type memGroups struct{ db *memDB }

func (r *memGroups) Create(_ context.Context, g *models.DuplicateGroup) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.groups = append(r.db.groups, *g)
	for i := range r.db.submissions {
		for _, id := range g.SubmissionIDs {
			if r.db.submissions[i].ID == id {
				gid := g.ID
				r.db.submissions[i].DuplicateGroupID = &gid
			}
		}
	}
	return nil
}

func (r *memGroups) ListByImportJob(_ context.Context, jobID string) ([]models.DuplicateGroup, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	inJob := make(map[string]bool)
	for _, s := range r.db.submissions {
		if s.ImportJobID != nil && *s.ImportJobID == jobID {
			inJob[s.ID] = true
		}
	}
	var out []models.DuplicateGroup
	for _, g := range r.db.groups {
		for _, id := range g.SubmissionIDs {
			if inJob[id] {
				out = append(out, g)
				break
			}
		}
	}
	return out, nil
}

type memReferences struct{}

func (memReferences) SubjectExists(_ context.Context, id string) (bool, error) {
	return id == testSubject, nil
}

func (memReferences) SemesterExists(_ context.Context, id string) (bool, error) {
	return id == testSemester, nil
}

func (memReferences) GetExam(_ context.Context, id string) (*repository.Exam, error) {
	switch id {
	case testExam:
		return &repository.Exam{ID: testExam, SubjectID: testSubject, SemesterID: testSemester}, nil
	case "exam-other":
		return &repository.Exam{ID: id, SubjectID: "subj-2", SemesterID: testSemester}, nil
	}
	return nil, nil
}

func (memReferences) ResolveUser(_ context.Context, identity string) (string, error) {
	switch identity {
	case testUser, "teacher", "teacher@example.com":
		return testUser, nil
	}
	return "", nil
}

// memStorage keeps stored objects in memory and fails Put for keys that
// contain failOn.
type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	failOn  string
	// afterPut runs after every successful Put with the number stored so far.
	afterPut func(n int)
}

func newMemStorage() *memStorage {
	return &memStorage{objects: make(map[string][]byte)}
}

func (s *memStorage) Put(_ context.Context, key string, r io.Reader, _ int64) error {
	if s.failOn != "" && strings.Contains(key, s.failOn) {
		return errors.New("storage unavailable")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.objects[key] = data
	n := len(s.objects)
	hook := s.afterPut
	s.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	return nil
}

func (s *memStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

func (s *memStorage) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *memStorage) Provider() string { return "memory" }

func (s *memStorage) keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// inlineScheduler runs every task before Submit returns.
type inlineScheduler struct{}

func (inlineScheduler) Submit(task func()) error {
	task()
	return nil
}

// heldScheduler keeps tasks until the test runs them.
type heldScheduler struct {
	tasks []func()
}

func (s *heldScheduler) Submit(task func()) error {
	s.tasks = append(s.tasks, task)
	return nil
}

func (s *heldScheduler) runAll() {
	tasks := s.tasks
	s.tasks = nil
	for _, task := range tasks {
		task()
	}
}

type rejectingScheduler struct{}

func (rejectingScheduler) Submit(func()) error {
	return errors.New("worker pool task queue is full")
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []models.ImportJobFinishedEvent
}

func (p *recordingPublisher) PublishImportFinished(_ context.Context, event models.ImportJobFinishedEvent) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	return nil
}
