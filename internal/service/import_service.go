package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/RubachokBoss/exam-grading/import-service/internal/metrics"
	"github.com/RubachokBoss/exam-grading/import-service/internal/models"
	"github.com/RubachokBoss/exam-grading/import-service/internal/repository"
	"github.com/RubachokBoss/exam-grading/import-service/internal/service/analyzer"
	"github.com/RubachokBoss/exam-grading/import-service/internal/service/extractor"
	"github.com/RubachokBoss/exam-grading/import-service/internal/service/scanner"
	"github.com/RubachokBoss/exam-grading/import-service/internal/service/validator"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	msgCancelled   = "Import cancelled by user"
	msgQueueFull   = "import queue is full"
	msgInterrupted = "Import interrupted by service restart"
)

// JobScheduler runs import tasks in the background. Submit fails instead of
// blocking forever when no capacity is left.
type JobScheduler interface {
	Submit(task func()) error
}

type EventPublisher interface {
	PublishImportFinished(ctx context.Context, event models.ImportJobFinishedEvent) error
}

type ImportService interface {
	// SubmitImport validates the request, stores a pending job and hands it
	// to the scheduler. It returns as soon as the job is queued.
	SubmitImport(ctx context.Context, req models.SubmitImportRequest) (*models.SubmitImportResponse, error)
	// SubmitUpload copies the uploaded archive to local storage and submits
	// it as a transient import.
	SubmitUpload(ctx context.Context, archive Upload, req models.SubmitImportRequest) (*models.SubmitImportResponse, error)
	ProcessImport(ctx context.Context, jobID string)
	RecoverInterrupted(ctx context.Context) (int64, error)
	ActiveJobs() int
}

type Repositories struct {
	Jobs        repository.ImportJobRepository
	Submissions repository.SubmissionRepository
	Violations  repository.ViolationRepository
	Groups      repository.DuplicateGroupRepository
	References  repository.ReferenceRepository
	Storage     repository.FileStorage
}

type Pipeline struct {
	Extractor extractor.ArchiveExtractor
	Validator validator.FilenameValidator
	Scanner   scanner.RuleViolationScanner
	Content   analyzer.ContentExtractor
	Grouper   analyzer.DuplicateGrouper
	// Plagiarism is optional and only used when PairwiseOnImport is set.
	Plagiarism PlagiarismService
}

type ImportConfig struct {
	MaxFileSize          int64
	UploadDir            string
	SystemUser           string
	Thresholds           analyzer.Thresholds
	ZeroScoreOnForbidden bool
	PairwiseOnImport     bool
	// Instance is stored as the owner of every job this service creates.
	Instance string
}

type importService struct {
	repos     Repositories
	pipeline  Pipeline
	registry  *JobRegistry
	scheduler JobScheduler
	publisher EventPublisher
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	config    ImportConfig
}

func NewImportService(
	repos Repositories,
	pipeline Pipeline,
	registry *JobRegistry,
	scheduler JobScheduler,
	publisher EventPublisher,
	m *metrics.Metrics,
	logger zerolog.Logger,
	config ImportConfig,
) ImportService {
	if config.SystemUser == "" {
		config.SystemUser = "system"
	}
	return &importService{
		repos:     repos,
		pipeline:  pipeline,
		registry:  registry,
		scheduler: scheduler,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		config:    config,
	}
}

// importRun is the state one background task accumulates for its job.
type importRun struct {
	job     *models.ImportJob
	tracker *jobTracker
	logger  zerolog.Logger
	started time.Time

	folder string
	seen   map[string]string
	hashed []analyzer.HashedItem

	// stopped is set when the stored job was finished by someone else,
	// e.g. a cancel from another process. The run must not write it again.
	stopped bool
}

func (s *importService) SubmitImport(ctx context.Context, req models.SubmitImportRequest) (*models.SubmitImportResponse, error) {
	req = trimRequest(req)

	if req.ArchivePath == "" {
		return nil, validationError("archive_path is required")
	}
	info, err := os.Stat(req.ArchivePath)
	if err != nil || info.IsDir() {
		return nil, validationError("archive not found: %s", req.ArchivePath)
	}

	uploaderID, err := s.validateTargets(ctx, req)
	if err != nil {
		return nil, err
	}

	if req.ArchiveName == "" {
		req.ArchiveName = filepath.Base(req.ArchivePath)
	}

	now := time.Now()
	job := &models.ImportJob{
		ID:          uuid.New().String(),
		ArchiveName: req.ArchiveName,
		ArchivePath: req.ArchivePath,
		SubjectID:   req.SubjectID,
		SemesterID:  req.SemesterID,
		ExamID:      req.ExamID,
		UploadedBy:  uploaderID,
		Status:      models.ImportJobStatusPending.String(),
		IsTransient: req.Transient,
		Owner:       s.config.Instance,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repos.Jobs.Create(ctx, job); err != nil {
		return nil, internalError("failed to create import job", err)
	}

	tracker := s.registry.add(job.ID)
	tracker.Log(fmt.Sprintf("Import of %s queued", job.ArchiveName))
	s.metrics.ActiveJobs.Set(float64(s.registry.Active()))

	jobID := job.ID
	if err := s.scheduler.Submit(func() { s.ProcessImport(context.Background(), jobID) }); err != nil {
		s.registry.remove(job.ID)
		s.metrics.ActiveJobs.Set(float64(s.registry.Active()))

		msg := msgQueueFull
		completed := time.Now()
		job.Status = models.ImportJobStatusFailed.String()
		job.ErrorMessage = &msg
		job.CompletedAt = &completed
		job.UpdatedAt = completed
		if updErr := s.repos.Jobs.Update(ctx, job); updErr != nil {
			s.logger.Error().Err(updErr).Str("job_id", job.ID).Msg("Failed to mark rejected job as failed")
		}
		if job.IsTransient {
			s.removeArchive(job)
		}

		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Import job rejected by scheduler")
		return nil, unavailableError(msgQueueFull, err)
	}

	s.metrics.JobsSubmitted.Inc()

	s.logger.Info().
		Str("job_id", job.ID).
		Str("exam_id", job.ExamID).
		Str("archive", job.ArchiveName).
		Bool("transient", job.IsTransient).
		Msg("Import job submitted")

	return &models.SubmitImportResponse{
		JobID:     job.ID,
		Status:    job.Status,
		StatusURL: "/api/v1/imports/" + job.ID,
	}, nil
}

func (s *importService) SubmitUpload(ctx context.Context, archive Upload, req models.SubmitImportRequest) (*models.SubmitImportResponse, error) {
	req = trimRequest(req)

	name := filepath.Base(strings.TrimSpace(archive.FileName))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, validationError("archive file name is required")
	}
	if _, err := extractor.DetectFormat(name); err != nil {
		return nil, validationError("unsupported archive type: %s", name)
	}
	if _, err := s.validateTargets(ctx, req); err != nil {
		return nil, err
	}

	path, n, err := extractor.SpoolToFile(archive.Reader, s.config.UploadDir, name)
	if err != nil {
		return nil, internalError("failed to store uploaded archive", err)
	}

	s.logger.Debug().Str("archive", name).Int64("bytes", n).Str("path", path).Msg("Upload stored")

	req.ArchivePath = path
	req.ArchiveName = name
	req.Transient = true

	resp, err := s.SubmitImport(ctx, req)
	if err != nil && KindOf(err) != KindUnavailable {
		// A rejected job already removed its transient archive.
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			s.logger.Warn().Err(rmErr).Str("path", path).Msg("Failed to remove rejected upload")
		}
	}
	return resp, err
}

func trimRequest(req models.SubmitImportRequest) models.SubmitImportRequest {
	req.ArchivePath = strings.TrimSpace(req.ArchivePath)
	req.ArchiveName = strings.TrimSpace(req.ArchiveName)
	req.SubjectID = strings.TrimSpace(req.SubjectID)
	req.SemesterID = strings.TrimSpace(req.SemesterID)
	req.ExamID = strings.TrimSpace(req.ExamID)
	req.UploadedBy = strings.TrimSpace(req.UploadedBy)
	return req
}

// validateTargets checks subject, semester, exam and uploader and returns
// the resolved uploader id.
func (s *importService) validateTargets(ctx context.Context, req models.SubmitImportRequest) (string, error) {
	switch {
	case req.SubjectID == "":
		return "", validationError("subject_id is required")
	case req.SemesterID == "":
		return "", validationError("semester_id is required")
	case req.ExamID == "":
		return "", validationError("exam_id is required")
	case req.UploadedBy == "":
		return "", validationError("uploaded_by is required")
	}

	refs := s.repos.References

	ok, err := refs.SubjectExists(ctx, req.SubjectID)
	if err != nil {
		return "", internalError("failed to look up subject", err)
	}
	if !ok {
		return "", validationError("subject %s not found", req.SubjectID)
	}

	ok, err = refs.SemesterExists(ctx, req.SemesterID)
	if err != nil {
		return "", internalError("failed to look up semester", err)
	}
	if !ok {
		return "", validationError("semester %s not found", req.SemesterID)
	}

	exam, err := refs.GetExam(ctx, req.ExamID)
	if err != nil {
		return "", internalError("failed to look up exam", err)
	}
	if exam == nil {
		return "", validationError("exam %s not found", req.ExamID)
	}
	if exam.SubjectID != req.SubjectID || exam.SemesterID != req.SemesterID {
		return "", validationError("exam %s does not belong to subject %s in semester %s", req.ExamID, req.SubjectID, req.SemesterID)
	}

	userID, err := refs.ResolveUser(ctx, req.UploadedBy)
	if err != nil {
		return "", internalError("failed to resolve uploader", err)
	}
	if userID == "" {
		return "", validationError("unknown uploader %q", req.UploadedBy)
	}

	return userID, nil
}

func (s *importService) ProcessImport(ctx context.Context, jobID string) {
	logger := s.logger.With().Str("job_id", jobID).Logger()

	tracker, ok := s.registry.get(jobID)
	if !ok {
		tracker = s.registry.add(jobID)
	}

	job, err := s.repos.Jobs.GetByID(ctx, jobID)
	if err != nil || job == nil {
		logger.Error().Err(err).Msg("Import job not found when starting")
		s.registry.remove(jobID)
		s.metrics.ActiveJobs.Set(float64(s.registry.Active()))
		return
	}
	if models.ImportJobStatus(job.Status).IsTerminal() {
		logger.Warn().Str("status", job.Status).Msg("Import job already finished, skipping")
		s.registry.remove(jobID)
		s.metrics.ActiveJobs.Set(float64(s.registry.Active()))
		return
	}

	run := &importRun{
		job:     job,
		tracker: tracker,
		logger:  logger.With().Str("exam_id", job.ExamID).Logger(),
		started: time.Now(),
		seen:    make(map[string]string),
	}

	defer func() {
		if r := recover(); r != nil {
			run.logger.Error().Interface("panic", r).Msg("Import job panicked")
			s.fail(run, fmt.Sprintf("internal error: %v", r))
		}
		s.finish(run)
	}()

	if tracker.Cancelled() {
		s.fail(run, msgCancelled)
		return
	}

	now := time.Now()
	job.Status = models.ImportJobStatusRunning.String()
	if job.StartedAt == nil {
		job.StartedAt = &now
	}
	s.saveJob(ctx, run)
	if run.stopped {
		return
	}
	tracker.Log("Import started")
	run.logger.Info().Str("archive", job.ArchiveName).Msg("Import job started")

	extractCtx, cancel := context.WithCancel(ctx)
	tracker.setCancel(cancel)
	res, err := s.pipeline.Extractor.Extract(extractCtx, job.ArchivePath, job.ID)
	cancel()
	if err != nil {
		if tracker.Cancelled() {
			s.fail(run, msgCancelled)
			return
		}
		run.logger.Error().Err(err).Msg("Archive extraction failed")
		s.fail(run, fmt.Sprintf("failed to extract archive: %v", err))
		return
	}

	run.folder = res.FolderPath
	job.TotalFiles = len(res.Files)
	job.StorageFolderPath = job.ExamID + "/"
	tracker.Log(fmt.Sprintf("Extracted %d files from %s", len(res.Files), job.ArchiveName))
	for _, name := range res.Skipped {
		tracker.Log("Skipped unsafe or unsupported entry " + name)
	}
	s.saveJob(ctx, run)

	for i, file := range res.Files {
		if run.stopped {
			return
		}
		if tracker.Cancelled() {
			s.fail(run, msgCancelled)
			return
		}

		job.ProcessedFiles++
		prefix := fmt.Sprintf("[%d/%d] %s", i+1, len(res.Files), file.RelativePath)

		outcome, err := s.processFile(ctx, run, file)
		if err != nil {
			job.FailedCount++
			outcome = "failed"
			tracker.Log(fmt.Sprintf("%s: failed: %v", prefix, err))
			run.logger.Error().Err(err).Str("file", file.RelativePath).Msg("Failed to process file")
		} else {
			tracker.Log(prefix + ": " + outcome)
		}
		s.metrics.FilesProcessed.WithLabelValues(outcomeLabel(outcome)).Inc()

		s.saveJob(ctx, run)
	}

	if run.stopped {
		return
	}
	if tracker.Cancelled() {
		s.fail(run, msgCancelled)
		return
	}

	s.groupDuplicates(ctx, run)

	// Past this point Cancel is refused, so a 202 always means the job
	// ends Failed.
	if tracker.seal() {
		s.fail(run, msgCancelled)
		return
	}

	completed := time.Now()
	job.Status = models.ImportJobStatusCompleted.String()
	job.CompletedAt = &completed
	tracker.Log(fmt.Sprintf("Import completed: %d imported, %d failed, %d violations",
		job.SuccessCount, job.FailedCount, job.ViolationsCreated))
}

// processFile handles one extracted entry. Rejections recorded as violations
// return a nil error; only unexpected failures return one.
func (s *importService) processFile(ctx context.Context, run *importRun, file models.ExtractedFileInfo) (outcome string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	job := run.job

	match, err := s.pipeline.Validator.Resolve(file.FileName, file.FolderName)
	if err != nil {
		v := &models.Violation{
			Type:        models.ViolationTypeInvalidFormat.String(),
			Severity:    models.SeverityMedium.String(),
			Description: fmt.Sprintf("Cannot resolve student code from %q with pattern %q: %v", file.RelativePath, s.pipeline.Validator.Pattern(), err),
			Evidence:    []string{file.RelativePath},
			Confidence:  1.0,
		}
		if err := s.recordViolation(ctx, run, v); err != nil {
			return "", err
		}
		return "invalid file name", nil
	}

	code := match.StudentCode
	logger := run.logger.With().Str("file", file.RelativePath).Str("student_code", code).Logger()

	existingID, dup := run.seen[code]
	var existingName string
	if !dup {
		existing, err := s.repos.Submissions.GetByExamAndStudent(ctx, job.ExamID, code)
		if err != nil {
			return "", fmt.Errorf("failed to check existing submission: %w", err)
		}
		if existing != nil {
			dup, existingID, existingName = true, existing.ID, existing.OriginalFileName
		}
	}
	if dup {
		if err := s.recordDuplicateStudent(ctx, run, file, code, existingID, existingName); err != nil {
			return "", err
		}
		logger.Info().Str("existing_submission", existingID).Msg("Duplicate student submission")
		return "duplicate of submission " + existingID, nil
	}

	if s.config.MaxFileSize > 0 && file.Size > s.config.MaxFileSize {
		v := &models.Violation{
			Type:        models.ViolationTypeInvalidFormat.String(),
			Severity:    models.SeverityMedium.String(),
			Description: fmt.Sprintf("File %q is %d bytes, limit is %d", file.RelativePath, file.Size, s.config.MaxFileSize),
			Evidence:    []string{file.RelativePath},
			Confidence:  1.0,
		}
		if err := s.recordViolation(ctx, run, v); err != nil {
			return "", err
		}
		return "file too large", nil
	}

	content, err := s.pipeline.Content.Extract(file.FullPath)
	if err != nil {
		return "", err
	}

	now := time.Now()
	submissionID := uuid.New().String()
	key := repository.StorageKey(job.ExamID, code, submissionID, file.FileName)

	if err := s.storeFile(ctx, key, file); err != nil {
		return "", err
	}

	jobID := job.ID
	hash := content.Hash
	sub := &models.Submission{
		ID:               submissionID,
		ExamID:           job.ExamID,
		StudentCode:      code,
		OriginalFileName: file.FileName,
		StorageKey:       key,
		FileSize:         content.Size,
		ContentHash:      &hash,
		ImportJobID:      &jobID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if content.Text != "" {
		text := content.Text
		sub.ExtractedText = &text
	}

	if err := s.repos.Submissions.Create(ctx, sub); err != nil {
		s.removeStored(ctx, key)
		if errors.Is(err, repository.ErrDuplicateSubmission) {
			if err := s.recordDuplicateStudent(ctx, run, file, code, "", ""); err != nil {
				return "", err
			}
			return "duplicate student " + code, nil
		}
		return "", fmt.Errorf("failed to save submission: %w", err)
	}

	job.SuccessCount++
	run.seen[code] = sub.ID
	run.hashed = append(run.hashed, analyzer.HashedItem{ID: sub.ID, Name: file.RelativePath, Hash: content.Hash})

	s.scanSubmission(ctx, run, sub, file)

	if s.config.PairwiseOnImport && s.pipeline.Plagiarism != nil && content.Text != "" {
		resp, err := s.pipeline.Plagiarism.CheckSubmission(ctx, sub.ID)
		if err != nil {
			logger.Warn().Err(err).Msg("Pairwise plagiarism check failed")
		} else {
			job.ViolationsCreated += resp.ViolationsNew
		}
	}

	logger.Debug().Str("submission_id", sub.ID).Str("kind", content.Kind).Msg("Submission imported")
	return "imported as " + code, nil
}

func (s *importService) storeFile(ctx context.Context, key string, file models.ExtractedFileInfo) error {
	f, err := os.Open(file.FullPath)
	if err != nil {
		return fmt.Errorf("failed to open extracted file: %w", err)
	}
	defer f.Close()

	if err := s.repos.Storage.Put(ctx, key, f, file.Size); err != nil {
		return fmt.Errorf("failed to store file: %w", err)
	}
	return nil
}

func (s *importService) removeStored(ctx context.Context, key string) {
	if err := s.repos.Storage.Delete(ctx, key); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("Failed to remove stored file")
	}
}

func (s *importService) recordDuplicateStudent(ctx context.Context, run *importRun, file models.ExtractedFileInfo, code, existingID, existingName string) error {
	v := &models.Violation{
		Type:        models.ViolationTypeDuplicate.String(),
		Severity:    models.SeverityHigh.String(),
		Description: fmt.Sprintf("Student %s already has a submission for this exam", code),
		Evidence:    []string{file.RelativePath},
		Confidence:  1.0,
	}
	if existingID != "" {
		id := existingID
		v.SubmissionID = &id
		v.Evidence = append(v.Evidence, existingID)
	}
	if existingName != "" {
		v.Evidence = append(v.Evidence, existingName)
	}
	return s.recordViolation(ctx, run, v)
}

func (s *importService) scanSubmission(ctx context.Context, run *importRun, sub *models.Submission, file models.ExtractedFileInfo) {
	if s.pipeline.Scanner == nil {
		return
	}

	candidates, err := s.pipeline.Scanner.Scan(ctx, file.FullPath)
	if err != nil {
		run.logger.Warn().Err(err).Str("file", file.RelativePath).Msg("Rule scan failed")
		return
	}

	for _, c := range candidates {
		subID := sub.ID
		evidence := append([]string{}, c.Evidence...)
		if c.Line > 0 {
			evidence = append(evidence, fmt.Sprintf("%s:%d", file.RelativePath, c.Line))
		}

		v := &models.Violation{
			SubmissionID: &subID,
			Type:         c.Kind.ViolationType().String(),
			Severity:     c.Severity.String(),
			Description:  c.Description,
			Evidence:     evidence,
			Confidence:   c.Confidence,
			ZeroScore:    c.Kind == scanner.KindForbiddenConstruct && s.config.ZeroScoreOnForbidden,
		}
		if err := s.recordViolation(ctx, run, v); err != nil {
			run.logger.Error().Err(err).Str("file", file.RelativePath).Msg("Failed to save rule violation")
		}
	}
}

// groupDuplicates clusters the submissions of this run by content hash.
func (s *importService) groupDuplicates(ctx context.Context, run *importRun) {
	groups := s.pipeline.Grouper.Group(run.hashed)
	if len(groups) == 0 {
		return
	}

	_, zero := s.config.Thresholds.Classify(1.0)
	severity := models.SeverityHigh
	if zero {
		severity = models.SeverityCritical
	}

	for i, g := range groups {
		ids := make([]string, 0, len(g.Members))
		names := make([]string, 0, len(g.Members))
		for _, m := range g.Members {
			ids = append(ids, m.ID)
			names = append(names, m.Name)
		}

		group := &models.DuplicateGroup{
			ID:              uuid.New().String(),
			ExamID:          run.job.ExamID,
			GroupName:       fmt.Sprintf("Identical content #%d (%s)", i+1, names[0]),
			SimilarityScore: 1.0,
			SubmissionIDs:   ids,
			CreatedAt:       time.Now(),
		}
		if err := s.repos.Groups.Create(ctx, group); err != nil {
			run.logger.Error().Err(err).Str("hash", g.Hash).Msg("Failed to save duplicate group")
			continue
		}

		first := ids[0]
		v := &models.Violation{
			SubmissionID: &first,
			Type:         models.ViolationTypeDuplicate.String(),
			Severity:     severity.String(),
			Description:  fmt.Sprintf("%d submissions have identical content", len(ids)),
			Evidence:     names,
			Confidence:   1.0,
			ZeroScore:    zero,
		}
		if err := s.recordViolation(ctx, run, v); err != nil {
			run.logger.Error().Err(err).Str("group_id", group.ID).Msg("Failed to save duplicate group violation")
			continue
		}

		run.tracker.Log(fmt.Sprintf("Duplicate group %s: %s", group.GroupName, strings.Join(names, ", ")))
	}
}

func (s *importService) recordViolation(ctx context.Context, run *importRun, v *models.Violation) error {
	jobID := run.job.ID
	v.ID = uuid.New().String()
	v.ExamID = run.job.ExamID
	v.ImportJobID = &jobID
	v.CreatedBy = s.config.SystemUser
	v.ReviewStatus = models.ReviewStatusNew.String()
	v.CreatedAt = time.Now()

	if err := s.repos.Violations.Create(ctx, v); err != nil {
		return fmt.Errorf("failed to save %s violation: %w", v.Type, err)
	}

	run.job.ViolationsCreated++
	s.metrics.ViolationsCreated.WithLabelValues(v.Type).Inc()
	return nil
}

func (s *importService) fail(run *importRun, message string) {
	now := time.Now()
	run.job.Status = models.ImportJobStatusFailed.String()
	run.job.ErrorMessage = &message
	run.job.CompletedAt = &now
	run.tracker.Log(message)
}

// finish runs once per job whatever happened before it.
func (s *importService) finish(run *importRun) {
	ctx := context.Background()

	if !run.stopped {
		if !models.ImportJobStatus(run.job.Status).IsTerminal() {
			s.fail(run, "import stopped unexpectedly")
		}
		if run.job.CompletedAt == nil {
			now := time.Now()
			run.job.CompletedAt = &now
		}
		s.saveJob(ctx, run)
	}
	if run.stopped {
		// Report the stored outcome, not the one this run would have written.
		if stored, err := s.repos.Jobs.GetByID(ctx, run.job.ID); err == nil && stored != nil {
			run.job = stored
		}
	}
	job := run.job

	s.registry.remove(job.ID)
	s.metrics.ActiveJobs.Set(float64(s.registry.Active()))

	if run.folder != "" {
		if err := os.RemoveAll(run.folder); err != nil {
			run.logger.Warn().Err(err).Str("folder", run.folder).Msg("Failed to remove working folder")
		}
	}
	if job.IsTransient {
		s.removeArchive(job)
	}

	s.metrics.JobsFinished.WithLabelValues(job.Status).Inc()
	s.metrics.JobDuration.Observe(time.Since(run.started).Seconds())

	if s.publisher != nil {
		pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.publisher.PublishImportFinished(pubCtx, finishedEvent(job)); err != nil {
			run.logger.Warn().Err(err).Msg("Failed to publish import finished event")
		}
	}

	run.logger.Info().
		Str("status", job.Status).
		Int("total_files", job.TotalFiles).
		Int("success", job.SuccessCount).
		Int("failed", job.FailedCount).
		Int("violations", job.ViolationsCreated).
		Dur("duration", time.Since(run.started)).
		Msg("Import job finished")
}

func (s *importService) saveJob(ctx context.Context, run *importRun) {
	if run.stopped {
		return
	}
	run.job.UpdatedAt = time.Now()
	err := s.repos.Jobs.Update(ctx, run.job)
	switch {
	case errors.Is(err, repository.ErrJobFinished):
		run.stopped = true
		run.tracker.Log("Import job was finished elsewhere, stopping")
		run.logger.Warn().Msg("Import job already finished in storage, stopping run")
	case err != nil:
		run.logger.Error().Err(err).Msg("Failed to update import job")
	}
}

func (s *importService) removeArchive(job *models.ImportJob) {
	if err := os.Remove(job.ArchivePath); err != nil && !os.IsNotExist(err) {
		s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to remove transient archive")
	}
}

func (s *importService) RecoverInterrupted(ctx context.Context) (int64, error) {
	n, err := s.repos.Jobs.FailUnfinished(ctx, s.config.Instance, msgInterrupted)
	if err != nil {
		return 0, fmt.Errorf("failed to recover interrupted jobs: %w", err)
	}
	if n > 0 {
		s.logger.Warn().Int64("jobs", n).Msg("Marked interrupted import jobs as failed")
	}
	return n, nil
}

func (s *importService) ActiveJobs() int {
	return s.registry.Active()
}

func finishedEvent(job *models.ImportJob) models.ImportJobFinishedEvent {
	completed := time.Now()
	if job.CompletedAt != nil {
		completed = *job.CompletedAt
	}
	return models.ImportJobFinishedEvent{
		JobID:             job.ID,
		ExamID:            job.ExamID,
		Status:            job.Status,
		TotalFiles:        job.TotalFiles,
		SuccessCount:      job.SuccessCount,
		FailedCount:       job.FailedCount,
		ViolationsCreated: job.ViolationsCreated,
		ErrorMessage:      job.ErrorMessage,
		CompletedAt:       completed,
	}
}

func outcomeLabel(outcome string) string {
	switch {
	case strings.HasPrefix(outcome, "imported"):
		return "imported"
	case strings.HasPrefix(outcome, "duplicate"):
		return "duplicate"
	case outcome == "invalid file name":
		return "invalid_name"
	case outcome == "file too large":
		return "too_large"
	default:
		return "failed"
	}
}
