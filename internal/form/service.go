package form

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"lahtotiedot/api/internal/store"
)

// ErrNoSubmission is returned when a submission id resolves to nothing.
var ErrNoSubmission = errors.New("submission not found")

type answerStore interface {
	FindDraft(context.Context, int64) (*store.Submission, error)
	FindLatestSubmitted(context.Context, int64) (*store.Submission, error)
	CreateDraft(context.Context, int64) (store.Submission, error)
	PromoteDraft(context.Context, int64, int, *int64) error
	UpsertField(context.Context, int64, string, string) error
	ListFields(context.Context, int64) (map[string]string, error)
	ListFiles(context.Context, int64) ([]store.FileEntry, error)
	InsertFileIfAbsent(context.Context, int64, string, string, string) (bool, error)
	DeleteFile(context.Context, int64, int64) (bool, error)
	GetSubmission(context.Context, int64) (store.Submission, error)
	ListSubmittedVersions(context.Context, int64) ([]store.Submission, error)
}

// FileInput names an uploaded file already persisted to blob storage.
type FileInput struct {
	FieldName string
	FileName  string
	FileURL   string
}

type DraftView struct {
	SubmissionID int64             `json:"submissionId"`
	Fields       map[string]string `json:"fields"`
	Files        []store.FileEntry `json:"files"`
}

type SubmitResult struct {
	SubmissionID int64 `json:"submissionId"`
	Version      int   `json:"version"`
}

// Service runs the draft/version state machine. Operations that read
// and promote a customer's draft run under a per-customer lock so two
// concurrent submits cannot promote the same draft twice or leave two
// drafts behind.
type Service struct {
	store answerStore

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func New(answerStore answerStore) *Service {
	return &Service{
		store: answerStore,
		locks: make(map[int64]*sync.Mutex),
	}
}

func (s *Service) customerLock(customerID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[customerID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[customerID] = lock
	}
	return lock
}

// GetOrCreateDraft returns the customer's current draft, creating and
// seeding one from the latest submitted version when none exists.
func (s *Service) GetOrCreateDraft(ctx context.Context, customerID int64) (DraftView, error) {
	lock := s.customerLock(customerID)
	lock.Lock()
	defer lock.Unlock()

	draft, err := s.ensureDraft(ctx, customerID)
	if err != nil {
		return DraftView{}, err
	}
	return s.draftView(ctx, draft.ID)
}

func (s *Service) ensureDraft(ctx context.Context, customerID int64) (store.Submission, error) {
	draft, err := s.store.FindDraft(ctx, customerID)
	if err != nil {
		return store.Submission{}, err
	}
	if draft != nil {
		return *draft, nil
	}

	latest, err := s.store.FindLatestSubmitted(ctx, customerID)
	if err != nil {
		return store.Submission{}, err
	}
	created, err := s.store.CreateDraft(ctx, customerID)
	if err != nil {
		return store.Submission{}, err
	}
	if latest != nil {
		if err := s.clone(ctx, latest.ID, created.ID); err != nil {
			return store.Submission{}, err
		}
	}
	return created, nil
}

func (s *Service) draftView(ctx context.Context, submissionID int64) (DraftView, error) {
	fields, err := s.store.ListFields(ctx, submissionID)
	if err != nil {
		return DraftView{}, err
	}
	files, err := s.store.ListFiles(ctx, submissionID)
	if err != nil {
		return DraftView{}, err
	}
	return DraftView{SubmissionID: submissionID, Fields: fields, Files: files}, nil
}

// SaveDraft applies field and file updates to the customer's draft.
// Field values are opaque here: which fields exist is the form layer's
// concern.
func (s *Service) SaveDraft(ctx context.Context, customerID int64, fields map[string]string, files []FileInput) (int64, error) {
	lock := s.customerLock(customerID)
	lock.Lock()
	defer lock.Unlock()

	draft, err := s.ensureDraft(ctx, customerID)
	if err != nil {
		return 0, err
	}
	if err := s.apply(ctx, draft.ID, fields, files); err != nil {
		return 0, err
	}
	return draft.ID, nil
}

func (s *Service) apply(ctx context.Context, submissionID int64, fields map[string]string, files []FileInput) error {
	for name, value := range fields {
		if err := s.store.UpsertField(ctx, submissionID, name, value); err != nil {
			return err
		}
	}
	for _, file := range files {
		if _, err := s.store.InsertFileIfAbsent(ctx, submissionID, file.FieldName, file.FileName, file.FileURL); err != nil {
			return err
		}
	}
	return nil
}

// SubmitDraft promotes the current draft to the next version and seeds
// a fresh draft from it.
func (s *Service) SubmitDraft(ctx context.Context, customerID int64, fields map[string]string, files []FileInput) (SubmitResult, error) {
	lock := s.customerLock(customerID)
	lock.Lock()
	defer lock.Unlock()

	draft, err := s.ensureDraft(ctx, customerID)
	if err != nil {
		return SubmitResult{}, err
	}
	if err := s.apply(ctx, draft.ID, fields, files); err != nil {
		return SubmitResult{}, err
	}

	latest, err := s.store.FindLatestSubmitted(ctx, customerID)
	if err != nil {
		return SubmitResult{}, err
	}
	nextVersion := 1
	var parentID *int64
	if latest != nil {
		if latest.Version != nil {
			nextVersion = *latest.Version + 1
		}
		id := latest.ID
		parentID = &id
	}

	if err := s.store.PromoteDraft(ctx, draft.ID, nextVersion, parentID); err != nil {
		return SubmitResult{}, err
	}

	fresh, err := s.store.CreateDraft(ctx, customerID)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("reseed draft: %w", err)
	}
	if err := s.clone(ctx, draft.ID, fresh.ID); err != nil {
		return SubmitResult{}, fmt.Errorf("reseed draft: %w", err)
	}

	return SubmitResult{SubmissionID: draft.ID, Version: nextVersion}, nil
}

// clone copies every field and file row from one submission to
// another. The file insert reuses the existence check from saves, so a
// retried clone after a partial failure re-adds nothing.
func (s *Service) clone(ctx context.Context, fromID, toID int64) error {
	fields, err := s.store.ListFields(ctx, fromID)
	if err != nil {
		return fmt.Errorf("clone fields: %w", err)
	}
	for name, value := range fields {
		if err := s.store.UpsertField(ctx, toID, name, value); err != nil {
			return fmt.Errorf("clone fields: %w", err)
		}
	}

	files, err := s.store.ListFiles(ctx, fromID)
	if err != nil {
		return fmt.Errorf("clone files: %w", err)
	}
	for _, file := range files {
		if _, err := s.store.InsertFileIfAbsent(ctx, toID, file.FieldName, file.FileName, file.FileURL); err != nil {
			return fmt.Errorf("clone files: %w", err)
		}
	}
	return nil
}

// DeleteDraftFile removes a file row from the customer's current
// draft. Rows belonging to submitted versions are unreachable here, and
// the stored blob stays put because older snapshots share its URL.
func (s *Service) DeleteDraftFile(ctx context.Context, customerID, fileID int64) (bool, error) {
	lock := s.customerLock(customerID)
	lock.Lock()
	defer lock.Unlock()

	draft, err := s.store.FindDraft(ctx, customerID)
	if err != nil {
		return false, err
	}
	if draft == nil {
		return false, nil
	}
	return s.store.DeleteFile(ctx, fileID, draft.ID)
}

// Changes diffs a submitted version against its parent.
func (s *Service) Changes(ctx context.Context, submissionID int64) (ChangeReport, error) {
	submission, err := s.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return ChangeReport{}, err
	}
	if submission.ParentSubmissionID == nil {
		return emptyReport(true), nil
	}

	parentFields, err := s.store.ListFields(ctx, *submission.ParentSubmissionID)
	if err != nil {
		return ChangeReport{}, err
	}
	currentFields, err := s.store.ListFields(ctx, submissionID)
	if err != nil {
		return ChangeReport{}, err
	}
	parentFiles, err := s.store.ListFiles(ctx, *submission.ParentSubmissionID)
	if err != nil {
		return ChangeReport{}, err
	}
	currentFiles, err := s.store.ListFiles(ctx, submissionID)
	if err != nil {
		return ChangeReport{}, err
	}

	report := emptyReport(false)
	report.FieldsChanged = diffFields(parentFields, currentFields)
	report.FilesAdded, report.FilesRemoved = diffFiles(parentFiles, currentFiles)
	return report, nil
}

// ListSubmittedVersions returns a customer's version history, newest
// first.
func (s *Service) ListSubmittedVersions(ctx context.Context, customerID int64) ([]store.Submission, error) {
	return s.store.ListSubmittedVersions(ctx, customerID)
}
