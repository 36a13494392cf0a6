package export

import (
	"context"
	"fmt"
	"strconv"

	"lahtotiedot/api/internal/store"
)

type dataStore interface {
	GetSubmissionWithCustomer(context.Context, int64) (store.SubmissionListing, error)
	ListFields(context.Context, int64) (map[string]string, error)
	ListFiles(context.Context, int64) ([]store.FileEntry, error)
}

// Result is a finished export ready to stream to the client.
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

type Service struct {
	store dataStore
	blobs blobOpener
}

func NewService(dataStore dataStore, blobs blobOpener) *Service {
	return &Service{store: dataStore, blobs: blobs}
}

// SubmissionPDF renders the printable answer sheet for one submission.
func (s *Service) SubmissionPDF(ctx context.Context, submissionID int64) (*Result, error) {
	submission, err := s.store.GetSubmissionWithCustomer(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	fields, err := s.store.ListFields(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	files, err := s.store.ListFiles(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	data := TemplateData{
		CustomerName:  submission.CustomerName,
		CustomerEmail: submission.CustomerEmail,
		SubmittedAt:   formatSubmittedAt(submission.SubmittedAt),
		Fields:        renderFields(fields),
	}
	if submission.Version != nil {
		data.Version = strconv.Itoa(*submission.Version)
	}
	for _, file := range files {
		data.Files = append(data.Files, RenderedFile{Label: FileFieldLabel(file.FieldName), FileName: file.FileName})
	}

	html, err := RenderAnswerSheetHTML(data)
	if err != nil {
		return nil, err
	}
	pdf, err := renderPDF(ctx, html)
	if err != nil {
		return nil, err
	}
	return &Result{
		Data:     pdf,
		Filename: fmt.Sprintf("submission-%d.pdf", submissionID),
		MimeType: "application/pdf",
	}, nil
}

// SubmissionZIP bundles every uploaded file of one submission.
func (s *Service) SubmissionZIP(ctx context.Context, submissionID int64) (*Result, error) {
	if _, err := s.store.GetSubmissionWithCustomer(ctx, submissionID); err != nil {
		return nil, err
	}
	files, err := s.store.ListFiles(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	data, err := buildZIP(ctx, files, s.blobs)
	if err != nil {
		return nil, err
	}
	return &Result{
		Data:     data,
		Filename: fmt.Sprintf("submission-%d-tiedostot.zip", submissionID),
		MimeType: "application/zip",
	}, nil
}
