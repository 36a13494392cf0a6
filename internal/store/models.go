package store

import "time"

type User struct {
	ID           string
	Email        string
	PasswordHash string
	DisplayName  string
	Role         string
	CreatedAt    time.Time
}

type Customer struct {
	ID         int64
	Name       string
	Email      string
	Name1      string
	Name2      *string
	Token      string
	EdustajaID *string
	CreatedAt  time.Time
}

// CustomerSummary is a customer row joined with submission aggregates
// for the staff dashboard listing.
type CustomerSummary struct {
	Customer
	SubmittedCount int
	LastSubmission *time.Time
}

const (
	StatusDraft     = "draft"
	StatusSubmitted = "submitted"
)

// Submission is the versioned unit: a mutable draft or an immutable
// submitted snapshot. Version and SubmittedAt are nil while draft;
// ParentSubmissionID links a submitted row to the version it
// supersedes and is nil for the first submission.
type Submission struct {
	ID                 int64
	CustomerID         int64
	Status             string
	Version            *int
	ParentSubmissionID *int64
	CreatedAt          time.Time
	SubmittedAt        *time.Time
}

type FileEntry struct {
	ID           int64
	SubmissionID int64
	FieldName    string
	FileName     string
	FileURL      string
	UploadedAt   time.Time
}

// SubmissionListing is a submission row joined with its customer for
// the staff submission list.
type SubmissionListing struct {
	Submission
	CustomerName  string
	CustomerEmail string
	CustomerToken string
}
