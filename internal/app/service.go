package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"lahtotiedot/api/internal/auth"
	"lahtotiedot/api/internal/authpw"
	"lahtotiedot/api/internal/blob"
	"lahtotiedot/api/internal/config"
	"lahtotiedot/api/internal/email"
	"lahtotiedot/api/internal/export"
	"lahtotiedot/api/internal/form"
	"lahtotiedot/api/internal/role"
	"lahtotiedot/api/internal/search"
	"lahtotiedot/api/internal/store"
	"lahtotiedot/api/internal/util"
)

// Session is an authenticated staff context derived from a bearer
// token.
type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	Email        string
	Role         string
	JTI          string
	ExpiresAt    time.Time
}

type dataStore interface {
	CreateUser(context.Context, store.User) error
	GetUserByEmail(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	CreateCustomer(context.Context, store.Customer) (store.Customer, error)
	ListCustomers(context.Context, string) ([]store.CustomerSummary, error)
	GetCustomerByToken(context.Context, string) (store.Customer, error)
	GetCustomerByID(context.Context, int64) (store.Customer, error)
	DeleteCustomer(context.Context, int64) (bool, error)
	ListSubmissions(context.Context, string) ([]store.SubmissionListing, error)
	GetSubmission(context.Context, int64) (store.Submission, error)
	GetSubmissionWithCustomer(context.Context, int64) (store.SubmissionListing, error)
	ListSubmittedVersions(context.Context, int64) ([]store.Submission, error)
	ListFields(context.Context, int64) (map[string]string, error)
	ListFiles(context.Context, int64) ([]store.FileEntry, error)
	Ping(ctx context.Context) error
}

// sessionStore abstracts refresh-token storage: Redis when configured,
// PostgreSQL otherwise.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

// pgSessionStore adapts the relational refresh-session tables to the
// sessionStore interface used by the service.
type pgSessionStore struct {
	store *store.PostgresStore
}

func (p pgSessionStore) SaveRefreshSession(ctx context.Context, tokenHash string, user store.User, expiresAt time.Time) error {
	return p.store.SaveRefreshSession(ctx, tokenHash, user.ID, expiresAt)
}

func (p pgSessionStore) LookupRefreshSession(ctx context.Context, tokenHash string) (store.User, error) {
	return p.store.LookupRefreshSession(ctx, tokenHash)
}

func (p pgSessionStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	return p.store.RevokeRefreshSession(ctx, tokenHash)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions sessionStore
	form     *form.Service
	auth     *authpw.Service
	blobs    blob.Store
	email    *email.Service
	search   *search.Service
	export   *export.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, blobs blob.Store, emailSvc *email.Service, searchSvc *search.Service) *Service {
	return &Service{
		cfg:      cfg,
		store:    dataStore,
		sessions: pgSessionStore{store: dataStore},
		form:     form.New(dataStore),
		auth:     authpw.NewService(dataStore),
		blobs:    blobs,
		email:    emailSvc,
		search:   searchSvc,
		export:   export.NewService(dataStore, blobs),
	}
}

// NewWithSessionStore is New with refresh sessions kept in an external
// store such as Redis.
func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, blobs blob.Store, emailSvc *email.Service, searchSvc *search.Service) *Service {
	service := New(cfg, dataStore, blobs, emailSvc, searchSvc)
	service.sessions = sessions
	return service
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Bootstrap seeds the configured admin account and warms the search
// index.
func (s *Service) Bootstrap(ctx context.Context) error {
	if err := s.auth.EnsureAdmin(ctx, s.cfg.AdminEmail, s.cfg.AdminPassword); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if s.search != nil {
		summaries, err := s.store.ListCustomers(ctx, "")
		if err != nil {
			return fmt.Errorf("load customers for index: %w", err)
		}
		customers := make([]store.Customer, 0, len(summaries))
		for _, summary := range summaries {
			customers = append(customers, summary.Customer)
		}
		s.search.Reindex(customers)
	}
	return nil
}

// ── Sessions ──

func (s *Service) SignIn(ctx context.Context, emailAddr, password string) (Session, error) {
	user, err := s.auth.SignIn(ctx, emailAddr, password)
	if err != nil {
		if errors.Is(err, authpw.ErrInvalidCredentials) {
			return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid email or password", nil)
		}
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	user, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid refresh token", nil)
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken != "" {
		return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:   user.ID,
		Email: user.Email,
		Role:  user.Role,
		JTI:   jti,
		Exp:   expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		Email:        user.Email,
		Role:         user.Role,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}

	// Role comes from the database so a role change takes effect
	// without waiting out the access TTL.
	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		Email:     user.Email,
		Role:      user.Role,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// ── Staff users ──

func (s *Service) RegisterUser(ctx context.Context, session Session, req authpw.RegisterRequest) (store.User, error) {
	if !role.Can(role.Normalize(session.Role), role.ActionManageUsers) {
		return store.User{}, domainError(http.StatusForbidden, "FORBIDDEN", "Only admin can register users", nil)
	}
	user, err := s.auth.Register(ctx, req)
	if err != nil {
		if errors.Is(err, authpw.ErrEmailTaken) {
			return store.User{}, domainError(http.StatusConflict, "INVALID_STATE", "Email already registered", nil)
		}
		return store.User{}, domainError(http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
	}
	return user, nil
}

// ── Customers ──

type CreateCustomerInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Name1 string `json:"name1"`
	Name2 string `json:"name2"`
}

func (s *Service) CreateCustomer(ctx context.Context, session Session, input CreateCustomerInput) (store.Customer, string, error) {
	if !role.Can(role.Normalize(session.Role), role.ActionCreateCustomer) {
		return store.Customer{}, "", domainError(http.StatusForbidden, "FORBIDDEN", "Only edustaja and admin can create customers", nil)
	}
	if input.Name == "" || input.Email == "" || input.Name1 == "" {
		return store.Customer{}, "", domainError(http.StatusBadRequest, "VALIDATION_ERROR", "Name, email, and name1 required", nil)
	}

	customer := store.Customer{
		Name:       input.Name,
		Email:      input.Email,
		Name1:      input.Name1,
		Token:      uuid.NewString(),
		EdustajaID: &session.UserID,
	}
	if input.Name2 != "" {
		customer.Name2 = &input.Name2
	}

	created, err := s.store.CreateCustomer(ctx, customer)
	if err != nil {
		return store.Customer{}, "", err
	}
	if s.search != nil {
		s.search.IndexCustomer(created)
	}

	formURL := strings.TrimRight(s.cfg.FrontendURL, "/") + "/form/" + created.Token
	return created, formURL, nil
}

func (s *Service) ListCustomers(ctx context.Context, session Session) ([]store.CustomerSummary, error) {
	scope := ""
	if !role.SeesAllCustomers(role.Normalize(session.Role)) {
		scope = session.UserID
	}
	return s.store.ListCustomers(ctx, scope)
}

func (s *Service) GetCustomerByToken(ctx context.Context, session Session, token string) (store.Customer, error) {
	customer, err := s.store.GetCustomerByToken(ctx, token)
	if err != nil {
		return store.Customer{}, err
	}
	if !s.canAccessCustomer(session, customer) {
		return store.Customer{}, domainError(http.StatusForbidden, "FORBIDDEN", "Access denied", nil)
	}
	return customer, nil
}

func (s *Service) DeleteCustomer(ctx context.Context, session Session, customerID int64) error {
	if !role.Can(role.Normalize(session.Role), role.ActionDeleteCustomer) {
		return domainError(http.StatusForbidden, "FORBIDDEN", "Only admin can delete customers", nil)
	}
	deleted, err := s.store.DeleteCustomer(ctx, customerID)
	if err != nil {
		return err
	}
	if !deleted {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Customer not found", nil)
	}
	if s.search != nil {
		s.search.DeleteCustomer(customerID)
	}
	return nil
}

func (s *Service) SearchCustomers(ctx context.Context, session Session, text string, limit int) (search.Response, error) {
	if s.search == nil {
		return search.Response{Results: []search.CustomerRecord{}, Query: text}, nil
	}
	query := search.Query{Text: text, Limit: limit}
	if !role.SeesAllCustomers(role.Normalize(session.Role)) {
		query.EdustajaID = session.UserID
	}
	return s.search.Search(ctx, query), nil
}

func (s *Service) canAccessCustomer(session Session, customer store.Customer) bool {
	if role.SeesAllCustomers(role.Normalize(session.Role)) {
		return true
	}
	return customer.EdustajaID != nil && *customer.EdustajaID == session.UserID
}

// ── Submissions (staff views) ──

// SubmissionDetail is a submitted version with its full answer sheet.
type SubmissionDetail struct {
	Listing store.SubmissionListing
	Fields  map[string]string
	Files   []store.FileEntry
}

func (s *Service) ListSubmissions(ctx context.Context, session Session) ([]store.SubmissionListing, error) {
	scope := ""
	if !role.SeesAllCustomers(role.Normalize(session.Role)) {
		scope = session.UserID
	}
	return s.store.ListSubmissions(ctx, scope)
}

func (s *Service) GetSubmissionDetail(ctx context.Context, session Session, submissionID int64) (SubmissionDetail, error) {
	listing, err := s.resolveSubmission(ctx, session, submissionID)
	if err != nil {
		return SubmissionDetail{}, err
	}
	fields, err := s.store.ListFields(ctx, submissionID)
	if err != nil {
		return SubmissionDetail{}, err
	}
	files, err := s.store.ListFiles(ctx, submissionID)
	if err != nil {
		return SubmissionDetail{}, err
	}
	return SubmissionDetail{Listing: listing, Fields: fields, Files: files}, nil
}

// ListCustomerVersions returns the version history for one customer,
// each with its answers attached.
func (s *Service) ListCustomerVersions(ctx context.Context, session Session, token string) ([]SubmissionDetail, error) {
	customer, err := s.GetCustomerByToken(ctx, session, token)
	if err != nil {
		return nil, err
	}
	versions, err := s.store.ListSubmittedVersions(ctx, customer.ID)
	if err != nil {
		return nil, err
	}
	details := make([]SubmissionDetail, 0, len(versions))
	for _, version := range versions {
		fields, err := s.store.ListFields(ctx, version.ID)
		if err != nil {
			return nil, err
		}
		files, err := s.store.ListFiles(ctx, version.ID)
		if err != nil {
			return nil, err
		}
		details = append(details, SubmissionDetail{
			Listing: store.SubmissionListing{
				Submission:    version,
				CustomerName:  customer.Name,
				CustomerEmail: customer.Email,
				CustomerToken: customer.Token,
			},
			Fields: fields,
			Files:  files,
		})
	}
	return details, nil
}

func (s *Service) SubmissionChanges(ctx context.Context, session Session, submissionID int64) (form.ChangeReport, error) {
	if _, err := s.resolveSubmission(ctx, session, submissionID); err != nil {
		return form.ChangeReport{}, err
	}
	return s.form.Changes(ctx, submissionID)
}

func (s *Service) SubmissionPDF(ctx context.Context, session Session, submissionID int64) (*export.Result, error) {
	if _, err := s.resolveSubmission(ctx, session, submissionID); err != nil {
		return nil, err
	}
	return s.export.SubmissionPDF(ctx, submissionID)
}

func (s *Service) SubmissionZIP(ctx context.Context, session Session, submissionID int64) (*export.Result, error) {
	if _, err := s.resolveSubmission(ctx, session, submissionID); err != nil {
		return nil, err
	}
	return s.export.SubmissionZIP(ctx, submissionID)
}

func (s *Service) resolveSubmission(ctx context.Context, session Session, submissionID int64) (store.SubmissionListing, error) {
	listing, err := s.store.GetSubmissionWithCustomer(ctx, submissionID)
	if err != nil {
		return store.SubmissionListing{}, err
	}
	customer, err := s.store.GetCustomerByID(ctx, listing.CustomerID)
	if err != nil {
		return store.SubmissionListing{}, err
	}
	if !s.canAccessCustomer(session, customer) {
		return store.SubmissionListing{}, domainError(http.StatusForbidden, "FORBIDDEN", "Access denied", nil)
	}
	return listing, nil
}

// ── Public form (token-authenticated customer) ──

// Upload is one incoming multipart file destined for blob storage.
type Upload struct {
	FieldName   string
	FileName    string
	ContentType string
	Content     io.Reader
	Size        int64
}

// FormState is the payload the public form renders from.
type FormState struct {
	Customer store.Customer
	Draft    form.DraftView
}

func (s *Service) GetFormState(ctx context.Context, token string) (FormState, error) {
	customer, err := s.store.GetCustomerByToken(ctx, token)
	if err != nil {
		return FormState{}, err
	}
	draft, err := s.form.GetOrCreateDraft(ctx, customer.ID)
	if err != nil {
		return FormState{}, err
	}
	return FormState{Customer: customer, Draft: draft}, nil
}

func (s *Service) SaveForm(ctx context.Context, token string, fields map[string]string, uploads []Upload) (int64, error) {
	customer, err := s.store.GetCustomerByToken(ctx, token)
	if err != nil {
		return 0, err
	}
	files, err := s.storeUploads(ctx, uploads)
	if err != nil {
		return 0, err
	}
	return s.form.SaveDraft(ctx, customer.ID, fields, files)
}

func (s *Service) SubmitForm(ctx context.Context, token string, fields map[string]string, uploads []Upload) (form.SubmitResult, error) {
	customer, err := s.store.GetCustomerByToken(ctx, token)
	if err != nil {
		return form.SubmitResult{}, err
	}
	files, err := s.storeUploads(ctx, uploads)
	if err != nil {
		return form.SubmitResult{}, err
	}
	result, err := s.form.SubmitDraft(ctx, customer.ID, fields, files)
	if err != nil {
		return form.SubmitResult{}, err
	}

	s.notifyRepresentative(ctx, customer, result.SubmissionID)
	return result, nil
}

// notifyRepresentative emails the customer's representative about a
// new submission. Failures are logged, never surfaced: the submission
// already happened.
func (s *Service) notifyRepresentative(ctx context.Context, customer store.Customer, submissionID int64) {
	if s.email == nil || !s.email.IsConfigured() || customer.EdustajaID == nil {
		return
	}
	representative, err := s.store.GetUserByID(ctx, *customer.EdustajaID)
	if err != nil {
		log.Printf("notify: representative lookup for customer %d: %v", customer.ID, err)
		return
	}
	formURL := fmt.Sprintf("%s/submissions/%d", strings.TrimRight(s.cfg.FrontendURL, "/"), submissionID)
	if err := s.email.SendSubmissionNotification(representative.Email, email.SubmissionData{
		CustomerName:  customer.Name,
		CustomerEmail: customer.Email,
		FormURL:       formURL,
	}); err != nil {
		log.Printf("notify: send submission email for customer %d: %v", customer.ID, err)
	}
}

func (s *Service) DeleteFormFile(ctx context.Context, token string, fileID int64) (bool, error) {
	customer, err := s.store.GetCustomerByToken(ctx, token)
	if err != nil {
		return false, err
	}
	return s.form.DeleteDraftFile(ctx, customer.ID, fileID)
}

func (s *Service) storeUploads(ctx context.Context, uploads []Upload) ([]form.FileInput, error) {
	files := make([]form.FileInput, 0, len(uploads))
	for _, upload := range uploads {
		fieldName := upload.FieldName
		if fieldName == "" {
			fieldName = "general"
		}
		stored, err := s.blobs.Save(ctx, upload.FileName, upload.ContentType, upload.Content, upload.Size)
		if err != nil {
			if errors.Is(err, blob.ErrExtensionNotAllowed) {
				return nil, domainError(http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("Invalid file type: %s", upload.FileName), nil)
			}
			return nil, err
		}
		files = append(files, form.FileInput{
			FieldName: fieldName,
			FileName:  upload.FileName,
			FileURL:   stored.URL,
		})
	}
	return files, nil
}
