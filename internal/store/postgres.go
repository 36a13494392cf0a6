package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// Ping verifies the database connection is alive
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ── Staff users ──

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, display_name, role)
		VALUES ($1, LOWER($2), $3, $4, $5)
	`, user.ID, user.Email, user.PasswordHash, user.DisplayName, user.Role)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, display_name, role, created_at
		FROM users
		WHERE email = LOWER($1)
	`, email).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.DisplayName, &user.Role, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, display_name, role, created_at
		FROM users
		WHERE id=$1
	`, userID).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.DisplayName, &user.Role, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// ── Refresh sessions (PostgreSQL fallback when Redis is not configured) ──

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.email, u.password_hash, u.display_name, u.role, u.created_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.Email, &user.PasswordHash, &user.DisplayName, &user.Role, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// ── Customers ──

func (s *PostgresStore) CreateCustomer(ctx context.Context, customer Customer) (Customer, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO customers (name, email, name1, name2, token, edustaja_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`, customer.Name, customer.Email, customer.Name1, customer.Name2, customer.Token, customer.EdustajaID).
		Scan(&customer.ID, &customer.CreatedAt)
	if err != nil {
		return Customer{}, fmt.Errorf("insert customer: %w", err)
	}
	return customer, nil
}

// ListCustomers returns customers with submission aggregates. A
// non-empty edustajaID restricts the listing to that representative's
// customers.
func (s *PostgresStore) ListCustomers(ctx context.Context, edustajaID string) ([]CustomerSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.email, c.name1, c.name2, c.token, c.edustaja_id, c.created_at,
			COUNT(s.id) FILTER (WHERE s.status = 'submitted')::int,
			MAX(s.submitted_at) FILTER (WHERE s.status = 'submitted')
		FROM customers c
		LEFT JOIN submissions s ON s.customer_id = c.id
		WHERE ($1 = '' OR c.edustaja_id = $1)
		GROUP BY c.id
		ORDER BY c.created_at DESC
	`, edustajaID)
	if err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	items := make([]CustomerSummary, 0)
	for rows.Next() {
		var item CustomerSummary
		if err := rows.Scan(
			&item.ID,
			&item.Name,
			&item.Email,
			&item.Name1,
			&item.Name2,
			&item.Token,
			&item.EdustajaID,
			&item.CreatedAt,
			&item.SubmittedCount,
			&item.LastSubmission,
		); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customers: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetCustomerByToken(ctx context.Context, token string) (Customer, error) {
	var item Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, name1, name2, token, edustaja_id, created_at
		FROM customers
		WHERE token=$1
	`, token).Scan(&item.ID, &item.Name, &item.Email, &item.Name1, &item.Name2, &item.Token, &item.EdustajaID, &item.CreatedAt)
	if err != nil {
		return Customer{}, err
	}
	return item, nil
}

func (s *PostgresStore) GetCustomerByID(ctx context.Context, customerID int64) (Customer, error) {
	var item Customer
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, name1, name2, token, edustaja_id, created_at
		FROM customers
		WHERE id=$1
	`, customerID).Scan(&item.ID, &item.Name, &item.Email, &item.Name1, &item.Name2, &item.Token, &item.EdustajaID, &item.CreatedAt)
	if err != nil {
		return Customer{}, err
	}
	return item, nil
}

// DeleteCustomer removes a customer; submissions, fields and files go
// with it through the foreign-key cascade.
func (s *PostgresStore) DeleteCustomer(ctx context.Context, customerID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM customers WHERE id=$1`, customerID)
	if err != nil {
		return false, fmt.Errorf("delete customer: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete customer rows: %w", err)
	}
	return affected > 0, nil
}

// SearchCustomers is the ILIKE fallback used when Meilisearch is not
// configured.
func (s *PostgresStore) SearchCustomers(ctx context.Context, query, edustajaID string, limit int) ([]Customer, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, name1, name2, token, edustaja_id, created_at
		FROM customers
		WHERE ($2 = '' OR edustaja_id = $2)
			AND (name ILIKE '%' || $1 || '%'
				OR email ILIKE '%' || $1 || '%'
				OR name1 ILIKE '%' || $1 || '%'
				OR name2 ILIKE '%' || $1 || '%')
		ORDER BY created_at DESC
		LIMIT $3
	`, query, edustajaID, limit)
	if err != nil {
		return nil, fmt.Errorf("search customers: %w", err)
	}
	defer rows.Close()

	items := make([]Customer, 0)
	for rows.Next() {
		var item Customer
		if err := rows.Scan(&item.ID, &item.Name, &item.Email, &item.Name1, &item.Name2, &item.Token, &item.EdustajaID, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customers: %w", err)
	}
	return items, nil
}

// ── Submissions (staff views) ──

func (s *PostgresStore) ListSubmissions(ctx context.Context, edustajaID string) ([]SubmissionListing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.customer_id, s.status, s.version, s.parent_submission_id, s.created_at, s.submitted_at,
			c.name, c.email, c.token
		FROM submissions s
		JOIN customers c ON c.id = s.customer_id
		WHERE ($1 = '' OR c.edustaja_id = $1)
		ORDER BY s.submitted_at DESC NULLS LAST, s.created_at DESC
	`, edustajaID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	items := make([]SubmissionListing, 0)
	for rows.Next() {
		var item SubmissionListing
		if err := rows.Scan(
			&item.ID,
			&item.CustomerID,
			&item.Status,
			&item.Version,
			&item.ParentSubmissionID,
			&item.CreatedAt,
			&item.SubmittedAt,
			&item.CustomerName,
			&item.CustomerEmail,
			&item.CustomerToken,
		); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submissions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetSubmission(ctx context.Context, submissionID int64) (Submission, error) {
	var item Submission
	err := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, status, version, parent_submission_id, created_at, submitted_at
		FROM submissions
		WHERE id=$1
	`, submissionID).Scan(&item.ID, &item.CustomerID, &item.Status, &item.Version, &item.ParentSubmissionID, &item.CreatedAt, &item.SubmittedAt)
	if err != nil {
		return Submission{}, err
	}
	return item, nil
}

func (s *PostgresStore) GetSubmissionWithCustomer(ctx context.Context, submissionID int64) (SubmissionListing, error) {
	var item SubmissionListing
	err := s.db.QueryRowContext(ctx, `
		SELECT s.id, s.customer_id, s.status, s.version, s.parent_submission_id, s.created_at, s.submitted_at,
			c.name, c.email, c.token
		FROM submissions s
		JOIN customers c ON c.id = s.customer_id
		WHERE s.id=$1
	`, submissionID).Scan(
		&item.ID,
		&item.CustomerID,
		&item.Status,
		&item.Version,
		&item.ParentSubmissionID,
		&item.CreatedAt,
		&item.SubmittedAt,
		&item.CustomerName,
		&item.CustomerEmail,
		&item.CustomerToken,
	)
	if err != nil {
		return SubmissionListing{}, err
	}
	return item, nil
}

// ListSubmittedVersions returns a customer's submitted rows ordered by
// version descending, tie-broken by submission and creation time.
func (s *PostgresStore) ListSubmittedVersions(ctx context.Context, customerID int64) ([]Submission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_id, status, version, parent_submission_id, created_at, submitted_at
		FROM submissions
		WHERE customer_id=$1 AND status='submitted'
		ORDER BY version DESC NULLS LAST, submitted_at DESC NULLS LAST, created_at DESC
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("list submitted versions: %w", err)
	}
	defer rows.Close()

	items := make([]Submission, 0)
	for rows.Next() {
		var item Submission
		if err := rows.Scan(&item.ID, &item.CustomerID, &item.Status, &item.Version, &item.ParentSubmissionID, &item.CreatedAt, &item.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan submitted version: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submitted versions: %w", err)
	}
	return items, nil
}

// ── Answer Store primitives (internal/form depends on these) ──

func (s *PostgresStore) FindDraft(ctx context.Context, customerID int64) (*Submission, error) {
	var item Submission
	err := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, status, version, parent_submission_id, created_at, submitted_at
		FROM submissions
		WHERE customer_id=$1 AND status='draft'
		ORDER BY created_at DESC
		LIMIT 1
	`, customerID).Scan(&item.ID, &item.CustomerID, &item.Status, &item.Version, &item.ParentSubmissionID, &item.CreatedAt, &item.SubmittedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find draft: %w", err)
	}
	return &item, nil
}

func (s *PostgresStore) FindLatestSubmitted(ctx context.Context, customerID int64) (*Submission, error) {
	var item Submission
	err := s.db.QueryRowContext(ctx, `
		SELECT id, customer_id, status, version, parent_submission_id, created_at, submitted_at
		FROM submissions
		WHERE customer_id=$1 AND status='submitted'
		ORDER BY version DESC NULLS LAST, submitted_at DESC NULLS LAST, created_at DESC
		LIMIT 1
	`, customerID).Scan(&item.ID, &item.CustomerID, &item.Status, &item.Version, &item.ParentSubmissionID, &item.CreatedAt, &item.SubmittedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find latest submitted: %w", err)
	}
	return &item, nil
}

func (s *PostgresStore) CreateDraft(ctx context.Context, customerID int64) (Submission, error) {
	var item Submission
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO submissions (customer_id, status)
		VALUES ($1, 'draft')
		RETURNING id, customer_id, status, version, parent_submission_id, created_at, submitted_at
	`, customerID).Scan(&item.ID, &item.CustomerID, &item.Status, &item.Version, &item.ParentSubmissionID, &item.CreatedAt, &item.SubmittedAt)
	if err != nil {
		return Submission{}, fmt.Errorf("create draft: %w", err)
	}
	return item, nil
}

// PromoteDraft flips a draft to submitted in place. The status guard
// makes a retried promote a no-op instead of a version rewrite.
func (s *PostgresStore) PromoteDraft(ctx context.Context, submissionID int64, version int, parentSubmissionID *int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE submissions
		SET status='submitted', submitted_at=NOW(), version=$2, parent_submission_id=$3
		WHERE id=$1 AND status='draft'
	`, submissionID, version, parentSubmissionID)
	if err != nil {
		return fmt.Errorf("promote draft: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpsertField(ctx context.Context, submissionID int64, name, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO submission_fields (submission_id, field_name, field_value)
		VALUES ($1, $2, $3)
		ON CONFLICT (submission_id, field_name) DO UPDATE SET field_value=EXCLUDED.field_value
	`, submissionID, name, value)
	if err != nil {
		return fmt.Errorf("upsert field: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListFields(ctx context.Context, submissionID int64) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT field_name, field_value
		FROM submission_fields
		WHERE submission_id=$1
	`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	defer rows.Close()

	fields := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		fields[name] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fields: %w", err)
	}
	return fields, nil
}

func (s *PostgresStore) ListFiles(ctx context.Context, submissionID int64) ([]FileEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, submission_id, field_name, file_name, file_url, uploaded_at
		FROM submission_files
		WHERE submission_id=$1
		ORDER BY uploaded_at ASC, id ASC
	`, submissionID)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	items := make([]FileEntry, 0)
	for rows.Next() {
		var item FileEntry
		if err := rows.Scan(&item.ID, &item.SubmissionID, &item.FieldName, &item.FileName, &item.FileURL, &item.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}
	return items, nil
}

// InsertFileIfAbsent appends a file row unless the exact
// (submission, field, file name) triple already exists. Retried save
// and clone calls therefore never duplicate rows.
func (s *PostgresStore) InsertFileIfAbsent(ctx context.Context, submissionID int64, fieldName, fileName, fileURL string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO submission_files (submission_id, field_name, file_name, file_url)
		SELECT $1, $2, $3, $4
		WHERE NOT EXISTS (
			SELECT 1 FROM submission_files
			WHERE submission_id=$1 AND field_name=$2 AND file_name=$3
		)
	`, submissionID, fieldName, fileName, fileURL)
	if err != nil {
		return false, fmt.Errorf("insert file: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert file rows: %w", err)
	}
	return affected > 0, nil
}

// DeleteFile removes a file row scoped to its submission. The stored
// blob is left alone: clones share storage URLs with older versions.
func (s *PostgresStore) DeleteFile(ctx context.Context, fileID, submissionID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM submission_files
		WHERE id=$1 AND submission_id=$2
	`, fileID, submissionID)
	if err != nil {
		return false, fmt.Errorf("delete file: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete file rows: %w", err)
	}
	return affected > 0, nil
}
