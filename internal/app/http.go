package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lahtotiedot/api/internal/auth"
	"lahtotiedot/api/internal/authpw"
	"lahtotiedot/api/internal/export"
	"lahtotiedot/api/internal/form"
	"lahtotiedot/api/internal/store"
)

type HTTPServer struct {
	service       *Service
	corsOrigin    string
	maxUploadSize int64
	uploadDir     string
}

func NewHTTPServer(service *Service, corsOrigin string, maxUploadSize int64, uploadDir string) *HTTPServer {
	return &HTTPServer{
		service:       service,
		corsOrigin:    corsOrigin,
		maxUploadSize: maxUploadSize,
		uploadDir:     uploadDir,
	}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	// Uploaded blobs, local-disk mode only.
	if r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/uploads/") && s.uploadDir != "" {
		w.Header().Del("Content-Type")
		http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.uploadDir))).ServeHTTP(w, r)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[1] {
	case "auth":
		s.handleAuth(w, r, parts)
	case "form":
		s.handleForm(w, r, parts)
	case "customers":
		s.handleCustomers(w, r, parts)
	case "submissions":
		s.handleSubmissions(w, r, parts)
	case "search":
		s.handleSearch(w, r, parts)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}

	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}

	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

// ── Auth endpoints ──

func (s *HTTPServer) handleAuth(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) != 3 || r.Method != http.MethodPost {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[2] {
	case "login":
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.SignIn(r.Context(), body.Email, body.Password)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session))
	case "refresh":
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		session, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sessionPayload(session))
	case "logout":
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.Logout(r.Context(), body.RefreshToken); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case "register":
		session, ok := s.requireSession(w, r)
		if !ok {
			return
		}
		var body struct {
			Email       string `json:"email"`
			Password    string `json:"password"`
			DisplayName string `json:"displayName"`
			Role        string `json:"role"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		user, err := s.service.RegisterUser(r.Context(), session, authpw.RegisterRequest{
			Email:       body.Email,
			Password:    body.Password,
			DisplayName: body.DisplayName,
			Role:        body.Role,
		})
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"user": map[string]any{
				"id":          user.ID,
				"email":       user.Email,
				"displayName": user.DisplayName,
				"role":        user.Role,
			},
		})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func sessionPayload(session Session) map[string]any {
	return map[string]any{
		"token":        session.Token,
		"refreshToken": session.RefreshToken,
		"user": map[string]any{
			"id":          session.UserID,
			"email":       session.Email,
			"displayName": session.UserName,
			"role":        session.Role,
		},
		"expiresAt": session.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

// ── Public form endpoints (token in path, no staff session) ──

func (s *HTTPServer) handleForm(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) < 3 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	token := parts[2]

	switch {
	case len(parts) == 3 && r.Method == http.MethodGet:
		state, err := s.service.GetFormState(r.Context(), token)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"customer": customerPayload(state.Customer),
			"submission": map[string]any{
				"id":     state.Draft.SubmissionID,
				"fields": decodedFields(state.Draft.Fields),
				"files":  groupedFiles(state.Draft.Files),
			},
		})
	case len(parts) == 4 && parts[3] == "save" && r.Method == http.MethodPost:
		fields, uploads, err := s.parseFormRequest(r)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		submissionID, err := s.service.SaveForm(r.Context(), token, fields, uploads)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "submissionId": submissionID})
	case len(parts) == 4 && parts[3] == "submit" && r.Method == http.MethodPost:
		fields, uploads, err := s.parseFormRequest(r)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		result, err := s.service.SubmitForm(r.Context(), token, fields, uploads)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":      true,
			"submissionId": result.SubmissionID,
			"version":      result.Version,
		})
	case len(parts) == 5 && parts[3] == "file" && r.Method == http.MethodDelete:
		fileID, err := strconv.ParseInt(parts[4], 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid file id", nil)
			return
		}
		deleted, err := s.service.DeleteFormFile(r.Context(), token, fileID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		if !deleted {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "File not found", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// parseFormRequest reads the save/submit body: either plain JSON or a
// multipart form with a "fields" JSON part, "files" file parts, and a
// "fieldNames" part mapping file name to form field.
func (s *HTTPServer) parseFormRequest(r *http.Request) (map[string]string, []Upload, error) {
	contentType := r.Header.Get("Content-Type")

	if !strings.HasPrefix(contentType, "multipart/form-data") {
		var body struct {
			Fields map[string]json.RawMessage `json:"fields"`
		}
		if err := decodeBody(r, &body); err != nil {
			return nil, nil, domainError(http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		}
		return rawFields(body.Fields), nil, nil
	}

	r.Body = http.MaxBytesReader(nil, r.Body, s.maxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		return nil, nil, domainError(http.StatusBadRequest, "INVALID_BODY", "File upload error: "+err.Error(), nil)
	}

	fields := map[string]string{}
	if raw := r.FormValue("fields"); raw != "" {
		var decoded map[string]json.RawMessage
		if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
			return nil, nil, domainError(http.StatusBadRequest, "INVALID_BODY", "Invalid fields JSON", nil)
		}
		fields = rawFields(decoded)
	}

	fieldNames := map[string]string{}
	if raw := r.FormValue("fieldNames"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &fieldNames); err != nil {
			return nil, nil, domainError(http.StatusBadRequest, "INVALID_BODY", "Invalid fieldNames JSON", nil)
		}
	}
	defaultField := r.FormValue("fieldName")

	var uploads []Upload
	if r.MultipartForm != nil {
		for _, header := range r.MultipartForm.File["files"] {
			file, err := header.Open()
			if err != nil {
				return nil, nil, domainError(http.StatusBadRequest, "INVALID_BODY", "File upload error: "+err.Error(), nil)
			}
			fieldName := fieldNames[header.Filename]
			if fieldName == "" {
				fieldName = defaultField
			}
			uploads = append(uploads, Upload{
				FieldName:   fieldName,
				FileName:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Content:     file,
				Size:        header.Size,
			})
		}
	}
	return fields, uploads, nil
}

// rawFields keeps each field value as its compact JSON encoding; the
// store and diff layers treat values as opaque JSON text.
func rawFields(decoded map[string]json.RawMessage) map[string]string {
	fields := make(map[string]string, len(decoded))
	for name, raw := range decoded {
		fields[name] = string(raw)
	}
	return fields
}

// decodedFields parses stored values back to JSON for the response,
// falling back to the raw string for pre-JSON legacy values.
func decodedFields(fields map[string]string) map[string]any {
	out := make(map[string]any, len(fields))
	for name, value := range fields {
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err != nil {
			out[name] = value
			continue
		}
		out[name] = decoded
	}
	return out
}

func groupedFiles(files []store.FileEntry) map[string][]map[string]any {
	grouped := make(map[string][]map[string]any)
	for _, file := range files {
		grouped[file.FieldName] = append(grouped[file.FieldName], map[string]any{
			"id":   file.ID,
			"name": file.FileName,
			"url":  file.FileURL,
		})
	}
	return grouped
}

// ── Customer endpoints (staff) ──

func (s *HTTPServer) handleCustomers(w http.ResponseWriter, r *http.Request, parts []string) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	switch {
	case len(parts) == 2 && r.Method == http.MethodPost:
		var body CreateCustomerInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		customer, formURL, err := s.service.CreateCustomer(r.Context(), session, body)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"customer": customerPayload(customer),
			"formUrl":  formURL,
		})
	case len(parts) == 2 && r.Method == http.MethodGet:
		customers, err := s.service.ListCustomers(r.Context(), session)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		items := make([]map[string]any, 0, len(customers))
		for _, customer := range customers {
			payload := customerPayload(customer.Customer)
			payload["submissionCount"] = customer.SubmittedCount
			payload["lastSubmission"] = customer.LastSubmission
			items = append(items, payload)
		}
		writeJSON(w, http.StatusOK, map[string]any{"customers": items})
	case len(parts) == 3 && r.Method == http.MethodGet:
		customer, err := s.service.GetCustomerByToken(r.Context(), session, parts[2])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"customer": customerPayload(customer)})
	case len(parts) == 4 && parts[3] == "submissions" && r.Method == http.MethodGet:
		details, err := s.service.ListCustomerVersions(r.Context(), session, parts[2])
		if err != nil {
			writeMappedError(w, err)
			return
		}
		items := make([]map[string]any, 0, len(details))
		for _, detail := range details {
			items = append(items, submissionDetailPayload(detail))
		}
		writeJSON(w, http.StatusOK, map[string]any{"submissions": items})
	case len(parts) == 3 && r.Method == http.MethodDelete:
		customerID, err := strconv.ParseInt(parts[2], 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid customer id", nil)
			return
		}
		if err := s.service.DeleteCustomer(r.Context(), session, customerID); err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func customerPayload(customer store.Customer) map[string]any {
	return map[string]any{
		"id":         customer.ID,
		"name":       customer.Name,
		"email":      customer.Email,
		"name1":      customer.Name1,
		"name2":      customer.Name2,
		"token":      customer.Token,
		"edustajaId": customer.EdustajaID,
		"createdAt":  customer.CreatedAt,
	}
}

// ── Submission endpoints (staff) ──

func (s *HTTPServer) handleSubmissions(w http.ResponseWriter, r *http.Request, parts []string) {
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	switch {
	case len(parts) == 2 && r.Method == http.MethodGet:
		listings, err := s.service.ListSubmissions(r.Context(), session)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		items := make([]map[string]any, 0, len(listings))
		for _, listing := range listings {
			items = append(items, submissionPayload(listing))
		}
		writeJSON(w, http.StatusOK, map[string]any{"submissions": items})
	case len(parts) == 3 && r.Method == http.MethodGet:
		submissionID, ok := parseSubmissionID(w, parts[2])
		if !ok {
			return
		}
		detail, err := s.service.GetSubmissionDetail(r.Context(), session, submissionID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"submission": submissionDetailPayload(detail)})
	case len(parts) == 4 && parts[3] == "changes" && r.Method == http.MethodGet:
		submissionID, ok := parseSubmissionID(w, parts[2])
		if !ok {
			return
		}
		report, err := s.service.SubmissionChanges(r.Context(), session, submissionID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"changes": report})
	case len(parts) == 4 && parts[3] == "pdf" && r.Method == http.MethodGet:
		submissionID, ok := parseSubmissionID(w, parts[2])
		if !ok {
			return
		}
		result, err := s.service.SubmissionPDF(r.Context(), session, submissionID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeExport(w, result)
	case len(parts) == 4 && parts[3] == "zip" && r.Method == http.MethodGet:
		submissionID, ok := parseSubmissionID(w, parts[2])
		if !ok {
			return
		}
		result, err := s.service.SubmissionZIP(r.Context(), session, submissionID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeExport(w, result)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func parseSubmissionID(w http.ResponseWriter, raw string) (int64, bool) {
	submissionID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid submission id", nil)
		return 0, false
	}
	return submissionID, true
}

func submissionPayload(listing store.SubmissionListing) map[string]any {
	return map[string]any{
		"id":                 listing.ID,
		"customerId":         listing.CustomerID,
		"status":             listing.Status,
		"version":            listing.Version,
		"parentSubmissionId": listing.ParentSubmissionID,
		"createdAt":          listing.CreatedAt,
		"submittedAt":        listing.SubmittedAt,
		"customerName":       listing.CustomerName,
		"customerEmail":      listing.CustomerEmail,
		"customerToken":      listing.CustomerToken,
	}
}

func submissionDetailPayload(detail SubmissionDetail) map[string]any {
	payload := submissionPayload(detail.Listing)
	payload["fields"] = decodedFields(detail.Fields)
	payload["files"] = groupedFiles(detail.Files)
	return payload
}

func writeExport(w http.ResponseWriter, result *export.Result) {
	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

// ── Search endpoint (staff) ──

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, parts []string) {
	if len(parts) != 2 || r.Method != http.MethodGet {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	query := r.URL.Query().Get("q")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	response, err := s.service.SearchCustomers(r.Context(), session, query, limit)
	if err != nil {
		writeMappedError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

// ── Plumbing ──

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) || errors.Is(err, auth.ErrInvalidToken) {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return Session{}, false
		}
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Session lookup failed", nil)
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeMappedError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, form.ErrNoSubmission) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	if errors.Is(err, export.ErrPDFDependencyMissing) {
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF renderer unavailable", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
