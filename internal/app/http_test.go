package app

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

func newTestHTTPServer(fs *fakeStore) (*HTTPServer, *Service) {
	service := newTestService(fs)
	server := NewHTTPServer(service, "*", 50<<20, "")
	return server, service
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", "application/json")
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	return recorder
}

func decodeResponse(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}

func TestHealthAndReady(t *testing.T) {
	server, _ := newTestHTTPServer(newFakeStore())
	handler := server.Handler()

	recorder := doJSON(t, handler, http.MethodGet, "/api/health", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("health returned %d", recorder.Code)
	}

	recorder = doJSON(t, handler, http.MethodGet, "/api/ready", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("ready returned %d", recorder.Code)
	}
	payload := decodeResponse(t, recorder)
	if payload["status"] != "ready" {
		t.Fatalf("unexpected ready payload %v", payload)
	}
}

func TestLoginAndAuthorizedListing(t *testing.T) {
	fs := newFakeStore()
	server, _ := newTestHTTPServer(fs)
	handler := server.Handler()
	seedUser(t, fs, "usr_1", "pekka@example.fi", "salasana123", "edustaja")

	recorder := doJSON(t, handler, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "pekka@example.fi",
		"password": "salasana123",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("login returned %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeResponse(t, recorder)
	token, _ := payload["token"].(string)
	if token == "" {
		t.Fatal("expected access token in login response")
	}

	recorder = doJSON(t, handler, http.MethodGet, "/api/customers", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("customers returned %d: %s", recorder.Code, recorder.Body.String())
	}

	recorder = doJSON(t, handler, http.MethodGet, "/api/customers", "", nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", recorder.Code)
	}

	recorder = doJSON(t, handler, http.MethodGet, "/api/customers", "not.atoken", nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", recorder.Code)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	fs := newFakeStore()
	server, _ := newTestHTTPServer(fs)
	handler := server.Handler()
	seedUser(t, fs, "usr_1", "pekka@example.fi", "salasana123", "edustaja")

	recorder := doJSON(t, handler, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    "pekka@example.fi",
		"password": "wrong",
	})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
	payload := decodeResponse(t, recorder)
	if payload["code"] != "UNAUTHORIZED" {
		t.Fatalf("unexpected error payload %v", payload)
	}
}

func TestRefreshRotatesToken(t *testing.T) {
	fs := newFakeStore()
	server, _ := newTestHTTPServer(fs)
	handler := server.Handler()
	seedUser(t, fs, "usr_1", "pekka@example.fi", "salasana123", "edustaja")

	login := decodeResponse(t, doJSON(t, handler, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "pekka@example.fi", "password": "salasana123",
	}))
	refreshToken, _ := login["refreshToken"].(string)

	recorder := doJSON(t, handler, http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"refreshToken": refreshToken,
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("refresh returned %d: %s", recorder.Code, recorder.Body.String())
	}
	rotated := decodeResponse(t, recorder)
	if rotated["refreshToken"] == refreshToken {
		t.Fatal("refresh token was not rotated")
	}

	recorder = doJSON(t, handler, http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"refreshToken": refreshToken,
	})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected reused token to fail with 401, got %d", recorder.Code)
	}
}

func TestPublicFormNeedsNoSession(t *testing.T) {
	fs := newFakeStore()
	server, service := newTestHTTPServer(fs)
	handler := server.Handler()
	edustaja := seedUser(t, fs, "usr_1", "pekka@example.fi", "salasana123", "edustaja")

	customer, _, err := service.CreateCustomer(context.Background(), staffSession(edustaja), CreateCustomerInput{
		Name: "Matti", Email: "matti@example.fi", Name1: "Kohde",
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	recorder := doJSON(t, handler, http.MethodGet, "/api/form/"+customer.Token, "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("form returned %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeResponse(t, recorder)
	customerPayload, _ := payload["customer"].(map[string]any)
	if customerPayload["name"] != "Matti" {
		t.Fatalf("unexpected form payload %v", payload)
	}

	recorder = doJSON(t, handler, http.MethodGet, "/api/form/no-such-token", "", nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown token, got %d", recorder.Code)
	}
}

func multipartForm(t *testing.T, fields map[string]any, files map[string]string, fieldNames map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	encodedFields, err := json.Marshal(fields)
	if err != nil {
		t.Fatalf("marshal fields: %v", err)
	}
	if err := writer.WriteField("fields", string(encodedFields)); err != nil {
		t.Fatalf("write fields: %v", err)
	}
	if fieldNames != nil {
		encodedNames, err := json.Marshal(fieldNames)
		if err != nil {
			t.Fatalf("marshal fieldNames: %v", err)
		}
		if err := writer.WriteField("fieldNames", string(encodedNames)); err != nil {
			t.Fatalf("write fieldNames: %v", err)
		}
	}
	for name, content := range files {
		part, err := writer.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write([]byte(content)); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, writer.FormDataContentType()
}

func TestFormSubmitMultipart(t *testing.T) {
	fs := newFakeStore()
	server, service := newTestHTTPServer(fs)
	handler := server.Handler()
	edustaja := seedUser(t, fs, "usr_1", "pekka@example.fi", "salasana123", "edustaja")

	customer, _, err := service.CreateCustomer(context.Background(), staffSession(edustaja), CreateCustomerInput{
		Name: "Matti", Email: "matti@example.fi", Name1: "Kohde",
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	body, contentType := multipartForm(t,
		map[string]any{"tontin_osoite": "Esimerkkikatu 1", "huoneet": []string{"keittiö", "sauna"}},
		map[string]string{"kaava.pdf": "%PDF-1.4"},
		map[string]string{"kaava.pdf": "kaavaote"},
	)
	request := httptest.NewRequest(http.MethodPost, "/api/form/"+customer.Token+"/submit", body)
	request.Header.Set("Content-Type", contentType)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("submit returned %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeResponse(t, recorder)
	if payload["version"] != float64(1) {
		t.Fatalf("unexpected submit payload %v", payload)
	}

	// Staff view shows the decoded fields and grouped files.
	login := decodeResponse(t, doJSON(t, handler, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "pekka@example.fi", "password": "salasana123",
	}))
	token, _ := login["token"].(string)

	recorder = doJSON(t, handler, http.MethodGet, "/api/customers/"+customer.Token+"/submissions", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("submissions returned %d: %s", recorder.Code, recorder.Body.String())
	}
	listing := decodeResponse(t, recorder)
	submissions, _ := listing["submissions"].([]any)
	if len(submissions) != 1 {
		t.Fatalf("expected one submitted version, got %v", listing)
	}
	version, _ := submissions[0].(map[string]any)
	fields, _ := version["fields"].(map[string]any)
	if fields["tontin_osoite"] != "Esimerkkikatu 1" {
		t.Fatalf("unexpected fields %v", fields)
	}
	files, _ := version["files"].(map[string]any)
	if _, ok := files["kaavaote"]; !ok {
		t.Fatalf("expected file grouped under kaavaote, got %v", files)
	}
}

func TestFormSaveAndDeleteFile(t *testing.T) {
	fs := newFakeStore()
	server, service := newTestHTTPServer(fs)
	handler := server.Handler()
	edustaja := seedUser(t, fs, "usr_1", "pekka@example.fi", "salasana123", "edustaja")

	customer, _, err := service.CreateCustomer(context.Background(), staffSession(edustaja), CreateCustomerInput{
		Name: "Matti", Email: "matti@example.fi", Name1: "Kohde",
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}

	body, contentType := multipartForm(t,
		map[string]any{"lisatiedot": "x"},
		map[string]string{"kaava.pdf": "%PDF-1.4"},
		map[string]string{"kaava.pdf": "kaavaote"},
	)
	request := httptest.NewRequest(http.MethodPost, "/api/form/"+customer.Token+"/save", body)
	request.Header.Set("Content-Type", contentType)
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	if recorder.Code != http.StatusOK {
		t.Fatalf("save returned %d: %s", recorder.Code, recorder.Body.String())
	}

	state := decodeResponse(t, doJSON(t, handler, http.MethodGet, "/api/form/"+customer.Token, "", nil))
	submission, _ := state["submission"].(map[string]any)
	groups, _ := submission["files"].(map[string]any)
	group, _ := groups["kaavaote"].([]any)
	if len(group) != 1 {
		t.Fatalf("expected one uploaded file, got %v", groups)
	}
	entry, _ := group[0].(map[string]any)
	fileID, _ := entry["id"].(float64)

	recorder = doJSON(t, handler, http.MethodDelete, "/api/form/"+customer.Token+"/file/"+strconv.FormatInt(int64(fileID), 10), "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("delete returned %d: %s", recorder.Code, recorder.Body.String())
	}

	state = decodeResponse(t, doJSON(t, handler, http.MethodGet, "/api/form/"+customer.Token, "", nil))
	submission, _ = state["submission"].(map[string]any)
	groups, _ = submission["files"].(map[string]any)
	if group, _ := groups["kaavaote"].([]any); len(group) != 0 {
		t.Fatalf("expected file removed, got %v", groups)
	}

	recorder = doJSON(t, handler, http.MethodDelete, "/api/form/"+customer.Token+"/file/9999", "", nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown file, got %d", recorder.Code)
	}
}

func TestChangesEndpoint(t *testing.T) {
	fs := newFakeStore()
	server, service := newTestHTTPServer(fs)
	handler := server.Handler()
	edustaja := seedUser(t, fs, "usr_1", "pekka@example.fi", "salasana123", "edustaja")

	customer, _, err := service.CreateCustomer(context.Background(), staffSession(edustaja), CreateCustomerInput{
		Name: "Matti", Email: "matti@example.fi", Name1: "Kohde",
	})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
	first, err := service.SubmitForm(context.Background(), customer.Token, map[string]string{"lisatiedot": `"eka"`}, nil)
	if err != nil {
		t.Fatalf("submit v1: %v", err)
	}
	second, err := service.SubmitForm(context.Background(), customer.Token, map[string]string{"lisatiedot": `"toka"`}, nil)
	if err != nil {
		t.Fatalf("submit v2: %v", err)
	}

	login := decodeResponse(t, doJSON(t, handler, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "pekka@example.fi", "password": "salasana123",
	}))
	token, _ := login["token"].(string)

	recorder := doJSON(t, handler, http.MethodGet, "/api/submissions/"+fmtInt(first.SubmissionID)+"/changes", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("changes returned %d: %s", recorder.Code, recorder.Body.String())
	}
	payload := decodeResponse(t, recorder)
	changes, _ := payload["changes"].(map[string]any)
	if changes["isFirstSubmission"] != true {
		t.Fatalf("expected first submission report, got %v", changes)
	}

	recorder = doJSON(t, handler, http.MethodGet, "/api/submissions/"+fmtInt(second.SubmissionID)+"/changes", token, nil)
	payload = decodeResponse(t, recorder)
	changes, _ = payload["changes"].(map[string]any)
	changed, _ := changes["fieldsChanged"].([]any)
	if len(changed) != 1 {
		t.Fatalf("expected one changed field, got %v", changes)
	}
}

func fmtInt(n int64) string {
	return strconv.FormatInt(n, 10)
}

func TestUnknownRouteReturns404(t *testing.T) {
	server, _ := newTestHTTPServer(newFakeStore())
	handler := server.Handler()

	recorder := doJSON(t, handler, http.MethodGet, "/api/nothing", "", nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
	payload := decodeResponse(t, recorder)
	if payload["code"] != "NOT_FOUND" {
		t.Fatalf("unexpected payload %v", payload)
	}
}
