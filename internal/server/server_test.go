package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"assessd/internal/app"
	"assessd/pkg/cache"
	"assessd/pkg/store"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	a, err := app.New(app.Config{
		TokenSecret: "test-secret",
		Store:       store.NewMemoryStore(),
		Cache:       cache.NewMemoryTouchCache(),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	ts := httptest.NewServer(New(Config{App: a}).Router())
	t.Cleanup(ts.Close)
	return ts
}

// doJSON issues a request with an optional JSON body and bearer token
// and decodes the response body into a generic envelope.
func doJSON(t *testing.T, ts *httptest.Server, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var envelope map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		t.Fatalf("%s %s: decode envelope: %v", method, path, err)
	}
	return resp.StatusCode, envelope
}

func responseField(t *testing.T, envelope map[string]any, field string) any {
	t.Helper()
	payload, ok := envelope["response"].(map[string]any)
	if !ok {
		t.Fatalf("envelope has no response object: %v", envelope)
	}
	return payload[field]
}

// seedSuperuser registers a superuser and logs it in, returning the
// access token.
func seedSuperuser(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	status, _ := doJSON(t, ts, http.MethodPost, "/api/v1/users/create-user", "", map[string]any{
		"fullname":    "Root Superuser",
		"username":    "rootsu",
		"email":       "rootsu@gaia.example.com",
		"password":    "root-pass",
		"admin_roles": []string{"superuser"},
	})
	if status != http.StatusCreated {
		t.Fatalf("create user status = %d", status)
	}
	status, envelope := doJSON(t, ts, http.MethodPost, "/api/v1/login", "", map[string]any{
		"username": "rootsu",
		"password": "root-pass",
		"scope":    "gaia",
	})
	if status != http.StatusOK {
		t.Fatalf("login status = %d: %v", status, envelope)
	}
	token, _ := responseField(t, envelope, "access_token").(string)
	if token == "" {
		t.Fatalf("no access_token in %v", envelope)
	}
	if tt := responseField(t, envelope, "token_type"); tt != "bearer" {
		t.Fatalf("token_type = %v, want bearer", tt)
	}
	return token
}

func seedServerProject(t *testing.T, ts *httptest.Server, token string) string {
	t.Helper()
	status, envelope := doJSON(t, ts, http.MethodPost, "/api/v1/projects", token, map[string]any{
		"title": "Leadership Assessment 2026",
		"year":  2026,
	})
	if status != http.StatusCreated {
		t.Fatalf("create project status = %d: %v", status, envelope)
	}
	id, _ := responseField(t, envelope, "id").(string)
	if id == "" {
		t.Fatalf("no project id in %v", envelope)
	}
	return id
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	status, envelope := doJSON(t, ts, http.MethodGet, "/healthz", "", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if got := responseField(t, envelope, "status"); got != "ok" {
		t.Fatalf("status field = %v", got)
	}
}

func TestLoginFailureEnvelope(t *testing.T) {
	ts := newTestServer(t)
	status, envelope := doJSON(t, ts, http.MethodPost, "/api/v1/login", "", map[string]any{
		"username": "nobody1",
		"password": "x",
		"scope":    "gaia",
	})
	if status != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", status)
	}
	if envelope["error"] != "incorrect credentials or context" {
		t.Fatalf("error = %v", envelope["error"])
	}
	if envelope["response"] != nil {
		t.Fatalf("response = %v, want null", envelope["response"])
	}
}

func TestAuthenticatedRoutesRejectMissingToken(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/api/v1/projects", "/api/v1/users/me", "/api/v1/gpq"} {
		status, envelope := doJSON(t, ts, http.MethodGet, path, "", nil)
		if status != http.StatusUnauthorized {
			t.Fatalf("GET %s status = %d, want 401", path, status)
		}
		if envelope["error"] == nil || envelope["response"] != nil {
			t.Fatalf("GET %s envelope = %v", path, envelope)
		}
	}
}

func TestMe(t *testing.T) {
	ts := newTestServer(t)
	token := seedSuperuser(t, ts)
	status, envelope := doJSON(t, ts, http.MethodGet, "/api/v1/users/me", token, nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if got := responseField(t, envelope, "username"); got != "rootsu" {
		t.Fatalf("username = %v", got)
	}
}

func TestProjectLifecycle(t *testing.T) {
	ts := newTestServer(t)
	token := seedSuperuser(t, ts)
	prjID := seedServerProject(t, ts, token)

	status, envelope := doJSON(t, ts, http.MethodGet, "/api/v1/projects/"+prjID, token, nil)
	if status != http.StatusOK {
		t.Fatalf("get project status = %d: %v", status, envelope)
	}
	if got := responseField(t, envelope, "title"); got != "Leadership Assessment 2026" {
		t.Fatalf("title = %v", got)
	}

	status, envelope = doJSON(t, ts, http.MethodGet, "/api/v1/projects", token, nil)
	if status != http.StatusOK {
		t.Fatalf("list projects status = %d", status)
	}
	if count, ok := envelope["count"].(float64); !ok || count != 1 {
		t.Fatalf("count = %v, want 1", envelope["count"])
	}

	// Malformed id is a validation error, a well-formed unknown id is a
	// plain not-found.
	if status, _ := doJSON(t, ts, http.MethodGet, "/api/v1/projects/short", token, nil); status != http.StatusUnprocessableEntity {
		t.Fatalf("malformed id status = %d, want 422", status)
	}
	status, envelope = doJSON(t, ts, http.MethodGet, "/api/v1/projects/ffffffffffffffffffffffff", token, nil)
	if status != http.StatusNotFound || envelope["error"] != "not found" {
		t.Fatalf("unknown id: status %d envelope %v", status, envelope)
	}
}

func TestMemberRoutesCarryType(t *testing.T) {
	ts := newTestServer(t)
	token := seedSuperuser(t, ts)
	prjID := seedServerProject(t, ts, token)

	newMember := func(kind, username string) (int, map[string]any) {
		return doJSON(t, ts, http.MethodPost, fmt.Sprintf("/api/v1/projects/%s/%s", prjID, kind), token, map[string]any{
			"fullname": "Member " + username,
			"username": username,
			"email":    username + "@corp.example.com",
			"password": "member-pw",
		})
	}

	status, envelope := newMember("clients", "client1")
	if status != http.StatusCreated {
		t.Fatalf("add client status = %d: %v", status, envelope)
	}
	if got := responseField(t, envelope, "type"); got != "client" {
		t.Fatalf("client member type = %v", got)
	}
	status, envelope = newMember("experts", "expert1")
	if status != http.StatusCreated {
		t.Fatalf("add expert status = %d: %v", status, envelope)
	}
	if got := responseField(t, envelope, "type"); got != "expert" {
		t.Fatalf("expert member type = %v", got)
	}

	// Duplicate usernames collide across both kinds.
	if status, _ := newMember("experts", "client1"); status != http.StatusBadRequest {
		t.Fatalf("duplicate member status = %d, want 400", status)
	}

	status, envelope = doJSON(t, ts, http.MethodGet, "/api/v1/projects/"+prjID+"/clients", token, nil)
	if status != http.StatusOK {
		t.Fatalf("list clients status = %d", status)
	}
	if count, _ := envelope["count"].(float64); count != 1 {
		t.Fatalf("client count = %v, want 1", envelope["count"])
	}
}

func TestGPQFlow(t *testing.T) {
	ts := newTestServer(t)
	token := seedSuperuser(t, ts)
	prjID := seedServerProject(t, ts, token)

	status, envelope := doJSON(t, ts, http.MethodPost, "/api/v1/personas", token, map[string]any{
		"prj_id":   prjID,
		"fullname": "Budi Persona",
		"username": "budi01",
		"email":    "budi01@example.com",
		"password": "persona-pw",
	})
	if status != http.StatusCreated {
		t.Fatalf("create persona status = %d: %v", status, envelope)
	}

	status, envelope = doJSON(t, ts, http.MethodPost, "/api/v1/gpq", token, map[string]any{
		"prj_id":   prjID,
		"username": "budi01",
		"rows":     10,
	})
	if status != http.StatusCreated {
		t.Fatalf("create template status = %d: %v", status, envelope)
	}
	evID, _ := responseField(t, envelope, "id").(string)
	if evID == "" {
		t.Fatalf("no evidence id in %v", envelope)
	}
	records, _ := responseField(t, envelope, "records").([]any)
	if len(records) != 10 {
		t.Fatalf("template has %d records, want 10", len(records))
	}

	// The persona works its own form.
	status, envelope = doJSON(t, ts, http.MethodPost, "/api/v1/login", "", map[string]any{
		"username": "budi01",
		"password": "persona-pw",
		"scope":    "persona",
		"context":  prjID,
	})
	if status != http.StatusOK {
		t.Fatalf("persona login status = %d: %v", status, envelope)
	}
	personaToken, _ := responseField(t, envelope, "access_token").(string)

	status, envelope = doJSON(t, ts, http.MethodPost, "/api/v1/gpq/"+evID+"/init", personaToken, nil)
	if status != http.StatusOK {
		t.Fatalf("init status = %d: %v", status, envelope)
	}
	initiated, ok := responseField(t, envelope, "initiated").(float64)
	if !ok || initiated <= 0 {
		t.Fatalf("initiated = %v", envelope)
	}

	// Init is idempotent.
	status, envelope = doJSON(t, ts, http.MethodPost, "/api/v1/gpq/"+evID+"/init", personaToken, nil)
	if status != http.StatusOK {
		t.Fatalf("re-init status = %d", status)
	}
	if again, _ := responseField(t, envelope, "initiated").(float64); again != initiated {
		t.Fatalf("re-init moved initiated from %v to %v", initiated, again)
	}

	status, envelope = doJSON(t, ts, http.MethodPost, "/api/v1/gpq/"+evID+"/start", personaToken, nil)
	if status != http.StatusOK {
		t.Fatalf("start status = %d: %v", status, envelope)
	}
	if started, ok := responseField(t, envelope, "started").(float64); !ok || started < initiated {
		t.Fatalf("started = %v", envelope)
	}

	status, envelope = doJSON(t, ts, http.MethodPost, "/api/v1/gpq/"+evID+"/update", personaToken, map[string]any{
		"seq":       3,
		"wb_seq":    7,
		"element":   "E2",
		"statement": "ST14",
	})
	if status != http.StatusOK {
		t.Fatalf("update status = %d: %v", status, envelope)
	}
	if touched, ok := responseField(t, envelope, "touched").(float64); !ok || touched < initiated {
		t.Fatalf("touched = %v", envelope)
	}

	// Out-of-range rows are rejected.
	status, envelope = doJSON(t, ts, http.MethodPost, "/api/v1/gpq/"+evID+"/update", personaToken, map[string]any{
		"seq": 11,
	})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("out-of-range update status = %d: %v", status, envelope)
	}

	// Another persona cannot read this evidence at all.
	doJSON(t, ts, http.MethodPost, "/api/v1/personas", token, map[string]any{
		"prj_id":   prjID,
		"username": "sari02",
		"email":    "sari02@example.com",
		"password": "persona-pw",
	})
	_, envelope = doJSON(t, ts, http.MethodPost, "/api/v1/login", "", map[string]any{
		"username": "sari02",
		"password": "persona-pw",
		"scope":    "persona",
		"context":  prjID,
	})
	otherToken, _ := responseField(t, envelope, "access_token").(string)
	if status, _ := doJSON(t, ts, http.MethodGet, "/api/v1/gpq/"+evID, otherToken, nil); status != http.StatusForbidden {
		t.Fatalf("foreign persona read status = %d, want 403", status)
	}
}

func TestBatchPrepareEndpoints(t *testing.T) {
	ts := newTestServer(t)
	token := seedSuperuser(t, ts)
	prjID := seedServerProject(t, ts, token)

	doJSON(t, ts, http.MethodPost, "/api/v1/personas", token, map[string]any{
		"prj_id":   prjID,
		"username": "budi01",
		"email":    "budi01@example.com",
		"password": "persona-pw",
	})

	status, envelope := doJSON(t, ts, http.MethodPost, "/api/v1/projects/"+prjID+"/batches", token, map[string]any{
		"lead_by":      "rootsu",
		"participants": []string{"budi01"},
	})
	if status != http.StatusCreated {
		t.Fatalf("create batch status = %d: %v", status, envelope)
	}
	batchID, _ := responseField(t, envelope, "batch_id").(string)
	if batchID == "" {
		t.Fatalf("no batch_id in %v", envelope)
	}

	base := "/api/v1/projects/" + prjID + "/batches/" + batchID

	// Preparing before any session is scheduled is rejected.
	if status, _ := doJSON(t, ts, http.MethodPost, base+"/prepare-batteries", token, nil); status != http.StatusUnprocessableEntity {
		t.Fatalf("prepare on empty batch status = %d, want 422", status)
	}

	status, envelope = doJSON(t, ts, http.MethodPost, base+"/workbook-sessions", token, map[string]any{
		"module":       "GPQ",
		"module_items": 30,
	})
	if status != http.StatusCreated {
		t.Fatalf("add session status = %d: %v", status, envelope)
	}

	status, envelope = doJSON(t, ts, http.MethodPost, base+"/prepare-batteries", token, nil)
	if status != http.StatusOK {
		t.Fatalf("prepare batteries status = %d: %v", status, envelope)
	}
	if updated, _ := responseField(t, envelope, "updated_personas").(float64); updated != 1 {
		t.Fatalf("updated_personas = %v, want 1", envelope)
	}

	status, envelope = doJSON(t, ts, http.MethodPost, base+"/prepare-evidences", token, nil)
	if status != http.StatusOK {
		t.Fatalf("prepare evidences status = %d: %v", status, envelope)
	}
	if created, _ := responseField(t, envelope, "created_evidences").(float64); created != 1 {
		t.Fatalf("created_evidences = %v, want 1", envelope)
	}

	status, envelope = doJSON(t, ts, http.MethodGet, "/api/v1/gpq/project/"+prjID, token, nil)
	if status != http.StatusOK {
		t.Fatalf("list project evidences status = %d", status)
	}
	if count, _ := envelope["count"].(float64); count != 1 {
		t.Fatalf("evidence count = %v, want 1", envelope["count"])
	}
}
