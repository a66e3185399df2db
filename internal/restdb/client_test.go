package restdb

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(server.URL, "test-key", 5*time.Second)
}

func TestQueryEncoding(t *testing.T) {
	q := &Query{}
	q.Select("id", "title").
		Eq("project", 12).
		In("id", 1, 2, 3).
		ILike("title", `Solar "Phase 2"`).
		Order("last_updated", "desc", true).
		Limit(1)

	values, err := url.ParseQuery(q.Encode())
	if err != nil {
		t.Fatalf("parse encoded query: %v", err)
	}
	if got := values.Get("select"); got != "id,title" {
		t.Errorf("select = %q", got)
	}
	if got := values.Get("project"); got != "eq.12" {
		t.Errorf("project = %q", got)
	}
	if got := values.Get("id"); got != "in.(1,2,3)" {
		t.Errorf("id = %q", got)
	}
	if got := values.Get("title"); got != `ilike."Solar ""Phase 2"""` {
		t.Errorf("title = %q", got)
	}
	if got := values.Get("order"); got != "last_updated.desc.nullslast" {
		t.Errorf("order = %q", got)
	}
	if got := values.Get("limit"); got != "1" {
		t.Errorf("limit = %q", got)
	}
}

func TestQueryOrDisjunction(t *testing.T) {
	q := &Query{}
	q.Or(ILikeExpr("title", "a"), ILikeExpr("title", "b"))
	values, err := url.ParseQuery(q.Encode())
	if err != nil {
		t.Fatalf("parse encoded query: %v", err)
	}
	if got := values.Get("or"); got != `(title.ilike."a",title.ilike."b")` {
		t.Errorf("or = %q", got)
	}
}

func TestSelectReturnsRows(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rest/v1/projects" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("apikey"); got != "test-key" {
			t.Errorf("apikey header = %q", got)
		}
		w.Write([]byte(`[{"id":7,"title":"Wind Farm"}]`))
	})

	rows, err := client.Select(context.Background(), "projects", func(q *Query) {
		q.Eq("id", 7)
	})
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].Int64("id") != 7 || rows[0].String("title") != "Wind Farm" {
		t.Errorf("row decoded wrong: %v", rows[0])
	}
}

func TestSelectEmptyBody(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rows, err := client.Select(context.Background(), "projects", nil)
	if err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected empty slice, got %d rows", len(rows))
	}
}

func TestSelectBackendError(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"JWT expired"}`))
	})

	_, err := client.Select(context.Background(), "projects", nil)
	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("expected BackendError, got %v", err)
	}
	if be.Status != http.StatusUnauthorized || be.Message != "JWT expired" {
		t.Errorf("got status=%d message=%q", be.Status, be.Message)
	}
}

func TestBackendErrorRawBodyFallback(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable\n"))
	})

	_, err := client.Select(context.Background(), "projects", nil)
	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("expected BackendError, got %v", err)
	}
	if be.Message != "upstream unavailable" {
		t.Errorf("message = %q", be.Message)
	}
}

func TestCreateUpsertHeader(t *testing.T) {
	var prefer string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		prefer = r.Header.Get("Prefer")
		w.Write([]byte(`[{"id":3}]`))
	})

	row, err := client.Create(context.Background(), "projects", map[string]any{"id": 3}, true)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if prefer != "resolution=merge-duplicates,return=representation" {
		t.Errorf("Prefer = %q", prefer)
	}
	if row.Int64("id") != 3 {
		t.Errorf("returned row = %v", row)
	}
}

func TestCreateEmptyBodyFails(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	_, err := client.Create(context.Background(), "projects", map[string]any{}, false)
	if !errors.Is(err, ErrCreationFailed) {
		t.Fatalf("expected ErrCreationFailed, got %v", err)
	}
}

func TestCreateBatchDecodesRows(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		var payload []map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			t.Errorf("batch body not an array: %v", err)
		}
		w.Write([]byte(`[{"id":1},{"id":2}]`))
	})

	rows, err := client.CreateBatch(context.Background(), "decision_payloads", []map[string]any{{"a": 1}, {"a": 2}})
	if err != nil {
		t.Fatalf("CreateBatch failed: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("expected 2 rows, got %d", len(rows))
	}
}

func TestPatchAndDelete(t *testing.T) {
	var methods []string
	var queries []string
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		methods = append(methods, r.Method)
		queries = append(queries, r.URL.RawQuery)
		w.WriteHeader(http.StatusNoContent)
	})

	ctx := context.Background()
	if err := client.Patch(ctx, "process_instances", func(q *Query) { q.Eq("id", 5) }, map[string]any{"description": "x"}); err != nil {
		t.Fatalf("Patch failed: %v", err)
	}
	if err := client.Delete(ctx, "decision_payloads", func(q *Query) { q.Eq("process", 5) }); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if methods[0] != http.MethodPatch || methods[1] != http.MethodDelete {
		t.Errorf("methods = %v", methods)
	}
	if queries[0] != "id=eq.5" || queries[1] != "process=eq.5" {
		t.Errorf("queries = %v", queries)
	}
}

func TestSignInDecodesClaims(t *testing.T) {
	claims, _ := json.Marshal(map[string]any{"sub": "user-9", "exp": time.Now().Add(time.Hour).Unix()})
	token := "eyJhbGciOiJIUzI1NiJ9." + base64.RawURLEncoding.EncodeToString(claims) + ".sig"

	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/token" || r.URL.Query().Get("grant_type") != "password" {
			t.Errorf("unexpected auth request %s?%s", r.URL.Path, r.URL.RawQuery)
		}
		json.NewEncoder(w).Encode(map[string]any{"access_token": token})
	})

	session, err := client.SignIn(context.Background(), "sync@example.org", "secret")
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if session.UserID != "user-9" {
		t.Errorf("UserID = %q", session.UserID)
	}
	if !session.Live() {
		t.Error("expected live session")
	}
}

func TestPublicObjectURL(t *testing.T) {
	client := New("https://partner.example.org", "k", time.Second)
	got := client.PublicObjectURL("uploads", "project 12/boundary.geojson")
	want := "https://partner.example.org/storage/v1/object/public/uploads/project%2012/boundary.geojson"
	if got != want {
		t.Errorf("PublicObjectURL = %q, want %q", got, want)
	}
}
