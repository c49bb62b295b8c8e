package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func apiRequest(t *testing.T, app *App, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	mux := http.NewServeMux()
	app.Register(mux)

	var req *http.Request
	if payload != nil {
		body, _ := json.Marshal(payload)
		req = httptest.NewRequest(method, path, bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("X-API-Token", token)
	}

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func registerAPIUser(t *testing.T, app *App, username, password string) string {
	t.Helper()

	w := apiRequest(t, app, "POST", "/api/v1/register", "", map[string]string{
		"username": username,
		"password": password,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Signup failed, expected 201, got %d. Body: %s", w.Code, w.Body.String())
	}

	var resp APIResponse
	json.NewDecoder(w.Body).Decode(&resp)
	token := resp.Data.(map[string]interface{})["token"].(string)
	if token == "" {
		t.Fatal("Signup did not return a token")
	}
	return token
}

func TestAPIRegisterLoginFlow(t *testing.T) {
	app := newTestApp(t)

	registerAPIUser(t, app, "api_user", "api_password123")

	// Login issues a fresh token
	w := apiRequest(t, app, "POST", "/api/v1/login", "", map[string]string{
		"username": "api_user",
		"password": "api_password123",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Login failed, expected 200, got %d", w.Code)
	}

	var resp APIResponse
	json.NewDecoder(w.Body).Decode(&resp)
	token := resp.Data.(map[string]interface{})["token"].(string)
	if token == "" {
		t.Fatal("Login did not return a token")
	}

	w = apiRequest(t, app, "GET", "/api/v1/notes", token, nil)
	if w.Code != http.StatusOK {
		t.Errorf("List notes failed with token, expected 200, got %d", w.Code)
	}
}

func TestAPILoginInvalidCredentials(t *testing.T) {
	app := newTestApp(t)
	registerAPIUser(t, app, "api_user", "api_password123")

	for _, creds := range []map[string]string{
		{"username": "api_user", "password": "wrong"},
		{"username": "nobody", "password": "whatever"},
	} {
		w := apiRequest(t, app, "POST", "/api/v1/login", "", creds)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Expected 401 for %v, got %d", creds, w.Code)
		}
		var resp APIResponse
		json.NewDecoder(w.Body).Decode(&resp)
		if resp.Message != "Invalid username or password" {
			t.Errorf("Expected generic message, got %q", resp.Message)
		}
	}
}

func TestAPIRegisterValidation(t *testing.T) {
	app := newTestApp(t)
	registerAPIUser(t, app, "taken", "api_password123")

	w := apiRequest(t, app, "POST", "/api/v1/register", "", map[string]string{
		"username": "taken",
		"password": "other_password",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for duplicate username, got %d", w.Code)
	}

	w = apiRequest(t, app, "POST", "/api/v1/register", "", map[string]string{
		"username": "weakuser",
		"password": "1",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for weak password, got %d", w.Code)
	}
	if _, err := app.store.Authenticate("weakuser", "1"); err == nil {
		t.Error("Weak-password user was created anyway")
	}
}

func TestAPINoteLifecycle(t *testing.T) {
	app := newTestApp(t)
	token := registerAPIUser(t, app, "alice", "secret-password")

	w := apiRequest(t, app, "POST", "/api/v1/notes", token, map[string]string{
		"title":       "Buy milk",
		"description": "",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Create note failed, expected 201, got %d. Body: %s", w.Code, w.Body.String())
	}
	var resp APIResponse
	json.NewDecoder(w.Body).Decode(&resp)
	noteID := int64(resp.Data.(map[string]interface{})["id"].(float64))

	w = apiRequest(t, app, "GET", "/api/v1/notes", token, nil)
	var listResp APIResponse
	json.NewDecoder(w.Body).Decode(&listResp)
	notes := listResp.Data.([]interface{})
	if len(notes) != 1 {
		t.Fatalf("Expected exactly one note, got %d", len(notes))
	}
	if title := notes[0].(map[string]interface{})["title"].(string); title != "Buy milk" {
		t.Errorf("Expected title 'Buy milk', got %q", title)
	}

	w = apiRequest(t, app, "DELETE", "/api/v1/notes", token, map[string]int64{"id": noteID})
	if w.Code != http.StatusOK {
		t.Fatalf("Delete failed, expected 200, got %d", w.Code)
	}

	w = apiRequest(t, app, "GET", "/api/v1/notes", token, nil)
	json.NewDecoder(w.Body).Decode(&listResp)
	if listResp.Data != nil {
		if notes := listResp.Data.([]interface{}); len(notes) != 0 {
			t.Errorf("Expected empty list after delete, got %d notes", len(notes))
		}
	}
}

func TestAPINotesOrderedNewestFirst(t *testing.T) {
	app := newTestApp(t)
	token := registerAPIUser(t, app, "lister", "secret-password")

	for _, title := range []string{"one", "two", "three"} {
		w := apiRequest(t, app, "POST", "/api/v1/notes", token, map[string]string{"title": title})
		if w.Code != http.StatusCreated {
			t.Fatalf("Create %q failed: %d", title, w.Code)
		}
	}

	w := apiRequest(t, app, "GET", "/api/v1/notes", token, nil)
	var resp APIResponse
	json.NewDecoder(w.Body).Decode(&resp)
	notes := resp.Data.([]interface{})
	if len(notes) != 3 {
		t.Fatalf("Expected 3 notes, got %d", len(notes))
	}
	want := []string{"three", "two", "one"}
	for i, n := range notes {
		if title := n.(map[string]interface{})["title"].(string); title != want[i] {
			t.Errorf("Position %d: expected %q, got %q", i, want[i], title)
		}
	}
}

func TestAPIOwnershipIsolation(t *testing.T) {
	app := newTestApp(t)
	aliceToken := registerAPIUser(t, app, "alice", "alice-password")
	malloryToken := registerAPIUser(t, app, "mallory", "mallory-password")

	w := apiRequest(t, app, "POST", "/api/v1/notes", aliceToken, map[string]string{
		"title":       "private",
		"description": "alice only",
	})
	var resp APIResponse
	json.NewDecoder(w.Body).Decode(&resp)
	noteID := int64(resp.Data.(map[string]interface{})["id"].(float64))

	// Mallory cannot see it in a listing
	w = apiRequest(t, app, "GET", "/api/v1/notes", malloryToken, nil)
	var listResp APIResponse
	json.NewDecoder(w.Body).Decode(&listResp)
	if listResp.Data != nil && len(listResp.Data.([]interface{})) != 0 {
		t.Error("Foreign notes leaked into mallory's listing")
	}

	// A direct fetch through the wrong owner reads as not-found
	w = apiRequest(t, app, "GET", fmt.Sprintf("/api/v1/notes?id=%d", noteID), malloryToken, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for foreign fetch, got %d", w.Code)
	}
	w = apiRequest(t, app, "GET", fmt.Sprintf("/api/v1/notes?id=%d", noteID), aliceToken, nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for owner fetch, got %d", w.Code)
	}

	// Update and delete through the wrong owner both read as not-found
	w = apiRequest(t, app, "PUT", "/api/v1/notes", malloryToken, map[string]any{
		"id": noteID, "title": "pwned", "description": "",
	})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for foreign update, got %d", w.Code)
	}
	w = apiRequest(t, app, "DELETE", "/api/v1/notes", malloryToken, map[string]int64{"id": noteID})
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for foreign delete, got %d", w.Code)
	}

	// Alice's note is untouched
	w = apiRequest(t, app, "GET", "/api/v1/notes", aliceToken, nil)
	json.NewDecoder(w.Body).Decode(&listResp)
	notes := listResp.Data.([]interface{})
	if len(notes) != 1 || notes[0].(map[string]interface{})["title"].(string) != "private" {
		t.Errorf("Alice's note was altered by foreign access: %v", listResp.Data)
	}
}

func TestAPIUnauthorized(t *testing.T) {
	app := newTestApp(t)

	for _, method := range []string{"GET", "POST", "PUT", "DELETE"} {
		w := apiRequest(t, app, method, "/api/v1/notes", "", map[string]string{"title": "x"})
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s without token: expected 401, got %d", method, w.Code)
		}
	}

	w := apiRequest(t, app, "GET", "/api/v1/notes", "invalid-token", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for bogus token, got %d", w.Code)
	}
}
