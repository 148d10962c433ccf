package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"trivia-live/internal/domain"
)

func TestQuizAPIRoundTrip(t *testing.T) {
	auth := NewAuthenticator("secret", "trivia")
	server := newTestServer(t, auth)
	token, _ := auth.Issue("host-1", time.Minute)

	resp := doJSON(t, server, token, http.MethodPost, "/api/quizzes", map[string]string{"title": "Friday"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status %d", resp.StatusCode)
	}
	var created domain.Quiz
	decodeBody(t, resp, &created)
	if created.ID == "" || created.Author != "host-1" || created.Title != "Friday" {
		t.Fatalf("unexpected quiz %+v", created)
	}

	resp = doJSON(t, server, token, http.MethodPut, "/api/quizzes/"+created.ID+"/rounds", map[string]any{
		"rounds": []domain.Round{
			{Title: "Music", Order: 2},
			{Title: "Film", Order: 1, Questions: []domain.Question{{Question: "Who directed Jaws?", Answer: "Spielberg"}}},
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save rounds: status %d", resp.StatusCode)
	}
	var saved domain.Quiz
	decodeBody(t, resp, &saved)
	if len(saved.Rounds) != 2 || saved.Rounds[0].Title != "Film" || saved.Rounds[0].Questions[0].UID == "" {
		t.Fatalf("unexpected rounds %+v", saved.Rounds)
	}

	resp = doJSON(t, server, token, http.MethodGet, "/api/quizzes", nil)
	var list []domain.Quiz
	decodeBody(t, resp, &list)
	if len(list) != 2 {
		t.Fatalf("expected seeded and created quiz, got %+v", list)
	}

	resp = doJSON(t, server, token, http.MethodDelete, "/api/quizzes/"+created.ID, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: status %d", resp.StatusCode)
	}
	resp = doJSON(t, server, token, http.MethodGet, "/api/quizzes/"+created.ID, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestQuizAPIErrors(t *testing.T) {
	auth := NewAuthenticator("secret", "trivia")
	server := newTestServer(t, auth)

	if resp := doJSON(t, server, "", http.MethodGet, "/api/quizzes", nil); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	other, _ := auth.Issue("host-2", time.Minute)
	if resp := doJSON(t, server, other, http.MethodGet, "/api/quizzes/quiz-1", nil); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected other author's quiz hidden, got %d", resp.StatusCode)
	}
	if resp := doJSON(t, server, other, http.MethodPost, "/api/quizzes", map[string]string{"title": "  "}); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank title, got %d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	server := newTestServer(t, NewAuthenticator("", ""))
	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func doJSON(t *testing.T, server *httptest.Server, token, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, server.URL+path, &buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}
