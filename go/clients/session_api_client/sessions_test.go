package session_api_client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetCurrentQuestion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/sessions/ABC123/question" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("unexpected auth header: %q", got)
		}
		json.NewEncoder(w).Encode(CurrentQuestion{
			QuestionID: "q-1",
			Text:       "capital of France?",
			Options:    []string{"Paris", "Lyon"},
		})
	}))
	defer srv.Close()

	client := NewSessionApiClient(srv.URL, "tok", "")
	q, err := client.GetCurrentQuestion(context.Background(), "ABC123")
	if err != nil {
		t.Fatalf("get current question: %v", err)
	}
	if q == nil || q.QuestionID != "q-1" || len(q.Options) != 2 {
		t.Fatalf("unexpected question: %+v", q)
	}
}

func TestGetCurrentQuestionEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewSessionApiClient(srv.URL, "", "")
	q, err := client.GetCurrentQuestion(context.Background(), "ABC123")
	if err != nil {
		t.Fatalf("get current question: %v", err)
	}
	if q != nil {
		t.Fatalf("expected nil for no active question, got %+v", q)
	}
}

func TestSubmitAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/sessions/ABC123/answers" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var req SubmitAnswerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.PlayerID != "p-1" || req.QuestionID != "q-1" || req.Answer != "Paris" {
			t.Errorf("unexpected request body: %+v", req)
		}
		json.NewEncoder(w).Encode(SubmitAnswerResponse{Accepted: true})
	}))
	defer srv.Close()

	client := NewSessionApiClient(srv.URL, "", "key-1")
	resp, err := client.SubmitAnswer(context.Background(), "ABC123", SubmitAnswerRequest{
		PlayerID:   "p-1",
		QuestionID: "q-1",
		Answer:     "Paris",
	})
	if err != nil {
		t.Fatalf("submit answer: %v", err)
	}
	if !resp.Accepted {
		t.Fatalf("expected accepted response")
	}
}

func TestServerErrorSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session not found", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewSessionApiClient(srv.URL, "", "")
	if _, err := client.GetSessionStatus(context.Background(), "NOPE42"); err == nil {
		t.Fatalf("expected error for 404 response")
	}
}
