package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"formpilot/internal/dom"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, 5*time.Second, nil)
}

func TestStartSessionTruncatesPageText(t *testing.T) {
	var got startSessionRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/start-session", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(startSessionResponse{SessionID: "s-1", Summary: "A short form."})
	})

	page := PageInfo{Title: "Checkout", URL: "https://shop.test/checkout", Text: strings.Repeat("x", MaxPageText+500)}
	fields := []dom.FieldDescriptor{{ID: "email", Type: "email", Selector: "#email"}}
	id, summary, err := client.StartSession(context.Background(), page, fields, nil)

	require.NoError(t, err)
	require.Equal(t, "s-1", id)
	require.Equal(t, "A short form.", summary)
	require.Len(t, got.Text, MaxPageText)
	require.Equal(t, "email", got.Fields[0].ID)
}

func TestQuestionSendsOneBasedProgress(t *testing.T) {
	var got questionRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/get-question", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(questionResponse{Question: "What's your email?"})
	})

	q, err := client.Question(context.Background(), "s-1", dom.FieldDescriptor{ID: "email"}, 2, 5)
	require.NoError(t, err)
	require.Equal(t, "What's your email?", q)
	require.Equal(t, 2, got.FieldIndex)
	require.Equal(t, 5, got.TotalFields)
}

func TestStatusErrorCarriesCodeAndCorrelation(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-Id", "req-777777")
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"model overloaded"}`))
	})

	_, err := client.Question(context.Background(), "s-1", dom.FieldDescriptor{}, 1, 1)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, 503, se.HTTPStatus())
	require.Contains(t, se.Body, "model overloaded")
	require.Len(t, se.Keys, 1)
	require.Equal(t, "req-777777", se.Keys[0].Value)
}

func TestNextQuestionBackendErrorField(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(NextQuestionResult{Error: "unknown session"})
	})

	_, err := client.NextQuestion(context.Background(), "s-x", "", "")
	require.ErrorContains(t, err, "unknown session")
}

func TestChatReportsFormCommandFlag(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "let's keep going", req.Message)
		json.NewEncoder(w).Encode(chatResponse{Response: "Resuming.", IsFormCommand: true})
	})

	reply, isCmd, err := client.Chat(context.Background(), "s-1", "let's keep going")
	require.NoError(t, err)
	require.Equal(t, "Resuming.", reply)
	require.True(t, isCmd)
}

func TestHealthAndKeyProbes(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			json.NewEncoder(w).Encode(HealthStatus{Status: "ok", AIService: "up"})
		case "/check-api-key":
			json.NewEncoder(w).Encode(KeyStatus{Valid: true, Model: "demo-model"})
		default:
			http.NotFound(w, r)
		}
	})

	health, err := client.Health(context.Background())
	require.NoError(t, err)
	require.Equal(t, "ok", health.Status)

	key, err := client.CheckAPIKey(context.Background())
	require.NoError(t, err)
	require.True(t, key.Valid)
	require.Equal(t, "demo-model", key.Model)
}
