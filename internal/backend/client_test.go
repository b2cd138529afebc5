package backend

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackitapp/stackit-sync/internal/domain"
	"github.com/stackitapp/stackit-sync/internal/errors"
	"github.com/stackitapp/stackit-sync/internal/wire"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

type recordingObserver struct {
	mu       sync.Mutex
	statuses []int
}

func (r *recordingObserver) ObserveRequest(_, _ string, status int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts Options) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	opts.BaseURL = server.URL + "/api"
	if opts.RPS == 0 {
		opts.RPS = 1000
		opts.Burst = 1000
	}
	client := New(opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	client.retryInitial = time.Millisecond
	t.Cleanup(client.Close)
	return client
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestClient_CreateQuestion(t *testing.T) {
	var got map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/questions", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("Idempotency-Key"))
		assert.True(t, strings.HasPrefix(r.Header.Get("X-Request-ID"), "req-"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		writeJSON(w, http.StatusCreated, `{"id":101,"title":"Hello","tags":[{"name":"go"}],"user":{"id":7,"username":"ada"},"createdAt":"2024-01-01T00:00:00"}`)
	}, Options{Tokens: staticToken("tok")})

	q, err := client.CreateQuestion(context.Background(), domain.QuestionInput{Title: "Hello", Description: "World", Tags: []string{"Go", "go"}}, "7")
	require.NoError(t, err)

	assert.Equal(t, "101", q.ID)
	assert.Equal(t, []string{"go"}, q.Tags)
	assert.Equal(t, "ada", q.Author.Username)
	assert.EqualValues(t, 7, got["userId"], "numeric ids are sent as numbers")
	assert.Equal(t, []any{"go"}, got["tags"])
}

func TestClient_ListQuestionsPage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/questions", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("page"))
		assert.Equal(t, "20", r.URL.Query().Get("size"))
		assert.Equal(t, "createdAt", r.URL.Query().Get("sortBy"))
		assert.Equal(t, "desc", r.URL.Query().Get("sortDir"))
		writeJSON(w, http.StatusOK, `{"content":[{"id":1},{"id":2}],"number":1,"size":20,"totalPages":3,"totalElements":45,"first":false,"last":false}`)
	}, Options{})

	page, err := client.ListQuestions(context.Background(), domain.PageRequest{Page: 1, Size: 20, SortBy: "createdAt", Dir: domain.SortDesc})
	require.NoError(t, err)

	require.Len(t, page.Items, 2)
	assert.Equal(t, domain.Cursor{Page: 1, Size: 20, TotalPages: 3, TotalElements: 45, HasNext: true, HasPrevious: true}, page.Cursor)
}

func TestClient_ErrorMessagePrecedence(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		want    string
		wantErr *errors.Error
	}{
		{
			name:    "field errors win and are ordered by field",
			status:  http.StatusBadRequest,
			body:    `{"status":400,"message":"Validation failed","fieldErrors":{"title":"Title is required","description":"Description too short"}}`,
			want:    "Description too short, Title is required",
			wantErr: errors.ErrValidation,
		},
		{
			name:    "message when no field errors",
			status:  http.StatusNotFound,
			body:    `{"status":404,"message":"Question not found with id: 9"}`,
			want:    "Question not found with id: 9",
			wantErr: errors.ErrNotFound,
		},
		{
			name:    "fallback for empty body",
			status:  http.StatusInternalServerError,
			body:    ``,
			want:    "Failed to update question",
			wantErr: errors.ErrRequest,
		},
		{
			name:    "fallback for html body",
			status:  http.StatusBadGateway,
			body:    `<html>bad gateway</html>`,
			want:    "Failed to update question",
			wantErr: errors.ErrRequest,
		},
		{
			name:    "conflict",
			status:  http.StatusConflict,
			body:    `{"message":"Edited concurrently"}`,
			want:    "Edited concurrently",
			wantErr: errors.ErrConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				writeJSON(w, tt.status, tt.body)
			}, Options{})

			_, err := client.UpdateQuestion(context.Background(), "9", domain.QuestionInput{Title: "t"}, "7")
			require.Error(t, err)

			var reqErr *RequestError
			require.ErrorAs(t, err, &reqErr)
			assert.Equal(t, tt.want, reqErr.Message)
			assert.Equal(t, tt.status, reqErr.Status)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.want, MessageOf(err, "other"))
		})
	}
}

func TestClient_UnauthorizedHook(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusUnauthorized, `{"message":"Full authentication is required"}`)
	}, Options{})

	var fired atomic.Int32
	client.OnUnauthorized(func() { fired.Add(1) })

	_, err := client.Me(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrUnauthorized)
	assert.EqualValues(t, 1, fired.Load())
}

func TestClient_RetriesIdempotentGets(t *testing.T) {
	var calls atomic.Int32
	observer := &recordingObserver{}
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, `{"message":"warming up"}`)
			return
		}
		writeJSON(w, http.StatusOK, `{"score":3,"upvotes":4,"downvotes":1}`)
	}, Options{MaxRetries: 3, Observer: observer})

	score, err := client.VoteScore(context.Background(), "5")
	require.NoError(t, err)

	assert.Equal(t, domain.VoteScore{Score: 3, Upvotes: 4, Downvotes: 1}, score)
	assert.EqualValues(t, 3, calls.Load())
	assert.Equal(t, []int{503, 503, 200}, observer.statuses)
}

func TestClient_RetryGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusInternalServerError, `{"message":"boom"}`)
	}, Options{MaxRetries: 2})

	_, err := client.ListTags(context.Background(), domain.PageRequest{Size: 10})
	require.Error(t, err)
	assert.Equal(t, "boom", MessageOf(err, ""))
	assert.EqualValues(t, 3, calls.Load())
}

func TestClient_NeverRetriesClientErrorsOrMutations(t *testing.T) {
	tests := []struct {
		name string
		call func(*Client) error
	}{
		{
			name: "get 404",
			call: func(c *Client) error {
				_, err := c.GetAnswer(context.Background(), "1")
				return err
			},
		},
		{
			name: "vote 503",
			call: func(c *Client) error {
				_, err := c.CastVote(context.Background(), "1", domain.Upvote, "7")
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				if r.Method == http.MethodGet {
					writeJSON(w, http.StatusNotFound, `{}`)
					return
				}
				writeJSON(w, http.StatusServiceUnavailable, `{}`)
			}, Options{MaxRetries: 5})

			require.Error(t, tt.call(client))
			assert.EqualValues(t, 1, calls.Load())
		})
	}
}

func TestClient_RequestCancellation(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, Options{})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := client.ListNotifications(ctx, "7", domain.PageRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClient_VoteEndpoints(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/votes/answers/5":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "UPVOTE", body["voteType"])
			writeJSON(w, http.StatusOK, `{"score":1,"upvotes":1,"downvotes":0}`)
		case r.Method == http.MethodDelete && r.URL.Path == "/api/votes/answers/5":
			assert.Equal(t, "7", r.URL.Query().Get("userId"))
			writeJSON(w, http.StatusOK, `{"score":0,"upvotes":0,"downvotes":0}`)
		case r.URL.Path == "/api/votes/answers/5/user/7":
			writeJSON(w, http.StatusOK, `{"voteType":"DOWNVOTE","hasVoted":true}`)
		case r.URL.Path == "/api/votes/answers/6/user/7":
			writeJSON(w, http.StatusOK, `{"voteType":null,"hasVoted":false}`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}, Options{})
	ctx := context.Background()

	score, err := client.CastVote(ctx, "5", domain.Upvote, "7")
	require.NoError(t, err)
	assert.Equal(t, 1, score.Score)

	score, err = client.RemoveVote(ctx, "5", "7")
	require.NoError(t, err)
	assert.Equal(t, 0, score.Score)

	vote, err := client.UserVote(ctx, "5", "7")
	require.NoError(t, err)
	assert.Equal(t, domain.Downvote, vote)

	vote, err = client.UserVote(ctx, "6", "7")
	require.NoError(t, err)
	assert.Equal(t, domain.VoteNone, vote)
}

func TestClient_GetQuestionEmbedsAnswers(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "7", r.URL.Query().Get("currentUserId"))
		writeJSON(w, http.StatusOK, `{"id":3,"title":"q","answers":[{"id":10,"content":"a"},{"id":11,"content":"b","isAccepted":true}]}`)
	}, Options{})

	detail, err := client.GetQuestion(context.Background(), "3", "7")
	require.NoError(t, err)

	require.Len(t, detail.Answers, 2)
	assert.Equal(t, "3", detail.Answers[0].QuestionID)
	assert.True(t, detail.Answers[1].IsAccepted)
	assert.Equal(t, 2, detail.Question.AnswerCount)
}

func TestClient_LoginAndMe(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			if body["password"] != "secret" {
				writeJSON(w, http.StatusBadRequest, `{"success":false,"message":"Invalid credentials","data":null}`)
				return
			}
			writeJSON(w, http.StatusOK, `{"success":true,"message":"ok","data":{"token":"jwt-token"}}`)
		case "/api/auth/me":
			writeJSON(w, http.StatusOK, `{"success":true,"data":{"id":7,"username":"ada","email":"ada@example.com","displayName":"Ada","role":"USER"}}`)
		}
	}, Options{})
	ctx := context.Background()

	_, err := client.Login(ctx, "ada", "wrong")
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", MessageOf(err, ""))

	token, err := client.Login(ctx, "ada", "secret")
	require.NoError(t, err)
	assert.Equal(t, "jwt-token", token)

	me, err := client.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "7", me.ID)
	assert.Equal(t, "ada@example.com", me.Email)
	assert.Equal(t, domain.RoleUser, me.Role)
}

func TestClient_AuthValidationErrorsFromData(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusBadRequest, `{"success":false,"message":"Validation failed","data":{"email":"must be a well-formed email address"}}`)
	}, Options{})

	_, err := client.Login(context.Background(), "x", "y")
	assert.Equal(t, "must be a well-formed email address", MessageOf(err, ""))
}

func TestClient_UploadReportsProgress(t *testing.T) {
	payload := strings.Repeat("x", 64*1024)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "notes.txt", header.Filename)
		assert.Len(t, data, len(payload))
		writeJSON(w, http.StatusOK, `{"fileName":"abc.txt","filePath":"/uploads/abc.txt","fileUrl":"/api/files/abc.txt","fileSize":65536,"contentType":"text/plain"}`)
	}, Options{})

	var reports []int
	result, err := client.Upload(context.Background(), "notes.txt", "text/plain", strings.NewReader(payload), func(p int) {
		reports = append(reports, p)
	})
	require.NoError(t, err)

	assert.Equal(t, "/api/files/abc.txt", result.FileURL)
	require.NotEmpty(t, reports)
	assert.Equal(t, 100, reports[len(reports)-1])
	for i := 1; i < len(reports); i++ {
		assert.Greater(t, reports[i], reports[i-1], "progress is strictly increasing")
	}
}

func TestResolveMessage(t *testing.T) {
	assert.Equal(t, "a, b", ResolveMessage(wire.ErrorBody{Errors: []string{"a", "b"}, Message: "top"}, "fallback"))
	assert.Equal(t, "top", ResolveMessage(wire.ErrorBody{FieldErrors: map[string]string{"x": " "}, Message: "top"}, "fallback"))
	assert.Equal(t, "fallback", ResolveMessage(wire.ErrorBody{Message: "  "}, "fallback"))
}
