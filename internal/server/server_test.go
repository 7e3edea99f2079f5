package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/mohammad-safakhou/atlast/internal/progress"
	"github.com/mohammad-safakhou/atlast/internal/search"
	"github.com/mohammad-safakhou/atlast/internal/store"
	"github.com/mohammad-safakhou/atlast/models"
	"github.com/mohammad-safakhou/atlast/repository/inmemory_repository"
	"github.com/mohammad-safakhou/atlast/session"
)

var quiet = log.New(io.Discard, "", 0)

type fakeSessions struct {
	startErr  error
	started   models.Difficulty
	pop       session.Pop
	popErr    error
	answer    session.AnswerResult
	answerErr error
	guess     string
}

func (f *fakeSessions) StartSession(_ context.Context, d models.Difficulty) (string, error) {
	f.started = d
	if f.startErr != nil {
		return "", f.startErr
	}
	return "sess-1", nil
}

func (f *fakeSessions) PopOrTrigger(context.Context, string) (session.Pop, error) {
	return f.pop, f.popErr
}

func (f *fakeSessions) RecordAnswerAttempt(_ context.Context, _ string, guess string) (session.AnswerResult, error) {
	f.guess = guess
	return f.answer, f.answerErr
}

func do(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestStartSession(t *testing.T) {
	fs := &fakeSessions{}
	e := New(Deps{Sessions: fs, Logger: quiet})

	rec := do(e, http.MethodPost, "/api/session/start", `{"difficulty":"india_hard"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var resp StartSessionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SessionID != "sess-1" || fs.started != models.IndiaHard {
		t.Fatalf("unexpected response %+v (started %s)", resp, fs.started)
	}

	rec = do(e, http.MethodPost, "/api/session/start", "")
	if rec.Code != http.StatusOK || fs.started != models.GlobalEasy {
		t.Fatalf("expected default GLOBAL_EASY, got %d %s", rec.Code, fs.started)
	}

	fs.startErr = fmt.Errorf("start: %w", models.ErrUnknownDifficulty)
	if rec := do(e, http.MethodPost, "/api/session/start", `{"difficulty":"mars"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestGetQuestion(t *testing.T) {
	item := &models.ContentItem{Riddle: "r", Answer: "Paris", Location: models.Location{Name: "Paris"}}
	fs := &fakeSessions{pop: session.Pop{Ready: true, Item: item}}
	e := New(Deps{Sessions: fs, Logger: quiet})

	rec := do(e, http.MethodGet, "/api/question/sess-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var ready QuestionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &ready); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ready.Status != "ready" || ready.Data == nil || ready.Data.Answer != "Paris" {
		t.Fatalf("unexpected body %+v", ready)
	}

	fs.pop = session.Pop{}
	rec = do(e, http.MethodGet, "/api/question/sess-1", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 got %d", rec.Code)
	}
	var pending QuestionResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &pending)
	if pending.Status != "processing" || pending.RetryAfter != 2 || rec.Header().Get("Retry-After") != "2" {
		t.Fatalf("unexpected pending body %+v", pending)
	}
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{models.ErrSessionNotFound, http.StatusNotFound},
		{fmt.Errorf("pop queue: %w: %w", models.ErrStoreUnavailable, errors.New("dial tcp: refused")), http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		e := New(Deps{Sessions: &fakeSessions{popErr: tc.err}, Logger: quiet})
		rec := do(e, http.MethodGet, "/api/question/x", "")
		if rec.Code != tc.code {
			t.Fatalf("%v: expected %d got %d", tc.err, tc.code, rec.Code)
		}
		var body HTTPError
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Error == "" {
			t.Fatalf("expected error envelope, got %s", rec.Body.String())
		}
	}
}

func TestVerifyAnswer(t *testing.T) {
	fs := &fakeSessions{answer: session.AnswerResult{Correct: true, Attempts: 2, Message: "Correct! It's Paris!"}}
	e := New(Deps{Sessions: fs, Logger: quiet})

	rec := do(e, http.MethodPost, "/api/verify_answer", `{"session_id":"sess-1","user_answer":"  paris "}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	var res session.AnswerResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Correct || res.Attempts != 2 || fs.guess != "paris" {
		t.Fatalf("unexpected result %+v guess %q", res, fs.guess)
	}

	if rec := do(e, http.MethodPost, "/api/verify_answer", `{"session_id":"sess-1"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	fs.answerErr = models.ErrNoActiveRiddle
	if rec := do(e, http.MethodPost, "/api/verify_answer", `{"session_id":"sess-1","user_answer":"x"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestLocationSearchMergesIndexAndCache(t *testing.T) {
	idx, err := search.NewIndex()
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	defer idx.Close()
	if err := idx.Add("Paris", "Patna", "Delhi"); err != nil {
		t.Fatalf("Add: %v", err)
	}

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	mock.ExpectQuery(`SELECT DISTINCT answer FROM riddles`).
		WillReturnRows(sqlmock.NewRows([]string{"answer"}).AddRow("paris").AddRow("Patagonia"))

	e := New(Deps{Sessions: &fakeSessions{}, Index: idx, Names: &store.Store{DB: db}, Logger: quiet})
	rec := do(e, http.MethodGet, "/api/locations/search?q=pa&limit=5", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	var resp LocationSearchResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []string{"Paris", "Patna", "Patagonia"}
	if strings.Join(resp.Results, ",") != strings.Join(want, ",") {
		t.Fatalf("got %v want %v", resp.Results, want)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}

	if rec := do(e, http.MethodGet, "/api/locations/search?q=pa&limit=-1", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
}

func TestStreamLogs(t *testing.T) {
	ks := inmemory_repository.NewKeyStore()
	ch := progress.NewChannel(ks, quiet)
	srv := httptest.NewServer(New(Deps{Sessions: &fakeSessions{}, Streams: ch, Logger: quiet}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/stream/sess-1", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	ch.Publish(ctx, "sess-1", progress.StageTargetChosen, "target chosen")

	sc := bufio.NewScanner(resp.Body)
	var lines []string
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			break
		}
		lines = append(lines, line)
	}
	if len(lines) != 2 || lines[0] != "event: target_chosen" || !strings.HasPrefix(lines[1], "data: ") {
		t.Fatalf("unexpected frame %q", lines)
	}
	var ev progress.Event
	if err := json.Unmarshal([]byte(strings.TrimPrefix(lines[1], "data: ")), &ev); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if ev.SessionID != "sess-1" || ev.Message != "target chosen" {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestHealthz(t *testing.T) {
	e := New(Deps{Sessions: &fakeSessions{}, Logger: quiet})
	if rec := do(e, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected healthz %d %q", rec.Code, rec.Body.String())
	}
}
