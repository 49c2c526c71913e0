package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/santhoshkaruppusamy55/Automated-Email-Project/internal/engine"
	"github.com/santhoshkaruppusamy55/Automated-Email-Project/internal/mail"
	"github.com/santhoshkaruppusamy55/Automated-Email-Project/internal/model"
	"github.com/santhoshkaruppusamy55/Automated-Email-Project/internal/repo"
	"github.com/santhoshkaruppusamy55/Automated-Email-Project/internal/scheduler"
	"github.com/santhoshkaruppusamy55/Automated-Email-Project/internal/service"
)

type fakeRepo struct {
	mu    sync.Mutex
	items map[string]*model.Schedule

	// capture args
	gotLimit  int
	gotOffset int

	listErr error
}

var _ repo.ScheduleRepository = (*fakeRepo)(nil)

func newFakeRepo() *fakeRepo {
	return &fakeRepo{items: make(map[string]*model.Schedule)}
}

func (f *fakeRepo) Create(ctx context.Context, s *model.Schedule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[s.ID] = s
	return nil
}

func (f *fakeRepo) Get(ctx context.Context, id string) (*model.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.items[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeRepo) List(ctx context.Context, limit, offset int) ([]model.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotLimit = limit
	f.gotOffset = offset
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []model.Schedule
	for _, s := range f.items {
		out = append(out, *s)
	}
	return out, nil
}

func (f *fakeRepo) ListDue(ctx context.Context, date string) ([]model.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Schedule
	for _, s := range f.items {
		if s.Status == model.Pending && s.ActiveRange.Contains(date) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeRepo) Claim(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.items[id]
	if !ok {
		return repo.ErrNotFound
	}
	if s.Status != model.Pending {
		return repo.ErrContended
	}
	s.Status = model.InProgress
	return nil
}

func (f *fakeRepo) CompleteSend(ctx context.Context, id, date string, final bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.items[id]
	if !ok {
		return repo.ErrNotFound
	}
	if !s.SentOn(date) {
		s.SentDates = append(s.SentDates, date)
	}
	if final {
		s.Status = model.Sent
	} else {
		s.Status = model.Pending
	}
	return nil
}

func (f *fakeRepo) MarkFailed(ctx context.Context, id, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.items[id]; ok {
		s.Status = model.Failed
		s.LastError = &reason
	}
	return nil
}

func (f *fakeRepo) ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, nil
}

type fakeTransport struct {
	mu    sync.Mutex
	sends []mail.Message
	err   error
}

func (f *fakeTransport) Send(ctx context.Context, msg mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sends = append(f.sends, msg)
	return nil
}

func (f *fakeTransport) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

type testServer struct {
	repo      *fakeRepo
	transport *fakeTransport
	sched     *scheduler.Scheduler
	handler   http.Handler
	now       time.Time
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	fr := newFakeRepo()
	ft := &fakeTransport{}
	dial := func(context.Context) (mail.Transport, error) { return ft, nil }

	eng, err := engine.New(fr, dial, engine.Options{})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	// Long interval so only the immediate tick happens.
	sched, err := scheduler.New(time.Hour, func(ctx context.Context, now time.Time) error {
		_, err := eng.RunTick(ctx, now)
		return err
	})
	if err != nil {
		t.Fatalf("failed to create scheduler: %v", err)
	}
	t.Cleanup(func() { sched.Stop() })

	h := NewHandler(sched, eng, service.NewIntake(fr, time.UTC), service.NewImmediateSender(dial), fr)

	ts := &testServer{
		repo:      fr,
		transport: ft,
		sched:     sched,
		handler:   Router(h),
		now:       time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}
	h.now = func() time.Time { return ts.now }
	return ts
}

func (ts *testServer) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	ts.handler.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var m map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &m); err != nil {
		t.Fatalf("failed to decode json: %v body=%q", err, rr.Body.String())
	}
	return m
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodGet, "/v1/health", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("expected Content-Type application/json, got %q", ct)
	}

	body := decodeJSON(t, rr)
	if v, ok := body["ok"].(bool); !ok || !v {
		t.Fatalf("expected {ok:true}, got %v", body)
	}
}

func TestCreateSchedule_Success(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/v1/schedules", `{
		"sender": "sender@example.com",
		"to": ["bad-address", "ok@example.com"],
		"subject": "daily report",
		"body": "<p>hello</p>",
		"send_time": "09:00",
		"start_date": "2024-01-01",
		"end_date": "2024-01-03"
	}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}

	body := decodeJSON(t, rr)
	id, ok := body["id"].(string)
	if !ok || id == "" {
		t.Fatalf("expected an id in the response, got %v", body)
	}

	s, err := ts.repo.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("expected schedule persisted: %v", err)
	}
	if len(s.Recipients) != 1 || s.Recipients[0] != "ok@example.com" {
		t.Fatalf("expected filtered recipients, got %v", s.Recipients)
	}
	if s.Status != model.Pending {
		t.Fatalf("expected PENDING, got %s", s.Status)
	}
}

func TestCreateSchedule_ValidationError(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/v1/schedules", `{
		"sender": "sender@example.com",
		"to": ["bad", "also bad"],
		"subject": "s",
		"body": "b",
		"send_time": "09:00",
		"start_date": "2024-01-01",
		"end_date": "2024-01-03"
	}`)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%q", rr.Code, rr.Body.String())
	}
	body := decodeJSON(t, rr)
	if msg, ok := body["error"].(string); !ok || msg == "" {
		t.Fatalf("expected an error payload, got %v", body)
	}
	if len(ts.repo.items) != 0 {
		t.Fatalf("expected nothing persisted")
	}
}

func TestCreateSchedule_InvalidJSON(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/v1/schedules", `{nope`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%q", rr.Code, rr.Body.String())
	}
}

func TestGetSchedule_NotFound(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodGet, "/v1/schedules/does-not-exist", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d body=%q", rr.Code, rr.Body.String())
	}
}

func TestListSchedules_DefaultsAndArgs(t *testing.T) {
	ts := newTestServer(t)

	// No query params => defaults (limit=50, offset=0)
	rr := ts.do(t, http.MethodGet, "/v1/schedules", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	if ts.repo.gotLimit != 50 || ts.repo.gotOffset != 0 {
		t.Fatalf("expected repo called with limit=50 offset=0, got limit=%d offset=%d",
			ts.repo.gotLimit, ts.repo.gotOffset)
	}

	rr = ts.do(t, http.MethodGet, "/v1/schedules?limit=10&offset=5", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	if ts.repo.gotLimit != 10 || ts.repo.gotOffset != 5 {
		t.Fatalf("expected repo called with limit=10 offset=5, got limit=%d offset=%d",
			ts.repo.gotLimit, ts.repo.gotOffset)
	}
}

func TestSendNow_SuccessAndValidation(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/v1/send", `{
		"sender": "sender@example.com",
		"to": ["a@example.com"],
		"subject": "hi",
		"body": "now"
	}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	if ts.transport.sendCount() != 1 {
		t.Fatalf("expected 1 send, got %d", ts.transport.sendCount())
	}

	rr = ts.do(t, http.MethodPost, "/v1/send", `{"sender": "sender@example.com"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%q", rr.Code, rr.Body.String())
	}
}

func TestSendNow_TransportFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.transport.err = errors.New("connection reset")

	rr := ts.do(t, http.MethodPost, "/v1/send", `{
		"sender": "sender@example.com",
		"to": ["a@example.com"],
		"subject": "hi",
		"body": "now"
	}`)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d body=%q", rr.Code, rr.Body.String())
	}
}

func TestRunDispatch_SendsDueSchedule(t *testing.T) {
	ts := newTestServer(t)

	// Register via the API, then run a tick at the schedule's minute.
	rr := ts.do(t, http.MethodPost, "/v1/schedules", `{
		"sender": "sender@example.com",
		"to": ["ok@example.com"],
		"subject": "daily report",
		"body": "<p>hello</p>",
		"send_time": "09:00",
		"start_date": "2024-01-01",
		"end_date": "2024-01-03"
	}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}

	rr = ts.do(t, http.MethodPost, "/v1/dispatch/run", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}

	body := decodeJSON(t, rr)
	stats, ok := body["stats"].(map[string]any)
	if !ok {
		t.Fatalf("expected stats in response, got %v", body)
	}
	if sent, _ := stats["sent"].(float64); sent != 1 {
		t.Fatalf("expected sent=1, got %v", stats)
	}
	if ts.transport.sendCount() != 1 {
		t.Fatalf("expected 1 transport send, got %d", ts.transport.sendCount())
	}
}

func TestSchedulerEndpoints(t *testing.T) {
	ts := newTestServer(t)

	// Initially should be false.
	rr := ts.do(t, http.MethodGet, "/v1/scheduler/status", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%q", rr.Code, rr.Body.String())
	}
	body := decodeJSON(t, rr)
	if running, ok := body["running"].(bool); !ok || running {
		t.Fatalf("expected running=false, got %v", body)
	}

	rr = ts.do(t, http.MethodPost, "/v1/scheduler/start", "")
	body = decodeJSON(t, rr)
	if running, ok := body["running"].(bool); !ok || !running {
		t.Fatalf("expected running=true after start, got %v", body)
	}

	rr = ts.do(t, http.MethodPost, "/v1/scheduler/stop", "")
	body = decodeJSON(t, rr)
	if running, ok := body["running"].(bool); !ok || running {
		t.Fatalf("expected running=false after stop, got %v", body)
	}
}
