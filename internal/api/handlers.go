package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/santhoshkaruppusamy55/Automated-Email-Project/internal/engine"
	"github.com/santhoshkaruppusamy55/Automated-Email-Project/internal/model"
	"github.com/santhoshkaruppusamy55/Automated-Email-Project/internal/repo"
	"github.com/santhoshkaruppusamy55/Automated-Email-Project/internal/scheduler"
	"github.com/santhoshkaruppusamy55/Automated-Email-Project/internal/service"
)

type Handler struct {
	sched  *scheduler.Scheduler
	engine *engine.Engine
	intake *service.Intake
	direct *service.ImmediateSender
	store  repo.ScheduleRepository

	now func() time.Time
}

func NewHandler(
	sched *scheduler.Scheduler,
	eng *engine.Engine,
	intake *service.Intake,
	direct *service.ImmediateSender,
	store repo.ScheduleRepository,
) *Handler {
	return &Handler{
		sched:  sched,
		engine: eng,
		intake: intake,
		direct: direct,
		store:  store,
		now:    time.Now,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req service.IntakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	s, err := h.intake.Create(r.Context(), req)
	if err != nil {
		var ve *service.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Email scheduled successfully",
		"id":      s.ID,
	})
}

func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	items, err := h.store.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := make([]scheduleJSON, 0, len(items))
	for _, s := range items {
		out = append(out, toScheduleJSON(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": out})
}

func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "schedule not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toScheduleJSON(*s))
}

func (h *Handler) SendNow(w http.ResponseWriter, r *http.Request) {
	var req service.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	if err := h.direct.Send(r.Context(), req); err != nil {
		var ve *service.ValidationError
		if errors.As(err, &ve) {
			writeError(w, http.StatusBadRequest, ve.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"message": "Email sent successfully"})
}

func (h *Handler) RunDispatch(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.RunTick(r.Context(), h.now())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Processed scheduled emails",
		"stats":   stats,
	})
}

func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.schedulerState())
}

func (h *Handler) SchedulerStart(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, h.schedulerState())
}

func (h *Handler) SchedulerStop(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, h.schedulerState())
}

func (h *Handler) schedulerState() map[string]any {
	state := map[string]any{"running": h.sched.IsRunning()}
	if lastTick, lastErr := h.sched.LastTick(); !lastTick.IsZero() {
		state["last_tick"] = lastTick.UTC().Format(time.RFC3339)
		if lastErr != nil {
			state["last_error"] = lastErr.Error()
		}
	}
	return state
}

type scheduleJSON struct {
	ID        string   `json:"id"`
	Sender    string   `json:"sender"`
	To        []string `json:"to"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	SendTime  string   `json:"send_time"`
	StartDate string   `json:"start_date"`
	EndDate   string   `json:"end_date"`
	Status    string   `json:"status"`
	SentDates []string `json:"sent_dates"`
	LastError string   `json:"last_error,omitempty"`
	CreatedAt string   `json:"created_at"`
}

func toScheduleJSON(s model.Schedule) scheduleJSON {
	out := scheduleJSON{
		ID:        s.ID,
		Sender:    s.Sender,
		To:        s.Recipients,
		Subject:   s.Subject,
		Body:      s.Body,
		SendTime:  s.TimeOfDay,
		StartDate: s.ActiveRange.Start,
		EndDate:   s.ActiveRange.End,
		Status:    string(s.Status),
		SentDates: s.SentDates,
		CreatedAt: s.CreatedAt.UTC().Format(time.RFC3339),
	}
	if out.SentDates == nil {
		out.SentDates = []string{}
	}
	if s.LastError != nil {
		out.LastError = *s.LastError
	}
	return out
}

func parseInt(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}
