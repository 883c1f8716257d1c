package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/zpdzap/mlsandbox/internal/sandbox"
)

type indexData struct {
	Status    sandbox.Status
	Owned     *sandbox.Handle
	StopAt    time.Time
	Flashes   []Flash
	CPU       string
	RAM       string
	Timeout   string
	Generated time.Time
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := indexData{
		Status:    s.ctrl.Status(r.Context()),
		Flashes:   s.flashes.Drain(),
		CPU:       formatFloat(s.defaults.CPUs, "1.0"),
		RAM:       formatFloat(s.defaults.MemoryGiB, "3.5"),
		Timeout:   strconv.Itoa(s.defaults.TimeoutMinutes),
		Generated: time.Now(),
	}
	if h, ok := s.ctrl.Owned(); ok {
		data.Owned = &h
	}
	if at, ok := s.ctrl.PendingStop(); ok {
		data.StopAt = at
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.page.Execute(w, data); err != nil {
		s.logger.Error("render index", "error", err, "request_id", RequestID(r.Context()))
	}
}

func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	spec, err := s.parseSpec(r)
	if err != nil {
		s.flashes.Push("error", "Error: "+err.Error())
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	// The controller's Notify hook flashes the result.
	res := s.ctrl.Launch(detach(r), spec)
	if res.Err != nil {
		s.logger.Warn("launch failed", "error", res.Err, "request_id", RequestID(r.Context()))
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	res := s.ctrl.Stop(detach(r))
	if res.Err != nil {
		s.logger.Warn("stop failed", "error", res.Err, "request_id", RequestID(r.Context()))
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type statusResponse struct {
	State      sandbox.State   `json:"state"`
	Label      string          `json:"label"`
	Class      string          `json:"class"`
	Raw        string          `json:"raw"`
	Name       string          `json:"name,omitempty"`
	ID         string          `json:"id,omitempty"`
	Owned      *sandbox.Handle `json:"owned,omitempty"`
	AutoStopAt *time.Time      `json:"auto_stop_at,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.ctrl.Status(r.Context())
	resp := statusResponse{
		State: st.State,
		Label: st.Label(),
		Class: st.Class(),
		Raw:   st.Raw,
		Name:  st.Name,
		ID:    st.ID,
	}
	if h, ok := s.ctrl.Owned(); ok {
		resp.Owned = &h
	}
	if at, ok := s.ctrl.PendingStop(); ok {
		resp.AutoStopAt = &at
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseSpec reads cpu, ram and timeout form fields, falling back to the
// configured defaults for blank fields.
func (s *Server) parseSpec(r *http.Request) (sandbox.Spec, error) {
	if err := r.ParseForm(); err != nil {
		return sandbox.Spec{}, fmt.Errorf("invalid form: %w", err)
	}

	cpu, err := formValue(r, "cpu", formatFloat(s.defaults.CPUs, "1.0"), parseFloat)
	if err != nil {
		return sandbox.Spec{}, err
	}
	ram, err := formValue(r, "ram", formatFloat(s.defaults.MemoryGiB, "3.5"), parseFloat)
	if err != nil {
		return sandbox.Spec{}, err
	}
	timeout, err := formValue(r, "timeout", strconv.Itoa(s.defaults.TimeoutMinutes), strconv.Atoi)
	if err != nil {
		return sandbox.Spec{}, err
	}

	spec := sandbox.Spec{CPUs: cpu, MemoryGiB: ram, TimeoutMinutes: timeout}
	if err := spec.Validate(); err != nil {
		return sandbox.Spec{}, err
	}
	return spec, nil
}

func formValue[T any](r *http.Request, field, fallback string, parse func(string) (T, error)) (T, error) {
	raw := strings.TrimSpace(r.PostFormValue(field))
	if raw == "" {
		raw = fallback
	}
	v, err := parse(raw)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("invalid %s value %q", field, raw)
	}
	return v, nil
}

// detach keeps request values but drops cancellation, so a client that goes
// away mid-build does not kill the docker command. command_timeout still bounds it.
func detach(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

func formatFloat(v float64, fallback string) string {
	if v <= 0 {
		return fallback
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
