package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleCatalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.service.GetCatalog())
}

func (s *Server) handleListDrivers(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.GetDriversWithStats(r.Context())
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	devices, err := s.service.Discover(r.Context(), chi.URLParam(r, "driverId"), chi.URLParam(r, "type"))
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// handleListDevices lists devices, optionally filtered by ?type= and
// ?driver=. A driver filter needs a type.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	deviceType, driverID := q.Get("type"), q.Get("driver")

	var (
		devices any
		err     error
	)
	switch {
	case driverID != "" && deviceType == "":
		writeBadRequest(w, "the driver filter requires a type filter")
		return
	case driverID != "":
		devices, err = s.service.GetDevicesByTypeAndDriver(r.Context(), deviceType, driverID)
	case deviceType != "":
		devices, err = s.service.GetDevicesByType(r.Context(), deviceType)
	default:
		devices, err = s.service.GetAllDevices(r.Context())
	}
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	dev, err := s.service.GetDeviceByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dev)
}

func (s *Server) handleRunCommand(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	result, err := s.service.RunCommand(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "command"), body)
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.service.GetEventsByType(r.Context(), chi.URLParam(r, "type"), r.URL.Query().Get("from"))
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleAuthProcess(w http.ResponseWriter, r *http.Request) {
	steps, err := s.service.GetAuthenticationProcess(chi.URLParam(r, "driverId"))
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"steps": steps})
}

func (s *Server) handleAuthStep(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	result, err := s.service.AuthenticationStep(r.Context(), chi.URLParam(r, "driverId"), chi.URLParam(r, "step"), body)
	if err != nil {
		s.writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// readBody reads a request body that must be empty or well-formed JSON.
// Schema checks happen further in.
func readBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	if r.Body == nil {
		return nil, true
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
			return nil, false
		}
		writeBadRequest(w, "reading request body failed")
		return nil, false
	}
	if len(data) == 0 {
		return nil, true
	}
	if !json.Valid(data) {
		writeBadRequest(w, "request body is not valid JSON")
		return nil, false
	}
	return json.RawMessage(data), true
}
