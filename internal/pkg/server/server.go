package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/anicoll/gizwits-integration/internal/pkg/database"
	"github.com/anicoll/gizwits-integration/internal/pkg/gizwits"
	"github.com/anicoll/gizwits-integration/internal/pkg/model"
	"github.com/anicoll/gizwits-integration/pkg/hasher"
)

// Manager is the slice of the device manager the local API needs.
type Manager interface {
	Devices() []model.Device
	Device(deviceID string) (model.Device, bool)
	Snapshot(deviceID string) (model.Snapshot, bool)
	FetchDevice(ctx context.Context, deviceID string) (model.Snapshot, error)
	SetAttributes(ctx context.Context, deviceID string, attrs model.Attributes) error
}

// HistoryReader reads persisted attribute history.
type HistoryReader interface {
	GetLatestAttributes(ctx context.Context) (database.Attributes, error)
}

type server struct {
	mgr       Manager
	history   HistoryReader
	tokenHash string
	logger    *zap.Logger
}

// New builds the local HTTP API. history may be nil when no database is
// configured; apiToken empty disables authentication.
func New(mgr Manager, history HistoryReader, apiToken string) (*server, error) {
	s := &server{
		mgr:     mgr,
		history: history,
		logger:  zap.L(),
	}
	if apiToken != "" {
		hash, err := hasher.HashToken([]byte(apiToken))
		if err != nil {
			return nil, err
		}
		s.tokenHash = hash
	}
	return s, nil
}

func (s *server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(LoggingMiddleware)
	if s.tokenHash != "" {
		r.Use(TokenAuth(s.tokenHash))
	}
	r.Get("/devices", s.listDevices)
	r.Get("/devices/{deviceID}", s.getDevice)
	r.Post("/devices/{deviceID}/control", s.controlDevice)
	r.Post("/devices/{deviceID}/refresh", s.refreshDevice)
	r.Get("/attributes", s.latestAttributes)
	return r
}

type deviceResponse struct {
	Device   model.Device    `json:"device"`
	Snapshot *model.Snapshot `json:"snapshot,omitempty"`
}

func (s *server) listDevices(w http.ResponseWriter, r *http.Request) {
	devices := s.mgr.Devices()
	out := make([]deviceResponse, 0, len(devices))
	for _, d := range devices {
		res := deviceResponse{Device: d}
		if snap, ok := s.mgr.Snapshot(d.ID); ok {
			res.Snapshot = &snap
		}
		out = append(out, res)
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *server) getDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	device, ok := s.mgr.Device(deviceID)
	if !ok {
		s.writeError(w, gizwits.ErrDeviceNotBound)
		return
	}
	res := deviceResponse{Device: device}
	if snap, ok := s.mgr.Snapshot(deviceID); ok {
		res.Snapshot = &snap
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *server) controlDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	attrs := model.Attributes{}
	if err := json.NewDecoder(r.Body).Decode(&attrs); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if len(attrs) == 0 {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no attributes provided"})
		return
	}
	if err := s.mgr.SetAttributes(r.Context(), deviceID, attrs); err != nil {
		s.writeError(w, err)
		return
	}
	snap, _ := s.mgr.Snapshot(deviceID)
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *server) refreshDevice(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceID")
	snap, err := s.mgr.FetchDevice(r.Context(), deviceID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *server) latestAttributes(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "no history store configured"})
		return
	}
	attrs, err := s.history.GetLatestAttributes(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, attrs)
}

func (s *server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, gizwits.ErrDeviceNotBound):
		status = http.StatusNotFound
	case errors.Is(err, gizwits.ErrDeviceOffline):
		status = http.StatusServiceUnavailable
	case errors.Is(err, gizwits.ErrTimeout), errors.Is(err, gizwits.ErrConnect):
		status = http.StatusBadGateway
	default:
		var apiErr *gizwits.APIError
		if errors.As(err, &apiErr) {
			status = http.StatusBadGateway
		}
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}
