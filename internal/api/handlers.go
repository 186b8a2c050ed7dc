package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/media-archiver/internal/archive"
	"github.com/JakeFAU/media-archiver/internal/broadcast"
	"github.com/JakeFAU/media-archiver/internal/gateway"
	"github.com/JakeFAU/media-archiver/internal/metrics"
)

const maxBodyBytes = 64 << 10

type submitResponse struct {
	ReqID string `json:"req_id"`
}

type removeRequest struct {
	Key string `json:"key"`
}

type removeResponse struct {
	Key    string `json:"key"`
	Status string `json:"status"`
}

type downloadsResponse struct {
	Downloads []archive.ArtifactRecord `json:"downloads"`
}

// submitDownload handles POST /api/download. Field types are checked
// strictly: url must be a string and both flags must be present booleans.
func (s *Server) submitDownload(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeObject(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sub, err := parseSubmission(fields)
	if err != nil {
		metrics.ObserveSubmission(sub.URL, false)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reqID, err := s.service.Submit(r.Context(), sub)
	if err != nil {
		metrics.ObserveSubmission(sub.URL, false)
		s.writeServiceError(w, r, err)
		return
	}
	metrics.ObserveSubmission(sub.URL, true)
	writeJSON(w, http.StatusAccepted, submitResponse{ReqID: reqID})
}

func parseSubmission(fields map[string]json.RawMessage) (gateway.SubmitRequest, error) {
	var sub gateway.SubmitRequest
	if err := requireField(fields, "url", &sub.URL); err != nil {
		return sub, err
	}
	if err := requireField(fields, "download_video", &sub.DownloadVideo); err != nil {
		return sub, err
	}
	if err := requireField(fields, "extract_audio", &sub.ExtractAudio); err != nil {
		return sub, err
	}
	if raw, ok := fields["audio_quality"]; ok && !isNull(raw) {
		var q int
		if err := json.Unmarshal(raw, &q); err != nil {
			return sub, fmt.Errorf(`"audio_quality" must be an integer`)
		}
		sub.AudioQuality = &q
	}
	return sub, nil
}

// requireField decodes fields[name] into dst, rejecting absent, null and
// mistyped values.
func requireField[T any](fields map[string]json.RawMessage, name string, dst *T) error {
	raw, ok := fields[name]
	if !ok || isNull(raw) {
		return fmt.Errorf("%q is required", name)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%q must be a %T", name, *dst)
	}
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func decodeObject(r *http.Request) (map[string]json.RawMessage, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.New("could not read body")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil || fields == nil {
		return nil, errors.New("invalid JSON")
	}
	return fields, nil
}

// removeArtifact handles DELETE /api/remove.
func (s *Server) removeArtifact(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeObject(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req removeRequest
	if err := requireField(fields, "key", &req.Key); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.service.Delete(r.Context(), req.Key); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, removeResponse{Key: req.Key, Status: "DELETED"})
}

// listDownloads handles GET /api/downloads.
func (s *Server) listDownloads(w http.ResponseWriter, r *http.Request) {
	records, err := s.status.Snapshot(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	if records == nil {
		records = []archive.ArtifactRecord{}
	}
	writeJSON(w, http.StatusOK, downloadsResponse{Downloads: records})
}

// streamStatus handles GET /api/status. The observer receives the snapshot
// first and every later event after it.
func (s *Server) streamStatus(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	conn := broadcast.NewConn(ws, s.cfg.Conn)
	if err := s.status.Connect(r.Context(), conn); err != nil {
		s.logger.Warn("observer rejected", zap.String("observer", conn.ID()), zap.Error(err))
		_ = ws.Close()
		return
	}
	conn.Serve()
	// The loop may already be gone during shutdown.
	if err := s.status.Disconnect(context.WithoutCancel(r.Context()), conn.ID()); err != nil {
		s.logger.Debug("observer disconnect skipped", zap.String("observer", conn.ID()), zap.Error(err))
	}
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, archive.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, archive.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "request timed out")
	default:
		s.logger.Error("request failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
