// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package feed

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/Thermoquad/quill/pkg/config"
	"github.com/Thermoquad/quill/pkg/executor"
	"github.com/Thermoquad/quill/pkg/kinematics"
	"github.com/Thermoquad/quill/pkg/motion"
	"github.com/Thermoquad/quill/pkg/recording"
	"github.com/Thermoquad/quill/pkg/robotstate"
)

// TrajectoryRequest is the body of POST /api/trajectory.
type TrajectoryRequest struct {
	Patches  []motion.PathPatch `json:"patches"`
	Override config.Override    `json:"override"`
}

// SessionInfo describes the current or last session.
type SessionInfo struct {
	ID        uint64  `json:"id"`
	Phase     string  `json:"phase"`
	Sent      int     `json:"sent"`
	Total     int     `json:"total"`
	Progress  float64 `json:"progress"`
	Simulated bool    `json:"simulated"`
}

// Update is one message on /ws/state, also returned by GET /api/state.
type Update struct {
	State     robotstate.FirmwareState  `json:"state"`
	Position  kinematics.CartesianPoint `json:"position"`
	Session   *SessionInfo              `json:"session,omitempty"`
	Link      string                    `json:"link,omitempty"`
	Streaming bool                      `json:"streaming"`
}

func sessionInfo(sess *executor.Session) *SessionInfo {
	if sess == nil {
		return nil
	}
	return &SessionInfo{
		ID:        sess.ID(),
		Phase:     sess.Phase().String(),
		Sent:      sess.Sent(),
		Total:     sess.Total(),
		Progress:  sess.Progress(),
		Simulated: sess.Simulated(),
	}
}

func (s *Server) update(snap robotstate.FirmwareState) Update {
	return Update{
		State:     snap,
		Position:  s.ctrl.CartesianPose(snap.Pose()),
		Session:   sessionInfo(s.ctrl.Executor().Current()),
		Link:      s.ctrl.LinkInfo(),
		Streaming: s.ctrl.Executor().Busy(),
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Debug("write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// handleState handles GET /api/state.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.update(s.ctrl.State().Snapshot()))
}

// handlePose handles GET /api/pose. It queries the firmware when a link is
// attached.
func (s *Server) handlePose(w http.ResponseWriter, r *http.Request) {
	p, snap, err := s.ctrl.CurrentPose(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"x":     p.X,
		"y":     p.Y,
		"state": snap,
	})
}

// handleStats handles GET /api/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ctrl.Statistics().Snapshot())
}

// handleLastTrajectory handles GET /api/trajectory.
func (s *Server) handleLastTrajectory(w http.ResponseWriter, r *http.Request) {
	tr := s.ctrl.LastTrajectory()
	if tr == nil {
		s.writeError(w, http.StatusNotFound, "no trajectory executed yet")
		return
	}
	s.writeJSON(w, http.StatusOK, tr)
}

// handleTrajectory handles POST /api/trajectory.
// Body: { "patches": [...], "override": { "sizes": {...}, "safety": "reject" } }.
func (s *Server) handleTrajectory(w http.ResponseWriter, r *http.Request) {
	var req TrajectoryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.log.Debug("invalid trajectory body", zap.Error(err))
		s.writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}
	for i, p := range req.Patches {
		if err := p.Validate(); err != nil {
			s.writeError(w, http.StatusBadRequest, "patch "+strconv.Itoa(i)+": "+err.Error())
			return
		}
	}

	res := s.ctrl.StartTrajectory(r.Context(), req.Patches, req.Override)
	status := http.StatusAccepted
	if !res.OK {
		status = http.StatusUnprocessableEntity
	}
	s.writeJSON(w, status, res)
}

// handleStop handles POST /api/stop. ?halt=false skips the firmware STOP
// frame.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	halt := true
	if v := r.URL.Query().Get("halt"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid halt value")
			return
		}
		halt = b
	}
	res := s.ctrl.Stop(halt)
	status := http.StatusOK
	if !res.OK {
		status = http.StatusBadGateway
	}
	s.writeJSON(w, status, res)
}

// handleHome handles POST /api/home.
func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	res := s.ctrl.Homing()
	status := http.StatusAccepted
	if !res.OK {
		status = http.StatusBadGateway
	}
	s.writeJSON(w, status, res)
}

// handleRecording handles GET /api/recording: the last finished session as
// CBOR.
func (s *Server) handleRecording(w http.ResponseWriter, r *http.Request) {
	sess := s.ctrl.Executor().Current()
	if sess == nil {
		s.writeError(w, http.StatusNotFound, "no session recorded yet")
		return
	}
	if !sess.Phase().Finished() {
		s.writeError(w, http.StatusConflict, "session still running")
		return
	}

	w.Header().Set("Content-Type", "application/cbor")
	w.Header().Set("Content-Disposition", "attachment; filename=\"session-"+strconv.FormatUint(sess.ID(), 10)+".cbor\"")
	if err := recording.WriteCBOR(w, recording.FromSession(sess)); err != nil {
		s.log.Warn("write recording", zap.Error(err))
	}
}
