// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package feed

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// handleWebSocket streams an Update for every published snapshot until the
// client goes away.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	updates, unsubscribe := s.ctrl.State().Subscribe(subscriberQueue)
	defer unsubscribe()

	s.m.SetFeedSubscribers(int(s.clients.Inc()))
	defer func() { s.m.SetFeedSubscribers(int(s.clients.Dec())) }()
	s.log.Debug("feed client connected", zap.String("remote", r.RemoteAddr))

	// The read side only tracks liveness; client messages are ignored.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	send := func(v any) bool {
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteJSON(v); err != nil {
			s.log.Debug("feed write failed", zap.Error(err))
			return false
		}
		return true
	}

	if !send(s.update(s.ctrl.State().Snapshot())) {
		return
	}
	for {
		select {
		case snap, ok := <-updates:
			if !ok || !send(s.update(snap)) {
				return
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-closed:
			s.log.Debug("feed client disconnected", zap.String("remote", r.RemoteAddr))
			return
		case <-r.Context().Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		}
	}
}
