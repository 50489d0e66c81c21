/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/memorix/internal/scan"
)

// handleScan runs a scan and streams log/progress/done/error events over
// SSE. The scan runs on the request goroutine; disconnecting cancels it and
// rolls back any uncommitted work.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming Unsupported", http.StatusInternalServerError)
		return
	}

	storageID := chi.URLParam(r, "id")
	mode := scan.ParseMode(r.URL.Query().Get("mode"))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-transform")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	send := func(event string, payload any) {
		data, err := json.Marshal(payload)
		if err != nil {
			return
		}
		_, _ = w.Write([]byte("event: " + event + "\ndata: " + string(data) + "\n\n"))
		flusher.Flush()
	}

	summary, err := s.scans.Run(r.Context(), scan.RunOptions{
		StorageID: storageID,
		Mode:      mode,
		OnLog: func(level scan.LogLevel, message string) {
			send("log", map[string]string{"level": string(level), "message": message})
		},
		OnProgress: func(p scan.Progress) {
			send("progress", p)
		},
	})
	if err != nil {
		send("error", map[string]string{"message": err.Error()})
		return
	}
	send("done", summary)
}
