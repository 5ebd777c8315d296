// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package main

import (
	"context"
	"net/http"

	"github.com/TranDung6129/sensor-telemetry/dashboard"
	"github.com/TranDung6129/sensor-telemetry/errors"
	"github.com/TranDung6129/sensor-telemetry/internal/httpserver"
	"github.com/gorilla/mux"
)

// routes exposes the read-only snapshot and the manual refresh trigger.
func routes(r *mux.Router, store *dashboard.Store) {
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/snapshot", func(w http.ResponseWriter, _ *http.Request) {
		httpserver.WriteJSON(w, http.StatusOK, store.Snapshot())
	}).Methods(http.MethodGet)

	api.HandleFunc("/refresh", func(w http.ResponseWriter, r *http.Request) {
		_, err := store.StartRefresh(context.WithoutCancel(r.Context()))
		switch {
		case err == nil:
			httpserver.WriteJSON(w, http.StatusAccepted, map[string]string{
				"status": "refreshing",
			})
		case errors.IsKind(err, errors.PreconditionViolation):
			httpserver.WriteJSON(w, http.StatusConflict, map[string]string{
				"error": err.Error(),
			})
		default:
			httpserver.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
				"error": err.Error(),
			})
		}
	}).Methods(http.MethodPost)
}
