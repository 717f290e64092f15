package handlers

import (
	"net/http"

	"github.com/boardsync/apiserver/internal/realtime"
	"github.com/go-chi/chi/v5"
)

// RealtimeRouter registers the websocket endpoint. Browsers send the
// access_token cookie on the upgrade request.
func RealtimeRouter(r chi.Router, hub *realtime.Hub, mw *Middleware, allowedOrigins []string) {
	r.With(mw.RequireAccessToken, mw.RequireUser).Get("/", func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, Scope(r.Context()).UserID(), allowedOrigins)
	})
}
