// ABOUTME: HTTP surface for on-demand sync passes and diagnostics
// ABOUTME: Thin JSON handlers over the engine plus the Google OAuth flow
package web

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	stdsync "sync"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/harperreed/sheetbridge/db"
	"github.com/harperreed/sheetbridge/models"
	"github.com/harperreed/sheetbridge/sync"
)

// Runner is the slice of the engine the server needs.
type Runner interface {
	Run(ctx context.Context, direction models.Direction) (*models.SyncReport, error)
}

type Server struct {
	runner      Runner
	sheetReader sync.Reader
	database    *sql.DB
	callbackURL string
	mux         *http.ServeMux

	stateMu    stdsync.Mutex
	oauthState string
}

func NewServer(runner Runner, sheetReader sync.Reader, database *sql.DB, callbackURL string) *Server {
	s := &Server{
		runner:      runner,
		sheetReader: sheetReader,
		database:    database,
		callbackURL: callbackURL,
		mux:         http.NewServeMux(),
	}

	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.HandleFunc("/sync/push", s.handleSync(models.DirectionSheetToCrm))
	s.mux.HandleFunc("/sync/pull", s.handleSync(models.DirectionCrmToSheet))
	s.mux.HandleFunc("/sheets/read", s.handleSheetsRead)
	s.mux.HandleFunc("/runs", s.handleRuns)
	s.mux.HandleFunc("/oauth/start", s.handleOAuthStart)
	s.mux.HandleFunc("/oauth/callback", s.handleOAuthCallback)

	return s
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	log.Printf("Starting sync server at http://localhost%s", addr)
	return http.ListenAndServe(addr, s.mux)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintln(w, "OK. OAuth: /oauth/start | Push: /sync/push | Pull: /sync/pull")
}

func (s *Server) handleSync(direction models.Direction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := s.runner.Run(r.Context(), direction)
		if err != nil {
			if errors.Is(err, sync.ErrPassInProgress) {
				writeJSON(w, http.StatusConflict, map[string]string{
					"error": err.Error(),
				})
				return
			}
			// Aborted pass: the partial report still enumerates what happened.
			writeJSON(w, http.StatusBadGateway, map[string]interface{}{
				"error":  err.Error(),
				"report": report,
			})
			return
		}

		writeJSON(w, http.StatusOK, report)
	}
}

func (s *Server) handleSheetsRead(w http.ResponseWriter, r *http.Request) {
	records, err := s.sheetReader.Read(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}

	preview := records
	if len(preview) > 10 {
		preview = preview[:10]
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rows_preview": preview,
		"count":        len(records),
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := db.RecentRuns(s.database, 50)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

func (s *Server) handleOAuthStart(w http.ResponseWriter, r *http.Request) {
	config, err := sync.GetClient(r.Context(), s.callbackURL)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	state := uuid.NewString()
	s.stateMu.Lock()
	s.oauthState = state
	s.stateMu.Unlock()

	authURL := config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	s.stateMu.Lock()
	expected := s.oauthState
	s.stateMu.Unlock()
	if expected == "" || r.URL.Query().Get("state") != expected {
		http.Error(w, "OAuth state mismatch", http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "no authorization code received", http.StatusBadRequest)
		return
	}

	config, err := sync.GetClient(r.Context(), s.callbackURL)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	token, err := config.Exchange(r.Context(), code)
	if err != nil {
		http.Error(w, fmt.Sprintf("failed to exchange code: %v", err), http.StatusBadRequest)
		return
	}

	if err := sync.SaveToken(token); err != nil {
		http.Error(w, fmt.Sprintf("failed to save token: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintln(w, "Authorization successful! You can close this window.")
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("web: failed to encode response: %v", err)
	}
}
