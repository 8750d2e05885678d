package httpserver

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/changyunjeff/campus-mp/internal/domain"
	"github.com/changyunjeff/campus-mp/internal/security"
)

type tokenRequest struct {
	Identity string `json:"identity"`
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
}

type tokenResponse struct {
	AccessToken string         `json:"access_token"`
	TokenType   string         `json:"token_type"`
	User        domain.Profile `json:"user"`
}

// handleIssueToken mints a token for any identity. Development relays only.
func handleIssueToken(tokens *security.TokenService, dir *Directory, ttlMinutes int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		req.Identity = strings.TrimSpace(req.Identity)
		if req.Identity == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "identity is required"})
			return
		}

		tok, err := tokens.CreateWithTTL(req.Identity, time.Duration(ttlMinutes)*time.Minute)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to issue token"})
			return
		}
		p := dir.Ensure(req.Identity)
		if req.Nickname != "" || req.Avatar != "" {
			p = dir.Update(req.Identity, req.Nickname, req.Avatar)
		}
		writeJSON(w, http.StatusOK, tokenResponse{
			AccessToken: tok,
			TokenType:   "bearer",
			User:        p,
		})
	}
}

func handleMe(dir *Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r)
		if user == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		writeJSON(w, http.StatusOK, dir.Ensure(user))
	}
}
