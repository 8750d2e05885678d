package httpserver

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/changyunjeff/campus-mp/internal/domain"
	"github.com/changyunjeff/campus-mp/internal/ws"
)

// Directory is the relay's in-memory profile table.
type Directory struct {
	mu       sync.RWMutex
	profiles map[string]domain.Profile
}

func NewDirectory() *Directory {
	return &Directory{profiles: make(map[string]domain.Profile)}
}

func (d *Directory) Get(id string) (domain.Profile, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.profiles[id]
	return p, ok
}

// Ensure returns the profile for id, creating a default one.
func (d *Directory) Ensure(id string) domain.Profile {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.profiles[id]
	if !ok {
		p = domain.Profile{ID: id, Nickname: "用户" + id}
		d.profiles[id] = p
	}
	return p
}

// Update patches the non-empty fields.
func (d *Directory) Update(id, nickname, avatar string) domain.Profile {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.profiles[id]
	if !ok {
		p = domain.Profile{ID: id, Nickname: "用户" + id}
	}
	if nickname != "" {
		p.Nickname = nickname
	}
	if avatar != "" {
		p.Avatar = avatar
	}
	d.profiles[id] = p
	return p
}

func handleGetProfile(dir *Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "userID")
		p, ok := dir.Get(id)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "user not found"})
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

type profileRequest struct {
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
}

func handlePutProfile(dir *Directory) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req profileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
			return
		}
		if len([]rune(req.Nickname)) > 64 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "nickname exceeds 64 characters"})
			return
		}
		writeJSON(w, http.StatusOK, dir.Update(CurrentUser(r), strings.TrimSpace(req.Nickname), req.Avatar))
	}
}

type blockRequest struct {
	UserID  string `json:"user_id"`
	Unblock bool   `json:"unblock"`
}

func handleBlock(policy *ws.Policy, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req blockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
			return
		}
		me := CurrentUser(r)
		if req.UserID == me {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "cannot block yourself"})
			return
		}
		if req.Unblock {
			policy.Unblock(me, req.UserID)
		} else {
			policy.Block(me, req.UserID)
		}
		logger.Info("relay_block_updated", zap.String("owner", me), zap.String("target", req.UserID), zap.Bool("unblock", req.Unblock))
		w.WriteHeader(http.StatusNoContent)
	}
}
