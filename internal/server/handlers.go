package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"goflare.io/nexus/internal/cache/tiered"
	"goflare.io/nexus/internal/events"
	"goflare.io/nexus/internal/state"
	"goflare.io/nexus/pkg/router"
)

var errUserNotFound = errors.New("user not found")

// EventUserCreated is emitted with the new User as data. The server adds the user to
// the state unless a user:created handler calls PreventDefault.
const EventUserCreated = "user:created"

const recentChanges = 5

func userKey(id string) string {
	return "user:" + id
}

type indexResponse struct {
	Message      string    `json:"message"`
	Architecture string    `json:"architecture"`
	Users        int       `json:"users"`
	Stats        Activity  `json:"stats"`
	ServerTime   time.Time `json:"serverTime"`
}

func (s *Server) index(w http.ResponseWriter, _ *http.Request, _ router.Params) {
	st := s.state.Get()
	s.writeJSON(w, http.StatusOK, indexResponse{
		Message:      "nexus: tiered cache and pattern router",
		Architecture: "unified",
		Users:        len(st.Users),
		Stats:        st.Stats,
		ServerTime:   s.clock(),
	})
}

type healthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	CacheHitRate  string `json:"cache_hit_rate"`
	Timestamp     int64  `json:"timestamp"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request, _ router.Params) {
	now := s.clock()
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:        "healthy",
		UptimeSeconds: int64(now.Sub(s.started).Seconds()),
		CacheHitRate:  s.cache.Stats(r.Context()).HitRate,
		Timestamp:     now.UnixMilli(),
	})
}

type stateResponse struct {
	CurrentState AppState                 `json:"currentState"`
	StateHistory []state.Change[AppState] `json:"stateHistory"`
	Timestamp    int64                    `json:"timestamp"`
}

func (s *Server) currentState(w http.ResponseWriter, _ *http.Request, _ router.Params) {
	s.writeJSON(w, http.StatusOK, stateResponse{
		CurrentState: s.state.Get(),
		StateHistory: s.state.Last(recentChanges),
		Timestamp:    s.clock().UnixMilli(),
	})
}

type createUserRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type createUserResponse struct {
	Success    bool `json:"success"`
	User       User `json:"user"`
	TotalUsers int  `json:"totalUsers"`
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request, _ router.Params) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	now := s.clock()
	u := User{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Email:     req.Email,
		CreatedAt: now,
	}
	if u.Name == "" {
		u.Name = "Anonymous"
	}
	if u.Email == "" {
		u.Email = fmt.Sprintf("user%d@example.com", now.UnixMilli())
	}

	accepted := s.events.Emit(EventUserCreated, u)
	next := s.state.Get()
	if _, stored := next.findUser(u.ID); !accepted || !stored {
		s.writeError(w, http.StatusUnprocessableEntity, "User creation rejected")
		return
	}
	if err := s.cache.Set(r.Context(), userKey(u.ID), u); err != nil {
		s.logger.Warn("Failed to cache new user", zap.String("id", u.ID), zap.Error(err))
	}

	s.writeJSON(w, http.StatusCreated, createUserResponse{
		Success:    true,
		User:       u,
		TotalUsers: len(next.Users),
	})
}

func (s *Server) onUserCreated(e *events.Event) {
	if e.Type != EventUserCreated {
		return
	}
	u, ok := e.Data.(User)
	if !ok {
		s.logger.Warn("Ignoring user:created without a user", zap.String("event_id", e.ID))
		return
	}
	if e.DefaultPrevented() {
		return
	}
	s.state.Update("USER_CREATED", func(st AppState) AppState { return st.withUser(u, e.Timestamp) })
}

type userResponse struct {
	User User `json:"user"`
}

func (s *Server) loadUser(_ context.Context, key string) (any, error) {
	id := strings.TrimPrefix(key, userKey(""))
	u, ok := s.state.Get().findUser(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUserNotFound, id)
	}
	return u, nil
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request, params router.Params) {
	v, err := s.cache.Fetch(r.Context(), userKey(params["id"]), tiered.L2, s.loadUser)
	if errors.Is(err, errUserNotFound) {
		s.writeError(w, http.StatusNotFound, "User not found")
		return
	}
	if err != nil {
		s.logger.Error("Failed to fetch user", zap.String("id", params["id"]), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	u, ok := v.(User)
	if !ok {
		s.logger.Error("Unexpected cached user type", zap.String("type", fmt.Sprintf("%T", v)))
		s.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	s.writeJSON(w, http.StatusOK, userResponse{User: u})
}

func (s *Server) cacheStats(w http.ResponseWriter, r *http.Request, _ router.Params) {
	s.writeJSON(w, http.StatusOK, s.cache.Stats(r.Context()))
}
