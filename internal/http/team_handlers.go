package httpx

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/cengZa/zhiyin-backend/internal/domain"
	"github.com/cengZa/zhiyin-backend/internal/repository"
	"github.com/cengZa/zhiyin-backend/internal/service/team"
)

// handleTeams serves POST /teams (create) and GET /teams (open listing).
func (r *Router) handleTeams(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	switch req.Method {
	case http.MethodPost:
		var payload team.CreateInput
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		created, err := r.teams.Create(req.Context(), info.UserID, payload)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	case http.MethodGet:
		filter, page := teamListQuery(req)
		result, err := r.teams.List(req.Context(), filter, page, info.UserID)
		if err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	default:
		r.methodNotAllowed(w)
	}
}

// handleTeamSubroutes dispatches /teams/{id}[/action] and /teams/my/....
func (r *Router) handleTeamSubroutes(w http.ResponseWriter, req *http.Request) {
	info, ok := authInfoFromContext(req.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	rest := strings.TrimPrefix(req.URL.Path, "/teams/")
	teamID, action, _ := strings.Cut(rest, "/")
	if teamID == "" {
		writeError(w, http.StatusNotFound, "team id required")
		return
	}

	if teamID == "my" {
		r.handleMyTeams(w, req, info.UserID, action)
		return
	}

	switch action {
	case "":
		switch req.Method {
		case http.MethodGet:
			view, err := r.teams.Get(req.Context(), teamID, info.UserID)
			if err != nil {
				r.writeServiceError(w, req, err)
				return
			}
			writeJSON(w, http.StatusOK, view)
		case http.MethodPatch:
			r.updateTeam(w, req, teamID, info.UserID)
		case http.MethodDelete:
			if err := r.teams.Delete(req.Context(), teamID, info.UserID); err != nil {
				r.writeServiceError(w, req, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		default:
			r.methodNotAllowed(w)
		}
	case "update":
		if req.Method != http.MethodPost {
			r.methodNotAllowed(w)
			return
		}
		r.updateTeam(w, req, teamID, info.UserID)
	case "join":
		if req.Method != http.MethodPost {
			r.methodNotAllowed(w)
			return
		}
		var payload struct {
			Password string `json:"password"`
		}
		if req.Body != nil {
			// A missing body is fine for public teams.
			_ = json.NewDecoder(req.Body).Decode(&payload)
		}
		if err := r.teams.Join(req.Context(), teamID, payload.Password, info.UserID); err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	case "quit":
		if req.Method != http.MethodPost {
			r.methodNotAllowed(w)
			return
		}
		if err := r.teams.Quit(req.Context(), teamID, info.UserID); err != nil {
			r.writeServiceError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	case "events":
		r.handleTeamEventsSSE(w, req, teamID)
	default:
		writeError(w, http.StatusNotFound, "unknown team action")
	}
}

func (r *Router) updateTeam(w http.ResponseWriter, req *http.Request, teamID, userID string) {
	var payload team.UpdateInput
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	payload.TeamID = teamID
	if err := r.teams.Update(req.Context(), userID, payload); err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (r *Router) handleMyTeams(w http.ResponseWriter, req *http.Request, userID, which string) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	_, page := teamListQuery(req)
	var (
		result *team.ListResult
		err    error
	)
	switch which {
	case "created":
		result, err = r.teams.ListCreated(req.Context(), userID, page)
	case "joined":
		result, err = r.teams.ListJoined(req.Context(), userID, page)
	default:
		writeError(w, http.StatusNotFound, "unknown listing")
		return
	}
	if err != nil {
		r.writeServiceError(w, req, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func teamListQuery(req *http.Request) (team.ListFilter, repository.Page) {
	query := req.URL.Query()
	filter := team.ListFilter{
		ID:          query.Get("id"),
		SearchText:  query.Get("search"),
		Name:        query.Get("name"),
		Description: query.Get("description"),
		OwnerID:     query.Get("owner_id"),
	}
	if raw := query.Get("max_members"); raw != "" {
		filter.MaxMembers, _ = strconv.Atoi(raw)
	}
	if raw := query.Get("visibility"); raw != "" {
		if visibility, ok := domain.ParseVisibility(raw); ok {
			filter.Visibility = visibility
		}
	}
	page := repository.Page{Num: 1, Size: 10}
	if raw := query.Get("page"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			page.Num = n
		}
	}
	if raw := query.Get("size"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			page.Size = n
		}
	}
	return filter, page
}
