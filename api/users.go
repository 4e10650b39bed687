package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"user-service/users/domain"

	"github.com/google/uuid"
)

// Users is the orchestrator as seen by the handlers.
type Users interface {
	GetUser(ctx context.Context, id uuid.UUID) (domain.User, error)
	ListUsers(ctx context.Context, page domain.Page) ([]domain.User, error)
	CreateUser(ctx context.Context, in domain.NewUser) (domain.User, error)
	Stats(ctx context.Context) (domain.Stats, error)
}

const maxBodyBytes = 1 << 20

type userHandlers struct {
	users  Users
	logger *slog.Logger
}

func (h *userHandlers) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, r, h.logger, domain.E(domain.KindInvalid, "api.get_user", errMalformedID))
		return
	}
	u, err := h.users.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *userHandlers) list(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context(), pageFromQuery(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *userHandlers) create(w http.ResponseWriter, r *http.Request) {
	var in domain.NewUser
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&in); err != nil {
		writeError(w, r, h.logger, domain.E(domain.KindSerialization, "api.create_user", err))
		return
	}
	u, err := h.users.CreateUser(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

func (h *userHandlers) stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.users.Stats(r.Context())
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// pageFromQuery reads limit and offset. Values that do not parse fall back
// to the defaults; clamping is left to Page.Normalize.
func pageFromQuery(r *http.Request) domain.Page {
	q := r.URL.Query()
	return domain.Page{
		Limit:  queryInt(q.Get("limit"), domain.DefaultPageLimit),
		Offset: queryInt(q.Get("offset"), 0),
	}
}

func queryInt(v string, def int) int {
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
