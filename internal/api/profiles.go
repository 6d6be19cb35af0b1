package api

import (
	"errors"
	"net/http"

	apperrors "github.com/svtfetch/backend/internal/errors"
	"github.com/svtfetch/backend/internal/profile"
)

type ProfileHandlers struct {
	profiles *profile.Manager
}

func NewProfileHandlers(profiles *profile.Manager) *ProfileHandlers {
	return &ProfileHandlers{profiles: profiles}
}

type ProfilesResponse struct {
	Profiles []*profile.Profile `json:"profiles"`
}

// List handles GET /api/profiles?q=
func (h *ProfileHandlers) List(w http.ResponseWriter, r *http.Request) error {
	list, err := h.profiles.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		return profileError(err)
	}
	if list == nil {
		list = []*profile.Profile{}
	}
	return writeJSON(w, r, http.StatusOK, ProfilesResponse{Profiles: list})
}

// Get handles GET /api/profiles/{id}
func (h *ProfileHandlers) Get(w http.ResponseWriter, r *http.Request) error {
	p, err := h.profiles.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		return profileError(err)
	}
	return writeJSON(w, r, http.StatusOK, p)
}

// Save handles POST /api/profiles
func (h *ProfileHandlers) Save(w http.ResponseWriter, r *http.Request) error {
	var req profile.SaveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return err
	}

	p, err := h.profiles.Save(r.Context(), req)
	if err != nil {
		return profileError(err)
	}
	return writeJSON(w, r, http.StatusOK, p)
}

// Delete handles DELETE /api/profiles/{id}
func (h *ProfileHandlers) Delete(w http.ResponseWriter, r *http.Request) error {
	if err := h.profiles.Delete(r.Context(), r.PathValue("id")); err != nil {
		return profileError(err)
	}
	w.WriteHeader(http.StatusNoContent)
	return nil
}

func profileError(err error) error {
	switch {
	case errors.Is(err, profile.ErrNotFound):
		return apperrors.ProfileNotFound()
	case errors.Is(err, profile.ErrInvalidProfile):
		return apperrors.ValidationError(err.Error())
	}
	return apperrors.InternalError("profile store failed").WithCause(err)
}
