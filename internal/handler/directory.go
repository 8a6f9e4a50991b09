package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/campus-seat-reservation/internal/model"
)

// DirectoryLimit caps the number of peers one search returns.
const DirectoryLimit = 50

// SkillDirectory searches and lists users.  Password hashes never leave it.
type SkillDirectory interface {
	SearchBySkill(ctx context.Context, term string, exclude uint64, limit int) ([]model.User, error)
	ListExcept(ctx context.Context, exclude uint64, limit int) ([]model.User, error)
}

type DirectoryHandler struct {
	Dir SkillDirectory
}

func NewDirectoryHandler(users SkillDirectory) *DirectoryHandler {
	if users == nil {
		panic("nil directory passed to NewDirectoryHandler")
	}
	return &DirectoryHandler{Dir: users}
}

type peer struct {
	ID     uint64   `json:"id"`
	Name   string   `json:"name"`
	Email  string   `json:"email,omitempty"`
	Skills []string `json:"skills"`
}

// Search handles GET /directory/search?skill=.  Matching is a
// case-insensitive substring over any skill; the caller is never listed.
func (h *DirectoryHandler) Search(c echo.Context) error {
	me, err := caller(c)
	if err != nil {
		return writeError(c, err)
	}
	term := strings.TrimSpace(c.QueryParam("skill"))
	if term == "" {
		return invalid(c, "skill query parameter is required")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), readTimeout)
	defer cancel()
	users, err := h.Dir.SearchBySkill(ctx, term, me.ID, DirectoryLimit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, peers(users))
}

// Users handles GET /directory/users: everyone but the caller.
func (h *DirectoryHandler) Users(c echo.Context) error {
	me, err := caller(c)
	if err != nil {
		return writeError(c, err)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), readTimeout)
	defer cancel()
	users, err := h.Dir.ListExcept(ctx, me.ID, DirectoryLimit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, peers(users))
}

func peers(users []model.User) []peer {
	out := make([]peer, 0, len(users))
	for _, u := range users {
		out = append(out, peer{ID: u.ID, Name: u.Name, Email: u.Email, Skills: u.Skills})
	}
	return out
}
