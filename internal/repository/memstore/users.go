package memstore

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/iliyamo/campus-seat-reservation/internal/model"
	"github.com/iliyamo/campus-seat-reservation/internal/repository"
	"github.com/iliyamo/campus-seat-reservation/internal/utils"
)

// Users mirrors repository.UserRepo.
type Users struct{ s *Store }

func (r *Users) Create(ctx context.Context, name, email, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	var id uint64
	err = r.s.do(ctx, func(st *state) error {
		for _, u := range st.users {
			if u.Email == email {
				return repository.ErrEmailExists
			}
		}
		st.nextUser++
		id = st.nextUser
		st.users[id] = model.User{
			ID:           id,
			Name:         strings.TrimSpace(name),
			Email:        email,
			PasswordHash: hash,
			Role:         role,
			Skills:       []string{},
			CreatedAt:    time.Now().UTC(),
		}
		return nil
	})
	return id, err
}

func (r *Users) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	var out model.User
	err := r.s.do(ctx, func(st *state) error {
		for _, u := range st.users {
			if u.Email == email {
				out = u
				return nil
			}
		}
		return notFound("user not found")
	})
	return out, err
}

func (r *Users) GetByID(ctx context.Context, id uint64) (model.User, error) {
	var out model.User
	err := r.s.do(ctx, func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return notFound("user not found")
		}
		out = u
		return nil
	})
	return out, err
}

func (r *Users) SetSkills(ctx context.Context, userID uint64, skills []string) error {
	return r.s.do(ctx, func(st *state) error {
		u, ok := st.users[userID]
		if !ok {
			return notFound("user not found")
		}
		u.Skills = append([]string{}, skills...)
		sort.Strings(u.Skills)
		st.users[userID] = u
		return nil
	})
}

func (r *Users) SearchBySkill(ctx context.Context, term string, exclude uint64, limit int) ([]model.User, error) {
	term = strings.ToLower(term)
	out := []model.User{}
	err := r.s.do(ctx, func(st *state) error {
		for _, u := range st.users {
			if u.ID == exclude {
				continue
			}
			for _, s := range u.Skills {
				if strings.Contains(strings.ToLower(s), term) {
					out = append(out, model.User{ID: u.ID, Name: u.Name, Skills: append([]string{}, u.Skills...)})
					break
				}
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

func (r *Users) ListExcept(ctx context.Context, exclude uint64, limit int) ([]model.User, error) {
	out := []model.User{}
	err := r.s.do(ctx, func(st *state) error {
		for _, u := range st.users {
			if u.ID == exclude {
				continue
			}
			out = append(out, model.User{ID: u.ID, Name: u.Name, Email: u.Email, Skills: append([]string{}, u.Skills...)})
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

// LockForUpdate is a no-op: the transaction already holds the store.
func (r *Users) LockForUpdate(context.Context, uint64) error { return nil }
