package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/campus-seat-reservation/internal/model"
	"github.com/iliyamo/campus-seat-reservation/internal/utils"
)

// UserRepo manages accounts and the skills directory.
type UserRepo struct{ db *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a user with a bcrypt hash of password and returns its ID.
func (r *UserRepo) Create(ctx context.Context, name, email, password, role string, cost int) (uint64, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	res, err := conn(ctx, r.db).ExecContext(ctx,
		"INSERT INTO users (name, email, password_hash, role) VALUES (?,?,?,?)",
		strings.TrimSpace(name), email, hash, role)
	if err != nil {
		if isDuplicateKey(err, "") {
			return 0, ErrEmailExists
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.get(ctx, "SELECT id,name,email,password_hash,role,created_at FROM users WHERE email=? LIMIT 1", email)
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.get(ctx, "SELECT id,name,email,password_hash,role,created_at FROM users WHERE id=? LIMIT 1", id)
}

func (r *UserRepo) get(ctx context.Context, q string, arg any) (model.User, error) {
	var u model.User
	err := conn(ctx, r.db).QueryRowContext(ctx, q, arg).
		Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.CreatedAt)
	if err != nil {
		return model.User{}, notFound(err, "user not found")
	}
	if u.Skills, err = r.skills(ctx, u.ID); err != nil {
		return model.User{}, err
	}
	return u, nil
}

func (r *UserRepo) skills(ctx context.Context, userID uint64) ([]string, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, "SELECT skill FROM user_skills WHERE user_id=? ORDER BY skill", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SetSkills replaces the user's skill set.  Call inside TxManager.WithTx.
func (r *UserRepo) SetSkills(ctx context.Context, userID uint64, skills []string) error {
	c := conn(ctx, r.db)
	if _, err := c.ExecContext(ctx, "DELETE FROM user_skills WHERE user_id=?", userID); err != nil {
		return err
	}
	if len(skills) == 0 {
		return nil
	}
	q := "INSERT INTO user_skills (user_id, skill) VALUES "
	args := make([]any, 0, len(skills)*2)
	for i, s := range skills {
		if i > 0 {
			q += ","
		}
		q += "(?,?)"
		args = append(args, userID, s)
	}
	_, err := c.ExecContext(ctx, q, args...)
	return err
}

// SearchBySkill returns users (other than exclude) with a skill containing
// term, case-insensitively.  Each user is returned once with all skills.
func (r *UserRepo) SearchBySkill(ctx context.Context, term string, exclude uint64, limit int) ([]model.User, error) {
	const q = `SELECT u.id, u.name, s.skill
	           FROM users u
	           JOIN user_skills s ON s.user_id = u.id
	           WHERE u.id <> ? AND u.id IN (
	               SELECT user_id FROM user_skills WHERE LOWER(skill) LIKE CONCAT('%', LOWER(?), '%') ESCAPE '\\'
	           )
	           ORDER BY u.name, u.id, s.skill`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, exclude, escapeLike(term))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.User{}
	for rows.Next() {
		var (
			id          uint64
			name, skill string
		)
		if err := rows.Scan(&id, &name, &skill); err != nil {
			return nil, err
		}
		if n := len(out); n > 0 && out[n-1].ID == id {
			out[n-1].Skills = append(out[n-1].Skills, skill)
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, model.User{ID: id, Name: name, Skills: []string{skill}})
	}
	return out, rows.Err()
}

// ListExcept returns every user but exclude, ordered by name, each with all
// skills.  Users without skills are listed with an empty set.
func (r *UserRepo) ListExcept(ctx context.Context, exclude uint64, limit int) ([]model.User, error) {
	const q = `SELECT u.id, u.name, u.email, s.skill
	           FROM users u
	           LEFT JOIN user_skills s ON s.user_id = u.id
	           WHERE u.id <> ?
	           ORDER BY u.name, u.id, s.skill`
	rows, err := conn(ctx, r.db).QueryContext(ctx, q, exclude)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.User{}
	for rows.Next() {
		var (
			id          uint64
			name, email string
			skill       sql.NullString
		)
		if err := rows.Scan(&id, &name, &email, &skill); err != nil {
			return nil, err
		}
		if n := len(out); n > 0 && out[n-1].ID == id {
			if skill.Valid {
				out[n-1].Skills = append(out[n-1].Skills, skill.String)
			}
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		u := model.User{ID: id, Name: name, Email: email, Skills: []string{}}
		if skill.Valid {
			u.Skills = append(u.Skills, skill.String)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// LockForUpdate locks the user row so that concurrent library bookings by
// the same user serialize.  A missing row is not an error.
func (r *UserRepo) LockForUpdate(ctx context.Context, userID uint64) error {
	var id uint64
	err := conn(ctx, r.db).QueryRowContext(ctx, "SELECT id FROM users WHERE id=? FOR UPDATE", userID).Scan(&id)
	if err == sql.ErrNoRows {
		return nil
	}
	return err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
