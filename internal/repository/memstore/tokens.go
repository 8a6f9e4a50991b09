package memstore

import (
	"context"
	"time"

	"github.com/iliyamo/campus-seat-reservation/internal/model"
)

// Tokens mirrors repository.TokenRepo.
type Tokens struct{ s *Store }

func (r *Tokens) StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	return r.s.do(ctx, func(st *state) error {
		st.nextToken++
		st.tokens[tokenHash] = model.RefreshToken{ID: st.nextToken, UserID: userID, TokenHash: tokenHash, ExpiresAt: exp}
		return nil
	})
}

func (r *Tokens) ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error) {
	var uid uint64
	err := r.s.do(ctx, func(st *state) error {
		t, ok := st.tokens[tokenHash]
		if !ok {
			return model.NewError(model.ErrUnauthenticated, "invalid refresh token")
		}
		if t.RevokedAt != nil || time.Now().UTC().After(t.ExpiresAt) {
			return model.NewError(model.ErrUnauthenticated, "refresh token expired or revoked")
		}
		uid = t.UserID
		return nil
	})
	return uid, err
}

func (r *Tokens) RevokeByHash(ctx context.Context, tokenHash string) (bool, error) {
	var revoked bool
	err := r.s.do(ctx, func(st *state) error {
		now := time.Now().UTC()
		if t, ok := st.tokens[tokenHash]; ok && t.RevokedAt == nil && now.Before(t.ExpiresAt) {
			t.RevokedAt = &now
			st.tokens[tokenHash] = t
			revoked = true
		}
		return nil
	})
	return revoked, err
}

func (r *Tokens) RevokeAllForUser(ctx context.Context, userID uint64) error {
	return r.s.do(ctx, func(st *state) error {
		now := time.Now().UTC()
		for h, t := range st.tokens {
			if t.UserID == userID && t.RevokedAt == nil {
				t.RevokedAt = &now
				st.tokens[h] = t
			}
		}
		return nil
	})
}
