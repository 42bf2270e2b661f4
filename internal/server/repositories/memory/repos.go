package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/dmitrijs2005/permitauth/internal/common"
	"github.com/dmitrijs2005/permitauth/internal/server/models"
	"github.com/dmitrijs2005/permitauth/internal/server/repositories/loginattempts"
)

type userRepo struct{ base }

func (r *userRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	defer r.lock()()
	for _, existing := range r.s.data.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return nil, common.ErrorAlreadyExists
		}
	}
	if _, ok := r.s.data.users[u.ID]; ok {
		return nil, common.ErrorAlreadyExists
	}
	r.s.data.users[u.ID] = *u
	return u, nil
}

func (r *userRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	defer r.lock()()
	for _, u := range r.s.data.users {
		if strings.EqualFold(u.Email, email) {
			return &u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *userRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	defer r.lock()()
	u, ok := r.s.data.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

func (r *userRepo) SetActive(_ context.Context, id string, active bool) error {
	defer r.lock()()
	u, ok := r.s.data.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	u.IsActive = active
	r.s.data.users[id] = u
	return nil
}

type tokenRepo struct{ base }

func (r *tokenRepo) Create(_ context.Context, t *models.RefreshToken) error {
	defer r.lock()()
	for _, existing := range r.s.data.tokens {
		if existing.TokenHash == t.TokenHash || existing.ID == t.ID {
			return errUniqueViolation
		}
		if existing.FamilyID == t.FamilyID && !existing.IsUsed && !existing.IsRevoked {
			return errUniqueViolation
		}
	}
	r.s.data.tokens[t.ID] = *t
	return nil
}

func (r *tokenRepo) FindByHashForUpdate(_ context.Context, tokenHash string) (*models.RefreshToken, error) {
	defer r.lock()()
	for _, t := range r.s.data.tokens {
		if t.TokenHash == tokenHash {
			return &t, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *tokenRepo) MarkUsed(_ context.Context, id string, at time.Time) error {
	defer r.lock()()
	t, ok := r.s.data.tokens[id]
	if !ok || t.IsUsed {
		return common.ErrorNotFound
	}
	t.IsUsed = true
	t.UsedAt = &at
	r.s.data.tokens[id] = t
	return nil
}

func (r *tokenRepo) RevokeFamily(_ context.Context, familyID, reason string, at time.Time) (int64, error) {
	defer r.lock()()
	return r.revokeWhere(func(t models.RefreshToken) bool { return t.FamilyID == familyID }, reason, at), nil
}

func (r *tokenRepo) RevokeAllForUser(_ context.Context, userID, reason string, at time.Time) (int64, error) {
	defer r.lock()()
	return r.revokeWhere(func(t models.RefreshToken) bool { return t.UserID == userID }, reason, at), nil
}

func (r *tokenRepo) revokeWhere(match func(models.RefreshToken) bool, reason string, at time.Time) int64 {
	var n int64
	for id, t := range r.s.data.tokens {
		if t.IsRevoked || !match(t) {
			continue
		}
		why := reason
		t.IsRevoked = true
		t.RevocationReason = &why
		t.RevokedAt = &at
		r.s.data.tokens[id] = t
		n++
	}
	return n
}

func (r *tokenRepo) DeleteExpiredBefore(_ context.Context, cutoff time.Time) (int64, error) {
	defer r.lock()()
	var n int64
	for id, t := range r.s.data.tokens {
		if t.ExpiresAt.Before(cutoff) {
			delete(r.s.data.tokens, id)
			n++
		}
	}
	return n, nil
}

type sessionRepo struct{ base }

func (r *sessionRepo) Create(_ context.Context, s *models.Session) error {
	defer r.lock()()
	if _, ok := r.s.data.sessions[s.FamilyID]; ok {
		return errUniqueViolation
	}
	row := *s
	row.IsActive = true
	r.s.data.sessions[s.FamilyID] = row
	return nil
}

func (r *sessionRepo) Touch(_ context.Context, familyID string, at, expiresAt time.Time) error {
	defer r.lock()()
	s, ok := r.s.data.sessions[familyID]
	if !ok || !s.IsActive {
		return nil
	}
	s.LastActivityAt = at
	s.ExpiresAt = expiresAt
	r.s.data.sessions[familyID] = s
	return nil
}

func (r *sessionRepo) Deactivate(_ context.Context, familyID, reason string, at time.Time) error {
	defer r.lock()()
	r.endWhere(func(s models.Session) bool { return s.FamilyID == familyID }, reason, at)
	return nil
}

func (r *sessionRepo) DeactivateAllForUser(_ context.Context, userID, reason string, at time.Time) (int64, error) {
	defer r.lock()()
	return r.endWhere(func(s models.Session) bool { return s.UserID == userID }, reason, at), nil
}

func (r *sessionRepo) ExpireStale(_ context.Context, now time.Time) (int64, error) {
	defer r.lock()()
	return r.endWhere(func(s models.Session) bool { return !s.ExpiresAt.After(now) }, common.ReasonSessionExpiry, now), nil
}

func (r *sessionRepo) endWhere(match func(models.Session) bool, reason string, at time.Time) int64 {
	var n int64
	for k, s := range r.s.data.sessions {
		if !s.IsActive || !match(s) {
			continue
		}
		why := reason
		s.IsActive = false
		s.EndedAt = &at
		s.EndReason = &why
		r.s.data.sessions[k] = s
		n++
	}
	return n
}

func (r *sessionRepo) ListActive(_ context.Context, userID string, now time.Time) ([]models.Session, error) {
	defer r.lock()()
	var out []models.Session
	for _, s := range r.s.data.sessions {
		if s.UserID == userID && s.IsActive && s.ExpiresAt.After(now) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActivityAt.After(out[j].LastActivityAt) })
	return out, nil
}

func (r *sessionRepo) Get(_ context.Context, familyID string) (*models.Session, error) {
	defer r.lock()()
	s, ok := r.s.data.sessions[familyID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &s, nil
}

type blacklistRepo struct{ base }

func (r *blacklistRepo) Add(_ context.Context, e *models.BlacklistEntry) (bool, error) {
	defer r.lock()()
	if _, ok := r.s.data.blacklist[e.JTI]; ok {
		return false, nil
	}
	r.s.data.blacklist[e.JTI] = *e
	return true, nil
}

func (r *blacklistRepo) Exists(_ context.Context, jti string) (bool, error) {
	defer r.lock()()
	_, ok := r.s.data.blacklist[jti]
	return ok, nil
}

func (r *blacklistRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	defer r.lock()()
	var n int64
	for jti, e := range r.s.data.blacklist {
		if !e.ExpiresAt.After(now) {
			delete(r.s.data.blacklist, jti)
			n++
		}
	}
	return n, nil
}

type attemptRepo struct{ base }

func (r *attemptRepo) Record(_ context.Context, a *models.LoginAttempt) error {
	defer r.lock()()
	r.s.data.attemptID++
	a.ID = r.s.data.attemptID
	r.s.data.attempts = append(r.s.data.attempts, *a)
	return nil
}

func (r *attemptRepo) FailuresSince(_ context.Context, email string, since time.Time) (loginattempts.FailureStats, error) {
	defer r.lock()()
	var stats loginattempts.FailureStats
	for _, a := range r.s.data.attempts {
		if a.Email != email || a.Success || a.FailureReason == models.FailureRateLimited || !a.AttemptedAt.After(since) {
			continue
		}
		stats.Count++
		if stats.Oldest == nil || a.AttemptedAt.Before(*stats.Oldest) {
			at := a.AttemptedAt
			stats.Oldest = &at
		}
	}
	return stats, nil
}

func (r *attemptRepo) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	defer r.lock()()
	kept := r.s.data.attempts[:0]
	var n int64
	for _, a := range r.s.data.attempts {
		if a.AttemptedAt.Before(cutoff) {
			n++
			continue
		}
		kept = append(kept, a)
	}
	r.s.data.attempts = kept
	return n, nil
}
