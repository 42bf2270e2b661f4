// Package memory is an in-process implementation of every repository and of
// dbx.TxRunner. Transactions are serialized behind one mutex and rolled back
// by restoring a snapshot, which gives the same observable atomicity as the
// PostgreSQL store. It backs the "memory" DSN for local runs and the service
// tests.
package memory

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/dmitrijs2005/permitauth/internal/dbx"
	"github.com/dmitrijs2005/permitauth/internal/server/models"
	"github.com/dmitrijs2005/permitauth/internal/server/repositories/blacklist"
	"github.com/dmitrijs2005/permitauth/internal/server/repositories/loginattempts"
	"github.com/dmitrijs2005/permitauth/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/permitauth/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/permitauth/internal/server/repositories/users"
)

// DSN selects the in-memory store instead of PostgreSQL.
const DSN = "memory"

var (
	errRawSQL          = errors.New("memory store: raw SQL is not supported")
	errUniqueViolation = errors.New("memory store: unique constraint violated")
)

type state struct {
	users     map[string]models.User
	tokens    map[string]models.RefreshToken
	sessions  map[string]models.Session
	blacklist map[string]models.BlacklistEntry
	attempts  []models.LoginAttempt
	attemptID int64
}

func newState() state {
	return state{
		users:     map[string]models.User{},
		tokens:    map[string]models.RefreshToken{},
		sessions:  map[string]models.Session{},
		blacklist: map[string]models.BlacklistEntry{},
	}
}

func (s state) clone() state {
	c := state{
		users:     make(map[string]models.User, len(s.users)),
		tokens:    make(map[string]models.RefreshToken, len(s.tokens)),
		sessions:  make(map[string]models.Session, len(s.sessions)),
		blacklist: make(map[string]models.BlacklistEntry, len(s.blacklist)),
		attempts:  append([]models.LoginAttempt(nil), s.attempts...),
		attemptID: s.attemptID,
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.tokens {
		c.tokens[k] = v
	}
	for k, v := range s.sessions {
		c.sessions[k] = v
	}
	for k, v := range s.blacklist {
		c.blacklist[k] = v
	}
	return c
}

// Store holds all tables. The zero value is not usable; call NewStore.
type Store struct {
	mu   sync.Mutex
	data state
}

func NewStore() *Store {
	return &Store{data: newState()}
}

// handle is the DBTX given to repositories. Handles created by RunInTx run
// with the store lock already held.
type handle struct {
	inTx bool
}

func (handle) ExecContext(context.Context, string, ...any) (sql.Result, error) {
	return nil, errRawSQL
}

func (handle) QueryContext(context.Context, string, ...any) (*sql.Rows, error) {
	return nil, errRawSQL
}

func (handle) QueryRowContext(context.Context, string, ...any) *sql.Row {
	return nil
}

func (s *Store) Conn() dbx.DBTX { return handle{} }

// RunInTx runs fn with the store locked. Any error or panic restores the
// state captured before fn started.
func (s *Store) RunInTx(ctx context.Context, _ *sql.TxOptions, fn dbx.TxFunc) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	defer func() {
		if p := recover(); p != nil {
			s.data = snapshot
			panic(p)
		}
		if err != nil {
			s.data = snapshot
		}
	}()

	return fn(ctx, handle{inTx: true})
}

// RunMigrations is a no-op; the schema is implicit.
func (s *Store) RunMigrations(context.Context, *sql.DB) error { return nil }

func (s *Store) Users(db dbx.DBTX) users.Repository {
	return &userRepo{base{s, inTx(db)}}
}

func (s *Store) RefreshTokens(db dbx.DBTX) refreshtokens.Repository {
	return &tokenRepo{base{s, inTx(db)}}
}

func (s *Store) Sessions(db dbx.DBTX) sessions.Repository {
	return &sessionRepo{base{s, inTx(db)}}
}

func (s *Store) Blacklist(db dbx.DBTX) blacklist.Repository {
	return &blacklistRepo{base{s, inTx(db)}}
}

func (s *Store) LoginAttempts(db dbx.DBTX) loginattempts.Repository {
	return &attemptRepo{base{s, inTx(db)}}
}

func inTx(db dbx.DBTX) bool {
	h, ok := db.(handle)
	return ok && h.inTx
}

type base struct {
	s    *Store
	inTx bool
}

// lock takes the store lock unless the caller already runs inside RunInTx.
func (b base) lock() func() {
	if b.inTx {
		return func() {}
	}
	b.s.mu.Lock()
	return b.s.mu.Unlock
}

// FamilyTokens returns a copy of every token in the family.
func (s *Store) FamilyTokens(familyID string) []models.RefreshToken {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.RefreshToken
	for _, t := range s.data.tokens {
		if t.FamilyID == familyID {
			out = append(out, t)
		}
	}
	return out
}

// Attempts returns a copy of the login audit log in insertion order.
func (s *Store) Attempts() []models.LoginAttempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.LoginAttempt(nil), s.data.attempts...)
}

// BlacklistSize reports the number of blacklist rows.
func (s *Store) BlacklistSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.blacklist)
}
