package apitest

import (
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/librahub-admin/admin"
	"github.com/jrsteele09/librahub-admin/users"
	"golang.org/x/crypto/bcrypt"
)

var errAccountNotFound = errors.New("not found")

const (
	roleUser      = users.RoleUser
	roleLibrarian = users.RoleLibrarian
	roleAdmin     = users.RoleAdmin
)

type account struct {
	users.User
	PasswordHash []byte
	Phone        *string
	DateOfBirth  *string
	Avatar       *string
	CreatedAt    time.Time
	LastLoginAt  *time.Time
}

func (a *account) details() admin.UserDetails {
	d := admin.UserDetails{
		ID:            a.UserID,
		Email:         a.Email,
		FirstName:     a.FirstName,
		LastName:      a.LastName,
		DisplayName:   a.User.DisplayName(),
		Roles:         slices.Clone(a.Roles),
		EmailVerified: a.EmailVerified,
		Status:        a.Status,
		CreatedAt:     a.CreatedAt.UTC().Format(time.RFC3339),
		Phone:         a.Phone,
		DateOfBirth:   a.DateOfBirth,
		Avatar:        a.Avatar,
	}
	if a.LastLoginAt != nil {
		ts := a.LastLoginAt.UTC().Format(time.RFC3339)
		d.LastLoginAt = &ts
	}
	return d
}

// accounts is the fake's user table, indexed by id and by email.
type accounts struct {
	users    map[string]*account
	emailIds map[string]string // email to user id
	lock     sync.RWMutex
}

func newAccounts() *accounts {
	return &accounts{
		users:    make(map[string]*account),
		emailIds: make(map[string]string),
	}
}

func (ar *accounts) upsert(a *account) {
	ar.lock.Lock()
	defer ar.lock.Unlock()

	if a.UserID == "" {
		a.UserID = uuid.New().String()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	ar.users[a.UserID] = a
	ar.emailIds[a.Email] = a.UserID
}

func (ar *accounts) byEmail(email string) (account, error) {
	ar.lock.RLock()
	defer ar.lock.RUnlock()

	id, ok := ar.emailIds[email]
	if !ok {
		return account{}, errAccountNotFound
	}
	return ar.copyOf(id), nil
}

func (ar *accounts) byID(id string) (account, error) {
	ar.lock.RLock()
	defer ar.lock.RUnlock()

	if _, ok := ar.users[id]; !ok {
		return account{}, errAccountNotFound
	}
	return ar.copyOf(id), nil
}

// update applies fn to the stored account under the write lock.
func (ar *accounts) update(id string, fn func(a *account) error) (account, error) {
	ar.lock.Lock()
	defer ar.lock.Unlock()

	a, ok := ar.users[id]
	if !ok {
		return account{}, errAccountNotFound
	}
	oldEmail := a.Email
	if err := fn(a); err != nil {
		return account{}, err
	}
	if a.Email != oldEmail {
		delete(ar.emailIds, oldEmail)
		ar.emailIds[a.Email] = id
	}
	return ar.copyOf(id), nil
}

// list returns accounts ordered by creation time.
func (ar *accounts) list() []account {
	ar.lock.RLock()
	defer ar.lock.RUnlock()

	out := make([]account, 0, len(ar.users))
	for id := range ar.users {
		out = append(out, ar.copyOf(id))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Email < out[j].Email
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (ar *accounts) copyOf(id string) account {
	a := *ar.users[id]
	a.Roles = slices.Clone(a.Roles)
	return a
}

func hashPassword(password string) []byte {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return hash
}

func passwordMatches(a account, password string) bool {
	return len(a.PasswordHash) > 0 && bcrypt.CompareHashAndPassword(a.PasswordHash, []byte(password)) == nil
}

// AddUser seeds an active, verified account and returns its identity.
func (s *Server) AddUser(email, password string, roles ...users.RoleType) users.User {
	if len(roles) == 0 {
		roles = []users.RoleType{roleUser}
	}
	a := &account{
		User: users.User{
			Email:         email,
			Roles:         roles,
			EmailVerified: true,
			Status:        users.StatusActive,
		},
		PasswordHash: hashPassword(password),
	}
	s.accounts.upsert(a)
	return a.User
}

// SetUserStatus changes an account's status directly.
func (s *Server) SetUserStatus(userID string, status users.Status) error {
	_, err := s.accounts.update(userID, func(a *account) error {
		a.Status = status
		return nil
	})
	return err
}

// Account returns the stored identity for email.
func (s *Server) Account(email string) (users.User, bool) {
	a, err := s.accounts.byEmail(email)
	if err != nil {
		return users.User{}, false
	}
	return a.User, true
}

// VerificationToken is the pending email-verification token for email.
func (s *Server) VerificationToken(email string) string {
	return s.pendingToken(s.verifications, email)
}

// ResetToken is the pending password-reset token for email.
func (s *Server) ResetToken(email string) string {
	return s.pendingToken(s.resets, email)
}

// InviteToken is the complete-registration token of an invited account.
func (s *Server) InviteToken(email string) string {
	return s.pendingToken(s.invites, email)
}

func (s *Server) pendingToken(tokens map[string]string, email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tok, e := range tokens {
		if e == email {
			return tok
		}
	}
	return ""
}

// issueEmailToken replaces any pending token of the same kind for email.
func (s *Server) issueEmailToken(tokens map[string]string, email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tok, e := range tokens {
		if e == email {
			delete(tokens, tok)
		}
	}
	tok := uuid.NewString()
	tokens[tok] = email
	return tok
}

// consumeEmailToken returns the email tok was issued for and forgets it.
func (s *Server) consumeEmailToken(tokens map[string]string, tok string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email, ok := tokens[tok]
	if ok {
		delete(tokens, tok)
	}
	return email, ok
}

// Invite creates a pending account the way an administrator would and
// returns its complete-registration token.
func (s *Server) Invite(email string, role users.RoleType) string {
	s.accounts.upsert(&account{User: users.User{
		Email:  email,
		Roles:  []users.RoleType{role},
		Status: users.StatusPending,
	}})
	return s.issueEmailToken(s.invites, email)
}
