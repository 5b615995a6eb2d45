package session

import "github.com/jrsteele09/librahub-admin/users"

// Snapshot returns a copy of the full state.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.clone()
}

func (s *Store) User() *users.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.User.Clone()
}

func (s *Store) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.IsAuthenticated
}

// AccessToken returns "" when absent.
func (s *Store) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deref(s.state.AccessToken)
}

// RefreshToken returns "" when absent.
func (s *Store) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deref(s.state.RefreshToken)
}

func (s *Store) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.IsLoading
}

// Error returns "" when no error is set.
func (s *Store) Error() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return deref(s.state.Error)
}

func (s *Store) Roles() []users.RoleType {
	u := s.User()
	if u == nil {
		return []users.RoleType{}
	}
	return u.Roles
}

func (s *Store) IsAdmin() bool {
	return s.User().IsAdmin()
}

// IsLibrarian is true for librarians and admins.
func (s *Store) IsLibrarian() bool {
	return s.User().IsLibrarian()
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
