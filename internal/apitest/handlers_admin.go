package apitest

import (
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/jrsteele09/librahub-admin/admin"
	"github.com/jrsteele09/librahub-admin/users"
)

const maxUploadBytes = 10 << 20

func (s *Server) UserStatisticsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var stats admin.UserStatistics
		now := time.Now()
		for _, a := range s.accounts.list() {
			stats.Total++
			switch a.Status {
			case users.StatusActive:
				stats.Active++
			case users.StatusDisabled:
				stats.Disabled++
			case users.StatusPending:
				stats.Pending++
			}
			if now.Sub(a.CreatedAt) <= 30*24*time.Hour {
				stats.NewLast30Days++
			}
			if now.Sub(a.CreatedAt) <= 7*24*time.Hour {
				stats.NewLast7Days++
			}
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func (s *Server) BookStatisticsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var stats admin.BookStatistics
		s.mu.Lock()
		for _, b := range s.books {
			if b.Status == admin.BookRemoved {
				continue
			}
			stats.Total++
			stats.NewLast30Days++
			switch b.Status {
			case admin.BookPublished:
				stats.Published++
			case admin.BookDraft:
				stats.Draft++
			case admin.BookUnlisted:
				stats.Unlisted++
			}
		}
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, stats)
	}
}

func (s *Server) OrderStatisticsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		stats := s.orders
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, stats)
	}
}

func (s *Server) EntitlementStatisticsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		stats := s.entitlements
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, stats)
	}
}

// ListUsersHandler answers 404 for a page past the end, as the real API does.
func (s *Server) ListUsersHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
		take, err := strconv.Atoi(r.URL.Query().Get("take"))
		if err != nil || take <= 0 {
			take = admin.DefaultUsersPageSize
		}

		all := s.accounts.list()
		if skip >= len(all) {
			writeError(w, http.StatusNotFound, "No users found")
			return
		}
		end := min(skip+take, len(all))
		page := make([]admin.UserDetails, 0, end-skip)
		for _, a := range all[skip:end] {
			page = append(page, a.details())
		}
		writeJSON(w, http.StatusOK, admin.UsersList{Users: page, TotalCount: len(all)})
	}
}

func (s *Server) CreateUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req admin.CreateUserRequest
		if !decode(w, r, &req) {
			return
		}
		if _, err := users.ParseRole(string(req.Role)); err != nil || req.Email == "" {
			writeError(w, http.StatusBadRequest, "A valid email and role are required")
			return
		}
		if _, err := s.accounts.byEmail(req.Email); err == nil {
			writeError(w, http.StatusConflict, "An account with this email already exists")
			return
		}

		a := &account{User: users.User{
			Email:  req.Email,
			Roles:  []users.RoleType{req.Role},
			Status: users.StatusPending,
		}}
		s.accounts.upsert(a)
		s.issueEmailToken(s.invites, req.Email)
		writeJSON(w, http.StatusCreated, admin.ValueResponse{Value: a.UserID})
	}
}

func (s *Server) UpdateUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req admin.UpdateUserRequest
		if !decode(w, r, &req) {
			return
		}
		updated, err := s.accounts.update(r.PathValue("id"), func(a *account) error {
			a.Email = req.Email
			a.FirstName = req.FirstName
			a.LastName = req.LastName
			a.Phone = req.Phone
			a.DateOfBirth = req.DateOfBirth
			if len(req.Roles) > 0 {
				a.Roles = slices.Clone(req.Roles)
			}
			if req.EmailVerified != nil {
				a.EmailVerified = *req.EmailVerified
			}
			return nil
		})
		if err != nil {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeJSON(w, http.StatusOK, updated.details())
	}
}

func (s *Server) AssignRoleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req admin.AssignRoleRequest
		if !decode(w, r, &req) {
			return
		}
		role, err := users.ParseRole(string(req.Role))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		_, err = s.accounts.update(r.PathValue("id"), func(a *account) error {
			if a.HasRole(role) {
				return fmt.Errorf("user already has role %s", role)
			}
			a.Roles = append(a.Roles, role)
			return nil
		})
		s.writeAccountResult(w, err)
	}
}

func (s *Server) RemoveRoleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role, err := users.ParseRole(r.PathValue("role"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		_, err = s.accounts.update(r.PathValue("id"), func(a *account) error {
			if !a.HasRole(role) {
				return fmt.Errorf("user does not have role %s", role)
			}
			a.Roles = slices.DeleteFunc(a.Roles, func(rt users.RoleType) bool { return rt == role })
			return nil
		})
		s.writeAccountResult(w, err)
	}
}

func (s *Server) DisableUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req admin.DisableUserRequest
		if !decode(w, r, &req) {
			return
		}
		if req.Reason == "" {
			writeError(w, http.StatusBadRequest, "A reason is required")
			return
		}
		id := r.PathValue("id")
		if id == callerID(r) {
			writeError(w, http.StatusConflict, "You cannot disable your own account")
			return
		}
		_, err := s.accounts.update(id, func(a *account) error {
			a.Status = users.StatusDisabled
			return nil
		})
		if err == nil {
			s.issuer.revokeUser(id)
		}
		s.writeAccountResult(w, err)
	}
}

func (s *Server) EnableUserHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, err := s.accounts.update(r.PathValue("id"), func(a *account) error {
			if a.Status != users.StatusDisabled {
				return fmt.Errorf("user is not disabled")
			}
			a.Status = users.StatusActive
			return nil
		})
		s.writeAccountResult(w, err)
	}
}

func (s *Server) AvatarHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename, ok := uploadedFile(w, r)
		if !ok {
			return
		}
		id := r.PathValue("id")
		avatar := fmt.Sprintf("/media/avatars/%s/%s", id, filename)
		_, err := s.accounts.update(id, func(a *account) error {
			a.Avatar = &avatar
			return nil
		})
		if err != nil {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeJSON(w, http.StatusOK, admin.ValueResponse{Value: avatar})
	}
}

// writeAccountResult maps an accounts.update outcome to a response.
func (s *Server) writeAccountResult(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case err == errAccountNotFound:
		writeError(w, http.StatusNotFound, "User not found")
	default:
		writeError(w, http.StatusConflict, err.Error())
	}
}

// uploadedFile parses a multipart form and returns the name of its "file"
// part.
func uploadedFile(w http.ResponseWriter, r *http.Request) (string, bool) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Expected a multipart form")
		return "", false
	}
	f, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return "", false
	}
	defer f.Close()
	if header.Size == 0 {
		writeError(w, http.StatusBadRequest, "file is empty")
		return "", false
	}
	return header.Filename, true
}
