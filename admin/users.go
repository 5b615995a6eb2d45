package admin

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/jrsteele09/librahub-admin/apiclient"
	apperrors "github.com/jrsteele09/librahub-admin/internal/errors"
	"github.com/jrsteele09/librahub-admin/internal/validation"
	"github.com/jrsteele09/librahub-admin/users"
)

const (
	PathUsers = "/users"

	DefaultUsersPageSize = 20
)

const (
	LoadUsersFailedMsg    = "Failed to load users. Please try again."
	CreateUserFailedMsg   = "Failed to create user. Please try again."
	AssignRoleFailedMsg   = "Failed to assign role. Please try again."
	RemoveRoleFailedMsg   = "Failed to remove role. Please try again."
	DisableUserFailedMsg  = "Failed to disable user. Please try again."
	EnableUserFailedMsg   = "Failed to enable user. Please try again."
	UpdateUserFailedMsg   = "Failed to update user. Please try again."
	UploadAvatarFailedMsg = "Failed to upload avatar."
)

// UserDetails is the administrator's view of an account.
type UserDetails struct {
	ID            string           `json:"id"`
	Email         string           `json:"email"`
	FirstName     string           `json:"firstName"`
	LastName      string           `json:"lastName"`
	DisplayName   string           `json:"displayName"`
	Roles         []users.RoleType `json:"roles"`
	EmailVerified bool             `json:"emailVerified"`
	Status        users.Status     `json:"status"`
	CreatedAt     string           `json:"createdAt"`
	LastLoginAt   *string          `json:"lastLoginAt"`
	Phone         *string          `json:"phone,omitempty"`
	DateOfBirth   *string          `json:"dateOfBirth,omitempty"`
	Avatar        *string          `json:"avatar,omitempty"`
}

type UsersList struct {
	Users      []UserDetails `json:"users"`
	TotalCount int           `json:"totalCount"`
}

// CreateUserRequest invites a new account with one role.
type CreateUserRequest struct {
	Email string         `json:"email" validate:"required,email"`
	Role  users.RoleType `json:"role" validate:"required,oneof=User Librarian Admin"`
}

type AssignRoleRequest struct {
	Role users.RoleType `json:"role" validate:"required,oneof=User Librarian Admin"`
}

type DisableUserRequest struct {
	Reason string `json:"reason" validate:"required,nonblank"`
}

type UpdateUserRequest struct {
	Email         string           `json:"email" validate:"required,email"`
	FirstName     string           `json:"firstName" validate:"required,nonblank"`
	LastName      string           `json:"lastName" validate:"required,nonblank"`
	Phone         *string          `json:"phone,omitempty"`
	DateOfBirth   *string          `json:"dateOfBirth,omitempty"`
	Roles         []users.RoleType `json:"roles" validate:"dive,oneof=User Librarian Admin"`
	EmailVerified *bool            `json:"emailVerified,omitempty"`
}

// ListUsers pages through accounts. A 404 means there are none.
func (s *Service) ListUsers(ctx context.Context, skip, take int) (*UsersList, error) {
	if take <= 0 {
		take = DefaultUsersPageSize
	}
	q := url.Values{}
	q.Set("skip", strconv.Itoa(skip))
	q.Set("take", strconv.Itoa(take))

	var out UsersList
	if err := s.client.Get(ctx, PathUsers, &out, apiclient.WithQuery(q)); err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return &UsersList{Users: []UserDetails{}}, nil
		}
		return nil, fail("ListUsers", err, LoadUsersFailedMsg)
	}
	if out.Users == nil {
		out.Users = []UserDetails{}
	}
	return &out, nil
}

// CreateUser returns the new account's id.
func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest) (string, error) {
	if err := validator.Validate(req); err != nil {
		return "", fail("CreateUser", err, CreateUserFailedMsg)
	}
	var out ValueResponse
	if err := s.client.Post(ctx, PathUsers, req, &out); err != nil {
		return "", fail("CreateUser", err, CreateUserFailedMsg)
	}
	return out.Value, nil
}

func (s *Service) AssignRole(ctx context.Context, userID string, role users.RoleType) error {
	req := AssignRoleRequest{Role: role}
	if err := validator.Validate(req); err != nil {
		return fail("AssignRole", err, AssignRoleFailedMsg)
	}
	if err := s.client.Post(ctx, userPath(userID, "roles"), req, nil); err != nil {
		return fail("AssignRole", err, AssignRoleFailedMsg)
	}
	return nil
}

func (s *Service) RemoveRole(ctx context.Context, userID string, role users.RoleType) error {
	if _, err := users.ParseRole(string(role)); err != nil {
		return fail("RemoveRole", validation.Invalid(err.Error()), RemoveRoleFailedMsg)
	}
	if err := s.client.Delete(ctx, userPath(userID, "roles", string(role)), nil); err != nil {
		return fail("RemoveRole", err, RemoveRoleFailedMsg)
	}
	return nil
}

// DisableUser blocks an account. A reason is required.
func (s *Service) DisableUser(ctx context.Context, userID, reason string) error {
	req := DisableUserRequest{Reason: reason}
	if err := validator.Validate(req); err != nil {
		return fail("DisableUser", err, DisableUserFailedMsg)
	}
	if err := s.client.Post(ctx, userPath(userID, "disable"), req, nil); err != nil {
		return fail("DisableUser", err, DisableUserFailedMsg)
	}
	return nil
}

func (s *Service) EnableUser(ctx context.Context, userID string) error {
	if err := s.client.Post(ctx, userPath(userID, "enable"), nil, nil); err != nil {
		return fail("EnableUser", err, EnableUserFailedMsg)
	}
	return nil
}

func (s *Service) UpdateUser(ctx context.Context, userID string, req UpdateUserRequest) (*UserDetails, error) {
	if err := validator.Validate(req); err != nil {
		return nil, fail("UpdateUser", err, UpdateUserFailedMsg)
	}
	var out UserDetails
	if err := s.client.Put(ctx, userPath(userID), req, &out); err != nil {
		return nil, fail("UpdateUser", err, UpdateUserFailedMsg)
	}
	return &out, nil
}

// UploadAvatar sends an image as the multipart field "file" and returns its
// URL.
func (s *Service) UploadAvatar(ctx context.Context, userID, filename string, image io.Reader) (string, error) {
	var out ValueResponse
	err := s.client.PostMultipart(ctx, userPath(userID, "avatar"), nil,
		apiclient.FormFile{Field: "file", Name: filename, Contents: image}, &out)
	if err != nil {
		return "", fail("UploadAvatar", err, UploadAvatarFailedMsg)
	}
	return out.Value, nil
}

func userPath(userID string, parts ...string) string {
	p := fmt.Sprintf("%s/%s", PathUsers, escape(userID))
	for _, part := range parts {
		p += "/" + escape(part)
	}
	return p
}
