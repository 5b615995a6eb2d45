package routes

import "github.com/jrsteele09/librahub-admin/users"

// RedirectPathForRole maps a user to their landing page. Admin wins over
// Librarian; no user or no roles lands on the library.
func RedirectPathForRole(user *users.User) string {
	if user == nil || len(user.Roles) == 0 {
		return RouteLibrary
	}
	if user.HasRole(users.RoleAdmin) {
		return RouteAdminDashboard
	}
	if user.HasRole(users.RoleLibrarian) {
		return RouteAdminBooks
	}
	return RouteLibrary
}
