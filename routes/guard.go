package routes

import (
	"github.com/jrsteele09/librahub-admin/session"
	"github.com/jrsteele09/librahub-admin/users"
)

// Decision is the outcome of a route guard. Exactly one of Loading, Allow or
// a non-empty Redirect holds.
type Decision struct {
	Allow    bool
	Loading  bool
	Redirect string
}

var (
	allow   = Decision{Allow: true}
	loading = Decision{Loading: true}
)

func redirect(path string) Decision {
	return Decision{Redirect: path}
}

// Protected gates a page behind authentication and, optionally, a role.
// required may be "", RoleAdmin or RoleLibrarian; Librarian pages also admit
// admins. A user lacking the role goes to their own landing page.
func Protected(state session.State, required users.RoleType) Decision {
	if state.IsLoading {
		return loading
	}
	if !state.IsAuthenticated {
		return redirect(RouteLogin)
	}

	switch required {
	case users.RoleAdmin:
		if !state.User.IsAdmin() {
			return redirect(RedirectPathForRole(state.User))
		}
	case users.RoleLibrarian:
		if !state.User.IsLibrarian() {
			return redirect(RedirectPathForRole(state.User))
		}
	}
	return allow
}

// AuthOnly gates the login/register family: logged in users are sent to their
// landing page.
func AuthOnly(state session.State) Decision {
	if state.IsLoading {
		return loading
	}
	if state.IsAuthenticated && state.User != nil {
		return redirect(RedirectPathForRole(state.User))
	}
	return allow
}

// RoleGate admits users holding any of allowed, everyone else goes home.
func RoleGate(state session.State, allowed ...users.RoleType) Decision {
	if state.User == nil || !state.User.HasAnyRole(allowed...) {
		return redirect(RouteHome)
	}
	return allow
}
