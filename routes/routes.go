package routes

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Public
	RouteHome = "/"

	// Auth Routes - only reachable while logged out
	RouteLogin                = "/login"
	RouteRegister             = "/register"
	RouteVerifyEmail          = "/verify-email"
	RouteForgotPassword       = "/forgot-password"
	RouteResetPassword        = "/reset-password"
	RouteCompleteRegistration = "/complete-registration"

	// Authenticated Routes
	RouteLibrary = "/library"

	// Admin Routes
	RouteAdmin          = "/admin"
	RouteAdminDashboard = "/admin/dashboard" // Admin only
	RouteAdminBooks     = "/admin/books"     // Librarian or Admin
	RouteAdminUsers     = "/admin/users"     // Admin only

	// RouteUnauthenticated is where a torn-down session lands.
	RouteUnauthenticated = RouteHome
)
