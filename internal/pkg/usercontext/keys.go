package usercontext

// Shared Locals keys used across controllers and middlewares
const (
	KeyUserContext = "USER_CONTEXT"
	KeyUserID      = "user_id"
	KeyIsAdmin     = "isAdmin"
)

// Request headers set by the trusted gateway in front of the API.
const (
	HeaderUserID   = "X-User-ID"
	HeaderAdminKey = "X-Admin-Key"
)
