package usercontext

// Shared Locals keys and headers used across controllers and middlewares
const (
	HeaderUserID = "X-User-ID"

	KeyUserContext = "USER_CONTEXT"
	KeyInternal    = "internal_caller"
)
