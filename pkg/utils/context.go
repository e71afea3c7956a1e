package utils

type ContextKey string

const (
	UserKey   ContextKey = "user"
	RolesKey  ContextKey = "roles"
	UserIDKey string     = "user_id"
	ExpKey    string     = "exp"
)
