package db

// Roles accepted by the users.role column.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// Activity statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// User is an account row. PassHash is never serialized to clients.
type User struct {
	ID        int64
	Username  string
	PassHash  string
	Email     string
	Role      string
	Active    bool
	CreatedAt int64
	LastLogin *int64
}

// Session is a bearer token bound to one user.
type Session struct {
	Token      string
	UserID     int64
	CreatedAt  int64
	ExpiresAt  int64
	SourceAddr string
}

// ActivityEntry is one append-only audit row. UserID is nil for
// unauthenticated actions such as failed logins.
type ActivityEntry struct {
	ID         int64
	UserID     *int64
	Username   string
	Action     string
	Target     string
	SourceAddr string
	CreatedAt  int64
	Status     string
	Details    string
}

// UserPatch lists the mutable user fields; nil fields are left unchanged.
type UserPatch struct {
	Username *string
	Email    *string
	Role     *string
	Active   *bool
}
