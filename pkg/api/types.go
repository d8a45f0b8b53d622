package api

import "time"

// credentialsRequest is the register and login body. passwordHash carries
// the plaintext password; the name is kept for client compatibility.
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"passwordHash"`
	Role     string `json:"role"`
}

// loginResponse is returned by a successful login
type loginResponse struct {
	Token string `json:"Token"`
	Role  string `json:"Role"`
	Name  string `json:"Name"`
}

type changeUsernameRequest struct {
	CurrentUsername string `json:"CurrentUsername"`
	NewUsername     string `json:"NewUsername"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"CurrentPassword"`
	NewPassword     string `json:"NewPassword"`
}

// taskRequest holds the client-writable task fields. Update overwrites all of them.
type taskRequest struct {
	Title                 *string    `json:"title"`
	Description           *string    `json:"description"`
	IsCompleted           bool       `json:"isCompleted"`
	Priority              *string    `json:"priority"`
	PlannedCompletionDate *time.Time `json:"plannedCompletionDate"`
}

type subTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	IsCompleted bool    `json:"isCompleted"`
	Status      string  `json:"status"`
}

// notificationRequest holds the client-writable notification fields.
// Owner, timestamp and read flag are always set by the server.
type notificationRequest struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
