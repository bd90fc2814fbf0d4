package models

// Operator is a human user of the relay. PasswordHash is a bcrypt hash and
// never leaves the server.
type Operator struct {
	ID           string `json:"id"` // UUID
	Name         string `json:"name" binding:"required,min=2,max=50"`
	PasswordHash string `json:"-"`
	Active       bool   `json:"active"`
	CreatedAt    int64  `json:"created_at"`
}

// LoginRequest is the request body for operator login.
type LoginRequest struct {
	Name     string `json:"name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the issued bearer token.
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}
