package models

// RegisterUserCommand is the request body for creating an account.
type RegisterUserCommand struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,watchword"`
}

// RegisteredUser is the response after a successful registration.
type RegisteredUser struct {
	Email string `json:"email"`
}

// LoginUserCommand is the request body for obtaining a token pair.
type LoginUserCommand struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AuthTokens is the JWT pair returned on successful authentication.
type AuthTokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}
