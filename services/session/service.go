// Package session owns the account lifecycle: register, login, logout and
// account deletion, with local validation in front of the transport and the
// token store kept in step with the cache.
package session

import (
	"context"
	"errors"
	"fmt"
	"unicode"

	"github.com/go-playground/validator/v10"

	"myvod/api"
	"myvod/models"
	"myvod/services/cache"
	"myvod/services/mutations"
)

var ErrValidation = errors.New("validation failed")

// Service coordinates authentication against the API, the persisted token
// pair and the resource cache.
type Service struct {
	api      *api.Client
	store    *cache.Store
	tokens   *TokenStore
	pipeline *mutations.Pipeline
	validate *validator.Validate
}

// NewService creates the session service. Account deletion goes through the
// mutation pipeline so it carries the same classification and cache wipe as
// any other write.
func NewService(client *api.Client, store *cache.Store, tokens *TokenStore, pipeline *mutations.Pipeline) (*Service, error) {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("watchword", validWatchword); err != nil {
		return nil, fmt.Errorf("register watchword rule: %w", err)
	}
	return &Service{api: client, store: store, tokens: tokens, pipeline: pipeline, validate: v}, nil
}

// Register creates an account. Commands that fail local validation never
// reach the transport.
func (s *Service) Register(ctx context.Context, cmd models.RegisterUserCommand) (*models.RegisteredUser, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, validationError(err)
	}
	return s.api.Register(ctx, cmd)
}

// Login authenticates and persists the returned token pair.
func (s *Service) Login(ctx context.Context, cmd models.LoginUserCommand) (*models.AuthTokens, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, validationError(err)
	}
	tokens, err := s.api.Login(ctx, cmd)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.SetTokens(*tokens); err != nil {
		return nil, fmt.Errorf("persist tokens: %w", err)
	}
	return tokens, nil
}

// Logout drops the token pair and wipes the cache. Purely local; the server
// keeps no session state worth revoking.
func (s *Service) Logout() error {
	s.store.Clear()
	if err := s.tokens.Clear(); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	return nil
}

// DeleteAccount removes the account remotely, then clears local state the
// same way a logout does.
func (s *Service) DeleteAccount(ctx context.Context) error {
	if err := s.pipeline.DeleteAccount(ctx); err != nil {
		return err
	}
	if err := s.tokens.Clear(); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	return nil
}

// Authenticated reports whether a persisted refresh token exists.
func (s *Service) Authenticated() bool {
	return s.tokens.Authenticated()
}

// validWatchword requires at least one letter and one digit; length is
// covered by the min tag.
func validWatchword(fl validator.FieldLevel) bool {
	var hasLetter, hasDigit bool
	for _, r := range fl.Field().String() {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	return hasLetter && hasDigit
}

// validationError converts validator output into one readable message per
// failed rule, wrapped in ErrValidation.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %s", ErrValidation, err)
	}
	for _, fe := range verrs {
		return fmt.Errorf("%w: %s", ErrValidation, fieldMessage(fe))
	}
	return fmt.Errorf("%w: invalid input", ErrValidation)
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fieldName(fe))
	case "email":
		return "email address is not valid"
	case "min":
		return fmt.Sprintf("password must be at least %s characters", fe.Param())
	case "watchword":
		return "password must contain at least one letter and one number"
	default:
		return fmt.Sprintf("%s is not valid", fieldName(fe))
	}
}

func fieldName(fe validator.FieldError) string {
	switch fe.Field() {
	case "Email":
		return "email"
	case "Password":
		return "password"
	default:
		return fe.Field()
	}
}
