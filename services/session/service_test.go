package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/afero"

	"myvod/api"
	"myvod/models"
	"myvod/services/cache"
	"myvod/services/mutations"
)

func newTestSession(t *testing.T, handler http.Handler) (*Service, *TokenStore, *cache.Store) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	tokens, err := NewTokenStore(afero.NewMemMapFs(), "cache/tokens.json")
	if err != nil {
		t.Fatalf("NewTokenStore: %v", err)
	}
	client, err := api.NewClient(srv.URL, api.WithTokenSource(tokens))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	store := cache.NewStore()
	svc, err := NewService(client, store, tokens, mutations.NewPipeline(client, store))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, tokens, store
}

func countingHandler(calls *int32) http.Handler {
	r := mux.NewRouter()
	r.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		atomic.AddInt32(calls, 1)
		json.NewEncoder(w).Encode(map[string]any{})
	})
	return r
}

func TestRegisterValidationNeverReachesTheServer(t *testing.T) {
	cases := []struct {
		name string
		cmd  models.RegisterUserCommand
		want string
	}{
		{"missing email", models.RegisterUserCommand{Password: "secret12"}, "email is required"},
		{"bad email", models.RegisterUserCommand{Email: "nope", Password: "secret12"}, "email address is not valid"},
		{"short password", models.RegisterUserCommand{Email: "a@b.com", Password: "ab1"}, "at least 8 characters"},
		{"no digit", models.RegisterUserCommand{Email: "a@b.com", Password: "password"}, "one letter and one number"},
		{"no letter", models.RegisterUserCommand{Email: "a@b.com", Password: "12345678"}, "one letter and one number"},
	}

	var calls int32
	svc, _, _ := newTestSession(t, countingHandler(&calls))

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tc.cmd)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected message containing %q, got %q", tc.want, err.Error())
			}
		})
	}

	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Fatalf("invalid commands must never reach the transport, got %d requests", n)
	}
}

func TestValidPasswordsPassTheLocalRules(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/register/", func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(models.RegisteredUser{Email: "a@b.com"})
	}).Methods(http.MethodPost)

	svc, _, _ := newTestSession(t, r)
	user, err := svc.Register(context.Background(), models.RegisterUserCommand{Email: "a@b.com", Password: "sunset99"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Email != "a@b.com" {
		t.Fatalf("unexpected user %+v", user)
	}
}

func TestLoginPersistsTheTokenPair(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/token/", func(w http.ResponseWriter, req *http.Request) {
		json.NewEncoder(w).Encode(models.AuthTokens{Access: "acc", Refresh: "ref"})
	}).Methods(http.MethodPost)

	svc, tokens, _ := newTestSession(t, r)
	if _, err := svc.Login(context.Background(), models.LoginUserCommand{Email: "a@b.com", Password: "sunset99"}); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !tokens.Authenticated() {
		t.Fatal("expected an authenticated store after login")
	}
	if tokens.AccessToken() != "acc" || tokens.RefreshToken() != "ref" {
		t.Fatal("expected the pair persisted")
	}
}

func TestLogoutClearsTokensAndCache(t *testing.T) {
	var calls int32
	svc, tokens, store := newTestSession(t, countingHandler(&calls))

	if err := tokens.SetTokens(models.AuthTokens{Access: "acc", Refresh: "ref"}); err != nil {
		t.Fatalf("SetTokens: %v", err)
	}
	store.Put(cache.UserProfileKey(), &models.UserProfile{}, time.Minute)

	if err := svc.Logout(); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if tokens.Authenticated() {
		t.Fatal("expected the tokens gone")
	}
	if store.Len() != 0 {
		t.Fatal("expected the cache wiped")
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Fatalf("logout is purely local, got %d requests", n)
	}
}

func TestDeleteAccountClearsLocalState(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/me/", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}).Methods(http.MethodDelete)

	svc, tokens, store := newTestSession(t, r)
	if err := tokens.SetTokens(models.AuthTokens{Access: "acc", Refresh: "ref"}); err != nil {
		t.Fatalf("SetTokens: %v", err)
	}
	store.Put(cache.UserProfileKey(), &models.UserProfile{}, time.Minute)

	if err := svc.DeleteAccount(context.Background()); err != nil {
		t.Fatalf("DeleteAccount: %v", err)
	}
	if tokens.Authenticated() {
		t.Fatal("expected the tokens gone")
	}
	if store.Len() != 0 {
		t.Fatal("expected the cache wiped")
	}
}

func TestTokenStoreRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()

	first, err := NewTokenStore(fs, "cache/tokens.json")
	if err != nil {
		t.Fatalf("NewTokenStore: %v", err)
	}
	if first.Authenticated() {
		t.Fatal("a fresh store must be logged out")
	}
	if err := first.SetTokens(models.AuthTokens{Access: "acc", Refresh: "ref"}); err != nil {
		t.Fatalf("SetTokens: %v", err)
	}

	second, err := NewTokenStore(fs, "cache/tokens.json")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if second.AccessToken() != "acc" || second.RefreshToken() != "ref" {
		t.Fatal("expected the persisted pair loaded")
	}

	if err := second.SetAccessToken("fresh"); err != nil {
		t.Fatalf("SetAccessToken: %v", err)
	}
	third, err := NewTokenStore(fs, "cache/tokens.json")
	if err != nil {
		t.Fatalf("reopen after refresh: %v", err)
	}
	if third.AccessToken() != "fresh" || third.RefreshToken() != "ref" {
		t.Fatal("expected the refreshed access token persisted")
	}

	if err := third.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	fourth, err := NewTokenStore(fs, "cache/tokens.json")
	if err != nil {
		t.Fatalf("reopen after clear: %v", err)
	}
	if fourth.Authenticated() {
		t.Fatal("expected a logged-out store after clear")
	}
}
