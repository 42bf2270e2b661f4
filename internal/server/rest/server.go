package rest

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/dmitrijs2005/permitauth/internal/logging"
	"github.com/dmitrijs2005/permitauth/internal/server/models"
	"github.com/dmitrijs2005/permitauth/internal/server/services"
)

const shutdownTimeout = 5 * time.Second

type authService interface {
	Register(ctx context.Context, req services.RegisterRequest) (*models.User, error)
	Login(ctx context.Context, req services.LoginRequest) (*services.LoginResult, error)
	Refresh(ctx context.Context, req services.RefreshRequest) (*services.TokenPair, error)
	Verify(ctx context.Context, accessToken string) (*services.Identity, error)
	Logout(ctx context.Context, accessToken string, scope services.LogoutScope) error
	ListSessions(ctx context.Context, userID string) ([]models.Session, error)
	GetSession(ctx context.Context, userID, familyID string) (*models.Session, error)
	RevokeSession(ctx context.Context, userID, familyID string) error
	RevokeAllSessions(ctx context.Context, userID string) (int64, error)
}

// HealthFunc reports whether the backing store is reachable.
type HealthFunc func(ctx context.Context) error

type HTTPServer struct {
	address        string
	auth           authService
	health         HealthFunc
	allowedOrigins []string
	validate       *validator.Validate
	logger         logging.Logger
}

func NewHTTPServer(a string, l logging.Logger, auth authService, health HealthFunc, allowedOrigins []string) *HTTPServer {
	return &HTTPServer{
		address:        a,
		auth:           auth,
		health:         health,
		allowedOrigins: allowedOrigins,
		validate:       validator.New(),
		logger:         l.With("module", "http_server"),
	}
}

// Handler builds the router with CORS applied.
func (s *HTTPServer) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(s.logRequests)

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	v1 := router.PathPrefix("/auth/v1").Subrouter()
	v1.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	v1.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	v1.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)

	// Logout accepts expired tokens, so it only requires presence.
	v1.Handle("/logout", s.requireToken(false)(http.HandlerFunc(s.handleLogout))).Methods(http.MethodPost)

	protected := v1.NewRoute().Subrouter()
	protected.Use(s.requireToken(true))
	protected.HandleFunc("/verify", s.handleVerify).Methods(http.MethodGet)
	protected.HandleFunc("/sessions", s.handleListSessions).Methods(http.MethodGet)
	protected.HandleFunc("/sessions", s.handleRevokeAllSessions).Methods(http.MethodDelete)
	protected.HandleFunc("/sessions/{family_id}", s.handleGetSession).Methods(http.MethodGet)
	protected.HandleFunc("/sessions/{family_id}", s.handleRevokeSession).Methods(http.MethodDelete)

	co := cors.New(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
	})
	return co.Handler(router)
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "HTTP shutdown failed", "err", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
