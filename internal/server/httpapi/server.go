// Package httpapi exposes the session and asset services over HTTP. It
// owns request decoding, multipart staging, auth cookies and the response
// envelope; all business rules live in the services package.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/asavelyev/mediahub/internal/logging"
	"github.com/asavelyev/mediahub/internal/server/auth"
	"github.com/asavelyev/mediahub/internal/server/models"
	"github.com/asavelyev/mediahub/internal/server/services"
)

// SessionAPI is the slice of the session service the handlers need.
type SessionAPI interface {
	Register(ctx context.Context, p services.RegisterParams) (*models.RedactedUser, error)
	Login(ctx context.Context, username, email, password string) (*models.RedactedUser, *services.TokenPair, error)
	Refresh(ctx context.Context, presented string) (*services.TokenPair, error)
	Logout(ctx context.Context, userID string) error
	ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error
	UpdateAccount(ctx context.Context, userID, fullName, email string) (*models.RedactedUser, error)
	CurrentUser(ctx context.Context, userID string) (*models.RedactedUser, error)
}

// AssetAPI is the slice of the asset service the handlers need.
type AssetAPI interface {
	ReplaceAvatar(ctx context.Context, userID, localPath string) (*models.RedactedUser, error)
	ReplaceCover(ctx context.Context, userID, localPath string) (*models.RedactedUser, error)
}

type Server struct {
	address   string
	sessions  SessionAPI
	assets    AssetAPI
	issuer    *auth.Issuer
	uploadDir string
	logger    logging.Logger
}

func NewServer(address string, sessions SessionAPI, assets AssetAPI, issuer *auth.Issuer,
	uploadDir string, logger logging.Logger) *Server {
	return &Server{
		address:   address,
		sessions:  sessions,
		assets:    assets,
		issuer:    issuer,
		uploadDir: uploadDir,
		logger:    logger.With("module", "http_server"),
	}
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/users/register", s.handleRegister)
	mux.HandleFunc("POST /api/v1/users/login", s.handleLogin)
	mux.HandleFunc("POST /api/v1/users/refresh-token", s.handleRefresh)

	mux.HandleFunc("POST /api/v1/users/logout", s.requireAuth(s.handleLogout))
	mux.HandleFunc("POST /api/v1/users/change-password", s.requireAuth(s.handleChangePassword))
	mux.HandleFunc("GET /api/v1/users/current-user", s.requireAuth(s.handleCurrentUser))
	mux.HandleFunc("PATCH /api/v1/users/update-account", s.requireAuth(s.handleUpdateAccount))
	mux.HandleFunc("PATCH /api/v1/users/avatar", s.requireAuth(s.handleUpdateAvatar))
	mux.HandleFunc("PATCH /api/v1/users/cover-image", s.requireAuth(s.handleUpdateCover))

	return mux
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {

	srv := &http.Server{
		Addr:    s.address,
		Handler: s.routes(),
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, err.Error())
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}
