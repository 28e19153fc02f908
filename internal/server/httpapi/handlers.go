package httpapi

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/asavelyev/mediahub/internal/apperr"
	"github.com/asavelyev/mediahub/internal/filex"
	"github.com/asavelyev/mediahub/internal/server/models"
	"github.com/asavelyev/mediahub/internal/server/services"
)

const maxUploadBytes = 10 << 20

const (
	accessTokenCookie  = "accessToken"
	refreshTokenCookie = "refreshToken"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, r, apperr.InvalidInput("invalid multipart form"))
		return
	}

	avatarPath, err := s.stageUpload(r, "avatar")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	coverPath, err := s.stageUpload(r, "coverImage")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// The upload path removes staged files itself; this only collects
	// leftovers from requests that fail before the upload step.
	defer removeStaged(avatarPath, coverPath)

	user, err := s.sessions.Register(r.Context(), services.RegisterParams{
		Username:   r.FormValue("username"),
		Email:      r.FormValue("email"),
		FullName:   r.FormValue("fullName"),
		Password:   r.FormValue("password"),
		AvatarPath: avatarPath,
		CoverPath:  coverPath,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeData(w, http.StatusCreated, user, "user registered successfully")
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	user, pair, err := s.sessions.Login(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.setAuthCookies(w, pair)
	s.writeData(w, http.StatusOK, map[string]any{
		"user":         user,
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	}, "user logged in successfully")
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	presented := ""
	if c, err := r.Cookie(refreshTokenCookie); err == nil {
		presented = c.Value
	}
	if presented == "" {
		var req struct {
			RefreshToken string `json:"refreshToken"`
		}
		// Body is optional when the cookie is present, so decode errors
		// are ignored here.
		_ = readJSON(r, &req)
		presented = req.RefreshToken
	}

	pair, err := s.sessions.Refresh(r.Context(), presented)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.setAuthCookies(w, pair)
	s.writeData(w, http.StatusOK, pair, "access token refreshed")
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Logout(r.Context(), userIDFrom(r.Context())); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.clearAuthCookies(w)
	s.writeData(w, http.StatusOK, nil, "user logged out")
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OldPassword string `json:"oldPassword"`
		NewPassword string `json:"newPassword"`
	}
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.sessions.ChangePassword(r.Context(), userIDFrom(r.Context()),
		req.OldPassword, req.NewPassword); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeData(w, http.StatusOK, nil, "password changed successfully")
}

func (s *Server) handleCurrentUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.sessions.CurrentUser(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeData(w, http.StatusOK, user, "current user fetched successfully")
}

func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FullName string `json:"fullName"`
		Email    string `json:"email"`
	}
	if err := readJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	user, err := s.sessions.UpdateAccount(r.Context(), userIDFrom(r.Context()), req.FullName, req.Email)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeData(w, http.StatusOK, user, "account details updated successfully")
}

func (s *Server) handleUpdateAvatar(w http.ResponseWriter, r *http.Request) {
	s.handleAssetReplace(w, r, "avatar", s.assets.ReplaceAvatar, "avatar updated successfully")
}

func (s *Server) handleUpdateCover(w http.ResponseWriter, r *http.Request) {
	s.handleAssetReplace(w, r, "coverImage", s.assets.ReplaceCover, "cover image updated successfully")
}

func (s *Server) handleAssetReplace(w http.ResponseWriter, r *http.Request, field string,
	replace func(ctx context.Context, userID, localPath string) (*models.RedactedUser, error), message string) {

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, r, apperr.InvalidInput("invalid multipart form"))
		return
	}

	path, err := s.stageUpload(r, field)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer removeStaged(path)

	user, err := replace(r.Context(), userIDFrom(r.Context()), path)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.writeData(w, http.StatusOK, user, message)
}

func removeStaged(paths ...string) {
	for _, p := range paths {
		if p != "" {
			os.Remove(p)
		}
	}
}

// stageUpload copies the named multipart file into the staging directory
// and returns its path, or "" when the field is absent.
func (s *Server) stageUpload(r *http.Request, field string) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil
		}
		return "", apperr.InvalidInput("invalid multipart form")
	}
	defer file.Close()

	path, err := filex.StageFile(s.uploadDir, header.Filename, file)
	if err != nil {
		return "", apperr.Internal(err)
	}
	return path, nil
}

func (s *Server) setAuthCookies(w http.ResponseWriter, pair *services.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name: accessTokenCookie, Value: pair.AccessToken,
		Path: "/", HttpOnly: true, Secure: true, SameSite: http.SameSiteStrictMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name: refreshTokenCookie, Value: pair.RefreshToken,
		Path: "/", HttpOnly: true, Secure: true, SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{accessTokenCookie, refreshTokenCookie} {
		http.SetCookie(w, &http.Cookie{
			Name: name, Value: "", MaxAge: -1,
			Path: "/", HttpOnly: true, Secure: true, SameSite: http.SameSiteStrictMode,
		})
	}
}
