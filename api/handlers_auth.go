package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/Adibmaros/tasks-management/domain"
)

const bcryptCost = 10

var errBadCredentials = &domain.AuthError{Msg: "Invalid email or password."}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type userResponse struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type loginResponse struct {
	userResponse
	Token   string `json:"token"`
	Message string `json:"message"`
}

func toUserResponse(u domain.User) userResponse {
	return userResponse{ID: u.ID, Name: u.Name, Email: u.Email}
}

func register(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req registerRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		req.Name = strings.TrimSpace(req.Name)
		req.Email = strings.ToLower(strings.TrimSpace(req.Email))
		if req.Name == "" || req.Email == "" || req.Password == "" {
			return domain.Validationf("Name, email, and password are required.")
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
		if err != nil {
			return err
		}
		user, err := timed(c, func(ctx context.Context) (domain.User, error) {
			return store.CreateUser(ctx, req.Name, req.Email, string(hash))
		})
		if err != nil {
			return err
		}
		return writeJSON(c, http.StatusCreated, toUserResponse(user))
	}
}

func login(store Store, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req loginRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		if strings.TrimSpace(req.Email) == "" || req.Password == "" {
			return domain.Validationf("Email and password are required.")
		}

		user, err := timed(c, func(ctx context.Context) (domain.User, error) {
			return store.GetUserByEmail(ctx, req.Email)
		})
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			return errBadCredentials
		}
		if err != nil {
			return err
		}
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
			metricsFrom(c).SetErrorStage("auth")
			return errBadCredentials
		}

		token, _, err := auth.Issue(user.ID)
		if err != nil {
			return err
		}
		if err := startSession(c, user.ID); err != nil {
			return err
		}
		return writeJSON(c, http.StatusOK, loginResponse{
			userResponse: toUserResponse(user),
			Token:        token,
			Message:      "Login successful",
		})
	}
}

func logout() echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := endSession(c); err != nil {
			return err
		}
		return writeJSON(c, http.StatusOK, messageResponse{Message: "Logged out successfully"})
	}
}

func me(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := timed(c, func(ctx context.Context) (domain.User, error) {
			return store.GetUser(ctx, currentUserID(c))
		})
		if err != nil {
			return err
		}
		return writeJSON(c, http.StatusOK, toUserResponse(user))
	}
}

func changePassword(store Store) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req changePasswordRequest
		if err := decodeBody(c, &req); err != nil {
			return err
		}
		if req.OldPassword == "" || req.NewPassword == "" {
			return domain.Validationf("Old password and new password are required.")
		}

		userID := currentUserID(c)
		user, err := timed(c, func(ctx context.Context) (domain.User, error) {
			return store.GetUser(ctx, userID)
		})
		if err != nil {
			return err
		}
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)) != nil {
			return &domain.AuthError{Msg: "Old password is incorrect."}
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcryptCost)
		if err != nil {
			return err
		}
		if err := timedErr(c, func(ctx context.Context) error {
			return store.UpdatePassword(ctx, userID, string(hash))
		}); err != nil {
			return err
		}
		return writeJSON(c, http.StatusOK, messageResponse{Message: "Password changed successfully."})
	}
}
