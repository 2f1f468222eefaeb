package handlers

import (
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/auth-core/internal/models"
)

const (
	msgRegistered     = "Account successfully created! Please check your email to verify your account."
	msgLoggedIn       = "User successfully logged in"
	msgRefreshed      = "User access token has been refreshed."
	msgLoggedOut      = "You have been successfully logged out."
	msgResetRequested = "An email has been sent to your address with a link to reset your password."
	tokenTypeBearer   = "bearer"
)

type registerRequest struct {
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	Role      *string `json:"role,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type passwordResetRequest struct {
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type updateUserRequest struct {
	FirstName *string      `json:"first_name,omitempty"`
	LastName  *string      `json:"last_name,omitempty"`
	Email     *string      `json:"email,omitempty"`
	Password  *string      `json:"password,omitempty"`
	Role      *models.Role `json:"role,omitempty"`
}

type userResponse struct {
	ID        uuid.UUID  `json:"id"`
	FirstName string     `json:"first_name"`
	LastName  string     `json:"last_name"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	Verified  *time.Time `json:"verified"`
}

func userFromModel(u *models.User) userResponse {
	return userResponse{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Role:      string(u.Role),
		Verified:  u.VerifiedAt,
	}
}

type registerResponse struct {
	Message string       `json:"message"`
	User    userResponse `json:"user"`
}

type accessTokenResponse struct {
	Token     string `json:"token"`
	TokenType string `json:"token_type"`
}

type sessionResponse struct {
	Message     string              `json:"message"`
	AccessToken accessTokenResponse `json:"access_token"`
	User        userResponse        `json:"user"`
}

func sessionFromModel(s *models.Session, message string) sessionResponse {
	return sessionResponse{
		Message:     message,
		AccessToken: accessTokenResponse{Token: s.Tokens.AccessToken, TokenType: tokenTypeBearer},
		User:        userFromModel(s.User),
	}
}

type deviceResponse struct {
	ID             uuid.UUID `json:"id"`
	Browser        string    `json:"browser"`
	BrowserVersion string    `json:"browser_version"`
	OS             string    `json:"os"`
	DeviceType     string    `json:"device_type"`
	IsMobile       bool      `json:"is_mobile"`
	IsTablet       bool      `json:"is_tablet"`
	IsDesktop      bool      `json:"is_desktop"`
	IPAddress      string    `json:"ip_address"`
	LastSeen       time.Time `json:"last_seen"`
}

type devicesResponse struct {
	Devices []deviceResponse `json:"devices"`
}

func devicesFromModel(ds []models.Device) devicesResponse {
	out := devicesResponse{Devices: make([]deviceResponse, 0, len(ds))}
	for _, d := range ds {
		out.Devices = append(out.Devices, deviceResponse{
			ID:             d.ID,
			Browser:        d.Browser,
			BrowserVersion: d.BrowserVersion,
			OS:             d.OS,
			DeviceType:     d.DeviceType,
			IsMobile:       d.IsMobile,
			IsTablet:       d.IsTablet,
			IsDesktop:      d.IsDesktop,
			IPAddress:      d.IPAddress,
			LastSeen:       d.LastSeen,
		})
	}

	return out
}

type systemResponse struct {
	CPUUsage    float64 `json:"cpu_usage"`
	MemoryUsage float64 `json:"memory_usage"`
}

type healthResponse struct {
	Name        string         `json:"name"`
	Version     string         `json:"version"`
	Environment string         `json:"environment"`
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	System      systemResponse `json:"system"`
	Database    string         `json:"database"`
	Cache       string         `json:"cache"`
}
