package httpapi

import (
	"net"
	"net/http"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const deviceHeader = "X-Device-Info"

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

// loginRequest accepts the identifier under any of its names.
type loginRequest struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	Username   string `json:"username"`
	Password   string `json:"password"`
}

func (l loginRequest) identifier() string {
	switch {
	case l.Identifier != "":
		return l.Identifier
	case l.Email != "":
		return l.Email
	default:
		return l.Username
	}
}

type otpRequest struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
}

type otpVerifyRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	Purpose     string `json:"purpose"`
	NewPassword string `json:"new_password"`
}

type faceVerifyRequest struct {
	Identifier string    `json:"identifier"`
	Email      string    `json:"email"`
	Username   string    `json:"username"`
	Embedding  []float32 `json:"embedding"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type faceEnrollRequest struct {
	Embedding []float32 `json:"embedding"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func clientInfo(r *http.Request) services.ClientInfo {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return services.ClientInfo{
		DeviceInfo: r.Header.Get(deviceHeader),
		IPAddress:  ip,
		UserAgent:  r.UserAgent(),
	}
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := s.auth.Register(r.Context(), services.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Role:     models.Role(req.Role),
		FullName: req.FullName,
		Phone:    req.Phone,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := s.auth.Login(r.Context(), services.LoginInput{
		Identifier: req.identifier(),
		Password:   req.Password,
		Client:     clientInfo(r),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRequestOTP(w http.ResponseWriter, r *http.Request) {
	var req otpRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	purpose := models.OtpPurpose(req.Purpose)
	if purpose == "" {
		purpose = models.PurposeEmailVerify
	}
	if err := s.auth.RequestOTP(r.Context(), req.Email, purpose); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, messageBody{Message: "If the account exists, a passcode has been sent"})
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req otpVerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := s.auth.VerifyOTP(r.Context(), services.VerifyOTPInput{
		Email:       req.Email,
		Code:        req.OTP,
		Purpose:     models.OtpPurpose(req.Purpose),
		NewPassword: req.NewPassword,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleFaceVerify(w http.ResponseWriter, r *http.Request) {
	var req faceVerifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	identifier := loginRequest{Identifier: req.Identifier, Email: req.Email, Username: req.Username}.identifier()
	res, err := s.auth.FaceVerify(r.Context(), services.FaceVerifyInput{
		Identifier: identifier,
		Embedding:  req.Embedding,
		Client:     clientInfo(r),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	res, err := s.auth.Refresh(r.Context(), req.RefreshToken, clientInfo(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	claims := mustClaims(r)
	if err := s.auth.Logout(r.Context(), claims.UserID, r.Header.Get(sessionHeader)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "Logged out"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := mustClaims(r)
	user, err := s.auth.Me(r.Context(), claims.UserID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleEnrollFace(w http.ResponseWriter, r *http.Request) {
	var req faceEnrollRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	claims := mustClaims(r)
	if err := s.auth.EnrollFace(r.Context(), claims.UserID, req.Embedding); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "Face enrolled"})
}

func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	claims := mustClaims(r)
	if err := s.auth.ChangePassword(r.Context(), claims.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "Password changed"})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		s.writeServiceError(w, r, common.ErrorNotFound)
		return
	}
	user, err := s.auth.Me(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
