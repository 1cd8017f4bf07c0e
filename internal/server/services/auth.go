package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/authcore/internal/common"
	"github.com/dmitrijs2005/authcore/internal/cryptox"
	"github.com/dmitrijs2005/authcore/internal/dbx"
	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/auth"
	"github.com/dmitrijs2005/authcore/internal/server/config"
	"github.com/dmitrijs2005/authcore/internal/server/face"
	"github.com/dmitrijs2005/authcore/internal/server/metrics"
	"github.com/dmitrijs2005/authcore/internal/server/models"
	"github.com/dmitrijs2005/authcore/internal/server/notify"
	"github.com/dmitrijs2005/authcore/internal/server/ratelimit"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/repomanager"
)

// Flow labels used for rate limiting and metrics.
const (
	flowLogin    = "login"
	flowOTP      = "otp_verify"
	flowFace     = "face"
	flowRegister = "register"
	flowRefresh  = "refresh"
)

// ClientInfo is the optional request metadata stored with a session.
type ClientInfo struct {
	DeviceInfo string
	IPAddress  string
	UserAgent  string
}

func (c ClientInfo) options() models.SessionOptions {
	return models.SessionOptions{
		DeviceInfo: optional(c.DeviceInfo),
		IPAddress:  optional(c.IPAddress),
		UserAgent:  optional(c.UserAgent),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// LoginInput is a password login by email or username.
type LoginInput struct {
	Identifier string
	Password   string
	Client     ClientInfo
}

// VerifyOTPInput confirms an email or resets a password. NewPassword is
// required for models.PurposePasswordReset only.
type VerifyOTPInput struct {
	Email       string
	Code        string
	Purpose     models.OtpPurpose
	NewPassword string
}

// FaceVerifyInput is a face login with a probe embedding.
type FaceVerifyInput struct {
	Identifier string
	Embedding  []float32
	Client     ClientInfo
}

// RegisterInput creates an account. Role defaults to models.DefaultRole;
// admin cannot be self-assigned.
type RegisterInput struct {
	Username string
	Email    string
	Password string
	Role     models.Role
	FullName string
	Phone    string
}

// AuthDeps are the collaborators of AuthService. Nil Notifier, Limiter and
// Logger get development defaults; a nil Metrics records nothing.
type AuthDeps struct {
	Codec    *auth.Codec
	OTPs     *OTPService
	Sessions *SessionService
	Hasher   *cryptox.Hasher
	Matcher  face.Matcher
	Notifier notify.Notifier
	Limiter  ratelimit.Limiter
	Metrics  *metrics.Metrics
	Logger   logging.Logger
}

// AuthService composes the token codec, passcodes and sessions into the
// authentication flows.
type AuthService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	codec         *auth.Codec
	otps          *OTPService
	sessions      *SessionService
	hasher        *cryptox.Hasher
	matcher       face.Matcher
	notifier      notify.Notifier
	limiter       ratelimit.Limiter
	metrics       *metrics.Metrics
	logger        logging.Logger
	refreshTokens bool
	storeTimeout  time.Duration
	now           func() time.Time
}

// NewAuthService constructs an AuthService using repositories, server config
// and its collaborators.
func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, d AuthDeps) *AuthService {
	logger := d.Logger
	if logger == nil {
		logger = logging.Nop{}
	}
	s := &AuthService{
		db:            db,
		repomanager:   m,
		codec:         d.Codec,
		otps:          d.OTPs,
		sessions:      d.Sessions,
		hasher:        d.Hasher,
		matcher:       d.Matcher,
		notifier:      d.Notifier,
		limiter:       d.Limiter,
		metrics:       d.Metrics,
		logger:        logger.With("module", "auth_service"),
		refreshTokens: cfg.RefreshTokens,
		storeTimeout:  cfg.StoreTimeout,
		now:           time.Now,
	}
	if s.notifier == nil {
		s.notifier = notify.NewLogNotifier(logger)
	}
	if s.limiter == nil {
		s.limiter = ratelimit.Nop{}
	}
	if s.matcher == nil {
		s.matcher = face.NewCosineMatcher(cfg.FaceMinScore)
	}
	return s
}

// Login authenticates by email (when the identifier contains '@') or
// username. A missing account and a wrong password both return
// common.ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (res *AuthResult, err error) {
	defer func() { s.metrics.Attempt(flowLogin, outcome(err)) }()

	identifier := strings.TrimSpace(in.Identifier)
	if identifier == "" || in.Password == "" {
		return nil, common.ErrInvalidCredentials
	}
	if err := s.allow(ctx, flowLogin+":"+strings.ToLower(identifier)); err != nil {
		return nil, err
	}

	user, err := s.findUser(ctx, identifier)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.hasher.Burn(in.Password)
			return nil, common.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("login: %w", err)
	}

	ok, err := s.hasher.Check(user.PasswordHash, in.Password)
	if err != nil {
		s.logger.Error(ctx, "stored password hash is unreadable", "user_id", user.ID, "error", err)
		return nil, fmt.Errorf("login: %w", common.ErrorInternal)
	}
	if !ok {
		return nil, common.ErrInvalidCredentials
	}

	return s.complete(ctx, user, in.Client)
}

// VerifyOTP checks a passcode, consumes it and applies its purpose. Both
// mutations are idempotent, so a duplicate verify racing this one is
// harmless.
func (s *AuthService) VerifyOTP(ctx context.Context, in VerifyOTPInput) (res *AuthResult, err error) {
	defer func() { s.metrics.Attempt(flowOTP, outcome(err)) }()

	email := normalizeEmail(in.Email)
	code := strings.TrimSpace(in.Code)
	if !in.Purpose.Valid() {
		return nil, validationError("unknown otp purpose %q", in.Purpose)
	}
	if email == "" || code == "" {
		return nil, validationError("email and otp are required")
	}

	var newHash string
	if in.Purpose == models.PurposePasswordReset {
		if err := validatePassword(in.NewPassword); err != nil {
			return nil, err
		}
		if newHash, err = s.hasher.Hash(in.NewPassword); err != nil {
			return nil, fmt.Errorf("verify otp: %w", err)
		}
	}

	if err := s.allow(ctx, flowOTP+":"+string(in.Purpose)+":"+email); err != nil {
		return nil, err
	}

	otpID, err := s.otps.Verify(ctx, email, code, in.Purpose)
	if err != nil {
		return nil, err
	}
	consumed, err := s.otps.Consume(ctx, otpID)
	if err != nil {
		return nil, err
	}
	if !consumed {
		return nil, common.ErrOtpNotFound
	}

	users := s.repomanager.Users(s.db)
	user, err := users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrOtpNotFound
		}
		return nil, fmt.Errorf("verify otp: %w", err)
	}

	switch in.Purpose {
	case models.PurposeEmailVerify:
		if _, err := users.VerifyEmail(ctx, email); err != nil {
			return nil, fmt.Errorf("verify email: %w", err)
		}
		user.EmailVerified = true
		user.IsVerified = true
	case models.PurposePasswordReset:
		err := s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
			if _, err := s.repomanager.Users(tx).UpdatePasswordByEmail(ctx, email, newHash); err != nil {
				return err
			}
			_, err := s.sessions.deactivateAllForUser(ctx, tx, user.ID)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("reset password: %w", err)
		}
		user.PasswordHash = newHash
	}

	pub, err := s.toPublicUser(user, true)
	if err != nil {
		return nil, fmt.Errorf("verify otp: %w", err)
	}
	return &AuthResult{User: pub, Token: pub.Token}, nil
}

// FaceVerify authenticates with a face embedding. An unknown account, a
// missing enrollment and a failed match all return common.ErrFaceMismatch;
// the score never leaves this method.
func (s *AuthService) FaceVerify(ctx context.Context, in FaceVerifyInput) (res *AuthResult, err error) {
	defer func() { s.metrics.Attempt(flowFace, outcome(err)) }()

	identifier := strings.TrimSpace(in.Identifier)
	if identifier == "" {
		return nil, common.ErrFaceMismatch
	}
	if err := face.Validate(in.Embedding); err != nil {
		return nil, validationError("%v", err)
	}
	if err := s.allow(ctx, flowFace+":"+strings.ToLower(identifier)); err != nil {
		return nil, err
	}

	user, err := s.findUser(ctx, identifier)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrFaceMismatch
		}
		return nil, fmt.Errorf("face verify: %w", err)
	}
	if !user.HasFace() {
		return nil, common.ErrFaceMismatch
	}

	match, err := s.matcher.Match(ctx, user.FaceEmbedding, in.Embedding)
	if err != nil {
		if errors.Is(err, face.ErrDimensionMismatch) {
			return nil, common.ErrFaceMismatch
		}
		return nil, fmt.Errorf("face verify: %w", err)
	}
	if !match.Passed {
		s.logger.Debug(ctx, "face mismatch", "user_id", user.ID, "score", match.Score)
		return nil, common.ErrFaceMismatch
	}

	return s.complete(ctx, user, in.Client)
}

// Register creates an account, sends an email verification passcode and
// returns the new user with a token. A taken username or email returns
// common.ErrDuplicateUser.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (res *AuthResult, err error) {
	defer func() { s.metrics.Attempt(flowRegister, outcome(err)) }()

	user, err := s.createUser(ctx, in, false)
	if err != nil {
		return nil, err
	}

	if err := s.sendOTP(ctx, user.Email, models.PurposeEmailVerify); err != nil {
		s.logger.Warn(ctx, "verification passcode not delivered", "user_id", user.ID, "error", err)
	}

	pub, err := s.toPublicUser(user, true)
	if err != nil {
		return nil, fmt.Errorf("register: %w", err)
	}
	return &AuthResult{User: pub, Token: pub.Token}, nil
}

// CreateUser provisions an account for an operator: any role may be
// assigned, the email is marked verified and no passcode is sent.
func (s *AuthService) CreateUser(ctx context.Context, in RegisterInput) (*PublicUser, error) {
	user, err := s.createUser(ctx, in, true)
	if err != nil {
		return nil, err
	}
	if _, err := s.repomanager.Users(s.db).VerifyEmail(ctx, user.Email); err != nil {
		return nil, fmt.Errorf("verify email: %w", err)
	}
	user.EmailVerified = true
	user.IsVerified = true
	return s.toPublicUser(user, false)
}

func (s *AuthService) createUser(ctx context.Context, in RegisterInput, allowAdmin bool) (*models.User, error) {
	username := strings.TrimSpace(in.Username)
	email := normalizeEmail(in.Email)
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	role := in.Role
	if role == "" {
		role = models.DefaultRole
	}
	if !role.Valid() || (role == models.RoleAdmin && !allowAdmin) {
		return nil, validationError("role %q cannot be requested", role)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user, err := s.repomanager.Users(s.db).Create(ctx, &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		FullName:     optional(strings.TrimSpace(in.FullName)),
		Phone:        optional(strings.TrimSpace(in.Phone)),
	})
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return nil, common.ErrDuplicateUser
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return user, nil
}

// RequestOTP issues and delivers a passcode. Unknown emails and already
// verified addresses succeed without issuing, so the result reveals nothing
// about the account.
func (s *AuthService) RequestOTP(ctx context.Context, email string, purpose models.OtpPurpose) error {
	email = normalizeEmail(email)
	if !purpose.Valid() {
		return validationError("unknown otp purpose %q", purpose)
	}
	if err := validateEmail(email); err != nil {
		return err
	}
	if err := s.allow(ctx, "otp:"+string(purpose)+":"+email); err != nil {
		return err
	}

	user, err := s.repomanager.Users(s.db).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return fmt.Errorf("request otp: %w", err)
	}
	if purpose == models.PurposeEmailVerify && user.EmailVerified {
		return nil
	}

	return s.sendOTP(ctx, email, purpose)
}

// Refresh rotates a refresh token: its session is deactivated and a new
// session and token are issued in one transaction. Unknown, expired and
// already rotated tokens return common.ErrInvalidToken.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string, client ClientInfo) (res *AuthResult, err error) {
	defer func() { s.metrics.Attempt(flowRefresh, outcome(err)) }()

	if refreshToken == "" || s.sessions.TTL() <= 0 {
		return nil, common.ErrInvalidToken
	}

	sess, err := s.repomanager.Sessions(s.db).FindByRefreshToken(ctx, refreshToken, s.now())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, fmt.Errorf("error searching refresh token: %w", err)
	}

	user, err := s.repomanager.Users(s.db).FindByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrInvalidToken
		}
		return nil, fmt.Errorf("refresh: %w", err)
	}

	var grant *SessionGrant
	err = s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		changed, err := s.repomanager.Sessions(tx).Deactivate(ctx, sess.SessionToken)
		if err != nil {
			return err
		}
		if !changed {
			return common.ErrInvalidToken
		}
		grant, err = s.openSession(ctx, tx, user.ID, client)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrInvalidToken) {
			return nil, err
		}
		return nil, fmt.Errorf("refresh: %w", err)
	}

	pub, err := s.toPublicUser(user, true)
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	return &AuthResult{User: pub, Token: pub.Token, Session: grant}, nil
}

// Logout ends the session identified by sessionToken if it belongs to
// userID. Unknown or foreign sessions are ignored.
func (s *AuthService) Logout(ctx context.Context, userID, sessionToken string) error {
	if sessionToken == "" {
		return nil
	}
	sess, err := s.sessions.FindActive(ctx, sessionToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return err
	}
	if sess.UserID != userID {
		return nil
	}
	return s.sessions.Deactivate(ctx, sessionToken)
}

// ChangePassword replaces the password after checking the current one and
// ends every session of the user.
func (s *AuthService) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.repomanager.Users(s.db).FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}
	ok, err := s.hasher.Check(user.PasswordHash, current)
	if err != nil {
		return fmt.Errorf("change password: %w", common.ErrorInternal)
	}
	if !ok {
		return common.ErrInvalidCredentials
	}
	if err := validatePassword(next); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("change password: %w", err)
	}

	return s.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Users(tx).UpdatePassword(ctx, userID, hash); err != nil {
			return fmt.Errorf("change password: %w", err)
		}
		_, err := s.sessions.deactivateAllForUser(ctx, tx, userID)
		return err
	})
}

// EnrollFace stores the embedding later compared by FaceVerify.
func (s *AuthService) EnrollFace(ctx context.Context, userID string, embedding []float32) error {
	if err := face.Validate(embedding); err != nil {
		return validationError("%v", err)
	}
	ok, err := s.repomanager.Users(s.db).UpdateFaceEmbedding(ctx, userID, embedding)
	if err != nil {
		return fmt.Errorf("enroll face: %w", err)
	}
	if !ok {
		return common.ErrorNotFound
	}
	return nil
}

// Me returns the public view of userID without a token.
func (s *AuthService) Me(ctx context.Context, userID string) (*PublicUser, error) {
	user, err := s.repomanager.Users(s.db).FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return s.toPublicUser(user, false)
}

// CheckSession returns common.ErrInvalidToken unless sessionToken names a
// live session of userID.
func (s *AuthService) CheckSession(ctx context.Context, userID, sessionToken string) error {
	if sessionToken == "" {
		return common.ErrInvalidToken
	}
	sess, err := s.sessions.FindActive(ctx, sessionToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrInvalidToken
		}
		return err
	}
	if sess.UserID != userID {
		return common.ErrInvalidToken
	}
	return nil
}

// VerifyToken exposes the codec to the transport guards.
func (s *AuthService) VerifyToken(token string) (*auth.Claims, error) {
	return s.codec.Verify(token)
}

// --- helpers below ---

func (s *AuthService) findUser(ctx context.Context, identifier string) (*models.User, error) {
	users := s.repomanager.Users(s.db)
	if strings.Contains(identifier, "@") {
		return users.FindByEmail(ctx, normalizeEmail(identifier))
	}
	return users.FindByUsername(ctx, identifier)
}

// complete finishes a successful login or face match.
func (s *AuthService) complete(ctx context.Context, user *models.User, client ClientInfo) (*AuthResult, error) {
	now := s.now()
	if err := s.repomanager.Users(s.db).UpdateLastLogin(ctx, user.ID, now); err != nil {
		return nil, fmt.Errorf("update last login: %w", err)
	}
	user.LastLogin = &now

	pub, err := s.toPublicUser(user, true)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	res := &AuthResult{User: pub, Token: pub.Token}

	if s.sessions.TTL() > 0 {
		if res.Session, err = s.openSession(ctx, s.db, user.ID, client); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (s *AuthService) openSession(ctx context.Context, db dbx.DBTX, userID string, client ClientInfo) (*SessionGrant, error) {
	token, err := s.sessions.NewSessionToken()
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}
	opts := client.options()
	grant := &SessionGrant{SessionToken: token}
	if s.refreshTokens {
		refresh, err := s.sessions.NewSessionToken()
		if err != nil {
			return nil, fmt.Errorf("generate refresh token: %w", err)
		}
		opts.RefreshToken = &refresh
		grant.RefreshToken = refresh
	}

	expiresAt := s.now().Add(s.sessions.TTL())
	if _, err := s.sessions.create(ctx, db, userID, token, expiresAt, opts); err != nil {
		return nil, err
	}
	grant.ExpiresAt = expiresAt.UTC().Format(time.RFC3339)
	return grant, nil
}

func (s *AuthService) sendOTP(ctx context.Context, email string, purpose models.OtpPurpose) error {
	otp, err := s.otps.Issue(ctx, email, purpose, s.otps.TTL())
	if err != nil {
		return err
	}
	s.metrics.Issued(string(purpose))

	err = s.notifier.SendOTP(ctx, notify.OTPMessage{
		Email:     email,
		Code:      otp.Code,
		Purpose:   purpose,
		ExpiresAt: otp.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("deliver otp: %w", err)
	}
	return nil
}

// allow consults the limiter. A limiter failure lets the attempt through.
func (s *AuthService) allow(ctx context.Context, key string) error {
	ok, err := s.limiter.Allow(ctx, key)
	if err != nil {
		s.logger.Warn(ctx, "rate limiter unavailable, allowing attempt", "key", key, "error", err)
		return nil
	}
	if !ok {
		return common.ErrRateLimited
	}
	return nil
}

// withTx runs fn in a transaction, or directly when there is no database
// handle (memory store). The whole transaction, the wait for a pooled
// connection included, is bounded by the store timeout.
func (s *AuthService) withTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	if s.db == nil {
		return fn(ctx, nil)
	}
	ctx, cancel := dbx.Bound(ctx, s.storeTimeout)
	defer cancel()
	return dbx.WithTx(ctx, s.db, nil, fn)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, common.ErrInvalidCredentials):
		return metrics.OutcomeInvalidCredentials
	case errors.Is(err, common.ErrOtpNotFound):
		return metrics.OutcomeOtpNotFound
	case errors.Is(err, common.ErrOtpExpired):
		return metrics.OutcomeOtpExpired
	case errors.Is(err, common.ErrFaceMismatch):
		return metrics.OutcomeFaceMismatch
	case errors.Is(err, common.ErrRateLimited):
		return metrics.OutcomeRateLimited
	default:
		return metrics.OutcomeError
	}
}
