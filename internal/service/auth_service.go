package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/blogger-platform/internal/logger"
	"github.com/iliyamo/blogger-platform/internal/model"
	"github.com/iliyamo/blogger-platform/internal/queue"
	"github.com/iliyamo/blogger-platform/internal/repository"
	"github.com/iliyamo/blogger-platform/internal/utils"
)

// UserStore is the account lookup used by the auth flows.
type UserStore interface {
	GetByLoginOrEmail(ctx context.Context, loginOrEmail string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id uint64) (*model.User, error)
}

// SessionStore persists one row per logged-in device.
type SessionStore interface {
	Create(ctx context.Context, s *model.Session) error
	GetByDeviceID(ctx context.Context, deviceID string) (*model.Session, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.Session, error)
	Delete(ctx context.Context, deviceID string, userID uint64) (bool, error)
	DeleteAllExcept(ctx context.Context, deviceID string, userID uint64) error
}

// RevocationLedger answers whether a refresh token was already exchanged.
type RevocationLedger interface {
	IsRevoked(ctx context.Context, userID uint64, raw string) (bool, error)
}

// SessionWriter performs the multi-row writes that must be atomic.
type SessionWriter interface {
	Rotate(ctx context.Context, r repository.Rotation) error
	SetBan(ctx context.Context, b repository.BanChange) error
	ResetPassword(ctx context.Context, p repository.PasswordReset) error
}

// EventPublisher delivers audit events and mail jobs to the broker.
type EventPublisher interface {
	PublishAuthEvent(ctx context.Context, ev queue.AuthEvent) error
	PublishMail(ctx context.Context, job queue.MailJob) error
}

// AuthDeps bundles the collaborators of AuthService.
type AuthDeps struct {
	Users      UserStore
	Sessions   SessionStore
	Ledger     RevocationLedger
	Writer     SessionWriter
	Tokens     *utils.TokenIssuer
	Events     EventPublisher
	BcryptCost int
}

// AuthService drives the session lifecycle: login, refresh rotation,
// logout, device management, bans and password recovery.
type AuthService struct {
	users      UserStore
	sessions   SessionStore
	ledger     RevocationLedger
	writer     SessionWriter
	tokens     *utils.TokenIssuer
	events     EventPublisher
	bcryptCost int
	now        func() time.Time
}

func NewAuthService(d AuthDeps) *AuthService {
	return &AuthService{
		users:      d.Users,
		sessions:   d.Sessions,
		ledger:     d.Ledger,
		writer:     d.Writer,
		tokens:     d.Tokens,
		events:     d.Events,
		bcryptCost: d.BcryptCost,
		now:        time.Now,
	}
}

// LoginInput carries the credentials and the client description.
type LoginInput struct {
	LoginOrEmail string
	Password     string
	IP           string
	UserAgent    string
}

// TokenPair is the result of a login or refresh. The access token goes
// into the response body, the refresh token into the cookie.
type TokenPair struct {
	AccessToken  string
	RefreshToken utils.Token
}

// SessionContext is a refresh token that has passed ResolveSession.
type SessionContext struct {
	UserID       uint64
	DeviceID     string
	RefreshToken string
}

// Login checks the credentials, opens a session for a new device and
// returns its token pair.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (TokenPair, error) {
	u, err := s.users.GetByLoginOrEmail(ctx, strings.TrimSpace(in.LoginOrEmail))
	if errors.Is(err, repository.ErrNotFound) {
		return TokenPair{}, ErrUnauthorized
	}
	if err != nil {
		return TokenPair{}, fmt.Errorf("load user: %w", err)
	}
	if !utils.VerifyPassword(u.PasswordHash, in.Password) || u.IsBanned {
		return TokenPair{}, ErrUnauthorized
	}
	if !u.IsConfirmed {
		return TokenPair{}, ErrEmailNotConfirmed
	}

	deviceID := uuid.NewString()
	pair, claims, err := s.issuePair(u.ID, deviceID)
	if err != nil {
		return TokenPair{}, err
	}
	sess := &model.Session{
		DeviceID:     deviceID,
		UserID:       u.ID,
		IP:           in.IP,
		Title:        deviceTitle(in.UserAgent),
		LastActiveAt: claims.IssuedAt,
		ExpiresAt:    claims.Exp,
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return TokenPair{}, fmt.Errorf("create session: %w", err)
	}

	logger.Info().Uint64("user_id", u.ID).Str("device_id", deviceID).Str("ip", in.IP).Msg("login")
	s.emit(ctx, queue.AuthEvent{Type: queue.EventLogin, UserID: u.ID, DeviceID: deviceID, IP: in.IP, UserAgent: in.UserAgent})
	return pair, nil
}

// ResolveSession accepts a refresh token only if it verifies with the
// refresh key, has not been exchanged before, and still names a device row
// of the same user. Infrastructure failures are returned as-is.
func (s *AuthService) ResolveSession(ctx context.Context, raw string) (SessionContext, error) {
	if raw == "" {
		return SessionContext{}, ErrUnauthorized
	}
	claims, ok := s.tokens.Verify(raw, utils.KindRefresh)
	if !ok {
		return SessionContext{}, ErrUnauthorized
	}
	used, err := s.ledger.IsRevoked(ctx, claims.UserID, raw)
	if err != nil {
		return SessionContext{}, fmt.Errorf("check ledger: %w", err)
	}
	if used {
		s.replayed(ctx, claims.UserID, claims.DeviceID)
		return SessionContext{}, ErrUnauthorized
	}
	sess, err := s.sessions.GetByDeviceID(ctx, claims.DeviceID)
	if errors.Is(err, repository.ErrNotFound) {
		return SessionContext{}, ErrUnauthorized
	}
	if err != nil {
		return SessionContext{}, fmt.Errorf("load session: %w", err)
	}
	if sess.UserID != claims.UserID {
		return SessionContext{}, ErrUnauthorized
	}
	return SessionContext{UserID: claims.UserID, DeviceID: claims.DeviceID, RefreshToken: raw}, nil
}

// Refresh exchanges the presented refresh token for a new pair on the same
// device. The ledger check, the ledger append and the session update
// commit together; any failure leaves the old state intact and is reported
// as ErrUnauthorized.
func (s *AuthService) Refresh(ctx context.Context, sc SessionContext, ip, userAgent string) (TokenPair, error) {
	pair, claims, err := s.issuePair(sc.UserID, sc.DeviceID)
	if err != nil {
		logger.Error().Err(err).Uint64("user_id", sc.UserID).Msg("refresh: issue tokens")
		return TokenPair{}, ErrUnauthorized
	}
	err = s.writer.Rotate(ctx, repository.Rotation{
		UserID:         sc.UserID,
		DeviceID:       sc.DeviceID,
		PresentedToken: sc.RefreshToken,
		IP:             ip,
		Title:          clip(strings.TrimSpace(userAgent), maxTitleLen),
		LastActiveAt:   claims.IssuedAt,
		ExpiresAt:      claims.Exp,
	})
	switch {
	case errors.Is(err, repository.ErrTokenReused):
		s.replayed(ctx, sc.UserID, sc.DeviceID)
		return TokenPair{}, ErrUnauthorized
	case errors.Is(err, repository.ErrNotFound):
		return TokenPair{}, ErrUnauthorized
	case err != nil:
		logger.Error().Err(err).Uint64("user_id", sc.UserID).Str("device_id", sc.DeviceID).Msg("refresh: rotate")
		return TokenPair{}, ErrUnauthorized
	}

	s.emit(ctx, queue.AuthEvent{Type: queue.EventRefresh, UserID: sc.UserID, DeviceID: sc.DeviceID, IP: ip, UserAgent: userAgent})
	return pair, nil
}

// Logout ends the device session the refresh token belongs to. The token
// is not added to the ledger: once the device row is gone the token no
// longer resolves to a session.
func (s *AuthService) Logout(ctx context.Context, raw string) error {
	sc, err := s.ResolveSession(ctx, raw)
	if err != nil {
		return err
	}
	ok, err := s.sessions.Delete(ctx, sc.DeviceID, sc.UserID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if !ok {
		return ErrUnauthorized
	}
	logger.Info().Uint64("user_id", sc.UserID).Str("device_id", sc.DeviceID).Msg("logout")
	s.emit(ctx, queue.AuthEvent{Type: queue.EventLogout, UserID: sc.UserID, DeviceID: sc.DeviceID})
	return nil
}

// ListDevices returns the sessions of userID, most recently active first.
func (s *AuthService) ListDevices(ctx context.Context, userID uint64) ([]model.Session, error) {
	return s.sessions.ListByUser(ctx, userID)
}

// DeleteDevice terminates one of the requester's other devices. The
// requester's own device must be closed through Logout.
func (s *AuthService) DeleteDevice(ctx context.Context, sc SessionContext, targetDeviceID string) error {
	if targetDeviceID == sc.DeviceID {
		return ErrForbidden
	}
	target, err := s.sessions.GetByDeviceID(ctx, targetDeviceID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load device: %w", err)
	}
	if target.UserID != sc.UserID {
		return ErrForbidden
	}
	ok, err := s.sessions.Delete(ctx, targetDeviceID, sc.UserID)
	if err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	if !ok {
		// Deleted concurrently between the lookup and the delete.
		return ErrNotFound
	}
	s.emit(ctx, queue.AuthEvent{Type: queue.EventDeviceTerminated, UserID: sc.UserID, DeviceID: targetDeviceID, Detail: "by " + sc.DeviceID})
	return nil
}

// DeleteOtherDevices terminates every session of the user except the
// requester's own.
func (s *AuthService) DeleteOtherDevices(ctx context.Context, sc SessionContext) error {
	if err := s.sessions.DeleteAllExcept(ctx, sc.DeviceID, sc.UserID); err != nil {
		return fmt.Errorf("delete other devices: %w", err)
	}
	s.emit(ctx, queue.AuthEvent{Type: queue.EventOtherDevicesTerminated, UserID: sc.UserID, DeviceID: sc.DeviceID})
	return nil
}

// SetBan bans or unbans an account. Banning deletes every session of the
// account in the same transaction, so none of its refresh tokens resolves
// afterwards.
func (s *AuthService) SetBan(ctx context.Context, userID uint64, isBanned bool, reason string) error {
	change := repository.BanChange{UserID: userID, IsBanned: isBanned, Reason: reason, At: s.now().UTC()}
	if err := s.writer.SetBan(ctx, change); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("set ban: %w", err)
	}
	ev := queue.AuthEvent{Type: queue.EventUnban, UserID: userID}
	if isBanned {
		ev = queue.AuthEvent{Type: queue.EventBan, UserID: userID, Detail: reason}
		logger.Warn().Uint64("user_id", userID).Msg("user banned; all sessions revoked")
	}
	s.emit(ctx, ev)
	return nil
}

// RequestPasswordRecovery queues a recovery mail when email belongs to an
// account. Unknown addresses succeed silently so the endpoint cannot be
// used to discover accounts.
func (s *AuthService) RequestPasswordRecovery(ctx context.Context, email string) error {
	u, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	code, err := s.tokens.IssuePasswordRecoveryToken(u.ID)
	if err != nil {
		return fmt.Errorf("issue recovery code: %w", err)
	}
	job := queue.MailJob{
		Kind:         queue.MailKindPasswordRecovery,
		To:           u.Email,
		RecoveryCode: code.Raw,
		CreatedAt:    s.now().UTC().Format(time.RFC3339),
	}
	if s.events == nil {
		return nil
	}
	if err := s.events.PublishMail(ctx, job); err != nil {
		logger.Error().Err(err).Uint64("user_id", u.ID).Msg("recovery mail not queued")
	}
	return nil
}

// ConfirmNewPassword sets a new password for the account the recovery
// code was issued to. Each code works once. Existing sessions stay valid.
func (s *AuthService) ConfirmNewPassword(ctx context.Context, recoveryCode, newPassword string) error {
	claims, ok := s.tokens.Verify(recoveryCode, utils.KindRecovery)
	if !ok {
		return ErrInvalidRecoveryCode
	}
	hash, err := utils.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	err = s.writer.ResetPassword(ctx, repository.PasswordReset{UserID: claims.UserID, RecoveryCode: recoveryCode, PasswordHash: hash})
	if errors.Is(err, repository.ErrTokenReused) || errors.Is(err, repository.ErrNotFound) {
		return ErrInvalidRecoveryCode
	}
	if err != nil {
		return fmt.Errorf("reset password: %w", err)
	}
	s.emit(ctx, queue.AuthEvent{Type: queue.EventPasswordChanged, UserID: claims.UserID})
	return nil
}

// Me returns the account behind an access token.
func (s *AuthService) Me(ctx context.Context, userID uint64) (*model.User, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	return u, err
}

// AccessUserID verifies a bearer access token and returns its user.
func (s *AuthService) AccessUserID(raw string) (uint64, bool) {
	claims, ok := s.tokens.Verify(raw, utils.KindAccess)
	if !ok {
		return 0, false
	}
	return claims.UserID, true
}

// issuePair mints both tokens and reads the refresh token back, so stored
// session timestamps are exactly the iat/exp the token asserts.
func (s *AuthService) issuePair(userID uint64, deviceID string) (TokenPair, utils.Claims, error) {
	access, err := s.tokens.IssueAccessToken(userID)
	if err != nil {
		return TokenPair{}, utils.Claims{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.tokens.IssueRefreshToken(userID, deviceID)
	if err != nil {
		return TokenPair{}, utils.Claims{}, fmt.Errorf("issue refresh token: %w", err)
	}
	claims, ok := s.tokens.Verify(refresh.Raw, utils.KindRefresh)
	if !ok {
		return TokenPair{}, utils.Claims{}, errors.New("freshly issued refresh token does not verify")
	}
	return TokenPair{AccessToken: access.Raw, RefreshToken: refresh}, claims, nil
}

func (s *AuthService) replayed(ctx context.Context, userID uint64, deviceID string) {
	logger.Warn().Uint64("user_id", userID).Str("device_id", deviceID).Msg("refresh token replayed")
	s.emit(ctx, queue.AuthEvent{Type: queue.EventRefreshReplay, UserID: userID, DeviceID: deviceID})
}

// emit publishes ev; a broker outage is logged and never fails the request.
func (s *AuthService) emit(ctx context.Context, ev queue.AuthEvent) {
	if s.events == nil {
		return
	}
	if ev.OccurredAt == "" {
		ev.OccurredAt = s.now().UTC().Format(time.RFC3339)
	}
	if err := s.events.PublishAuthEvent(ctx, ev); err != nil {
		logger.Warn().Err(err).Str("event", string(ev.Type)).Msg("audit event not published")
	}
}

// maxTitleLen matches devices.title.
const maxTitleLen = 255

func deviceTitle(userAgent string) string {
	if ua := strings.TrimSpace(userAgent); ua != "" {
		return clip(ua, maxTitleLen)
	}
	return "unknown device"
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
