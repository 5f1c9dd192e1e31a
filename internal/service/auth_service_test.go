package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/blogger-platform/internal/model"
	"github.com/iliyamo/blogger-platform/internal/queue"
	"github.com/iliyamo/blogger-platform/internal/repository/memstore"
	"github.com/iliyamo/blogger-platform/internal/utils"
)

const testPassword = "qwerty123"

type fakePublisher struct {
	mu     sync.Mutex
	events []queue.AuthEvent
	mails  []queue.MailJob
	err    error
}

func (f *fakePublisher) PublishAuthEvent(_ context.Context, ev queue.AuthEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakePublisher) PublishMail(_ context.Context, job queue.MailJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mails = append(f.mails, job)
	return f.err
}

func (f *fakePublisher) types() []queue.AuthEventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]queue.AuthEventType, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.Type)
	}
	return out
}

type authFixture struct {
	svc    *AuthService
	store  *memstore.Store
	events *fakePublisher
	tokens *utils.TokenIssuer
	userID uint64
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()
	store := memstore.New()
	hash, err := utils.HashPassword(testPassword, 4)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	uid := store.AddUser(model.User{Login: "alice", Email: "alice@example.com", PasswordHash: hash, IsConfirmed: true})
	tokens := utils.NewTokenIssuer(utils.TokenKeys{
		AccessSecret: "access", RefreshSecret: "refresh", RecoverySecret: "recovery",
		AccessTTL: 10 * time.Minute, RefreshTTL: 20 * time.Minute, RecoveryTTL: 2 * time.Hour,
	})
	events := &fakePublisher{}
	svc := NewAuthService(AuthDeps{
		Users: store, Sessions: store, Ledger: store, Writer: store,
		Tokens: tokens, Events: events, BcryptCost: 4,
	})
	return &authFixture{svc: svc, store: store, events: events, tokens: tokens, userID: uid}
}

func (f *authFixture) login(t *testing.T) TokenPair {
	t.Helper()
	pair, err := f.svc.Login(context.Background(), LoginInput{LoginOrEmail: "alice", Password: testPassword, IP: "1.2.3.4", UserAgent: "test-agent"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	return pair
}

func (f *authFixture) resolve(t *testing.T, raw string) SessionContext {
	t.Helper()
	sc, err := f.svc.ResolveSession(context.Background(), raw)
	if err != nil {
		t.Fatalf("ResolveSession: %v", err)
	}
	return sc
}

func TestLogin_CreatesSessionFromTokenClaims(t *testing.T) {
	f := newAuthFixture(t)
	pair := f.login(t)

	if _, ok := f.tokens.Verify(pair.AccessToken, utils.KindAccess); !ok {
		t.Fatal("access token does not verify")
	}
	claims, ok := f.tokens.Verify(pair.RefreshToken.Raw, utils.KindRefresh)
	if !ok {
		t.Fatal("refresh token does not verify")
	}
	sess, err := f.store.GetByDeviceID(context.Background(), claims.DeviceID)
	if err != nil {
		t.Fatalf("session not stored: %v", err)
	}
	if sess.UserID != f.userID || sess.IP != "1.2.3.4" || sess.Title != "test-agent" {
		t.Errorf("unexpected session %+v", sess)
	}
	if !sess.LastActiveAt.Equal(claims.IssuedAt) || !sess.ExpiresAt.Equal(claims.Exp) {
		t.Errorf("session times (%v, %v) differ from token (%v, %v)", sess.LastActiveAt, sess.ExpiresAt, claims.IssuedAt, claims.Exp)
	}
	if got := f.events.types(); len(got) != 1 || got[0] != queue.EventLogin {
		t.Errorf("events = %v, want [login]", got)
	}
}

func TestLogin_Rejections(t *testing.T) {
	f := newAuthFixture(t)
	hash, _ := utils.HashPassword(testPassword, 4)
	f.store.AddUser(model.User{Login: "bob", Email: "bob@example.com", PasswordHash: hash, IsConfirmed: false})
	f.store.AddUser(model.User{Login: "carol", Email: "carol@example.com", PasswordHash: hash, IsConfirmed: true, IsBanned: true})

	tests := []struct {
		name    string
		login   string
		pass    string
		wantErr error
	}{
		{"unknown user", "nobody", testPassword, ErrUnauthorized},
		{"wrong password", "alice", "wrong", ErrUnauthorized},
		{"banned", "carol", testPassword, ErrUnauthorized},
		{"unconfirmed email", "bob", testPassword, ErrEmailNotConfirmed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Login(context.Background(), LoginInput{LoginOrEmail: tt.login, Password: tt.pass})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
	for _, uid := range []uint64{2, 3} {
		if list, _ := f.store.ListByUser(context.Background(), uid); len(list) != 0 {
			t.Errorf("user %d got %d sessions after a rejected login", uid, len(list))
		}
	}
}

func TestLogin_ByEmail(t *testing.T) {
	f := newAuthFixture(t)
	if _, err := f.svc.Login(context.Background(), LoginInput{LoginOrEmail: "Alice@Example.com", Password: testPassword}); err != nil {
		t.Fatalf("Login by email: %v", err)
	}
}

func TestRefresh_TokenIsSingleUse(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	pair := f.login(t)
	sc := f.resolve(t, pair.RefreshToken.Raw)

	next, err := f.svc.Refresh(ctx, sc, "5.6.7.8", "other-agent")
	if err != nil {
		t.Fatalf("first Refresh: %v", err)
	}
	if next.RefreshToken.Raw == pair.RefreshToken.Raw {
		t.Fatal("refresh returned the presented token")
	}
	if _, err := f.svc.Refresh(ctx, sc, "5.6.7.8", "other-agent"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("second Refresh err = %v, want ErrUnauthorized", err)
	}
	if _, err := f.svc.ResolveSession(ctx, pair.RefreshToken.Raw); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("rotated token resolved: %v", err)
	}

	nextSC := f.resolve(t, next.RefreshToken.Raw)
	if nextSC.DeviceID != sc.DeviceID {
		t.Errorf("device changed on refresh: %s -> %s", sc.DeviceID, nextSC.DeviceID)
	}
	sess, _ := f.store.GetByDeviceID(ctx, sc.DeviceID)
	if sess.IP != "5.6.7.8" || sess.Title != "other-agent" {
		t.Errorf("session metadata not updated: %+v", sess)
	}
	if n := f.store.LedgerSize(); n != 1 {
		t.Errorf("ledger size = %d, want 1", n)
	}
}

func TestRefresh_ConcurrentSameTokenSucceedsOnce(t *testing.T) {
	f := newAuthFixture(t)
	sc := f.resolve(t, f.login(t).RefreshToken.Raw)

	const n = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Refresh(context.Background(), sc, "", ""); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if success != 1 {
		t.Errorf("%d refreshes succeeded, want exactly 1", success)
	}
}

func TestRefresh_StorageFailureLeavesTokenUsable(t *testing.T) {
	f := newAuthFixture(t)
	pair := f.login(t)
	sc := f.resolve(t, pair.RefreshToken.Raw)

	f.store.RotateErr = errors.New("connection reset")
	if _, err := f.svc.Refresh(context.Background(), sc, "", ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("err = %v, want ErrUnauthorized", err)
	}
	f.store.RotateErr = nil

	sc = f.resolve(t, pair.RefreshToken.Raw)
	if _, err := f.svc.Refresh(context.Background(), sc, "", ""); err != nil {
		t.Errorf("retry after failed rotation: %v", err)
	}
}

func TestResolveSession_RejectsOtherKinds(t *testing.T) {
	f := newAuthFixture(t)
	pair := f.login(t)
	recovery, _ := f.tokens.IssuePasswordRecoveryToken(f.userID)
	for name, raw := range map[string]string{
		"empty":    "",
		"access":   pair.AccessToken,
		"recovery": recovery.Raw,
		"garbage":  "not-a-token",
	} {
		if _, err := f.svc.ResolveSession(context.Background(), raw); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("%s: err = %v, want ErrUnauthorized", name, err)
		}
	}
}

func TestLogout_SecondCallUnauthorized(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	raw := f.login(t).RefreshToken.Raw

	if err := f.svc.Logout(ctx, raw); err != nil {
		t.Fatalf("first Logout: %v", err)
	}
	if err := f.svc.Logout(ctx, raw); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("second Logout err = %v, want ErrUnauthorized", err)
	}
	if n := f.store.LedgerSize(); n != 0 {
		t.Errorf("logout wrote %d ledger entries", n)
	}
}

func TestLogout_ThenRefreshUnauthorized(t *testing.T) {
	f := newAuthFixture(t)
	raw := f.login(t).RefreshToken.Raw
	if err := f.svc.Logout(context.Background(), raw); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := f.svc.ResolveSession(context.Background(), raw); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("refresh after logout: err = %v, want ErrUnauthorized", err)
	}
}

func TestLogout_RotatedTokenCannotEndSession(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	old := f.login(t).RefreshToken.Raw
	next, err := f.svc.Refresh(ctx, f.resolve(t, old), "", "")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if err := f.svc.Logout(ctx, old); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Logout with rotated token err = %v, want ErrUnauthorized", err)
	}
	f.resolve(t, next.RefreshToken.Raw)
}

func TestDeleteDevice(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	me := f.resolve(t, f.login(t).RefreshToken.Raw)
	other := f.resolve(t, f.login(t).RefreshToken.Raw)

	hash, _ := utils.HashPassword(testPassword, 4)
	f.store.AddUser(model.User{Login: "mallory", Email: "m@example.com", PasswordHash: hash, IsConfirmed: true})
	foreignPair, err := f.svc.Login(ctx, LoginInput{LoginOrEmail: "mallory", Password: testPassword})
	if err != nil {
		t.Fatalf("Login mallory: %v", err)
	}
	foreign := f.resolve(t, foreignPair.RefreshToken.Raw)

	if err := f.svc.DeleteDevice(ctx, me, me.DeviceID); !errors.Is(err, ErrForbidden) {
		t.Errorf("own device: err = %v, want ErrForbidden", err)
	}
	if err := f.svc.DeleteDevice(ctx, me, foreign.DeviceID); !errors.Is(err, ErrForbidden) {
		t.Errorf("foreign device: err = %v, want ErrForbidden", err)
	}
	if err := f.svc.DeleteDevice(ctx, me, "no-such-device"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing device: err = %v, want ErrNotFound", err)
	}
	if err := f.svc.DeleteDevice(ctx, me, other.DeviceID); err != nil {
		t.Fatalf("delete other own device: %v", err)
	}
	if _, err := f.svc.ResolveSession(ctx, other.RefreshToken); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("deleted device still resolves: %v", err)
	}
	f.resolve(t, me.RefreshToken)
	f.resolve(t, foreign.RefreshToken)
}

func TestDeleteOtherDevices(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	me := f.resolve(t, f.login(t).RefreshToken.Raw)
	f.login(t)
	f.login(t)

	if err := f.svc.DeleteOtherDevices(ctx, me); err != nil {
		t.Fatalf("DeleteOtherDevices: %v", err)
	}
	list, err := f.svc.ListDevices(ctx, f.userID)
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(list) != 1 || list[0].DeviceID != me.DeviceID {
		t.Errorf("devices after delete-others = %+v", list)
	}
}

func TestSetBan_RevokesAllSessions(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	a := f.login(t).RefreshToken.Raw
	b := f.login(t).RefreshToken.Raw

	if err := f.svc.SetBan(ctx, f.userID, true, "spamming the comment section daily"); err != nil {
		t.Fatalf("SetBan: %v", err)
	}
	for _, raw := range []string{a, b} {
		if _, err := f.svc.ResolveSession(ctx, raw); !errors.Is(err, ErrUnauthorized) {
			t.Errorf("session survived ban: %v", err)
		}
	}
	if _, err := f.svc.Login(ctx, LoginInput{LoginOrEmail: "alice", Password: testPassword}); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("banned login err = %v, want ErrUnauthorized", err)
	}
	u, _ := f.store.GetByID(ctx, f.userID)
	if !u.IsBanned || u.BanReason == nil || u.BanDate == nil {
		t.Errorf("ban not recorded: %+v", u)
	}

	if err := f.svc.SetBan(ctx, f.userID, false, ""); err != nil {
		t.Fatalf("unban: %v", err)
	}
	f.login(t)
}

func TestSetBan_UnknownUser(t *testing.T) {
	f := newAuthFixture(t)
	if err := f.svc.SetBan(context.Background(), 999, true, "reason long enough to pass"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPasswordRecovery(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	if err := f.svc.RequestPasswordRecovery(ctx, "nobody@example.com"); err != nil {
		t.Fatalf("unknown email: %v", err)
	}
	if err := f.svc.RequestPasswordRecovery(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RequestPasswordRecovery: %v", err)
	}
	if len(f.events.mails) != 1 {
		t.Fatalf("mails = %d, want 1", len(f.events.mails))
	}
	job := f.events.mails[0]
	if job.To != "alice@example.com" || job.Kind != queue.MailKindPasswordRecovery {
		t.Errorf("unexpected job %+v", job)
	}

	access := f.login(t).AccessToken
	if err := f.svc.ConfirmNewPassword(ctx, access, "new-password"); !errors.Is(err, ErrInvalidRecoveryCode) {
		t.Errorf("access token as code: err = %v, want ErrInvalidRecoveryCode", err)
	}
	if err := f.svc.ConfirmNewPassword(ctx, job.RecoveryCode, "new-password"); err != nil {
		t.Fatalf("ConfirmNewPassword: %v", err)
	}
	if _, err := f.svc.Login(ctx, LoginInput{LoginOrEmail: "alice", Password: "new-password"}); err != nil {
		t.Errorf("login with new password: %v", err)
	}
	if _, err := f.svc.Login(ctx, LoginInput{LoginOrEmail: "alice", Password: testPassword}); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("old password still accepted: %v", err)
	}
}

func TestPublisherFailureDoesNotFailRequest(t *testing.T) {
	f := newAuthFixture(t)
	f.events.err = errors.New("broker down")
	raw := f.login(t).RefreshToken.Raw
	if err := f.svc.Logout(context.Background(), raw); err != nil {
		t.Errorf("Logout: %v", err)
	}
}

func TestMe(t *testing.T) {
	f := newAuthFixture(t)
	uid, ok := f.svc.AccessUserID(f.login(t).AccessToken)
	if !ok || uid != f.userID {
		t.Fatalf("AccessUserID = (%d, %v)", uid, ok)
	}
	u, err := f.svc.Me(context.Background(), uid)
	if err != nil || u.Login != "alice" {
		t.Errorf("Me = (%+v, %v)", u, err)
	}
	if _, err := f.svc.Me(context.Background(), 404); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("missing user: err = %v", err)
	}
}

func TestConfirmNewPassword_CodeWorksOnce(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	if err := f.svc.RequestPasswordRecovery(ctx, "alice@example.com"); err != nil {
		t.Fatalf("RequestPasswordRecovery: %v", err)
	}
	code := f.events.mails[0].RecoveryCode

	if err := f.svc.ConfirmNewPassword(ctx, code, "first-new"); err != nil {
		t.Fatalf("first use: %v", err)
	}
	if err := f.svc.ConfirmNewPassword(ctx, code, "second-new"); !errors.Is(err, ErrInvalidRecoveryCode) {
		t.Fatalf("second use: err = %v, want ErrInvalidRecoveryCode", err)
	}
	if _, err := f.svc.Login(ctx, LoginInput{LoginOrEmail: "alice", Password: "first-new"}); err != nil {
		t.Errorf("password from first use rejected: %v", err)
	}
	if _, err := f.svc.Login(ctx, LoginInput{LoginOrEmail: "alice", Password: "second-new"}); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("password from replayed code accepted: %v", err)
	}

	// A fresh code still works after another one was consumed.
	fresh, _ := f.tokens.IssuePasswordRecoveryToken(f.userID)
	if fresh.Raw == code {
		t.Fatal("fresh code equals the consumed one")
	}
	if err := f.svc.ConfirmNewPassword(ctx, fresh.Raw, "third-new"); err != nil {
		t.Errorf("fresh code: %v", err)
	}
}

func TestListDevices_HidesExpiredSessions(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	live := f.resolve(t, f.login(t).RefreshToken.Raw)

	past := time.Now().Add(-time.Hour).UTC()
	if err := f.store.Create(ctx, &model.Session{
		DeviceID: "expired-device", UserID: f.userID, IP: "1.2.3.4", Title: "old",
		LastActiveAt: past.Add(-time.Hour), ExpiresAt: past,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}

	list, err := f.svc.ListDevices(ctx, f.userID)
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(list) != 1 || list[0].DeviceID != live.DeviceID {
		t.Errorf("devices = %+v, want only %s", list, live.DeviceID)
	}
}
