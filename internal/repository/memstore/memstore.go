// Package memstore is an in-memory implementation of the repository
// contracts used by the service layer. It backs service and HTTP tests;
// every method holds one mutex, which makes the multi-step writes
// (Rotate, SetBan, ApplyReaction) atomic the same way a transaction does.
package memstore

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/blogger-platform/internal/model"
	"github.com/iliyamo/blogger-platform/internal/repository"
	"github.com/iliyamo/blogger-platform/internal/utils"
)

type ledgerKey struct {
	userID uint64
	hash   string
}

type reactionKey struct {
	subject model.Subject
	userID  uint64
}

type Store struct {
	mu        sync.Mutex
	nextID    uint64
	users     map[uint64]*model.User
	sessions  map[string]*model.Session
	ledger    map[ledgerKey]time.Time
	usedCodes map[ledgerKey]bool
	subjects  map[model.Subject]*model.Counters
	reactions map[reactionKey]*model.Reaction

	// RotateErr, when set, makes Rotate fail without writing anything.
	RotateErr error
}

func New() *Store {
	return &Store{
		users:     map[uint64]*model.User{},
		sessions:  map[string]*model.Session{},
		ledger:    map[ledgerKey]time.Time{},
		usedCodes: map[ledgerKey]bool{},
		subjects:  map[model.Subject]*model.Counters{},
		reactions: map[reactionKey]*model.Reaction{},
	}
}

// AddUser stores a copy of u under a fresh id and returns the id.
func (s *Store) AddUser(u model.User) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	u.ID = s.nextID
	u.Email = strings.ToLower(u.Email)
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	s.users[u.ID] = &u
	return u.ID
}

// AddSubject registers a post or comment with zero counters.
func (s *Store) AddSubject(subject model.Subject) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjects[subject] = &model.Counters{}
}

// LedgerSize returns the number of archived refresh tokens.
func (s *Store) LedgerSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ledger)
}

func (s *Store) GetByLoginOrEmail(ctx context.Context, loginOrEmail string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := strings.TrimSpace(loginOrEmail)
	for _, u := range s.users {
		if u.Login == v || u.Email == strings.ToLower(v) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *Store) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) ResetPassword(ctx context.Context, p repository.PasswordReset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := ledgerKey{p.UserID, utils.HashRefreshRaw(p.RecoveryCode)}
	if s.usedCodes[key] {
		return repository.ErrTokenReused
	}
	u, ok := s.users[p.UserID]
	if !ok {
		return repository.ErrNotFound
	}
	s.usedCodes[key] = true
	u.PasswordHash = p.PasswordHash
	return nil
}

func (s *Store) Create(ctx context.Context, sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.DeviceID]; ok {
		return repository.ErrConflict
	}
	cp := *sess
	s.sessions[sess.DeviceID] = &cp
	return nil
}

func (s *Store) GetByDeviceID(ctx context.Context, deviceID string) (*model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[deviceID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *Store) ListByUser(ctx context.Context, userID uint64) ([]model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	out := []model.Session{}
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.ExpiresAt.After(now) {
			out = append(out, *sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActiveAt.After(out[j].LastActiveAt) })
	return out, nil
}

func (s *Store) Delete(ctx context.Context, deviceID string, userID uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[deviceID]
	if !ok || sess.UserID != userID {
		return false, nil
	}
	delete(s.sessions, deviceID)
	return true, nil
}

func (s *Store) DeleteAllExcept(ctx context.Context, deviceID string, userID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		if sess.UserID == userID && id != deviceID {
			delete(s.sessions, id)
		}
	}
	return nil
}

func (s *Store) IsRevoked(ctx context.Context, userID uint64, raw string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ledger[ledgerKey{userID, utils.HashRefreshRaw(raw)}]
	return ok, nil
}

func (s *Store) Rotate(ctx context.Context, r repository.Rotation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.RotateErr != nil {
		return s.RotateErr
	}
	sess, ok := s.sessions[r.DeviceID]
	if !ok || sess.UserID != r.UserID {
		return repository.ErrNotFound
	}
	key := ledgerKey{r.UserID, utils.HashRefreshRaw(r.PresentedToken)}
	if _, used := s.ledger[key]; used {
		return repository.ErrTokenReused
	}
	s.ledger[key] = time.Now().UTC()
	sess.LastActiveAt = r.LastActiveAt
	sess.ExpiresAt = r.ExpiresAt
	if r.IP != "" {
		sess.IP = r.IP
	}
	if r.Title != "" {
		sess.Title = r.Title
	}
	return nil
}

func (s *Store) SetBan(ctx context.Context, b repository.BanChange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[b.UserID]
	if !ok {
		return repository.ErrNotFound
	}
	u.IsBanned = b.IsBanned
	if !b.IsBanned {
		u.BanReason, u.BanDate = nil, nil
		return nil
	}
	reason, at := b.Reason, b.At
	u.BanReason, u.BanDate = &reason, &at
	for id, sess := range s.sessions {
		if sess.UserID == b.UserID {
			delete(s.sessions, id)
		}
	}
	return nil
}

func (s *Store) ApplyReaction(ctx context.Context, subject model.Subject, userID uint64, at time.Time, decide repository.ReactionDecider) (bool, model.LikeStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counters, ok := s.subjects[subject]
	if !ok {
		return false, "", repository.ErrNotFound
	}
	var current *model.LikeStatus
	if re, ok := s.reactions[reactionKey{subject, userID}]; ok {
		st := re.Status
		current = &st
	}
	next, status, write := decide(current, *counters)
	if !write {
		return false, status, nil
	}
	*counters = next
	s.reactions[reactionKey{subject, userID}] = &model.Reaction{Subject: subject, UserID: userID, Status: status, AddedAt: at}
	return true, status, nil
}

func (s *Store) Counters(ctx context.Context, subject model.Subject) (model.Counters, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.subjects[subject]
	if !ok {
		return model.Counters{}, repository.ErrNotFound
	}
	return *c, nil
}

func (s *Store) Status(ctx context.Context, subject model.Subject, userID uint64) (*model.LikeStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	re, ok := s.reactions[reactionKey{subject, userID}]
	if !ok {
		return nil, nil
	}
	st := re.Status
	return &st, nil
}

func (s *Store) NewestLikes(ctx context.Context, subject model.Subject, limit int) ([]model.LikeDetails, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var likes []*model.Reaction
	for k, re := range s.reactions {
		if k.subject == subject && re.Status == model.LikeStatusLike {
			likes = append(likes, re)
		}
	}
	sort.Slice(likes, func(i, j int) bool { return likes[i].AddedAt.After(likes[j].AddedAt) })
	out := []model.LikeDetails{}
	for _, re := range likes {
		if len(out) == limit {
			break
		}
		login := ""
		if u, ok := s.users[re.UserID]; ok {
			login = u.Login
		}
		out = append(out, model.LikeDetails{AddedAt: re.AddedAt, UserID: strconv.FormatUint(re.UserID, 10), Login: login})
	}
	return out, nil
}
