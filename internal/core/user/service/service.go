package userapp

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"feedcore/internal/core/errs"
	userEntity "feedcore/internal/core/user"
	counterPort "feedcore/internal/ports/counter"
	userPort "feedcore/internal/ports/user"

	"github.com/dgrijalva/jwt-go"
	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

var handleRe = regexp.MustCompile(`^\w{3,16}$`)

type UserService struct {
	UserRepository userPort.UserRepository
	CounterStore   counterPort.CounterStore
	jwtKey         []byte
	issuer         string
	logger         *zap.Logger
}

func NewUserService(repo userPort.UserRepository, counters counterPort.CounterStore, jwtKey []byte, issuer string, logger *zap.Logger) *UserService {
	return &UserService{
		UserRepository: repo,
		CounterStore:   counters,
		jwtKey:         jwtKey,
		issuer:         issuer,
		logger:         logger,
	}
}

// UpsertUser registers the caller or changes their handle. Identity comes
// from the token; this service only keeps the profile row.
func (s *UserService) UpsertUser(ctx context.Context, userID, handle string) (*userPort.UserDTO, error) {
	id, err := uuid.FromString(userID)
	if err != nil {
		return nil, errs.Validation("invalid user id %q", userID)
	}
	if !handleRe.MatchString(handle) {
		return nil, errs.Validation("handle must be 3 to 16 letters, digits or underscores")
	}

	u, err := s.UserRepository.Upsert(ctx, &userEntity.User{ID: id, Handle: strings.ToLower(handle)})
	if err != nil {
		return nil, err
	}
	return toDTO(u), nil
}

// GetUser returns the profile with cached counters, falling back to the
// counts stored on the user row when the cache has none.
func (s *UserService) GetUser(ctx context.Context, userID string) (*userPort.UserDTO, error) {
	u, err := s.UserRepository.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	dto := toDTO(u)

	if n, err := s.CounterStore.Get(ctx, counterPort.FollowersKey(userID)); err == nil {
		dto.FollowerCount = n
	} else if !errors.Is(err, errs.ErrCacheMiss) {
		s.logger.Warn("follower counter unavailable", zap.String("userID", userID), zap.Error(err))
	}
	if n, err := s.CounterStore.Get(ctx, counterPort.FollowingKey(userID)); err == nil {
		dto.FollowingCount = n
	} else if !errors.Is(err, errs.ErrCacheMiss) {
		s.logger.Warn("following counter unavailable", zap.String("userID", userID), zap.Error(err))
	}
	return dto, nil
}

// IssueToken signs an HS256 token for userID. An empty audience gives a
// regular user token; userPort.AdminAudience unlocks the admin routes.
func (s *UserService) IssueToken(userID string, ttl time.Duration, audience string) (*userPort.TokenResponse, error) {
	if _, err := uuid.FromString(userID); err != nil {
		return nil, errs.Validation("invalid user id %q", userID)
	}
	expiresAt := time.Now().Add(ttl)
	claims := &jwt.StandardClaims{
		Subject:   userID,
		Issuer:    s.issuer,
		Audience:  audience,
		IssuedAt:  time.Now().Unix(),
		ExpiresAt: expiresAt.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtKey)
	if err != nil {
		return nil, err
	}
	return &userPort.TokenResponse{Token: token, ExpiresAt: expiresAt.Unix()}, nil
}

func toDTO(u *userEntity.User) *userPort.UserDTO {
	return &userPort.UserDTO{
		ID:             u.ID.String(),
		Handle:         u.Handle,
		FollowerCount:  u.FollowerCount,
		FollowingCount: u.FollowingCount,
	}
}
