package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/dkolar7/paperback/internal/domain"
	"github.com/dkolar7/paperback/internal/repository"
)

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrCannotBlockSelf = errors.New("cannot block yourself")
)

// UserService covers the user-facing directory concerns: search and the
// block relation the delivery pipeline consults.
type UserService struct {
	userRepo  repository.UserRepository
	blockRepo repository.BlockRepository
}

func NewUserService(userRepo repository.UserRepository, blockRepo repository.BlockRepository) *UserService {
	return &UserService{
		userRepo:  userRepo,
		blockRepo: blockRepo,
	}
}

// Search finds users by username or display name, excluding the caller.
func (s *UserService) Search(ctx context.Context, callerID uuid.UUID, term string) ([]domain.PublicUser, error) {
	users, err := s.userRepo.Search(ctx, term, callerID, 10)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []domain.PublicUser{}
	}
	return users, nil
}

func (s *UserService) Block(ctx context.Context, callerID, targetID uuid.UUID) error {
	if callerID == targetID {
		return ErrCannotBlockSelf
	}
	target, err := s.userRepo.GetByID(ctx, targetID)
	if err != nil {
		return err
	}
	if target == nil {
		return ErrUserNotFound
	}
	return s.blockRepo.Block(ctx, callerID, targetID)
}

func (s *UserService) Unblock(ctx context.Context, callerID, targetID uuid.UUID) error {
	if callerID == targetID {
		return ErrCannotBlockSelf
	}
	return s.blockRepo.Unblock(ctx, callerID, targetID)
}

func (s *UserService) ListBlocked(ctx context.Context, callerID uuid.UUID) ([]uuid.UUID, error) {
	ids, err := s.blockRepo.ListBlocked(ctx, callerID)
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return ids, nil
}
