package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elis/elis-backend/internal/user/domain"
	"github.com/elis/elis-backend/internal/user/service"
	"github.com/elis/elis-backend/pkg/errors"
	"github.com/elis/elis-backend/pkg/logger"
)

type fakeUserStore struct {
	users map[string]*domain.User
}

func newFakeUserStore(users ...*domain.User) *fakeUserStore {
	m := map[string]*domain.User{}
	for _, u := range users {
		m[u.ID] = u
	}
	return &fakeUserStore{users: m}
}

func (s *fakeUserStore) GetByID(ctx context.Context, id string) (*domain.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, errors.NotFound("user")
	}
	return u, nil
}

func (s *fakeUserStore) Update(ctx context.Context, user *domain.User) error {
	if _, ok := s.users[user.ID]; !ok {
		return errors.NotFound("user")
	}
	s.users[user.ID] = user
	return nil
}

func (s *fakeUserStore) Delete(ctx context.Context, id string) error {
	if _, ok := s.users[id]; !ok {
		return errors.NotFound("user")
	}
	delete(s.users, id)
	return nil
}

func (s *fakeUserStore) List(ctx context.Context, page, perPage int, search string) ([]*domain.User, int64, error) {
	var out []*domain.User
	for _, u := range s.users {
		out = append(out, u)
	}
	return out, int64(len(out)), nil
}

func (s *fakeUserStore) SetActive(ctx context.Context, id string, active bool) error {
	u, ok := s.users[id]
	if !ok {
		return errors.NotFound("user")
	}
	u.IsActive = active
	return nil
}

func (s *fakeUserStore) SetStorageLimit(ctx context.Context, id string, limitBytes int64) error {
	u, ok := s.users[id]
	if !ok {
		return errors.NotFound("user")
	}
	u.StorageLimitBytes = limitBytes
	return nil
}

type fakeRemover struct {
	removed []string
	err     error
}

func (r *fakeRemover) RemoveOwner(ownerID string) error {
	if r.err != nil {
		return r.err
	}
	r.removed = append(r.removed, ownerID)
	return nil
}

func alice() *domain.User {
	return &domain.User{
		ID:                "user-1",
		Username:          "alice",
		Email:             "alice@example.com",
		IsActive:          true,
		StorageLimitBytes: 1024,
	}
}

func TestUserService_Update(t *testing.T) {
	store := newFakeUserStore(alice())
	svc := service.NewUserService(store, &fakeRemover{}, logger.New("test", "test"))

	email := "new@example.com"
	name := "Alice Updated"
	user, err := svc.Update(context.Background(), "user-1", &service.UpdateRequest{
		Email:    &email,
		FullName: &name,
	})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", user.Email)
	assert.Equal(t, "Alice Updated", user.FullName)

	t.Run("partial update keeps other fields", func(t *testing.T) {
		another := "renamed"
		user, err := svc.Update(context.Background(), "user-1", &service.UpdateRequest{
			FullName: &another,
		})
		require.NoError(t, err)
		assert.Equal(t, "new@example.com", user.Email)
		assert.Equal(t, "renamed", user.FullName)
	})
}

func TestUserService_Delete(t *testing.T) {
	store := newFakeUserStore(alice())
	remover := &fakeRemover{}
	svc := service.NewUserService(store, remover, logger.New("test", "test"))

	require.NoError(t, svc.Delete(context.Background(), "user-1"))
	assert.Empty(t, store.users)
	assert.Equal(t, []string{"user-1"}, remover.removed)

	err := svc.Delete(context.Background(), "user-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestUserService_SetQuota(t *testing.T) {
	store := newFakeUserStore(alice())
	svc := service.NewUserService(store, &fakeRemover{}, logger.New("test", "test"))

	user, err := svc.SetQuota(context.Background(), "user-1", 4096)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), user.StorageLimitBytes)

	_, err = svc.SetQuota(context.Background(), "user-1", -1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestUserService_SetActive(t *testing.T) {
	store := newFakeUserStore(alice())
	svc := service.NewUserService(store, &fakeRemover{}, logger.New("test", "test"))

	user, err := svc.SetActive(context.Background(), "user-1", false)
	require.NoError(t, err)
	assert.False(t, user.IsActive)
}
