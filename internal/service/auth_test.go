package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/textmill/textmill/internal/domain"
)

type MockAPIKeyRepository struct {
	mock.Mock
}

func (m *MockAPIKeyRepository) Create(ctx context.Context, key *domain.APIKey) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockAPIKeyRepository) GetByID(ctx context.Context, id string) (*domain.APIKey, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.APIKey), args.Error(1)
}

func (m *MockAPIKeyRepository) GetByHash(ctx context.Context, hash string) (*domain.APIKey, error) {
	args := m.Called(ctx, hash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.APIKey), args.Error(1)
}

func (m *MockAPIKeyRepository) List(ctx context.Context) ([]*domain.APIKey, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.APIKey), args.Error(1)
}

func (m *MockAPIKeyRepository) Revoke(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAPIKeyRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func TestCreateAPIKey_Success(t *testing.T) {
	keyRepo := new(MockAPIKeyRepository)
	svc := NewAuthService(keyRepo, &DefaultUUIDGenerator{})

	keyRepo.On("Create", mock.Anything, mock.MatchedBy(func(key *domain.APIKey) bool {
		return key.Name == "ci" && key.KeyHash != "" && key.RevokedAt == nil
	})).Return(nil)

	token, err := svc.CreateAPIKey(context.Background(), "ci")

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, "tml_"))
	assert.Len(t, token, len("tml_")+64)
	keyRepo.AssertExpectations(t)
}

func TestCreateAPIKey_RequiresName(t *testing.T) {
	svc := NewAuthService(new(MockAPIKeyRepository), &DefaultUUIDGenerator{})

	_, err := svc.CreateAPIKey(context.Background(), "")
	assert.Error(t, err)
}

func TestValidateAPIKey_Success(t *testing.T) {
	keyRepo := new(MockAPIKeyRepository)
	svc := NewAuthService(keyRepo, &DefaultUUIDGenerator{})

	token := "tml_" + strings.Repeat("ab", 32)
	stored := domain.NewAPIKey("key-1", "ci", hashToken(token), time.Now().UTC(), nil)
	keyRepo.On("GetByHash", mock.Anything, hashToken(token)).Return(stored, nil)

	keyID, err := svc.ValidateAPIKey(context.Background(), token)

	require.NoError(t, err)
	assert.Equal(t, "key-1", keyID)
}

func TestValidateAPIKey_BadFormat(t *testing.T) {
	svc := NewAuthService(new(MockAPIKeyRepository), &DefaultUUIDGenerator{})

	_, err := svc.ValidateAPIKey(context.Background(), "not-a-key")
	assert.ErrorIs(t, err, domain.ErrInvalidAPIKey)
}

func TestValidateAPIKey_UnknownHash(t *testing.T) {
	keyRepo := new(MockAPIKeyRepository)
	svc := NewAuthService(keyRepo, &DefaultUUIDGenerator{})

	token := "tml_" + strings.Repeat("cd", 32)
	keyRepo.On("GetByHash", mock.Anything, mock.Anything).Return(nil, domain.ErrAPIKeyNotFound)

	_, err := svc.ValidateAPIKey(context.Background(), token)
	assert.ErrorIs(t, err, domain.ErrInvalidAPIKey)
}

func TestValidateAPIKey_Revoked(t *testing.T) {
	keyRepo := new(MockAPIKeyRepository)
	svc := NewAuthService(keyRepo, &DefaultUUIDGenerator{})

	token := "tml_" + strings.Repeat("ef", 32)
	revokedAt := time.Now().UTC()
	stored := domain.NewAPIKey("key-1", "old", hashToken(token), time.Now().UTC(), &revokedAt)
	keyRepo.On("GetByHash", mock.Anything, mock.Anything).Return(stored, nil)

	_, err := svc.ValidateAPIKey(context.Background(), token)
	assert.ErrorIs(t, err, domain.ErrAPIKeyRevoked)
}

func TestIsValidAPIToken(t *testing.T) {
	assert.True(t, IsValidAPIToken("tml_"+strings.Repeat("a", 64)))
	assert.False(t, IsValidAPIToken("key_"+strings.Repeat("a", 64)))
	assert.False(t, IsValidAPIToken("tml_"+strings.Repeat("a", 63)))
	assert.False(t, IsValidAPIToken("tml_"+strings.Repeat("g", 64)))
	assert.False(t, IsValidAPIToken(""))
}

func TestCreateAPIKeyWithToken(t *testing.T) {
	keyRepo := new(MockAPIKeyRepository)
	svc := NewAuthService(keyRepo, &DefaultUUIDGenerator{})

	token := "tml_" + strings.Repeat("12", 32)
	keyRepo.On("Create", mock.Anything, mock.MatchedBy(func(key *domain.APIKey) bool {
		return key.KeyHash == hashToken(token)
	})).Return(nil)

	err := svc.CreateAPIKeyWithToken(context.Background(), "bootstrap", token)
	require.NoError(t, err)

	err = svc.CreateAPIKeyWithToken(context.Background(), "bootstrap", "bogus")
	assert.Error(t, err)
}
