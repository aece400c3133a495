package profile_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Niabag/Plublista-sub000/internal/ayrshare"
	"github.com/Niabag/Plublista-sub000/internal/content"
	"github.com/Niabag/Plublista-sub000/internal/profile"
	"github.com/Niabag/Plublista-sub000/internal/secrets"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type MockUsers struct{ mock.Mock }

func (m *MockUsers) SetAggregatorProfileKey(ctx context.Context, userID uuid.UUID, encrypted string) error {
	return m.Called(ctx, userID, encrypted).Error(0)
}

type MockCreator struct{ mock.Mock }

func (m *MockCreator) CreateProfile(ctx context.Context, title string) (*ayrshare.Profile, error) {
	args := m.Called(ctx, title)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ayrshare.Profile), args.Error(1)
}

func TestProvisioner_Key(t *testing.T) {
	t.Parallel()

	cipher, err := secrets.New(testKey)
	require.NoError(t, err)

	t.Run("creates and stores encrypted", func(t *testing.T) {
		t.Parallel()

		user := &content.User{ID: uuid.New(), Tier: content.TierPro}
		users, creator := new(MockUsers), new(MockCreator)
		creator.On("CreateProfile", mock.Anything, user.ID.String()).Return(&ayrshare.Profile{Key: "pk-1"}, nil).Once()
		users.On("SetAggregatorProfileKey", mock.Anything, user.ID, mock.MatchedBy(func(enc string) bool {
			plain, err := cipher.Decrypt(enc)
			return err == nil && plain == "pk-1"
		})).Return(nil).Once()

		p := profile.New(users, creator, cipher)
		key, err := p.Key(context.Background(), user)
		require.NoError(t, err)
		assert.Equal(t, "pk-1", key)
		require.NotNil(t, user.AggregatorProfileKey)

		// second call reuses the stored key
		key, err = p.Key(context.Background(), user)
		require.NoError(t, err)
		assert.Equal(t, "pk-1", key)

		users.AssertExpectations(t)
		creator.AssertExpectations(t)
	})

	t.Run("existing", func(t *testing.T) {
		t.Parallel()

		p := profile.New(new(MockUsers), new(MockCreator), cipher)
		_, ok, err := p.Existing(&content.User{ID: uuid.New()})
		require.NoError(t, err)
		assert.False(t, ok)

		_, _, err = p.Existing(nil)
		assert.ErrorIs(t, err, profile.ErrNoUser)
	})

	t.Run("create failure", func(t *testing.T) {
		t.Parallel()

		user := &content.User{ID: uuid.New()}
		creator := new(MockCreator)
		creator.On("CreateProfile", mock.Anything, mock.Anything).Return(nil, errors.New("ayrshare create profile failed (500)")).Once()

		_, err := profile.New(new(MockUsers), creator, cipher).Key(context.Background(), user)
		assert.ErrorContains(t, err, "500")
		assert.Nil(t, user.AggregatorProfileKey)
	})
}

func TestProvisioner_Provision(t *testing.T) {
	t.Parallel()

	cipher, err := secrets.New(testKey)
	require.NoError(t, err)

	user := &content.User{ID: uuid.New(), Tier: content.TierStarter}
	users, creator := new(MockUsers), new(MockCreator)
	creator.On("CreateProfile", mock.Anything, user.ID.String()).
		Return(&ayrshare.Profile{Key: "pk-2", RefURL: "https://profile.ayrshare.test/link"}, nil).Once()
	users.On("SetAggregatorProfileKey", mock.Anything, user.ID, mock.Anything).Return(nil).Once()

	p := profile.New(users, creator, cipher)
	key, ref, err := p.Provision(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, "pk-2", key)
	assert.Equal(t, "https://profile.ayrshare.test/link", ref)

	key, ref, err = p.Provision(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, "pk-2", key)
	assert.Empty(t, ref)
}
