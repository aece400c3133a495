// Package profile provisions the per-user aggregator profile on first use.
package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Niabag/Plublista-sub000/internal/ayrshare"
	"github.com/Niabag/Plublista-sub000/internal/content"
)

var ErrNoUser = errors.New("profile: user is required")

type Users interface {
	SetAggregatorProfileKey(ctx context.Context, userID uuid.UUID, encrypted string) error
}

type Creator interface {
	CreateProfile(ctx context.Context, title string) (*ayrshare.Profile, error)
}

type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

type Provisioner struct {
	users   Users
	creator Creator
	cipher  Cipher
}

func New(users Users, creator Creator, cipher Cipher) *Provisioner {
	return &Provisioner{users: users, creator: creator, cipher: cipher}
}

// Existing returns the decrypted profile key, or false when the user has none.
func (p *Provisioner) Existing(user *content.User) (string, bool, error) {
	if user == nil {
		return "", false, ErrNoUser
	}
	if user.AggregatorProfileKey == nil || *user.AggregatorProfileKey == "" {
		return "", false, nil
	}
	key, err := p.cipher.Decrypt(*user.AggregatorProfileKey)
	if err != nil {
		return "", false, fmt.Errorf("decrypt profile key: %w", err)
	}
	return key, true, nil
}

// Key returns the user's profile key, provisioning a profile when the user
// has none yet.
func (p *Provisioner) Key(ctx context.Context, user *content.User) (string, error) {
	key, _, err := p.Provision(ctx, user)
	return key, err
}

// Provision returns the user's profile key. A profile titled with the user id
// is created and stored encrypted when the user has none yet; user is updated
// in place. refURL is only known for a profile created by this call.
func (p *Provisioner) Provision(ctx context.Context, user *content.User) (key, refURL string, err error) {
	key, ok, err := p.Existing(user)
	if err != nil || ok {
		return key, "", err
	}

	prof, err := p.creator.CreateProfile(ctx, user.ID.String())
	if err != nil {
		return "", "", err
	}
	encrypted, err := p.cipher.Encrypt(prof.Key)
	if err != nil {
		return "", "", fmt.Errorf("encrypt profile key: %w", err)
	}
	if err := p.users.SetAggregatorProfileKey(ctx, user.ID, encrypted); err != nil {
		return "", "", err
	}
	user.AggregatorProfileKey = &encrypted
	return prof.Key, prof.RefURL, nil
}
