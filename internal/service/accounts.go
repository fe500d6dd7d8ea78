package service

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/hivemind-app/hivemind-back/internal/db"
)

// Signup creates a user record. The existence pre-check is only a fast
// path for a friendly error; the unique index on email is what actually
// prevents two concurrent signups from both surviving.
func (s *Service) Signup(ctx context.Context, email, name, password string) error {
	d, err := s.provider.Get(ctx)
	if err != nil {
		return err
	}

	var count int64
	res := d.Model(&db.User{}).Where("email = ?", email).Count(&count)
	if res.Error != nil {
		return errors.Wrap(res.Error, "check existing email")
	}
	if count > 0 {
		return ErrEmailTaken
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}

	res = d.Create(&db.User{
		Name:     name,
		Email:    email,
		Password: hash,
	})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return ErrEmailTaken
		}
		return errors.Wrap(res.Error, "create user")
	}

	return nil
}

// Login verifies the credentials and issues a bearer token. Unknown
// email and wrong password are deliberately indistinguishable.
func (s *Service) Login(ctx context.Context, email, password string) (string, *db.User, error) {
	d, err := s.provider.Get(ctx)
	if err != nil {
		return "", nil, err
	}

	user := db.User{}
	res := d.Where("email = ?", email).First(&user)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, errors.Wrap(res.Error, "find user")
	}

	if err := s.hasher.Compare(user.Password, password); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", nil, errors.Wrap(err, "issue token")
	}

	user.Password = ""
	return token, &user, nil
}

// UserByID resolves a token-embedded identity against the user store.
// The password hash is never loaded.
func (s *Service) UserByID(ctx context.Context, id uint64) (*db.User, error) {
	d, err := s.provider.Get(ctx)
	if err != nil {
		return nil, err
	}

	user := db.User{}
	res := d.Select("id", "name", "email").First(&user, id)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(res.Error, "find user")
	}

	return &user, nil
}
