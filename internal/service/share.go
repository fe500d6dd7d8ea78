package service

import (
	"context"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/hivemind-app/hivemind-back/internal/db"
)

// shareEnableAttempts bounds hash-collision retries. With a 10-char
// URL-safe alphabet the space is ~64^10, so a second collision in a row
// already signals something badly wrong.
const shareEnableAttempts = 5

type SharedCollection struct {
	OwnerName string
	Items     []ContentItem
}

// ShareEnable returns the owner's public hash, creating it on first
// call. Calling it again returns the same hash unchanged.
func (s *Service) ShareEnable(ctx context.Context, ownerID uint64) (string, error) {
	d, err := s.provider.Get(ctx)
	if err != nil {
		return "", err
	}

	link := db.ShareLink{}
	res := d.Where("user_id = ?", ownerID).First(&link)
	if res.Error == nil {
		return link.Hash, nil
	}
	if !errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return "", errors.Wrap(res.Error, "find share link")
	}

	for attempt := 0; attempt < shareEnableAttempts; attempt++ {
		hash, err := gonanoid.New(s.shareHashLen)
		if err != nil {
			return "", errors.Wrap(err, "generate share hash")
		}

		res := d.Create(&db.ShareLink{
			Hash:   hash,
			UserID: ownerID,
		})
		if res.Error == nil {
			return hash, nil
		}
		if !errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return "", errors.Wrap(res.Error, "create share link")
		}

		// Duplicate key: either a concurrent enable for this owner won,
		// or the fresh hash collided with another owner's. The former is
		// resolved by returning the surviving row, the latter by a fresh
		// draw.
		if err := d.Where("user_id = ?", ownerID).First(&link).Error; err == nil {
			return link.Hash, nil
		}
	}

	return "", errors.New("could not allocate a unique share hash")
}

// ShareDisable revokes the owner's hash. Disabling an absent share is a
// successful no-op.
func (s *Service) ShareDisable(ctx context.Context, ownerID uint64) error {
	d, err := s.provider.Get(ctx)
	if err != nil {
		return err
	}

	res := d.Where("user_id = ?", ownerID).Delete(&db.ShareLink{})
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete share link")
	}
	return nil
}

// ShareResolve is the public, unauthenticated read path: hash in, owner
// display name and full collection out.
func (s *Service) ShareResolve(ctx context.Context, hash string) (*SharedCollection, error) {
	d, err := s.provider.Get(ctx)
	if err != nil {
		return nil, err
	}

	link := db.ShareLink{}
	res := d.Where("hash = ?", hash).First(&link)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(res.Error, "find share link")
	}

	user := db.User{}
	res = d.Select("id", "name", "email").First(&user, link.UserID)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			// The user was deleted without cascading the share link.
			// Surface it loudly instead of pretending the hash is unknown.
			s.logger.Errorw("share link bound to a missing user",
				"hash", hash, "user_id", link.UserID)
			return nil, ErrShareOwnerGone
		}
		return nil, errors.Wrap(res.Error, "find share owner")
	}

	items, err := s.collectionFor(d, link.UserID, nil)
	if err != nil {
		return nil, err
	}

	return &SharedCollection{
		OwnerName: user.Name,
		Items:     items,
	}, nil
}
