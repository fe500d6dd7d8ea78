package service

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/hivemind-app/hivemind-back/internal/db"
)

// TagList returns the whole tag registry. Tags have a lifecycle
// independent of the content that references them.
func (s *Service) TagList(ctx context.Context) ([]db.Tag, error) {
	d, err := s.provider.Get(ctx)
	if err != nil {
		return nil, err
	}

	tags := make([]db.Tag, 0)
	res := d.Order("id").Find(&tags)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "list tags")
	}

	return tags, nil
}

func (s *Service) TagCreate(ctx context.Context, title string) (*db.Tag, error) {
	d, err := s.provider.Get(ctx)
	if err != nil {
		return nil, err
	}

	model := db.Tag{
		Title: title,
	}
	res := d.Create(&model)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrTagTaken
		}
		return nil, errors.Wrap(res.Error, "create tag")
	}

	return &model, nil
}
