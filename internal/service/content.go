package service

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/hivemind-app/hivemind-back/internal/db"
)

type (
	ContentInput struct {
		Link   string
		Type   string
		Title  string
		TagIDs []uint64
	}

	// ContentPatch carries a partial update; nil fields are left alone.
	ContentPatch struct {
		Link   *string
		Type   *string
		Title  *string
		TagIDs *[]uint64
	}

	ContentItem struct {
		ID        uint64
		Link      string
		Type      string
		Title     string
		CreatedAt time.Time
		Tags      []db.Tag
	}

	Owner struct {
		ID    uint64
		Name  string
		Email string
	}

	Listing struct {
		Owner Owner
		Items []ContentItem
	}
)

// ContentCreate inserts a content record for the owner. The owner
// existence check defends against a deleted-but-still-tokened caller
// racing past the identity middleware.
func (s *Service) ContentCreate(ctx context.Context, ownerID uint64, in ContentInput) (*db.Content, error) {
	if !db.ValidContentType(in.Type) {
		return nil, ErrInvalidContentType
	}

	d, err := s.provider.Get(ctx)
	if err != nil {
		return nil, err
	}

	res := d.Select("id").First(&db.User{}, ownerID)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, ErrOwnerGone
		}
		return nil, errors.Wrap(res.Error, "check owner")
	}

	newTags := make([]db.Tag, len(in.TagIDs))
	for i := range in.TagIDs {
		newTags[i] = db.Tag{
			Base: db.Base{
				ID: in.TagIDs[i],
			},
		}
	}

	model := db.Content{
		Link:   in.Link,
		Type:   in.Type,
		Title:  in.Title,
		UserID: ownerID,
		Tags:   newTags,
	}

	res = d.Create(&model)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "create content")
	}

	return &model, nil
}

// ContentList returns the owner's content, optionally filtered by tags,
// with owner display fields attached. The password hash is never read.
func (s *Service) ContentList(ctx context.Context, ownerID uint64, tagIDs []uint64) (*Listing, error) {
	d, err := s.provider.Get(ctx)
	if err != nil {
		return nil, err
	}

	user := db.User{}
	res := d.Select("id", "name", "email").First(&user, ownerID)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, ErrOwnerGone
		}
		return nil, errors.Wrap(res.Error, "find owner")
	}

	items, err := s.collectionFor(d, ownerID, tagIDs)
	if err != nil {
		return nil, err
	}

	return &Listing{
		Owner: Owner{ID: user.ID, Name: user.Name, Email: user.Email},
		Items: items,
	}, nil
}

// ContentUpdate applies a partial update filtered jointly by (id,
// owner). A miss never reveals whether the row exists under another
// owner.
func (s *Service) ContentUpdate(ctx context.Context, id, ownerID uint64, patch ContentPatch) error {
	cols := map[string]interface{}{}
	if patch.Link != nil {
		cols["link"] = *patch.Link
	}
	if patch.Type != nil {
		if !db.ValidContentType(*patch.Type) {
			return ErrInvalidContentType
		}
		cols["type"] = *patch.Type
	}
	if patch.Title != nil {
		cols["title"] = *patch.Title
	}
	if len(cols) == 0 && patch.TagIDs == nil {
		return ErrEmptyUpdate
	}

	d, err := s.provider.Get(ctx)
	if err != nil {
		return err
	}

	return d.Transaction(func(tx *gorm.DB) error {
		if len(cols) > 0 {
			res := tx.Model(&db.Content{}).
				Where("id = ? AND user_id = ?", id, ownerID).
				Updates(cols)
			if res.Error != nil {
				return errors.Wrap(res.Error, "update content")
			}
			if res.RowsAffected == 0 {
				return ErrNotFound
			}
		} else {
			var count int64
			res := tx.Model(&db.Content{}).
				Where("id = ? AND user_id = ?", id, ownerID).
				Count(&count)
			if res.Error != nil {
				return errors.Wrap(res.Error, "check content")
			}
			if count == 0 {
				return ErrNotFound
			}
		}

		if patch.TagIDs != nil {
			newTags := make([]db.Tag, len(*patch.TagIDs))
			for i, tagID := range *patch.TagIDs {
				newTags[i] = db.Tag{
					Base: db.Base{
						ID: tagID,
					},
				}
			}
			model := db.Content{
				Base: db.Base{
					ID: id,
				},
			}
			if err := tx.Model(&model).Association("Tags").Replace(&newTags); err != nil {
				return errors.Wrap(err, "replace tags")
			}
		}

		return nil
	})
}

// ContentDelete removes a row filtered jointly by (id, owner), with the
// same non-distinguishing miss policy as update.
func (s *Service) ContentDelete(ctx context.Context, id, ownerID uint64) error {
	d, err := s.provider.Get(ctx)
	if err != nil {
		return err
	}

	return d.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ?", ownerID).Delete(&db.Content{}, id)
		if res.Error != nil {
			return errors.Wrap(res.Error, "delete content")
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}

		if err := tx.Exec("DELETE FROM content_tags WHERE content_id = ?", id).Error; err != nil {
			return errors.Wrap(err, "delete tag links")
		}

		return nil
	})
}

// collectionFor fetches the flat content rows for one owner and hangs
// their tag sets off them. Shared between the authenticated listing and
// the public share resolution.
func (s *Service) collectionFor(d *gorm.DB, ownerID uint64, tagIDs []uint64) ([]ContentItem, error) {
	builder := squirrel.
		Select("c.id", "c.link", "c.type", "c.title", "c.created_at").
		From("contents c").
		OrderBy("c.id")
	w := squirrel.Eq{
		"c.user_id": ownerID,
	}
	if len(tagIDs) != 0 {
		// The join multiplies rows when content matches several of the
		// filtered tags.
		builder = builder.Distinct().
			LeftJoin("content_tags ct ON c.id = ct.content_id")
		w["ct.tag_id"] = tagIDs
	}
	sql, args, err := builder.Where(w).ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build sql")
	}

	rows := make([]db.Content, 0)
	res := d.Raw(sql, args...).Scan(&rows)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "scan content")
	}

	items := make([]ContentItem, len(rows))
	ids := make([]uint64, len(rows))
	index := make(map[uint64]int, len(rows))
	for i := range rows {
		items[i] = ContentItem{
			ID:        rows[i].ID,
			Link:      rows[i].Link,
			Type:      rows[i].Type,
			Title:     rows[i].Title,
			CreatedAt: rows[i].CreatedAt,
			Tags:      make([]db.Tag, 0),
		}
		ids[i] = rows[i].ID
		index[rows[i].ID] = i
	}
	if len(ids) == 0 {
		return items, nil
	}

	sql, args, err = squirrel.
		Select("ct.content_id AS content_id", "t.id AS id", "t.title AS title").
		From("tags t").
		Join("content_tags ct ON t.id = ct.tag_id").
		Where(squirrel.Eq{"ct.content_id": ids}).
		OrderBy("t.id").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build tag sql")
	}

	tagRows := make([]struct {
		ContentID uint64
		ID        uint64
		Title     string
	}, 0)
	res = d.Raw(sql, args...).Scan(&tagRows)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "scan tags")
	}

	for _, row := range tagRows {
		i, ok := index[row.ContentID]
		if !ok {
			continue
		}
		items[i].Tags = append(items[i].Tags, db.Tag{
			Base:  db.Base{ID: row.ID},
			Title: row.Title,
		})
	}

	return items, nil
}
