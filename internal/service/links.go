package service

import (
	"github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/librepage/librepage-back/internal/db"
)

var ErrLinkNotFound = errors.New("link not found")

type (
	// Scope is the filtered view of a user's links inside which order values
	// are dense and meaningful: (owner, social flag, group, archived=false).
	Scope struct {
		UserID   uint64
		IsSocial bool
		GroupID  *uint64
	}

	LinkOrder struct {
		ID    uint64
		Order int
	}

	LinkPatch struct {
		Title      *string
		URL        *string
		Order      *int
		IsSocial   *bool
		Archived   *bool
		GroupID    *uint64
		ClearGroup bool
	}

	Links struct {
		db     *gorm.DB
		logger *zap.SugaredLogger
	}
)

func NewLinks(db *gorm.DB, l *zap.SugaredLogger) *Links {
	return &Links{
		db:     db,
		logger: l,
	}
}

func (s *Links) scopeOf(l *db.Link) Scope {
	return Scope{UserID: l.UserID, IsSocial: l.IsSocial, GroupID: l.GroupID}
}

// List returns the caller's non-archived links ordered by position. Optional
// filters narrow to a single scope (social section, group bucket).
func (s *Links) List(user *db.User, social *bool, groupID *uint64, ungroupedOnly bool) ([]db.Link, error) {
	w := squirrel.Eq{
		"l.user_id":  user.ID,
		"l.archived": false,
	}
	if social != nil {
		w["l.is_social"] = *social
	}
	if groupID != nil {
		w["l.group_id"] = *groupID
	} else if ungroupedOnly {
		w["l.group_id"] = nil
	}
	sql, args, err := squirrel.
		Select("l.id", "l.title", "l.url", `l."order"`, "l.is_social", "l.archived", "l.group_id", "l.user_id", "l.created_at").
		From("links l").
		Where(w).
		OrderBy(`l."order"`, "l.id").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build sql")
	}

	links := make([]db.Link, 0)
	res := s.db.Raw(sql, args...).Scan(&links)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "scan")
	}

	return links, nil
}

// Create inserts a new link. Without an explicit order it is appended at the
// end of its scope, keeping the scope's order sequence dense.
func (s *Links) Create(user *db.User, title, url string, order *int, isSocial bool, groupID *uint64) (*db.Link, error) {
	model := db.Link{
		Title:    title,
		URL:      url,
		IsSocial: isSocial,
		GroupID:  groupID,
		UserID:   user.ID,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if order != nil {
			model.Order = *order
		} else {
			n, err := scopeSize(tx, s.scopeOf(&model))
			if err != nil {
				return err
			}
			model.Order = n
		}
		return tx.Create(&model).Error
	})
	if err != nil {
		return nil, err
	}

	return &model, nil
}

// Update applies a partial patch to an owner-scoped link. When the patch
// moves the link between scopes (archive, group move, social toggle), the
// scope it left is renumbered in the same transaction so order values stay
// dense per scope.
func (s *Links) Update(user *db.User, linkID uint64, patch LinkPatch) (*db.Link, error) {
	model := db.Link{}
	res := s.db.Where("id = ? AND user_id = ?", linkID, user.ID).First(&model)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, res.Error
	}

	oldScope := s.scopeOf(&model)
	wasArchived := model.Archived

	if patch.Title != nil {
		model.Title = *patch.Title
	}
	if patch.URL != nil {
		model.URL = *patch.URL
	}
	if patch.Order != nil {
		model.Order = *patch.Order
	}
	if patch.IsSocial != nil {
		model.IsSocial = *patch.IsSocial
	}
	if patch.Archived != nil {
		model.Archived = *patch.Archived
	}
	if patch.ClearGroup {
		model.GroupID = nil
	} else if patch.GroupID != nil {
		model.GroupID = patch.GroupID
	}

	newScope := s.scopeOf(&model)
	scopeChanged := oldScope != newScope || wasArchived != model.Archived

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if scopeChanged && patch.Order == nil && !model.Archived {
			// joining a new scope: append at the end
			n, err := scopeSize(tx, newScope)
			if err != nil {
				return err
			}
			model.Order = n
		}

		res := tx.Model(&db.Link{GormForkedModel: db.GormForkedModel{ID: model.ID}}).
			Select("title", "url", "order", "is_social", "archived", "group_id").
			Updates(map[string]interface{}{
				"title":     model.Title,
				"url":       model.URL,
				"order":     model.Order,
				"is_social": model.IsSocial,
				"archived":  model.Archived,
				"group_id":  model.GroupID,
			})
		if res.Error != nil {
			return errors.Wrap(res.Error, "update link")
		}

		if scopeChanged {
			if err := renumberScope(tx, oldScope); err != nil {
				return err
			}
			// an explicit order can collide with existing rows in the
			// joined scope; squash that back to a dense sequence
			if patch.Order != nil && !model.Archived {
				if err := renumberScope(tx, newScope); err != nil {
					return err
				}
				if err := tx.First(&model, model.ID).Error; err != nil {
					return errors.Wrap(err, "reload link")
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &model, nil
}

func (s *Links) Delete(user *db.User, linkID uint64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		model := db.Link{}
		res := tx.Where("id = ? AND user_id = ?", linkID, user.ID).First(&model)
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrRecordNotFound) {
				return ErrLinkNotFound
			}
			return res.Error
		}

		res = tx.Delete(&db.Link{}, model.ID)
		if res.Error != nil {
			return res.Error
		}

		return renumberScope(tx, s.scopeOf(&model))
	})
}

// Reorder persists a full order sequence for the caller's links. Every
// update is constrained to rows the caller owns; rows belonging to someone
// else are silently skipped, matching the best-effort batch contract. The
// caller gets a single success/failure outcome.
func (s *Links) Reorder(user *db.User, items []LinkOrder) error {
	if len(items) == 0 {
		return nil
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		for _, item := range items {
			res := tx.Model(&db.Link{}).
				Where("id = ? AND user_id = ?", item.ID, user.ID).
				Update("order", item.Order)
			if res.Error != nil {
				return errors.Wrap(res.Error, "update order")
			}
		}
		return nil
	})
}

func scopeSize(tx *gorm.DB, scope Scope) (int, error) {
	w := squirrel.Eq{
		"user_id":   scope.UserID,
		"is_social": scope.IsSocial,
		"archived":  false,
	}
	if scope.GroupID == nil {
		w["group_id"] = nil
	} else {
		w["group_id"] = *scope.GroupID
	}
	sql, args, err := squirrel.Select("COUNT(*)").From("links").Where(w).ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "build sql")
	}
	var n int
	res := tx.Raw(sql, args...).Scan(&n)
	if res.Error != nil {
		return 0, res.Error
	}
	return n, nil
}

// renumberScope rewrites a scope's order column as a dense 0..N-1 sequence,
// preserving the current relative order.
func renumberScope(tx *gorm.DB, scope Scope) error {
	w := squirrel.Eq{
		"user_id":   scope.UserID,
		"is_social": scope.IsSocial,
		"archived":  false,
	}
	if scope.GroupID == nil {
		w["group_id"] = nil
	} else {
		w["group_id"] = *scope.GroupID
	}
	sql, args, err := squirrel.
		Select("id").From("links").
		Where(w).
		OrderBy(`"order"`, "id").
		ToSql()
	if err != nil {
		return errors.Wrap(err, "build sql")
	}

	ids := make([]uint64, 0)
	res := tx.Raw(sql, args...).Scan(&ids)
	if res.Error != nil {
		return res.Error
	}

	for i, id := range ids {
		res := tx.Model(&db.Link{}).Where("id = ?", id).Update("order", i)
		if res.Error != nil {
			return errors.Wrap(res.Error, "renumber")
		}
	}
	return nil
}
