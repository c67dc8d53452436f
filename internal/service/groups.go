package service

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/librepage/librepage-back/internal/db"
)

var ErrGroupNotFound = errors.New("link group not found")

type Groups struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

func NewGroups(db *gorm.DB, l *zap.SugaredLogger) *Groups {
	return &Groups{
		db:     db,
		logger: l,
	}
}

func (s *Groups) List(userID uint64) ([]db.LinkGroup, error) {
	groups := make([]db.LinkGroup, 0)

	res := s.db.Where("user_id = ?", userID).Order("\"order\", id").Find(&groups)
	if res.Error != nil {
		return nil, res.Error
	}

	return groups, nil
}

func (s *Groups) Get(userID, groupID uint64) (*db.LinkGroup, error) {
	model := db.LinkGroup{}
	res := s.db.Where("id = ? AND user_id = ?", groupID, userID).First(&model)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, res.Error
	}
	return &model, nil
}

func (s *Groups) Create(userID uint64, name string, order int) (*db.LinkGroup, error) {
	model := db.LinkGroup{
		Name:   name,
		Order:  order,
		UserID: userID,
	}

	res := s.db.Create(&model)
	if res.Error != nil {
		return nil, res.Error
	}

	return &model, nil
}

func (s *Groups) Update(userID, groupID uint64, name string, order *int) (*db.LinkGroup, error) {
	model, err := s.Get(userID, groupID)
	if err != nil {
		return nil, err
	}

	model.Name = name
	if order != nil {
		model.Order = *order
	}

	res := s.db.Model(model).Updates(map[string]interface{}{
		"name":  model.Name,
		"order": model.Order,
	})
	if res.Error != nil {
		return nil, res.Error
	}

	return model, nil
}

// Delete removes a group. Its links survive and become ungrouped; the
// ungrouped scope they join is renumbered so its order stays dense.
func (s *Groups) Delete(userID, groupID uint64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		model := db.LinkGroup{}
		res := tx.Where("id = ? AND user_id = ?", groupID, userID).First(&model)
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrRecordNotFound) {
				return ErrGroupNotFound
			}
			return res.Error
		}

		res = tx.Model(&db.Link{}).
			Where("group_id = ? AND user_id = ?", groupID, userID).
			Update("group_id", nil)
		if res.Error != nil {
			return errors.Wrap(res.Error, "ungroup links")
		}

		res = tx.Delete(&db.LinkGroup{}, model.ID)
		if res.Error != nil {
			return res.Error
		}

		for _, social := range []bool{false, true} {
			if err := renumberScope(tx, Scope{UserID: userID, IsSocial: social, GroupID: nil}); err != nil {
				return err
			}
		}
		return nil
	})
}
