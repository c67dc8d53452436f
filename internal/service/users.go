package service

import (
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/librepage/librepage-back/internal/db"
)

var (
	ErrEmailTaken                = errors.New("email already registered")
	ErrLoginUserNotFound         = errors.New("user not found")
	ErrLoginPasswordDoesNotMatch = errors.New("password does not match")
	ErrUserNotFound              = errors.New("user not found")
)

const defaultThemePalette = `{"name":"Light","palette":["#FFFFFF","#F2F2F2","#1F2937","#6170F8"]}`

type (
	ProfilePatch struct {
		Name         *string
		Handle       *string
		ThemePalette *string
		ButtonStyle  *string
	}

	UserWithCount struct {
		ID         uint64    `json:"id"`
		Email      string    `json:"email"`
		Name       string    `json:"name"`
		Handle     string    `json:"handle"`
		Role       string    `json:"role"`
		TotalViews uint64    `json:"totalViews"`
		LinkCount  int       `json:"linkCount"`
		CreatedAt  time.Time `json:"createdAt"`
	}

	Users struct {
		db     *gorm.DB
		logger *zap.SugaredLogger
	}
)

func NewUsers(db *gorm.DB, l *zap.SugaredLogger) *Users {
	return &Users{
		db:     db,
		logger: l,
	}
}

func (s *Users) Register(email, pass, name string) (*db.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	var count int64
	res := s.db.Model(&db.User{}).Where("email = ?", email).Count(&count)
	if res.Error != nil {
		return nil, res.Error
	}
	if count > 0 {
		return nil, ErrEmailTaken
	}

	hash, err := s.bcryptGen(pass)
	if err != nil {
		return nil, errors.Wrap(err, "bcryptGen")
	}

	handle, err := s.freeHandle()
	if err != nil {
		return nil, err
	}

	model := db.User{
		Email:        email,
		Name:         strings.TrimSpace(name),
		Handle:       handle,
		Role:         db.RoleUser,
		PasswordHash: &hash,
		ThemePalette: defaultThemePalette,
		ButtonStyle:  "rounded-md",
	}
	res = s.db.Create(&model)
	if res.Error != nil {
		return nil, res.Error
	}
	return &model, nil
}

func (s *Users) Login(email, pass string) (*db.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	user := db.User{}
	res := s.db.Where("email = ?", email).First(&user)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, ErrLoginUserNotFound
		}
		return nil, res.Error
	}

	// OAuth-only accounts carry no password hash and cannot log in here
	if user.PasswordHash == nil {
		return nil, ErrLoginPasswordDoesNotMatch
	}
	if err := s.bcryptCheck(*user.PasswordHash, pass); err != nil {
		return nil, ErrLoginPasswordDoesNotMatch
	}

	return &user, nil
}

func (s *Users) GetByID(id uint64) (*db.User, error) {
	user := db.User{}
	res := s.db.First(&user, id)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, res.Error
	}
	return &user, nil
}

func (s *Users) GetByHandle(handle string) (*db.User, error) {
	user := db.User{}
	res := s.db.Where("handle = ?", handle).First(&user)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, res.Error
	}
	return &user, nil
}

func (s *Users) UpdateProfile(userID uint64, patch ProfilePatch) (*db.User, error) {
	user, err := s.GetByID(userID)
	if err != nil {
		return nil, err
	}

	if patch.Name != nil {
		user.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Handle != nil {
		user.Handle = strings.TrimSpace(*patch.Handle)
	}
	if patch.ThemePalette != nil {
		user.ThemePalette = *patch.ThemePalette
	}
	if patch.ButtonStyle != nil {
		user.ButtonStyle = *patch.ButtonStyle
	}

	res := s.db.Model(user).Updates(map[string]interface{}{
		"name":          user.Name,
		"handle":        user.Handle,
		"theme_palette": user.ThemePalette,
		"button_style":  user.ButtonStyle,
	})
	if res.Error != nil {
		return nil, res.Error
	}

	return user, nil
}

// List returns all users newest-first with their link counts, for the admin
// dashboard.
func (s *Users) List() ([]UserWithCount, error) {
	sql, args, err := squirrel.
		Select("u.id", "u.email", "u.name", "u.handle", "u.role", "u.total_views", "u.created_at", "COUNT(l.id) AS link_count").
		From("users u").
		LeftJoin("links l ON l.user_id = u.id").
		GroupBy("u.id", "u.email", "u.name", "u.handle", "u.role", "u.total_views", "u.created_at").
		OrderBy("u.created_at DESC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build sql")
	}

	users := make([]UserWithCount, 0)
	res := s.db.Raw(sql, args...).Scan(&users)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "scan")
	}

	return users, nil
}

func (s *Users) SetRole(userID uint64, role string) error {
	res := s.db.Model(&db.User{}).Where("id = ?", userID).Update("role", role)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Delete removes a user and everything they own in one transaction, so no
// link or group row can outlive its owner.
func (s *Users) Delete(userID uint64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Where("user_id = ?", userID).Delete(&db.Link{})
		if res.Error != nil {
			return errors.Wrap(res.Error, "delete links")
		}
		res = tx.Where("user_id = ?", userID).Delete(&db.LinkGroup{})
		if res.Error != nil {
			return errors.Wrap(res.Error, "delete groups")
		}
		res = tx.Delete(&db.User{}, userID)
		if res.Error != nil {
			return errors.Wrap(res.Error, "delete user")
		}
		if res.RowsAffected == 0 {
			return ErrUserNotFound
		}
		return nil
	})
}

func (s *Users) freeHandle() (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		handle := newHandle()
		var count int64
		res := s.db.Model(&db.User{}).Where("handle = ?", handle).Count(&count)
		if res.Error != nil {
			return "", res.Error
		}
		if count == 0 {
			return handle, nil
		}
	}
	return "", errors.New("could not allocate a free handle")
}

// newHandle returns a 10-hex-character public slug.
func newHandle() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:10]
}

func (s *Users) bcryptGen(pass string) (string, error) {
	passwordHashB, err := bcrypt.GenerateFromPassword([]byte(pass), 14)
	if err != nil {
		return "", errors.Wrap(err, "generate password hash")
	}
	return string(passwordHashB), nil
}

func (s *Users) bcryptCheck(hash, pass string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pass))
}
