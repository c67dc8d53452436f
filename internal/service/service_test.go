package service

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/librepage/librepage-back/internal/db"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.Nil(t, err)
	require.Nil(t, db.Migrate(conn))

	return conn
}

func newTestLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}

func seedUser(t *testing.T, conn *gorm.DB, email string) *db.User {
	t.Helper()

	user := db.User{
		Email:  email,
		Name:   "Test User",
		Handle: newHandle(),
		Role:   db.RoleUser,
	}
	require.Nil(t, conn.Create(&user).Error)
	return &user
}

func seedLink(t *testing.T, conn *gorm.DB, user *db.User, title string, order int) *db.Link {
	t.Helper()

	link := db.Link{
		Title:  title,
		URL:    "https://example.com/" + title,
		Order:  order,
		UserID: user.ID,
	}
	require.Nil(t, conn.Create(&link).Error)
	return &link
}
