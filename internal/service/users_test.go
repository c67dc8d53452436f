package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/librepage/librepage-back/internal/db"
)

func TestRegisterAssignsHandleAndHashesPassword(t *testing.T) {
	conn := newTestDB(t)
	s := NewUsers(conn, newTestLogger())

	user, err := s.Register("New@Example.COM ", "longenoughpass", " Jane ")
	require.Nil(t, err)

	assert.Equal(t, "new@example.com", user.Email)
	assert.Equal(t, "Jane", user.Name)
	assert.Len(t, user.Handle, 10)
	assert.Equal(t, db.RoleUser, user.Role)
	require.NotNil(t, user.PasswordHash)
	assert.NotEqual(t, "longenoughpass", *user.PasswordHash)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	conn := newTestDB(t)
	s := NewUsers(conn, newTestLogger())

	_, err := s.Register("dupe@example.com", "longenoughpass", "First")
	require.Nil(t, err)

	_, err = s.Register("dupe@example.com", "longenoughpass", "Second")
	assert.ErrorIs(t, err, ErrEmailTaken)

	var count int64
	require.Nil(t, conn.Model(&db.User{}).Where("email = ?", "dupe@example.com").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestLogin(t *testing.T) {
	conn := newTestDB(t)
	s := NewUsers(conn, newTestLogger())

	registered, err := s.Register("login@example.com", "longenoughpass", "Jane")
	require.Nil(t, err)

	user, err := s.Login("login@example.com", "longenoughpass")
	require.Nil(t, err)
	assert.Equal(t, registered.ID, user.ID)

	_, err = s.Login("login@example.com", "wrongpassword")
	assert.ErrorIs(t, err, ErrLoginPasswordDoesNotMatch)

	_, err = s.Login("nobody@example.com", "whatever")
	assert.ErrorIs(t, err, ErrLoginUserNotFound)
}

func TestLoginRejectsOAuthOnlyAccount(t *testing.T) {
	conn := newTestDB(t)
	s := NewUsers(conn, newTestLogger())

	oauthUser := db.User{Email: "oauth@example.com", Name: "OAuth", Handle: newHandle(), Role: db.RoleUser}
	require.Nil(t, conn.Create(&oauthUser).Error)

	_, err := s.Login("oauth@example.com", "anything")
	assert.ErrorIs(t, err, ErrLoginPasswordDoesNotMatch)
}

func TestDeleteCascades(t *testing.T) {
	conn := newTestDB(t)
	s := NewUsers(conn, newTestLogger())
	user := seedUser(t, conn, "cascade@example.com")
	survivor := seedUser(t, conn, "survivor@example.com")

	group := db.LinkGroup{Name: "g", UserID: user.ID}
	require.Nil(t, conn.Create(&group).Error)
	seedLink(t, conn, user, "doomed", 0)
	seedLink(t, conn, survivor, "kept", 0)

	require.Nil(t, s.Delete(user.ID))

	var linkCount, groupCount, userCount int64
	require.Nil(t, conn.Model(&db.Link{}).Where("user_id = ?", user.ID).Count(&linkCount).Error)
	require.Nil(t, conn.Model(&db.LinkGroup{}).Where("user_id = ?", user.ID).Count(&groupCount).Error)
	require.Nil(t, conn.Model(&db.User{}).Where("id = ?", user.ID).Count(&userCount).Error)
	assert.Zero(t, linkCount)
	assert.Zero(t, groupCount)
	assert.Zero(t, userCount)

	// the other user's rows are untouched
	var keptCount int64
	require.Nil(t, conn.Model(&db.Link{}).Where("user_id = ?", survivor.ID).Count(&keptCount).Error)
	assert.Equal(t, int64(1), keptCount)
}

func TestDeleteMissingUser(t *testing.T) {
	conn := newTestDB(t)
	s := NewUsers(conn, newTestLogger())

	assert.ErrorIs(t, s.Delete(9999), ErrUserNotFound)
}

func TestSetRole(t *testing.T) {
	conn := newTestDB(t)
	s := NewUsers(conn, newTestLogger())
	user := seedUser(t, conn, "role@example.com")

	require.Nil(t, s.SetRole(user.ID, db.RoleAdmin))

	got, err := s.GetByID(user.ID)
	require.Nil(t, err)
	assert.Equal(t, db.RoleAdmin, got.Role)

	assert.ErrorIs(t, s.SetRole(9999, db.RoleAdmin), ErrUserNotFound)
}

func TestListIncludesLinkCounts(t *testing.T) {
	conn := newTestDB(t)
	s := NewUsers(conn, newTestLogger())
	user := seedUser(t, conn, "count@example.com")
	seedLink(t, conn, user, "one", 0)
	seedLink(t, conn, user, "two", 1)
	seedUser(t, conn, "empty@example.com")

	users, err := s.List()
	require.Nil(t, err)
	require.Len(t, users, 2)

	byEmail := map[string]UserWithCount{}
	for _, u := range users {
		byEmail[u.Email] = u
	}
	assert.Equal(t, 2, byEmail["count@example.com"].LinkCount)
	assert.Equal(t, 0, byEmail["empty@example.com"].LinkCount)
}

func TestGetByHandle(t *testing.T) {
	conn := newTestDB(t)
	s := NewUsers(conn, newTestLogger())
	user := seedUser(t, conn, "handle@example.com")

	got, err := s.GetByHandle(user.Handle)
	require.Nil(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = s.GetByHandle("missing-handle")
	assert.ErrorIs(t, err, ErrUserNotFound)
}
