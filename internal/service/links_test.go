package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/librepage/librepage-back/internal/db"
)

func TestReorderPersistsDensePermutation(t *testing.T) {
	conn := newTestDB(t)
	s := NewLinks(conn, newTestLogger())
	user := seedUser(t, conn, "reorder@example.com")

	a := seedLink(t, conn, user, "A", 0)
	b := seedLink(t, conn, user, "B", 1)
	c := seedLink(t, conn, user, "C", 2)

	// dragging C to the front yields C=0, A=1, B=2
	err := s.Reorder(user, []LinkOrder{
		{ID: c.ID, Order: 0},
		{ID: a.ID, Order: 1},
		{ID: b.ID, Order: 2},
	})
	require.Nil(t, err)

	links, err := s.List(user, nil, nil, false)
	require.Nil(t, err)
	require.Len(t, links, 3)

	titles := []string{links[0].Title, links[1].Title, links[2].Title}
	assert.Equal(t, []string{"C", "A", "B"}, titles)
	for i, l := range links {
		assert.Equal(t, i, l.Order)
	}
}

func TestReorderSkipsForeignRows(t *testing.T) {
	conn := newTestDB(t)
	s := NewLinks(conn, newTestLogger())
	owner := seedUser(t, conn, "owner@example.com")
	intruder := seedUser(t, conn, "intruder@example.com")

	link := seedLink(t, conn, owner, "mine", 0)

	err := s.Reorder(intruder, []LinkOrder{{ID: link.ID, Order: 99}})
	require.Nil(t, err)

	got := db.Link{}
	require.Nil(t, conn.First(&got, link.ID).Error)
	assert.Equal(t, 0, got.Order)
}

func TestReorderEmptyIsNoop(t *testing.T) {
	conn := newTestDB(t)
	s := NewLinks(conn, newTestLogger())
	user := seedUser(t, conn, "noop@example.com")

	assert.Nil(t, s.Reorder(user, nil))
}

func TestListScopesToOwnerAndFilters(t *testing.T) {
	conn := newTestDB(t)
	s := NewLinks(conn, newTestLogger())
	user := seedUser(t, conn, "list@example.com")
	other := seedUser(t, conn, "other@example.com")

	seedLink(t, conn, user, "plain", 0)
	seedLink(t, conn, other, "foreign", 0)

	social := db.Link{Title: "gh", URL: "https://github.com/x", IsSocial: true, UserID: user.ID}
	require.Nil(t, conn.Create(&social).Error)
	archived := db.Link{Title: "old", URL: "https://example.com/old", Archived: true, UserID: user.ID}
	require.Nil(t, conn.Create(&archived).Error)

	all, err := s.List(user, nil, nil, false)
	require.Nil(t, err)
	assert.Len(t, all, 2) // archived excluded, foreign excluded

	isSocial := true
	socials, err := s.List(user, &isSocial, nil, false)
	require.Nil(t, err)
	require.Len(t, socials, 1)
	assert.Equal(t, "gh", socials[0].Title)

	notSocial := false
	ungrouped, err := s.List(user, &notSocial, nil, true)
	require.Nil(t, err)
	require.Len(t, ungrouped, 1)
	assert.Equal(t, "plain", ungrouped[0].Title)
}

func TestCreateAppendsToScope(t *testing.T) {
	conn := newTestDB(t)
	s := NewLinks(conn, newTestLogger())
	user := seedUser(t, conn, "create@example.com")

	a, err := s.Create(user, "A", "https://example.com/a", nil, false, nil)
	require.Nil(t, err)
	b, err := s.Create(user, "B", "https://example.com/b", nil, false, nil)
	require.Nil(t, err)
	c, err := s.Create(user, "C", "https://example.com/c", nil, false, nil)
	require.Nil(t, err)
	assert.Equal(t, []int{0, 1, 2}, []int{a.Order, b.Order, c.Order})

	// the social section is its own scope and starts from zero
	gh, err := s.Create(user, "gh", "https://github.com/x", nil, true, nil)
	require.Nil(t, err)
	assert.Equal(t, 0, gh.Order)

	// an explicit order is stored verbatim
	five := 5
	pinned, err := s.Create(user, "pinned", "https://example.com/p", &five, false, nil)
	require.Nil(t, err)
	assert.Equal(t, 5, pinned.Order)
}

func TestGroupMoveWithExplicitOrderKeepsJoinedScopeDense(t *testing.T) {
	conn := newTestDB(t)
	s := NewLinks(conn, newTestLogger())
	user := seedUser(t, conn, "collide@example.com")

	group := db.LinkGroup{Name: "work", UserID: user.ID}
	require.Nil(t, conn.Create(&group).Error)
	first := db.Link{Title: "first", URL: "https://example.com/1", GroupID: &group.ID, UserID: user.ID, Order: 0}
	require.Nil(t, conn.Create(&first).Error)
	second := db.Link{Title: "second", URL: "https://example.com/2", GroupID: &group.ID, UserID: user.ID, Order: 1}
	require.Nil(t, conn.Create(&second).Error)

	a := seedLink(t, conn, user, "A", 0)

	// moving into the group at order 0 collides with an existing member
	zero := 0
	moved, err := s.Update(user, a.ID, LinkPatch{GroupID: &group.ID, Order: &zero})
	require.Nil(t, err)

	members, err := s.List(user, nil, &group.ID, false)
	require.Nil(t, err)
	require.Len(t, members, 3)
	for i, m := range members {
		assert.Equal(t, i, m.Order)
	}
	// the incumbent at order 0 wins the tie; the returned link carries its
	// post-squash position
	assert.Equal(t, []string{"first", "A", "second"}, []string{members[0].Title, members[1].Title, members[2].Title})
	assert.Equal(t, 1, moved.Order)
}

func TestUpdateForeignLinkFailsWithoutMutation(t *testing.T) {
	conn := newTestDB(t)
	s := NewLinks(conn, newTestLogger())
	owner := seedUser(t, conn, "owner2@example.com")
	intruder := seedUser(t, conn, "intruder2@example.com")

	link := seedLink(t, conn, owner, "mine", 0)

	title := "stolen"
	_, err := s.Update(intruder, link.ID, LinkPatch{Title: &title})
	assert.ErrorIs(t, err, ErrLinkNotFound)

	got := db.Link{}
	require.Nil(t, conn.First(&got, link.ID).Error)
	assert.Equal(t, "mine", got.Title)
}

func TestArchiveRenumbersVacatedScope(t *testing.T) {
	conn := newTestDB(t)
	s := NewLinks(conn, newTestLogger())
	user := seedUser(t, conn, "archive@example.com")

	seedLink(t, conn, user, "A", 0)
	b := seedLink(t, conn, user, "B", 1)
	seedLink(t, conn, user, "C", 2)

	archived := true
	_, err := s.Update(user, b.ID, LinkPatch{Archived: &archived})
	require.Nil(t, err)

	links, err := s.List(user, nil, nil, false)
	require.Nil(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "A", links[0].Title)
	assert.Equal(t, 0, links[0].Order)
	assert.Equal(t, "C", links[1].Title)
	assert.Equal(t, 1, links[1].Order)
}

func TestGroupMoveAppendsAndRenumbersOldScope(t *testing.T) {
	conn := newTestDB(t)
	s := NewLinks(conn, newTestLogger())
	user := seedUser(t, conn, "move@example.com")

	group := db.LinkGroup{Name: "work", UserID: user.ID}
	require.Nil(t, conn.Create(&group).Error)
	inGroup := db.Link{Title: "existing", URL: "https://example.com/e", GroupID: &group.ID, UserID: user.ID}
	require.Nil(t, conn.Create(&inGroup).Error)

	a := seedLink(t, conn, user, "A", 0)
	seedLink(t, conn, user, "B", 1)
	seedLink(t, conn, user, "C", 2)

	moved, err := s.Update(user, a.ID, LinkPatch{GroupID: &group.ID})
	require.Nil(t, err)
	assert.Equal(t, 1, moved.Order) // appended after the existing group member

	notSocial := false
	ungrouped, err := s.List(user, &notSocial, nil, true)
	require.Nil(t, err)
	require.Len(t, ungrouped, 2)
	assert.Equal(t, 0, ungrouped[0].Order)
	assert.Equal(t, 1, ungrouped[1].Order)
}

func TestDeleteRenumbersScope(t *testing.T) {
	conn := newTestDB(t)
	s := NewLinks(conn, newTestLogger())
	user := seedUser(t, conn, "delete@example.com")

	seedLink(t, conn, user, "A", 0)
	b := seedLink(t, conn, user, "B", 1)
	seedLink(t, conn, user, "C", 2)

	require.Nil(t, s.Delete(user, b.ID))

	links, err := s.List(user, nil, nil, false)
	require.Nil(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, []int{0, 1}, []int{links[0].Order, links[1].Order})
}

func TestDeleteForeignLinkFails(t *testing.T) {
	conn := newTestDB(t)
	s := NewLinks(conn, newTestLogger())
	owner := seedUser(t, conn, "owner3@example.com")
	intruder := seedUser(t, conn, "intruder3@example.com")

	link := seedLink(t, conn, owner, "mine", 0)

	assert.ErrorIs(t, s.Delete(intruder, link.ID), ErrLinkNotFound)

	var count int64
	require.Nil(t, conn.Model(&db.Link{}).Where("id = ?", link.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}
