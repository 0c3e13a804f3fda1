package handler_test

import (
	"net/http"
	"testing"

	"library-api/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFavorites(t *testing.T) {
	db := newTestDB(t)
	e := newTestServer()
	school := createSchool(t, db, "north-high", "North High School")
	member := createUser(t, db, "member@example.com", model.RoleMember, model.StatusApproved, &school.ID)
	token := tokenFor(t, member)
	book := createBook(t, db, school.ID, "Bookmarked", 1)

	rec, _ := doJSON(t, e, http.MethodPost, "/api/favorites", token, map[string]interface{}{
		"book_id": book.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// Marking twice conflicts.
	rec, _ = doJSON(t, e, http.MethodPost, "/api/favorites", token, map[string]interface{}{"book_id": book.ID})
	assert.Equal(t, http.StatusConflict, rec.Code)

	favorites := doList(t, e, "/api/favorites", token)
	require.Len(t, favorites, 1)

	rec, _ = doJSON(t, e, http.MethodDelete, "/api/favorites/"+itoa(book.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, e, http.MethodDelete, "/api/favorites/"+itoa(book.ID), token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFavoriteForeignBookRefused(t *testing.T) {
	db := newTestDB(t)
	e := newTestServer()
	north := createSchool(t, db, "north-high", "North High School")
	south := createSchool(t, db, "south-high", "South High School")
	foreign := createBook(t, db, south.ID, "Foreign", 1)

	member := createUser(t, db, "member@example.com", model.RoleMember, model.StatusApproved, &north.ID)

	rec, _ := doJSON(t, e, http.MethodPost, "/api/favorites", tokenFor(t, member), map[string]interface{}{
		"book_id": foreign.ID,
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
