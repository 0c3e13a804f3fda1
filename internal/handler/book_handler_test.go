package handler_test

import (
	"net/http"
	"testing"
	"time"

	"library-api/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListBooksScopedToOwnSchool(t *testing.T) {
	db := newTestDB(t)
	e := newTestServer()
	north := createSchool(t, db, "north-high", "North High School")
	south := createSchool(t, db, "south-high", "South High School")
	createBook(t, db, north.ID, "Visible", 1)
	createBook(t, db, south.ID, "Hidden", 1)

	member := createUser(t, db, "member@example.com", model.RoleMember, model.StatusApproved, &north.ID)

	rec, body := doJSON(t, e, http.MethodGet, "/api/books", tokenFor(t, member), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	books := body["books"].([]interface{})
	require.Len(t, books, 1)
	assert.Equal(t, "Visible", books[0].(map[string]interface{})["title"])
	assert.EqualValues(t, 1, body["total"])
}

func TestGetBookFromAnotherSchoolNotFound(t *testing.T) {
	db := newTestDB(t)
	e := newTestServer()
	north := createSchool(t, db, "north-high", "North High School")
	south := createSchool(t, db, "south-high", "South High School")
	foreign := createBook(t, db, south.ID, "Foreign", 1)

	member := createUser(t, db, "member@example.com", model.RoleMember, model.StatusApproved, &north.ID)

	rec, body := doJSON(t, e, http.MethodGet, "/api/books/"+itoa(foreign.ID), tokenFor(t, member), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestDeveloperBrowsesWithExplicitSchool(t *testing.T) {
	db := newTestDB(t)
	e := newTestServer()
	south := createSchool(t, db, "south-high", "South High School")
	createBook(t, db, south.ID, "Southern Book", 1)
	dev := createUser(t, db, "dev@example.com", model.RoleDeveloper, model.StatusApproved, nil)
	token := tokenFor(t, dev)

	// Without school_id the request is rejected.
	rec, _ := doJSON(t, e, http.MethodGet, "/api/books", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := doJSON(t, e, http.MethodGet, "/api/books?school_id="+itoa(south.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["books"].([]interface{}), 1)
}

func TestListBooksSearchAndPagination(t *testing.T) {
	db := newTestDB(t)
	e := newTestServer()
	school := createSchool(t, db, "north-high", "North High School")
	member := createUser(t, db, "member@example.com", model.RoleMember, model.StatusApproved, &school.ID)
	token := tokenFor(t, member)

	createBook(t, db, school.ID, "The Go Programming Language", 1)
	createBook(t, db, school.ID, "Learning Python", 1)
	createBook(t, db, school.ID, "Go in Action", 1)

	rec, body := doJSON(t, e, http.MethodGet, "/api/books?search=go", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["total"])

	rec, body = doJSON(t, e, http.MethodGet, "/api/books?page=2&limit=2", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, body["total"])
	assert.Len(t, body["books"].([]interface{}), 1)
	assert.EqualValues(t, 2, body["page"])
}

func TestCreateBook(t *testing.T) {
	db := newTestDB(t)
	e := newTestServer()
	school := createSchool(t, db, "north-high", "North High School")
	admin := createUser(t, db, "admin@example.com", model.RoleAdmin, model.StatusApproved, &school.ID)
	member := createUser(t, db, "member@example.com", model.RoleMember, model.StatusApproved, &school.ID)

	category := model.Category{SchoolID: school.ID, Name: "Fiction"}
	require.NoError(t, db.Create(&category).Error)

	// Members cannot add to the catalog.
	rec, _ := doJSON(t, e, http.MethodPost, "/api/books", tokenFor(t, member), map[string]interface{}{
		"title": "Nope", "author": "Nobody",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec, body := doJSON(t, e, http.MethodPost, "/api/books", tokenFor(t, admin), map[string]interface{}{
		"title":        "New Arrival",
		"author":       "A. Writer",
		"category_id":  category.ID,
		"total_copies": 3,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.EqualValues(t, 3, body["available"])

	// Unknown category is refused.
	rec, _ = doJSON(t, e, http.MethodPost, "/api/books", tokenFor(t, admin), map[string]interface{}{
		"title": "Orphan", "author": "A. Writer", "category_id": 9999,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateBookAdjustsAvailability(t *testing.T) {
	db := newTestDB(t)
	e := newTestServer()
	school := createSchool(t, db, "north-high", "North High School")
	admin := createUser(t, db, "admin@example.com", model.RoleAdmin, model.StatusApproved, &school.ID)
	book := createBook(t, db, school.ID, "Growing", 2)

	// One copy is out on loan.
	require.NoError(t, db.Model(book).Update("available", 1).Error)

	rec, _ := doJSON(t, e, http.MethodPatch, "/api/books/"+itoa(book.ID), tokenFor(t, admin), map[string]interface{}{
		"title":        "Growing",
		"author":       "Author",
		"total_copies": 5,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var stored model.Book
	require.NoError(t, db.First(&stored, book.ID).Error)
	assert.Equal(t, 5, stored.TotalCopies)
	assert.Equal(t, 4, stored.Available)
}

func TestDeleteBookBlockedByActiveLoans(t *testing.T) {
	db := newTestDB(t)
	e := newTestServer()
	school := createSchool(t, db, "north-high", "North High School")
	admin := createUser(t, db, "admin@example.com", model.RoleAdmin, model.StatusApproved, &school.ID)
	member := createUser(t, db, "member@example.com", model.RoleMember, model.StatusApproved, &school.ID)
	book := createBook(t, db, school.ID, "Wanted", 1)

	loan := model.Loan{
		SchoolID:   school.ID,
		BookID:     book.ID,
		UserID:     member.ID,
		Status:     model.LoanActive,
		BorrowedAt: time.Now(),
		DueAt:      time.Now().AddDate(0, 0, 14),
	}
	require.NoError(t, db.Create(&loan).Error)

	rec, body := doJSON(t, e, http.MethodDelete, "/api/books/"+itoa(book.ID), tokenFor(t, admin), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFLICT", body["code"])

	// After the book comes back, deletion succeeds.
	require.NoError(t, db.Model(&loan).Update("status", model.LoanReturned).Error)

	rec, _ = doJSON(t, e, http.MethodDelete, "/api/books/"+itoa(book.ID), tokenFor(t, admin), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
