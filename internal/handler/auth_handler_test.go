package handler_test

import (
	"net/http"
	"testing"

	"library-api/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterCreatesPendingMembership(t *testing.T) {
	db := newTestDB(t)
	e := newTestServer()
	school := createSchool(t, db, "north-high", "North High School")

	rec, body := doJSON(t, e, http.MethodPost, "/auth/register", "", map[string]interface{}{
		"email":          "student@example.com",
		"password":       "secret123",
		"name":           "A Student",
		"school_slug":    school.Slug,
		"class":          "10",
		"section":        "B",
		"student_number": "42",
	})

	require.Equal(t, http.StatusCreated, rec.Code)
	user := body["user"].(map[string]interface{})
	assert.Equal(t, model.StatusPending, user["status"])

	var stored model.User
	require.NoError(t, db.Where("email = ?", "student@example.com").First(&stored).Error)
	assert.Equal(t, model.RoleMember, stored.Role)
	assert.Equal(t, model.StatusPending, stored.Status)
	require.NotNil(t, stored.SchoolID)
	assert.Equal(t, school.ID, *stored.SchoolID)
}

func TestRegisterValidation(t *testing.T) {
	db := newTestDB(t)
	e := newTestServer()
	school := createSchool(t, db, "north-high", "North High School")

	t.Run("non-numeric student number", func(t *testing.T) {
		rec, body := doJSON(t, e, http.MethodPost, "/auth/register", "", map[string]interface{}{
			"email":          "a@example.com",
			"password":       "secret123",
			"school_slug":    school.Slug,
			"student_number": "abc",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "VALIDATION", body["code"])
	})

	t.Run("unknown school slug", func(t *testing.T) {
		rec, body := doJSON(t, e, http.MethodPost, "/auth/register", "", map[string]interface{}{
			"email":       "a@example.com",
			"password":    "secret123",
			"school_slug": "no-such-school",
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "NOT_FOUND", body["code"])
	})

	t.Run("inactive school refuses registration", func(t *testing.T) {
		inactive := createSchool(t, db, "closed-high", "Closed High")
		require.NoError(t, db.Model(inactive).Update("active", false).Error)

		rec, _ := doJSON(t, e, http.MethodPost, "/auth/register", "", map[string]interface{}{
			"email":       "a@example.com",
			"password":    "secret123",
			"school_slug": inactive.Slug,
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRegisterDuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	e := newTestServer()
	school := createSchool(t, db, "north-high", "North High School")
	createUser(t, db, "taken@example.com", model.RoleMember, model.StatusPending, &school.ID)

	rec, body := doJSON(t, e, http.MethodPost, "/auth/register", "", map[string]interface{}{
		"email":       "taken@example.com",
		"password":    "secret123",
		"school_slug": school.Slug,
	})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFLICT", body["code"])
}

func TestRegisterRejectedEmailStaysBlocked(t *testing.T) {
	db := newTestDB(t)
	e := newTestServer()
	school := createSchool(t, db, "north-high", "North High School")
	createUser(t, db, "rejected@example.com", model.RoleMember, model.StatusRejected, &school.ID)

	rec, body := doJSON(t, e, http.MethodPost, "/auth/register", "", map[string]interface{}{
		"email":       "rejected@example.com",
		"password":    "secret123",
		"school_slug": school.Slug,
	})

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", body["code"])
}

func TestLogin(t *testing.T) {
	db := newTestDB(t)
	e := newTestServer()
	school := createSchool(t, db, "north-high", "North High School")

	t.Run("approved member receives token and state", func(t *testing.T) {
		createUser(t, db, "member@example.com", model.RoleMember, model.StatusApproved, &school.ID)

		rec, body := doJSON(t, e, http.MethodPost, "/auth/login", "", map[string]interface{}{
			"email":    "member@example.com",
			"password": "secret123",
		})

		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, body["token"])
		assert.Equal(t, "MEMBER_APPROVED", body["state"])
	})

	t.Run("wrong password", func(t *testing.T) {
		rec, body := doJSON(t, e, http.MethodPost, "/auth/login", "", map[string]interface{}{
			"email":    "member@example.com",
			"password": "wrong",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "AUTH_INVALID", body["code"])
	})

	t.Run("rejected membership cannot log in", func(t *testing.T) {
		createUser(t, db, "outcast@example.com", model.RoleMember, model.StatusRejected, &school.ID)

		rec, body := doJSON(t, e, http.MethodPost, "/auth/login", "", map[string]interface{}{
			"email":    "outcast@example.com",
			"password": "secret123",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Equal(t, "AUTH_REJECTED", body["code"])
	})
}

// Full workflow: register, admin approves, profile shows the approved
// membership with its school.
func TestApprovalWorkflow(t *testing.T) {
	db := newTestDB(t)
	e := newTestServer()
	school := createSchool(t, db, "north-high", "North High School")
	admin := createUser(t, db, "admin@example.com", model.RoleAdmin, model.StatusApproved, &school.ID)

	rec, _ := doJSON(t, e, http.MethodPost, "/auth/register", "", map[string]interface{}{
		"email":       "newbie@example.com",
		"password":    "secret123",
		"school_slug": school.Slug,
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var member model.User
	require.NoError(t, db.Where("email = ?", "newbie@example.com").First(&member).Error)

	// While pending, the member is held at the gate.
	memberToken := tokenFor(t, &member)
	rec, body := doJSON(t, e, http.MethodGet, "/api/books", memberToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, body["error"], "pending")

	// Admin sees the pending membership and approves it.
	adminToken := tokenFor(t, admin)
	rec, _ = doJSON(t, e, http.MethodGet, "/api/users/pending", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, e, http.MethodPost, "/api/users/"+itoa(member.ID)+"/approve", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// Profile now reflects the approval and carries the school object.
	rec, body = doJSON(t, e, http.MethodGet, "/api/users/profile", memberToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	user := body["user"].(map[string]interface{})
	assert.Equal(t, model.StatusApproved, user["status"])
	require.NotNil(t, user["school"])
	assert.Equal(t, "north-high", user["school"].(map[string]interface{})["slug"])
	assert.Equal(t, "MEMBER_APPROVED", body["state"])
}

// Rejection is a forced sign-out: the stored status wins over the token,
// so the next profile check answers AUTH_REJECTED.
func TestRejectionForcesSignOut(t *testing.T) {
	db := newTestDB(t)
	e := newTestServer()
	school := createSchool(t, db, "north-high", "North High School")
	admin := createUser(t, db, "admin@example.com", model.RoleAdmin, model.StatusApproved, &school.ID)
	member := createUser(t, db, "member@example.com", model.RoleMember, model.StatusPending, &school.ID)

	memberToken := tokenFor(t, member)
	adminToken := tokenFor(t, admin)

	rec, _ := doJSON(t, e, http.MethodPost, "/api/users/"+itoa(member.ID)+"/reject", adminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body := doJSON(t, e, http.MethodGet, "/api/users/profile", memberToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "AUTH_REJECTED", body["code"])
}

func TestApprovalDecisionRules(t *testing.T) {
	db := newTestDB(t)
	e := newTestServer()
	school := createSchool(t, db, "north-high", "North High School")
	admin := createUser(t, db, "admin@example.com", model.RoleAdmin, model.StatusApproved, &school.ID)
	adminToken := tokenFor(t, admin)

	t.Run("rejected membership may be re-approved", func(t *testing.T) {
		member := createUser(t, db, "second-chance@example.com", model.RoleMember, model.StatusRejected, &school.ID)

		rec, _ := doJSON(t, e, http.MethodPost, "/api/users/"+itoa(member.ID)+"/approve", adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var stored model.User
		require.NoError(t, db.First(&stored, member.ID).Error)
		assert.Equal(t, model.StatusApproved, stored.Status)
	})

	t.Run("approved membership cannot be decided again", func(t *testing.T) {
		member := createUser(t, db, "done@example.com", model.RoleMember, model.StatusApproved, &school.ID)

		rec, body := doJSON(t, e, http.MethodPost, "/api/users/"+itoa(member.ID)+"/reject", adminToken, nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "CONFLICT", body["code"])
	})

	t.Run("admin cannot decide another school's membership", func(t *testing.T) {
		other := createSchool(t, db, "south-high", "South High School")
		stranger := createUser(t, db, "stranger@example.com", model.RoleMember, model.StatusPending, &other.ID)

		rec, _ := doJSON(t, e, http.MethodPost, "/api/users/"+itoa(stranger.ID)+"/approve", adminToken, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
