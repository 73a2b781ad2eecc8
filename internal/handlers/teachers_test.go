package handlers_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/teacherrate/internal/handlers/testutil"
	"github.com/charlesng35/teacherrate/internal/models"
)

func TestTeacherHandler_WritesRequireAdmin(t *testing.T) {
	env := testutil.NewEnv(t)
	user := env.CreateUser("secret1", false)
	body := map[string]string{"name": "Ada Lovelace", "role": "Lecturer", "unit": "Computing"}

	anon := env.Request(http.MethodPost, "/api/teachers", body, "")
	require.Equal(t, http.StatusUnauthorized, anon.Code)

	forbidden := env.Request(http.MethodPost, "/api/teachers", body, env.Token(user))
	require.Equal(t, http.StatusForbidden, forbidden.Code)

	var count int64
	require.NoError(t, env.DB.Model(&models.Teacher{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestTeacherHandler_CRUD(t *testing.T) {
	env := testutil.NewEnv(t)
	admin := env.CreateUser("secret1", true)
	token := env.Token(admin)

	created := env.Request(http.MethodPost, "/api/teachers", map[string]string{
		"name":  "  Ada   Lovelace ",
		"role":  "Lecturer",
		"unit":  "Computing",
		"email": "ADA@example.com",
	}, token)
	require.Equal(t, http.StatusCreated, created.Code, created.Body.String())

	var teacher models.TeacherWithStats
	testutil.DecodeInto(t, testutil.DecodeResponse(t, created).Data, &teacher)
	require.NotZero(t, teacher.ID)
	require.Equal(t, "Ada Lovelace", teacher.Name)
	require.Equal(t, "ada@example.com", teacher.Email)
	require.Zero(t, teacher.AvgRating)
	require.Zero(t, teacher.RatingCount)

	duplicate := env.Request(http.MethodPost, "/api/teachers", map[string]string{
		"name": "Ada Lovelace", "role": "Lecturer", "unit": "Computing",
	}, token)
	require.Equal(t, http.StatusConflict, duplicate.Code)
	require.Equal(t, "DUPLICATE_TEACHER", testutil.DecodeResponse(t, duplicate).Error.Code)

	invalid := env.Request(http.MethodPost, "/api/teachers", map[string]string{"name": "No Unit", "role": "Lecturer"}, token)
	require.Equal(t, http.StatusBadRequest, invalid.Code)
	require.Equal(t, "unit", testutil.DecodeResponse(t, invalid).Error.Details["field"])

	path := fmt.Sprintf("/api/teachers/%d", teacher.ID)

	got := env.Request(http.MethodGet, path, nil, "")
	require.Equal(t, http.StatusOK, got.Code)

	updated := env.Request(http.MethodPut, path, map[string]any{"room": "B-12", "avg_rating": 5}, token)
	require.Equal(t, http.StatusOK, updated.Code, updated.Body.String())
	var afterUpdate models.TeacherWithStats
	testutil.DecodeInto(t, testutil.DecodeResponse(t, updated).Data, &afterUpdate)
	require.Equal(t, "B-12", afterUpdate.Room)
	require.Equal(t, "Ada Lovelace", afterUpdate.Name)
	require.Zero(t, afterUpdate.AvgRating)

	deleted := env.Request(http.MethodDelete, path, nil, token)
	require.Equal(t, http.StatusNoContent, deleted.Code)

	missing := env.Request(http.MethodGet, path, nil, "")
	require.Equal(t, http.StatusNotFound, missing.Code)
	require.Equal(t, "TEACHER_NOT_FOUND", testutil.DecodeResponse(t, missing).Error.Code)
}

func TestTeacherHandler_ListSortAndFilter(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateTeacher("Charlie Brown")
	env.CreateTeacher("Alice Smith")
	best := env.CreateTeacher("Bob Stone")
	require.NoError(t, env.DB.Model(best).Update("avg_rating", 4.5).Error)

	byName := env.Request(http.MethodGet, "/api/teachers", nil, "")
	require.Equal(t, http.StatusOK, byName.Code)
	payload := testutil.DecodeResponse(t, byName)
	require.Equal(t, 3, payload.Meta.Total)
	var teachers []models.TeacherWithStats
	testutil.DecodeInto(t, payload.Data, &teachers)
	require.Equal(t, "Alice Smith", teachers[0].Name)

	byRating := env.Request(http.MethodGet, "/api/teachers?sort=rating", nil, "")
	require.Equal(t, http.StatusOK, byRating.Code)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, byRating).Data, &teachers)
	require.Equal(t, "Bob Stone", teachers[0].Name)

	filtered := env.Request(http.MethodGet, "/api/teachers?q=smi", nil, "")
	require.Equal(t, http.StatusOK, filtered.Code)
	testutil.DecodeInto(t, testutil.DecodeResponse(t, filtered).Data, &teachers)
	require.Len(t, teachers, 1)
	require.Equal(t, "Alice Smith", teachers[0].Name)

	badSort := env.Request(http.MethodGet, "/api/teachers?sort=popularity", nil, "")
	require.Equal(t, http.StatusBadRequest, badSort.Code)
	badPayload := testutil.DecodeResponse(t, badSort)
	require.Equal(t, "VALIDATION_ERROR", badPayload.Error.Code)
	require.Equal(t, "sort", badPayload.Error.Details["field"])
}

func TestTeacherHandler_SearchFallsBackToNameMatch(t *testing.T) {
	env := testutil.NewEnv(t)
	env.CreateTeacher("Grace Hopper")
	env.CreateTeacher("Alan Turing")

	resp := env.Request(http.MethodGet, "/api/teachers/search?q=hop&limit=5", nil, "")
	require.Equal(t, http.StatusOK, resp.Code)

	var teachers []models.TeacherWithStats
	testutil.DecodeInto(t, testutil.DecodeResponse(t, resp).Data, &teachers)
	require.Len(t, teachers, 1)
	require.Equal(t, "Grace Hopper", teachers[0].Name)
}

func TestTeacherHandler_InvalidID(t *testing.T) {
	env := testutil.NewEnv(t)

	for _, path := range []string{"/api/teachers/abc", "/api/teachers/0", "/api/teachers/-1"} {
		resp := env.Request(http.MethodGet, path, nil, "")
		require.Equal(t, http.StatusBadRequest, resp.Code, path)
		require.Equal(t, "BAD_REQUEST", testutil.DecodeResponse(t, resp).Error.Code)
	}
}
