package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/oksasatya/identity-lifecycle-service/internal/application"
	"github.com/oksasatya/identity-lifecycle-service/internal/infrastructure/memory"
	"github.com/oksasatya/identity-lifecycle-service/pkg/validation"
)

type envelope struct {
	Status  int             `json:"status"`
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Meta    json.RawMessage `json:"meta"`
	Error   json.RawMessage `json:"error"`
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	validation.Init()

	svc := application.NewService(memory.NewIdentityStore(), nil, nil, nil, application.Options{})
	h := NewIdentityHandler(svc, nil, bcrypt.MinCost)

	r := gin.New()
	api := r.Group("/api")
	api.POST("/identities", h.Create)
	api.POST("/identities/social", h.UpsertSocial)
	api.GET("/identities", h.Search)
	api.GET("/identities/by-provider", h.GetByProvider)
	api.GET("/identities/availability", h.Availability)
	api.GET("/identities/stats", h.Stats)
	api.GET("/identities/:id", h.Get)
	api.PATCH("/identities/:id", h.UpdateProfile)
	api.PUT("/identities/:id/status", h.Transition)
	api.DELETE("/identities/:id", h.Delete)
	return r
}

func do(t *testing.T, r *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func createAlice(t *testing.T, r *gin.Engine) application.IdentityView {
	t.Helper()
	w, env := do(t, r, http.MethodPost, "/api/identities", map[string]string{
		"username": "alice",
		"email":    "Alice@Example.com",
		"password": "correct-horse",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var v application.IdentityView
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestCreateIdentity(t *testing.T) {
	r := newTestRouter(t)

	v := createAlice(t, r)
	assert.NotEmpty(t, v.ID)
	assert.Equal(t, "alice@example.com", v.Email)
	assert.Equal(t, "PENDING_VERIFICATION", v.Status)

	t.Run("DuplicateEmail", func(t *testing.T) {
		w, env := do(t, r, http.MethodPost, "/api/identities", map[string]string{
			"username": "alice2",
			"email":    "ALICE@example.com",
			"password": "correct-horse",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.JSONEq(t, `{"field":"email"}`, string(env.Error))
	})

	t.Run("DuplicateUsername", func(t *testing.T) {
		w, env := do(t, r, http.MethodPost, "/api/identities", map[string]string{
			"username": "alice",
			"email":    "other@example.com",
			"password": "correct-horse",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.JSONEq(t, `{"field":"username"}`, string(env.Error))
	})

	t.Run("InvalidPayload", func(t *testing.T) {
		w, env := do(t, r, http.MethodPost, "/api/identities", map[string]string{
			"username": "bob",
			"email":    "not-an-email",
			"password": "short",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		var details map[string]string
		require.NoError(t, json.Unmarshal(env.Error, &details))
		assert.Contains(t, details, "email")
		assert.Contains(t, details, "password")
	})
}

func TestGetIdentity(t *testing.T) {
	r := newTestRouter(t)
	v := createAlice(t, r)

	w, env := do(t, r, http.MethodGet, "/api/identities/"+v.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got application.IdentityView
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, v.ID, got.ID)

	w, _ = do(t, r, http.MethodGet, "/api/identities/does-not-exist", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSocialUpsertRoutes(t *testing.T) {
	r := newTestRouter(t)
	body := map[string]string{
		"provider":    "linkedin",
		"provider_id": "L1",
		"full_name":   "Ann",
	}

	w, env := do(t, r, http.MethodPost, "/api/identities/social", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var first application.IdentityView
	require.NoError(t, json.Unmarshal(env.Data, &first))
	assert.Equal(t, "PENDING_VERIFICATION", first.Status)

	body["full_name"] = "Ann B"
	w, env = do(t, r, http.MethodPost, "/api/identities/social", body)
	require.Equal(t, http.StatusOK, w.Code)
	var second application.IdentityView
	require.NoError(t, json.Unmarshal(env.Data, &second))
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Ann B", second.FullName)

	w, env = do(t, r, http.MethodGet, "/api/identities/by-provider?provider=linkedin&providerId=L1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var found application.IdentityView
	require.NoError(t, json.Unmarshal(env.Data, &found))
	assert.Equal(t, first.ID, found.ID)

	w, _ = do(t, r, http.MethodGet, "/api/identities/by-provider?provider=linkedin", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodPost, "/api/identities/social", map[string]string{"provider_id": "L2"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTransitionRoutes(t *testing.T) {
	r := newTestRouter(t)
	v := createAlice(t, r)

	w, _ := do(t, r, http.MethodDelete, "/api/identities/"+v.ID, nil)
	assert.Equal(t, http.StatusConflict, w.Code, "pending identities cannot be deleted directly")

	w, env := do(t, r, http.MethodPut, "/api/identities/"+v.ID+"/status", map[string]string{"status": "active"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got application.IdentityView
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "ACTIVE", got.Status)

	w, env = do(t, r, http.MethodPut, "/api/identities/"+v.ID+"/status", map[string]string{"status": "PENDING_VERIFICATION"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"from":"ACTIVE","to":"PENDING_VERIFICATION"}`, string(env.Error))

	w, _ = do(t, r, http.MethodPut, "/api/identities/"+v.ID+"/status", map[string]string{"status": "BANNED"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = do(t, r, http.MethodDelete, "/api/identities/"+v.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = do(t, r, http.MethodPut, "/api/identities/"+v.ID+"/status", map[string]string{"status": "ACTIVE"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = do(t, r, http.MethodPut, "/api/identities/missing/status", map[string]string{"status": "ACTIVE"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUpdateProfileRoute(t *testing.T) {
	r := newTestRouter(t)
	v := createAlice(t, r)

	w, env := do(t, r, http.MethodPatch, "/api/identities/"+v.ID, map[string]string{"headline": "Engineer"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got application.IdentityView
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "Engineer", got.Headline)
	assert.Equal(t, "alice@example.com", got.Email)

	w, _ = do(t, r, http.MethodPatch, "/api/identities/"+v.ID, map[string]string{"email": "nope"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchRoute(t *testing.T) {
	r := newTestRouter(t)
	createAlice(t, r)

	w, env := do(t, r, http.MethodGet, "/api/identities?query=ALI&page=0&size=5", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var items []application.IdentityView
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 1)
	assert.Equal(t, "alice", items[0].Username)
	assert.JSONEq(t, `{"page":0,"size":5,"total_count":1}`, string(env.Meta))

	w, env = do(t, r, http.MethodGet, "/api/identities?size=1000", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"page":0,"size":100,"total_count":1}`, string(env.Meta))

	w, env = do(t, r, http.MethodGet, "/api/identities?page=9223372036854775807", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &items))
	assert.Empty(t, items)
	assert.JSONEq(t, `{"page":9223372036854775807,"size":20,"total_count":1}`, string(env.Meta))

	w, _ = do(t, r, http.MethodGet, "/api/identities?page=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAvailabilityAndStatsRoutes(t *testing.T) {
	r := newTestRouter(t)
	createAlice(t, r)

	w, env := do(t, r, http.MethodGet, "/api/identities/availability?email=ALICE@example.com&username=bob", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var av application.Availability
	require.NoError(t, json.Unmarshal(env.Data, &av))
	require.NotNil(t, av.EmailAvailable)
	require.NotNil(t, av.UsernameAvailable)
	assert.False(t, *av.EmailAvailable)
	assert.True(t, *av.UsernameAvailable)

	w, _ = do(t, r, http.MethodGet, "/api/identities/availability", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = do(t, r, http.MethodGet, "/api/identities/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var counts map[string]int64
	require.NoError(t, json.Unmarshal(env.Data, &counts))
	assert.Equal(t, int64(1), counts["PENDING_VERIFICATION"])
}
