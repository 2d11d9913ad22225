package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/punch-attendance-api/internal/models"
	"github.com/noah-isme/punch-attendance-api/internal/service"
	appErrors "github.com/noah-isme/punch-attendance-api/pkg/errors"
)

type fakeUserSrv struct {
	filter  models.UserFilter
	created service.CreateUserRequest
	actorID string
}

func (f *fakeUserSrv) List(_ context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	f.filter = filter
	return []models.User{{ID: "u1"}}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: 1}, nil
}

func (f *fakeUserSrv) Get(_ context.Context, id string) (*models.User, error) {
	return &models.User{ID: id}, nil
}

func (f *fakeUserSrv) Create(_ context.Context, req service.CreateUserRequest, actorID string, _ models.LoginRequest) (*models.User, error) {
	f.created, f.actorID = req, actorID
	if req.Email == "taken@example.com" {
		return nil, appErrors.WithField(appErrors.ErrConflict, "email", "email already registered")
	}
	return &models.User{ID: "u2", Email: req.Email, BatchID: req.BatchID}, nil
}

func (f *fakeUserSrv) Update(_ context.Context, id string, req service.UpdateUserRequest, _ string, _ models.LoginRequest) (*models.User, error) {
	return &models.User{ID: id, FullName: req.FullName}, nil
}

func TestUserHandlerList(t *testing.T) {
	srv := &fakeUserSrv{}
	h := NewUserHandler(srv)

	rec := invoke(h.List, http.MethodGet, "/users?role=student&batch_id=b1&active=true&page=2&page_size=5", nil, adminClaims)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, srv.filter.Role)
	assert.Equal(t, models.RoleStudent, *srv.filter.Role)
	assert.Equal(t, "b1", srv.filter.BatchID)
	require.NotNil(t, srv.filter.Active)
	assert.True(t, *srv.filter.Active)
	assert.Equal(t, 2, srv.filter.Page)
}

func TestUserHandlerCreateAndUpdate(t *testing.T) {
	srv := &fakeUserSrv{}
	h := NewUserHandler(srv)

	body := map[string]interface{}{"email": "s@example.com", "full_name": "S", "role": "STUDENT", "batch_id": "b1", "password": "secret1", "active": true}
	rec := invoke(h.Create, http.MethodPost, "/users", body, adminClaims)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, srv.created.BatchID)
	assert.Equal(t, "b1", *srv.created.BatchID)
	assert.Equal(t, "admin-1", srv.actorID)

	body["email"] = "taken@example.com"
	rec = invoke(h.Create, http.MethodPost, "/users", body, adminClaims)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "email", decode(t, rec).Error.Field)

	rec = invoke(h.Update, http.MethodPatch, "/users/u1", map[string]string{"full_name": "New", "role": "MENTOR"}, adminClaims, gin.Param{Key: "id", Value: "u1"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(decode(t, rec).Data), "New")
}
