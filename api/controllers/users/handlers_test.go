package users

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/sportedge/sportedge-backend/api/middleware"
	usersvc "github.com/sportedge/sportedge-backend/internal/users"
	"github.com/sportedge/sportedge-backend/pkg/enums"
	pkgerrors "github.com/sportedge/sportedge-backend/pkg/errors"
	"github.com/sportedge/sportedge-backend/pkg/logger"
	"github.com/sportedge/sportedge-backend/pkg/pagination"
)

type fakeUsers struct {
	usersvc.Service

	profile     *usersvc.ProfileInput
	passwordErr error
	roleActor   uuid.UUID
	roleTarget  uuid.UUID
	role        enums.UserRole
}

func (f *fakeUsers) Me(_ context.Context, userID uuid.UUID) (*usersvc.UserDTO, error) {
	return &usersvc.UserDTO{ID: userID, Email: "me@example.com"}, nil
}

func (f *fakeUsers) UpdateProfile(_ context.Context, userID uuid.UUID, in usersvc.ProfileInput) (*usersvc.UserDTO, error) {
	f.profile = &in
	return &usersvc.UserDTO{ID: userID, FirstName: in.FirstName}, nil
}

func (f *fakeUsers) ChangePassword(context.Context, uuid.UUID, usersvc.ChangePasswordInput) error {
	return f.passwordErr
}

func (f *fakeUsers) ListUsers(_ context.Context, params pagination.Params) (pagination.Page[usersvc.UserDTO], error) {
	return pagination.NewPage([]usersvc.UserDTO{}, params, 0), nil
}

func (f *fakeUsers) SetRole(_ context.Context, actorID, userID uuid.UUID, role enums.UserRole) (*usersvc.UserDTO, error) {
	f.roleActor, f.roleTarget, f.role = actorID, userID, role
	if actorID == userID {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "admins cannot demote themselves")
	}
	return &usersvc.UserDTO{ID: userID, Role: role}, nil
}

func router(svc usersvc.Service) http.Handler {
	logg := logger.Nop()
	r := chi.NewRouter()
	r.Get("/me", Me(svc, logg))
	r.Put("/me", UpdateProfile(svc, logg))
	r.Post("/me/password", ChangePassword(svc, logg))
	r.Get("/admin/users", List(svc, logg))
	r.Put("/admin/users/{userId}/role", SetRole(svc, logg))
	return r
}

func as(req *http.Request, userID uuid.UUID) *http.Request {
	return req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
}

func TestMe(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	router(&fakeUsers{}).ServeHTTP(rec, as(httptest.NewRequest(http.MethodGet, "/me", nil), uuid.New()))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "me@example.com")
}

func TestUpdateProfileValidates(t *testing.T) {
	t.Parallel()

	svc := &fakeUsers{}
	rec := httptest.NewRecorder()
	router(svc).ServeHTTP(rec, as(httptest.NewRequest(http.MethodPut, "/me", strings.NewReader(`{"first_name":"Ana"}`)), uuid.New()))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Nil(t, svc.profile)

	body := `{"first_name":"Ana","last_name":"Lee","country":"US","city":"Austin","address":"1 Main St"}`
	rec = httptest.NewRecorder()
	router(svc).ServeHTTP(rec, as(httptest.NewRequest(http.MethodPut, "/me", strings.NewReader(body)), uuid.New()))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Ana", svc.profile.FirstName)
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	t.Parallel()

	svc := &fakeUsers{passwordErr: pkgerrors.New(pkgerrors.CodeUnauthorized, "current password is incorrect")}
	body := `{"current_password":"old-pass","new_password":"new-password"}`
	rec := httptest.NewRecorder()
	router(svc).ServeHTTP(rec, as(httptest.NewRequest(http.MethodPost, "/me/password", strings.NewReader(body)), uuid.New()))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	svc.passwordErr = nil
	rec = httptest.NewRecorder()
	router(svc).ServeHTTP(rec, as(httptest.NewRequest(http.MethodPost, "/me/password", strings.NewReader(body)), uuid.New()))
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestSetRole(t *testing.T) {
	t.Parallel()

	svc := &fakeUsers{}
	actor := uuid.New()
	target := uuid.New()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/admin/users/"+target.String()+"/role", strings.NewReader(`{"role":"admin"}`))
	router(svc).ServeHTTP(rec, as(req, actor))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, actor, svc.roleActor)
	require.Equal(t, target, svc.roleTarget)
	require.Equal(t, enums.UserRoleAdmin, svc.role)
}

func TestSetRoleRejectsUnknownRole(t *testing.T) {
	t.Parallel()

	svc := &fakeUsers{}
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/admin/users/"+uuid.NewString()+"/role", strings.NewReader(`{"role":"owner"}`))
	router(svc).ServeHTTP(rec, as(req, uuid.New()))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, svc.role)
}

func TestSetRoleOnSelfConflicts(t *testing.T) {
	t.Parallel()

	self := uuid.New()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/admin/users/"+self.String()+"/role", strings.NewReader(`{"role":"user"}`))
	router(&fakeUsers{}).ServeHTTP(rec, as(req, self))
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestListUsers(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	router(&fakeUsers{}).ServeHTTP(rec, as(httptest.NewRequest(http.MethodGet, "/admin/users?page_size=5", nil), uuid.New()))
	require.Equal(t, http.StatusOK, rec.Code)
}
