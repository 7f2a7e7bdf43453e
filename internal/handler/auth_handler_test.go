package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/elective-api/internal/models"
	appErrors "github.com/noah-isme/elective-api/pkg/errors"
)

type fakeAuthService struct {
	studentReq models.StudentLoginRequest
	adminReq   models.AdminLoginRequest
	err        error
}

func (f *fakeAuthService) LoginStudent(_ context.Context, req models.StudentLoginRequest) (*models.LoginResponse, error) {
	f.studentReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.LoginResponse{AccessToken: "token", User: models.UserInfo{ID: "s1", Role: models.RoleStudent}}, nil
}

func (f *fakeAuthService) LoginAdmin(_ context.Context, req models.AdminLoginRequest) (*models.LoginResponse, error) {
	f.adminReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &models.LoginResponse{AccessToken: "token", User: models.UserInfo{ID: "a1", Role: models.RoleAdmin}}, nil
}

func TestAuthHandlerStudentLogin(t *testing.T) {
	svc := &fakeAuthService{}
	h := NewAuthHandler(svc)

	c, rec := newTestContext(http.MethodPost, "/auth/student/login", jsonBody(t, map[string]string{"roll_number": "R1", "password": "R1"}), nil)
	c.Request.RemoteAddr = "192.168.1.7:4000"
	h.StudentLogin(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "R1", svc.studentReq.RollNumber)
	assert.Equal(t, "192.168.1.7", svc.studentReq.IP)

	var body models.LoginResponse
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &body))
	assert.Equal(t, "token", body.AccessToken)
}

func TestAuthHandlerAdminLoginInvalidCredentials(t *testing.T) {
	h := NewAuthHandler(&fakeAuthService{err: appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid username or password")})

	c, rec := newTestContext(http.MethodPost, "/auth/admin/login", jsonBody(t, map[string]string{"username": "admin", "password": "nope"}), nil)
	h.AdminLogin(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
