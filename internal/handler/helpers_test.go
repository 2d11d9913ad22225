package handler

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/punch-attendance-api/internal/middleware"
	"github.com/noah-isme/punch-attendance-api/internal/models"
)

type apiEnvelope struct {
	Data  json.RawMessage        `json:"data"`
	Meta  map[string]interface{} `json:"meta"`
	Error *struct {
		Code  string `json:"code"`
		Field string `json:"field"`
	} `json:"error"`
}

var (
	studentClaims = &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent}
	mentorClaims  = &models.JWTClaims{UserID: "mentor-1", Role: models.RoleMentor}
	adminClaims   = &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
)

// invoke runs h against a test context with optional claims, path params and JSON body.
func invoke(h gin.HandlerFunc, method, target string, body interface{}, claims *models.JWTClaims, params ...gin.Param) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	var payload []byte
	switch b := body.(type) {
	case nil:
	case string:
		payload = []byte(b)
	default:
		payload, _ = json.Marshal(b)
	}
	c.Request = httptest.NewRequest(method, target, bytes.NewReader(payload))
	if payload != nil {
		c.Request.Header.Set("Content-Type", "application/json")
	}
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	c.Params = params
	h(c)
	c.Writer.WriteHeaderNow()
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) apiEnvelope {
	t.Helper()
	var env apiEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}
