package openapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/crmauth/testutils"
	"gopkg.in/yaml.v3"
)

type loginBody struct {
	Email    string `json:"email" example:"jane@example.com"`
	Password string `json:"password"`
}

type sessionData struct {
	AccessToken string  `json:"accessToken"`
	ExpiresIn   int     `json:"expiresIn" doc:"seconds until the access token expires"`
	Device      *string `json:"device,omitempty"`
}

func documented(t *testing.T) *OpenAPI {
	t.Helper()
	docs := ProvideDocs(testutils.GetTestConfig())

	docs.Document(http.MethodPost, "/auth/login").
		OperationID("login").
		Tags("auth").
		Summary("Sign in").
		Body(loginBody{}, "Credentials").
		ResponseWithCookie(http.StatusOK, sessionData{}, "Signed in").
		Errors(
			Fail(http.StatusUnauthorized, "INVALID_CREDENTIALS"),
			Fail(http.StatusForbidden, "ACCOUNT_DEACTIVATED"),
			Fail(http.StatusUnauthorized, "NO_TOKEN"),
		).
		NoSecurity().
		Build()

	docs.Document(http.MethodDelete, "/auth/api-keys/:id").
		OperationID("revokeApiKey").
		PathParam("id", "API key id").
		Response(http.StatusOK, nil, "Revoked").
		Security(BearerScheme, APIKeyScheme).
		Build()

	return docs
}

func TestDocumentedOperations(t *testing.T) {
	docs := documented(t)
	spec := docs.Spec()

	login := spec.Paths.Find("/auth/login")
	require.NotNil(t, login)
	require.NotNil(t, login.Post)
	assert.Equal(t, "login", login.Post.OperationID)

	ok := login.Post.Responses.Status(http.StatusOK)
	require.NotNil(t, ok)
	assert.Contains(t, ok.Value.Headers, "Set-Cookie")

	unauthorized := login.Post.Responses.Status(http.StatusUnauthorized)
	require.NotNil(t, unauthorized)
	assert.Contains(t, *unauthorized.Value.Description, "INVALID_CREDENTIALS, NO_TOKEN")

	revoke := spec.Paths.Find("/auth/api-keys/{id}")
	require.NotNil(t, revoke)
	require.NotNil(t, revoke.Delete)
	require.Len(t, revoke.Delete.Parameters, 1)
	assert.Equal(t, "id", revoke.Delete.Parameters[0].Value.Name)
	assert.True(t, revoke.Delete.Parameters[0].Value.Required)
	assert.Len(t, *revoke.Delete.Security, 2)

	assert.Contains(t, spec.Components.Schemas, "sessionData")
	assert.Contains(t, spec.Components.Schemas, "ErrorResponse")
	assert.Contains(t, spec.Components.SecuritySchemes, RefreshScheme)
}

func TestStructSchemas(t *testing.T) {
	docs := documented(t)
	schema := docs.Spec().Components.Schemas["sessionData"].Value

	assert.ElementsMatch(t, []string{"accessToken", "expiresIn"}, schema.Required)
	assert.Equal(t, "seconds until the access token expires", schema.Properties["expiresIn"].Value.Description)
	assert.True(t, schema.Properties["device"].Value.Nullable)
}

func TestValidate(t *testing.T) {
	require.NoError(t, documented(t).Validate(context.Background()))
}

func TestMountServesDocument(t *testing.T) {
	docs := documented(t)
	e := echo.New()
	docs.Mount(e.Group("/api"), "/docs/")

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/docs/openapi.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"/auth/login"`)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/docs/openapi.yaml", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/yaml", rec.Header().Get(echo.HeaderContentType))

	var parsed map[string]any
	require.NoError(t, yaml.Unmarshal(rec.Body.Bytes(), &parsed))
	assert.Equal(t, "3.0.3", parsed["openapi"])
}

func TestEchoPathToOpenAPI(t *testing.T) {
	assert.Equal(t, "/auth/reset-password/{token}", echoPathToOpenAPI("/auth/reset-password/:token"))
	assert.Equal(t, "/auth/me", echoPathToOpenAPI("/auth/me"))
}
