package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hongminglow/barrio-seguro-be/internal/assistant"
	"github.com/hongminglow/barrio-seguro-be/internal/auth"
	"github.com/hongminglow/barrio-seguro-be/internal/board"
	"github.com/hongminglow/barrio-seguro-be/internal/clients/identity"
	"github.com/hongminglow/barrio-seguro-be/internal/clients/ipinfo"
	"github.com/hongminglow/barrio-seguro-be/internal/http/respond"
	"github.com/hongminglow/barrio-seguro-be/internal/middleware"
	"github.com/hongminglow/barrio-seguro-be/internal/models"
	"github.com/hongminglow/barrio-seguro-be/internal/models/dto"
	"github.com/hongminglow/barrio-seguro-be/internal/storage/memory"
)

type countingVerifier struct {
	calls atomic.Int32
	err   error
}

func (v *countingVerifier) Verify(context.Context, string) error {
	v.calls.Add(1)
	return v.err
}

type countingResolver struct {
	calls atomic.Int32
	ip    string
	err   error
}

func (r *countingResolver) Lookup(context.Context) (string, error) {
	r.calls.Add(1)
	return r.ip, r.err
}

type fakeGenerator struct {
	last assistant.Request
	resp assistant.Response
	err  error
}

func (g *fakeGenerator) Generate(_ context.Context, req assistant.Request) (assistant.Response, error) {
	g.last = req
	return g.resp, g.err
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type fixture struct {
	router    http.Handler
	store     *memory.Store
	tokens    *auth.TokenManager
	verifier  *countingVerifier
	resolver  *countingResolver
	generator *fakeGenerator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		store:     memory.NewStore(),
		tokens:    auth.NewTokenManager("test-secret", "barrio-test", 0),
		verifier:  &countingVerifier{},
		resolver:  &countingResolver{ip: "190.12.0.7"},
		generator: &fakeGenerator{},
	}
	svc := board.NewService(f.store, logger)

	users := NewAuthHandler(f.store, f.tokens, f.verifier, f.resolver, logger)
	r := chi.NewRouter()
	users.Register(r)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(f.tokens, logger))
		users.RegisterProtected(r)
		NewBoardHandler(svc, logger).Register(r)
		NewAssistantHandler(f.generator, svc, logger).Register(r)
	})
	f.router = r
	return f
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func validRegistration(email string) dto.RegisterRequest {
	return dto.RegisterRequest{
		DNI:             "45678912",
		FirstName:       "Rosa",
		LastName:        "Huamán",
		Phone:           "987654321",
		Email:           email,
		Password:        "supersecret",
		ConfirmPassword: "supersecret",
		Department:      "Lima",
		Province:        "Lima",
		District:        "Miraflores",
		AddressLine1:    "Av. Larco 123",
		BirthDate:       "1990-04-12",
		TermsAccepted:   true,
	}
}

func (f *fixture) register(t *testing.T, req dto.RegisterRequest) string {
	t.Helper()
	status, env := f.do(t, http.MethodPost, "/user/register", "", req)
	require.Equal(t, http.StatusCreated, status, env.Message)
	var tok dto.TokenResponse
	require.NoError(t, json.Unmarshal(env.Data, &tok))
	assert.Equal(t, "bearer", tok.TokenType)
	return tok.AccessToken
}

func TestRegister_IssuesTokenWithProfileClaims(t *testing.T) {
	f := newFixture(t)
	token := f.register(t, validRegistration("Rosa@Example.com"))

	claims, err := f.tokens.Verify(token)
	require.NoError(t, err)
	assert.NotEmpty(t, claims.UserID)
	assert.NotEqual(t, "45678912", claims.UserID)
	assert.Equal(t, "rosa@example.com", claims.Email)
	assert.Equal(t, "Miraflores", claims.District)
	assert.Equal(t, "190.12.0.7", claims.IPSignup)

	user, err := f.store.FindByEmail(context.Background(), "rosa@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, "supersecret", user.PasswordHash)
	assert.True(t, auth.CheckPassword(user.PasswordHash, "supersecret"))
}

func TestRegister_DuplicateEmailSkipsCollaborators(t *testing.T) {
	f := newFixture(t)
	f.register(t, validRegistration("rosa@example.com"))
	require.EqualValues(t, 1, f.verifier.calls.Load())
	require.EqualValues(t, 1, f.resolver.calls.Load())

	status, env := f.do(t, http.MethodPost, "/user/register", "", validRegistration("ROSA@example.com"))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, respond.MsgEmailTaken, env.Message)
	assert.EqualValues(t, 1, f.verifier.calls.Load())
	assert.EqualValues(t, 1, f.resolver.calls.Load())
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)
	cases := map[string]func(*dto.RegisterRequest){
		"missing dni":       func(r *dto.RegisterRequest) { r.DNI = "" },
		"bad email":         func(r *dto.RegisterRequest) { r.Email = "rosa.example.com" },
		"short password":    func(r *dto.RegisterRequest) { r.Password, r.ConfirmPassword = "short", "short" },
		"password mismatch": func(r *dto.RegisterRequest) { r.ConfirmPassword = "different1" },
		"terms rejected":    func(r *dto.RegisterRequest) { r.TermsAccepted = false },
		"bad birth date":    func(r *dto.RegisterRequest) { r.BirthDate = "12/04/1990" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := validRegistration("rosa@example.com")
			mutate(&req)
			status, _ := f.do(t, http.MethodPost, "/user/register", "", req)
			assert.Equal(t, http.StatusBadRequest, status)
		})
	}
	assert.Zero(t, f.verifier.calls.Load())
}

func TestRegister_IdentityFailureCreatesNothing(t *testing.T) {
	for name, tc := range map[string]struct {
		err  error
		want string
	}{
		"mismatch":    {err: identity.ErrMismatch, want: respond.MsgIdentityMismatch},
		"unavailable": {err: identity.ErrUnavailable, want: respond.MsgIdentityUnavailable},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.verifier.err = tc.err

			status, env := f.do(t, http.MethodPost, "/user/register", "", validRegistration("rosa@example.com"))
			assert.Equal(t, http.StatusBadGateway, status)
			assert.Equal(t, tc.want, env.Message)

			_, err := f.store.FindByEmail(context.Background(), "rosa@example.com")
			assert.Error(t, err)
		})
	}
}

func TestRegister_IPLookupFailureDegrades(t *testing.T) {
	f := newFixture(t)
	f.resolver.err = errors.New("timeout")

	token := f.register(t, validRegistration("rosa@example.com"))
	claims, err := f.tokens.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, ipinfo.Unavailable, claims.IPSignup)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	f.register(t, validRegistration("rosa@example.com"))

	status, env := f.do(t, http.MethodPost, "/user/login", "", dto.LoginRequest{Email: "Rosa@example.com", Password: "supersecret"})
	require.Equal(t, http.StatusOK, status)
	var tok dto.TokenResponse
	require.NoError(t, json.Unmarshal(env.Data, &tok))
	claims, err := f.tokens.Verify(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "Miraflores", claims.District)

	status, env = f.do(t, http.MethodPost, "/user/login", "", dto.LoginRequest{Email: "rosa@example.com", Password: "wrongpass"})
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, respond.MsgBadCredentials, env.Message)

	status, _ = f.do(t, http.MethodPost, "/user/login", "", dto.LoginRequest{Email: "nadie@example.com", Password: "supersecret"})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestMe_ReturnsClaims(t *testing.T) {
	f := newFixture(t)
	token := f.register(t, validRegistration("rosa@example.com"))

	status, env := f.do(t, http.MethodGet, "/user/me", token, nil)
	require.Equal(t, http.StatusOK, status)
	var claims auth.Claims
	require.NoError(t, json.Unmarshal(env.Data, &claims))
	assert.Equal(t, "rosa@example.com", claims.Email)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newFixture(t)
	for _, path := range []string{"/user/me", "/messages"} {
		status, env := f.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, status, path)
		assert.Equal(t, respond.MsgInvalidToken, env.Message)
	}
	status, _ := f.do(t, http.MethodPost, "/messages", "not-a-token", dto.PostMessageRequest{MessageContent: "hola"})
	assert.Equal(t, http.StatusUnauthorized, status)
	msgs, err := f.store.Recent(context.Background(), "Miraflores", 6)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestMessages_PostAndReadOwnDistrict(t *testing.T) {
	f := newFixture(t)
	miraflores := f.register(t, validRegistration("rosa@example.com"))
	other := validRegistration("juan@example.com")
	other.District = "Surco"
	surco := f.register(t, other)

	status, env := f.do(t, http.MethodPost, "/messages", miraflores, dto.PostMessageRequest{MessageContent: "Auto sospechoso", IsAlert: true})
	require.Equal(t, http.StatusCreated, status)
	var msg models.Message
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	assert.Equal(t, int64(1), msg.Order)
	assert.Equal(t, "Miraflores", msg.District)
	assert.Equal(t, "Rosa Huamán", msg.FullName)
	assert.True(t, msg.IsAlert)

	status, env = f.do(t, http.MethodGet, "/messages", surco, nil)
	require.Equal(t, http.StatusOK, status)
	var recent dto.RecentMessagesResponse
	require.NoError(t, json.Unmarshal(env.Data, &recent))
	assert.Equal(t, "Surco", recent.District)
	assert.Empty(t, recent.Messages)

	status, env = f.do(t, http.MethodGet, "/messages", miraflores, nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &recent))
	require.Len(t, recent.Messages, 1)
	assert.Equal(t, "Auto sospechoso", recent.Messages[0].MessageContent)
}

func TestMessages_EmptyContentRejected(t *testing.T) {
	f := newFixture(t)
	token := f.register(t, validRegistration("rosa@example.com"))

	status, _ := f.do(t, http.MethodPost, "/messages", token, dto.PostMessageRequest{MessageContent: "  "})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestChat_SendsDistrictHistory(t *testing.T) {
	f := newFixture(t)
	token := f.register(t, validRegistration("rosa@example.com"))
	f.do(t, http.MethodPost, "/messages", token, dto.PostMessageRequest{MessageContent: "Robo en el parque"})
	f.generator.resp = assistant.Response{Text: "Manténgase alerta"}

	status, env := f.do(t, http.MethodPost, "/chat", token, dto.ChatRequest{Query: "¿Qué pasó hoy?"})
	require.Equal(t, http.StatusOK, status)
	var out dto.AssistantResponse
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.Equal(t, "Manténgase alerta", out.Text)

	assert.Equal(t, assistant.TaskChat, f.generator.last.Task)
	assert.Equal(t, "Miraflores", f.generator.last.Inputs["district"])
	require.Len(t, f.generator.last.History, 1)
	assert.Equal(t, assistant.Turn{Author: "Rosa Huamán", Content: "Robo en el parque"}, f.generator.last.History[0])
}

func TestSecurityPlan_RelaysStructuredData(t *testing.T) {
	f := newFixture(t)
	token := f.register(t, validRegistration("rosa@example.com"))
	f.generator.resp = assistant.Response{Data: json.RawMessage(`{"steps":["iluminar la calle"]}`)}

	status, env := f.do(t, http.MethodPost, "/security-plan", token, dto.SecurityPlanRequest{MainTopic: "robos", District: "Barranco"})
	require.Equal(t, http.StatusOK, status)
	var out dto.AssistantResponse
	require.NoError(t, json.Unmarshal(env.Data, &out))
	assert.JSONEq(t, `{"steps":["iluminar la calle"]}`, string(out.Data))

	assert.Equal(t, assistant.TaskSecurityPlan, f.generator.last.Task)
	assert.Equal(t, "Barranco", f.generator.last.Inputs["district"])
	assert.Equal(t, "Lima", f.generator.last.Inputs["province"])

	status, _ = f.do(t, http.MethodPost, "/security-plan", token, dto.SecurityPlanRequest{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAssistant_GeneratorFailures(t *testing.T) {
	f := newFixture(t)
	token := f.register(t, validRegistration("rosa@example.com"))

	f.generator.err = assistant.ErrUnavailable
	status, env := f.do(t, http.MethodPost, "/info-agent", token, dto.InfoAgentRequest{Description: "ruidos de noche"})
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, respond.MsgGeneratorDown, env.Message)

	f.generator.err = errors.Join(assistant.ErrUpstream, errors.New("status 500"))
	status, env = f.do(t, http.MethodPost, "/info-agent", token, dto.InfoAgentRequest{Description: "ruidos de noche"})
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, respond.MsgGeneratorFailed, env.Message)

	status, _ = f.do(t, http.MethodPost, "/info-agent", token, dto.InfoAgentRequest{})
	assert.Equal(t, http.StatusBadRequest, status)
}
