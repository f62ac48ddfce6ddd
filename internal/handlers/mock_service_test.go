package handlers

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"timecourse_control/internal/models"
	"timecourse_control/internal/service"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(_ context.Context, username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}

func (m *mockAuth) GenerateToken(_ context.Context, username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}

func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockCompiler struct {
	problem *models.Problem
	err     error
	lastIn  service.CompileInput
	calls   int
}

func (m *mockCompiler) Compile(_ context.Context, in service.CompileInput) (*models.Problem, error) {
	m.calls++
	m.lastIn = in
	return m.problem, m.err
}

type mockProblems struct {
	problems map[string]*models.Problem
	err      error
}

func (m *mockProblems) Get(_ context.Context, id string) (*models.Problem, error) {
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.problems[id]
	if !ok {
		return nil, service.ErrProblemNotFound
	}
	return p, nil
}

func (m *mockProblems) List(context.Context) ([]models.Problem, error) {
	out := make([]models.Problem, 0, len(m.problems))
	for _, p := range m.problems {
		out = append(out, *p)
	}
	return out, m.err
}

type mockObjective struct {
	evaluation models.Evaluation
	err        error
	lastID     string
	lastIn     service.EvaluateInput
}

func (m *mockObjective) Evaluate(_ context.Context, id string, in service.EvaluateInput) (models.Evaluation, error) {
	m.lastID = id
	m.lastIn = in
	return m.evaluation, m.err
}

type mockEvaluationLog struct {
	mu      sync.Mutex
	resp    []models.Evaluation
	err     error
	filters []service.EvaluationFilter
}

func (m *mockEvaluationLog) List(_ context.Context, f service.EvaluationFilter) ([]models.Evaluation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters = append(m.filters, f)
	var out []models.Evaluation
	for _, e := range m.resp {
		if f.From.IsZero() || !e.OccurredAt.Before(f.From) {
			out = append(out, e)
		}
	}
	return out, m.err
}

func (m *mockEvaluationLog) add(e models.Evaluation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resp = append(m.resp, e)
}

func (m *mockEvaluationLog) lastFilter() service.EvaluationFilter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filters[len(m.filters)-1]
}

type mockHorizon struct {
	out    service.TruncateOutput
	err    error
	lastIn service.TruncateInput
}

func (m *mockHorizon) Truncate(_ context.Context, in service.TruncateInput) (service.TruncateOutput, error) {
	m.lastIn = in
	return m.out, m.err
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandler(s, nil, Options{DefaultInclusive: "left"})
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
