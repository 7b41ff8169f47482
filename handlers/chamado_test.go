package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/models"
	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/services/dispatch"
)

// stubLifecycle returns scripted results for each operation.
type stubLifecycle struct {
	req *models.ServiceRequest
	err error
}

func (s *stubLifecycle) CreateRequest(context.Context, dispatch.CreateRequestInput) (*models.ServiceRequest, error) {
	return s.req, s.err
}
func (s *stubLifecycle) GetRequest(context.Context, string) (*models.ServiceRequest, error) {
	return s.req, s.err
}
func (s *stubLifecycle) SearchSession(string) (*models.SearchSession, bool) { return nil, false }
func (s *stubLifecycle) Cancel(context.Context, string, models.Party, models.CancelReason, string) (*models.ServiceRequest, error) {
	return s.req, s.err
}
func (s *stubLifecycle) RetrySearch(context.Context, string) (*models.ServiceRequest, error) {
	return s.req, s.err
}
func (s *stubLifecycle) ProviderEngage(context.Context, string, string) (*models.ServiceRequest, error) {
	return s.req, s.err
}
func (s *stubLifecycle) ProviderDecline(context.Context, string, string) (*models.ServiceRequest, error) {
	return s.req, s.err
}
func (s *stubLifecycle) Propose(context.Context, string, models.Party, float64) (*models.ServiceRequest, error) {
	return s.req, s.err
}
func (s *stubLifecycle) AcceptProposal(context.Context, string, models.Party) (*models.ServiceRequest, error) {
	return s.req, s.err
}
func (s *stubLifecycle) SetDirectPayment(context.Context, string, bool) (*models.ServiceRequest, error) {
	return s.req, s.err
}
func (s *stubLifecycle) ConfirmAndProceed(context.Context, string) (*models.ServiceRequest, error) {
	return s.req, s.err
}
func (s *stubLifecycle) BeginPayment(context.Context, string, models.PaymentMethod) (*models.PaymentIntent, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.PaymentIntent{Handle: "intent-1", Confirmed: true}, nil
}
func (s *stubLifecycle) PaymentState(string) models.PaymentState { return models.PaymentStateIdle }
func (s *stubLifecycle) CompleteService(context.Context, string, string) (*models.ServiceRequest, error) {
	return s.req, s.err
}
func (s *stubLifecycle) ConfirmCompletion(context.Context, string) (*models.ServiceRequest, error) {
	return s.req, s.err
}

func newTestRouter(svc dispatch.LifecycleService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewChamadoHandler(svc, zap.NewNop())
	r := gin.New()
	r.POST("/api/chamados", h.CreateRequest)
	r.GET("/api/chamados/:id", h.GetRequest)
	r.POST("/api/chamados/:id/propose", h.Propose)
	r.POST("/api/chamados/:id/engage", h.Engage)
	return r
}

func doJSON(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateRequestHandler(t *testing.T) {
	t.Run("invalid json", func(t *testing.T) {
		r := newTestRouter(&stubLifecycle{})
		w := doJSON(r, http.MethodPost, "/api/chamados", "{")
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})

	t.Run("created", func(t *testing.T) {
		stub := &stubLifecycle{req: &models.ServiceRequest{
			ID:     "req-1",
			Status: models.StatusSearching,
		}}
		r := newTestRouter(stub)
		w := doJSON(r, http.MethodPost, "/api/chamados",
			`{"clientId":"c-1","serviceType":"tire","origin":{"geo":{"type":"Point","coordinates":[-46.63,-23.55]}}}`)
		if w.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
		}
		var got models.ServiceRequest
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
			t.Fatalf("bad response body: %v", err)
		}
		if got.ID != "req-1" || got.Status != models.StatusSearching {
			t.Fatalf("unexpected body: %+v", got)
		}
	})

	t.Run("validation error maps to 400", func(t *testing.T) {
		r := newTestRouter(&stubLifecycle{err: dispatch.ErrInvalidValue})
		w := doJSON(r, http.MethodPost, "/api/chamados",
			`{"clientId":"c-1","serviceType":"tire","origin":{"geo":{"type":"Point","coordinates":[-46.63,-23.55]}}}`)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("expected 400, got %d", w.Code)
		}
	})
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", dispatch.ErrRequestNotFound, http.StatusNotFound},
		{"invalid transition", dispatch.ErrInvalidTransition, http.StatusConflict},
		{"invalid value", dispatch.ErrInvalidValue, http.StatusBadRequest},
		{"search exhausted", dispatch.ErrSearchExhausted, http.StatusConflict},
		{"payment failed", dispatch.ErrPaymentFailed, http.StatusPaymentRequired},
		{"external unavailable", dispatch.ErrExternalUnavailable, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := newTestRouter(&stubLifecycle{err: tc.err})
			w := doJSON(r, http.MethodPost, "/api/chamados/req-1/engage", `{"providerId":"p-1"}`)
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, w.Code)
			}
		})
	}
}

func TestProposeHandlerBindsValue(t *testing.T) {
	stub := &stubLifecycle{req: &models.ServiceRequest{ID: "req-1", Status: models.StatusNegotiating}}
	r := newTestRouter(stub)

	w := doJSON(r, http.MethodPost, "/api/chamados/req-1/propose", `{"by":"provider","value":250}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(r, http.MethodPost, "/api/chamados/req-1/propose", `{"by":"provider"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing value, got %d", w.Code)
	}
}
