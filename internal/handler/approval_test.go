package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Atharva-Mendhulkar/AVARA/internal/domain"
)

type fakeApprovals struct {
	resolveErr   error
	lastApprove  bool
	lastReviewer string

	status    domain.ApprovalStatus
	statusErr error
}

func (f *fakeApprovals) Resolve(_ context.Context, _ string, approve bool, reviewerID string) error {
	f.lastApprove = approve
	f.lastReviewer = reviewerID
	return f.resolveErr
}

func (f *fakeApprovals) Status(_ string) (domain.ApprovalStatus, error) {
	return f.status, f.statusErr
}

func (f *fakeApprovals) Get(_ string) (*domain.ApprovalTicket, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeApprovals) List(_ domain.ApprovalStatus) []*domain.ApprovalTicket {
	return []*domain.ApprovalTicket{}
}

func approvalRouter(s ApprovalService) *chi.Mux {
	h := NewApprovalHandler(s, zap.NewNop())
	r := chi.NewRouter()
	r.Post("/guard/approvals/{actionID}/approve", h.Approve)
	r.Post("/guard/approvals/{actionID}/deny", h.Deny)
	r.Get("/guard/approvals/{actionID}/status", h.Status)
	return r
}

func TestApproveResponse(t *testing.T) {
	svc := &fakeApprovals{}
	r := approvalRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/guard/approvals/tick-1/approve", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	if !svc.lastApprove {
		t.Fatal("approve endpoint must resolve with approve=true")
	}
	// Без аутентификации ревьюер подписывается дефолтным именем.
	if svc.lastReviewer != "human-operator" {
		t.Fatalf("reviewer = %q", svc.lastReviewer)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "APPROVED" || body["action_id"] != "tick-1" {
		t.Fatalf("body = %v", body)
	}
}

func TestDenyResponse(t *testing.T) {
	svc := &fakeApprovals{}
	r := approvalRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/guard/approvals/tick-1/deny", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || svc.lastApprove {
		t.Fatalf("code = %d, approve = %v", rec.Code, svc.lastApprove)
	}
}

func TestResolveConflictAndNotFound(t *testing.T) {
	svc := &fakeApprovals{resolveErr: domain.ErrConflict}
	r := approvalRouter(svc)

	req := httptest.NewRequest(http.MethodPost, "/guard/approvals/tick-1/approve", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Fatalf("conflict: code = %d, want 409", rec.Code)
	}

	svc.resolveErr = domain.ErrNotFound
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/guard/approvals/ghost/approve", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("not found: code = %d, want 404", rec.Code)
	}
}

func TestStatusPolling(t *testing.T) {
	svc := &fakeApprovals{status: domain.StatusPending}
	r := approvalRouter(svc)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/guard/approvals/tick-1/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "PENDING" {
		t.Fatalf("status = %q", body["status"])
	}
}
