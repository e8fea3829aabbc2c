package handlers_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"viba/internal/domain"
)

func TestJobsLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t, &stubService{describeText: testDescription})

	rec := env.do(t, http.MethodPost, "/api/v1/generations/derivations", map[string]any{
		"image":         testImageB64(),
		"mediaType":     "image/png",
		"intensity":     5,
		"saveToHistory": false,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("generation failed: %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/v1/jobs", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("jobs list status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	items, ok := body["items"].([]any)
	if !ok || len(items) != 1 {
		t.Fatalf("items = %v, want 1 job", body["items"])
	}
	job := items[0].(map[string]any)
	if job["status"] != "completed" {
		t.Fatalf("job status = %v, want completed", job["status"])
	}
	id := job["id"].(string)

	rec = env.do(t, http.MethodGet, "/api/v1/jobs/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("job get status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, "/api/v1/jobs/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("job delete status = %d, body = %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodGet, "/api/v1/jobs/"+id, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("deleted job still visible: %d", rec.Code)
	}
}

func TestJobRetryOverHTTP(t *testing.T) {
	service := &stubService{describeText: testDescription, generateErr: domain.ErrQuotaExceeded}
	env := newTestEnv(t, service)

	rec := env.do(t, http.MethodPost, "/api/v1/generations/swap", map[string]any{
		"sourceImage": testImageB64(),
		"sceneImage":  testImageB64(),
	})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected quota failure, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/jobs", nil)
	items := decodeBody(t, rec)["items"].([]any)
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
	job := items[0].(map[string]any)
	if job["status"] != "failed" {
		t.Fatalf("job status = %v, want failed", job["status"])
	}
	if msg, ok := job["error"].(string); !ok || msg == "" {
		t.Fatalf("expected error message on failed job, got %v", job["error"])
	}
	id := job["id"].(string)

	// Upstream recovers; retry should succeed with identical parameters.
	service.generateErr = nil
	rec = env.do(t, http.MethodPost, "/api/v1/jobs/"+id+"/retry", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("retry status = %d, body = %s", rec.Code, rec.Body.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	retried, err := env.queue.Wait(ctx, testUserID, id)
	if err != nil {
		t.Fatalf("Wait error: %v", err)
	}
	if retried.Status != "completed" {
		t.Fatalf("retried status = %s, want completed", retried.Status)
	}
	if len(retried.Results) != 1 {
		t.Fatalf("retried results = %d, want 1", len(retried.Results))
	}
}

func TestJobRetryCompletedConflicts(t *testing.T) {
	env := newTestEnv(t, &stubService{})

	rec := env.do(t, http.MethodPost, "/api/v1/generations/swap", map[string]any{
		"sourceImage": testImageB64(),
		"sceneImage":  testImageB64(),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("generation failed: %d", rec.Code)
	}
	items := decodeBody(t, env.do(t, http.MethodGet, "/api/v1/jobs", nil))["items"].([]any)
	id := items[0].(map[string]any)["id"].(string)

	rec = env.do(t, http.MethodPost, "/api/v1/jobs/"+id+"/retry", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("retry of completed job status = %d, want 409", rec.Code)
	}
}

func TestJobEndpointsUnknownID(t *testing.T) {
	env := newTestEnv(t, &stubService{})

	if rec := env.do(t, http.MethodGet, "/api/v1/jobs/nope", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("get status = %d, want 404", rec.Code)
	}
	if rec := env.do(t, http.MethodPost, "/api/v1/jobs/nope/retry", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("retry status = %d, want 404", rec.Code)
	}
	if rec := env.do(t, http.MethodDelete, "/api/v1/jobs/nope", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("delete status = %d, want 404", rec.Code)
	}
}
