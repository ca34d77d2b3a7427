package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPServiceCreateMemory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req CreateMemoryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		if req.PatchID != "p1" {
			t.Errorf("expected patchId p1, got %s", req.PatchID)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"memoryId": "mem-1"})
	}))
	defer server.Close()

	svc := NewHTTPService(server.URL, "key")
	memoryID, err := svc.CreateMemory(context.Background(), CreateMemoryRequest{PatchID: "p1", Title: "t"})
	if err != nil {
		t.Fatalf("CreateMemory failed: %v", err)
	}
	if memoryID != "mem-1" {
		t.Errorf("expected memoryId mem-1, got %s", memoryID)
	}
}

func TestHTTPServiceCreateMemoryError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	svc := NewHTTPService(server.URL, "")
	if _, err := svc.CreateMemory(context.Background(), CreateMemoryRequest{}); err == nil {
		t.Error("expected error on 500 response")
	}
}
