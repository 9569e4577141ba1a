package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"shipyard/internal/auth"
	"shipyard/pkg/api"
)

func TestCreateClient(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		createErr      error
		expectedStatus int
	}{
		{"Success", `{"name":"ml-team","rate_limit":2,"rate_limit_burst":5}`, nil, http.StatusCreated},
		{"Missing Name", `{"name":"  "}`, nil, http.StatusBadRequest},
		{"Negative Limit", `{"name":"ml-team","rate_limit":-1}`, nil, http.StatusBadRequest},
		{"Invalid JSON", `{"name":`, nil, http.StatusBadRequest},
		{"Database Error", `{"name":"ml-team"}`, errors.New("unique violation"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockStore{createClientErr: tt.createErr}
			h := New(mock, &mockQueue{}, nil, nil)

			req := httptest.NewRequest(http.MethodPost, "/api/clients", strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			h.CreateClient(rr, req)

			if rr.Code != tt.expectedStatus {
				t.Fatalf("got status %d, want %d: %s", rr.Code, tt.expectedStatus, rr.Body.String())
			}
			if rr.Code != http.StatusCreated {
				return
			}

			var resp api.CreateClientResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !strings.HasPrefix(resp.APIKey, auth.KeyPrefix) {
				t.Errorf("api key %q is missing prefix %q", resp.APIKey, auth.KeyPrefix)
			}
			if mock.createdKeyHash != auth.HashKey(resp.APIKey) {
				t.Error("stored hash does not match the returned key")
			}
			if mock.createdClient.RateLimit != 2 || mock.createdClient.RateLimitBurst != 5 {
				t.Errorf("unexpected client limits %+v", mock.createdClient)
			}
			if resp.ID != mock.createdClient.ID.String() {
				t.Errorf("response id %s, stored id %s", resp.ID, mock.createdClient.ID)
			}
		})
	}
}
