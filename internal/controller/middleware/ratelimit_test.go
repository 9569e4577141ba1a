package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"shipyard/internal/store"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// frozenLimiter returns a limiter whose clock only moves when the test advances it.
func frozenLimiter(ttl time.Duration) (*RateLimiter, *time.Time) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(WithTTL(ttl))
	rl.now = func() time.Time { return now }
	return rl, &now
}

// submitAs posts a job request on behalf of client and returns the recorder.
func submitAs(h http.Handler, client *store.Client) *httptest.ResponseRecorder {
	ctx := NewContextWithClient(context.Background(), client)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/jobs", nil).WithContext(ctx))
	return rr
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
}

func TestRateLimiter_RequiresClient(t *testing.T) {
	h := NewRateLimiter().Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run without a client")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/jobs", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRateLimiter_Burst(t *testing.T) {
	tests := []struct {
		name    string
		rate    float64
		burst   int
		allowed int
	}{
		{"burst of three", 0.5, 3, 3},
		{"zero burst acts as one", 0.5, 0, 1},
		{"unlimited", 0, 0, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl, _ := frozenLimiter(time.Hour)
			h := rl.Middleware()(okHandler())
			client := &store.Client{ID: uuid.New(), RateLimit: tt.rate, RateLimitBurst: tt.burst}

			for i := 0; i < tt.allowed; i++ {
				require.Equal(t, http.StatusCreated, submitAs(h, client).Code, "request %d", i)
			}
			if tt.rate > 0 {
				assert.Equal(t, http.StatusTooManyRequests, submitAs(h, client).Code)
			}
		})
	}
}

func TestRateLimiter_RetryAfter(t *testing.T) {
	tests := []struct {
		name string
		rate float64
		want string
	}{
		{"one per second", 1, "1"},
		{"one every ten seconds", 0.1, "10"},
		{"fractional wait rounds up", 0.4, "3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl, _ := frozenLimiter(time.Hour)
			h := rl.Middleware()(okHandler())
			client := &store.Client{ID: uuid.New(), RateLimit: tt.rate, RateLimitBurst: 1}

			require.Equal(t, http.StatusCreated, submitAs(h, client).Code)
			rr := submitAs(h, client)

			assert.Equal(t, http.StatusTooManyRequests, rr.Code)
			assert.Equal(t, tt.want, rr.Header().Get("Retry-After"))
			assert.Contains(t, rr.Body.String(), "Too Many Requests")
		})
	}
}

func TestRateLimiter_RejectedRequestsDoNotSpendTokens(t *testing.T) {
	rl, now := frozenLimiter(time.Hour)
	h := rl.Middleware()(okHandler())
	client := &store.Client{ID: uuid.New(), RateLimit: 1, RateLimitBurst: 1}

	require.Equal(t, http.StatusCreated, submitAs(h, client).Code)
	for i := 0; i < 5; i++ {
		require.Equal(t, http.StatusTooManyRequests, submitAs(h, client).Code)
	}

	*now = now.Add(time.Second)
	assert.Equal(t, http.StatusCreated, submitAs(h, client).Code)
}

func TestRateLimiter_ClientsAreIndependent(t *testing.T) {
	rl, _ := frozenLimiter(time.Hour)
	h := rl.Middleware()(okHandler())
	slow := &store.Client{ID: uuid.New(), Name: "ci", RateLimit: 1, RateLimitBurst: 1}
	fast := &store.Client{ID: uuid.New(), Name: "dashboard", RateLimit: 100, RateLimitBurst: 100}

	require.Equal(t, http.StatusCreated, submitAs(h, slow).Code)
	require.Equal(t, http.StatusTooManyRequests, submitAs(h, slow).Code)

	assert.Equal(t, http.StatusCreated, submitAs(h, fast).Code)
}

func TestRateLimiter_RebuildsBucketAfterTTL(t *testing.T) {
	rl, now := frozenLimiter(time.Minute)
	h := rl.Middleware()(okHandler())
	client := &store.Client{ID: uuid.New(), RateLimit: 0.001, RateLimitBurst: 1}

	require.Equal(t, http.StatusCreated, submitAs(h, client).Code)
	require.Equal(t, http.StatusTooManyRequests, submitAs(h, client).Code)

	// A raised limit is picked up once the cached bucket expires.
	client.RateLimitBurst = 2
	*now = now.Add(2 * time.Minute)
	assert.Equal(t, http.StatusCreated, submitAs(h, client).Code)
	assert.Equal(t, http.StatusCreated, submitAs(h, client).Code)
	assert.Equal(t, http.StatusTooManyRequests, submitAs(h, client).Code)
}
