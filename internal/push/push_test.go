package push

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSubs struct {
	mu   sync.Mutex
	subs map[string][]Subscription
}

func newFakeSubs() *fakeSubs { return &fakeSubs{subs: map[string][]Subscription{}} }

func (f *fakeSubs) AddPushSubscription(_ context.Context, userID string, sub Subscription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[userID] = append(f.subs[userID], sub)
	return nil
}

func (f *fakeSubs) PushSubscriptions(_ context.Context, userID string) ([]Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Subscription(nil), f.subs[userID]...), nil
}

func (f *fakeSubs) RemovePushSubscription(_ context.Context, userID, endpoint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []Subscription
	for _, s := range f.subs[userID] {
		if s.Endpoint != endpoint {
			kept = append(kept, s)
		}
	}
	f.subs[userID] = kept
	return nil
}

func subscription(endpoint string) Subscription {
	var s Subscription
	s.Endpoint = endpoint
	s.Keys.P256dh = "p256"
	s.Keys.Auth = "auth"
	return s
}

func TestServerSubscribeValidates(t *testing.T) {
	srv := NewServer(newFakeSubs(), nil)
	h := srv.Router()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/subscribe", strings.NewReader(`{"user_id":"u1","subscription":{"endpoint":"e"}}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, _ := json.Marshal(SubscribeRequest{UserID: "u1", Subscription: subscription("https://push/1")})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/subscribe", strings.NewReader(string(body))))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/vapid-public", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServerNotifyDropsGoneSubscriptions(t *testing.T) {
	subs := newFakeSubs()
	require.NoError(t, subs.AddPushSubscription(context.Background(), "u1", subscription("https://push/live")))
	require.NoError(t, subs.AddPushSubscription(context.Background(), "u1", subscription("https://push/gone")))

	srv := NewServer(subs, &VAPIDKeys{PublicKey: "pub", PrivateKey: "priv"})
	var sent []string
	srv.send = func(_ context.Context, payload []byte, sub *webpush.Subscription, _ *webpush.Options) (*http.Response, error) {
		sent = append(sent, sub.Endpoint)
		assert.Contains(t, string(payload), `"title":"Asha"`)
		code := http.StatusCreated
		if strings.HasSuffix(sub.Endpoint, "gone") {
			code = http.StatusGone
		}
		return &http.Response{StatusCode: code, Body: io.NopCloser(strings.NewReader(""))}, nil
	}

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/notify", strings.NewReader(`{"user_id":"u1","title":"Asha","body":"hi"}`)))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"https://push/live", "https://push/gone"}, sent)

	left, _ := subs.PushSubscriptions(context.Background(), "u1")
	require.Len(t, left, 1)
	assert.Equal(t, "https://push/live", left[0].Endpoint)
}

func TestClientDisabledIsNoop(t *testing.T) {
	c := NewClient("")
	assert.False(t, c.Enabled())
	c.Notify(context.Background(), "u1", "t", "b", nil)
	assert.NoError(t, c.Subscribe(context.Background(), "u1", subscription("e")))
}

func TestClientBreakerStopsCallingFailingService(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	for i := 0; i < 10; i++ {
		c.Notify(context.Background(), "u1", "t", "b", nil)
	}
	assert.Equal(t, int32(5), hits.Load())
}

func TestEnsureVAPIDKeysPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "vapid.json")
	first, err := EnsureVAPIDKeys(path)
	require.NoError(t, err)
	require.NotEmpty(t, first.PublicKey)

	second, err := EnsureVAPIDKeys(path)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
