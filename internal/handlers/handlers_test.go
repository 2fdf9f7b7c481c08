package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"shipmode-access/internal/common/httpx"
	"shipmode-access/internal/github"
	"shipmode-access/internal/provision"
	"shipmode-access/internal/signature"
)

var (
	stripeSecret   = []byte("whsec_test_secret")
	internalSecret = []byte("internal_test_secret")
)

// fakeGitHub is a stateful stand-in for the upstream API: resolvable
// accounts, a mutable collaborator set, and a counter on the invitation
// endpoint so tests can assert how many invitations were actually issued.
type fakeGitHub struct {
	mu          sync.Mutex
	accounts    map[string]github.Account // login -> account
	emails      map[string]string         // email -> login
	members     map[string]string         // login -> permission
	inviteCalls int
}

func newFakeGitHub() *fakeGitHub {
	return &fakeGitHub{
		accounts: map[string]github.Account{
			"alice": {ID: 101, Login: "alice"},
		},
		emails:  map[string]string{"alice@example.com": "alice"},
		members: map[string]string{},
	}
}

func (f *fakeGitHub) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/users/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		login := strings.TrimPrefix(r.URL.Path, "/users/")
		account, ok := f.accounts[login]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(account)
	})

	mux.HandleFunc("/search/users", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		query := r.URL.Query().Get("q")
		email := strings.TrimSuffix(query, " in:email")
		items := []github.Account{}
		if login, ok := f.emails[email]; ok {
			items = append(items, f.accounts[login])
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"total_count": len(items),
			"items":       items,
		})
	})

	mux.HandleFunc("/repos/shipmode/framework/collaborators/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/repos/shipmode/framework/collaborators/"), "/")
		perm, ok := f.members[parts[0]]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"permission": perm})
	})

	mux.HandleFunc("/repos/shipmode/framework/invitations", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.inviteCalls++

		var body struct {
			InviteeID  int64  `json:"invitee_id"`
			Permission string `json:"permission"`
		}
		json.NewDecoder(r.Body).Decode(&body)

		for login, account := range f.accounts {
			if account.ID == body.InviteeID {
				if _, ok := f.members[login]; ok {
					w.WriteHeader(http.StatusUnprocessableEntity)
					json.NewEncoder(w).Encode(map[string]string{"message": "already a collaborator"})
					return
				}
				f.members[login] = body.Permission
				w.WriteHeader(http.StatusCreated)
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	})

	return mux
}

func (f *fakeGitHub) invites() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inviteCalls
}

func newTestHandlers(t *testing.T, backend *fakeGitHub) *Handlers {
	t.Helper()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	httpClient := httpx.New(5*time.Second, "test-token", nil)
	ghClient := github.NewClient(httpClient, srv.URL, "shipmode", "framework", nil)
	provisioner := provision.NewService(ghClient, nil)

	stripeVerifier := signature.NewVerifier(stripeSecret, 5*time.Minute, nil)
	internalVerifier := signature.NewVerifier(internalSecret, 0, nil)

	return New(stripeVerifier, internalVerifier, provisioner, nil)
}

func signedWebhookRequest(payload []byte) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/webhook/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signature.SignTimestamped(payload, stripeSecret, time.Now()))
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHandleStripeWebhook_ProvisionsAccess(t *testing.T) {
	backend := newFakeGitHub()
	h := newTestHandlers(t, backend)

	payload := []byte(`{"type":"checkout.session.completed","email":"alice@example.com","github_username":"alice"}`)

	rec := httptest.NewRecorder()
	h.HandleStripeWebhook(rec, signedWebhookRequest(payload))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["accepted"])
	assert.Equal(t, "invited", body["invite_status"])
	assert.Equal(t, "alice", body["handle"])
	assert.Equal(t, 1, backend.invites())
}

func TestHandleStripeWebhook_Replay(t *testing.T) {
	backend := newFakeGitHub()
	h := newTestHandlers(t, backend)

	payload := []byte(`{"type":"checkout.session.completed","github_username":"alice"}`)

	rec := httptest.NewRecorder()
	h.HandleStripeWebhook(rec, signedWebhookRequest(payload))
	require.Equal(t, http.StatusOK, rec.Code)

	// A duplicate delivery succeeds and reports the existing membership
	rec = httptest.NewRecorder()
	h.HandleStripeWebhook(rec, signedWebhookRequest(payload))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "already_member", body["invite_status"])
	assert.Equal(t, 1, backend.invites(), "the replay must not issue a second invitation")
}

func TestHandleStripeWebhook_InvalidSignature(t *testing.T) {
	backend := newFakeGitHub()
	h := newTestHandlers(t, backend)
	payload := []byte(`{"type":"checkout.session.completed","github_username":"alice"}`)

	cases := map[string]func(*http.Request){
		"missing header": func(r *http.Request) { r.Header.Del("Stripe-Signature") },
		"wrong secret": func(r *http.Request) {
			r.Header.Set("Stripe-Signature", signature.SignTimestamped(payload, []byte("wrong"), time.Now()))
		},
		"stale timestamp": func(r *http.Request) {
			r.Header.Set("Stripe-Signature", signature.SignTimestamped(payload, stripeSecret, time.Now().Add(-time.Hour)))
		},
		"tampered payload": func(r *http.Request) {
			tampered := []byte(`{"type":"checkout.session.completed","github_username":"mallory"}`)
			r.Body = httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(tampered)).Body
		},
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := signedWebhookRequest(payload)
			mutate(req)

			rec := httptest.NewRecorder()
			h.HandleStripeWebhook(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Zero(t, backend.invites())
		})
	}
}

func TestHandleStripeWebhook_UnrecognizedEventAcknowledged(t *testing.T) {
	backend := newFakeGitHub()
	h := newTestHandlers(t, backend)

	payload := []byte(`{"type":"invoice.voided","email":"alice@example.com"}`)

	rec := httptest.NewRecorder()
	h.HandleStripeWebhook(rec, signedWebhookRequest(payload))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["accepted"])
	assert.Equal(t, "unrecognized", body["ignored"])
	assert.Zero(t, backend.invites())
}

func TestHandleStripeWebhook_CancellationAcknowledged(t *testing.T) {
	backend := newFakeGitHub()
	h := newTestHandlers(t, backend)

	payload := []byte(`{"type":"customer.subscription.deleted","email":"alice@example.com"}`)

	rec := httptest.NewRecorder()
	h.HandleStripeWebhook(rec, signedWebhookRequest(payload))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, backend.invites(), "cancellations never touch the upstream")
}

func TestHandleStripeWebhook_MissingSubject(t *testing.T) {
	backend := newFakeGitHub()
	h := newTestHandlers(t, backend)

	payload := []byte(`{"type":"checkout.session.completed"}`)

	rec := httptest.NewRecorder()
	h.HandleStripeWebhook(rec, signedWebhookRequest(payload))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, backend.invites())
}

func TestHandleStripeWebhook_MalformedBody(t *testing.T) {
	backend := newFakeGitHub()
	h := newTestHandlers(t, backend)

	payload := []byte(`{not json`)

	rec := httptest.NewRecorder()
	h.HandleStripeWebhook(rec, signedWebhookRequest(payload))

	// Signed garbage is still garbage
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func signedInviteRequest(payload []byte) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/invite", bytes.NewReader(payload))
	req.Header.Set("X-Shipmode-Signature", signature.Sign(payload, internalSecret))
	return req
}

func TestHandleInvite_ByHandle(t *testing.T) {
	backend := newFakeGitHub()
	h := newTestHandlers(t, backend)

	payload := []byte(`{"identifier":"alice","permission":"write"}`)

	rec := httptest.NewRecorder()
	h.HandleInvite(rec, signedInviteRequest(payload))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "invited", body["invite_status"])
	assert.Equal(t, "alice", body["handle"])
}

func TestHandleInvite_ByEmail(t *testing.T) {
	backend := newFakeGitHub()
	h := newTestHandlers(t, backend)

	payload := []byte(`{"identifier":"alice@example.com"}`)

	rec := httptest.NewRecorder()
	h.HandleInvite(rec, signedInviteRequest(payload))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, "alice", body["handle"], "email resolves to the account's handle")
}

func TestHandleInvite_AccountNotFound(t *testing.T) {
	backend := newFakeGitHub()
	h := newTestHandlers(t, backend)

	payload := []byte(`{"identifier":"nonexistent-user-xyz"}`)

	rec := httptest.NewRecorder()
	h.HandleInvite(rec, signedInviteRequest(payload))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleInvite_Unauthorized(t *testing.T) {
	backend := newFakeGitHub()
	h := newTestHandlers(t, backend)

	payload := []byte(`{"identifier":"alice"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/invite", bytes.NewReader(payload))
	req.Header.Set("X-Shipmode-Signature", "deadbeef")

	rec := httptest.NewRecorder()
	h.HandleInvite(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, backend.invites())
}

func TestHandleInvite_Validation(t *testing.T) {
	h := newTestHandlers(t, newFakeGitHub())

	cases := map[string]string{
		"missing identifier": `{"permission":"read"}`,
		"bad permission":     `{"identifier":"alice","permission":"owner"}`,
		"not json":           `{broken`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.HandleInvite(rec, signedInviteRequest([]byte(raw)))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func signedStatusRequest(identifier string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/access/status?identifier="+identifier, nil)
	req.Header.Set("X-Shipmode-Signature", signature.Sign([]byte("GET:"+identifier), internalSecret))
	return req
}

func TestHandleAccessStatus(t *testing.T) {
	t.Run("not found", func(t *testing.T) {
		h := newTestHandlers(t, newFakeGitHub())
		rec := httptest.NewRecorder()
		h.HandleAccessStatus(rec, signedStatusRequest("nonexistent-user-xyz"))

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "not_found", decodeBody(t, rec)["status"])
	})

	t.Run("pending", func(t *testing.T) {
		h := newTestHandlers(t, newFakeGitHub())
		rec := httptest.NewRecorder()
		h.HandleAccessStatus(rec, signedStatusRequest("alice"))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "pending", decodeBody(t, rec)["status"])
	})

	t.Run("active", func(t *testing.T) {
		backend := newFakeGitHub()
		backend.members["alice"] = "pull"
		h := newTestHandlers(t, backend)

		rec := httptest.NewRecorder()
		h.HandleAccessStatus(rec, signedStatusRequest("alice"))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "active", decodeBody(t, rec)["status"])
	})

	t.Run("missing identifier", func(t *testing.T) {
		h := newTestHandlers(t, newFakeGitHub())
		req := httptest.NewRequest(http.MethodGet, "/api/access/status", nil)
		rec := httptest.NewRecorder()
		h.HandleAccessStatus(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("signature bound to identifier", func(t *testing.T) {
		h := newTestHandlers(t, newFakeGitHub())

		// Signature for one identifier must not authorize another
		req := httptest.NewRequest(http.MethodGet, "/api/access/status?identifier=alice", nil)
		req.Header.Set("X-Shipmode-Signature", signature.Sign([]byte("GET:bob"), internalSecret))

		rec := httptest.NewRecorder()
		h.HandleAccessStatus(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestHealthCheck(t *testing.T) {
	h := newTestHandlers(t, newFakeGitHub())

	rec := httptest.NewRecorder()
	h.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])
}

func TestWriteError_NoSecretLeaks(t *testing.T) {
	h := newTestHandlers(t, newFakeGitHub())

	payload := []byte(`{"identifier":"alice"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/invite", bytes.NewReader(payload))
	req.Header.Set("X-Shipmode-Signature", "not-a-signature")

	rec := httptest.NewRecorder()
	h.HandleInvite(rec, req)

	assert.NotContains(t, rec.Body.String(), string(internalSecret))
	assert.NotContains(t, rec.Body.String(), string(stripeSecret))
}
