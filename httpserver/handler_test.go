package httpserver

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	"github.com/ruteri/equipment-registry/api"
	"github.com/ruteri/equipment-registry/api/clients"
	"github.com/ruteri/equipment-registry/credentials"
	"github.com/ruteri/equipment-registry/equipment"
	"github.com/ruteri/equipment-registry/governance"
	"github.com/ruteri/equipment-registry/hostenv"
	"github.com/ruteri/equipment-registry/interfaces"
	"github.com/ruteri/equipment-registry/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRegistry struct {
	handler  *Handler
	host     *hostenv.Host
	clock    *hostenv.FixedClock
	mux      *chi.Mux
	server   *httptest.Server
	ownerKey *ecdsa.PrivateKey
}

func newTestRegistry(t *testing.T) *testRegistry {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	clock := hostenv.NewFixedClock(100)
	host := hostenv.NewHost(storage.NewMemoryStore(logger), clock, logger)
	ledger := governance.NewLedger()
	handler := NewHandler(host, equipment.NewRegistry(), ledger, credentials.NewRegistry(ledger), logger)

	ownerKey := newKey(t)
	require.NoError(t, host.Execute(context.Background(), "deploy", addressOf(ownerKey), func(env interfaces.Env) error {
		return ledger.Deploy(env, addressOf(ownerKey))
	}))

	mux := chi.NewRouter()
	handler.RegisterRoutes(mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &testRegistry{
		handler:  handler,
		host:     host,
		clock:    clock,
		mux:      mux,
		server:   server,
		ownerKey: ownerKey,
	}
}

func (r *testRegistry) client(key *ecdsa.PrivateKey) *clients.RegistryClient {
	return clients.NewRegistryClient(r.server.URL, key)
}

func (r *testRegistry) serve(req *http.Request) *http.Response {
	w := httptest.NewRecorder()
	r.mux.ServeHTTP(w, req)
	return w.Result()
}

func newKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key
}

func addressOf(key *ecdsa.PrivateKey) interfaces.Identity {
	return crypto.PubkeyToAddress(key.PublicKey)
}

func signedRequest(t *testing.T, key *ecdsa.PrivateKey, nonce uint64, method, path string, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	require.NoError(t, api.SignRequest(req, body, nonce, key))
	return req
}

func errorKind(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	var errResp api.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
	return errResp.Error
}

func TestOwnershipScenarioOverHTTP(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	aliceKey, bobKey := newKey(t), newKey(t)
	alice, bob := reg.client(aliceKey), reg.client(bobKey)

	first, err := alice.RegisterEquipment(ctx, api.RegisterEquipmentRequest{Name: "Chiller", Manufacturer: "Acme", Model: "C-200", SerialNumber: "SN-1", ManufactureDate: 50})
	require.NoError(t, err)
	second, err := alice.RegisterEquipment(ctx, api.RegisterEquipmentRequest{Name: "Boiler", SerialNumber: "SN-2"})
	require.NoError(t, err)
	assert.Equal(t, interfaces.EquipmentID(1), first)
	assert.Equal(t, interfaces.EquipmentID(2), second)

	err = bob.TransferEquipment(ctx, first, addressOf(bobKey))
	assert.ErrorIs(t, err, interfaces.ErrUnauthorized)

	rec, err := bob.GetEquipmentDetails(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, addressOf(aliceKey), rec.Owner)
	assert.Equal(t, "Chiller", rec.Name)
	assert.Equal(t, uint64(50), rec.ManufactureDate)

	owner, err := bob.EquipmentOwner(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, addressOf(aliceKey), owner)

	last, err := bob.LastEquipmentID(ctx)
	require.NoError(t, err)
	assert.Equal(t, interfaces.EquipmentID(2), last)

	require.NoError(t, alice.TransferEquipment(ctx, first, addressOf(bobKey)))
	require.NoError(t, bob.UpdateLastMaintenanceDate(ctx, first, 120))
	assert.ErrorIs(t, alice.UpdateLastMaintenanceDate(ctx, first, 130), interfaces.ErrUnauthorized)

	rec, err = alice.GetEquipmentDetails(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, addressOf(bobKey), rec.Owner)
	assert.Equal(t, uint64(120), rec.LastMaintenanceDate)

	exists, err := alice.EquipmentExists(ctx, 3)
	require.NoError(t, err)
	assert.False(t, exists)
	_, err = alice.GetEquipmentDetails(ctx, 3)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)
}

func TestCredentialScenarioOverHTTP(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	certifierKey, outsiderKey := newKey(t), newKey(t)
	owner, certifier, outsider := reg.client(reg.ownerKey), reg.client(certifierKey), reg.client(outsiderKey)
	provider := addressOf(newKey(t))

	contractOwner, err := outsider.ContractOwner(ctx)
	require.NoError(t, err)
	assert.Equal(t, addressOf(reg.ownerKey), contractOwner)
	isOwner, err := outsider.IsContractOwner(ctx, addressOf(outsiderKey))
	require.NoError(t, err)
	assert.False(t, isOwner)

	require.NoError(t, owner.AddAuthorizedCertifier(ctx, addressOf(certifierKey)))
	authorized, err := outsider.IsAuthorizedCertifier(ctx, addressOf(certifierKey))
	require.NoError(t, err)
	assert.True(t, authorized)

	require.NoError(t, certifier.RegisterServiceProvider(ctx, api.RegisterProviderRequest{
		Provider:            provider,
		Name:                "Acme Service",
		Certification:       "CertA",
		Specialization:      "HVAC",
		CertificationExpiry: 500,
	}))
	verified, err := outsider.IsVerifiedProvider(ctx, provider)
	require.NoError(t, err)
	assert.True(t, verified)

	require.NoError(t, reg.clock.Set(600))
	height, err := outsider.Height(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(600), height)

	verified, err = outsider.IsVerifiedProvider(ctx, provider)
	require.NoError(t, err)
	assert.False(t, verified)

	other := addressOf(newKey(t))
	err = outsider.RegisterServiceProvider(ctx, api.RegisterProviderRequest{Provider: other, CertificationExpiry: 1_000})
	assert.ErrorIs(t, err, interfaces.ErrForbidden)
	_, err = outsider.GetServiceProvider(ctx, other)
	assert.ErrorIs(t, err, interfaces.ErrNotFound)

	require.NoError(t, certifier.UpdateProviderStatus(ctx, provider, false))
	rec, err := outsider.GetServiceProvider(ctx, provider)
	require.NoError(t, err)
	assert.False(t, rec.IsActive)
	assert.Equal(t, "CertA", rec.Certification)

	require.NoError(t, owner.RemoveAuthorizedCertifier(ctx, addressOf(certifierKey)))
	assert.ErrorIs(t, certifier.UpdateProviderStatus(ctx, provider, true), interfaces.ErrForbidden)
	assert.ErrorIs(t, certifier.AddAuthorizedCertifier(ctx, addressOf(certifierKey)), interfaces.ErrForbidden)
}

func TestMutationsRequireSignature(t *testing.T) {
	reg := newTestRegistry(t)
	body := []byte(`{"name":"Chiller"}`)

	t.Run("unsigned", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, api.RouteEquipment, bytes.NewReader(body))
		resp := reg.serve(req)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "bad_signature", errorKind(t, resp))
	})

	t.Run("signed for another caller", func(t *testing.T) {
		req := signedRequest(t, newKey(t), 0, http.MethodPost, api.RouteEquipment, body)
		req.Header.Set(api.CallerHeader, addressOf(reg.ownerKey).Hex())
		resp := reg.serve(req)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("body changed after signing", func(t *testing.T) {
		req := signedRequest(t, newKey(t), 0, http.MethodPost, api.RouteEquipment, body)
		req.Body = io.NopCloser(bytes.NewReader([]byte(`{"name":"Boiler"}`)))
		resp := reg.serve(req)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("missing nonce", func(t *testing.T) {
		req := signedRequest(t, newKey(t), 0, http.MethodPost, api.RouteEquipment, body)
		req.Header.Del(api.NonceHeader)
		resp := reg.serve(req)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "bad_signature", errorKind(t, resp))
	})

	t.Run("nonce changed after signing", func(t *testing.T) {
		req := signedRequest(t, newKey(t), 0, http.MethodPost, api.RouteEquipment, body)
		req.Header.Set(api.NonceHeader, "1")
		resp := reg.serve(req)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "bad_signature", errorKind(t, resp))
	})

	t.Run("read-only client", func(t *testing.T) {
		_, err := reg.client(nil).RegisterEquipment(context.Background(), api.RegisterEquipmentRequest{})
		assert.ErrorIs(t, err, clients.ErrNoSigningKey)
	})

	last, err := reg.client(nil).LastEquipmentID(context.Background())
	require.NoError(t, err)
	assert.Zero(t, last)
}

func TestErrorResponses(t *testing.T) {
	reg := newTestRegistry(t)
	aliceKey, bobKey := newKey(t), newKey(t)

	resp := reg.serve(signedRequest(t, aliceKey, 0, http.MethodPost, api.RouteEquipment, []byte(`{"name":"Chiller"}`)))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var created api.EquipmentIDResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	require.Equal(t, interfaces.EquipmentID(1), created.ID)

	tests := []struct {
		name   string
		req    *http.Request
		status int
		kind   string
	}{
		{
			name:   "malformed id",
			req:    httptest.NewRequest(http.MethodGet, "/api/v1/equipment/abc", nil),
			status: http.StatusBadRequest,
			kind:   "invalid_argument",
		},
		{
			name:   "unknown equipment",
			req:    httptest.NewRequest(http.MethodGet, "/api/v1/equipment/7", nil),
			status: http.StatusNotFound,
			kind:   "not_found",
		},
		{
			name:   "unknown owner",
			req:    httptest.NewRequest(http.MethodGet, "/api/v1/equipment/7/owner", nil),
			status: http.StatusNotFound,
			kind:   "not_found",
		},
		{
			name:   "malformed address",
			req:    httptest.NewRequest(http.MethodGet, "/api/v1/providers/xyz", nil),
			status: http.StatusBadRequest,
			kind:   "invalid_argument",
		},
		{
			name:   "transfer by non-owner",
			req:    signedRequest(t, bobKey, 0, http.MethodPost, "/api/v1/equipment/1/transfer", []byte(`{"recipient":"`+addressOf(bobKey).Hex()+`"}`)),
			status: http.StatusForbidden,
			kind:   "unauthorized",
		},
		{
			name:   "transfer of unknown equipment",
			req:    signedRequest(t, bobKey, 1, http.MethodPost, "/api/v1/equipment/9/transfer", []byte(`{"recipient":"`+addressOf(bobKey).Hex()+`"}`)),
			status: http.StatusNotFound,
			kind:   "not_found",
		},
		{
			name:   "transfer to zero address",
			req:    signedRequest(t, aliceKey, 1, http.MethodPost, "/api/v1/equipment/1/transfer", []byte(`{"recipient":"0x0000000000000000000000000000000000000000"}`)),
			status: http.StatusBadRequest,
			kind:   "invalid_argument",
		},
		{
			name:   "certifier change by non-owner",
			req:    signedRequest(t, bobKey, 2, http.MethodPost, api.RouteCertifiers, []byte(`{"certifier":"`+addressOf(bobKey).Hex()+`"}`)),
			status: http.StatusForbidden,
			kind:   "forbidden",
		},
		{
			name:   "malformed body",
			req:    signedRequest(t, aliceKey, 2, http.MethodPost, "/api/v1/equipment/1/maintenance", []byte(`{"date":"soon"}`)),
			status: http.StatusBadRequest,
			kind:   "invalid_argument",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := reg.serve(tt.req)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.kind, errorKind(t, resp))
		})
	}

	details := reg.serve(httptest.NewRequest(http.MethodGet, "/api/v1/equipment/1", nil))
	defer details.Body.Close()
	var rec interfaces.EquipmentRecord
	require.NoError(t, json.NewDecoder(details.Body).Decode(&rec))
	assert.Equal(t, addressOf(aliceKey), rec.Owner)
	assert.Zero(t, rec.LastMaintenanceDate)
}

func TestBodyLimit(t *testing.T) {
	reg := newTestRegistry(t)
	reg.handler.SetMaxBodySize(16)

	body := []byte(`{"name":"a name that does not fit"}`)
	resp := reg.serve(signedRequest(t, newKey(t), 0, http.MethodPost, api.RouteEquipment, body))
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Equal(t, "invalid_argument", errorKind(t, resp))
}

func TestReplayedRequestsAreRejected(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()
	certifierKey := newKey(t)
	provider := addressOf(newKey(t))
	owner, certifier := reg.client(reg.ownerKey), reg.client(certifierKey)

	require.NoError(t, owner.AddAuthorizedCertifier(ctx, addressOf(certifierKey)))

	register := func() *http.Request {
		body, err := json.Marshal(api.RegisterProviderRequest{Provider: provider, Name: "Cool Co", CertificationExpiry: 1000})
		require.NoError(t, err)
		req, err := http.NewRequest(http.MethodPost, reg.server.URL+api.RouteProviders, bytes.NewReader(body))
		require.NoError(t, err)
		require.NoError(t, api.SignRequest(req, body, 0, certifierKey))
		return req
	}
	send := func(req *http.Request) *http.Response {
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		return resp
	}

	captured := register()
	resp := send(captured)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	require.NoError(t, certifier.UpdateProviderStatus(ctx, provider, false))

	replay := register()
	resp = send(replay)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "bad_nonce", errorKind(t, resp))

	verified, err := certifier.IsVerifiedProvider(ctx, provider)
	require.NoError(t, err)
	assert.False(t, verified, "a replayed registration must not reactivate the provider")

	t.Run("revoked certifier cannot be re-added by replay", func(t *testing.T) {
		next, err := owner.Nonce(ctx, addressOf(reg.ownerKey))
		require.NoError(t, err)

		body := []byte(`{"certifier":"` + addressOf(certifierKey).Hex() + `"}`)
		add := signedRequest(t, reg.ownerKey, next, http.MethodPost, api.RouteCertifiers, body)
		require.Equal(t, http.StatusOK, reg.serve(add).StatusCode)
		require.NoError(t, owner.RemoveAuthorizedCertifier(ctx, addressOf(certifierKey)))

		resp := reg.serve(signedRequest(t, reg.ownerKey, next, http.MethodPost, api.RouteCertifiers, body))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "bad_nonce", errorKind(t, resp))

		authorized, err := owner.IsAuthorizedCertifier(ctx, addressOf(certifierKey))
		require.NoError(t, err)
		assert.False(t, authorized)
	})

	t.Run("rejected requests cannot be replayed later", func(t *testing.T) {
		outsiderKey := newKey(t)
		body := []byte(`{"certifier":"` + addressOf(outsiderKey).Hex() + `"}`)

		resp := reg.serve(signedRequest(t, outsiderKey, 0, http.MethodPost, api.RouteCertifiers, body))
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "forbidden", errorKind(t, resp))

		next, err := reg.client(nil).Nonce(ctx, addressOf(outsiderKey))
		require.NoError(t, err)
		assert.Equal(t, uint64(1), next)
	})
}
