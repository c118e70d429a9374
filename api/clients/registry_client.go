package clients

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/equipment-registry/api"
	"github.com/ruteri/equipment-registry/interfaces"
)

// ErrNoSigningKey is returned when a mutating call is made on a read-only client.
var ErrNoSigningKey = errors.New("client has no signing key")

// kindErrors maps error kinds reported by the server back to sentinel errors.
var kindErrors = map[string]error{
	"not_found":        interfaces.ErrNotFound,
	"unauthorized":     interfaces.ErrUnauthorized,
	"forbidden":        interfaces.ErrForbidden,
	"invalid_argument": interfaces.ErrInvalidArgument,
	"already_deployed": interfaces.ErrAlreadyDeployed,
	"not_deployed":     interfaces.ErrNotDeployed,
	"bad_signature":    api.ErrInvalidSignature,
	"bad_nonce":        interfaces.ErrNonceMismatch,
}

// RegistryClient calls the registry HTTP API. Mutating calls are signed with
// the client's key, so the key's address is the caller of every operation.
type RegistryClient struct {
	baseURL    string
	key        *ecdsa.PrivateKey
	httpClient *http.Client
}

// NewRegistryClient creates a client for the server at baseURL. key may be nil
// for a client that only reads.
func NewRegistryClient(baseURL string, key *ecdsa.PrivateKey, timeout ...time.Duration) *RegistryClient {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 && timeout[0] > 0 {
		clientTimeout = timeout[0]
	}

	return &RegistryClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		httpClient: &http.Client{
			Timeout: clientTimeout,
		},
	}
}

func (c *RegistryClient) RegisterEquipment(ctx context.Context, req api.RegisterEquipmentRequest) (interfaces.EquipmentID, error) {
	var resp api.EquipmentIDResponse
	if err := c.call(ctx, http.MethodPost, api.RouteEquipment, req, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

func (c *RegistryClient) TransferEquipment(ctx context.Context, id interfaces.EquipmentID, recipient interfaces.Identity) error {
	return c.call(ctx, http.MethodPost, withID(api.RouteEquipmentTransfer, id), api.TransferEquipmentRequest{Recipient: recipient}, nil)
}

func (c *RegistryClient) UpdateLastMaintenanceDate(ctx context.Context, id interfaces.EquipmentID, date uint64) error {
	return c.call(ctx, http.MethodPost, withID(api.RouteEquipmentMaintenance, id), api.MaintenanceRequest{Date: date}, nil)
}

func (c *RegistryClient) GetEquipmentDetails(ctx context.Context, id interfaces.EquipmentID) (interfaces.EquipmentRecord, error) {
	var rec interfaces.EquipmentRecord
	err := c.query(ctx, withID(api.RouteEquipmentByID, id), &rec)
	return rec, err
}

func (c *RegistryClient) EquipmentExists(ctx context.Context, id interfaces.EquipmentID) (bool, error) {
	var resp api.ExistsResponse
	err := c.query(ctx, withID(api.RouteEquipmentExists, id), &resp)
	return resp.Exists, err
}

func (c *RegistryClient) EquipmentOwner(ctx context.Context, id interfaces.EquipmentID) (interfaces.Identity, error) {
	var resp api.OwnerResponse
	err := c.query(ctx, withID(api.RouteEquipmentOwner, id), &resp)
	return resp.Owner, err
}

func (c *RegistryClient) LastEquipmentID(ctx context.Context) (interfaces.EquipmentID, error) {
	var resp api.EquipmentIDResponse
	err := c.query(ctx, api.RouteLastEquipmentID, &resp)
	return resp.ID, err
}

func (c *RegistryClient) ContractOwner(ctx context.Context) (interfaces.Identity, error) {
	var resp api.OwnerResponse
	err := c.query(ctx, api.RouteContractOwner, &resp)
	return resp.Owner, err
}

func (c *RegistryClient) IsContractOwner(ctx context.Context, who interfaces.Identity) (bool, error) {
	var resp api.IsOwnerResponse
	err := c.query(ctx, withAddress(api.RouteIsContractOwner, who), &resp)
	return resp.IsOwner, err
}

func (c *RegistryClient) IsAuthorizedCertifier(ctx context.Context, who interfaces.Identity) (bool, error) {
	var resp api.CertifierResponse
	err := c.query(ctx, withAddress(api.RouteCertifierByAddr, who), &resp)
	return resp.Authorized, err
}

func (c *RegistryClient) AddAuthorizedCertifier(ctx context.Context, certifier interfaces.Identity) error {
	return c.call(ctx, http.MethodPost, api.RouteCertifiers, api.CertifierRequest{Certifier: certifier}, nil)
}

func (c *RegistryClient) RemoveAuthorizedCertifier(ctx context.Context, certifier interfaces.Identity) error {
	return c.call(ctx, http.MethodDelete, withAddress(api.RouteCertifierByAddr, certifier), nil, nil)
}

func (c *RegistryClient) RegisterServiceProvider(ctx context.Context, req api.RegisterProviderRequest) error {
	return c.call(ctx, http.MethodPost, api.RouteProviders, req, nil)
}

func (c *RegistryClient) UpdateProviderStatus(ctx context.Context, provider interfaces.Identity, isActive bool) error {
	return c.call(ctx, http.MethodPost, withAddress(api.RouteProviderStatus, provider), api.ProviderStatusRequest{IsActive: isActive}, nil)
}

func (c *RegistryClient) GetServiceProvider(ctx context.Context, provider interfaces.Identity) (interfaces.ProviderRecord, error) {
	var rec interfaces.ProviderRecord
	err := c.query(ctx, withAddress(api.RouteProviderByAddr, provider), &rec)
	return rec, err
}

func (c *RegistryClient) IsVerifiedProvider(ctx context.Context, provider interfaces.Identity) (bool, error) {
	var resp api.VerifiedResponse
	err := c.query(ctx, withAddress(api.RouteProviderVerified, provider), &resp)
	return resp.Verified, err
}

// Height returns the clock height the server's next transaction would run at.
func (c *RegistryClient) Height(ctx context.Context) (uint64, error) {
	var resp api.HeightResponse
	err := c.query(ctx, api.RouteHeight, &resp)
	return resp.Height, err
}

// Nonce returns the nonce the next signed request of who must carry.
func (c *RegistryClient) Nonce(ctx context.Context, who interfaces.Identity) (uint64, error) {
	var resp api.NonceResponse
	err := c.query(ctx, withAddress(api.RouteNonce, who), &resp)
	return resp.Nonce, err
}

// call sends a signed request carrying the caller's current nonce. A nil
// payload sends an empty body. Concurrent calls with the same key can race
// for a nonce; the loser fails with interfaces.ErrNonceMismatch.
func (c *RegistryClient) call(ctx context.Context, method, path string, payload, out any) error {
	if c.key == nil {
		return ErrNoSigningKey
	}
	nonce, err := c.Nonce(ctx, crypto.PubkeyToAddress(c.key.PublicKey))
	if err != nil {
		return fmt.Errorf("failed to fetch nonce: %w", err)
	}

	var body []byte
	if payload != nil {
		body, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := api.SignRequest(req, body, nonce, c.key); err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *RegistryClient) query(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

func (c *RegistryClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// decodeError turns an error response into the matching sentinel error.
func decodeError(resp *http.Response) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	var errResp api.ErrorResponse
	if err := json.Unmarshal(bodyBytes, &errResp); err == nil {
		if sentinel, ok := kindErrors[errResp.Error]; ok {
			return sentinel
		}
	}
	return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
}

func withID(route string, id interfaces.EquipmentID) string {
	return strings.Replace(route, "{id}", id.String(), 1)
}

func withAddress(route string, addr interfaces.Identity) string {
	return strings.Replace(route, "{address}", addr.Hex(), 1)
}
