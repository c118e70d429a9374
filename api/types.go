package api

import (
	"github.com/ruteri/equipment-registry/interfaces"
)

// Routes served by the registry API. Parameters use chi's {name} syntax.
const (
	RouteEquipment            = "/api/v1/equipment"
	RouteEquipmentByID        = "/api/v1/equipment/{id}"
	RouteEquipmentExists      = "/api/v1/equipment/{id}/exists"
	RouteEquipmentOwner       = "/api/v1/equipment/{id}/owner"
	RouteEquipmentTransfer    = "/api/v1/equipment/{id}/transfer"
	RouteEquipmentMaintenance = "/api/v1/equipment/{id}/maintenance"
	RouteLastEquipmentID      = "/api/v1/equipment/last"

	RouteContractOwner    = "/api/v1/governance/owner"
	RouteIsContractOwner  = "/api/v1/governance/owner/{address}"
	RouteCertifiers       = "/api/v1/governance/certifiers"
	RouteCertifierByAddr  = "/api/v1/governance/certifiers/{address}"
	RouteProviders        = "/api/v1/providers"
	RouteProviderByAddr   = "/api/v1/providers/{address}"
	RouteProviderVerified = "/api/v1/providers/{address}/verified"
	RouteProviderStatus   = "/api/v1/providers/{address}/status"
	RouteHeight           = "/api/v1/height"
	RouteNonce            = "/api/v1/nonce/{address}"
)

// RegisterEquipmentRequest is the body of POST /api/v1/equipment.
type RegisterEquipmentRequest struct {
	Name            string `json:"name"`
	Manufacturer    string `json:"manufacturer"`
	Model           string `json:"model"`
	SerialNumber    string `json:"serial_number"`
	ManufactureDate uint64 `json:"manufacture_date"`
}

// TransferEquipmentRequest is the body of POST /api/v1/equipment/{id}/transfer.
type TransferEquipmentRequest struct {
	Recipient interfaces.Identity `json:"recipient"`
}

// MaintenanceRequest is the body of POST /api/v1/equipment/{id}/maintenance.
type MaintenanceRequest struct {
	Date uint64 `json:"date"`
}

// CertifierRequest is the body of POST /api/v1/governance/certifiers.
type CertifierRequest struct {
	Certifier interfaces.Identity `json:"certifier"`
}

// RegisterProviderRequest is the body of POST /api/v1/providers.
type RegisterProviderRequest struct {
	Provider            interfaces.Identity `json:"provider"`
	Name                string              `json:"name"`
	Certification       string              `json:"certification"`
	Specialization      string              `json:"specialization"`
	CertificationExpiry uint64              `json:"certification_expiry"`
}

// ProviderStatusRequest is the body of POST /api/v1/providers/{address}/status.
type ProviderStatusRequest struct {
	IsActive bool `json:"is_active"`
}

type EquipmentIDResponse struct {
	ID interfaces.EquipmentID `json:"id"`
}

type ExistsResponse struct {
	Exists bool `json:"exists"`
}

type OwnerResponse struct {
	Owner interfaces.Identity `json:"owner"`
}

type IsOwnerResponse struct {
	IsOwner bool `json:"is_owner"`
}

type CertifierResponse struct {
	Authorized bool `json:"authorized"`
}

type VerifiedResponse struct {
	Verified bool `json:"verified"`
}

type HeightResponse struct {
	Height uint64 `json:"height"`
}

// NonceResponse carries the nonce the next signed request of an address must use.
type NonceResponse struct {
	Nonce uint64 `json:"nonce"`
}

// ErrorResponse carries only the failure kind, see interfaces.ErrorKind.
type ErrorResponse struct {
	Error string `json:"error"`
}
