package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/equipment-registry/api"
	"github.com/ruteri/equipment-registry/hostenv"
	"github.com/ruteri/equipment-registry/interfaces"
)

// RequestError provides structured error information for HTTP responses.
// It includes both an HTTP status code and the underlying error.
type RequestError struct {
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

type callerKey struct{}

type nonceKey struct{}

// Handler serves the registry operations over HTTP. Every mutating request
// runs as one host transaction on behalf of the attested caller.
type Handler struct {
	host        *hostenv.Host
	equipment   interfaces.EquipmentRegistry
	ledger      interfaces.AuthorizationLedger
	credentials interfaces.CredentialRegistry
	log         *slog.Logger
	maxBodySize int64
}

// NewHandler creates a handler running operations of the given registries on host.
func NewHandler(host *hostenv.Host, equipment interfaces.EquipmentRegistry, ledger interfaces.AuthorizationLedger, credentials interfaces.CredentialRegistry, log *slog.Logger) *Handler {
	return &Handler{
		host:        host,
		equipment:   equipment,
		ledger:      ledger,
		credentials: credentials,
		log:         log,
		maxBodySize: api.DefaultMaxBodySize,
	}
}

// SetMaxBodySize changes the request body limit. Non-positive values are ignored.
func (h *Handler) SetMaxBodySize(n int64) {
	if n > 0 {
		h.maxBodySize = n
	}
}

// RegisterRoutes mounts every registry endpoint on r. Mutating endpoints are
// wrapped in Attested.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get(api.RouteLastEquipmentID, h.HandleLastEquipmentID)
	r.Get(api.RouteEquipmentByID, h.HandleGetEquipment)
	r.Get(api.RouteEquipmentExists, h.HandleEquipmentExists)
	r.Get(api.RouteEquipmentOwner, h.HandleEquipmentOwner)
	r.Get(api.RouteContractOwner, h.HandleContractOwner)
	r.Get(api.RouteIsContractOwner, h.HandleIsContractOwner)
	r.Get(api.RouteCertifierByAddr, h.HandleIsCertifier)
	r.Get(api.RouteProviderByAddr, h.HandleGetProvider)
	r.Get(api.RouteProviderVerified, h.HandleIsVerifiedProvider)
	r.Get(api.RouteHeight, h.HandleHeight)
	r.Get(api.RouteNonce, h.HandleNonce)

	r.Group(func(r chi.Router) {
		r.Use(h.Attested)
		r.Post(api.RouteEquipment, h.HandleRegisterEquipment)
		r.Post(api.RouteEquipmentTransfer, h.HandleTransferEquipment)
		r.Post(api.RouteEquipmentMaintenance, h.HandleUpdateMaintenance)
		r.Post(api.RouteCertifiers, h.HandleAddCertifier)
		r.Delete(api.RouteCertifierByAddr, h.HandleRemoveCertifier)
		r.Post(api.RouteProviders, h.HandleRegisterProvider)
		r.Post(api.RouteProviderStatus, h.HandleUpdateProviderStatus)
	})
}

// Attested verifies the caller signature of a request and stores the caller
// and nonce in its context. The body is read once and restored for the next
// handler. The nonce is consumed by the host transaction the request runs.
func (h *Handler) Attested(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		bodyBytes, err := io.ReadAll(io.LimitReader(r.Body, h.maxBodySize+1))
		if err != nil {
			h.writeError(w, &RequestError{http.StatusBadRequest, fmt.Errorf("%w: unreadable body", interfaces.ErrInvalidArgument)})
			return
		}
		if int64(len(bodyBytes)) > h.maxBodySize {
			h.writeError(w, &RequestError{http.StatusRequestEntityTooLarge, fmt.Errorf("%w: body too large", interfaces.ErrInvalidArgument)})
			return
		}
		r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		nonce, err := api.ParseNonce(r.Header.Get(api.NonceHeader))
		if err == nil {
			var caller interfaces.Identity
			caller, err = api.RecoverCaller(r.Method, r.URL.Path, nonce, bodyBytes, r.Header.Get(api.CallerHeader), r.Header.Get(api.SignatureHeader))
			if err == nil {
				ctx := context.WithValue(r.Context(), callerKey{}, caller)
				next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, nonceKey{}, nonce)))
				return
			}
		}
		h.log.Debug("Rejected request signature", "err", err, "path", r.URL.Path)
		h.writeError(w, &RequestError{http.StatusUnauthorized, err})
	})
}

// CallerFrom returns the attested caller of a request, or the empty identity
// for unsigned requests.
func CallerFrom(ctx context.Context) interfaces.Identity {
	caller, _ := ctx.Value(callerKey{}).(interfaces.Identity)
	return caller
}

func (h *Handler) HandleRegisterEquipment(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterEquipmentRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	var id interfaces.EquipmentID
	err := h.execute(r, "register_equipment", func(env interfaces.Env) error {
		var err error
		id, err = h.equipment.RegisterEquipment(env, req.Name, req.Manufacturer, req.Model, req.SerialNumber, req.ManufactureDate)
		return err
	})
	h.respond(w, api.EquipmentIDResponse{ID: id}, err)
}

func (h *Handler) HandleTransferEquipment(w http.ResponseWriter, r *http.Request) {
	id, err := equipmentIDParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req api.TransferEquipmentRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	err = h.execute(r, "transfer_equipment", func(env interfaces.Env) error {
		return h.equipment.TransferEquipment(env, id, req.Recipient)
	})
	h.respond(w, api.OwnerResponse{Owner: req.Recipient}, err)
}

func (h *Handler) HandleUpdateMaintenance(w http.ResponseWriter, r *http.Request) {
	id, err := equipmentIDParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req api.MaintenanceRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	err = h.execute(r, "update_maintenance", func(env interfaces.Env) error {
		return h.equipment.UpdateLastMaintenanceDate(env, id, req.Date)
	})
	h.respond(w, struct{}{}, err)
}

func (h *Handler) HandleGetEquipment(w http.ResponseWriter, r *http.Request) {
	id, err := equipmentIDParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var rec interfaces.EquipmentRecord
	err = h.view(r, func(env interfaces.Env) error {
		var err error
		rec, err = h.equipment.GetEquipmentDetails(env, id)
		return err
	})
	h.respond(w, rec, err)
}

func (h *Handler) HandleEquipmentExists(w http.ResponseWriter, r *http.Request) {
	id, err := equipmentIDParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var exists bool
	err = h.view(r, func(env interfaces.Env) error {
		var err error
		exists, err = h.equipment.EquipmentExists(env, id)
		return err
	})
	h.respond(w, api.ExistsResponse{Exists: exists}, err)
}

func (h *Handler) HandleEquipmentOwner(w http.ResponseWriter, r *http.Request) {
	id, err := equipmentIDParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var owner interfaces.Identity
	err = h.view(r, func(env interfaces.Env) error {
		var err error
		owner, err = h.equipment.EquipmentOwner(env, id)
		return err
	})
	h.respond(w, api.OwnerResponse{Owner: owner}, err)
}

func (h *Handler) HandleLastEquipmentID(w http.ResponseWriter, r *http.Request) {
	var id interfaces.EquipmentID
	err := h.view(r, func(env interfaces.Env) error {
		var err error
		id, err = h.equipment.LastEquipmentID(env)
		return err
	})
	h.respond(w, api.EquipmentIDResponse{ID: id}, err)
}

func (h *Handler) HandleContractOwner(w http.ResponseWriter, r *http.Request) {
	var owner interfaces.Identity
	err := h.view(r, func(env interfaces.Env) error {
		var err error
		owner, err = h.ledger.ContractOwner(env)
		return err
	})
	h.respond(w, api.OwnerResponse{Owner: owner}, err)
}

func (h *Handler) HandleIsContractOwner(w http.ResponseWriter, r *http.Request) {
	who, err := addressParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var isOwner bool
	err = h.view(r, func(env interfaces.Env) error {
		var err error
		isOwner, err = h.ledger.IsContractOwner(env, who)
		return err
	})
	h.respond(w, api.IsOwnerResponse{IsOwner: isOwner}, err)
}

func (h *Handler) HandleIsCertifier(w http.ResponseWriter, r *http.Request) {
	who, err := addressParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var authorized bool
	err = h.view(r, func(env interfaces.Env) error {
		var err error
		authorized, err = h.ledger.IsAuthorizedCertifier(env, who)
		return err
	})
	h.respond(w, api.CertifierResponse{Authorized: authorized}, err)
}

func (h *Handler) HandleAddCertifier(w http.ResponseWriter, r *http.Request) {
	var req api.CertifierRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	err := h.execute(r, "add_certifier", func(env interfaces.Env) error {
		return h.ledger.AddAuthorizedCertifier(env, req.Certifier)
	})
	h.respond(w, api.CertifierResponse{Authorized: true}, err)
}

func (h *Handler) HandleRemoveCertifier(w http.ResponseWriter, r *http.Request) {
	who, err := addressParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	err = h.execute(r, "remove_certifier", func(env interfaces.Env) error {
		return h.ledger.RemoveAuthorizedCertifier(env, who)
	})
	h.respond(w, api.CertifierResponse{Authorized: false}, err)
}

func (h *Handler) HandleRegisterProvider(w http.ResponseWriter, r *http.Request) {
	var req api.RegisterProviderRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	err := h.execute(r, "register_provider", func(env interfaces.Env) error {
		return h.credentials.RegisterServiceProvider(env, req.Provider, req.Name, req.Certification, req.Specialization, req.CertificationExpiry)
	})
	h.respond(w, struct{}{}, err)
}

func (h *Handler) HandleUpdateProviderStatus(w http.ResponseWriter, r *http.Request) {
	provider, err := addressParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	var req api.ProviderStatusRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	err = h.execute(r, "update_provider_status", func(env interfaces.Env) error {
		return h.credentials.UpdateProviderStatus(env, provider, req.IsActive)
	})
	h.respond(w, struct{}{}, err)
}

func (h *Handler) HandleGetProvider(w http.ResponseWriter, r *http.Request) {
	provider, err := addressParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var rec interfaces.ProviderRecord
	err = h.view(r, func(env interfaces.Env) error {
		var err error
		rec, err = h.credentials.GetServiceProvider(env, provider)
		return err
	})
	h.respond(w, rec, err)
}

func (h *Handler) HandleIsVerifiedProvider(w http.ResponseWriter, r *http.Request) {
	provider, err := addressParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var verified bool
	err = h.view(r, func(env interfaces.Env) error {
		var err error
		verified, err = h.credentials.IsVerifiedProvider(env, provider)
		return err
	})
	h.respond(w, api.VerifiedResponse{Verified: verified}, err)
}

func (h *Handler) HandleNonce(w http.ResponseWriter, r *http.Request) {
	who, err := addressParam(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	nonce, err := h.host.Nonce(r.Context(), who)
	h.respond(w, api.NonceResponse{Nonce: nonce}, err)
}

func (h *Handler) HandleHeight(w http.ResponseWriter, r *http.Request) {
	height, err := h.host.Height(r.Context())
	h.respond(w, api.HeightResponse{Height: height}, err)
}

// execute runs fn for an attested request, consuming the request's nonce.
func (h *Handler) execute(r *http.Request, op string, fn hostenv.Operation) error {
	nonce, ok := r.Context().Value(nonceKey{}).(uint64)
	if !ok {
		return &RequestError{http.StatusUnauthorized, api.ErrMissingSignature}
	}
	return h.host.ExecuteSigned(r.Context(), op, CallerFrom(r.Context()), nonce, fn)
}

func (h *Handler) view(r *http.Request, fn hostenv.Operation) error {
	return h.host.View(r.Context(), CallerFrom(r.Context()), fn)
}

func (h *Handler) respond(w http.ResponseWriter, body any, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// writeError reports err as its kind only. Internal failures are logged.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	kind := interfaces.ErrorKind(err)
	if status == http.StatusUnauthorized && !errors.Is(err, interfaces.ErrNonceMismatch) {
		kind = "bad_signature"
	}

	if status >= http.StatusInternalServerError {
		h.log.Error("Request failed", "err", err)
	} else {
		h.log.Debug("Request rejected", "err", err, "kind", kind)
	}
	writeJSON(w, status, api.ErrorResponse{Error: kind})
}

func statusFor(err error) int {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode
	}

	switch {
	case errors.Is(err, interfaces.ErrNonceMismatch):
		return http.StatusUnauthorized
	case errors.Is(err, interfaces.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrUnauthorized), errors.Is(err, interfaces.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, interfaces.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, interfaces.ErrAlreadyDeployed), errors.Is(err, interfaces.ErrNotDeployed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &RequestError{http.StatusBadRequest, fmt.Errorf("%w: invalid request body: %v", interfaces.ErrInvalidArgument, err)}
	}
	return nil
}

func equipmentIDParam(r *http.Request) (interfaces.EquipmentID, error) {
	id, err := interfaces.ParseEquipmentID(chi.URLParam(r, "id"))
	if err != nil {
		return 0, &RequestError{http.StatusBadRequest, err}
	}
	return id, nil
}

func addressParam(r *http.Request) (interfaces.Identity, error) {
	addr, err := interfaces.NewIdentityFromHex(chi.URLParam(r, "address"))
	if err != nil {
		return interfaces.Identity{}, &RequestError{http.StatusBadRequest, err}
	}
	return addr, nil
}
