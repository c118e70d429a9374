package interfaces

import "context"

// EventKind names a committed registry state change.
type EventKind string

const (
	EventEquipmentRegistered  EventKind = "equipment-registered"
	EventEquipmentTransferred EventKind = "equipment-transferred"
	EventMaintenanceUpdated   EventKind = "maintenance-updated"
	EventCertifierAdded       EventKind = "certifier-added"
	EventCertifierRemoved     EventKind = "certifier-removed"
	EventProviderRegistered   EventKind = "provider-registered"
	EventProviderStatus       EventKind = "provider-status-updated"
	EventRegistryDeployed     EventKind = "registry-deployed"
)

// Event describes one state change. Height and Caller are filled in by the host.
type Event struct {
	Kind       EventKind         `json:"kind"`
	Height     uint64            `json:"height"`
	Caller     Identity          `json:"caller"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// EventSink receives events of committed transactions, in commit order.
type EventSink interface {
	Ingest(ctx context.Context, events []Event) error
}
