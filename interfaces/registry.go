package interfaces

// Env is the view of the host a registry operation runs against. One Env
// exists per transaction; the host serializes transactions, so operations
// never lock. Writes are staged and become visible to other transactions only
// if the operation returns without error.
type Env interface {
	// Caller is the authenticated invoker of the current transaction.
	Caller() Identity

	// Height is the clock value the transaction executes at.
	Height() uint64

	// Get returns the value stored under collection/key, or ErrKeyNotFound.
	Get(collection, key string) ([]byte, error)
	Set(collection, key string, value []byte) error
	Delete(collection, key string) error

	// Counter returns a persisted scalar and whether it was ever set.
	Counter(name string) (uint64, bool, error)
	SetCounter(name string, value uint64) error

	// Mint binds a new tokenized ownership record (assetClass, id) to owner.
	Mint(assetClass string, id uint64, owner Identity) error
	// TransferOwnership rebinds (assetClass, id) from its current holder to another.
	TransferOwnership(assetClass string, id uint64, from, to Identity) error
	// OwnerOf returns the holder of (assetClass, id), or ErrKeyNotFound.
	OwnerOf(assetClass string, id uint64) (Identity, error)

	// Emit records an event, delivered to sinks once the transaction commits.
	Emit(event Event)
}

// EquipmentRegistry is the equipment asset registry as exposed to callers.
type EquipmentRegistry interface {
	RegisterEquipment(env Env, name, manufacturer, model, serialNumber string, manufactureDate uint64) (EquipmentID, error)
	TransferEquipment(env Env, id EquipmentID, recipient Identity) error
	GetEquipmentDetails(env Env, id EquipmentID) (EquipmentRecord, error)
	EquipmentExists(env Env, id EquipmentID) (bool, error)
	EquipmentOwner(env Env, id EquipmentID) (Identity, error)
	UpdateLastMaintenanceDate(env Env, id EquipmentID, date uint64) error
	LastEquipmentID(env Env) (EquipmentID, error)
}

// CredentialRegistry is the service-provider credential registry as exposed to callers.
type CredentialRegistry interface {
	RegisterServiceProvider(env Env, provider Identity, name, certification, specialization string, certificationExpiry uint64) error
	UpdateProviderStatus(env Env, provider Identity, isActive bool) error
	GetServiceProvider(env Env, provider Identity) (ProviderRecord, error)
	IsVerifiedProvider(env Env, provider Identity) (bool, error)
}
