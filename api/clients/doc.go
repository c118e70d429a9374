/*
Package clients provides a client library for the equipment registry API.

RegistryClient exposes one method per registry operation. Mutating methods
sign the request with the client's secp256k1 key, which makes the key's
address the caller the server authorizes against:

	key, _ := crypto.HexToECDSA(hexKey)
	client := clients.NewRegistryClient("http://localhost:8080", key)

	id, err := client.RegisterEquipment(ctx, api.RegisterEquipmentRequest{
		Name:         "Chiller",
		Manufacturer: "Acme",
	})
	if errors.Is(err, interfaces.ErrForbidden) {
		// ...
	}

Errors reported by the server are returned as the matching sentinel from
the interfaces package, so callers can test them with errors.Is.
*/
package clients
