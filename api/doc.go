/*
Package api defines the wire contract of the equipment registry HTTP API.

It holds the request and response types shared by the server in httpserver
and the client in api/clients, the route table, the server configuration,
and the caller attestation scheme.

# Caller Attestation

Every mutating request names its caller in the X-Registry-Caller header,
carries the caller's next nonce in X-Registry-Nonce and proves both with
X-Registry-Signature, a secp256k1 signature over

	keccak256("\x19Ethereum Signed Message:\n32" || keccak256(method || " " || path || "\n" || nonce || "\n" || body))

The server recovers the signer and rejects the request with 401 unless it
equals the named caller. Nonces start at 0 per caller and are consumed by the
request's transaction whether or not the operation succeeds; a reused or
skipped nonce is rejected with 401 and kind bad_nonce. The next nonce is
served at /api/v1/nonce/{address}. Read-only requests are not signed.

# Errors

Failed requests return {"error": "<kind>"} where kind is one of not_found,
unauthorized, forbidden, invalid_argument, already_deployed, not_deployed,
bad_signature, bad_nonce or internal. No further diagnostic payload is returned.
*/
package api
