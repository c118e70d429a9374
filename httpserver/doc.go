/*
Package httpserver serves the equipment registry over HTTP.

Handler maps each registry operation onto a route of the api package and
runs it as one host transaction. Mutating routes pass through Attested,
which recovers the caller from the request signature; the recovered address
is the caller every authorization check sees. The request nonce is consumed
by the host transaction, so a captured request cannot be replayed. Read routes are unsigned and
run as read-only views.

Server wraps the handler with request logging, health endpoints, drain
control, optional pprof and the metrics server.

# Endpoints

  - POST   /api/v1/equipment                          register equipment
  - GET    /api/v1/equipment/last                     highest issued id
  - GET    /api/v1/equipment/{id}                     equipment details
  - GET    /api/v1/equipment/{id}/exists              existence check
  - GET    /api/v1/equipment/{id}/owner               ownership ledger holder
  - POST   /api/v1/equipment/{id}/transfer            transfer
  - POST   /api/v1/equipment/{id}/maintenance         set maintenance date
  - GET    /api/v1/governance/owner                   contract owner
  - GET    /api/v1/governance/owner/{address}         is contract owner
  - POST   /api/v1/governance/certifiers              add certifier
  - GET    /api/v1/governance/certifiers/{address}    is certifier
  - DELETE /api/v1/governance/certifiers/{address}    remove certifier
  - POST   /api/v1/providers                          register provider
  - GET    /api/v1/providers/{address}                provider record
  - GET    /api/v1/providers/{address}/verified       verification status
  - POST   /api/v1/providers/{address}/status         set active flag
  - GET    /api/v1/height                             current clock height
  - GET    /api/v1/nonce/{address}                    next request nonce
  - GET    /livez, /readyz, /drain, /undrain          health and drain

# Status Codes

not_found maps to 404, unauthorized and forbidden to 403, invalid_argument
to 400, already_deployed and not_deployed to 409, a bad or missing
signature and a used or out-of-order nonce (bad_nonce) to 401 and everything
else to 500.
*/
package httpserver
