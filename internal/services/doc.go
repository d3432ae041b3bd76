// Package services defines the [Tenant] interface for talking to one account on the CRM platform
// and implements it over HTTP.
//
// # Platform Interface
//
// The migration engine never sees wire formats. A [Connector] turns
// [models.AccountCredentials] into a [Tenant], and every engine component (validator,
// analyzer, transfer unit, backup exporter) works against that interface.
//
// # HTTP Implementation
//
// [HTTPConnector] authenticates with the tenant's API key through an [oauth2.StaticTokenSource],
// waits on a per-tenant [rate.Limiter] before each call and bounds every call with a hard timeout.
//
// # Error Handling
//
// Responses are mapped to sentinel errors from the shared package so callers can classify them
// with errors.Is:
//   - 401 : [shared.ErrUnauthorized]
//   - 403 : [shared.ErrForbidden]
//   - 404 : [shared.ErrNotFound]
//   - 409 : [shared.ErrConflict]
//   - 400, 422 : [shared.ErrRejected]
//   - 429 : [shared.ErrRateLimited]
//   - 5xx : [shared.ErrUpstream]
//   - call deadline exceeded : [shared.ErrTimeout]
//   - transport failure : [shared.ErrUnreachable]
//
// # Server Client
//
// [APIService] is a small client for the tmx HTTP API, used by the CLI to reach jobs that run
// inside a `tmx serve` process.
package services
