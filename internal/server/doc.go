// Package server exposes the migration engine over HTTP.
//
// # Router Infrastructure
//
// [NewRouter] builds a chi router with request ids, panic recovery and request logging through
// the shared [log.Logger]. Groups of routes implement [Handler] and mount themselves on the router.
//
// # API
//
// [API] maps the engine operations onto JSON endpoints:
//
//	POST   /api/validate          → validate a source and destination account
//	POST   /api/analyze           → count the records of a source account
//	POST   /api/backup            → full export of a source account as a JSON attachment
//	GET    /api/jobs              → job history, newest first (?limit=)
//	POST   /api/jobs              → start a job, 202 with its id
//	GET    /api/jobs/{id}         → job status
//	DELETE /api/jobs/{id}         → request cancellation, 202
//	GET    /api/jobs/{id}/errors  → the job's error log (?limit=)
//	GET    /api/jobs/{id}/events  → server-sent progress events until the job ends
//	GET    /health                → liveness
//
// Credentials are accepted in request bodies only and never written to a response.
//
// # Errors
//
// Errors are returned as {"error": "..."}. Invalid input maps to 400, unknown jobs to 404, a busy
// destination or an already finished job to 409 and account failures to 502.
//
// # Progress Streaming
//
// The events endpoint polls the job store at the configured interval and sends a "progress" event
// whenever the job changed, then a final "done" event once it is terminal. Polling the status
// endpoint observes exactly the same states.
package server
