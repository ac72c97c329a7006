// Package api is the HTTP surface over the conversion engine. It translates
// internal job and subtitle models into transport-friendly DTOs and routes
// requests with go-chi.
//
// # Routes
//
//	POST /v1/conversions                  submit an asset (multipart "file" or raw body)
//	GET  /v1/conversions                  list jobs, optional ?status=
//	GET  /v1/conversions/{id}             job status
//	POST /v1/conversions/{id}/subtitles   request languages
//	GET  /v1/conversions/{id}/subtitles   subtitle status
//	POST /v1/conversions/{id}/subtitles/{lang}/retry
//	POST /v1/runs/{reconcile|sweep|subtitles}
//	GET  /healthz
//	GET  /metrics                         when metrics are enabled
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
// Errors are mapped from the services sentinel kinds: validation is 400,
// not found is 404, precondition is 409, configuration is 503, and anything
// else is 500. Every response carries an {"error": ...} body on failure.
package api
