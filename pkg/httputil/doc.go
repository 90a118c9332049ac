// Package httputil provides HTTP helpers shared by the API server.
//
// # Response Envelope
//
// Every response body is an Envelope:
//
//	{"success": true, "data": {...}, "warnings": [...]}
//	{"success": false, "code": "SCAN_FAILED", "error": "..."}
//
// Helpers:
//
//	httputil.WriteOK(w, data)
//	httputil.WriteData(w, http.StatusCreated, result, result.Warnings)
//	httputil.WriteError(w, http.StatusInternalServerError, code, err)
//	httputil.WriteNotFound(w, "scan not found")
//
// # Request Parsing
//
// Path and query parameters:
//
//	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
//	limit, err := httputil.ParseQueryInt(r, "limit", 20)
//	age, err := httputil.ParseQueryDuration(r, "older_than", 30*24*time.Hour)
//
// # Middleware
//
//	handler := httputil.Chain(router,
//		httputil.RecoveryMiddleware(logger),
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//	)
//
// RequestIDMiddleware stores the request id in the context, where
// observability.GetRequestID and observability.FromContext pick it up.
package httputil
