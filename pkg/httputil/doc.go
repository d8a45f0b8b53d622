// Package httputil provides HTTP utilities for standardized request/response handling.
//
// Every error, and every plain acknowledgement, is a JSON object with a single
// Message field:
//
//	httputil.WriteNotFoundError(w, "Task not found.")  // 404 {"Message":"Task not found."}
//	httputil.WriteOK(w, "Username updated successfully.")
//
// Request parsing:
//
//	var req LoginRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // 400 already written
//	}
//	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
//
// Middleware:
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.LoggingMiddleware,
//		httputil.RecoveryMiddleware,
//		httputil.CORSMiddleware([]string{"*"}),
//		httputil.MaxBytesMiddleware(1<<20),
//	)(router)
package httputil
