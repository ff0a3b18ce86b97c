// Package backend talks to the video analysis backend over HTTP.
//
// Every stage of the pipeline maps to one (or, for Detection, three) JSON
// endpoints. Errors come back as *services.ServiceError values marked with
// services.ErrTransport when the request never produced a response and
// services.ErrBackend when the backend answered with a non-2xx status; in the
// latter case the cause is an *APIError carrying the backend's own message.
//
// The client never retries. Deadlines come from the caller's context and the
// configured per-request timeout.
package backend
