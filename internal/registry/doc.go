// ABOUTME: Package doc for the session registry service
// ABOUTME: Redis-backed user session and thread ownership records

// Package registry implements the session registry HTTP service.
//
// The registry records which user owns an active chat session and which
// user each conversation thread belongs to. Records live in Redis under
// user_session:{user_id} and thread_user_id:{thread_id} keys with a
// rolling TTL, so abandoned sessions expire on their own.
//
// All mutating endpoints require a bearer session token; the user
// identity comes from the token, never from the request body.
package registry
