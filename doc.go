// Package courseauth implements the authentication token lifecycle for the
// course-marketplace backend: issuance and rotation of access/refresh token
// pairs, server-side revocation and blacklisting, and brute-force login
// throttling.
//
// The entry point is the [Manager], constructed through [New]:
//
//	manager, err := courseauth.New().
//		WithConfig(courseauth.DefaultConfig()).
//		WithRedis(rdb).
//		WithCredentialStore(users).
//		Build()
//
// Redis is the single source of truth for revocation state: refresh-token
// validity records, the access-token blacklist, and login-attempt counters
// all live there with per-key TTLs. The Manager holds no cross-request
// state, so it is safe under concurrent invocations for the same subject;
// rotation correctness rests on an atomic compare-and-delete in the store,
// not on in-process locks.
//
// Subpackages: jwt (token codec), store (revocation store adapter), rate
// (login throttling), password (argon2id hashing), middleware (HTTP guard),
// httpapi (HTTP surface), client (calling-side refresh coordinator).
package courseauth
