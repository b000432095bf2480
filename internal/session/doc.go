// Package session owns the in-memory authentication state and drives the
// interactive OAuth2 login.
//
// A Session mirrors the persisted token and tracks whether a login is in
// flight. Only one login may be pending at a time; while it is, API calls and
// further logins are rejected with ErrLoginInProgress.
//
//	sess, err := session.New(ctx, store)
//	res := <-sess.Login(ctx, clientID, clientSecret)
//	if res.Err != nil { ... }
package session
