// Package auth provides the authenticated principal and bearer-token handling for the
// medtrail back office.
//
// # Overview
//
// Authentication itself (login, sessions, password storage) lives outside this service.
// Requests arrive with an HS256 bearer token; TokenManager verifies it and yields a
// Principal, which middleware attaches to the request context.
//
//	tm, _ := auth.NewTokenManager(secret)
//	token, _ := tm.Issue(auth.Principal{UserID: "u-1", Role: auth.RoleLabTech, Username: "maria"}, time.Hour)
//	principal, err := tm.Verify(token)
//
// # Related Packages
//
//   - pkg/middleware: attaches the Principal to requests
//   - pkg/audit: attributes recorded actions to the Principal
package auth
