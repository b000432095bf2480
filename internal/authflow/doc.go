// Package authflow implements the interactive half of the OAuth2
// authorization-code grant against the Pavlok API.
//
// # Authorizer
//
// Authorizer builds the authorization URL and exchanges the returned code:
//
//	auth := authflow.NewAuthorizer(authflow.NewEndpoint(baseURL), clientID, clientSecret, redirectURL)
//	url := auth.AuthCodeURL(state)
//	token, err := auth.Exchange(ctx, code)
//
// # Receiver
//
// Receiver is the local HTTP listener the browser is redirected to. It binds
// synchronously so a busy port is reported before the browser is opened:
//
//	rcv, err := authflow.Listen("localhost:3000", "pavlok")
//	errCh := rcv.Serve(ctx, auth.AuthCodeURL, onResult)
//	_ = authflow.OpenBrowser(rcv.LoginURL())
//
// Each redirect is handed to onResult; its return value decides whether the
// browser lands on the success or the error page.
package authflow
