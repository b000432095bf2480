// Package pavlok controls a Pavlok device through its remote API.
//
// A Client logs in with the OAuth2 authorization-code grant, keeps the access
// token on disk and sends beep, vibration and shock commands:
//
//	client, err := pavlok.New(ctx, pavlok.WithVerbose(true))
//	if err != nil { ... }
//	res := <-client.Login(ctx, clientID, clientSecret)
//	if res.Err != nil { ... }
//	msg, err := client.Beep(ctx, 128)
//
// Login needs the local port 3000 for the browser redirect and write access to
// the token file (./pavlok-token.json unless configured otherwise). A stored
// token is reused without opening a browser; a 401 from the API clears it.
package pavlok
