// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package client is a Go client for the voting API.

The signed-in state is a Session value passed to the Client, not a package
global:

	session := client.NewSession()
	session.Subscribe(func(s client.SessionState) { ... })

	c := client.New("http://localhost:5000", nil, session)
	voter, err := c.Login(ctx, "s1234567", password, capture.Descriptor)

Non-2xx responses come back as *APIError with the lockout counters when the
server sent them:

	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Locked() {
		fmt.Println("try again in", *apiErr.MinutesRemaining, "minutes")
	}
*/
package client
