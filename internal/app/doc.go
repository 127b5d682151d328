// Package app wires gatekeep's components together.
//
// NewApplication loads and validates the configuration, initialises logging
// and builds the session stack: the identity client, the optional OAuth code
// exchanger and loopback listener, the credential file store and the session
// manager that owns them. Commands obtain the manager from the Application
// and never construct components themselves.
//
// Example:
//
//	application, err := app.NewApplication(app.NewConfig("", "", false))
//	if err != nil {
//	    return err
//	}
//	defer application.Close()
//	token, err := application.Manager().GetAccessToken(ctx)
package app
