package httptransport

import (
	"net/http"
)

const APIKeyHeader = "Raven-Api-Key"

// Authenticator is implemented by credentials which know how to sign a
// request.  The routing layer treats Node.Credentials as opaque, the
// transport applies it when it satisfies this interface.
type Authenticator interface {
	Authenticate(req *http.Request) error
}

type BasicCredentials struct {
	Username string
	Password string
}

var _ Authenticator = (*BasicCredentials)(nil)

func (c *BasicCredentials) Authenticate(req *http.Request) error {
	req.SetBasicAuth(c.Username, c.Password)
	return nil
}

type APIKeyCredentials struct {
	Key string
}

var _ Authenticator = (*APIKeyCredentials)(nil)

func (c *APIKeyCredentials) Authenticate(req *http.Request) error {
	req.Header.Set(APIKeyHeader, c.Key)
	return nil
}

func authenticate(req *http.Request, credentials any) error {
	auth, ok := credentials.(Authenticator)
	if !ok || auth == nil {
		return nil
	}
	return auth.Authenticate(req)
}
