package api

import (
	"net/http"
	"strings"

	"askdata/internal/catalog"
)

// credentialsFrom maps the request's Authorization header onto Data Catalog
// credentials: HTTP basic carries username and password, bearer carries an
// OAuth token passed through untouched.
func credentialsFrom(r *http.Request) (catalog.Credentials, bool) {
	if user, pass, ok := r.BasicAuth(); ok {
		return catalog.Credentials{Username: user, Password: pass}, true
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && token != "" {
		return catalog.Credentials{Token: token}, true
	}
	return catalog.Credentials{}, false
}
