// Package auth builds outbound HTTP clients authenticated with the OAuth2
// client credentials flow and verifies the bearer tokens of inbound API
// calls.
package auth

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

// Client returns an HTTP client that fetches, caches and refreshes bearer
// tokens for every request. base carries the transport and timeout; nil
// selects http.DefaultClient. Without credentials base is returned as is.
func Client(ctx context.Context, conf Conf, base *http.Client) (*http.Client, error) {
	if base == nil {
		base = http.DefaultClient
	}
	if !conf.Enabled() {
		return base, nil
	}
	if conf.TokenURL == "" {
		return nil, fmt.Errorf("token_url is required with client credentials")
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	cc := conf.toOauth2Config()
	c := cc.Client(ctx)
	c.Timeout = base.Timeout
	return c, nil
}
