// Package cleanhttp provides an http client detached from the process
// defaults, so source fetches are unaffected by whatever other code
// does to http.DefaultClient.
package cleanhttp

import (
	"context"
	"net"
	"net/http"
	"time"
)

var Transport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	ForceAttemptHTTP2:     true,
	MaxIdleConns:          10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,

	// Source archives are already compressed; transparent gzip would
	// only burn cycles and hide the true transfer size.
	DisableCompression: true,
}

var Client = &http.Client{
	Transport: Transport,
}

// GetContext issues a GET bound to ctx, canceling the transfer when
// the surrounding operation is canceled.
func GetContext(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", "strata")

	return Client.Do(req)
}
