// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"net"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"
)

// NewHTTPClient returns an HTTP client whose transport advertises
// gzip and transparently decompresses responses. Directory listings
// and /sync bodies compress well.
//
// timeout is the whole-request bound; zero means none. Clients used
// for /sync long-polls must pass zero and rely on per-call contexts,
// since a long-poll legitimately holds the connection for tens of
// seconds.
func NewHTTPClient(timeout time.Duration) *http.Client {
	base := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          32,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	return &http.Client{
		Transport: gzipTransport{RoundTripper: gzhttp.Transport(base), base: base},
		Timeout:   timeout,
	}
}

// gzipTransport forwards CloseIdleConnections to the base transport,
// which the gzhttp wrapper does not expose.
type gzipTransport struct {
	http.RoundTripper
	base *http.Transport
}

func (t gzipTransport) CloseIdleConnections() {
	t.base.CloseIdleConnections()
}
