package httpclient

import (
	"crypto/tls"
	"net/http"
	"time"
)

const defaultTimeout = 30 * time.Second

// New returns the client shared by all calls against one remote service.
// Certificate verification stays on unless explicitly disabled.
func New(insecureSkipVerify bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &http.Client{
		Transport: transport,
		Timeout:   defaultTimeout,
	}
}
