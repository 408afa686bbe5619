package utils

import (
	"net"
	"net/http"
	"net/url"
	"time"
)

type AriaHTTPClient struct {
	client *http.Client
	config HTTPClientConfig
}

// NewAriaHTTPClient builds a client whose Timeout bounds dialing, TLS and
// waiting for response headers, not the body stream. Recording files run to
// many GB, so a transfer that is still moving bytes must be able to outlive
// the timeout; only a stalled connection fails.
func NewAriaHTTPClient(cfg HTTPClientConfig) *AriaHTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.KATimeout == 0 {
		cfg.KATimeout = 60 * time.Second
	}
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.Timeout,
		ResponseHeaderTimeout: cfg.Timeout,
		IdleConnTimeout:       cfg.KATimeout,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		DisableCompression:    true,
		MaxConnsPerHost:       0,
	}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return &AriaHTTPClient{
		client: &http.Client{
			Transport: transport,
		},
		config: cfg,
	}
}

func (a *AriaHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if a.config.UserAgent != "" {
		req.Header.Set("User-Agent", a.config.UserAgent)
	} else {
		req.Header.Set("User-Agent", ToolUserAgent)
	}
	for k, v := range a.config.Headers {
		req.Header.Set(k, v)
	}
	return a.client.Do(req)
}
