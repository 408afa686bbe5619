package utils

import "time"

// Descriptor is one remote-file record lifted out of a manifest document.
// SizeBytes is -1 and SHA1 is empty when the manifest doesn't provide them.
type Descriptor struct {
	Name      string
	SourceURL string
	SizeBytes int64
	SHA1      string
}

type HTTPClientConfig struct {
	Timeout   time.Duration
	KATimeout time.Duration
	ProxyURL  string
	UserAgent string
	Headers   map[string]string
}
