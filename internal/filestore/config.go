package filestore

import (
	"fmt"
	"strings"

	"github.com/koustreak/s3nav/internal/logger"
)

// DefaultRegion is used when ConnectionParams.Region is empty. Setting a
// region up front spares one bucket-location round trip per client.
const DefaultRegion = "us-east-1"

// ConnectionParams holds everything needed to reach an S3-compatible store.
// It is a value type built by the caller for every call; the client keeps
// no session between calls.
type ConnectionParams struct {
	// Endpoint is the host[:port] of the store.
	// A scheme prefix ("https://host") is accepted and stripped.
	Endpoint string

	// AccessKey is the access key ID. Logged only in redacted form.
	AccessKey string

	// SecretKey is the secret access key. Never logged.
	SecretKey string

	// UseTLS selects https.
	UseTLS bool

	// Region is sent in request signatures. Empty means DefaultRegion.
	Region string

	// PathStyle selects path-style bucket addressing (host/bucket/key).
	// When false the bucket is prepended to the host (virtual-host style).
	PathStyle bool
}

// DefaultParams returns params for a TLS endpoint in DefaultRegion.
func DefaultParams(endpoint, accessKey, secretKey string) ConnectionParams {
	return ConnectionParams{
		Endpoint:  endpoint,
		AccessKey: accessKey,
		SecretKey: secretKey,
		UseTLS:    true,
		Region:    DefaultRegion,
	}
}

// RegionOrDefault returns Region, or DefaultRegion when it is unset.
func (p ConnectionParams) RegionOrDefault() string {
	if p.Region == "" {
		return DefaultRegion
	}
	return p.Region
}

// String describes the params without leaking credentials.
func (p ConnectionParams) String() string {
	scheme := "http"
	if p.UseTLS {
		scheme = "https"
	}
	style := "virtual-host"
	if p.PathStyle {
		style = "path"
	}
	return fmt.Sprintf("%s://%s region=%s style=%s access_key=%s",
		scheme, p.Endpoint, p.RegionOrDefault(), style, logger.Redact(p.AccessKey))
}

// NormalizeEndpoint strips a scheme and trailing slash from endpoint and
// reports whether the scheme asked for TLS. The endpoint must not carry a
// path.
func NormalizeEndpoint(endpoint string) (host string, tls bool, hasScheme bool, err error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return "", false, false, fmt.Errorf("endpoint cannot be empty")
	}

	switch {
	case strings.HasPrefix(endpoint, "https://"):
		endpoint, tls, hasScheme = strings.TrimPrefix(endpoint, "https://"), true, true
	case strings.HasPrefix(endpoint, "http://"):
		endpoint, hasScheme = strings.TrimPrefix(endpoint, "http://"), true
	}

	endpoint = strings.TrimSuffix(endpoint, "/")
	if strings.Contains(endpoint, "/") {
		return "", false, false, fmt.Errorf("endpoint must be host[:port] without a path (got %q)", endpoint)
	}
	if endpoint == "" {
		return "", false, false, fmt.Errorf("endpoint has no host")
	}
	return endpoint, tls, hasScheme, nil
}
