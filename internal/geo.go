package internal

import (
	"context"
	"net/http"
	"net/url"
)

// GeoClient queries the geolocation endpoints with the session's token
type GeoClient struct {
	api      *APIClient
	identity IdentitySource
}

// NewGeoClient creates a GeoClient
func NewGeoClient(api *APIClient, identity IdentitySource) *GeoClient {
	return &GeoClient{api: api, identity: identity}
}

// Current returns the location of the caller's own IP
func (g *GeoClient) Current(ctx context.Context) (*GeoResult, error) {
	var result GeoResult
	err := g.api.do(ctx, apiRequest{
		op:     "current",
		method: http.MethodGet,
		path:   "/ip/current",
		token:  g.identity.Token(),
	}, &result)
	if err != nil {
		return nil, asServerError("current", "Failed to fetch current IP", err)
	}
	return &result, nil
}

// Lookup geolocates an IPv4 address or domain. Unacceptable input fails
// with a ValidationError before any request.
func (g *GeoClient) Lookup(ctx context.Context, input string) (*GeoResult, error) {
	q, err := ValidateLookup(input)
	if err != nil {
		return nil, err
	}

	var result GeoResult
	err = g.api.do(ctx, apiRequest{
		op:     "lookup",
		method: http.MethodGet,
		path:   "/ip/lookup",
		query:  url.Values{"ip": []string{q}},
		token:  g.identity.Token(),
	}, &result)
	if err != nil {
		return nil, asServerError("lookup", "Lookup failed", err)
	}
	return &result, nil
}
