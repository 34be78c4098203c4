// Package token extracts and decodes bearer credentials presented to API
// Gateway. Signatures are not verified here; Verified Permissions validates the
// token against its identity source when the authorizer asks for a decision.
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingAuthorization is returned when no Authorization header is present.
	ErrMissingAuthorization = errors.New("authorization header is missing")
	// ErrMalformedToken is returned when the credential is not a decodable three-segment token.
	ErrMalformedToken = errors.New("malformed bearer token")
	// ErrMissingClaim is returned when a claim needed to derive an identity is absent.
	ErrMissingClaim = errors.New("required claim missing")
)

const bearerPrefix = "bearer "

// segmentParser only decodes segments; it never verifies.
var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// Claims is the subset of Cognito token claims the handlers rely on.
// Every field is optional; callers check presence explicitly. A claim of an
// unexpected JSON type is treated as absent, never as a malformed token.
type Claims struct {
	Issuer   string
	Subject  string
	Groups   []string
	Username string
	TokenUse string
	// Raw is the complete decoded claim mapping.
	Raw map[string]json.RawMessage
}

func (c *Claims) decode(raw map[string]json.RawMessage) {
	c.Raw = raw
	c.Issuer = stringClaim(raw, "iss")
	c.Subject = stringClaim(raw, "sub")
	c.Username = stringClaim(raw, "cognito:username")
	c.TokenUse = stringClaim(raw, "token_use")
	if v, ok := raw["cognito:groups"]; ok {
		var groups []string
		if json.Unmarshal(v, &groups) == nil {
			c.Groups = groups
		}
	}
}

func stringClaim(raw map[string]json.RawMessage, name string) string {
	v, ok := raw[name]
	if !ok {
		return ""
	}
	var s string
	if json.Unmarshal(v, &s) != nil {
		return ""
	}
	return s
}

// HeaderValue returns the Authorization header from a gateway header map.
// "Authorization" wins over "authorization"; any other casing is accepted last.
func HeaderValue(headers map[string]string) (string, error) {
	if v := headers["Authorization"]; v != "" {
		return v, nil
	}
	if v := headers["authorization"]; v != "" {
		return v, nil
	}
	for k, v := range headers {
		if strings.EqualFold(k, "authorization") && v != "" {
			return v, nil
		}
	}
	return "", ErrMissingAuthorization
}

// StripBearer removes a case-insensitive "bearer " prefix.
func StripBearer(v string) string {
	if len(v) >= len(bearerPrefix) && strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return strings.TrimSpace(v[len(bearerPrefix):])
	}
	return v
}

// FromHeaders returns the raw token carried in the Authorization header.
func FromHeaders(headers map[string]string) (string, error) {
	v, err := HeaderValue(headers)
	if err != nil {
		return "", err
	}
	raw := StripBearer(v)
	if raw == "" {
		return "", fmt.Errorf("%w: empty credential", ErrMalformedToken)
	}
	return raw, nil
}

// ParseClaims decodes the payload segment of raw without verifying it.
// Missing base64 padding is restored before decoding.
func ParseClaims(raw string) (*Claims, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedToken, len(parts))
	}
	payload, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		return nil, fmt.Errorf("%w: payload is not base64url: %v", ErrMalformedToken, err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("%w: payload is not a JSON claim set: %v", ErrMalformedToken, err)
	}
	c := &Claims{}
	c.decode(fields)
	return c, nil
}

// PoolID returns the user pool identifier carried in the issuer URL.
// Cognito issuers look like https://cognito-idp.<region>.amazonaws.com/<poolId>,
// so the pool id is the final path element.
func (c *Claims) PoolID() (string, error) {
	if c.Issuer == "" {
		return "", fmt.Errorf("%w: iss", ErrMissingClaim)
	}
	parts := strings.Split(c.Issuer, "/")
	if len(parts) < 4 || parts[len(parts)-1] == "" {
		return "", fmt.Errorf("%w: iss %q carries no pool id", ErrMissingClaim, c.Issuer)
	}
	return parts[len(parts)-1], nil
}

// PrincipalID returns "<poolId>|<sub>", the identity-pool-qualified subject.
func (c *Claims) PrincipalID() (string, error) {
	pool, err := c.PoolID()
	if err != nil {
		return "", err
	}
	if c.Subject == "" {
		return "", fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	return pool + "|" + c.Subject, nil
}

// PrimaryGroup returns the first group membership, if any.
func (c *Claims) PrimaryGroup() (string, bool) {
	if len(c.Groups) == 0 {
		return "", false
	}
	return c.Groups[0], true
}
