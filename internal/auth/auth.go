package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"slices"
	"strings"
)

const (
	RoleDataReader = "data_reader"
	RoleAgentUser  = "agent_user"
)

var knownRoles = []string{RoleDataReader, RoleAgentUser}

// Identity is the caller behind an API key. Subject names the client for
// logs; it carries no authority of its own.
type Identity struct {
	Subject string
	Roles   []string
}

func (i Identity) HasRole(role string) bool {
	return slices.Contains(i.Roles, role)
}

type APIKeyValidator interface {
	Validate(ctx context.Context, apiKey string) (Identity, bool)
}

type staticKey struct {
	digest   [sha256.Size]byte
	identity Identity
}

// StaticAPIKeyValidator checks keys from a "key:subject:role|role,..." list.
type StaticAPIKeyValidator struct {
	keys []staticKey
}

func NewStaticAPIKeyValidator(spec string) (*StaticAPIKeyValidator, error) {
	validator := &StaticAPIKeyValidator{}
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return validator, nil
	}

	seen := map[string]bool{}
	for _, entry := range strings.Split(spec, ",") {
		parts := strings.Split(strings.TrimSpace(entry), ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid static key entry %q: expected key:subject:role|role", entry)
		}
		key := strings.TrimSpace(parts[0])
		subject := strings.TrimSpace(parts[1])
		if key == "" || subject == "" {
			return nil, fmt.Errorf("invalid static key entry %q: empty key/subject", entry)
		}
		if seen[key] {
			return nil, fmt.Errorf("invalid static key entry %q: duplicate key", entry)
		}
		seen[key] = true

		var roles []string
		for _, role := range strings.Split(parts[2], "|") {
			role = strings.TrimSpace(role)
			if role == "" {
				continue
			}
			if !slices.Contains(knownRoles, role) {
				return nil, fmt.Errorf("invalid static key entry %q: unknown role %q", entry, role)
			}
			roles = append(roles, role)
		}
		if len(roles) == 0 {
			return nil, fmt.Errorf("invalid static key entry %q: at least one role is required", entry)
		}
		slices.Sort(roles)
		validator.keys = append(validator.keys, staticKey{
			digest:   sha256.Sum256([]byte(key)),
			identity: Identity{Subject: subject, Roles: slices.Compact(roles)},
		})
	}
	return validator, nil
}

// Validate compares digests in constant time and always walks every key.
func (v *StaticAPIKeyValidator) Validate(_ context.Context, apiKey string) (Identity, bool) {
	digest := sha256.Sum256([]byte(apiKey))
	var (
		found   Identity
		matched bool
	)
	for _, candidate := range v.keys {
		if subtle.ConstantTimeCompare(digest[:], candidate.digest[:]) == 1 {
			found = candidate.identity
			matched = true
		}
	}
	return found, matched
}
