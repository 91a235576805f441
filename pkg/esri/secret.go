package esri

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrBadCredentials indicates the credential payload could not be decoded by
// any known format.
var ErrBadCredentials = errors.New("invalid arcgis credential payload")

// Credentials is a decoded ArcGIS username/password pair.
type Credentials struct {
	Username string
	Password string
}

// CredentialSource yields the raw credential payload. The secret backend
// itself (Secrets Manager, vault, ...) is outside this package; a source just
// hands back whatever string it stores.
type CredentialSource interface {
	Lookup(ctx context.Context) (string, error)
}

// EnvCredentialSource reads the raw payload from an environment variable.
type EnvCredentialSource struct {
	Var string
}

func (s EnvCredentialSource) Lookup(ctx context.Context) (string, error) {
	val := os.Getenv(s.Var)
	if val == "" {
		return "", fmt.Errorf("credential env var %s is empty", s.Var)
	}
	return val, nil
}

// FileCredentialSource reads the raw payload from a file.
type FileCredentialSource struct {
	Path string
}

func (s FileCredentialSource) Lookup(ctx context.Context) (string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return "", fmt.Errorf("read credential file: %w", err)
	}
	return string(data), nil
}

// StaticCredentialSource returns a fixed payload. Used in tests and for
// credentials injected directly through configuration.
type StaticCredentialSource string

func (s StaticCredentialSource) Lookup(ctx context.Context) (string, error) {
	return string(s), nil
}

// DecodeCredentials parses a raw credential payload.
//
// The payload has historically appeared in several encodings (plain JSON,
// JSON with escaped quotes, a doubly-encoded JSON string, a backslash-escaped
// blob). Each decoding strategy is attempted in order until one yields an
// object with a username and password; if all are exhausted the result is a
// single ErrBadCredentials, not a cascade of partial failures.
func DecodeCredentials(raw string) (*Credentials, error) {
	candidates := []string{
		raw,
		strings.TrimSpace(raw),
		strings.ReplaceAll(raw, `\"`, `"`),
	}
	if unquoted, err := strconv.Unquote(`"` + strings.ReplaceAll(raw, `"`, `\"`) + `"`); err == nil {
		candidates = append(candidates, unquoted)
	}

	for _, cand := range candidates {
		obj, ok := decodeObject(cand)
		if !ok {
			continue
		}
		creds, err := credentialsFromObject(obj)
		if err == nil {
			return creds, nil
		}
	}

	return nil, ErrBadCredentials
}

// decodeObject unmarshals a candidate string into a JSON object, unwrapping
// one level of string encoding if the payload was doubly encoded.
func decodeObject(cand string) (map[string]any, bool) {
	var v any
	if err := json.Unmarshal([]byte(cand), &v); err != nil {
		return nil, false
	}
	if s, ok := v.(string); ok {
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			return nil, false
		}
	}
	obj, ok := v.(map[string]any)
	return obj, ok
}

func credentialsFromObject(obj map[string]any) (*Credentials, error) {
	username := firstString(obj, "username", "user", "USERNAME")
	password := firstString(obj, "password", "pass", "PASSWORD")
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username/password required", ErrBadCredentials)
	}
	return &Credentials{Username: username, Password: password}, nil
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}
