package auth

import (
	"encoding/base64"
	"strings"
)

const basicScheme = "Basic "

// ExtractBasicToken returns the payload of a "Basic <payload>" header value.
// The scheme match is exact and case-sensitive.
func ExtractBasicToken(header string) (string, bool) {
	if len(header) < len(basicScheme) || header[:len(basicScheme)] != basicScheme {
		return "", false
	}
	return header[len(basicScheme):], true
}

// DecodeToken base64-decodes token and reports false when the result has no
// ':' separator.
func DecodeToken(token string) (string, bool) {
	b, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return "", false
	}
	decoded := string(b)
	if !strings.Contains(decoded, ":") {
		return "", false
	}
	return decoded, true
}

// SplitCredentials splits decoded on its first ':'. Both halves must be
// non-empty; the password may itself contain ':'.
func SplitCredentials(decoded string) (Credentials, bool) {
	email, password, found := strings.Cut(decoded, ":")
	if !found || email == "" || password == "" {
		return Credentials{}, false
	}
	return Credentials{Email: email, Password: password}, true
}

func ParseBasicAuthorization(header string) (Credentials, bool) {
	token, ok := ExtractBasicToken(header)
	if !ok {
		return Credentials{}, false
	}
	decoded, ok := DecodeToken(token)
	if !ok {
		return Credentials{}, false
	}
	return SplitCredentials(decoded)
}
