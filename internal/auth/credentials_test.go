package auth

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractBasicToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{header: "Basic abc", token: "abc", ok: true},
		{header: "Basic ", token: "", ok: true},
		{header: "Bearer xyz", ok: false},
		{header: "Basicxyz", ok: false},
		{header: "basic abc", ok: false},
		{header: "Basic", ok: false},
		{header: "", ok: false},
	}
	for _, tt := range tests {
		token, ok := ExtractBasicToken(tt.header)
		assert.Equal(t, tt.ok, ok, "header %q", tt.header)
		assert.Equal(t, tt.token, token, "header %q", tt.header)
	}
}

func TestDecodeToken(t *testing.T) {
	got, ok := DecodeToken(base64.StdEncoding.EncodeToString([]byte("a:b")))
	assert.True(t, ok)
	assert.Equal(t, "a:b", got)

	_, ok = DecodeToken(base64.StdEncoding.EncodeToString([]byte("noseparator")))
	assert.False(t, ok)

	_, ok = DecodeToken("not base64!")
	assert.False(t, ok)
}

func TestSplitCredentials(t *testing.T) {
	c, ok := SplitCredentials("a@x.com:pw1")
	assert.True(t, ok)
	assert.Equal(t, Credentials{Email: "a@x.com", Password: "pw1"}, c)

	c, ok = SplitCredentials("a@x.com:p:w")
	assert.True(t, ok)
	assert.Equal(t, "p:w", c.Password)

	for _, in := range []string{":pw", "a@x.com:", ":", "nocolon"} {
		_, ok := SplitCredentials(in)
		assert.False(t, ok, "input %q", in)
	}
}

func TestParseBasicAuthorization(t *testing.T) {
	c, ok := ParseBasicAuthorization(basicHeader("a@x.com", "pw1"))
	assert.True(t, ok)
	assert.Equal(t, "a@x.com", c.Email)

	_, ok = ParseBasicAuthorization("Bearer " + base64.StdEncoding.EncodeToString([]byte("a:b")))
	assert.False(t, ok)
}
