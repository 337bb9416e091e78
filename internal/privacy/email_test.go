package privacy

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef-test-secret"

func TestCipher_RoundTrip(t *testing.T) {
	c, err := NewCipher(testSecret)
	require.NoError(t, err)

	ct, err := c.Encrypt("jo@example.com")
	require.NoError(t, err)
	assert.NotContains(t, ct, "example")

	plain, err := c.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, "jo@example.com", plain)
}

func TestCipher_NonceIsRandom(t *testing.T) {
	c, err := NewCipher(testSecret)
	require.NoError(t, err)

	a, err := c.Encrypt("same@example.com")
	require.NoError(t, err)
	b, err := c.Encrypt("same@example.com")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestCipher_DecryptFailures(t *testing.T) {
	c, err := NewCipher(testSecret)
	require.NoError(t, err)
	other, err := NewCipher("another-secret-of-enough-length")
	require.NoError(t, err)

	foreign, err := other.Encrypt("x@example.com")
	require.NoError(t, err)

	for name, ct := range map[string]string{
		"not base64": "%%%",
		"too short":  "AAAA",
		"wrong key":  foreign,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := c.Decrypt(ct)
			assert.ErrorIs(t, err, ErrMalformedCiphertext)
		})
	}
}

func TestNewCipher_EmptySecret(t *testing.T) {
	_, err := NewCipher("")
	assert.Error(t, err)
}

func TestHash(t *testing.T) {
	assert.Len(t, Hash("a@b.nl"), 64)
	assert.Equal(t, Hash(NormalizeEmail(" A@B.nl ")), Hash("a@b.nl"))
	assert.NotEqual(t, Hash("a@b.nl"), Hash("b@b.nl"))
}

func TestMaskEmail(t *testing.T) {
	tests := map[string]string{
		"john@example.com":   "jo**@example.com",
		"johnathan@test.nl":  "jo*******@test.nl",
		"ab@x.org":           "ab**@x.org",
		"a@x.org":            "a**@x.org",
		" Mixed@Case.COM ":   "mi***@case.com",
		"":                   AnonymousLabel,
		"no-at-sign":         AnonymousLabel,
		"@domain.com":        AnonymousLabel,
		"local@":             AnonymousLabel,
		"two@signs@here.com": AnonymousLabel,
		"jö@example.com":     "jö**@example.com",
		"jöhn@example.com":   "jö**@example.com",
		"ÅSA-lund@bo.se":     "ås******@bo.se",
	}
	for in, want := range tests {
		got := MaskEmail(in)
		assert.Equal(t, want, got, "mask %q", in)
		assert.True(t, utf8.ValidString(got), "mask %q", in)
	}
}
