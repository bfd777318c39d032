package identity

import (
	"crypto/rand"
	"math/big"

	goerrors "github.com/goliatone/go-errors"
)

// keyAlphabet matches the character set used for activation keys and
// temporary passwords. Alphanumeric keeps the tokens URL and mail safe.
const keyAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// KeyGenerator produces unguessable token strings.
type KeyGenerator interface {
	Generate(length int) (string, error)
}

// RandomKeyGenerator draws from crypto/rand. Entropy exhaustion is the
// only failure mode and it is surfaced, never papered over with a weaker
// source.
type RandomKeyGenerator struct{}

// Generate returns a random string of the given length.
func (RandomKeyGenerator) Generate(length int) (string, error) {
	if length <= 0 {
		return "", goerrors.New("key length must be positive", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"length": length})
	}

	max := big.NewInt(int64(len(keyAlphabet)))
	out := make([]byte, length)

	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", goerrors.Wrap(err, goerrors.CategoryInternal, "secure random source failed")
		}
		out[i] = keyAlphabet[n.Int64()]
	}

	return string(out), nil
}

// KeyGeneratorFunc adapts a function to the KeyGenerator interface.
type KeyGeneratorFunc func(length int) (string, error)

// Generate implements KeyGenerator.
func (f KeyGeneratorFunc) Generate(length int) (string, error) {
	return f(length)
}
