package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const phcVersion = argon2.Version

var b64 = base64.RawStdEncoding

// phc is a decoded $argon2id$ hash string.
type phc struct {
	params Argon2idParams
	salt   []byte
	key    []byte
}

func (p phc) String() string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		phcVersion,
		p.params.MemoryKiB, p.params.Iterations, p.params.Parallelism,
		b64.EncodeToString(p.salt), b64.EncodeToString(p.key),
	)
}

// Hash validates plain against the policy and returns its PHC-encoded
// Argon2id hash.
func (c Config) Hash(plain string) (string, error) {
	if err := c.Validate(plain); err != nil {
		return "", err
	}

	salt := make([]byte, c.Params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password: salt: %w", err)
	}

	out := phc{params: c.Params, salt: salt}
	out.key = derive(plain, out.params, salt, c.Params.KeyLength)
	return out.String(), nil
}

// Verify reports whether plain matches encoded. A mismatch is (false, nil);
// malformed or out-of-bounds hashes return ErrInvalidHash.
func (c Config) Verify(encoded, plain string) (bool, error) {
	h, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	if !c.acceptable(h.params) {
		return false, ErrInvalidHash
	}

	got := derive(plain, h.params, h.salt, uint32(len(h.key))) // #nosec G115 -- key length bounded by acceptable().
	return subtle.ConstantTimeCompare(got, h.key) == 1, nil
}

func derive(plain string, p Argon2idParams, salt []byte, keyLen uint32) []byte {
	return argon2.IDKey([]byte(plain), salt, p.Iterations, p.MemoryKiB, p.Parallelism, keyLen)
}

// acceptable allows older, cheaper hashes and refuses anything costing more
// than twice the configured parameters.
func (c Config) acceptable(got Argon2idParams) bool {
	lim := c.Params
	return got.MemoryKiB <= lim.MemoryKiB*2 &&
		got.Iterations <= lim.Iterations*2 &&
		uint32(got.Parallelism) <= uint32(lim.Parallelism)*2 &&
		got.SaltLength >= 8 && got.SaltLength <= 64 &&
		got.KeyLength >= 16 && got.KeyLength <= 128
}

func parsePHC(s string) (phc, error) {
	f := strings.Split(s, "$")
	if len(f) != 6 || f[0] != "" || f[1] != "argon2id" || f[2] != "v="+strconv.Itoa(phcVersion) {
		return phc{}, ErrInvalidHash
	}

	var p Argon2idParams
	for _, kv := range strings.Split(f[3], ",") {
		name, val, ok := strings.Cut(kv, "=")
		if !ok {
			return phc{}, ErrInvalidHash
		}
		n, err := strconv.ParseUint(val, 10, 32)
		if err != nil || n == 0 {
			return phc{}, ErrInvalidHash
		}
		switch name {
		case "m":
			p.MemoryKiB = uint32(n)
		case "t":
			p.Iterations = uint32(n)
		case "p":
			if n > 255 {
				return phc{}, ErrInvalidHash
			}
			p.Parallelism = uint8(n)
		default:
			return phc{}, ErrInvalidHash
		}
	}
	if p.MemoryKiB == 0 || p.Iterations == 0 || p.Parallelism == 0 {
		return phc{}, ErrInvalidHash
	}

	salt, err := b64.DecodeString(f[4])
	if err != nil {
		return phc{}, ErrInvalidHash
	}
	key, err := b64.DecodeString(f[5])
	if err != nil {
		return phc{}, ErrInvalidHash
	}
	p.SaltLength = uint32(len(salt)) // #nosec G115 -- bounded by the input string length.
	p.KeyLength = uint32(len(key))   // #nosec G115 -- bounded by the input string length.

	return phc{params: p, salt: salt, key: key}, nil
}
