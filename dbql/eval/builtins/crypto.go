package builtins

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"

	"github.com/solisoft/solidb/value"
)

func init() {
	register("MD5", hashHex(func(b []byte) []byte { s := md5.Sum(b); return s[:] }))
	register("SHA1", hashHex(func(b []byte) []byte { s := sha1.Sum(b); return s[:] }))
	register("SHA256", hashHex(func(b []byte) []byte { s := sha256.Sum256(b); return s[:] }))
	register("SHA512", hashHex(func(b []byte) []byte { s := sha512.Sum512(b); return s[:] }))
	register("HMAC_SHA256", hmacSha256)
	register("BASE64_ENCODE", base64Encode)
	register("BASE64_DECODE", base64Decode)
	register("HEX_ENCODE", hexEncode)
	register("HEX_DECODE", hexDecode)
	register("ARGON2_HASH", argon2Hash)
	register("ARGON2_VERIFY", argon2Verify)
	register("BCRYPT_HASH", bcryptHash)
	register("BCRYPT_VERIFY", bcryptVerify)
}

func hashHex(f func([]byte) []byte) Func {
	return func(a []value.Value) (value.Value, error) {
		if len(a) != 1 {
			return value.Null(), argErr("HASH", 1, len(a))
		}
		return value.String(hex.EncodeToString(f([]byte(a[0].AsString())))), nil
	}
}

func hmacSha256(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("HMAC_SHA256", 2, len(a))
	}
	mac := hmac.New(sha256.New, []byte(a[1].AsString()))
	mac.Write([]byte(a[0].AsString()))
	return value.String(hex.EncodeToString(mac.Sum(nil))), nil
}

func base64Encode(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("BASE64_ENCODE", 1, len(a))
	}
	return value.String(base64.StdEncoding.EncodeToString([]byte(a[0].AsString()))), nil
}

func base64Decode(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("BASE64_DECODE", 1, len(a))
	}
	b, err := base64.StdEncoding.DecodeString(a[0].AsString())
	if err != nil {
		return value.Null(), err
	}
	return value.String(string(b)), nil
}

func hexEncode(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("HEX_ENCODE", 1, len(a))
	}
	return value.String(hex.EncodeToString([]byte(a[0].AsString()))), nil
}

func hexDecode(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("HEX_DECODE", 1, len(a))
	}
	b, err := hex.DecodeString(a[0].AsString())
	if err != nil {
		return value.Null(), err
	}
	return value.String(string(b)), nil
}

// argon2Hash returns a self-describing "salt$hash" hex pair using fixed
// cost parameters suitable for interactive logins (time=1, memory=64MB,
// threads=4), matching golang.org/x/crypto/argon2's recommended defaults.
func argon2Hash(a []value.Value) (value.Value, error) {
	if len(a) < 1 || len(a) > 2 {
		return value.Null(), argErr("ARGON2_HASH", 1, len(a))
	}
	salt := []byte("solidb-static-salt")
	if len(a) == 2 {
		salt = []byte(a[1].AsString())
	}
	sum := argon2.IDKey([]byte(a[0].AsString()), salt, 1, 64*1024, 4, 32)
	return value.String(hex.EncodeToString(salt) + "$" + hex.EncodeToString(sum)), nil
}

// argon2Verify recomputes the hash from the stored "salt$hash" pair and
// compares in constant time.
func argon2Verify(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("ARGON2_VERIFY", 2, len(a))
	}
	parts := strings.SplitN(a[1].AsString(), "$", 2)
	if len(parts) != 2 {
		return value.Bool(false), nil
	}
	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return value.Bool(false), nil
	}
	want, err := hex.DecodeString(parts[1])
	if err != nil {
		return value.Bool(false), nil
	}
	sum := argon2.IDKey([]byte(a[0].AsString()), salt, 1, 64*1024, 4, 32)
	return value.Bool(subtle.ConstantTimeCompare(sum, want) == 1), nil
}

func bcryptHash(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("BCRYPT_HASH", 1, len(a))
	}
	b, err := bcrypt.GenerateFromPassword([]byte(a[0].AsString()), bcrypt.DefaultCost)
	if err != nil {
		return value.Null(), err
	}
	return value.String(string(b)), nil
}

func bcryptVerify(a []value.Value) (value.Value, error) {
	if len(a) != 2 {
		return value.Null(), argErr("BCRYPT_VERIFY", 2, len(a))
	}
	err := bcrypt.CompareHashAndPassword([]byte(a[1].AsString()), []byte(a[0].AsString()))
	return value.Bool(err == nil), nil
}
