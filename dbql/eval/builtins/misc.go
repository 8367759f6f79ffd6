package builtins

import (
	"crypto/rand"
	"encoding/binary"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/solisoft/solidb/dberr"
	"github.com/solisoft/solidb/value"
)

const nanoidAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

const (
	nanoidMinSize = 1
	nanoidMaxSize = 256
)

func init() {
	register("UUID", uuidV4Fn)
	register("UUIDV4", uuidV4Fn)
	register("UUIDV7", uuidV7Fn)
	register("ULID", ulidFn)
	register("NANOID", nanoidFn)
	register("TYPEOF", typeName)
	register("SLEEP", sleepFn)
	register("NOW_ISO", nowISOFn)
}

func uuidV4Fn(a []value.Value) (value.Value, error) {
	if len(a) != 0 {
		return value.Null(), argErr("UUID", 0, len(a))
	}
	return value.String(uuid.NewString()), nil
}

func uuidV7Fn(a []value.Value) (value.Value, error) {
	if len(a) != 0 {
		return value.Null(), argErr("UUIDV7", 0, len(a))
	}
	id, err := uuid.NewV7()
	if err != nil {
		return value.Null(), err
	}
	return value.String(id.String()), nil
}

// ulidFn builds a 26-char Crockford base32 ULID: a 48-bit millisecond
// timestamp followed by 80 bits of randomness, matching the canonical
// ULID spec used for sortable identifiers.
const crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

func ulidFn(a []value.Value) (value.Value, error) {
	if len(a) != 0 {
		return value.Null(), argErr("ULID", 0, len(a))
	}
	var buf [16]byte
	ms := uint64(time.Now().UnixMilli())
	binary.BigEndian.PutUint64(buf[:8], ms<<16)
	if _, err := rand.Read(buf[6:]); err != nil {
		return value.Null(), err
	}
	binary.BigEndian.PutUint64(buf[:8], ms<<16|uint64(buf[6])<<8|uint64(buf[7]))
	return value.String(encodeCrockford(buf)), nil
}

// encodeCrockford renders the 128-bit ULID payload as 26 base32 characters
// (130 bits total, so the top 2 bits are always zero).
func encodeCrockford(buf [16]byte) string {
	n := new(big.Int).SetBytes(buf[:])
	out := make([]byte, 26)
	mask := big.NewInt(0x1F)
	tmp := new(big.Int)
	for i := 25; i >= 0; i-- {
		tmp.And(n, mask)
		out[i] = crockfordAlphabet[tmp.Int64()]
		n.Rsh(n, 5)
	}
	return string(out)
}

func sleepFn(a []value.Value) (value.Value, error) {
	if len(a) != 1 {
		return value.Null(), argErr("SLEEP", 1, len(a))
	}
	secs := a[0].ToFloat()
	if secs > 0 {
		time.Sleep(time.Duration(secs * float64(time.Second)))
	}
	return value.Null(), nil
}

func nowISOFn(a []value.Value) (value.Value, error) {
	if len(a) != 0 {
		return value.Null(), argErr("NOW_ISO", 0, len(a))
	}
	return value.String(time.Now().UTC().Format(time.RFC3339Nano)), nil
}

func nanoidFn(a []value.Value) (value.Value, error) {
	size := 21
	if len(a) == 1 {
		size = int(a[0].ToFloat())
	} else if len(a) > 1 {
		return value.Null(), argErr("NANOID", 1, len(a))
	}
	if size < nanoidMinSize || size > nanoidMaxSize {
		return value.Null(), dberr.New(dberr.ExecutionError, "NANOID: size must be between %d and %d, got %d", nanoidMinSize, nanoidMaxSize, size)
	}
	buf := make([]byte, size)
	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return value.Null(), err
	}
	for i, b := range raw {
		buf[i] = nanoidAlphabet[int(b)%len(nanoidAlphabet)]
	}
	return value.String(string(buf)), nil
}
