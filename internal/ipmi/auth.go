// internal/ipmi/auth.go
package ipmi

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"strings"
)

// AuthType selects how the activation auth code is derived from the password.
type AuthType byte

const (
	AuthNone     AuthType = 0x00
	AuthMD5      AuthType = 0x02
	AuthPassword AuthType = 0x04
)

// ParseAuthType accepts the config spellings "none", "md5" and "password".
func ParseAuthType(s string) (AuthType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return AuthNone, nil
	case "md5":
		return AuthMD5, nil
	case "password", "straight":
		return AuthPassword, nil
	default:
		return 0, fmt.Errorf("ipmi: unknown auth type %q", s)
	}
}

func (a AuthType) String() string {
	switch a {
	case AuthNone:
		return "none"
	case AuthMD5:
		return "md5"
	case AuthPassword:
		return "password"
	default:
		return fmt.Sprintf("auth(0x%02X)", byte(a))
	}
}

// Privilege is a session privilege level.
type Privilege byte

const (
	PrivilegeCallback Privilege = 0x01
	PrivilegeUser     Privilege = 0x02
	PrivilegeOperator Privilege = 0x03
	PrivilegeAdmin    Privilege = 0x04
	PrivilegeOEM      Privilege = 0x05
)

// AuthCode derives the 16-byte activation code.
//
//	none:     zeros
//	password: the password padded to 16 bytes
//	md5:      MD5(password | session id | challenge | password)
func AuthCode(t AuthType, password string, sessionID uint32, challenge [16]byte) [16]byte {
	pw := pad16(password)

	switch t {
	case AuthPassword:
		return pw
	case AuthMD5:
		var sid [4]byte
		binary.LittleEndian.PutUint32(sid[:], sessionID)

		h := md5.New()
		h.Write(pw[:])
		h.Write(sid[:])
		h.Write(challenge[:])
		h.Write(pw[:])

		var out [16]byte
		copy(out[:], h.Sum(nil))
		return out
	default:
		return [16]byte{}
	}
}
