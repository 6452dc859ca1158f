// Package auth decides who may log in: username rules, offline identities,
// ban lists and the session-server check of online mode.
package auth

import (
	"crypto/md5"

	"github.com/google/uuid"
)

// MaxUsernameLength is the longest accepted player name.
const MaxUsernameLength = 16

// ValidUsername reports whether name is 1 to 16 characters of
// [A-Za-z0-9_].
func ValidUsername(name string) bool {
	if len(name) == 0 || len(name) > MaxUsernameLength {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		default:
			return false
		}
	}
	return true
}

// OfflineUUID returns the version 3 UUID offline-mode servers assign to
// name: the MD5 of "OfflinePlayer:"+name with version and variant bits set.
func OfflineUUID(name string) uuid.UUID {
	sum := md5.Sum([]byte("OfflinePlayer:" + name))
	sum[6] = sum[6]&0x0f | 0x30
	sum[8] = sum[8]&0x3f | 0x80
	return uuid.UUID(sum)
}
