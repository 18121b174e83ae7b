// Package ident validates and normalizes the identifiers that arrive with
// every request: player ids (free-form strings holding an email address),
// game ids and instance ids. All functions are pure.
package ident

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/openarcade/hall/internal/gameerr"
)

// Player ids may arrive as `"Display Name" <addr@example.com>` or as a bare
// address; only the address part identifies the player.
var emailRe = regexp.MustCompile(`([0-9a-zA-Z]+[-._+&])*[0-9a-zA-Z]+@([-0-9a-zA-Z]+[.])+[a-zA-Z]{2,6}`)

// CheckPlayerID extracts the email address from a raw player id.
func CheckPlayerID(pid string) (string, error) {
	if pid == "" {
		return "", gameerr.New(gameerr.InvalidArgument, "the player identifier is blank")
	}
	addr := emailRe.FindString(pid)
	if addr == "" {
		return "", gameerr.New(gameerr.InvalidArgument, "%s is not a valid email address", pid)
	}
	return addr, nil
}

// CheckGameID rejects empty game ids.
func CheckGameID(gid string) (string, error) {
	if gid == "" {
		return "", gameerr.New(gameerr.InvalidArgument, "bad game id: %q", gid)
	}
	return gid, nil
}

// CheckInstanceID rejects empty instance ids.
func CheckInstanceID(iid string) (string, error) {
	if iid == "" {
		return "", gameerr.New(gameerr.InvalidArgument, "no instance specified for request")
	}
	return iid, nil
}

// ParseBoolean maps the strings "true" and "false" (any case) to booleans.
func ParseBoolean(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, gameerr.New(gameerr.InvalidArgument, "boolean value %q was not valid", raw)
}

// ParseBooleanValue accepts a native bool or a boolean-ish string, which is
// how command arguments arrive after JSON decoding.
func ParseBooleanValue(v interface{}) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		return ParseBoolean(b)
	}
	return false, gameerr.New(gameerr.InvalidArgument, "boolean value %v was not valid", v)
}

// ParseIntValue accepts a native number or a numeric string. JSON decoding
// produces float64 for numbers, so fractional values are rejected rather
// than truncated.
func ParseIntValue(v interface{}) (int, error) {
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, gameerr.New(gameerr.InvalidArgument, "integer value %v was not valid", v)
		}
		return int(n), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, gameerr.New(gameerr.InvalidArgument, "integer value %q was not valid", n)
		}
		return i, nil
	}
	return 0, gameerr.New(gameerr.InvalidArgument, "integer value %v was not valid", v)
}
