package token

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Prefix marks challenge callback data.
const Prefix = "clg"

// ErrMalformedPayload is returned for callback data that does not follow
// "clg <targetId> <token> [<restrictedId>]".
var ErrMalformedPayload = errors.New("malformed challenge payload")

// Payload is the positional text carried by a challenge button.
// RestrictedID is only present on buttons of individually challenged
// participants; flood-bundled buttons omit it.
type Payload struct {
	TargetID     int64
	Token        string
	RestrictedID int64
	HasRestrict  bool
}

// String encodes the payload in its wire form.
func (p Payload) String() string {
	s := Prefix + " " + strconv.FormatInt(p.TargetID, 10) + " " + p.Token
	if p.HasRestrict {
		s += " " + strconv.FormatInt(p.RestrictedID, 10)
	}
	return s
}

// ParsePayload decodes callback data. Exactly 3 or 4 whitespace separated
// fields are accepted and all ids must be numeric.
func ParsePayload(data string) (Payload, error) {
	fields := strings.Fields(data)
	if len(fields) != 3 && len(fields) != 4 {
		return Payload{}, fmt.Errorf("%w: %d fields", ErrMalformedPayload, len(fields))
	}
	if fields[0] != Prefix {
		return Payload{}, fmt.Errorf("%w: prefix %q", ErrMalformedPayload, fields[0])
	}

	target, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: target id: %v", ErrMalformedPayload, err)
	}

	p := Payload{TargetID: target, Token: fields[2]}
	if len(fields) == 4 {
		restricted, err := strconv.ParseInt(fields[3], 10, 64)
		if err != nil {
			return Payload{}, fmt.Errorf("%w: restricted id: %v", ErrMalformedPayload, err)
		}
		p.RestrictedID = restricted
		p.HasRestrict = true
	}

	return p, nil
}
