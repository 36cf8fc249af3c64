// Package token generates and verifies the short tokens carried by challenge buttons.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strconv"
	"sync/atomic"
	"time"
)

const (
	// Length is the number of hex characters kept from the digest.
	// Telegram limits callback data to 64 bytes, so tokens stay short.
	Length = 8

	acceptAction = "pass"
)

// Codec derives button tokens from a process-wide secret.
// Tokens are never stored: the accept token is recomputed on verification.
type Codec struct {
	secret  []byte
	now     func() time.Time
	counter atomic.Uint64
}

// NewCodec creates a codec keyed with the given secret
func NewCodec(secret string) *Codec {
	return &Codec{
		secret: []byte(secret),
		now:    time.Now,
	}
}

// Accept returns the token of the single correct button for a join event.
func (c *Codec) Accept(userID int64, joinMsgID int) string {
	return c.digest(userID, joinMsgID, acceptAction)
}

// Decoy returns a fresh token for a wrong-answer button. Every call yields a
// different token, even for the same participant and join event.
func (c *Codec) Decoy(userID int64, joinMsgID int) string {
	n := c.counter.Add(1)
	action := strconv.FormatInt(c.now().UnixNano(), 10) + "." + strconv.FormatUint(n, 10)
	return c.digest(userID, joinMsgID, action)
}

// Verify reports whether tok is the accept token for the participant and join event.
func (c *Codec) Verify(userID int64, joinMsgID int, tok string) bool {
	expected := c.Accept(userID, joinMsgID)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(tok)) == 1
}

func (c *Codec) digest(userID int64, joinMsgID int, action string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(strconv.FormatInt(userID, 10)))
	mac.Write([]byte{':'})
	mac.Write([]byte(strconv.Itoa(joinMsgID)))
	mac.Write([]byte{':'})
	mac.Write([]byte(action))
	return hex.EncodeToString(mac.Sum(nil))[:Length]
}
