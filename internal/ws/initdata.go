package ws

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

var ErrBadSignature = errors.New("init data signature mismatch")

// Identity is the verified customer identity extracted from the signed
// handshake payload.
type Identity struct {
	UserID   int64
	UserName string
}

type initDataUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// VerifyInitData checks the signed identity payload of a connection attempt.
// Fields are joined as sorted "key=value" lines (the signature field
// excluded) and HMAC-SHA256'd with a key derived from the bot token under
// the platform-fixed "WebAppData" key; the hex digest must match the
// supplied hash.
func VerifyInitData(initData, botToken string) (Identity, error) {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return Identity{}, fmt.Errorf("parse init data: %w", err)
	}

	hash := values.Get("hash")
	userRaw := values.Get("user")
	if hash == "" || userRaw == "" {
		return Identity{}, errors.New("init data is missing required fields")
	}

	lines := make([]string, 0, len(values))
	for key, vals := range values {
		if key == "hash" {
			continue
		}
		lines = append(lines, key+"="+vals[0])
	}
	sort.Strings(lines)
	checkString := strings.Join(lines, "\n")

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))

	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(checkString))
	computed := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(computed), []byte(hash)) {
		return Identity{}, ErrBadSignature
	}

	var user initDataUser
	if err := json.Unmarshal([]byte(userRaw), &user); err != nil {
		return Identity{}, fmt.Errorf("parse user payload: %w", err)
	}

	name := user.Username
	if name == "" {
		name = strings.TrimSpace(user.FirstName + " " + user.LastName)
	}
	return Identity{UserID: user.ID, UserName: name}, nil
}
