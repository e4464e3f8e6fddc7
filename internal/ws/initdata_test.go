package ws

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testBotToken = "12345:test-token"

func signInitData(t *testing.T, botToken string, fields map[string]string) string {
	t.Helper()

	lines := make([]string, 0, len(fields))
	for key, val := range fields {
		lines = append(lines, key+"="+val)
	}
	sort.Strings(lines)

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(lines, "\n")))

	values := url.Values{}
	for key, val := range fields {
		values.Set(key, val)
	}
	values.Set("hash", hex.EncodeToString(mac.Sum(nil)))
	return values.Encode()
}

func TestVerifyInitDataValidSignature(t *testing.T) {
	initData := signInitData(t, testBotToken, map[string]string{
		"user":      `{"id":42,"username":"alice"}`,
		"auth_date": "1700000000",
	})

	identity, err := VerifyInitData(initData, testBotToken)

	require.NoError(t, err)
	assert.Equal(t, int64(42), identity.UserID)
	assert.Equal(t, "alice", identity.UserName)
}

func TestVerifyInitDataNameFallback(t *testing.T) {
	initData := signInitData(t, testBotToken, map[string]string{
		"user":      `{"id":42,"first_name":"Анна","last_name":"Петрова"}`,
		"auth_date": "1700000000",
	})

	identity, err := VerifyInitData(initData, testBotToken)

	require.NoError(t, err)
	assert.Equal(t, "Анна Петрова", identity.UserName)
}

func TestVerifyInitDataWrongToken(t *testing.T) {
	initData := signInitData(t, "other:token", map[string]string{
		"user":      `{"id":42,"username":"alice"}`,
		"auth_date": "1700000000",
	})

	_, err := VerifyInitData(initData, testBotToken)

	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyInitDataTamperedPayload(t *testing.T) {
	initData := signInitData(t, testBotToken, map[string]string{
		"user":      `{"id":42,"username":"alice"}`,
		"auth_date": "1700000000",
	})
	tampered := strings.Replace(initData, "42", "43", 1)

	_, err := VerifyInitData(tampered, testBotToken)

	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestVerifyInitDataMissingFields(t *testing.T) {
	_, err := VerifyInitData("auth_date=1700000000", testBotToken)
	assert.Error(t, err)
}
