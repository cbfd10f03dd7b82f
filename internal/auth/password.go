package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// scryptパラメータ。変更すると既存ハッシュが検証できなくなるため固定。
const (
	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 16
)

// HashPassword はパスワードをscryptでハッシュ化し "hex(派生鍵).hex(ソルト)" 形式で返す。
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", fmt.Errorf("failed to derive key: %w", err)
	}

	return hex.EncodeToString(key) + "." + hex.EncodeToString(salt), nil
}

// VerifyPassword はパスワードが保存済みハッシュと一致するかを検証する。
// 比較は一定時間で行う。
func VerifyPassword(password, encoded string) bool {
	hashHex, saltHex, ok := strings.Cut(encoded, ".")
	if !ok {
		return false
	}
	storedKey, err := hex.DecodeString(hashHex)
	if err != nil {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return false
	}

	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return false
	}

	return subtle.ConstantTimeCompare(storedKey, key) == 1
}

// dummyHash は存在しないユーザー名でのログイン試行時に比較対象として使う固定ハッシュ。
// ユーザーの有無で応答時間が変わらないようにする。
var dummyHash = func() string {
	h, err := HashPassword("dummy-timing-equalizer")
	if err != nil {
		panic(err)
	}
	return h
}()
