package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

// ErrEmptySecret 表示签名器没有可用的密钥。
var ErrEmptySecret = errors.New("token: 密钥不能为空")

// Signer 使用HMAC-SHA256对cookie中的值进行签名和校验。
// 签名后的格式为 "<value>.<base64url(mac)>"。
type Signer struct {
	secret []byte
}

// NewSigner 使用给定的密钥创建签名器。
func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &Signer{secret: key}, nil
}

// NewRandomSigner 生成一个密码学安全的32字节随机密钥，并用它创建签名器。
// 重启后之前签发的cookie都会失效，仅适合开发环境。
func NewRandomSigner() (*Signer, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return &Signer{secret: key}, nil
}

// Sign 返回带签名的值。
func (s *Signer) Sign(value string) string {
	return value + "." + base64.RawURLEncoding.EncodeToString(s.mac(value))
}

// Verify 校验一个带签名的值，成功时返回原始值。
func (s *Signer) Verify(signed string) (string, bool) {
	// 1. 按最后一个点拆分出原始值和签名
	idx := strings.LastIndexByte(signed, '.')
	if idx <= 0 || idx == len(signed)-1 {
		return "", false
	}
	value, sigB64 := signed[:idx], signed[idx+1:]

	// 2. 解码签名
	actual, err := base64.RawURLEncoding.DecodeString(sigB64)
	if err != nil {
		return "", false
	}

	// 3. 时间恒定的比较
	if !hmac.Equal(s.mac(value), actual) {
		return "", false
	}
	return value, true
}

func (s *Signer) mac(value string) []byte {
	m := hmac.New(sha256.New, s.secret)
	m.Write([]byte(value))
	return m.Sum(nil)
}
