// Package credential 生成满足用户池密码策略的临时密码。
package credential

import (
	"crypto/rand"
	"math/big"
)

const (
	Uppercase = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	Lowercase = "abcdefghijklmnopqrstuvwxyz"
	Digits    = "0123456789"
	Symbols   = "!@#$%^&*"

	// Length 临时密码长度
	Length = 12
)

const all = Uppercase + Lowercase + Digits + Symbols

// Generate 生成临时密码：四类字符各至少一个，其余从全集均匀抽取，最后整体洗牌
func Generate() (string, error) {
	buf := make([]byte, 0, Length)

	for _, class := range []string{Uppercase, Lowercase, Digits, Symbols} {
		c, err := pick(class)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}
	for len(buf) < Length {
		c, err := pick(all)
		if err != nil {
			return "", err
		}
		buf = append(buf, c)
	}

	// Fisher-Yates
	for i := len(buf) - 1; i > 0; i-- {
		j, err := randInt(i + 1)
		if err != nil {
			return "", err
		}
		buf[i], buf[j] = buf[j], buf[i]
	}

	return string(buf), nil
}

func pick(alphabet string) (byte, error) {
	i, err := randInt(len(alphabet))
	if err != nil {
		return 0, err
	}
	return alphabet[i], nil
}

func randInt(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
