// Package hasher は生の識別子を比較用のハッシュ化識別子に変換する。
package hasher

import (
	"crypto/sha256"
	"fmt"
)

// HashIdentifier は生の識別子（メールアドレス等）のSHA-256ハッシュを16進文字列で返す。
// 同じ入力には常に同じ64文字の出力を返す。空文字列も通常の入力として扱う。
func HashIdentifier(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}
