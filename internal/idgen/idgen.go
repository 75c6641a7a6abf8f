// Package idgen はメッセージに割り当てる時刻順のIDを生成します
package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewULID は現在時刻から単調増加するULIDを生成します
func NewULID() string {
	return NewULIDAt(time.Now())
}

// NewULIDAt は指定時刻を元にULIDを生成します
// 同一ミリ秒内でも辞書順が生成順と一致します
func NewULIDAt(t time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(t.UTC()), entropy).String()
}
