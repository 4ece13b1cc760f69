package article

import (
	"sync/atomic"
	"time"
)

// slugClock は記事スラッグの末尾に付けるミリ秒値を発行する。
// 同一プロセス内では同じミリ秒に作成された記事にも異なる値を返す。
type slugClock struct {
	last atomic.Int64
	now  func() time.Time
}

func newSlugClock(now func() time.Time) *slugClock {
	return &slugClock{now: now}
}

// next は現在時刻のミリ秒値を返す。前回の値以下の場合は前回+1を返す。
func (c *slugClock) next() int64 {
	for {
		last := c.last.Load()
		n := max(c.now().UnixMilli(), last+1)
		if c.last.CompareAndSwap(last, n) {
			return n
		}
	}
}
