package service

import "time"

// Clock 可注入的时间源，测试中替换为固定时间
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
