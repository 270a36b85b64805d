package admission

import "time"

// Clock supplies wall-clock milliseconds for all window math. The default
// implementation reads the system clock; tests substitute a fake through
// [Builder.WithClock].
type Clock interface {
	NowMs() int64
}

type systemClock struct{}

func (systemClock) NowMs() int64 {
	return time.Now().UnixMilli()
}
