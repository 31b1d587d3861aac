package util

type StratumError struct {
	Message string
	Err     error
}

func (e *StratumError) Error() string {
	return e.Message
}

func (e *StratumError) Unwrap() error {
	return e.Err
}

// PoolExhaustedError is returned when the bufferpool has no free frame and no
// evictable frame. The caller decides whether to retry after releasing pins.
type PoolExhaustedError struct {
	*StratumError
}

func NewPoolExhaustedError() *PoolExhaustedError {
	return &PoolExhaustedError{&StratumError{Message: "bufferpool exhausted: no free or evictable frame"}}
}
