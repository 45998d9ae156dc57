package dispatch

type abandonError struct {
	err error
}

func (a *abandonError) Error() string {
	return "abandoned: " + a.err.Error()
}

func (a *abandonError) Unwrap() error {
	return a.err
}

// Wraps a task error so the queue gives up on the task instead of retrying it. Submit returns the wrapped error. A nil error stays nil.
func Abandon(err error) error {
	if err == nil {
		return nil
	}
	return &abandonError{err: err}
}
