package contracts

import "errors"

// ErrorKind classifies a bridge failure for logging and metrics.
type ErrorKind string

const (
	KindConnect ErrorKind = "connect"
	KindSend    ErrorKind = "send"
	KindReceive ErrorKind = "receive"
	KindDecode  ErrorKind = "decode"
	KindPublish ErrorKind = "publish"
	KindUnknown ErrorKind = "unknown"
)

// KindedError is implemented by errors that know their own kind.
type KindedError interface {
	error
	Kind() ErrorKind
}

// KindOf returns the kind of the outermost KindedError in err's chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var kinded KindedError
	if errors.As(err, &kinded) {
		return kinded.Kind()
	}
	return KindUnknown
}
