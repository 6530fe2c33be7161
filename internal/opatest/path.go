package opatest

import (
	"fmt"
	"net/url"
)

type pathError struct {
	segment string
	err     error
}

func (e *pathError) Error() string {
	return fmt.Sprintf("invalid path segment %q: %v", e.segment, e.err)
}

func (e *pathError) Unwrap() error {
	return e.err
}

func pathUnescape(segment string) (string, error) {
	name, err := url.PathUnescape(segment)
	if err != nil {
		return "", &pathError{segment: segment, err: err}
	}
	return name, nil
}
