package mailqueue

import "errors"

var ErrInvalidInput = errors.New("mailqueue: invalid input")
