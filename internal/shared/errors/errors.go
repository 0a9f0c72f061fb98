package errors

import "errors"

var (
	ErrMissingBotToken = errors.New("token is required in the rules document")
	ErrInvalidPattern  = errors.New("invalid spam pattern")
	ErrInvalidUserID   = errors.New("invalid user id")
	ErrEmptyRuleItem   = errors.New("empty rule item")
)
