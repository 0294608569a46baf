package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a ledger failure so transports can map it without parsing messages.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindState         Kind = "state"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
)

// Machine-readable reasons carried by Error.Code. They key the localized
// message catalog in internal/i18n.
const (
	CodeTitleEmpty             = "PROJECT_TITLE_EMPTY"
	CodeCreatorRequired        = "PROJECT_CREATOR_REQUIRED"
	CodeGoalNotPositive        = "PROJECT_GOAL_NOT_POSITIVE"
	CodeDeadlineNotFuture      = "PROJECT_DEADLINE_NOT_FUTURE"
	CodeProjectNotFound        = "PROJECT_NOT_FOUND"
	CodeProjectNotFundable     = "PROJECT_NOT_FUNDABLE"
	CodeStatusTransition       = "PROJECT_INVALID_STATUS_TRANSITION"
	CodeAmountNotPositive      = "DONATION_AMOUNT_NOT_POSITIVE"
	CodeAmountOverflow         = "DONATION_AMOUNT_OVERFLOW"
	CodeDonorRequired          = "DONATION_DONOR_REQUIRED"
	CodeAlreadyFinalized       = "FUNDING_ALREADY_FINALIZED"
	CodeDeadlineNotReached     = "FUNDING_DEADLINE_NOT_REACHED"
	CodeNotCreator             = "FUNDING_CALLER_NOT_CREATOR"
	CodeGoalNotMet             = "FUNDING_GOAL_NOT_MET"
	CodeGoalMet                = "FUNDING_GOAL_MET"
	CodeNotRefunding           = "REFUND_PROJECT_NOT_REFUNDING"
	CodeNothingToRefund        = "REFUND_NOTHING_TO_CLAIM"
	CodeReviewNotRequested     = "REVIEW_NOT_REQUESTED"
	CodeReviewAlreadyEnabled   = "REVIEW_ALREADY_ENABLED"
	CodeReviewNotEnabled       = "REVIEW_NOT_ENABLED"
	CodeReviewWindowClosed     = "REVIEW_WINDOW_CLOSED"
	CodeReviewAlreadySubmitted = "REVIEW_ALREADY_SUBMITTED"
	CodeReviewNotFound         = "REVIEW_NOT_FOUND"
	CodeCommentEmpty           = "REVIEW_COMMENT_EMPTY"
	CodeReviewerRequired       = "REVIEW_REVIEWER_REQUIRED"
	CodeReviewerNotOnPanel     = "REVIEW_REVIEWER_NOT_ON_PANEL"
	CodeCreatorCannotReview    = "REVIEW_CREATOR_CANNOT_REVIEW"
	CodeVotingDeadlineInvalid  = "REVIEW_VOTING_DEADLINE_INVALID"
	CodeConcurrentUpdate       = "LEDGER_CONCURRENT_UPDATE"
)

// Error is a classified ledger error. Message is the internal description;
// Code is stable and safe to show to clients.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches by kind, and by code when the target carries one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

var (
	ErrValidation    = &Error{Kind: KindValidation, Message: "validation failed"}
	ErrAuthorization = &Error{Kind: KindAuthorization, Message: "not authorized"}
	ErrState         = &Error{Kind: KindState, Message: "invalid state"}
	ErrNotFound      = &Error{Kind: KindNotFound, Message: "not found"}
	ErrConflict      = &Error{Kind: KindConflict, Message: "concurrent update"}

	// ErrAlreadyExists is returned by stores when a uniqueness-constrained record exists.
	ErrAlreadyExists = errors.New("record already exists")
)

func Validation(code, message string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: message}
}

func Authorization(code, message string) *Error {
	return &Error{Kind: KindAuthorization, Code: code, Message: message}
}

func State(code, message string) *Error {
	return &Error{Kind: KindState, Code: code, Message: message}
}

func NotFound(code, message string) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: message}
}

// Conflict reports lock contention; the whole operation may be retried.
func Conflict(message string, cause error) *Error {
	return &Error{Kind: KindConflict, Code: CodeConcurrentUpdate, Message: message, Err: cause}
}

// KindOf returns the kind of the first classified error in err's chain, or "".
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// CodeOf returns the code of the first classified error in err's chain, or "".
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
