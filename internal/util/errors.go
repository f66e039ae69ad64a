package util

import (
	"errors"
	"net/http"
)

// ErrorKind 错误分类，决定调用方看到的状态码
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindNotFound
	KindStateConflict
	KindPolicyViolation
	KindValidation
	KindForbidden
)

// AppError 带分类与稳定错误码的业务错误
type AppError struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

func newError(kind ErrorKind, code, message string) *AppError {
	return &AppError{Kind: kind, Code: code, Message: message}
}

// NewValidationError 构造输入校验错误
func NewValidationError(message string) error {
	return newError(KindValidation, "validation_error", message)
}

var (
	// NotFound
	ErrUserNotFound     = newError(KindNotFound, "user_not_found", "user not found")
	ErrClassNotFound    = newError(KindNotFound, "class_not_found", "class not found")
	ErrSubjectNotFound  = newError(KindNotFound, "subject_not_found", "subject not found")
	ErrExamNotFound     = newError(KindNotFound, "exam_not_found", "exam not found")
	ErrQuestionNotFound = newError(KindNotFound, "question_not_found", "question not found")
	ErrAttemptNotFound  = newError(KindNotFound, "attempt_not_found", "attempt not found")
	ErrAnswerNotFound   = newError(KindNotFound, "answer_not_found", "answer not found")

	ErrEnrollmentNotFound = newError(KindNotFound, "enrollment_not_found", "enrollment not found")

	// StateConflict
	ErrAttemptAlreadyInProgress = newError(KindStateConflict, "attempt_already_in_progress", "an attempt for this exam is already in progress")
	ErrAttemptAlreadyCompleted  = newError(KindStateConflict, "attempt_already_completed", "attempt already completed")
	ErrAttemptCompleted         = newError(KindStateConflict, "attempt_completed", "attempt is completed and no longer accepts answers")
	ErrAttemptNotCompleted      = newError(KindStateConflict, "attempt_not_completed", "attempt has not been submitted yet")
	ErrExamHasAttempts          = newError(KindStateConflict, "exam_has_attempts", "exam has attempts and cannot be deleted")
	ErrExamLocked               = newError(KindStateConflict, "exam_locked", "exam questions can no longer be changed")
	ErrEmailRegistered          = newError(KindStateConflict, "email_registered", "email already registered")
	ErrDuplicateOrderIndex      = newError(KindStateConflict, "duplicate_order_index", "order index already used")

	// PolicyViolation
	ErrExamNotActive          = newError(KindPolicyViolation, "exam_not_active", "exam is not active")
	ErrDeadlinePassed         = newError(KindPolicyViolation, "deadline_passed", "exam access deadline has passed")
	ErrTimeExpired            = newError(KindPolicyViolation, "time_expired", "attempt time limit exceeded, submit the attempt instead")
	ErrNotEnrolled            = newError(KindPolicyViolation, "not_enrolled", "student is not enrolled in the exam subject")
	ErrAnswerTypeMismatch     = newError(KindPolicyViolation, "answer_type_mismatch", "answer does not match question type")
	ErrQuestionNotInExam      = newError(KindPolicyViolation, "question_not_in_exam", "question does not belong to the exam")
	ErrOptionsOnEssay         = newError(KindPolicyViolation, "options_on_essay", "essay questions cannot have options")
	ErrMultipleCorrectOptions = newError(KindPolicyViolation, "multiple_correct_options", "question already has a correct option")
	ErrInvalidStatusChange    = newError(KindPolicyViolation, "invalid_status_change", "exam status change not allowed")
	ErrExamPointsExceeded     = newError(KindPolicyViolation, "exam_points_exceeded", "exam total points would exceed 999")

	// Validation
	ErrInvalidScore = newError(KindValidation, "invalid_score", "score out of range")

	// Forbidden
	ErrPermissionDenied = newError(KindForbidden, "permission_denied", "permission denied")
)

// KindOf 返回错误链上第一个业务错误的分类
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// CodeOf 返回业务错误码，非业务错误返回 "internal"
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "internal"
}

// HTTPStatus 业务错误分类到 HTTP 状态码
func HTTPStatus(kind ErrorKind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindStateConflict:
		return http.StatusConflict
	case KindPolicyViolation:
		return http.StatusUnprocessableEntity
	case KindValidation:
		return http.StatusBadRequest
	case KindForbidden:
		return http.StatusForbidden
	case KindUnknown:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}
