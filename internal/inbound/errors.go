package inbound

import (
	"errors"
	"fmt"
)

// 入站处理失败的原因
var (
	ErrMissingSecret    = errors.New("inbound secret not configured")
	ErrUnauthorized     = errors.New("invalid inbound secret")
	ErrInvalidPayload   = errors.New("empty message payload")
	ErrMalformedMessage = errors.New("malformed MIME message")
	ErrInvalidRecipient = errors.New("no recipient on the alias domain")
	ErrAliasNotFound    = errors.New("alias not found")
	ErrAliasExpired     = errors.New("alias expired")
	ErrStorage          = errors.New("failed to store email")
)

// Stage 入站处理状态机的步骤
type Stage string

const (
	StageReceived          Stage = "received"
	StageAuthChecked       Stage = "auth_checked"
	StageParsed            Stage = "parsed"
	StageRecipientResolved Stage = "recipient_resolved"
	StageExpiryChecked     Stage = "expiry_checked"
	StageStored            Stage = "stored"
)

// Rejection 表示请求在某个步骤被拒绝，Stage 为未能到达的步骤
type Rejection struct {
	Stage  Stage
	Reason error
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("inbound rejected at %s: %v", r.Stage, r.Reason)
}

func (r *Rejection) Unwrap() error {
	return r.Reason
}

// Code 返回用于日志与指标的简短原因
func (r *Rejection) Code() string {
	return reasonCode(r.Reason)
}

func reject(stage Stage, reason error) *Rejection {
	return &Rejection{Stage: stage, Reason: reason}
}

func reasonCode(err error) string {
	switch {
	case errors.Is(err, ErrMissingSecret):
		return "missing_secret"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrInvalidPayload):
		return "invalid_payload"
	case errors.Is(err, ErrMalformedMessage):
		return "malformed_message"
	case errors.Is(err, ErrInvalidRecipient):
		return "invalid_recipient"
	case errors.Is(err, ErrAliasNotFound):
		return "alias_not_found"
	case errors.Is(err, ErrAliasExpired):
		return "alias_expired"
	default:
		return "storage"
	}
}
