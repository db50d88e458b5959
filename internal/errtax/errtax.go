// Package errtax classifies errors surfaced by the pipeline into a closed
// taxonomy and renders localized, user-facing strings for them.
package errtax

import (
	"context"
	"errors"
	"strings"
)

// Kind is the closed set of error classifications.
type Kind string

const (
	Timeout        Kind = "timeout"
	RateLimit      Kind = "rate_limit"
	AccessDenied   Kind = "access_denied"
	InvalidMessage Kind = "invalid_message"
	AgentError     Kind = "agent_error"
	NetworkError   Kind = "network_error"
	InternalError  Kind = "internal_error"
)

// Language selects the rendered string set. Unknown languages fall through to English.
type Language string

const (
	LangZH Language = "zh"
	LangEN Language = "en"
)

type messages struct {
	text      string
	retryHint string
}

// catalog holds the exact localized strings, preserved byte-for-byte from
// the original Python implementation (original_source/python/gateway/errors.py).
var catalog = map[Kind]map[Language]messages{
	Timeout: {
		LangZH: {text: "处理时间过长，请稍后重试", retryHint: " 🔄"},
		LangEN: {text: "Request timed out, please try again later", retryHint: " (retry)"},
	},
	RateLimit: {
		LangZH: {text: "请求太频繁，请稍后再试", retryHint: " 🔄"},
		LangEN: {text: "Too many requests, please slow down", retryHint: " (retry)"},
	},
	AccessDenied: {
		LangZH: {text: "抱歉，您没有使用权限", retryHint: ""},
		LangEN: {text: "Sorry, you don't have permission", retryHint: ""},
	},
	InvalidMessage: {
		LangZH: {text: "消息格式不正确，请重新发送", retryHint: ""},
		LangEN: {text: "Invalid message format, please try again", retryHint: ""},
	},
	AgentError: {
		LangZH: {text: "AI 处理时遇到问题，请重试", retryHint: " 🔄"},
		LangEN: {text: "AI encountered an issue, please retry", retryHint: " (retry)"},
	},
	NetworkError: {
		LangZH: {text: "网络连接出现问题，请稍后重试", retryHint: " 🔄"},
		LangEN: {text: "Network error, please try again later", retryHint: " (retry)"},
	},
	InternalError: {
		LangZH: {text: "系统出现问题，工程师正在处理中", retryHint: ""},
		LangEN: {text: "System error, we're working on it", retryHint: ""},
	},
}

// Classify maps an error to an error Kind. context.DeadlineExceeded is
// checked first via errors.Is, matching the Python
// source's isinstance(asyncio.TimeoutError) check; everything else falls to
// substring matching against the error's message, in the order documented
// by the spec: timeout, rate limit, access denied, invalid message, network,
// agent, else internal.
func Classify(err error) Kind {
	if err == nil {
		return InternalError
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "timed out"):
		return Timeout
	case strings.Contains(msg, "rate limit"), strings.Contains(msg, "too many"):
		return RateLimit
	case strings.Contains(msg, "access denied"), strings.Contains(msg, "permission"):
		return AccessDenied
	case strings.Contains(msg, "invalid"), strings.Contains(msg, "format"):
		return InvalidMessage
	case strings.Contains(msg, "network"), strings.Contains(msg, "connection"):
		return NetworkError
	case strings.Contains(msg, "agent"):
		return AgentError
	default:
		return InternalError
	}
}

// Format renders "⚠️ {text}{retryHint}" for the given kind and language.
// Unknown languages fall back to English.
func Format(kind Kind, lang Language) string {
	set, ok := catalog[kind]
	if !ok {
		set = catalog[InternalError]
	}
	m, ok := set[lang]
	if !ok {
		m = set[LangEN]
	}
	return "⚠️ " + m.text + m.retryHint
}

// FormatError classifies err and renders it in one step.
func FormatError(err error, lang Language) string {
	return Format(Classify(err), lang)
}
