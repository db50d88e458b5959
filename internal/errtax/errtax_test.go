package errtax

import (
	"errors"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want Kind
	}{
		{errors.New("request timed out"), Timeout},
		{errors.New("rate limit exceeded"), RateLimit},
		{errors.New("too many requests"), RateLimit},
		{errors.New("access denied for user"), AccessDenied},
		{errors.New("missing permission"), AccessDenied},
		{errors.New("invalid payload"), InvalidMessage},
		{errors.New("bad format"), InvalidMessage},
		{errors.New("network unreachable"), NetworkError},
		{errors.New("connection reset"), NetworkError},
		{errors.New("agent crashed"), AgentError},
		{errors.New("unexpected nil pointer"), InternalError},
	}
	for _, c := range cases {
		if got := Classify(c.err); got != c.want {
			t.Errorf("Classify(%q) = %s, want %s", c.err, got, c.want)
		}
	}
}

func TestFormatBlacklistZh(t *testing.T) {
	got := Format(AccessDenied, LangZH)
	want := "⚠️ 抱歉，您没有使用权限"
	if got != want {
		t.Errorf("Format(AccessDenied, zh) = %q, want %q", got, want)
	}
}

func TestFormatRateLimitZh(t *testing.T) {
	got := Format(RateLimit, LangZH)
	want := "⚠️ 请求太频繁，请稍后再试 🔄"
	if got != want {
		t.Errorf("Format(RateLimit, zh) = %q, want %q", got, want)
	}
}

func TestFormatUnknownLanguageFallsBackToEnglish(t *testing.T) {
	got := Format(InternalError, Language("fr"))
	want := "⚠️ System error, we're working on it"
	if got != want {
		t.Errorf("Format(InternalError, fr) = %q, want %q", got, want)
	}
}
