package recovery

import (
	"errors"
	"strings"
	"testing"
)

func TestStrictStrategyFails(t *testing.T) {
	if got := NewStrictStrategy().OnError(errors.New("boom"), Location{}); got != ActionFail {
		t.Fatalf("expected ActionFail, got %v", got)
	}
}

func TestLenientStrategyRecordsIssues(t *testing.T) {
	s := NewLenientStrategy()
	if got := s.OnError(errors.New("unterminated hex string"), Location{ByteOffset: 42, ObjectNum: 3, Component: "scanner:hex"}); got != ActionFix {
		t.Fatalf("expected ActionFix, got %v", got)
	}
	issues := s.Issues()
	if len(issues) != 1 {
		t.Fatalf("expected one issue, got %d", len(issues))
	}
	for _, want := range []string{"scanner:hex", "offset 42", "object 3 0", "unterminated hex string"} {
		if !strings.Contains(issues[0], want) {
			t.Fatalf("issue %q missing %q", issues[0], want)
		}
	}
}
