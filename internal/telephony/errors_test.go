package telephony

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{&ProviderError{Action: "add_participant", StatusCode: 400, Code: CodeOperationInFlight}, KindTransient},
		{&ProviderError{Action: "add_participant", StatusCode: http.StatusConflict}, KindTransient},
		{&ProviderError{Action: "add_participant", StatusCode: 400, Code: CodeAlreadyInCall}, KindAlreadySatisfied},
		{&ProviderError{Action: "add_participant", StatusCode: 400, Code: CodeCallNotFound}, KindCallEnded},
		{&ProviderError{Action: "add_participant", StatusCode: http.StatusNotFound}, KindCallEnded},
		{&ProviderError{Action: "add_participant", StatusCode: 400, Code: "InvalidPhoneNumber"}, KindTerminal},
		{fmt.Errorf("wrapped: %w", &ProviderError{Action: "x", Code: CodeAlreadyInCall}), KindAlreadySatisfied},
		{errors.New("connection reset"), KindTerminal},
	}
	for i, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Fatalf("case %d: expected %s, got %s", i, tc.want, got)
		}
	}
}

func TestProviderError_UnwrapsCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := &ProviderError{Action: "create_call", Cause: cause}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to unwrap")
	}
	if err.Error() != "create_call: dial tcp: timeout" {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
