package telephony

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestACSClient(t *testing.T, h http.HandlerFunc) *ACSClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewACSClient(ACSConfig{
		Endpoint:  srv.URL,
		AccessKey: base64.StdEncoding.EncodeToString([]byte("secret-key")),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	c.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return c
}

func TestACSClient_AddParticipantSignsAndDecodes(t *testing.T) {
	var gotPath, gotQuery, gotAuth, gotDate string
	var gotBody map[string]any

	c := newTestACSClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		gotDate = r.Header.Get("x-ms-date")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"invitationId": "inv-1", "operationContext": "p1"}`))
	})

	res, err := c.AddParticipant(context.Background(), AddParticipantRequest{
		CallConnectionID: "conn-1",
		CalleeNumber:     "+15551230000",
		CallerIDNumber:   "+15550000000",
		OperationContext: "p1",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.InvitationID != "inv-1" {
		t.Fatalf("expected invitation id, got %q", res.InvitationID)
	}
	if gotPath != "/calling/callConnections/conn-1/participants:add" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotQuery != "api-version=2023-10-15" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	if !strings.HasPrefix(gotAuth, "HMAC-SHA256 SignedHeaders=x-ms-date;host;x-ms-content-sha256&Signature=") {
		t.Fatalf("unexpected authorization header %q", gotAuth)
	}
	if gotDate != "Tue, 02 Jan 2024 03:04:05 GMT" {
		t.Fatalf("unexpected date header %q", gotDate)
	}
	target, _ := gotBody["participantToAdd"].(map[string]any)
	if target["rawId"] != "4:+15551230000" {
		t.Fatalf("expected prefixed raw id, got %v", target["rawId"])
	}
	if gotBody["operationContext"] != "p1" {
		t.Fatalf("expected operation context forwarded, got %v", gotBody["operationContext"])
	}
}

func TestACSClient_MapsErrorBody(t *testing.T) {
	c := newTestACSClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"code": "ParticipantAlreadyInCall", "message": "already there"}}`))
	})

	_, err := c.AddParticipant(context.Background(), AddParticipantRequest{CallConnectionID: "c", CalleeNumber: "+1"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if Classify(err) != KindAlreadySatisfied {
		t.Fatalf("expected already satisfied, got %s (%v)", Classify(err), err)
	}
}

func TestACSClient_CreateCall(t *testing.T) {
	c := newTestACSClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/calling/callConnections" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"callConnectionId": "conn", "serverCallId": "srv", "correlationId": "corr"}`))
	})

	res, err := c.CreateCall(context.Background(), CreateCallRequest{CalleeNumber: "+1", CallerIDNumber: "+2", OperationContext: "p", CallbackURL: "https://cb"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.CallConnectionID != "conn" || res.ServerCallID != "srv" || res.CorrelationID != "corr" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestNewACSClient_ValidatesConfig(t *testing.T) {
	if _, err := NewACSClient(ACSConfig{AccessKey: "a2V5"}); err == nil {
		t.Fatalf("expected error for missing endpoint")
	}
	if _, err := NewACSClient(ACSConfig{Endpoint: "https://x.example.com", AccessKey: "%%%"}); err == nil {
		t.Fatalf("expected error for non-base64 key")
	}
}
