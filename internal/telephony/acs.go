package telephony

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ACSConfig configures the Call Automation REST client.
type ACSConfig struct {
	// Endpoint is the resource endpoint, e.g. https://contoso.communication.azure.com.
	Endpoint string
	// AccessKey is the base64 resource access key used for HMAC signing.
	AccessKey  string
	APIVersion string
	// RawIDPrefix is the prefix of phone-number raw identifiers ("4").
	RawIDPrefix string
	Timeout     time.Duration

	HTTPClient *http.Client
}

// ACSClient implements ActionClient over the Call Automation REST API.
type ACSClient struct {
	endpoint   *url.URL
	key        []byte
	apiVersion string
	prefix     string
	http       *http.Client
	now        func() time.Time
}

func NewACSClient(cfg ACSConfig) (*ACSClient, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("telephony: acs endpoint is required")
	}
	u, err := url.Parse(strings.TrimRight(cfg.Endpoint, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("telephony: invalid acs endpoint %q", cfg.Endpoint)
	}
	key, err := base64.StdEncoding.DecodeString(cfg.AccessKey)
	if err != nil || len(key) == 0 {
		return nil, errors.New("telephony: acs access key must be non-empty base64")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2023-10-15"
	}
	if cfg.RawIDPrefix == "" {
		cfg.RawIDPrefix = "4"
	}
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &ACSClient{
		endpoint:   u,
		key:        key,
		apiVersion: cfg.APIVersion,
		prefix:     cfg.RawIDPrefix,
		http:       hc,
		now:        time.Now,
	}, nil
}

// communicationIdentifier is the provider's tagged identifier shape.
type communicationIdentifier struct {
	RawID       string       `json:"rawId,omitempty"`
	Kind        string       `json:"kind,omitempty"`
	PhoneNumber *phoneNumber `json:"phoneNumber,omitempty"`
}

type phoneNumber struct {
	Value string `json:"value"`
}

func (c *ACSClient) phone(number string) communicationIdentifier {
	// Already a raw identifier, e.g. "4:+15551230000".
	if i := strings.Index(number, ":"); i > 0 {
		return communicationIdentifier{
			RawID:       number,
			Kind:        "phoneNumber",
			PhoneNumber: &phoneNumber{Value: number[i+1:]},
		}
	}
	return communicationIdentifier{
		RawID:       c.prefix + ":" + number,
		Kind:        "phoneNumber",
		PhoneNumber: &phoneNumber{Value: number},
	}
}

func (c *ACSClient) CreateCall(ctx context.Context, req CreateCallRequest) (CreateCallResult, error) {
	body := map[string]any{
		"targets":              []communicationIdentifier{c.phone(req.CalleeNumber)},
		"sourceCallerIdNumber": phoneNumber{Value: req.CallerIDNumber},
		"callbackUri":          req.CallbackURL,
		"operationContext":     req.OperationContext,
	}
	var out struct {
		CallConnectionID string `json:"callConnectionId"`
		ServerCallID     string `json:"serverCallId"`
		CorrelationID    string `json:"correlationId"`
	}
	if err := c.do(ctx, "create_call", "/calling/callConnections", body, &out); err != nil {
		return CreateCallResult{}, err
	}
	return CreateCallResult{
		CallConnectionID: out.CallConnectionID,
		ServerCallID:     out.ServerCallID,
		CorrelationID:    out.CorrelationID,
	}, nil
}

func (c *ACSClient) AddParticipant(ctx context.Context, req AddParticipantRequest) (AddParticipantResult, error) {
	body := map[string]any{
		"participantToAdd":     c.phone(req.CalleeNumber),
		"sourceCallerIdNumber": phoneNumber{Value: req.CallerIDNumber},
		"operationContext":     req.OperationContext,
	}
	var out struct {
		InvitationID string `json:"invitationId"`
	}
	path := "/calling/callConnections/" + url.PathEscape(req.CallConnectionID) + "/participants:add"
	if err := c.do(ctx, "add_participant", path, body, &out); err != nil {
		return AddParticipantResult{}, err
	}
	return AddParticipantResult{InvitationID: out.InvitationID}, nil
}

func (c *ACSClient) AnswerCall(ctx context.Context, req AnswerCallRequest) (AnswerCallResult, error) {
	body := map[string]any{
		"incomingCallContext": req.IncomingCallContext,
		"callbackUri":         req.CallbackURL,
		"operationContext":    req.OperationContext,
	}
	var out struct {
		CallConnectionID string `json:"callConnectionId"`
		ServerCallID     string `json:"serverCallId"`
	}
	if err := c.do(ctx, "answer_call", "/calling/callConnections:answer", body, &out); err != nil {
		return AnswerCallResult{}, err
	}
	return AnswerCallResult{CallConnectionID: out.CallConnectionID, ServerCallID: out.ServerCallID}, nil
}

func (c *ACSClient) MuteParticipant(ctx context.Context, req MuteParticipantRequest) error {
	body := map[string]any{
		"targetParticipants": []communicationIdentifier{c.phone(req.PhoneNumber)},
		"operationContext":   req.OperationContext,
	}
	path := "/calling/callConnections/" + url.PathEscape(req.CallConnectionID) + "/participants:mute"
	return c.do(ctx, "mute_participant", path, body, nil)
}

func (c *ACSClient) MoveParticipants(ctx context.Context, req MoveParticipantsRequest) error {
	body := map[string]any{
		"targetParticipants": []communicationIdentifier{c.phone(req.PhoneNumber)},
		"fromCall":           req.FromConnectionID,
		"operationContext":   req.OperationContext,
	}
	path := "/calling/callConnections/" + url.PathEscape(req.TargetConnectionID) + "/participants:moveHere"
	return c.do(ctx, "move_participants", path, body, nil)
}

func (c *ACSClient) StartRecording(ctx context.Context, req StartRecordingRequest) (StartRecordingResult, error) {
	body := map[string]any{
		"callLocator": map[string]string{
			"kind":         "serverCallLocator",
			"serverCallId": req.ServerCallID,
		},
	}
	var out struct {
		RecordingID string `json:"recordingId"`
	}
	if err := c.do(ctx, "start_recording", "/calling/recordings", body, &out); err != nil {
		return StartRecordingResult{}, err
	}
	return StartRecordingResult{RecordingID: out.RecordingID}, nil
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// do POSTs in as JSON and decodes a 2xx response into out (if non-nil).
// Every failure comes back as *ProviderError.
func (c *ACSClient) do(ctx context.Context, action, path string, in any, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return &ProviderError{Action: action, Cause: fmt.Errorf("encode request: %w", err)}
	}

	u := *c.endpoint
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = url.Values{"api-version": []string{c.apiVersion}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(payload))
	if err != nil {
		return &ProviderError{Action: action, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	signRequest(req, payload, c.key, c.now())

	resp, err := c.http.Do(req)
	if err != nil {
		return &ProviderError{Action: action, Cause: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &ProviderError{Action: action, StatusCode: resp.StatusCode, Cause: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		pe := &ProviderError{Action: action, StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil && eb.Error.Code != "" {
			pe.Code = eb.Error.Code
			pe.Message = eb.Error.Message
		}
		return pe
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &ProviderError{Action: action, StatusCode: resp.StatusCode, Cause: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
