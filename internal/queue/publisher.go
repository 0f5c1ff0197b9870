// Package queue provides the SQS producer and wire codec for dispatch
// requests consumed by the dispatch worker.
package queue

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"mailroom/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// compressThreshold is the encoded-body size above which the payload is
// gzipped. SQS caps messages at 256 KiB; digest-style variable bags with
// large item lists can approach that, so anything big is compressed well
// before the hard limit.
const compressThreshold = 64 * 1024

// messageEnvelope is the wire format. Small payloads travel as plain JSON
// in Data; large ones are gzipped and base64-encoded into Blob.
type messageEnvelope struct {
	Version    int             `json:"v"`
	Compressed bool            `json:"compressed,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Blob       string          `json:"blob,omitempty"`
}

// DispatchPublisher wraps an SQS client to enqueue DispatchRequests for the
// dispatch worker.
type DispatchPublisher struct {
	client   SQSSender
	queueURL string
	logger   types.Logger
}

// NewDispatchPublisher creates a DispatchPublisher targeting the given SQS
// queue.
func NewDispatchPublisher(client SQSSender, queueURL string, logger types.Logger) *DispatchPublisher {
	return &DispatchPublisher{
		client:   client,
		queueURL: queueURL,
		logger:   logger,
	}
}

// Publish serializes the request and sends it to the dispatch queue. A
// missing TraceID is filled in here so every message is traceable. The
// delay is clamped to the SQS maximum of 900 seconds.
func (p *DispatchPublisher) Publish(ctx context.Context, req types.DispatchRequest, delay time.Duration) error {
	if req.TraceID == "" {
		req.TraceID = uuid.NewString()
	}

	body, err := EncodeMessage(req)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalQueue, "failed to encode dispatch request", err)
	}

	delaySec := int32(delay.Seconds())
	if delaySec > 900 {
		delaySec = 900
	}
	if delaySec < 0 {
		delaySec = 0
	}

	input := &sqs.SendMessageInput{
		QueueUrl:     aws.String(p.queueURL),
		MessageBody:  aws.String(body),
		DelaySeconds: delaySec,
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return types.NewAppError(types.ErrCodeInternalQueue,
			fmt.Sprintf("failed to send message to %s", p.queueURL), err)
	}

	p.logger.Info("dispatch request published",
		"type", req.Type,
		"notification_id", req.NotificationID,
		"delay_seconds", delaySec,
		"trace_id", req.TraceID,
	)

	return nil
}

// EncodeMessage produces the SQS body for a request, compressing payloads
// above the threshold.
func EncodeMessage(req types.DispatchRequest) (string, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return "", err
	}

	env := messageEnvelope{Version: 1}
	if len(raw) > compressThreshold {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			return "", err
		}
		if err := zw.Close(); err != nil {
			return "", err
		}
		env.Compressed = true
		env.Blob = base64.StdEncoding.EncodeToString(buf.Bytes())
	} else {
		env.Data = raw
	}

	body, err := json.Marshal(env)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// DecodeMessage parses an SQS body produced by EncodeMessage. Bodies from
// older producers that never wrapped requests in an envelope are accepted
// as plain DispatchRequest JSON.
func DecodeMessage(body string) (*types.DispatchRequest, error) {
	var env messageEnvelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalQueue, "malformed dispatch message", err)
	}

	var raw []byte
	switch {
	case env.Version == 0:
		// Pre-envelope producer: the body is the request itself.
		raw = []byte(body)
	case env.Compressed:
		blob, err := base64.StdEncoding.DecodeString(env.Blob)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalQueue, "malformed compressed payload", err)
		}
		zr, err := gzip.NewReader(bytes.NewReader(blob))
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalQueue, "malformed gzip stream", err)
		}
		raw, err = io.ReadAll(zr)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalQueue, "failed to decompress payload", err)
		}
	default:
		raw = env.Data
	}

	var req types.DispatchRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalQueue, "malformed dispatch request", err)
	}
	return &req, nil
}
