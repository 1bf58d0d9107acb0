// Package pipeline turns a user message into a stored, key-obfuscated embedding.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"

	"github.com/hrygo/embedcore/ai"
	"github.com/hrygo/embedcore/ai/core/obfuscation"
	"github.com/hrygo/embedcore/ai/core/retrieval"
	"github.com/hrygo/embedcore/ai/observability/tracing"
	"github.com/hrygo/embedcore/internal/errs"
	"github.com/hrygo/embedcore/internal/result"
)

// DefaultItemType is used when a message names no item type.
const DefaultItemType = "message"

// KeyProvider supplies per-user obfuscation keys.
type KeyProvider interface {
	GetKey(ctx context.Context, userID string) (string, bool, error)
	GenerateKey(ctx context.Context, userID string) (string, error)
}

// Recorder receives one event per processed message.
type Recorder interface {
	RecordPipelineResult(status string)
}

// Message is an inbound user message.
type Message struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Platform  string `json:"platform"`
	Text      string `json:"text"`
	ItemType  string `json:"item_type,omitempty"`
	ItemID    string `json:"item_id,omitempty"`
}

// Result reports what happened to a message.
type Result struct {
	RequestID           string        `json:"request_id"`
	Status              result.Status `json:"status"`
	Reason              string        `json:"reason,omitempty"`
	ErrorKind           string        `json:"error_kind,omitempty"`
	UserID              string        `json:"user_id"`
	SessionID           string        `json:"session_id"`
	Platform            string        `json:"platform"`
	ItemType            string        `json:"item_type"`
	ItemID              string        `json:"item_id"`
	Embedding           []float64     `json:"embedding,omitempty"`
	ObfuscatedEmbedding []float64     `json:"obfuscated_embedding,omitempty"`
	Timestamp           int64         `json:"timestamp"`
}

// Pipeline wires generation, key management, obfuscation and storage.
type Pipeline struct {
	embedder ai.EmbeddingService
	keys     KeyProvider
	facade   *retrieval.Facade
	recorder Recorder
}

// New creates a pipeline. recorder may be nil.
func New(embedder ai.EmbeddingService, keys KeyProvider, facade *retrieval.Facade, recorder Recorder) *Pipeline {
	return &Pipeline{
		embedder: embedder,
		keys:     keys,
		facade:   facade,
		recorder: recorder,
	}
}

// ProcessMessage generates, obfuscates and stores the embedding of msg.
// Every failure is reported in the returned Result; storage is only written
// after generation, key lookup and obfuscation have all succeeded.
// Stage timings go to the trace carried by ctx, or to a fresh one.
func (p *Pipeline) ProcessMessage(ctx context.Context, msg Message) (res *Result) {
	if msg.ItemType == "" {
		msg.ItemType = DefaultItemType
	}
	if msg.ItemID == "" {
		msg.ItemID = shortuuid.New()
	}

	res = &Result{
		RequestID: uuid.NewString(),
		UserID:    msg.UserID,
		SessionID: msg.SessionID,
		Platform:  msg.Platform,
		ItemType:  msg.ItemType,
		ItemID:    msg.ItemID,
		Timestamp: time.Now().Unix(),
	}
	logger := slog.With("request_id", res.RequestID, "user_id", msg.UserID, "item_type", msg.ItemType, "item_id", msg.ItemID)

	trace, ok := tracing.FromContext(ctx)
	if !ok {
		trace = tracing.New(res.RequestID, true)
		ctx = tracing.WithTrace(ctx, trace)
	}

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while processing message", "panic", r)
			res.fail(fmt.Errorf("internal error: %v", r))
		}
		if p.recorder != nil {
			p.recorder.RecordPipelineResult(res.Status.String())
		}
		trace.End(logger)
	}()

	if err := validate(msg); err != nil {
		res.fail(err)
		return res
	}

	end := trace.Begin("embed")
	vec, err := p.embedder.Embed(ctx, msg.Text)
	end(err)
	if err != nil {
		logger.Warn("embedding generation failed", "error", err)
		res.fail(err)
		return res
	}
	res.Embedding = obfuscation.ToFloat64(vec)

	end = trace.Begin("key")
	key, err := p.userKey(ctx, msg.UserID)
	end(err)
	if err != nil {
		logger.Warn("user key unavailable", "error", err)
		res.fail(err)
		return res
	}

	end = trace.Begin("obfuscate")
	obfuscated, err := obfuscation.Obfuscate(res.Embedding, key)
	end(err)
	if err != nil {
		res.fail(err)
		return res
	}
	res.ObfuscatedEmbedding = obfuscated

	end = trace.Begin("store")
	outcome := p.facade.UpsertVector(ctx, retrieval.UpsertRequest{
		ItemType:  msg.ItemType,
		ItemID:    msg.ItemID,
		Text:      msg.Text,
		UserID:    msg.UserID,
		SessionID: msg.SessionID,
		Platform:  msg.Platform,
		Vector:    obfuscated,
	})
	end(outcome.Err)
	res.Status = outcome.Status
	if !outcome.OK() {
		res.Reason = outcome.Reason
		res.ErrorKind = outcome.Kind().String()
		logger.Warn("embedding not stored", "status", outcome.Status.String(), "reason", outcome.Reason)
		return res
	}

	logger.Info("message processed", "session_id", msg.SessionID, "platform", msg.Platform)
	return res
}

// Recover loads a stored vector and removes the user's current key offset.
// Records written before a key rotation do not round-trip.
func (p *Pipeline) Recover(ctx context.Context, userID, itemType, itemID string) ([]float64, error) {
	record, err := p.facade.Get(ctx, itemType, itemID)
	if err != nil {
		return nil, err
	}
	key, ok, err := p.keys.GetKey(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no key for user %s", errs.ErrNotFound, userID)
	}
	return obfuscation.Deobfuscate(record.Vector, key)
}

func (p *Pipeline) userKey(ctx context.Context, userID string) (string, error) {
	key, ok, err := p.keys.GetKey(ctx, userID)
	if err != nil {
		return "", err
	}
	if ok {
		return key, nil
	}
	return p.keys.GenerateKey(ctx, userID)
}

func validate(msg Message) error {
	switch {
	case msg.UserID == "":
		return errs.InvalidArgument("user_id is required")
	case msg.SessionID == "":
		return errs.InvalidArgument("session_id is required")
	case msg.Platform == "":
		return errs.InvalidArgument("platform is required")
	}
	return nil
}

func (r *Result) fail(err error) {
	r.Status = result.StatusFailed
	r.Reason = err.Error()
	r.ErrorKind = errs.KindOf(err).String()
}
