// Package pipeline moves raw SWIFT content through ingestion and embedding.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mtmatch/internal/core"
	"mtmatch/internal/embedding"
	"mtmatch/internal/logger"
	"mtmatch/internal/store"
	"mtmatch/internal/swift"
	"mtmatch/internal/vectorstore"
)

// bulkWorkers bounds concurrent embedding calls during a bulk upload.
const bulkWorkers = 4

// ErrUnknownType is returned when neither the request nor the message header
// names a message type.
var ErrUnknownType = errors.New("message type missing and not present in header")

// BulkResult summarizes a multipart upload.
type BulkResult struct {
	Total      int      `json:"total"`
	Succeeded  int      `json:"succeeded"`
	Failed     int      `json:"failed"`
	MessageIDs []string `json:"messageIds"`
	Errors     []string `json:"errors,omitempty"`
}

// Request carries one message to ingest. SenderID, ReceiverID and Notes are
// optional; parties parsed from the header envelope are used when absent.
type Request struct {
	MessageType string `json:"messageType"`
	RawContent  string `json:"rawContent"`
	SenderID    string `json:"senderId,omitempty"`
	ReceiverID  string `json:"receiverId,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// Pipeline ingests messages: persist as NEW, parse, embed, store the vector,
// then advance to EMBEDDED.
type Pipeline struct {
	store    *store.Store
	vectors  vectorstore.Store
	embedder *embedding.Service
	log      *slog.Logger
}

// NewPipeline wires the ingestion pipeline.
func NewPipeline(st *store.Store, vs vectorstore.Store, emb *embedding.Service) *Pipeline {
	return &Pipeline{store: st, vectors: vs, embedder: emb, log: logger.Get()}
}

// Ingest stores one raw message and runs it through parsing and embedding.
// Parsing is lenient and never fails ingestion; an embedding or vector-store
// failure leaves the message persisted with status ERROR and a note, so the
// caller still gets the record back.
func (p *Pipeline) Ingest(ctx context.Context, req Request) (*core.Message, error) {
	messageType := req.MessageType
	if messageType == "" {
		messageType = swift.SniffType(req.RawContent)
	}
	if messageType == "" {
		return nil, ErrUnknownType
	}

	parsed := swift.Parse(req.RawContent)
	sender, receiver := parsed.SenderID, parsed.ReceiverID
	if req.SenderID != "" {
		sender = req.SenderID
	}
	if req.ReceiverID != "" {
		receiver = req.ReceiverID
	}
	msg := core.Message{
		ID:           uuid.NewString(),
		MessageType:  messageType,
		RawContent:   req.RawContent,
		ParsedFields: parsed.FieldMap(),
		SenderID:     sender,
		ReceiverID:   receiver,
		Timestamp:    time.Now().UTC(),
		Status:       core.StatusNew,
		Notes:        req.Notes,
	}
	if err := p.store.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to persist message: %w", err)
	}

	if err := p.embed(ctx, &msg); err != nil {
		msg.Status = core.StatusError
		msg.Notes = err.Error()
		if saveErr := p.store.SaveMessage(ctx, msg); saveErr != nil {
			return nil, saveErr
		}
		p.log.Warn("message ingested without embedding", "messageId", msg.ID, "error", err.Error())
		return &msg, nil
	}

	msg.Status = core.StatusEmbedded
	if err := p.store.UpdateMessageStatus(ctx, msg.ID, core.StatusEmbedded); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (p *Pipeline) embed(ctx context.Context, msg *core.Message) error {
	vec, err := p.embedder.Embed(ctx, msg.RawContent)
	if err != nil {
		return fmt.Errorf("embedding failed: %w", err)
	}
	err = p.vectors.Put(ctx, core.VectorEmbedding{
		ID:             msg.ID,
		DocType:        core.DocMessage,
		Embedding:      vec,
		ContentPreview: swift.Preview(msg.RawContent),
	})
	if err != nil {
		return fmt.Errorf("vector store rejected embedding: %w", err)
	}
	return nil
}

// IngestBulk splits a multipart upload on header envelopes and ingests every
// chunk, embedding concurrently. Per-chunk failures are collected, not fatal.
func (p *Pipeline) IngestBulk(ctx context.Context, raw string) (*BulkResult, error) {
	chunks := swift.SplitBulk(raw)
	result := &BulkResult{Total: len(chunks)}
	if len(chunks) == 0 {
		return result, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkWorkers)

	for i, chunk := range chunks {
		g.Go(func() error {
			msg, err := p.Ingest(gctx, Request{RawContent: chunk})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("chunk %d: %v", i+1, err))
				return nil
			}
			result.Succeeded++
			result.MessageIDs = append(result.MessageIDs, msg.ID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}
