// Package matching ranks incoming messages against template centroids and
// produces transactions with per-field confidence scores.
package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"mtmatch/internal/analysis"
	"mtmatch/internal/config"
	"mtmatch/internal/core"
	"mtmatch/internal/embedding"
	"mtmatch/internal/logger"
	"mtmatch/internal/store"
	"mtmatch/internal/swift"
	"mtmatch/internal/vectorstore"
)

// ErrMessageNotFound is returned when matching is requested for an unknown id.
var ErrMessageNotFound = errors.New("message not found")

// MatchResponse is the outcome of one match attempt. A manual-review outcome
// is a successful response, not an error.
type MatchResponse struct {
	RequiresManualReview bool               `json:"requiresManualReview"`
	MatchConfidence      float64            `json:"matchConfidence"`
	TemplateID           string             `json:"templateId,omitempty"`
	Transaction          *core.Transaction  `json:"transaction,omitempty"`
	FieldConfidences     map[string]float64 `json:"fieldConfidences,omitempty"`
	Reason               string             `json:"reason,omitempty"`
}

// PlaygroundResult scores one template in a test-match sweep.
type PlaygroundResult struct {
	TemplateID           string  `json:"templateId"`
	Description          string  `json:"description"`
	DocumentSimilarity   float64 `json:"documentSimilarity"`
	StructuralSimilarity float64 `json:"structuralSimilarity"`
	FieldSimilarity      float64 `json:"fieldSimilarity"`
	CombinedScore        float64 `json:"combinedScore"`
}

// Matcher matches stored messages against extracted templates.
type Matcher struct {
	store    *store.Store
	vectors  vectorstore.Store
	embedder *embedding.Service
	analyzer analysis.Analyzer
	cfg      *config.Service
	log      *slog.Logger
}

// NewMatcher wires the matcher. analyzer may be nil; the sentinel analysis is
// attached in that case.
func NewMatcher(st *store.Store, vs vectorstore.Store, emb *embedding.Service, an analysis.Analyzer, cfg *config.Service) *Matcher {
	return &Matcher{store: st, vectors: vs, embedder: emb, analyzer: an, cfg: cfg, log: logger.Get()}
}

// Match runs the full matching pass for a stored message and persists the
// resulting transaction. Outcomes below the similarity threshold return a
// manual-review response with no transaction.
func (m *Matcher) Match(ctx context.Context, messageID string) (*MatchResponse, error) {
	msg, err := m.store.GetMessage(ctx, messageID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	}
	if err != nil {
		return nil, err
	}
	// One transaction per message: a repeated match updates the existing row.
	existing, err := m.store.GetTransactionByMessage(ctx, messageID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return m.match(ctx, msg, existing, "match")
}

// Reanalyze re-runs matching for an existing transaction, updating it in
// place. User-entered data is preserved and the reanalysis counters in the
// metadata are advanced; a second transaction is never created.
func (m *Matcher) Reanalyze(ctx context.Context, transactionID string) (*MatchResponse, error) {
	tx, err := m.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	msg, err := m.store.GetMessage(ctx, tx.SwiftMessageID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, tx.SwiftMessageID)
	}
	if err != nil {
		return nil, err
	}
	return m.match(ctx, msg, tx, "reanalyze")
}

// match is the shared path behind Match and Reanalyze. existing carries the
// transaction to update in place, when one exists.
func (m *Matcher) match(ctx context.Context, msg *core.Message, existing *core.Transaction, action string) (*MatchResponse, error) {
	vec, err := m.vectors.Get(ctx, msg.ID)
	if errors.Is(err, vectorstore.ErrNotFound) {
		return &MatchResponse{RequiresManualReview: true, Reason: "no stored vector for message"}, nil
	}
	if err != nil {
		return nil, err
	}

	candidates, err := m.store.FindTemplates(ctx, msg.MessageType, msg.SenderID, msg.ReceiverID)
	if err != nil {
		return nil, err
	}

	var best *core.Template
	bestScore := -1.0
	for i := range candidates {
		c := &candidates[i]
		if len(c.CentroidEmbedding) == 0 || embedding.IsZero(c.CentroidEmbedding) {
			continue
		}
		score := embedding.Cosine(vec.Embedding, c.CentroidEmbedding)
		if score > bestScore {
			bestScore = score
			best = c
		}
	}

	threshold := m.cfg.GetFloat(ctx, "similarity.threshold", 0.85)
	if best == nil || bestScore < threshold {
		resp := &MatchResponse{RequiresManualReview: true, Reason: "no template above similarity threshold"}
		if best != nil {
			resp.MatchConfidence = bestScore
			resp.TemplateID = best.ID
		}
		return resp, nil
	}

	extracted := swift.Parse(msg.RawContent).FieldMap()
	fieldConfidences, err := m.fieldConfidences(ctx, best, extracted)
	if err != nil {
		return nil, err
	}

	structured, err := m.analyze(ctx, msg.RawContent, best.TemplateContent, extracted)
	if err != nil {
		// Failure contract: swallow, attach sentinel, continue.
		m.log.Warn("narrative analysis failed, attaching sentinel", "error", err.Error())
		structured = analysis.Sentinel(err.Error())
	}

	tx := m.buildTransaction(ctx, msg, best, bestScore, extracted, fieldConfidences, structured, existing, action)
	if err := m.store.SaveTransaction(ctx, *tx); err != nil {
		return nil, err
	}
	if err := m.store.AssignTemplateMatch(ctx, msg.ID, best.ID); err != nil {
		return nil, err
	}

	return &MatchResponse{
		MatchConfidence:  bestScore,
		TemplateID:       best.ID,
		Transaction:      tx,
		FieldConfidences: fieldConfidences,
	}, nil
}

func (m *Matcher) analyze(ctx context.Context, raw, templateContent string, extracted map[string]string) (*core.StructuredAnalysis, error) {
	if m.analyzer == nil {
		return analysis.Sentinel(""), nil
	}
	return m.analyzer.Analyze(ctx, raw, templateContent, extracted)
}

// fieldConfidences scores every SWIFT tag present in the message against the
// template's value for that tag.
func (m *Matcher) fieldConfidences(ctx context.Context, tpl *core.Template, extracted map[string]string) (map[string]float64, error) {
	templateFields := swift.Parse(tpl.TemplateContent).FieldMap()
	variable := make(map[string]bool, len(tpl.VariableFields))
	for _, vf := range tpl.VariableFields {
		variable[vf.Tag] = true
	}

	out := make(map[string]float64, len(extracted))
	for tag, msgVal := range extracted {
		tplVal := templateFields[tag]
		switch {
		case tplVal == "" && variable[tag]:
			out[tag] = 0.95
		case tplVal == "":
			// Fixed field the template never constrained.
			out[tag] = 1.0
		default:
			sim, err := m.embedder.FieldSimilarity(ctx, tplVal, msgVal)
			if err != nil {
				return nil, err
			}
			if sim < 0.5 {
				sim = 0.5
			}
			out[tag] = sim
		}
	}
	return out, nil
}

// buildTransaction assembles the persisted record. For re-analysis the id,
// user-entered data and metadata counters carry over from the existing row.
func (m *Matcher) buildTransaction(ctx context.Context, msg *core.Message, tpl *core.Template, score float64, extracted map[string]string, confidences map[string]float64, structured *core.StructuredAnalysis, existing *core.Transaction, action string) *core.Transaction {
	autoApprove := m.cfg.GetFloat(ctx, "similarity.auto_approve_threshold", 0.95)
	now := time.Now().UTC()

	status := core.TxPending
	if score >= autoApprove {
		status = core.TxMatched
	}

	var warnings []string
	// The template records buyer = sender of the pair. A stored template with
	// the opposite orientation predates the reconciliation and is flagged.
	if tpl.BuyerID != msg.SenderID || tpl.SellerID != msg.ReceiverID {
		warnings = append(warnings,
			fmt.Sprintf("template party orientation (%s->%s) differs from message routing (%s->%s)",
				tpl.BuyerID, tpl.SellerID, msg.SenderID, msg.ReceiverID))
	}

	tx := &core.Transaction{
		ID:              uuid.NewString(),
		SwiftMessageID:  msg.ID,
		TemplateID:      tpl.ID,
		MessageType:     msg.MessageType,
		ExtractedData:   extracted,
		UserEnteredData: map[string]string{},
		MatchConfidence: score,
		MatchingDetails: core.MatchingDetails{
			PrimaryTemplateID: tpl.ID,
			FieldConfidences:  confidences,
			Warnings:          warnings,
		},
		Status:             status,
		BuyerID:            msg.SenderID,
		SellerID:           msg.ReceiverID,
		StructuredAnalysis: structured,
		ProcessedAt:        now,
		Metadata:           map[string]string{},
	}

	detail := fmt.Sprintf("matchConfidence=%.4f template=%s", score, tpl.ID)
	if existing != nil {
		tx.ID = existing.ID
		if existing.UserEnteredData != nil {
			tx.UserEnteredData = existing.UserEnteredData
		}
		for k, v := range existing.Metadata {
			tx.Metadata[k] = v
		}
		if action == "reanalyze" {
			count, _ := strconv.Atoi(existing.Metadata["reanalysisCount"])
			tx.Metadata["reanalysisCount"] = strconv.Itoa(count + 1)
			tx.Metadata["lastReanalyzedAt"] = now.Format(time.RFC3339)
		}
		tx.AuditTrail = append(existing.AuditTrail, core.AuditEntry{At: now, Action: action, Detail: detail})
	} else {
		tx.AuditTrail = []core.AuditEntry{{At: now, Action: action, Detail: detail}}
	}

	if m.embedder.Degraded() {
		tx.Metadata["degradedEmbeddings"] = "true"
	}
	return tx
}

// PreviewFieldConfidences computes the per-field confidence map for a message
// against a specific template without mutating any state.
func (m *Matcher) PreviewFieldConfidences(ctx context.Context, messageID, templateID string) (map[string]float64, error) {
	msg, err := m.store.GetMessage(ctx, messageID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	}
	if err != nil {
		return nil, err
	}
	tpl, err := m.store.GetTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	extracted := swift.Parse(msg.RawContent).FieldMap()
	return m.fieldConfidences(ctx, tpl, extracted)
}

// TestAgainstAllTemplates scores raw content against every template of a
// type: document-level cosine, structural Jaccard over tags, and mean
// per-field similarity, combined 0.5/0.3/0.2 field/structural/document.
// Nothing is persisted.
func (m *Matcher) TestAgainstAllTemplates(ctx context.Context, raw, messageType string) ([]PlaygroundResult, error) {
	tpls, err := m.store.ListTemplatesByType(ctx, messageType)
	if err != nil {
		return nil, err
	}
	docVec, err := m.embedder.Embed(ctx, raw)
	if err != nil {
		return nil, err
	}
	parsed := swift.Parse(raw)
	msgFields := parsed.FieldMap()

	results := make([]PlaygroundResult, 0, len(tpls))
	for i := range tpls {
		tpl := &tpls[i]
		docSim := 0.0
		if len(tpl.CentroidEmbedding) > 0 {
			docSim = embedding.Cosine(docVec, tpl.CentroidEmbedding)
		}
		structSim := m.structuralSimilarity(parsed.Tags(), tpl)
		fieldSim, err := m.meanFieldSimilarity(ctx, tpl, msgFields)
		if err != nil {
			return nil, err
		}
		results = append(results, PlaygroundResult{
			TemplateID:           tpl.ID,
			Description:          tpl.Description,
			DocumentSimilarity:   docSim,
			StructuralSimilarity: structSim,
			FieldSimilarity:      fieldSim,
			CombinedScore:        0.5*fieldSim + 0.3*structSim + 0.2*docSim,
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CombinedScore > results[j].CombinedScore
	})
	return results, nil
}

// structuralSimilarity is the Jaccard overlap between the message's tags and
// all of the template's tags, fixed and variable alike.
func (m *Matcher) structuralSimilarity(msgTags []string, tpl *core.Template) float64 {
	tplTags := make(map[string]bool)
	for _, f := range swift.Parse(tpl.TemplateContent).Fields {
		tplTags[f.Tag] = true
	}
	for _, vf := range tpl.VariableFields {
		tplTags[vf.Tag] = true
	}
	if len(tplTags) == 0 && len(msgTags) == 0 {
		return 1
	}
	union := make(map[string]bool, len(tplTags))
	for t := range tplTags {
		union[t] = true
	}
	var intersection int
	for _, t := range msgTags {
		if tplTags[t] {
			intersection++
		}
		union[t] = true
	}
	if len(union) == 0 {
		return 0
	}
	return float64(intersection) / float64(len(union))
}

func (m *Matcher) meanFieldSimilarity(ctx context.Context, tpl *core.Template, msgFields map[string]string) (float64, error) {
	templateFields := swift.Parse(tpl.TemplateContent).FieldMap()
	var sum float64
	var count int
	for tag, tplVal := range templateFields {
		msgVal, ok := msgFields[tag]
		if !ok {
			continue
		}
		sim, err := m.embedder.FieldSimilarity(ctx, tplVal, msgVal)
		if err != nil {
			return 0, err
		}
		sum += sim
		count++
	}
	if count == 0 {
		return 0, nil
	}
	return sum / float64(count), nil
}
