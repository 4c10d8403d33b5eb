// Package templates discovers recurring message shapes per trading pair and
// derives template artifacts from them.
package templates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"mtmatch/internal/clustering"
	"mtmatch/internal/config"
	"mtmatch/internal/core"
	"mtmatch/internal/embedding"
	"mtmatch/internal/features"
	"mtmatch/internal/logger"
	"mtmatch/internal/store"
	"mtmatch/internal/swift"
	"mtmatch/internal/vectorstore"
)

// HighVolumeThreshold is the message count at which the volume term of the
// quality score saturates.
const HighVolumeThreshold = 10

// ExtractionResult summarizes one extraction run.
type ExtractionResult struct {
	TotalMessages   int             `json:"totalMessages"`
	ClustersCreated int             `json:"clustersCreated"`
	Templates       []core.Template `json:"templates"`
}

// Extractor runs the template-extraction batch job over EMBEDDED messages.
type Extractor struct {
	store   *store.Store
	vectors vectorstore.Store
	cfg     *config.Service
	seed    int64
	log     *slog.Logger
}

// NewExtractor creates an extractor. seed drives cluster initialization; pass
// time.Now().UnixNano() in production.
func NewExtractor(st *store.Store, vs vectorstore.Store, cfg *config.Service, seed int64) *Extractor {
	return &Extractor{store: st, vectors: vs, cfg: cfg, seed: seed, log: logger.Get()}
}

type candidate struct {
	key       string
	msgType   string
	senderID  string
	receiver  string
	memberIDs []string
	score     float64
}

// Extract snapshots every EMBEDDED message, partitions by (type, pair),
// clusters each partition's hybrid vectors and derives templates from the
// strongest clusters. Messages claimed by a template move to CLUSTERED;
// everything else stays EMBEDDED for the next run, which makes re-runs
// idempotent.
func (e *Extractor) Extract(ctx context.Context) (*ExtractionResult, error) {
	messages, err := e.store.ListMessagesByStatus(ctx, core.StatusEmbedded)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot embedded messages: %w", err)
	}

	result := &ExtractionResult{TotalMessages: len(messages)}
	if len(messages) == 0 {
		return result, nil
	}

	partitions := make(map[string][]core.Message)
	for _, m := range messages {
		key := m.MessageType + "|" + m.TradingPair()
		partitions[key] = append(partitions[key], m)
	}

	keys := make([]string, 0, len(partitions))
	for k := range partitions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		templates, err := e.extractPartition(ctx, partitions[key])
		if err != nil {
			e.log.Warn("partition extraction failed", "partition", key, "error", err.Error())
			continue
		}
		result.Templates = append(result.Templates, templates...)
		result.ClustersCreated += len(templates)
	}
	return result, nil
}

// extractPartition runs steps 2-12 for one (type, pair) partition.
func (e *Extractor) extractPartition(ctx context.Context, msgs []core.Message) ([]core.Template, error) {
	minSize := e.cfg.GetInt(ctx, "template.min_messages_for_template", 3)
	maxPerPair := e.cfg.GetInt(ctx, "template.max_templates_per_pair", 3)

	semantic := make(map[string][]float64)
	structural := make(map[string][]float64)
	hybrid := make(map[string][]float64)
	byID := make(map[string]core.Message)

	for _, m := range msgs {
		vec, err := e.vectors.Get(ctx, m.ID)
		if errors.Is(err, vectorstore.ErrNotFound) {
			// No stored semantic vector: excluded from this pass,
			// left EMBEDDED for the next one.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load vector for %s: %w", m.ID, err)
		}
		s := features.Featurize(m.ParsedFields, m.SenderID, m.ReceiverID)
		semantic[m.ID] = vec.Embedding
		structural[m.ID] = s
		hybrid[m.ID] = append(append([]float64(nil), s...), vec.Embedding...)
		byID[m.ID] = m
	}
	if len(hybrid) < minSize {
		return nil, nil
	}

	engine := clustering.NewEngine(clustering.Config{
		MaxIterations:        e.cfg.GetInt(ctx, "clustering.max_iterations", 100),
		MinClusters:          e.cfg.GetInt(ctx, "clustering.min_clusters", 2),
		MaxClusters:          e.cfg.GetInt(ctx, "clustering.max_clusters", 10),
		ConvergenceThreshold: e.cfg.GetFloat(ctx, "clustering.convergence_threshold", 0.001),
	}, e.seed)

	clusters, err := engine.Cluster(hybrid)
	if err != nil {
		return nil, fmt.Errorf("clustering failed: %w", err)
	}

	kept := rankClusters(clusters, hybrid, len(hybrid), minSize, maxPerPair)

	var templates []core.Template
	for _, memberIDs := range kept {
		survivors := filterOutliers(memberIDs, structural, minSize)
		if len(survivors) < minSize {
			continue
		}
		tpl, err := e.buildTemplate(ctx, survivors, byID, semantic)
		if err != nil {
			e.log.Warn("template synthesis failed", "error", err.Error())
			continue
		}
		templates = append(templates, *tpl)
	}
	return templates, nil
}

// rankClusters scores clusters by 0.6*(size/partition) + 0.4*cohesion,
// discards those under minSize and keeps at most maxPerPair, best first.
func rankClusters(clusters map[int][]string, hybrid map[string][]float64, partitionSize, minSize, maxPerPair int) [][]string {
	type scored struct {
		ids   []string
		score float64
	}
	var ranked []scored
	clusterIdx := make([]int, 0, len(clusters))
	for idx := range clusters {
		clusterIdx = append(clusterIdx, idx)
	}
	sort.Ints(clusterIdx)
	for _, idx := range clusterIdx {
		ids := clusters[idx]
		if len(ids) < minSize {
			continue
		}
		sizeScore := float64(len(ids)) / float64(partitionSize)
		cohesion := meanPairwiseCosine(ids, hybrid)
		ranked = append(ranked, scored{ids: ids, score: 0.6*sizeScore + 0.4*cohesion})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	if len(ranked) > maxPerPair {
		ranked = ranked[:maxPerPair]
	}
	out := make([][]string, len(ranked))
	for i, r := range ranked {
		out[i] = r.ids
	}
	return out
}

// buildTemplate synthesizes and persists the template for one surviving
// cluster, then moves its members to CLUSTERED.
func (e *Extractor) buildTemplate(ctx context.Context, survivors []string, byID map[string]core.Message, semantic map[string][]float64) (*core.Template, error) {
	first := byID[survivors[0]]

	parsed := make([]swift.ParseResult, len(survivors))
	semanticVecs := make([][]float64, len(survivors))
	for i, id := range survivors {
		parsed[i] = swift.Parse(byID[id].RawContent)
		semanticVecs[i] = semantic[id]
	}

	content, variableFields := synthesize(parsed)
	dim := len(semanticVecs[0])
	centroid := embedding.Centroid(semanticVecs, dim)
	confidence := meanPairwiseCosineVecs(semanticVecs)

	clusterID := uuid.NewString()
	tpl := core.Template{
		ID:                uuid.NewString(),
		MessageType:       first.MessageType,
		BuyerID:           first.SenderID,
		SellerID:          first.ReceiverID,
		TemplateContent:   content,
		VariableFields:    variableFields,
		ClusterID:         clusterID,
		CentroidEmbedding: centroid,
		MessageCount:      len(survivors),
		Confidence:        confidence,
		QualityScore:      qualityScore(len(survivors), confidence, len(variableFields)),
		Description: fmt.Sprintf("%s template for %s -> %s (%d messages)",
			first.MessageType, first.SenderID, first.ReceiverID, len(survivors)),
		SampleMessageIDs: survivors,
		CreatedAt:        time.Now().UTC(),
	}

	if err := e.store.SaveTemplate(ctx, tpl); err != nil {
		return nil, err
	}

	err := e.vectors.Put(ctx, core.VectorEmbedding{
		ID:             tpl.ID,
		DocType:        core.DocTemplate,
		Embedding:      centroid,
		ClusterID:      clusterID,
		ContentPreview: swift.Preview(content),
	})
	if errors.Is(err, vectorstore.ErrZeroVector) {
		// Template stays usable via field-level rules only.
		e.log.Warn("skipping zero-magnitude centroid", "templateId", tpl.ID)
	} else if err != nil {
		return nil, fmt.Errorf("failed to store centroid: %w", err)
	}

	for _, id := range survivors {
		if err := e.store.AssignCluster(ctx, id, clusterID, tpl.ID); err != nil {
			return nil, err
		}
		if err := e.vectors.UpdateCluster(ctx, id, clusterID); err != nil && !errors.Is(err, vectorstore.ErrNotFound) {
			return nil, err
		}
	}
	return &tpl, nil
}

// qualityScore blends volume, cohesion and field richness. Reported on the
// template, not used as a gate.
func qualityScore(size int, confidence float64, fieldCount int) float64 {
	volume := math.Log10(float64(size)+1) / math.Log10(HighVolumeThreshold+1)
	if volume > 1 {
		volume = 1
	}
	fields := float64(fieldCount) / 10
	if fields > 1 {
		fields = 1
	}
	return 0.5*volume + 0.3*confidence + 0.2*fields
}

func meanPairwiseCosine(ids []string, vectors map[string][]float64) float64 {
	vecs := make([][]float64, len(ids))
	for i, id := range ids {
		vecs[i] = vectors[id]
	}
	return meanPairwiseCosineVecs(vecs)
}

func meanPairwiseCosineVecs(vecs [][]float64) float64 {
	if len(vecs) < 2 {
		return 1
	}
	var sum float64
	var count int
	for i := 0; i < len(vecs); i++ {
		for j := i + 1; j < len(vecs); j++ {
			sum += embedding.Cosine(vecs[i], vecs[j])
			count++
		}
	}
	return sum / float64(count)
}
