package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Strob0t/CodeForge/internal/adapter/nats"
	"github.com/Strob0t/CodeForge/internal/adapter/otel"
	"github.com/Strob0t/CodeForge/internal/adapter/ristretto"
	"github.com/Strob0t/CodeForge/internal/analytics"
	"github.com/Strob0t/CodeForge/internal/domain"
	"github.com/Strob0t/CodeForge/internal/edge"
	"github.com/Strob0t/CodeForge/internal/eval"
	"github.com/Strob0t/CodeForge/internal/graph"
	"github.com/Strob0t/CodeForge/internal/memory"
	"github.com/Strob0t/CodeForge/internal/objstore"
	"github.com/Strob0t/CodeForge/internal/retention"
	"github.com/Strob0t/CodeForge/internal/semantic"
	"github.com/Strob0t/CodeForge/internal/store"
	"github.com/Strob0t/CodeForge/internal/ulid"
	"github.com/Strob0t/CodeForge/internal/vectorindex"
	"go.opentelemetry.io/otel/trace"
)

// edgeCacheTTL bounds how long a GetEdge response may be served from the
// L1 cache before falling back to the Edge Store, so a tombstone written
// just after a read is reflected within a bounded window.
const edgeCacheTTL = 30 * time.Second

// Limits bounds request sizes accepted by the API.
type Limits struct {
	MaxRequestBodySize int64
}

// Handlers wires every platform component into the HTTP Query API (spec
// §6): the Edge Store, Analytics Plane, Semantic Search Engine, Evaluator
// Framework, content Memory, Retention Manager, Response Object Store,
// and Knowledge Graph Core.
type Handlers struct {
	Store       *store.Store
	Analytics   *analytics.Plane
	Semantic    *semantic.Engine
	EvalReg     *eval.Registry
	Leaderboard *eval.Leaderboard
	Memory      *memory.Store
	Retention   *retention.Manager
	RetentionEnv  string
	RetentionPath string
	Objects     *objstore.Store
	Refs        *objstore.Refs
	Graph       *graph.Graph
	VectorIndex *vectorindex.Index // optional; nil disables embedding ingestion into the ANN index
	Events      *nats.Bus        // optional; nil disables async edge.ingested publication
	Cache       *ristretto.Cache // optional; nil disables the GetEdge read-through cache
	Metrics     *otel.Metrics    // optional; nil disables request-level OTEL instrumentation
	Limits      Limits
}

// ---------------------------------------------------------------------------
// Edge Store: POST /ingest/edge, GET /edges/{edge_id}, POST /query/range
// ---------------------------------------------------------------------------

type ingestEdgeRequest struct {
	CausalParentID string `json:"causal_parent_id"`
	TenantID       uint64 `json:"tenant_id"`
	ProjectID      uint16 `json:"project_id"`
	AgentID        uint64 `json:"agent_id"`
	SessionID      uint64 `json:"session_id"`
	TimestampUS    int64  `json:"timestamp_us"`
	DurationUS     uint32 `json:"duration_us"`
	TokenCount     uint32 `json:"token_count"`
	SpanType       string `json:"span_type"`
	IsError        bool   `json:"is_error"`
	LogicalClock   uint64 `json:"logical_clock"`
	Payload        []byte `json:"payload,omitempty"`
	Embedding      []float32 `json:"embedding,omitempty"`
}

type ingestEdgeResponse struct {
	ID string `json:"id"`
}

// IngestEdge handles POST /ingest/edge.
func (h *Handlers) IngestEdge(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	req, ok := readJSON[ingestEdgeRequest](w, r, h.Limits.MaxRequestBodySize)
	if !ok {
		return
	}

	spanType, err := edge.ParseSpanType(req.SpanType)
	if err != nil {
		if h.Metrics != nil {
			h.Metrics.IngestErrors.Add(r.Context(), 1)
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := ulid.New(req.TimestampUS / 1000)
	if err != nil {
		if h.Metrics != nil {
			h.Metrics.IngestErrors.Add(r.Context(), 1)
		}
		writeError(w, http.StatusBadRequest, "invalid timestamp_us")
		return
	}

	ctx := r.Context()
	if h.Metrics != nil {
		var span trace.Span
		ctx, span = otel.StartIngestSpan(ctx, req.TenantID, id.String(), req.SpanType)
		defer span.End()
	}

	var parent ulid.ID
	if req.CausalParentID != "" {
		parent, err = ulid.Parse(req.CausalParentID)
		if err != nil {
			if h.Metrics != nil {
				h.Metrics.IngestErrors.Add(ctx, 1)
			}
			writeError(w, http.StatusBadRequest, "invalid causal_parent_id")
			return
		}
	}

	flags := uint8(0)
	if req.IsError {
		flags |= edge.FlagError
	}
	if len(req.Payload) > 0 {
		flags |= edge.FlagHasPayload
	}
	if len(req.Embedding) > 0 {
		flags |= edge.FlagHasEmbedding
	}

	e := edge.Edge{
		ID:             id,
		CausalParentID: parent,
		TenantID:       req.TenantID,
		ProjectID:      req.ProjectID,
		AgentID:        req.AgentID,
		SessionID:      req.SessionID,
		TimestampUS:    req.TimestampUS,
		DurationUS:     req.DurationUS,
		TokenCount:     req.TokenCount,
		SpanType:       spanType,
		Flags:          flags,
		LogicalClock:   req.LogicalClock,
	}

	if err := h.Store.Append(e, req.Payload); err != nil {
		if h.Metrics != nil {
			h.Metrics.IngestErrors.Add(ctx, 1)
		}
		writeDomainError(w, err, "failed to ingest edge")
		return
	}

	if h.Metrics != nil {
		h.Metrics.EdgesIngested.Add(ctx, 1)
		h.Metrics.IngestDuration.Record(ctx, time.Since(started).Seconds())
	}

	if h.VectorIndex != nil && len(req.Embedding) > 0 {
		if err := h.VectorIndex.Insert(id, req.Embedding); err != nil {
			slog.Error("failed to index embedding", "edge_id", id.String(), "error", err)
		}
	}

	h.Analytics.Record(analytics.Event{
		ProjectID:   req.ProjectID,
		AgentID:     req.AgentID,
		SessionID:   req.SessionID,
		TimestampUS: req.TimestampUS,
		DurationUS:  req.DurationUS,
		TokenCount:  req.TokenCount,
		IsError:     req.IsError,
	})

	if h.Events != nil {
		event := nats.EdgeIngestedEvent{
			TenantID:    req.TenantID,
			ProjectID:   req.ProjectID,
			AgentID:     req.AgentID,
			SessionID:   req.SessionID,
			SpanType:    req.SpanType,
			IsError:     req.IsError,
			TimestampUS: req.TimestampUS,
		}
		if err := h.Events.PublishEdgeIngested(ctx, event); err != nil {
			slog.Error("failed to publish edge.ingested", "error", err)
		}
	}

	writeJSON(w, http.StatusCreated, ingestEdgeResponse{ID: id.String()})
}

type edgeResponse struct {
	ID             string `json:"id"`
	CausalParentID string `json:"causal_parent_id,omitempty"`
	TenantID       uint64 `json:"tenant_id"`
	ProjectID      uint16 `json:"project_id"`
	AgentID        uint64 `json:"agent_id"`
	SessionID      uint64 `json:"session_id"`
	TimestampUS    int64  `json:"timestamp_us"`
	DurationUS     uint32 `json:"duration_us"`
	TokenCount     uint32 `json:"token_count"`
	SpanType       string `json:"span_type"`
	IsError        bool   `json:"is_error"`
	LogicalClock   uint64 `json:"logical_clock"`
	Payload        []byte `json:"payload,omitempty"`
}

func toEdgeResponse(e edge.Edge, payload []byte) edgeResponse {
	resp := edgeResponse{
		ID:           e.ID.String(),
		TenantID:     e.TenantID,
		ProjectID:    e.ProjectID,
		AgentID:      e.AgentID,
		SessionID:    e.SessionID,
		TimestampUS:  e.TimestampUS,
		DurationUS:   e.DurationUS,
		TokenCount:   e.TokenCount,
		SpanType:     e.SpanType.String(),
		IsError:      e.IsError(),
		LogicalClock: e.LogicalClock,
		Payload:      payload,
	}
	if !e.CausalParentID.IsZero() {
		resp.CausalParentID = e.CausalParentID.String()
	}
	return resp
}

// GetEdge handles GET /edges/{edge_id}. tenant_id is passed as a query
// parameter since the edge id alone does not disambiguate tenant shards.
func (h *Handlers) GetEdge(w http.ResponseWriter, r *http.Request) {
	id, err := ulid.Parse(urlParam(r, "edge_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid edge_id")
		return
	}
	tenant, err := strconv.ParseUint(r.URL.Query().Get("tenant_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "tenant_id query parameter is required")
		return
	}

	cacheKey := edgeCacheKey(tenant, id)
	if h.Cache != nil {
		if cached, ok, _ := h.Cache.Get(r.Context(), cacheKey); ok {
			var resp edgeResponse
			if json.Unmarshal(cached, &resp) == nil {
				writeJSON(w, http.StatusOK, resp)
				return
			}
		}
	}

	e, err := h.Store.Get(tenant, id)
	if err != nil {
		writeDomainError(w, err, "edge not found")
		return
	}

	var payload []byte
	if e.HasPayload() {
		payload, _ = h.Store.GetPayload(tenant, id)
	}

	resp := toEdgeResponse(e, payload)
	if h.Cache != nil {
		if data, err := json.Marshal(resp); err == nil {
			_ = h.Cache.Set(r.Context(), cacheKey, data, edgeCacheTTL)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// edgeCacheKey scopes a cache entry to its owning tenant, since edge ids
// alone don't disambiguate across tenant shards.
func edgeCacheKey(tenant uint64, id ulid.ID) string {
	return strconv.FormatUint(tenant, 10) + ":" + id.String()
}

type queryRangeRequest struct {
	TenantID  uint64  `json:"tenant_id"`
	LoUS      int64   `json:"lo_us"`
	HiUS      int64   `json:"hi_us"`
	ProjectID *uint16 `json:"project_id,omitempty"`
	AgentID   *uint64 `json:"agent_id,omitempty"`
	SessionID *uint64 `json:"session_id,omitempty"`
	SpanType  *string `json:"span_type,omitempty"`
	ErrorOnly bool    `json:"error_only"`
}

// QueryRange handles POST /query/range.
func (h *Handlers) QueryRange(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[queryRangeRequest](w, r, h.Limits.MaxRequestBodySize)
	if !ok {
		return
	}

	filters := store.Filters{
		ProjectID: req.ProjectID,
		AgentID:   req.AgentID,
		SessionID: req.SessionID,
		ErrorOnly: req.ErrorOnly,
	}
	if req.SpanType != nil {
		st, err := edge.ParseSpanType(*req.SpanType)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filters.SpanType = &st
	}

	edges, err := h.Store.RangeScan(req.TenantID, req.LoUS, req.HiUS, filters)
	if err != nil {
		writeDomainError(w, err, "range scan failed")
		return
	}

	out := make([]edgeResponse, 0, len(edges))
	for _, e := range edges {
		out = append(out, toEdgeResponse(e, nil))
	}
	writeJSON(w, http.StatusOK, map[string]any{"edges": out})
}

// StorageUsage handles GET /api/v1/storage/usage (supplemented feature:
// per-tenant storage usage accounting). It reports the tenant's byte
// total only. No write path reads it, and the store has no admission
// control: it never returns domain.ErrStorageBusy.
func (h *Handlers) StorageUsage(w http.ResponseWriter, r *http.Request) {
	tenant, err := strconv.ParseUint(r.URL.Query().Get("tenant_id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "tenant_id query parameter is required")
		return
	}
	bytes, err := h.Store.Usage(tenant)
	if err != nil {
		writeDomainError(w, err, "failed to compute storage usage")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenant_id": tenant, "bytes": bytes})
}

// ---------------------------------------------------------------------------
// Semantic Search Engine: POST /semantic/search
// ---------------------------------------------------------------------------

type semanticSearchRequest struct {
	Text             string  `json:"text"`
	Limit            int     `json:"limit"`
	MinSimilarity    float64 `json:"min_similarity"`
	IncludeHighlight bool    `json:"include_highlight"`
	Rerank           bool    `json:"rerank"`
}

type semanticResultResponse struct {
	ID         string  `json:"id"`
	Similarity float64 `json:"similarity"`
	Rank       int     `json:"rank"`
}

// SemanticSearch handles POST /semantic/search.
func (h *Handlers) SemanticSearch(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	req, ok := readJSON[semanticSearchRequest](w, r, h.Limits.MaxRequestBodySize)
	if !ok {
		return
	}

	ctx := r.Context()
	if h.Metrics != nil {
		var span trace.Span
		ctx, span = otel.StartSemanticSearchSpan(ctx, len(req.Text), req.Limit)
		defer span.End()
	}

	results, err := h.Semantic.Search(ctx, semantic.Query{
		Text:             req.Text,
		Limit:            req.Limit,
		MinSimilarity:    req.MinSimilarity,
		IncludeHighlight: req.IncludeHighlight,
		Rerank:           req.Rerank,
	})
	if err != nil {
		writeDomainError(w, err, "semantic search failed")
		return
	}
	if h.Metrics != nil {
		h.Metrics.SearchDuration.Record(ctx, time.Since(started).Seconds())
	}

	out := make([]semanticResultResponse, 0, len(results))
	for _, res := range results {
		out = append(out, semanticResultResponse{ID: res.ID.String(), Similarity: res.Similarity, Rank: res.Rank})
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": out})
}

// ---------------------------------------------------------------------------
// Evaluator Framework: POST /evaluate
// ---------------------------------------------------------------------------

type evaluateRequest struct {
	Preset      string            `json:"preset"`
	EvaluatorIDs []string         `json:"evaluator_ids"`
	Parallel    bool              `json:"parallel"`
	FailFast    bool              `json:"fail_fast"`
	MaxInFlight int               `json:"max_in_flight"`
	TraceID     string            `json:"trace_id"`
	Input       *string           `json:"input"`
	Output      *string           `json:"output"`
	Context     []string          `json:"context"`
	Metadata    map[string]string `json:"metadata"`
}

var presetsByName = map[string]eval.Preset{
	"rag":         eval.PresetRAG,
	"agent":       eval.PresetAgent,
	"codegen":     eval.PresetCodeGen,
	"content_gen": eval.PresetContentGen,
	"minimal":     eval.PresetMinimal,
}

// Evaluate handles POST /evaluate, running a suite of evaluators over one
// trace and recording the results into the cost/latency leaderboard.
func (h *Handlers) Evaluate(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[evaluateRequest](w, r, h.Limits.MaxRequestBodySize)
	if !ok {
		return
	}
	if !requireField(w, req.TraceID, "trace_id") {
		return
	}

	builder := eval.NewBuilder(h.EvalReg)
	if req.Preset != "" {
		preset, known := presetsByName[req.Preset]
		if !known {
			writeError(w, http.StatusBadRequest, "unknown preset")
			return
		}
		builder.WithPreset(preset)
	}
	if len(req.EvaluatorIDs) > 0 {
		evaluators, err := h.EvalReg.Build(req.EvaluatorIDs)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		for _, ev := range evaluators {
			builder.WithEvaluator(ev)
		}
	}
	builder.WithParallel(req.Parallel).WithFailFast(req.FailFast)
	if req.MaxInFlight > 0 {
		builder.WithMaxInFlight(req.MaxInFlight)
	}

	ctx := r.Context()
	if h.Metrics != nil {
		var span trace.Span
		ctx, span = otel.StartEvaluationSpan(ctx, req.TraceID, len(req.EvaluatorIDs))
		defer span.End()
	}

	suite := builder.Build()
	result := suite.Evaluate(ctx, eval.TraceContext{
		TraceID:  req.TraceID,
		Input:    req.Input,
		Output:   req.Output,
		Context:  req.Context,
		Metadata: req.Metadata,
	})

	if h.Metrics != nil {
		h.Metrics.EvaluationsRun.Add(ctx, 1)
		if !result.AllPassed {
			h.Metrics.EvaluationFailures.Add(ctx, 1)
		}
	}

	if h.Leaderboard != nil {
		h.Leaderboard.Record(result.Results)
	}

	writeJSON(w, http.StatusOK, result)
}

// EvaluatorLeaderboard handles GET /evaluate/leaderboard (supplemented
// feature: cost/latency leaderboard over historical evaluator results).
func (h *Handlers) EvaluatorLeaderboard(w http.ResponseWriter, r *http.Request) {
	if evaluatorID := r.URL.Query().Get("evaluator_id"); evaluatorID != "" {
		writeJSON(w, http.StatusOK, h.Leaderboard.Entry(evaluatorID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": h.Leaderboard.Entries()})
}

// ---------------------------------------------------------------------------
// Memory: POST /memory/ingest, POST /memory/retrieve
// ---------------------------------------------------------------------------

type memoryIngestRequest struct {
	Collection string            `json:"collection"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata"`
}

// MemoryIngest handles POST /memory/ingest.
func (h *Handlers) MemoryIngest(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[memoryIngestRequest](w, r, h.Limits.MaxRequestBodySize)
	if !ok {
		return
	}
	if !requireField(w, req.Collection, "collection") || !requireField(w, req.Content, "content") {
		return
	}

	id, err := h.Memory.Ingest(r.Context(), req.Collection, req.Content, req.Metadata)
	if err != nil {
		writeDomainError(w, err, "failed to ingest memory content")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id.String()})
}

type memoryRetrieveRequest struct {
	Collection string `json:"collection"`
	Query      string `json:"query"`
	K          int    `json:"k"`
}

type memoryHitResponse struct {
	ID         string            `json:"id"`
	Content    string            `json:"content"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Similarity float64           `json:"similarity"`
}

// MemoryRetrieve handles POST /memory/retrieve.
func (h *Handlers) MemoryRetrieve(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[memoryRetrieveRequest](w, r, h.Limits.MaxRequestBodySize)
	if !ok {
		return
	}
	if !requireField(w, req.Collection, "collection") || !requireField(w, req.Query, "query") {
		return
	}
	if req.K <= 0 {
		req.K = 10
	}

	hits, err := h.Memory.Retrieve(r.Context(), req.Collection, req.Query, req.K)
	if err != nil {
		writeDomainError(w, err, "failed to retrieve memory content")
		return
	}

	out := make([]memoryHitResponse, 0, len(hits))
	for _, hit := range hits {
		out = append(out, memoryHitResponse{
			ID:         hit.Record.ID.String(),
			Content:    hit.Record.Content,
			Metadata:   hit.Record.Metadata,
			Similarity: hit.Similarity,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"hits": out})
}

// ---------------------------------------------------------------------------
// Retention Manager: GET/PUT /retention/config, POST /retention/apply
// ---------------------------------------------------------------------------

// GetRetentionConfig handles GET /retention/config.
func (h *Handlers) GetRetentionConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Retention.Config())
}

// PutRetentionConfig handles PUT /retention/config.
func (h *Handlers) PutRetentionConfig(w http.ResponseWriter, r *http.Request) {
	cfg, ok := readJSON[retention.Config](w, r, h.Limits.MaxRequestBodySize)
	if !ok {
		return
	}
	h.Retention.SetConfig(&cfg)
	if h.RetentionPath != "" {
		if err := cfg.Save(h.RetentionPath); err != nil {
			slog.Error("failed to persist retention config", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, &cfg)
}

// ApplyRetention handles POST /retention/apply.
func (h *Handlers) ApplyRetention(w http.ResponseWriter, r *http.Request) {
	if err := h.Retention.ApplyRetention(time.Now()); err != nil {
		writeDomainError(w, err, "retention run had failures")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

// ---------------------------------------------------------------------------
// Response Object Store: GET /response-git/commit/{oid}, POST /response-git/diff
// ---------------------------------------------------------------------------

type commitResponse struct {
	OID       string            `json:"oid"`
	Tree      string            `json:"tree"`
	Parents   []string          `json:"parents"`
	Author    string            `json:"author"`
	Committer string            `json:"committer"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// GetCommit handles GET /response-git/commit/{oid}.
func (h *Handlers) GetCommit(w http.ResponseWriter, r *http.Request) {
	oid, err := objstore.ParseOID(urlParam(r, "oid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid oid")
		return
	}

	commit, err := h.Objects.ReadCommit(oid)
	if err != nil {
		writeDomainError(w, err, "commit not found")
		return
	}

	parents := make([]string, len(commit.Parents))
	for i, p := range commit.Parents {
		parents[i] = p.String()
	}
	writeJSON(w, http.StatusOK, commitResponse{
		OID:       oid.String(),
		Tree:      commit.Tree.String(),
		Parents:   parents,
		Author:    commit.Author,
		Committer: commit.Committer,
		Timestamp: commit.Timestamp,
		Metadata:  commit.Metadata,
	})
}

type diffRequest struct {
	FromOID               string `json:"from_oid"`
	ToOID                 string `json:"to_oid"`
	FromRef               string `json:"from_ref"`
	ToRef                 string `json:"to_ref"`
	ContentType           string `json:"content_type"`
	ContextLines          int    `json:"context_lines"`
	WhitespaceInsensitive bool   `json:"whitespace_insensitive"`
}

// resolveOID prefers an explicit oid over a named ref, resolving the ref
// through h.Refs when no oid was given.
func (h *Handlers) resolveOID(oid, ref string) (objstore.OID, error) {
	if oid != "" {
		return objstore.ParseOID(oid)
	}
	return h.Refs.Get(ref)
}

// Diff handles POST /response-git/diff, diffing two blobs addressed
// either by oid or by ref name.
func (h *Handlers) Diff(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[diffRequest](w, r, h.Limits.MaxRequestBodySize)
	if !ok {
		return
	}

	fromOID, err := h.resolveOID(req.FromOID, req.FromRef)
	if err != nil {
		writeDomainError(w, err, "could not resolve from_oid/from_ref")
		return
	}
	toOID, err := h.resolveOID(req.ToOID, req.ToRef)
	if err != nil {
		writeDomainError(w, err, "could not resolve to_oid/to_ref")
		return
	}

	from, err := h.Objects.ReadBlob(fromOID)
	if err != nil {
		writeDomainError(w, err, "from_oid not found")
		return
	}
	to, err := h.Objects.ReadBlob(toOID)
	if err != nil {
		writeDomainError(w, err, "to_oid not found")
		return
	}

	opts := objstore.DefaultDiffOptions()
	if req.ContextLines > 0 {
		opts.ContextLines = req.ContextLines
	}
	opts.WhitespaceInsensitive = req.WhitespaceInsensitive

	diff := objstore.DiffBlobs(from, to, opts)
	writeJSON(w, http.StatusOK, diff)
}

// ---------------------------------------------------------------------------
// Knowledge Graph Core: ingest triples and impact-analysis queries
// ---------------------------------------------------------------------------

type ingestTripleRequest struct {
	Subject      string  `json:"subject"`
	SubjectType  string  `json:"subject_type"`
	Relation     string  `json:"relation"`
	Object       string  `json:"object"`
	ObjectType   string  `json:"object_type"`
	Confidence   float64 `json:"confidence"`
}

// IngestTriple handles POST /graph/triples.
func (h *Handlers) IngestTriple(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[ingestTripleRequest](w, r, h.Limits.MaxRequestBodySize)
	if !ok {
		return
	}
	if !requireField(w, req.Subject, "subject") || !requireField(w, req.Relation, "relation") || !requireField(w, req.Object, "object") {
		return
	}

	h.Graph.AddTriple(graph.Triple{
		Subject:     req.Subject,
		SubjectType: req.SubjectType,
		Relation:    req.Relation,
		Object:      req.Object,
		ObjectType:  req.ObjectType,
		Confidence:  req.Confidence,
	})
	w.WriteHeader(http.StatusNoContent)
}

type relationResponse struct {
	Entity     entityResponse `json:"entity"`
	Relation   string         `json:"relation"`
	Confidence float64        `json:"confidence"`
}

type entityResponse struct {
	Name            string `json:"name"`
	Type            string `json:"type"`
	OccurrenceCount int    `json:"occurrence_count"`
}

func toRelationResponses(relations []graph.Relation) []relationResponse {
	out := make([]relationResponse, 0, len(relations))
	for _, rel := range relations {
		out = append(out, relationResponse{
			Entity: entityResponse{
				Name:            rel.Entity.Name,
				Type:            rel.Entity.Type,
				OccurrenceCount: rel.Entity.OccurrenceCount,
			},
			Relation:   rel.Relation,
			Confidence: rel.Confidence,
		})
	}
	return out
}

// DependsOn handles GET /graph/{name}/depends-on.
func (h *Handlers) DependsOn(w http.ResponseWriter, r *http.Request) {
	relations := h.Graph.DependsOn(urlParam(r, "name"))
	writeJSON(w, http.StatusOK, map[string]any{"relations": toRelationResponses(relations)})
}

// WhatDependsOn handles GET /graph/{name}/what-depends-on.
func (h *Handlers) WhatDependsOn(w http.ResponseWriter, r *http.Request) {
	relations := h.Graph.WhatDependsOn(urlParam(r, "name"))
	writeJSON(w, http.StatusOK, map[string]any{"relations": toRelationResponses(relations)})
}

// WhatBreaks handles GET /graph/{name}/what-breaks.
func (h *Handlers) WhatBreaks(w http.ResponseWriter, r *http.Request) {
	relations := h.Graph.WhatBreaks(urlParam(r, "name"))
	writeJSON(w, http.StatusOK, map[string]any{"relations": toRelationResponses(relations)})
}

// BlastRadius handles GET /graph/{name}/blast-radius.
func (h *Handlers) BlastRadius(w http.ResponseWriter, r *http.Request) {
	maxDepth := 3
	if raw := r.URL.Query().Get("max_depth"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid max_depth")
			return
		}
		maxDepth = parsed
	}
	relations := h.Graph.BlastRadius(urlParam(r, "name"), maxDepth)
	writeJSON(w, http.StatusOK, map[string]any{"relations": toRelationResponses(relations)})
}

type detectCommunitiesRequest struct {
	Resolution     float64 `json:"resolution"`
	MaxIterations  int     `json:"max_iterations"`
	MinImprovement float64 `json:"min_improvement"`
	Seed           *int64  `json:"seed"`
}

// DetectCommunities handles POST /graph/communities/detect.
func (h *Handlers) DetectCommunities(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[detectCommunitiesRequest](w, r, h.Limits.MaxRequestBodySize)
	if !ok {
		return
	}

	cfg := graph.DefaultConfig()
	if req.Resolution > 0 {
		cfg.Resolution = req.Resolution
	}
	if req.MaxIterations > 0 {
		cfg.MaxIterations = req.MaxIterations
	}
	if req.MinImprovement > 0 {
		cfg.MinImprovement = req.MinImprovement
	}
	cfg.Seed = req.Seed

	assignment := graph.DetectCommunities(h.Graph, cfg)
	graph.ApplyCommunities(h.Graph, assignment)

	writeJSON(w, http.StatusOK, map[string]any{"community_count": len(uniqueCommunityIDs(assignment))})
}

func uniqueCommunityIDs(assignment map[graph.EntityID]int) map[int]struct{} {
	seen := make(map[int]struct{})
	for _, id := range assignment {
		seen[id] = struct{}{}
	}
	return seen
}

type communityResponse struct {
	ID       int      `json:"id"`
	Name     string   `json:"name"`
	Members  []string `json:"members"`
	Keywords []string `json:"keywords"`
}

// GetCommunity handles GET /graph/communities/{id}.
func (h *Handlers) GetCommunity(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(urlParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid community id")
		return
	}

	community, ok := h.Graph.Community(id)
	if !ok {
		writeDomainError(w, domain.ErrNotFound, "community not found")
		return
	}

	members := h.Graph.GetCommunityMembers(id)
	names := make([]string, len(members))
	for i, m := range members {
		names[i] = m.Name
	}
	writeJSON(w, http.StatusOK, communityResponse{
		ID:       community.ID,
		Name:     community.Name,
		Members:  names,
		Keywords: community.Keywords,
	})
}
