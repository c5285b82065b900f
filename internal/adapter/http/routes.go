package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers every platform endpoint on r (spec §6), grouped
// by the component it queries.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Edge Store
		r.Post("/ingest/edge", h.IngestEdge)
		r.Get("/edges/{edge_id}", h.GetEdge)
		r.Post("/query/range", h.QueryRange)
		r.Get("/storage/usage", h.StorageUsage)

		// Semantic Search Engine
		r.Post("/semantic/search", h.SemanticSearch)

		// Evaluator Framework
		r.Post("/evaluate", h.Evaluate)
		r.Get("/evaluate/leaderboard", h.EvaluatorLeaderboard)

		// Memory
		r.Post("/memory/ingest", h.MemoryIngest)
		r.Post("/memory/retrieve", h.MemoryRetrieve)

		// Retention Manager
		r.Get("/retention/config", h.GetRetentionConfig)
		r.Put("/retention/config", h.PutRetentionConfig)
		r.Post("/retention/apply", h.ApplyRetention)

		// Response Object Store
		r.Get("/response-git/commit/{oid}", h.GetCommit)
		r.Post("/response-git/diff", h.Diff)

		// Knowledge Graph Core
		r.Post("/graph/triples", h.IngestTriple)
		r.Get("/graph/{name}/depends-on", h.DependsOn)
		r.Get("/graph/{name}/what-depends-on", h.WhatDependsOn)
		r.Get("/graph/{name}/what-breaks", h.WhatBreaks)
		r.Get("/graph/{name}/blast-radius", h.BlastRadius)
		r.Post("/graph/communities/detect", h.DetectCommunities)
		r.Get("/graph/communities/{id}", h.GetCommunity)
	})
}
