package graph

import "fmt"

// ExtractEdgeTriples derives the structural facts implied by one ingested
// Edge Store record: the project contains the agent, and the agent uses
// the session. This is the minimal always-available extractor; richer
// extraction (e.g. from the LLM transcript) is an external collaborator
// that can call AddTriple directly with its own confidence.
func ExtractEdgeTriples(projectID uint16, agentID, sessionID uint64) []Triple {
	project := fmt.Sprintf("project_%d", projectID)
	agent := fmt.Sprintf("agent_%d", agentID)
	session := fmt.Sprintf("session_%d", sessionID)

	return []Triple{
		{Subject: project, SubjectType: "project", Relation: "contains", Object: agent, ObjectType: "agent", Confidence: 1.0},
		{Subject: agent, SubjectType: "agent", Relation: "uses", Object: session, ObjectType: "session", Confidence: 1.0},
	}
}

// IngestEdgeEvent records every triple ExtractEdgeTriples derives for one
// edge into g.
func IngestEdgeEvent(g *Graph, projectID uint16, agentID, sessionID uint64) {
	for _, t := range ExtractEdgeTriples(projectID, agentID, sessionID) {
		g.AddTriple(t)
	}
}
