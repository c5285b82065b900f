package graph

import (
	"path/filepath"
	"testing"
)

func TestNormalizeEntityNameCollapsesPunctuation(t *testing.T) {
	got := normalizeEntityName(" Auth.Service! ")
	want := "auth.service_"
	if got != want {
		t.Fatalf("normalizeEntityName = %q, want %q", got, want)
	}
}

func TestGetOrCreateEntityDedupesByNormalizedName(t *testing.T) {
	g := New()
	a := g.GetOrCreateEntity("auth.rs", "file")
	b := g.GetOrCreateEntity("AUTH.RS", "file")
	if a.ID != b.ID {
		t.Fatalf("expected dedup by normalized name, got distinct ids %d and %d", a.ID, b.ID)
	}
	if g.EntityCount() != 1 {
		t.Fatalf("EntityCount = %d, want 1", g.EntityCount())
	}
}

func TestAddTripleReinforcesExistingEdge(t *testing.T) {
	g := New()
	g.AddTriple(Triple{Subject: "auth.rs", Relation: "depends_on", Object: "jwt.rs", Confidence: 0.8})
	g.AddTriple(Triple{Subject: "auth.rs", Relation: "depends_on", Object: "jwt.rs", Confidence: 1.0})

	rels := g.DependsOn("auth.rs")
	if len(rels) != 1 {
		t.Fatalf("DependsOn = %d relations, want 1 (reinforced, not duplicated)", len(rels))
	}
	if got, want := rels[0].Confidence, 0.9; got != want {
		t.Fatalf("reinforced confidence = %v, want plain average %v", got, want)
	}
}

func TestDependsOnAndWhatDependsOnAreInverses(t *testing.T) {
	g := New()
	g.AddTriple(Triple{Subject: "auth.rs", Relation: "depends_on", Object: "jwt.rs", Confidence: 0.9})

	deps := g.DependsOn("auth.rs")
	if len(deps) != 1 || deps[0].Entity.Name != "jwt.rs" {
		t.Fatalf("DependsOn(auth.rs) = %+v, want [jwt.rs]", deps)
	}

	dependents := g.WhatDependsOn("jwt.rs")
	if len(dependents) != 1 || dependents[0].Entity.Name != "auth.rs" {
		t.Fatalf("WhatDependsOn(jwt.rs) = %+v, want [auth.rs]", dependents)
	}
}

func TestWhatBreaksAttenuatesConfidenceByHop(t *testing.T) {
	g := New()
	// b depends on a; c depends on b. Breaking a should surface b
	// directly and c at one hop removed, with c's confidence attenuated.
	g.AddTriple(Triple{Subject: "b", Relation: "depends_on", Object: "a", Confidence: 1.0})
	g.AddTriple(Triple{Subject: "c", Relation: "depends_on", Object: "b", Confidence: 1.0})

	results := g.WhatBreaks("a")

	var foundB, foundC bool
	for _, r := range results {
		switch r.Entity.Name {
		case "b":
			foundB = true
			if r.Confidence != 1.0 {
				t.Fatalf("direct neighbor confidence = %v, want 1.0", r.Confidence)
			}
		case "c":
			foundC = true
			if r.Confidence != 0.7 {
				t.Fatalf("one-hop neighbor confidence = %v, want 0.7", r.Confidence)
			}
		}
	}
	if !foundB || !foundC {
		t.Fatalf("WhatBreaks(a) = %+v, want both b and c present", results)
	}
}

func TestBlastRadiusGeneralizesAcrossAllRelationClasses(t *testing.T) {
	g := New()
	g.AddTriple(Triple{Subject: "b", Relation: "mentions", Object: "a", Confidence: 1.0})

	// WhatBreaks ignores ClassOther edges...
	if got := g.WhatBreaks("a"); len(got) != 0 {
		t.Fatalf("WhatBreaks(a) = %+v, want none for a non-dependency/breaking edge", got)
	}
	// ...but BlastRadius walks every relation class.
	got := g.BlastRadius("a", 1)
	if len(got) != 1 || got[0].Entity.Name != "b" {
		t.Fatalf("BlastRadius(a, 1) = %+v, want [b]", got)
	}
}

func TestGetCommunityMembersFiltersById(t *testing.T) {
	g := New()
	e1 := g.GetOrCreateEntity("a", "file")
	e2 := g.GetOrCreateEntity("b", "file")
	g.SetCommunity(e1.ID, 1)
	g.SetCommunity(e2.ID, 2)

	members := g.GetCommunityMembers(1)
	if len(members) != 1 || members[0].Name != "a" {
		t.Fatalf("GetCommunityMembers(1) = %+v, want [a]", members)
	}
}

func TestDetectCommunitiesEmptyGraph(t *testing.T) {
	g := New()
	communities := DetectCommunities(g, DefaultConfig())
	if len(communities) != 0 {
		t.Fatalf("DetectCommunities on empty graph = %v, want empty", communities)
	}
}

func TestDetectCommunitiesSingleNode(t *testing.T) {
	g := New()
	g.GetOrCreateEntity("single_node", "service")
	communities := DetectCommunities(g, DefaultConfig())
	if len(communities) != 1 {
		t.Fatalf("DetectCommunities on single node = %v, want exactly one entry", communities)
	}
}

func TestDetectCommunitiesFindsTwoWeaklyLinkedClusters(t *testing.T) {
	g := New()
	// Cluster 1: auth.rs <-> jwt.rs <-> user.rs
	g.AddTriple(Triple{Subject: "auth.rs", Relation: "depends_on", Object: "jwt.rs", Confidence: 0.9})
	g.AddTriple(Triple{Subject: "jwt.rs", Relation: "depends_on", Object: "auth.rs", Confidence: 0.9})
	g.AddTriple(Triple{Subject: "jwt.rs", Relation: "depends_on", Object: "user.rs", Confidence: 0.9})
	g.AddTriple(Triple{Subject: "user.rs", Relation: "depends_on", Object: "jwt.rs", Confidence: 0.9})

	// Cluster 2: payment.rs <-> billing.rs
	g.AddTriple(Triple{Subject: "payment.rs", Relation: "depends_on", Object: "billing.rs", Confidence: 0.9})
	g.AddTriple(Triple{Subject: "billing.rs", Relation: "depends_on", Object: "payment.rs", Confidence: 0.9})

	// A weak cross-cluster link.
	g.AddTriple(Triple{Subject: "auth.rs", Relation: "uses", Object: "payment.rs", Confidence: 0.5})

	seed := int64(42)
	cfg := DefaultConfig()
	cfg.Seed = &seed

	communities := DetectCommunities(g, cfg)
	unique := make(map[int]bool)
	for _, c := range communities {
		unique[c] = true
	}
	if len(unique) < 2 {
		t.Fatalf("DetectCommunities found %d distinct communities, want at least 2", len(unique))
	}
}

func TestApplyCommunitiesNamesAndRecordsMembers(t *testing.T) {
	g := New()
	g.AddTriple(Triple{Subject: "auth_service", Relation: "depends_on", Object: "jwt_lib", Confidence: 0.9})

	assignment := DetectCommunities(g, DefaultConfig())
	ApplyCommunities(g, assignment)

	auth, ok := g.GetEntity("auth_service")
	if !ok || !auth.HasCommunity {
		t.Fatal("expected auth_service to have a community assignment after ApplyCommunities")
	}

	members := g.GetCommunityMembers(auth.CommunityID)
	if len(members) == 0 {
		t.Fatal("expected at least one member in auth_service's community")
	}

	c, ok := g.Community(auth.CommunityID)
	if !ok {
		t.Fatal("expected a named Community record after ApplyCommunities")
	}
	if c.Name == "" {
		t.Fatal("expected a non-empty generated community name")
	}
}

func TestSaveAndLoadJSONRoundTrips(t *testing.T) {
	g := New()
	g.AddTriple(Triple{Subject: "auth.rs", Relation: "depends_on", Object: "jwt.rs", Confidence: 0.9})

	path := filepath.Join(t.TempDir(), "graph.json")
	if err := g.SaveJSON(path); err != nil {
		t.Fatalf("SaveJSON: %v", err)
	}

	loaded, err := LoadJSON(path)
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if loaded.EntityCount() != g.EntityCount() {
		t.Fatalf("loaded EntityCount = %d, want %d", loaded.EntityCount(), g.EntityCount())
	}
	deps := loaded.DependsOn("auth.rs")
	if len(deps) != 1 || deps[0].Entity.Name != "jwt.rs" {
		t.Fatalf("loaded DependsOn(auth.rs) = %+v, want [jwt.rs]", deps)
	}
}

func TestLoadJSONMissingFile(t *testing.T) {
	if _, err := LoadJSON(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatal("LoadJSON of a missing file should return an error")
	}
}
