package graph

import (
	"context"
	"fmt"
	"strconv"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yourorg/lifedb/internal/domain"
)

// ItemProjection is the relational truth of one item as the graph sees it.
// Tags is authoritative: edges to tags not listed are removed.
type ItemProjection struct {
	ID       int64
	URL      string
	Title    string
	Domain   string
	Category string
	Tags     []string
}

// Projector mirrors relational changes into the graph store.
type Projector interface {
	Project(ctx context.Context, p ItemProjection) error
	RenameCategory(ctx context.Context, oldName, newName string) error
	MergeTags(ctx context.Context, src, dst string) error
}

// Reader serves the read-only graph view.
type Reader interface {
	Graph(ctx context.Context, f domain.GraphFilter) (domain.Graph, error)
}

// Nop is used when no graph store is configured.
type Nop struct{}

func (Nop) Project(context.Context, ItemProjection) error        { return nil }
func (Nop) RenameCategory(context.Context, string, string) error { return nil }
func (Nop) MergeTags(context.Context, string, string) error      { return nil }
func (Nop) Graph(context.Context, domain.GraphFilter) (domain.Graph, error) {
	return domain.Graph{Nodes: []domain.GraphNode{}, Edges: []domain.GraphEdge{}}, nil
}

// Neo4j implements Projector and Reader on a Client.
type Neo4j struct {
	c *Client
}

func NewNeo4j(c *Client) *Neo4j { return &Neo4j{c: c} }

type stmt struct {
	cypher string
	params map[string]any
}

func (n *Neo4j) write(ctx context.Context, stmts ...stmt) error {
	session := n.c.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: n.c.Database,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, s := range stmts {
			res, err := tx.Run(ctx, s.cypher, s.params)
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrProjectionFailed, err)
	}
	return nil
}

// Project upserts the item node and reconciles its domain, category and tag edges.
func (n *Neo4j) Project(ctx context.Context, p ItemProjection) error {
	return n.write(ctx, projectionStatements(p)...)
}

func projectionStatements(p ItemProjection) []stmt {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	out := []stmt{
		{cyMergeItem, map[string]any{"id": p.ID, "title": p.Title, "url": p.URL}},
		{cyDropStaleDomain, map[string]any{"id": p.ID, "domain": p.Domain}},
	}
	if p.Domain != "" {
		out = append(out, stmt{cyLinkDomain, map[string]any{"id": p.ID, "domain": p.Domain}})
	}
	out = append(out, stmt{cyDropStaleCategory, map[string]any{"id": p.ID, "category": p.Category}})
	if p.Category != "" {
		out = append(out, stmt{cyLinkCategory, map[string]any{"id": p.ID, "category": p.Category}})
	}
	out = append(out, stmt{cyDropStaleTags, map[string]any{"id": p.ID, "tags": tags}})
	if len(tags) > 0 {
		out = append(out, stmt{cyLinkTags, map[string]any{"id": p.ID, "tags": tags}})
	}
	return out
}

// RenameCategory re-links items of old to new and removes the old node.
func (n *Neo4j) RenameCategory(ctx context.Context, oldName, newName string) error {
	if oldName == newName {
		return nil
	}
	params := map[string]any{"old": oldName, "new": newName}
	return n.write(ctx, stmt{cyMoveCategory, params}, stmt{cyDeleteCategory, params})
}

// MergeTags moves HAS_TAG edges from src to dst and removes the src node.
func (n *Neo4j) MergeTags(ctx context.Context, src, dst string) error {
	if src == dst {
		return nil
	}
	params := map[string]any{"src": src, "dst": dst}
	return n.write(ctx, stmt{cyMoveTag, params}, stmt{cyDeleteTag, params})
}

type graphRow struct {
	ID       int64
	Title    string
	Domain   string
	Category string
}

// Graph returns items with their domain and category nodes.
func (n *Neo4j) Graph(ctx context.Context, f domain.GraphFilter) (domain.Graph, error) {
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 50
	}
	session := n.c.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: n.c.Database,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cyGraph, map[string]any{
			"tag": f.Tag, "domain": f.Domain, "category": f.Category, "limit": int64(limit),
		})
		if err != nil {
			return nil, err
		}
		recs, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		rows := make([]graphRow, 0, len(recs))
		for _, rec := range recs {
			rows = append(rows, graphRow{
				ID:       recordInt(rec, "id"),
				Title:    recordString(rec, "title"),
				Domain:   recordString(rec, "domain"),
				Category: recordString(rec, "category"),
			})
		}
		return rows, nil
	})
	if err != nil {
		return domain.Graph{}, fmt.Errorf("graph query: %w", err)
	}
	return buildGraph(out.([]graphRow)), nil
}

func recordString(rec *neo4j.Record, key string) string {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func recordInt(rec *neo4j.Record, key string) int64 {
	v, ok := rec.Get(key)
	if !ok || v == nil {
		return 0
	}
	i, _ := v.(int64)
	return i
}

// buildGraph turns query rows into de-duplicated nodes and edges.
func buildGraph(rows []graphRow) domain.Graph {
	g := domain.Graph{Nodes: []domain.GraphNode{}, Edges: []domain.GraphEdge{}}
	seen := make(map[string]bool)
	add := func(n domain.GraphNode) {
		if seen[n.ID] {
			return
		}
		seen[n.ID] = true
		g.Nodes = append(g.Nodes, n)
	}
	for _, r := range rows {
		itemID := "item:" + strconv.FormatInt(r.ID, 10)
		label := r.Title
		if label == "" {
			label = "Item " + strconv.FormatInt(r.ID, 10)
		}
		add(domain.GraphNode{ID: itemID, Label: label, Group: "item"})
		if r.Domain != "" {
			add(domain.GraphNode{ID: "domain:" + r.Domain, Label: r.Domain, Group: "domain"})
			g.Edges = append(g.Edges, domain.GraphEdge{From: itemID, To: "domain:" + r.Domain, Label: "domain"})
		}
		if r.Category != "" {
			add(domain.GraphNode{ID: "cat:" + r.Category, Label: r.Category, Group: "category"})
			g.Edges = append(g.Edges, domain.GraphEdge{From: itemID, To: "cat:" + r.Category, Label: "category"})
		}
	}
	return g
}
