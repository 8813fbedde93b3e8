package graph

import (
	"context"
	"fmt"
	"sort"

	"github.com/knotworks/strata/internal/util"
	"github.com/knotworks/strata/pkg/ai"
	"github.com/knotworks/strata/pkg/logger"
	"github.com/knotworks/strata/pkg/store"
	"github.com/knotworks/strata/pkg/tokenize"

	"golang.org/x/sync/errgroup"
)

type communityRow struct {
	id     int
	cells  []string
	budget string // the field counted against the token budget
	rank   int
	name   string
	pair   [2]string
}

// GenerateCommunityReports builds one report per community, level by level
// from most granular to least. Levels run sequentially because a coarser
// community's packing may fall back on its children's finished reports;
// within a level all communities are one joined concurrent batch.
func (c *Client) GenerateCommunityReports(ctx context.Context) error {
	schema, err := c.graph.CommunitySchema(ctx)
	if err != nil {
		return fmt.Errorf("failed to load community schema: %w", err)
	}
	if len(schema) == 0 {
		logger.Warn("[Report] No communities found, skipping reports")
		return nil
	}

	levelSet := make(map[int]struct{})
	for _, community := range schema {
		levelSet[community.Level] = struct{}{}
	}
	levels := make([]int, 0, len(levelSet))
	for level := range levelSet {
		levels = append(levels, level)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(levels)))
	logger.Info("[Report] Generating by levels", "levels", levels)

	finished := make(map[string]store.CommunityReport)
	for _, level := range levels {
		keys := make([]string, 0)
		for key, community := range schema {
			if community.Level == level {
				keys = append(keys, key)
			}
		}
		sort.Strings(keys)

		reports := make([]store.CommunityReport, len(keys))
		eg, gCtx := errgroup.WithContext(ctx)
		for i, key := range keys {
			idx, k := i, key
			eg.Go(func() error {
				report, err := c.buildCommunityReport(gCtx, schema[k], finished)
				if err != nil {
					return fmt.Errorf("community %s: %w", k, err)
				}
				reports[idx] = report
				return nil
			})
		}
		if err := eg.Wait(); err != nil {
			return fmt.Errorf("failed to generate level %d reports: %w", level, err)
		}

		for i, key := range keys {
			finished[key] = reports[i]
		}
		c.reportProgress(Progress{Stage: "reports", Done: len(finished), Total: len(schema)})
	}

	return c.reports.Upsert(ctx, finished)
}

func (c *Client) buildCommunityReport(
	ctx context.Context,
	community *store.CommunitySchema,
	finished map[string]store.CommunityReport,
) (store.CommunityReport, error) {
	describe, err := c.packCommunityDescribe(ctx, community, c.reportMaxTokens, finished)
	if err != nil {
		return store.CommunityReport{}, err
	}

	prompt := fmt.Sprintf(ai.CommunityReportPrompt, describe)
	var data store.ReportJSON
	err = util.RetryErrWithContext(ctx, modelCallRetries, func(ctx context.Context) error {
		return c.model.GenerateCompletionWithFormat(ctx,
			"community_report",
			"Structured report describing one community of the knowledge graph",
			prompt,
			&data,
			ai.WithModel(c.capableModel),
		)
	})
	if err != nil {
		return store.CommunityReport{}, fmt.Errorf("failed to generate report: %w", err)
	}

	title := data.Title
	if title == "" {
		title = "Report"
	}
	return store.CommunityReport{
		CommunitySchema: *community,
		ReportString:    "# " + title + "\n\n" + data.Summary,
		ReportJSON:      data,
	}, nil
}

// packCommunityDescribe renders a community's member tables as fenced CSV
// sections within the token budget. Nodes and edges are ranked by degree
// and each table greedily keeps the longest prefix fitting half the budget.
// When either table truncates and sub-community reports exist (or the
// fallback is forced), a Reports section replaces part of the budget and
// rows already covered by those reports are deprioritized.
func (c *Client) packCommunityDescribe(
	ctx context.Context,
	community *store.CommunitySchema,
	maxTokens int,
	finished map[string]store.CommunityReport,
) (string, error) {
	nodeRows, err := c.communityNodeRows(ctx, community)
	if err != nil {
		return "", err
	}
	edgeRows, err := c.communityEdgeRows(ctx, community)
	if err != nil {
		return "", err
	}

	truncateRows := func(rows []communityRow, budget int) []communityRow {
		return tokenize.TruncateByTokenBudget(rows, func(r communityRow) string {
			return r.budget
		}, budget, c.enc)
	}
	useNodes := truncateRows(nodeRows, maxTokens/2)
	useEdges := truncateRows(edgeRows, maxTokens/2)
	truncated := len(useNodes) < len(nodeRows) || len(useEdges) < len(edgeRows)

	reportDescribe := ""
	needFallback := truncated && len(community.SubCommunities) > 0 && len(finished) > 0
	if needFallback || c.forceSubCommunities {
		logger.Debug("[Report] Using sub-community reports", "community", community.Title)
		var (
			reportSize   int
			coveredNodes map[string]struct{}
			coveredEdges map[[2]string]struct{}
		)
		reportDescribe, reportSize, coveredNodes, coveredEdges = c.packBySubCommunities(community, maxTokens, finished)

		remaining := (maxTokens - reportSize) / 2
		useNodes = truncateRows(partitionCovered(nodeRows, func(r communityRow) bool {
			_, ok := coveredNodes[r.name]
			return ok
		}), remaining)
		useEdges = truncateRows(partitionCovered(edgeRows, func(r communityRow) bool {
			_, ok := coveredEdges[r.pair]
			return ok
		}), remaining)
	}

	nodeCSV := [][]string{{"id", "entity", "type", "description", "degree"}}
	for _, r := range useNodes {
		nodeCSV = append(nodeCSV, r.cells)
	}
	edgeCSV := [][]string{{"id", "source", "target", "description", "rank"}}
	for _, r := range useEdges {
		edgeCSV = append(edgeCSV, r.cells)
	}

	return csvSection("Reports", reportDescribe) + "\n" +
		csvSection("Entities", listToCSV(nodeCSV)) + "\n" +
		csvSection("Relationships", listToCSV(edgeCSV)), nil
}

// partitionCovered reorders rows so uncovered rows come first; relative
// order within each group is preserved.
func partitionCovered(rows []communityRow, covered func(communityRow) bool) []communityRow {
	out := make([]communityRow, 0, len(rows))
	tail := make([]communityRow, 0)
	for _, r := range rows {
		if covered(r) {
			tail = append(tail, r)
		} else {
			out = append(out, r)
		}
	}
	return append(out, tail...)
}

func (c *Client) communityNodeRows(ctx context.Context, community *store.CommunitySchema) ([]communityRow, error) {
	names := append([]string(nil), community.Nodes...)
	sort.Strings(names)

	rows := make([]communityRow, 0, len(names))
	for i, name := range names {
		data, err := c.graph.GetNode(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read node %s: %w", name, err)
		}
		degree, err := c.graph.NodeDegree(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to read degree of %s: %w", name, err)
		}
		entityType, description := "UNKNOWN", "UNKNOWN"
		if data != nil {
			entityType, description = data.EntityType, data.Description
		}
		rows = append(rows, communityRow{
			id:     i,
			cells:  []string{formatInt(i), name, entityType, description, formatInt(degree)},
			budget: description,
			rank:   degree,
			name:   name,
		})
	}
	sortRowsByRank(rows)
	return rows, nil
}

func (c *Client) communityEdgeRows(ctx context.Context, community *store.CommunitySchema) ([]communityRow, error) {
	edges := append([][2]string(nil), community.Edges...)
	sort.Slice(edges, func(i, j int) bool {
		return edges[i][0]+edges[i][1] < edges[j][0]+edges[j][1]
	})

	rows := make([]communityRow, 0, len(edges))
	for i, edge := range edges {
		data, err := c.graph.GetEdge(ctx, edge[0], edge[1])
		if err != nil {
			return nil, fmt.Errorf("failed to read edge %s-%s: %w", edge[0], edge[1], err)
		}
		degree, err := c.graph.EdgeDegree(ctx, edge[0], edge[1])
		if err != nil {
			return nil, fmt.Errorf("failed to read edge degree: %w", err)
		}
		description := "UNKNOWN"
		if data != nil {
			description = data.Description
		}
		rows = append(rows, communityRow{
			id:     i,
			cells:  []string{formatInt(i), edge[0], edge[1], description, formatInt(degree)},
			budget: description,
			rank:   degree,
			pair:   edge,
		})
	}
	sortRowsByRank(rows)
	return rows, nil
}

// sortRowsByRank orders by degree, descending. The sort is stable so rows
// with equal degree keep their id order.
func sortRowsByRank(rows []communityRow) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].rank > rows[j].rank
	})
}

// packBySubCommunities renders the sub-community reports table, occurrence
// descending, truncated to the budget. It also returns the node and edge
// sets those reports already cover.
func (c *Client) packBySubCommunities(
	community *store.CommunitySchema,
	maxTokens int,
	finished map[string]store.CommunityReport,
) (string, int, map[string]struct{}, map[[2]string]struct{}) {
	subs := make([]store.CommunityReport, 0, len(community.SubCommunities))
	for _, key := range community.SubCommunities {
		if report, ok := finished[key]; ok {
			subs = append(subs, report)
		}
	}
	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].Occurrence > subs[j].Occurrence
	})
	use := tokenize.TruncateByTokenBudget(subs, func(r store.CommunityReport) string {
		return r.ReportString
	}, maxTokens, c.enc)

	rows := [][]string{{"id", "report", "rating", "importance"}}
	coveredNodes := make(map[string]struct{})
	coveredEdges := make(map[[2]string]struct{})
	for i, report := range use {
		rows = append(rows, []string{
			formatInt(i),
			report.ReportString,
			formatFloat(report.ReportJSON.Rating),
			formatFloat(report.Occurrence),
		})
		for _, n := range report.Nodes {
			coveredNodes[n] = struct{}{}
		}
		for _, e := range report.Edges {
			coveredEdges[edgeKey(e[0], e[1])] = struct{}{}
		}
	}

	describe := listToCSV(rows)
	return describe, c.enc.Count(describe), coveredNodes, coveredEdges
}
