package main

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
)

// SourceSummary aggregates every decision recorded from one source.
type SourceSummary struct {
	Source        string           `json:"source"`
	Decisions     int64            `json:"decisions"`
	Games         int64            `json:"games"`
	Moves         map[string]int64 `json:"moves"`
	Fallbacks     int64            `json:"fallbacks"`
	MeanSurvivors float64          `json:"mean_survivors"`
	MeanElapsedUs float64          `json:"mean_elapsed_us"`
	KnownActual   int64            `json:"known_actual"`
	Agreements    int64            `json:"agreements"`
	Eliminations  map[string]int64 `json:"eliminations"`
}

// AgreementRate is the share of replayed turns where the selector matched
// the real move.
func (s SourceSummary) AgreementRate() float64 {
	if s.KnownActual == 0 {
		return 0
	}
	return float64(s.Agreements) / float64(s.KnownActual)
}

// openDuckDBWithGlobs opens an in-memory DuckDB with a decisions view over
// every finished parquet batch under roots.
func openDuckDBWithGlobs(roots []string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, err
	}
	// Basic pragmas; ignore errors for compatibility across versions.
	_, _ = db.Exec("PRAGMA threads=4")

	globs := make([]string, 0, len(roots))
	for _, root := range roots {
		root = strings.TrimSpace(root)
		if root == "" || !hasParquet(root) {
			continue
		}
		glob := filepath.Join(root, "**", "*.parquet")
		globs = append(globs, "'"+escapeSQLString(glob)+"'")
	}

	if len(globs) == 0 {
		// read_parquet fails on an empty glob.
		_, err := db.Exec(`CREATE OR REPLACE VIEW decisions AS
			SELECT * FROM (
				SELECT
					NULL::VARCHAR AS game_id,
					NULL::INTEGER AS turn,
					NULL::VARCHAR AS you_id,
					NULL::VARCHAR AS source,
					NULL::VARCHAR AS move,
					NULL::INTEGER AS safe_mask,
					NULL::INTEGER AS safe_count,
					NULL::VARCHAR[] AS eliminated_by,
					NULL::BOOLEAN AS fallback,
					NULL::VARCHAR AS actual_move,
					NULL::BIGINT AS elapsed_us,
					NULL::VARCHAR AS filename
			) WHERE 1=0`)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	// In-flight batches end in .parquet.tmp, so the glob never reads them.
	sqlText := `CREATE OR REPLACE VIEW decisions AS
		SELECT * FROM read_parquet([` + strings.Join(globs, ",") + `], filename=true, union_by_name=true)`
	if _, err := db.Exec(sqlText); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// hasParquet reports whether root holds at least one finished batch.
func hasParquet(root string) bool {
	found := false
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() && d.Name() == "tmp" && path != root {
			return filepath.SkipDir
		}
		if !d.IsDir() && strings.HasSuffix(d.Name(), ".parquet") {
			found = true
			return filepath.SkipAll
		}
		return nil
	})
	return found
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// Summarize aggregates the decisions view per source, sorted by source.
func Summarize(ctx context.Context, db *sql.DB) ([]SourceSummary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT
			source,
			COUNT(*) AS decisions,
			COUNT(DISTINCT game_id) AS games,
			SUM(CASE WHEN move = 'up' THEN 1 ELSE 0 END)::BIGINT AS up,
			SUM(CASE WHEN move = 'down' THEN 1 ELSE 0 END)::BIGINT AS down,
			SUM(CASE WHEN move = 'left' THEN 1 ELSE 0 END)::BIGINT AS "left",
			SUM(CASE WHEN move = 'right' THEN 1 ELSE 0 END)::BIGINT AS "right",
			SUM(CASE WHEN fallback THEN 1 ELSE 0 END)::BIGINT AS fallbacks,
			COALESCE(AVG(safe_count), 0) AS mean_survivors,
			COALESCE(AVG(elapsed_us), 0) AS mean_elapsed_us,
			SUM(CASE WHEN COALESCE(actual_move, '') <> '' THEN 1 ELSE 0 END)::BIGINT AS known_actual,
			SUM(CASE WHEN COALESCE(actual_move, '') <> '' AND actual_move = move THEN 1 ELSE 0 END)::BIGINT AS agreements
		FROM decisions
		GROUP BY source
		ORDER BY source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bySource := make(map[string]*SourceSummary)
	var out []*SourceSummary
	for rows.Next() {
		s := &SourceSummary{Moves: make(map[string]int64), Eliminations: make(map[string]int64)}
		var up, down, left, right int64
		if err := rows.Scan(&s.Source, &s.Decisions, &s.Games, &up, &down, &left, &right,
			&s.Fallbacks, &s.MeanSurvivors, &s.MeanElapsedUs, &s.KnownActual, &s.Agreements); err != nil {
			return nil, err
		}
		s.Moves["up"], s.Moves["down"], s.Moves["left"], s.Moves["right"] = up, down, left, right
		bySource[s.Source] = s
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	elim, err := db.QueryContext(ctx, `
		SELECT source, stage, COUNT(*)
		FROM (SELECT source, unnest(eliminated_by) AS stage FROM decisions)
		WHERE stage <> ''
		GROUP BY source, stage`)
	if err != nil {
		return nil, err
	}
	defer elim.Close()
	for elim.Next() {
		var source, stage string
		var n int64
		if err := elim.Scan(&source, &stage, &n); err != nil {
			return nil, err
		}
		if s, ok := bySource[source]; ok {
			s.Eliminations[stage] = n
		}
	}
	if err := elim.Err(); err != nil {
		return nil, err
	}

	result := make([]SourceSummary, len(out))
	for i, s := range out {
		result[i] = *s
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Source < result[j].Source })
	return result, nil
}
