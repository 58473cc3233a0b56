package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/casting-aggregator/constants"
	"github.com/joseph-ayodele/casting-aggregator/internal/entity"
)

const patternsTable = "learned_patterns"

var patternColumns = []string{"pattern", "category", "confidence", "occurrences", "last_seen", "examples"}

// PatternRepository is a best-effort store; upserts are last-writer-wins per
// (pattern, category).
type PatternRepository interface {
	GetPattern(ctx context.Context, pattern string, category constants.PatternCategory) (*entity.LearnedPattern, error)
	UpsertPattern(ctx context.Context, p entity.LearnedPattern) error
	// UpsertPatterns writes all of ps in one transaction, or none of them.
	UpsertPatterns(ctx context.Context, ps []entity.LearnedPattern) error
	TopPatterns(ctx context.Context, minConfidence float64, perCategory int) ([]entity.LearnedPattern, error)
	ListPatterns(ctx context.Context, category constants.PatternCategory, limit int) ([]entity.LearnedPattern, error)
}

type patternRepo struct {
	s   *Store
	log *slog.Logger
}

func NewPatternRepository(s *Store, log *slog.Logger) PatternRepository {
	if log == nil {
		log = s.logger
	}
	return &patternRepo{s: s, log: log}
}

func (r *patternRepo) GetPattern(ctx context.Context, pattern string, category constants.PatternCategory) (*entity.LearnedPattern, error) {
	ps, err := r.query(ctx, r.s.sql().Select(patternColumns...).
		From(r.s.sql().Table(patternsTable)).
		Where(entsql.And(entsql.EQ("pattern", pattern), entsql.EQ("category", string(category)))).
		Limit(1))
	if err != nil {
		return nil, err
	}
	if len(ps) == 0 {
		return nil, notFound("pattern", string(category)+"/"+pattern)
	}
	return &ps[0], nil
}

func (r *patternRepo) UpsertPattern(ctx context.Context, p entity.LearnedPattern) error {
	return r.upsert(ctx, r.s.db, p)
}

func (r *patternRepo) UpsertPatterns(ctx context.Context, ps []entity.LearnedPattern) error {
	if len(ps) == 0 {
		return nil
	}
	return r.s.inTx(ctx, func(tx *sql.Tx) error {
		for _, p := range ps {
			if err := r.upsert(ctx, tx, p); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *patternRepo) upsert(ctx context.Context, q querier, p entity.LearnedPattern) error {
	examples := p.Examples
	if examples == nil {
		examples = []string{}
	}
	ex, err := json.Marshal(examples)
	if err != nil {
		return fmt.Errorf("encode examples: %w", err)
	}
	_, err = execQ(ctx, q, r.s.sql().Insert(patternsTable).
		Columns(patternColumns...).
		Values(p.Pattern, string(p.Category), p.Confidence, p.Occurrences, utc(p.LastSeen), string(ex)).
		OnConflict(
			entsql.ConflictColumns("pattern", "category"),
			entsql.ResolveWith(func(u *entsql.UpdateSet) {
				u.SetExcluded("confidence")
				u.SetExcluded("occurrences")
				u.SetExcluded("last_seen")
				u.SetExcluded("examples")
			}),
		))
	if err != nil {
		return fmt.Errorf("upsert pattern %q: %w", p.Pattern, err)
	}
	return nil
}

func (r *patternRepo) TopPatterns(ctx context.Context, minConfidence float64, perCategory int) ([]entity.LearnedPattern, error) {
	var out []entity.LearnedPattern
	for _, cat := range constants.Categories() {
		sel := r.s.sql().Select(patternColumns...).
			From(r.s.sql().Table(patternsTable)).
			Where(entsql.And(entsql.EQ("category", string(cat)), entsql.GTE("confidence", minConfidence))).
			OrderBy(entsql.Desc("confidence"), "pattern")
		if perCategory > 0 {
			sel = sel.Limit(perCategory)
		}
		ps, err := r.query(ctx, sel)
		if err != nil {
			return nil, err
		}
		out = append(out, ps...)
	}
	return out, nil
}

func (r *patternRepo) ListPatterns(ctx context.Context, category constants.PatternCategory, limit int) ([]entity.LearnedPattern, error) {
	sel := r.s.sql().Select(patternColumns...).
		From(r.s.sql().Table(patternsTable)).
		OrderBy(entsql.Desc("confidence"), "pattern")
	if category != "" {
		sel = sel.Where(entsql.EQ("category", string(category)))
	}
	if limit > 0 {
		sel = sel.Limit(limit)
	}
	return r.query(ctx, sel)
}

func (r *patternRepo) query(ctx context.Context, sel *entsql.Selector) ([]entity.LearnedPattern, error) {
	rows, err := queryQ(ctx, r.s.db, sel)
	if err != nil {
		return nil, fmt.Errorf("query patterns: %w", err)
	}
	defer rows.Close()

	var out []entity.LearnedPattern
	for rows.Next() {
		var (
			p        entity.LearnedPattern
			category string
			examples string
		)
		if err := rows.Scan(&p.Pattern, &category, &p.Confidence, &p.Occurrences, &p.LastSeen, &examples); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		p.Category = constants.PatternCategory(category)
		if err := json.Unmarshal([]byte(examples), &p.Examples); err != nil {
			r.log.Warn("pattern examples undecodable", "pattern", p.Pattern, "error", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
