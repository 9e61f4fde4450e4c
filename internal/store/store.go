// Package store persists jobs and fit scores in Postgres with upsert
// semantics. Implements funnel.JobStore.
package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/anatolykoptev/go_scout/internal/funnel"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// DB holds the pgx connection pool for job storage.
type DB struct {
	pool *pgxpool.Pool
}

// Connect creates a pgx pool and applies the embedded schema.
func Connect(ctx context.Context, databaseURL string) (*DB, error) {
	if databaseURL == "" {
		return nil, errors.New("database URL is required")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	db := &DB{pool: pool}
	if err := db.applySchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	slog.Info("job postgres connected", slog.String("host", config.ConnConfig.Host))
	return db, nil
}

// Close releases the pool.
func (db *DB) Close() {
	db.pool.Close()
}

func (db *DB) applySchema(ctx context.Context) error {
	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("read schema dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := schemaFS.ReadFile("schema/" + entry.Name())
		if err != nil {
			return err
		}
		if _, err := db.pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("apply %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// UpsertJob writes one posting and its skill relations atomically. Match
// order: external_url first, then (title, company_name). Safe to call
// repeatedly with the same logical job.
func (db *DB) UpsertJob(ctx context.Context, job funnel.JobPosting) (int64, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	jobID, err := upsertJobRow(ctx, tx, job)
	if err != nil {
		return 0, err
	}
	if err := relateSkills(ctx, tx, jobID, job.Skills); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return jobID, nil
}

func upsertJobRow(ctx context.Context, tx pgx.Tx, job funnel.JobPosting) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `SELECT id FROM jobs WHERE external_url = $1`, job.SourceURL).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) && job.Company != "" {
		err = tx.QueryRow(ctx, `SELECT id FROM jobs WHERE title = $1 AND company_name = $2`, job.Title, job.Company).Scan(&id)
	}
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("lookup job: %w", err)
	}

	resp := jsonOrNil(job.Responsibilities)
	reqs := jsonOrNil(job.Requirements)
	nice := jsonOrNil(job.NiceToHave)

	if err == nil {
		_, err = tx.Exec(ctx, `
			UPDATE jobs SET
				external_url = $1, apply_url = $2, title = $3, company_name = $4,
				location = $5, team = $6, compensation = $7, remote = $8,
				employment_type = $9, seniority = $10, description = $11,
				page_kind = $12, responsibilities = $13, requirements = $14,
				nice_to_have = $15, updated_at = now()
			WHERE id = $16`,
			job.SourceURL, job.ApplyURL, job.Title, job.Company,
			job.Location, job.Team, job.Compensation, string(job.Remote),
			string(job.EmploymentType), string(job.Seniority), job.Description,
			string(job.PageKind), resp, reqs, nice, id)
		if err != nil {
			return 0, fmt.Errorf("update job: %w", err)
		}
		return id, nil
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO jobs (
			external_url, apply_url, title, company_name, location, team,
			compensation, remote, employment_type, seniority, description,
			page_kind, responsibilities, requirements, nice_to_have
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING id`,
		job.SourceURL, job.ApplyURL, job.Title, job.Company, job.Location, job.Team,
		job.Compensation, string(job.Remote), string(job.EmploymentType),
		string(job.Seniority), job.Description, string(job.PageKind),
		resp, reqs, nice).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert job: %w", err)
	}
	return id, nil
}

func relateSkills(ctx context.Context, tx pgx.Tx, jobID int64, skills []string) error {
	if _, err := tx.Exec(ctx, `DELETE FROM job_skills WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("clear skills: %w", err)
	}
	for _, raw := range skills {
		name := strings.ToLower(strings.TrimSpace(raw))
		if name == "" {
			continue
		}
		var skillID int64
		err := tx.QueryRow(ctx, `
			INSERT INTO skills (name) VALUES ($1)
			ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
			RETURNING id`, name).Scan(&skillID)
		if err != nil {
			return fmt.Errorf("upsert skill %q: %w", name, err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO job_skills (job_id, skill_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, jobID, skillID); err != nil {
			return fmt.Errorf("relate skill %q: %w", name, err)
		}
	}
	return nil
}

// UpsertFitScore writes one profile's fit verdict for one job, unique on
// (profile_id, job_id). History is not retained.
func (db *DB) UpsertFitScore(ctx context.Context, profileID string, jobID int64, score int, rationale funnel.Rationale) error {
	matched := jsonOrNil(rationale.Match)
	missing := jsonOrNil(rationale.Missing)
	_, err := db.pool.Exec(ctx, `
		INSERT INTO fit_scores (profile_id, job_id, score, matched, missing, reason)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (profile_id, job_id) DO UPDATE SET
			score = EXCLUDED.score,
			matched = EXCLUDED.matched,
			missing = EXCLUDED.missing,
			reason = EXCLUDED.reason,
			updated_at = now()`,
		profileID, jobID, score, matched, missing, rationale.Reason)
	if err != nil {
		return fmt.Errorf("upsert fit score: %w", err)
	}
	return nil
}

// TopFits returns a profile's best fit scores joined with job rows.
func (db *DB) TopFits(ctx context.Context, profileID string, limit int) ([]funnel.RankedJob, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := db.pool.Query(ctx, `
		SELECT j.title, j.company_name, j.location, j.external_url, j.apply_url,
		       f.score, f.matched, f.missing, f.reason
		FROM fit_scores f
		JOIN jobs j ON j.id = f.job_id
		WHERE f.profile_id = $1
		ORDER BY f.score DESC, f.updated_at DESC
		LIMIT $2`, profileID, limit)
	if err != nil {
		return nil, fmt.Errorf("query fits: %w", err)
	}
	defer rows.Close()

	var out []funnel.RankedJob
	for rows.Next() {
		var r funnel.RankedJob
		var matched, missing []byte
		var reason *string
		if err := rows.Scan(&r.Job.Title, &r.Job.Company, &r.Job.Location,
			&r.Job.SourceURL, &r.Job.ApplyURL, &r.FitScore, &matched, &missing, &reason); err != nil {
			return nil, fmt.Errorf("scan fit: %w", err)
		}
		if matched != nil {
			_ = json.Unmarshal(matched, &r.Rationale.Match)
		}
		if missing != nil {
			_ = json.Unmarshal(missing, &r.Rationale.Missing)
		}
		if reason != nil {
			r.Rationale.Reason = *reason
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func jsonOrNil(items []string) []byte {
	if len(items) == 0 {
		return nil
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil
	}
	return data
}
