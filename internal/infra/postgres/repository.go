package postgres

import (
	"context"
	"fmt"

	"github.com/fiapx/fiapx-dataset-service/internal/domain/entity"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RunRepository struct {
	pool *pgxpool.Pool
}

func NewRunRepository(pool *pgxpool.Pool) *RunRepository {
	return &RunRepository{pool: pool}
}

func (r *RunRepository) Create(ctx context.Context, run *entity.Run) error {
	query := `
		INSERT INTO dataset_runs (
			id, kind, reference, directory, status, frame_count, pair_count,
			archive_key, attempt, max_attempts, failed_stage,
			error_message, created_at, updated_at, completed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`

	_, err := r.pool.Exec(ctx, query,
		run.ID, string(run.Kind), run.Reference, run.Directory, string(run.Status),
		run.FrameCount, run.PairCount, run.ArchiveKey,
		run.Attempt, run.MaxAttempts, run.FailedStage, run.ErrorMessage,
		run.CreatedAt, run.UpdatedAt, run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (r *RunRepository) Update(ctx context.Context, run *entity.Run) error {
	query := `
		UPDATE dataset_runs SET
			status=$2, frame_count=$3, pair_count=$4, archive_key=$5,
			attempt=$6, failed_stage=$7, error_message=$8,
			updated_at=$9, completed_at=$10, directory=$11
		WHERE id=$1`

	_, err := r.pool.Exec(ctx, query,
		run.ID, string(run.Status), run.FrameCount, run.PairCount,
		run.ArchiveKey, run.Attempt, run.FailedStage, run.ErrorMessage,
		run.UpdatedAt, run.CompletedAt, run.Directory,
	)
	if err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

func (r *RunRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Run, error) {
	query := `
		SELECT id, kind, reference, directory, status, frame_count, pair_count,
			archive_key, attempt, max_attempts, failed_stage,
			error_message, created_at, updated_at, completed_at
		FROM dataset_runs WHERE id=$1`

	run := &entity.Run{}
	var kind, status string
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&run.ID, &kind, &run.Reference, &run.Directory, &status,
		&run.FrameCount, &run.PairCount, &run.ArchiveKey,
		&run.Attempt, &run.MaxAttempts, &run.FailedStage,
		&run.ErrorMessage, &run.CreatedAt, &run.UpdatedAt, &run.CompletedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("find run by id: %w", err)
	}
	run.Kind = entity.RunKind(kind)
	run.Status = entity.RunStatus(status)
	return run, nil
}
