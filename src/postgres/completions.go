package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/onemorebsmith/chai-counter/src/counter"
	"github.com/onemorebsmith/chai-counter/src/model"
	"github.com/pkg/errors"
)

func (s *Store) PutCompletion(ctx context.Context, rec *model.CompletionRecord) error {
	return s.DoQuery(ctx, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, `INSERT INTO project_completions(id, discord_handle, wallet_address, chai_done, created)
			VALUES ($1, $2, $3, $4, $5)`,
			rec.RecordID, rec.Recipient, rec.Wallet, string(rec.Flag), rec.CreatedAt.UTC())
		return errors.Wrapf(err, "failed to record completion %s", rec.RecordID)
	})
}

// Completions lists the records still waiting for a reward.
func (s *Store) Completions(ctx context.Context) ([]*model.CompletionRecord, error) {
	var fetched []*model.CompletionRecord
	return fetched, s.DoQuery(ctx, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx,
			`SELECT id, discord_handle, wallet_address, chai_done, created
			 FROM project_completions pc WHERE pc.chai_done = $1
			 ORDER BY created`, string(model.CompletionFlagNotDone))
		if err != nil {
			return errors.Wrap(err, "failed to fetch completions from database")
		}
		defer rows.Close()
		for rows.Next() {
			var id, handle, wallet, flag string
			var created time.Time
			if err := rows.Scan(&id, &handle, &wallet, &flag, &created); err != nil {
				return errors.Wrap(err, "failed unmarshalling completion row")
			}
			fetched = append(fetched, &model.CompletionRecord{
				RecordID:  id,
				Recipient: handle,
				Wallet:    wallet,
				Flag:      model.ParseCompletionFlag(flag),
				CreatedAt: created.UTC(),
			})
		}
		return rows.Err()
	})
}

// MarkCompleted only flips pending rows, so a record consumed by someone else
// surfaces as an error instead of a silent second grant.
func (s *Store) MarkCompleted(ctx context.Context, recordID string) error {
	return s.DoQuery(ctx, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx, `UPDATE project_completions SET chai_done = $1
			WHERE id = $2 AND chai_done = $3`,
			string(model.CompletionFlagDone), recordID, string(model.CompletionFlagNotDone))
		if err != nil {
			return errors.Wrapf(err, "failed to update completion %s", recordID)
		}
		if tag.RowsAffected() == 0 {
			return errors.Wrapf(counter.ErrAlreadyCompleted, "completion %s", recordID)
		}
		return nil
	})
}
