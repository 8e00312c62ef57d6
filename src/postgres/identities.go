package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Store) PutIdentity(ctx context.Context, handle, wallet string) error {
	return s.DoQuery(ctx, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, `INSERT INTO chai_identities(discord_handle, wallet_address)
			VALUES ($1, $2)
			ON CONFLICT (discord_handle) DO UPDATE SET wallet_address = $2, updated = now()`,
			handle, wallet)
		return errors.Wrapf(err, "failed to record wallet for %s", handle)
	})
}

func (s *Store) WalletAddresses(ctx context.Context) (map[string]string, error) {
	var wallets map[string]string
	return wallets, s.DoQuery(ctx, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT discord_handle, wallet_address FROM chai_identities`)
		if err != nil {
			return errors.Wrap(err, "failed to fetch identities from database")
		}
		defer rows.Close()
		wallets = map[string]string{}
		for rows.Next() {
			var handle, wallet string
			if err := rows.Scan(&handle, &wallet); err != nil {
				return errors.Wrap(err, "failed unmarshalling identity row")
			}
			wallets[handle] = wallet
		}
		return rows.Err()
	})
}
