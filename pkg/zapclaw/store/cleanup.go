package store

import (
	"github.com/jholhewres/zapclaw/pkg/zapclaw/sanitize"
)

// CleanupCorrupted deletes every stored turn matching the destructive
// corruption policy (sanitize.Corrupted). It scans row by row inside one
// transaction so a partial pass never commits, and returns how many rows
// were removed. Meant to run offline or on a maintenance schedule, never on
// the message path.
func (s *Store) CleanupCorrupted() (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, storageErr("cleanup begin", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`SELECT id, content FROM conversations`)
	if err != nil {
		return 0, storageErr("cleanup scan", err)
	}

	var condemned []int64
	for rows.Next() {
		var id int64
		var content string
		if err := rows.Scan(&id, &content); err != nil {
			rows.Close()
			return 0, storageErr("cleanup scan row", err)
		}
		if sanitize.Corrupted(content) {
			condemned = append(condemned, id)
		}
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, storageErr("cleanup rows", err)
	}
	rows.Close()

	var removed int64
	for _, id := range condemned {
		res, err := tx.Exec(`DELETE FROM conversations WHERE id = ?`, id)
		if err != nil {
			return 0, storageErr("cleanup delete", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			removed += n
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, storageErr("cleanup commit", err)
	}
	if removed > 0 {
		s.logger.Info("corrupted rows removed", "count", removed)
	}
	return removed, nil
}
