package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/odvcencio/leadsplit/pkg/ingest"
)

// Uploader identifies the operator who submitted a file.
type Uploader struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// AssignedShare is one agent's slice of a saved distribution.
type AssignedShare struct {
	AgentID   string          `json:"agentId"`
	AgentName string          `json:"agentName"`
	Records   []ingest.Record `json:"records"`
}

// Distribution is a persisted distribution run.
type Distribution struct {
	ID           string          `json:"id"`
	FileName     string          `json:"fileName"`
	TotalRecords int             `json:"totalRecords"`
	PlanDigest   string          `json:"planDigest"`
	UploadedBy   Uploader        `json:"uploadedBy"`
	Shares       []AssignedShare `json:"distributedData"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// SaveDistribution stores a distribution with all its shares and records in
// one transaction. ID and timestamps are assigned when empty.
func (s *Store) SaveDistribution(ctx context.Context, d *Distribution) error {
	if s == nil || s.db == nil {
		return ErrStoreClosed
	}
	if d == nil {
		return fmt.Errorf("save distribution: nil distribution")
	}
	if d.ID == "" {
		d.ID = newID()
	}
	now := s.now()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO distributions (id, file_name, total_records, plan_digest, uploaded_by, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, d.ID, d.FileName, d.TotalRecords, d.PlanDigest, d.UploadedBy.ID, d.CreatedAt, d.UpdatedAt); err != nil {
			return fmt.Errorf("insert distribution: %w", err)
		}

		shareStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO distribution_shares (distribution_id, position, agent_id, agent_name)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare share insert: %w", err)
		}
		defer shareStmt.Close()

		recordStmt, err := tx.PrepareContext(ctx, `
			INSERT INTO share_records (distribution_id, share_position, position, first_name, phone, notes)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("prepare record insert: %w", err)
		}
		defer recordStmt.Close()

		for i, share := range d.Shares {
			if _, err := shareStmt.ExecContext(ctx, d.ID, i, share.AgentID, share.AgentName); err != nil {
				return fmt.Errorf("insert share %d: %w", i, err)
			}
			for j, rec := range share.Records {
				if _, err := recordStmt.ExecContext(ctx, d.ID, i, j, rec.FirstName, rec.Phone, rec.Notes); err != nil {
					return fmt.Errorf("insert record %d of share %d: %w", j, i, err)
				}
			}
		}
		return nil
	})
}

const distributionQuery = `
	SELECT d.id, d.file_name, d.total_records, d.plan_digest, d.uploaded_by,
		COALESCE(u.email, ''), d.created_at, d.updated_at
	FROM distributions d
	LEFT JOIN users u ON u.id = d.uploaded_by
`

// ListDistributions returns every distribution, newest first, with shares.
func (s *Store) ListDistributions(ctx context.Context) ([]Distribution, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}
	rows, err := s.db.QueryContext(ctx, distributionQuery+` ORDER BY d.created_at DESC, d.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query distributions: %w", err)
	}

	list := []Distribution{}
	for rows.Next() {
		d, err := scanDistribution(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan distribution: %w", err)
		}
		list = append(list, *d)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	shares, err := s.loadShares(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Shares = shares[list[i].ID]
		if list[i].Shares == nil {
			list[i].Shares = []AssignedShare{}
		}
	}
	return list, nil
}

// GetDistribution loads one distribution with its shares.
func (s *Store) GetDistribution(ctx context.Context, id string) (*Distribution, error) {
	if s == nil || s.db == nil {
		return nil, ErrStoreClosed
	}
	row := s.db.QueryRowContext(ctx, distributionQuery+` WHERE d.id = ?`, strings.TrimSpace(id))
	d, err := scanDistribution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load distribution: %w", err)
	}
	shares, err := s.loadShares(ctx, d.ID)
	if err != nil {
		return nil, err
	}
	d.Shares = shares[d.ID]
	if d.Shares == nil {
		d.Shares = []AssignedShare{}
	}
	return d, nil
}

// loadShares reads the shares of one distribution, or of every distribution
// when distributionID is empty, keyed by distribution id.
func (s *Store) loadShares(ctx context.Context, distributionID string) (map[string][]AssignedShare, error) {
	query := `
		SELECT sh.distribution_id, sh.position, sh.agent_id, sh.agent_name,
			r.first_name, r.phone, r.notes
		FROM distribution_shares sh
		LEFT JOIN share_records r
			ON r.distribution_id = sh.distribution_id AND r.share_position = sh.position`
	var args []any
	if distributionID != "" {
		query += ` WHERE sh.distribution_id = ?`
		args = append(args, distributionID)
	}
	query += ` ORDER BY sh.distribution_id, sh.position, r.position`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query shares: %w", err)
	}
	defer rows.Close()

	byDistribution := map[string][]AssignedShare{}
	lastID, lastPosition := "", -1
	for rows.Next() {
		var (
			id                      string
			position                int
			agentID, agentName      string
			firstName, phone, notes sql.NullString
		)
		if err := rows.Scan(&id, &position, &agentID, &agentName, &firstName, &phone, &notes); err != nil {
			return nil, fmt.Errorf("scan share: %w", err)
		}
		if id != lastID || position != lastPosition {
			byDistribution[id] = append(byDistribution[id], AssignedShare{AgentID: agentID, AgentName: agentName, Records: []ingest.Record{}})
			lastID, lastPosition = id, position
		}
		// Empty shares come back as a single row with NULL record columns.
		if firstName.Valid {
			shares := byDistribution[id]
			cur := &shares[len(shares)-1]
			cur.Records = append(cur.Records, ingest.Record{
				FirstName: firstName.String,
				Phone:     phone.String,
				Notes:     notes.String,
			})
		}
	}
	return byDistribution, rows.Err()
}

func scanDistribution(row rowScanner) (*Distribution, error) {
	var d Distribution
	if err := row.Scan(&d.ID, &d.FileName, &d.TotalRecords, &d.PlanDigest, &d.UploadedBy.ID,
		&d.UploadedBy.Email, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}
