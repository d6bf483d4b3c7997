package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/epam/rule-engine/internal/domain/tenant"
)

// CustomerStore is a sqlx-backed storage.CustomerStore.
type CustomerStore struct{ db *sqlx.DB }

func NewCustomerStore(db *sqlx.DB) *CustomerStore { return &CustomerStore{db: db} }

type customerRow struct {
	Name     string `db:"name"`
	Contacts []byte `db:"contacts"`
}

func (s *CustomerStore) Create(ctx context.Context, c tenant.Customer) error {
	contacts, err := json.Marshal(c.Contacts)
	if err != nil {
		return fmt.Errorf("postgres: encode customer: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO customers (name, contacts) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET contacts = EXCLUDED.contacts
	`, c.Name, contacts)
	if err != nil {
		return fmt.Errorf("postgres: create customer: %w", err)
	}
	return nil
}

func (s *CustomerStore) Get(ctx context.Context, name string) (tenant.Customer, bool, error) {
	var row customerRow
	err := s.db.GetContext(ctx, &row, `SELECT name, contacts FROM customers WHERE name = $1`, name)
	if err == sql.ErrNoRows {
		return tenant.Customer{}, false, nil
	}
	if err != nil {
		return tenant.Customer{}, false, fmt.Errorf("postgres: get customer: %w", err)
	}
	var contacts []string
	if len(row.Contacts) > 0 {
		if err := json.Unmarshal(row.Contacts, &contacts); err != nil {
			return tenant.Customer{}, false, err
		}
	}
	return tenant.Customer{Name: row.Name, Contacts: contacts}, true, nil
}

func (s *CustomerStore) List(ctx context.Context, limit int) ([]tenant.Customer, error) {
	limit = clampListLimit(limit)
	var rows []customerRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT name, contacts FROM customers ORDER BY name LIMIT $1`, limit); err != nil {
		return nil, fmt.Errorf("postgres: list customers: %w", err)
	}
	out := make([]tenant.Customer, 0, len(rows))
	for _, r := range rows {
		var contacts []string
		if len(r.Contacts) > 0 {
			if err := json.Unmarshal(r.Contacts, &contacts); err != nil {
				return nil, err
			}
		}
		out = append(out, tenant.Customer{Name: r.Name, Contacts: contacts})
	}
	return out, nil
}
