package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

type NotebookRepo struct {
	db *sql.DB
}

func NewNotebookRepo(db *sql.DB) *NotebookRepo {
	return &NotebookRepo{db: db}
}

func (r *NotebookRepo) Create(ctx context.Context, nb *Notebook) error {
	if nb.ID == "" {
		nb.ID = NewID()
	}
	if nb.CreatedAt.IsZero() {
		nb.CreatedAt = nowUTC()
	}
	nb.UpdatedAt = nb.CreatedAt

	_, err := r.db.ExecContext(ctx, `
INSERT INTO notebooks (id, name, content, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
`, nb.ID, nb.Name, nb.Content, formatTimestamp(nb.CreatedAt), formatTimestamp(nb.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to create notebook: %w", err)
	}
	return nil
}

func (r *NotebookRepo) Get(ctx context.Context, id string) (*Notebook, error) {
	var nb Notebook
	var createdAtRaw, updatedAtRaw string

	err := r.db.QueryRowContext(ctx, `
SELECT id, name, content, created_at, updated_at
FROM notebooks
WHERE id = ?
`, id).Scan(&nb.ID, &nb.Name, &nb.Content, &createdAtRaw, &updatedAtRaw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("notebook %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get notebook %q: %w", id, err)
	}

	if nb.CreatedAt, err = parseTimestamp(createdAtRaw); err != nil {
		return nil, err
	}
	if nb.UpdatedAt, err = parseTimestamp(updatedAtRaw); err != nil {
		return nil, err
	}
	return &nb, nil
}

// List returns all notebooks without their content, newest first.
func (r *NotebookRepo) List(ctx context.Context) ([]*Notebook, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, created_at, updated_at
FROM notebooks
ORDER BY updated_at DESC, id
`)
	if err != nil {
		return nil, fmt.Errorf("failed to list notebooks: %w", err)
	}
	defer rows.Close()

	notebooks := []*Notebook{}
	for rows.Next() {
		var nb Notebook
		var createdAtRaw, updatedAtRaw string
		if err := rows.Scan(&nb.ID, &nb.Name, &createdAtRaw, &updatedAtRaw); err != nil {
			return nil, fmt.Errorf("failed to scan notebook row: %w", err)
		}
		if nb.CreatedAt, err = parseTimestamp(createdAtRaw); err != nil {
			return nil, err
		}
		if nb.UpdatedAt, err = parseTimestamp(updatedAtRaw); err != nil {
			return nil, err
		}
		notebooks = append(notebooks, &nb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notebooks: %w", err)
	}
	return notebooks, nil
}

// UpdateContent writes new document JSON and bumps updated_at. This is the
// save path; the name stays as it was.
func (r *NotebookRepo) UpdateContent(ctx context.Context, id, content string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE notebooks SET content = ?, updated_at = ? WHERE id = ?
`, content, formatTimestamp(nowUTC()), id)
	if err != nil {
		return fmt.Errorf("failed to update notebook %q: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update of notebook %q: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("notebook %q: %w", id, ErrNotFound)
	}
	return nil
}

func (r *NotebookRepo) Rename(ctx context.Context, id, name string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE notebooks SET name = ?, updated_at = ? WHERE id = ?
`, name, formatTimestamp(nowUTC()), id)
	if err != nil {
		return fmt.Errorf("failed to rename notebook %q: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rename of notebook %q: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("notebook %q: %w", id, ErrNotFound)
	}
	return nil
}

func (r *NotebookRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM notebooks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete notebook %q: %w", id, err)
	}
	return nil
}
