package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-composite/pkg/composite"
	"github.com/tendant/simple-composite/pkg/composite/metastore"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS composite_object (
	id         INTEGER PRIMARY KEY,
	status     TEXT    NOT NULL,
	type_tag   TEXT    NOT NULL DEFAULT '',
	owner_id   TEXT    NOT NULL,
	persistent INTEGER NOT NULL DEFAULT 0,
	document   BLOB,
	created_at INTEGER NOT NULL,
	sealed_at  INTEGER
);
CREATE TABLE IF NOT EXISTS composite_reference (
	referrer_id INTEGER NOT NULL REFERENCES composite_object (id),
	target_id   INTEGER NOT NULL REFERENCES composite_object (id),
	PRIMARY KEY (referrer_id, target_id)
);
CREATE INDEX IF NOT EXISTS composite_reference_target_idx ON composite_reference (target_id);
CREATE TABLE IF NOT EXISTS composite_name (
	name      TEXT    PRIMARY KEY,
	object_id INTEGER NOT NULL REFERENCES composite_object (id)
);`

// Store implements composite.MetadataStore on a single SQLite file. The
// pool holds one connection and transactions begin IMMEDIATE, so a seal's
// check and transition cannot interleave with another write, even from a
// second process sharing the file.
type Store struct {
	db   *sql.DB
	path string
}

var _ composite.MetadataStore = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		path = "composite.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type scanner interface {
	Scan(dest ...any) error
}

const selectRow = `
	SELECT id, status, owner_id, persistent, document, created_at, sealed_at
	FROM composite_object`

func scanRow(row scanner) (*metastore.Row, error) {
	var (
		r        metastore.Row
		created  int64
		sealedAt sql.NullInt64
	)
	if err := row.Scan(&r.ID, &r.Status, &r.Owner, &r.Persistent, &r.Document, &created, &sealedAt); err != nil {
		return nil, err
	}
	r.CreatedAt = time.Unix(0, created).UTC()
	if sealedAt.Valid {
		t := time.Unix(0, sealedAt.Int64).UTC()
		r.SealedAt = &t
	}
	return &r, nil
}

func getRow(ctx context.Context, q queryer, id composite.ObjectID) (*metastore.Row, error) {
	r, err := scanRow(q.QueryRowContext(ctx, selectRow+` WHERE id = ?`, metastore.Key(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", composite.ErrObjectNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", id, err)
	}
	return r, nil
}

// in expands ids into "(?, ?, ...)" and its arguments.
func in(ids []composite.ObjectID) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = metastore.Key(id)
	}
	return "(" + strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ") + ")", args
}

func (s *Store) Reserve(ctx context.Context, id composite.ObjectID, owner uuid.UUID, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO composite_object (id, status, owner_id, created_at)
		VALUES (?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`,
		metastore.Key(id), string(composite.ObjectStatusReserved), owner.String(), at.UnixNano())
	if err != nil {
		return fmt.Errorf("reserve %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", composite.ErrIDConflict, id)
	}
	return nil
}

func (s *Store) Submit(ctx context.Context, doc *composite.Document) error {
	data, err := composite.EncodeDocument(doc)
	if err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		r, err := getRow(ctx, tx, doc.ID)
		if err != nil {
			return err
		}
		if err := composite.CanSubmit(composite.ObjectStatus(r.Status)); err != nil {
			return err
		}
		if r.Owner != doc.Owner {
			return fmt.Errorf("%w: %s", composite.ErrNotOwner, doc.ID)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE composite_object SET status = ?, type_tag = ?, document = ?, created_at = ?
			WHERE id = ?`,
			string(composite.ObjectStatusPending), doc.TypeTag, data, doc.CreatedAt.UnixNano(), metastore.Key(doc.ID))
		if err != nil {
			return fmt.Errorf("submit %s: %w", doc.ID, err)
		}
		return nil
	})
}

func (s *Store) Seal(ctx context.Context, id composite.ObjectID, at time.Time) (*composite.Document, bool, error) {
	var (
		sealed  *composite.Document
		changed bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		r, err := getRow(ctx, tx, id)
		if err != nil {
			return err
		}
		ok, err := composite.CanSeal(composite.ObjectStatus(r.Status))
		if err != nil {
			return err
		}
		doc, err := r.Decode()
		if err != nil {
			return err
		}
		if !ok {
			sealed = doc
			return nil
		}

		refs := doc.References()
		statuses, err := referenceStatuses(ctx, tx, refs)
		if err != nil {
			return err
		}
		for _, ref := range refs {
			if err := composite.CanReference(ref, statuses[ref]); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `UPDATE composite_object SET status = ?, sealed_at = ? WHERE id = ?`,
			string(composite.ObjectStatusSealed), at.UnixNano(), metastore.Key(id)); err != nil {
			return fmt.Errorf("seal %s: %w", id, err)
		}
		for _, ref := range refs {
			if _, err := tx.ExecContext(ctx, `INSERT INTO composite_reference (referrer_id, target_id) VALUES (?, ?)`,
				metastore.Key(id), metastore.Key(ref)); err != nil {
				return fmt.Errorf("seal %s: record reference: %w", id, err)
			}
		}

		sealedAt := time.Unix(0, at.UnixNano()).UTC()
		doc.Status = composite.ObjectStatusSealed
		doc.SealedAt = &sealedAt
		sealed = doc
		changed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return sealed, changed, nil
}

func referenceStatuses(ctx context.Context, q queryer, ids []composite.ObjectID) (map[composite.ObjectID]composite.ObjectStatus, error) {
	statuses := make(map[composite.ObjectID]composite.ObjectStatus, len(ids))
	if len(ids) == 0 {
		return statuses, nil
	}
	list, args := in(ids)
	rows, err := q.QueryContext(ctx, `SELECT id, status FROM composite_object WHERE id IN `+list, args...)
	if err != nil {
		return nil, fmt.Errorf("check references: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			key    int64
			status string
		)
		if err := rows.Scan(&key, &status); err != nil {
			return nil, fmt.Errorf("check references: %w", err)
		}
		statuses[metastore.FromKey(key)] = composite.ObjectStatus(status)
	}
	return statuses, rows.Err()
}

func (s *Store) Get(ctx context.Context, id composite.ObjectID) (*composite.Document, error) {
	r, err := getRow(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	return r.Decode()
}

func (s *Store) Delete(ctx context.Context, id composite.ObjectID, opts composite.DeleteOptions) ([]composite.ObjectID, error) {
	var plan []composite.ObjectID
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		plan, err = composite.PlanDelete(&txGraph{ctx: ctx, tx: tx}, id, opts)
		if err != nil || len(plan) == 0 {
			return err
		}

		list, args := in(plan)
		if _, err := tx.ExecContext(ctx, `UPDATE composite_object SET status = '`+
			string(composite.ObjectStatusDeleted)+`' WHERE id IN `+list, args...); err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM composite_reference WHERE referrer_id IN `+list, args...); err != nil {
			return fmt.Errorf("delete references: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM composite_name WHERE object_id IN `+list, args...); err != nil {
			return fmt.Errorf("delete names: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

type txGraph struct {
	ctx context.Context
	tx  *sql.Tx
}

func (g *txGraph) Lookup(id composite.ObjectID) (*composite.Document, error) {
	r, err := getRow(g.ctx, g.tx, id)
	if err != nil {
		return nil, err
	}
	return r.Decode()
}

func (g *txGraph) Referrers(id composite.ObjectID) ([]composite.ObjectID, error) {
	rows, err := g.tx.QueryContext(g.ctx, `
		SELECT r.referrer_id
		FROM composite_reference r
		JOIN composite_object o ON o.id = r.referrer_id
		WHERE r.target_id = ? AND o.status = ?
		ORDER BY r.referrer_id`,
		metastore.Key(id), string(composite.ObjectStatusSealed))
	if err != nil {
		return nil, fmt.Errorf("list referrers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var refs []composite.ObjectID
	for rows.Next() {
		var key int64
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("list referrers: %w", err)
		}
		refs = append(refs, metastore.FromKey(key))
	}
	return refs, rows.Err()
}

func (s *Store) SetPersistent(ctx context.Context, ids []composite.ObjectID) error {
	if len(ids) == 0 {
		return nil
	}
	unique := make(map[composite.ObjectID]struct{}, len(ids))
	for _, id := range ids {
		unique[id] = struct{}{}
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		list, args := in(ids)
		res, err := tx.ExecContext(ctx, `UPDATE composite_object SET persistent = 1 WHERE status = '`+
			string(composite.ObjectStatusSealed)+`' AND id IN `+list, args...)
		if err != nil {
			return fmt.Errorf("set persistent: %w", err)
		}
		if n, _ := res.RowsAffected(); n != int64(len(unique)) {
			return fmt.Errorf("%w: some objects are not sealed", composite.ErrObjectNotFound)
		}
		return nil
	})
}

func (s *Store) PutName(ctx context.Context, name string, id composite.ObjectID) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO composite_name (name, object_id)
		SELECT ?, id FROM composite_object WHERE id = ? AND status = ?
		ON CONFLICT (name) DO UPDATE SET object_id = excluded.object_id`,
		name, metastore.Key(id), string(composite.ObjectStatusSealed))
	if err != nil {
		return fmt.Errorf("put name %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s is not sealed", composite.ErrObjectNotFound, id)
	}
	return nil
}

func (s *Store) GetName(ctx context.Context, name string) (composite.ObjectID, error) {
	var key int64
	err := s.db.QueryRowContext(ctx, `SELECT object_id FROM composite_name WHERE name = ?`, name).Scan(&key)
	if errors.Is(err, sql.ErrNoRows) {
		return composite.InvalidObjectID, fmt.Errorf("%w: %q", composite.ErrNameNotFound, name)
	}
	if err != nil {
		return composite.InvalidObjectID, fmt.Errorf("get name %q: %w", name, err)
	}
	return metastore.FromKey(key), nil
}

func (s *Store) DropName(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM composite_name WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("drop name %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %q", composite.ErrNameNotFound, name)
	}
	return nil
}

func (s *Store) ListSealed(ctx context.Context, match func(string) bool, limit int) ([]*composite.Document, error) {
	rows, err := s.db.QueryContext(ctx, selectRow+` WHERE status = ? ORDER BY id`, string(composite.ObjectStatusSealed))
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*composite.Document
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("list: %w", err)
		}
		doc, err := r.Decode()
		if err != nil {
			return nil, err
		}
		if !match(doc.TypeTag) {
			continue
		}
		result = append(result, doc)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, rows.Err()
}
