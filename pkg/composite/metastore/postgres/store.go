package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-composite/pkg/composite"
	"github.com/tendant/simple-composite/pkg/composite/metastore"
)

// Schema creates the tables the store needs. It is idempotent.
//
//go:embed schema.sql
var Schema string

// DBTX is an interface that allows us to use either a connection pool or a
// transaction. Begin on a transaction opens a savepoint.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
}

// Store implements composite.MetadataStore using PostgreSQL. Seal and
// Delete each run in one transaction holding row locks on every object they
// read.
type Store struct {
	db DBTX
}

var _ composite.MetadataStore = (*Store)(nil)

// New creates a new PostgreSQL metadata store
func New(db DBTX) *Store {
	return &Store{db: db}
}

// NewWithPool creates a new PostgreSQL metadata store with connection pool
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

// Migrate applies Schema.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return handlePostgresError("migrate", err)
	}
	return nil
}

// Error handling helper
func handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			if strings.Contains(pgErr.ConstraintName, "composite_object") {
				return fmt.Errorf("%w: %s", composite.ErrIDConflict, pgErr.Detail)
			}
			return fmt.Errorf("duplicate entry in %s", operation)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%w: referenced record not found", composite.ErrObjectNotFound)
		case "23502": // not_null_violation
			return fmt.Errorf("required field %s is missing", pgErr.ColumnName)
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("transaction aborted in %s, retry the request: %s", operation, pgErr.Message)
		case "42P01": // undefined_table
			return fmt.Errorf("table does not exist - database migration required")
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

const selectRow = `
	SELECT id, status, owner_id, persistent, document, created_at, sealed_at
	FROM composite_object`

func scanRow(row pgx.Row) (*metastore.Row, error) {
	var r metastore.Row
	if err := row.Scan(&r.ID, &r.Status, &r.Owner, &r.Persistent, &r.Document, &r.CreatedAt, &r.SealedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func getRow(ctx context.Context, q DBTX, id composite.ObjectID, lock string) (*metastore.Row, error) {
	r, err := scanRow(q.QueryRow(ctx, selectRow+` WHERE id = $1`+lock, metastore.Key(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", composite.ErrObjectNotFound, id)
	}
	if err != nil {
		return nil, handlePostgresError("get object", err)
	}
	return r, nil
}

func (s *Store) Reserve(ctx context.Context, id composite.ObjectID, owner uuid.UUID, at time.Time) error {
	query := `
		INSERT INTO composite_object (id, status, owner_id, created_at)
		VALUES ($1, $2, $3, $4)`

	_, err := s.db.Exec(ctx, query, metastore.Key(id), string(composite.ObjectStatusReserved), owner, at)
	if err != nil {
		return handlePostgresError("reserve", err)
	}
	return nil
}

func (s *Store) Submit(ctx context.Context, doc *composite.Document) error {
	data, err := composite.EncodeDocument(doc)
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		r, err := getRow(ctx, tx, doc.ID, ` FOR UPDATE`)
		if err != nil {
			return err
		}
		if err := composite.CanSubmit(composite.ObjectStatus(r.Status)); err != nil {
			return err
		}
		if r.Owner != doc.Owner {
			return fmt.Errorf("%w: %s", composite.ErrNotOwner, doc.ID)
		}

		query := `
			UPDATE composite_object
			SET status = $2, type_tag = $3, document = $4, created_at = $5
			WHERE id = $1`
		_, err = tx.Exec(ctx, query, metastore.Key(doc.ID), string(composite.ObjectStatusPending),
			doc.TypeTag, data, doc.CreatedAt)
		if err != nil {
			return handlePostgresError("submit", err)
		}
		return nil
	})
}

func (s *Store) Seal(ctx context.Context, id composite.ObjectID, at time.Time) (*composite.Document, bool, error) {
	var (
		sealed  *composite.Document
		changed bool
	)
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		r, err := getRow(ctx, tx, id, ` FOR UPDATE`)
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
		statuses, err := lockStatuses(ctx, tx, refs)
		if err != nil {
			return err
		}
		for _, ref := range refs {
			if err := composite.CanReference(ref, statuses[ref]); err != nil {
				return err
			}
		}

		_, err = tx.Exec(ctx, `UPDATE composite_object SET status = $2, sealed_at = $3 WHERE id = $1`,
			metastore.Key(id), string(composite.ObjectStatusSealed), at)
		if err != nil {
			return handlePostgresError("seal", err)
		}
		if len(refs) > 0 {
			_, err = tx.Exec(ctx, `
				INSERT INTO composite_reference (referrer_id, target_id)
				SELECT $1, unnest($2::bigint[])`,
				metastore.Key(id), metastore.Keys(refs))
			if err != nil {
				return handlePostgresError("seal", err)
			}
		}

		sealedAt := at.UTC()
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

// lockStatuses share-locks the referenced rows so none of them can be
// deleted before the seal commits.
func lockStatuses(ctx context.Context, tx pgx.Tx, ids []composite.ObjectID) (map[composite.ObjectID]composite.ObjectStatus, error) {
	statuses := make(map[composite.ObjectID]composite.ObjectStatus, len(ids))
	if len(ids) == 0 {
		return statuses, nil
	}
	rows, err := tx.Query(ctx, `
		SELECT id, status FROM composite_object
		WHERE id = ANY($1) ORDER BY id FOR SHARE`, metastore.Keys(ids))
	if err != nil {
		return nil, handlePostgresError("check references", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key    int64
			status string
		)
		if err := rows.Scan(&key, &status); err != nil {
			return nil, handlePostgresError("check references", err)
		}
		statuses[metastore.FromKey(key)] = composite.ObjectStatus(status)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("check references", err)
	}
	return statuses, nil
}

func (s *Store) Get(ctx context.Context, id composite.ObjectID) (*composite.Document, error) {
	r, err := getRow(ctx, s.db, id, "")
	if err != nil {
		return nil, err
	}
	return r.Decode()
}

func (s *Store) Delete(ctx context.Context, id composite.ObjectID, opts composite.DeleteOptions) ([]composite.ObjectID, error) {
	var plan []composite.ObjectID
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var err error
		plan, err = composite.PlanDelete(&txGraph{ctx: ctx, tx: tx}, id, opts)
		if err != nil || len(plan) == 0 {
			return err
		}

		keys := metastore.Keys(plan)
		if _, err := tx.Exec(ctx, `UPDATE composite_object SET status = $2 WHERE id = ANY($1)`,
			keys, string(composite.ObjectStatusDeleted)); err != nil {
			return handlePostgresError("delete", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM composite_reference WHERE referrer_id = ANY($1)`, keys); err != nil {
			return handlePostgresError("delete", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM composite_name WHERE object_id = ANY($1)`, keys); err != nil {
			return handlePostgresError("delete", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// txGraph reads the reference graph inside the delete transaction, locking
// every row it looks at.
type txGraph struct {
	ctx context.Context
	tx  pgx.Tx
}

func (g *txGraph) Lookup(id composite.ObjectID) (*composite.Document, error) {
	r, err := getRow(g.ctx, g.tx, id, ` FOR UPDATE`)
	if err != nil {
		return nil, err
	}
	return r.Decode()
}

func (g *txGraph) Referrers(id composite.ObjectID) ([]composite.ObjectID, error) {
	rows, err := g.tx.Query(g.ctx, `
		SELECT r.referrer_id
		FROM composite_reference r
		JOIN composite_object o ON o.id = r.referrer_id
		WHERE r.target_id = $1 AND o.status = $2
		ORDER BY r.referrer_id`,
		metastore.Key(id), string(composite.ObjectStatusSealed))
	if err != nil {
		return nil, handlePostgresError("list referrers", err)
	}
	defer rows.Close()

	var refs []composite.ObjectID
	for rows.Next() {
		var key int64
		if err := rows.Scan(&key); err != nil {
			return nil, handlePostgresError("list referrers", err)
		}
		refs = append(refs, metastore.FromKey(key))
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("list referrers", err)
	}
	return refs, nil
}

func (s *Store) SetPersistent(ctx context.Context, ids []composite.ObjectID) error {
	unique := make(map[composite.ObjectID]struct{}, len(ids))
	for _, id := range ids {
		unique[id] = struct{}{}
	}
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE composite_object SET persistent = TRUE
			WHERE id = ANY($1) AND status = $2`,
			metastore.Keys(ids), string(composite.ObjectStatusSealed))
		if err != nil {
			return handlePostgresError("set persistent", err)
		}
		if tag.RowsAffected() != int64(len(unique)) {
			return fmt.Errorf("%w: some objects are not sealed", composite.ErrObjectNotFound)
		}
		return nil
	})
}

func (s *Store) PutName(ctx context.Context, name string, id composite.ObjectID) error {
	query := `
		INSERT INTO composite_name (name, object_id)
		SELECT $1, id FROM composite_object WHERE id = $2 AND status = $3
		ON CONFLICT (name) DO UPDATE SET object_id = EXCLUDED.object_id`

	tag, err := s.db.Exec(ctx, query, name, metastore.Key(id), string(composite.ObjectStatusSealed))
	if err != nil {
		return handlePostgresError("put name", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s is not sealed", composite.ErrObjectNotFound, id)
	}
	return nil
}

func (s *Store) GetName(ctx context.Context, name string) (composite.ObjectID, error) {
	var key int64
	err := s.db.QueryRow(ctx, `SELECT object_id FROM composite_name WHERE name = $1`, name).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return composite.InvalidObjectID, fmt.Errorf("%w: %q", composite.ErrNameNotFound, name)
	}
	if err != nil {
		return composite.InvalidObjectID, handlePostgresError("get name", err)
	}
	return metastore.FromKey(key), nil
}

func (s *Store) DropName(ctx context.Context, name string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM composite_name WHERE name = $1`, name)
	if err != nil {
		return handlePostgresError("drop name", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", composite.ErrNameNotFound, name)
	}
	return nil
}

func (s *Store) ListSealed(ctx context.Context, match func(string) bool, limit int) ([]*composite.Document, error) {
	rows, err := s.db.Query(ctx, selectRow+` WHERE status = $1 ORDER BY id`, string(composite.ObjectStatusSealed))
	if err != nil {
		return nil, handlePostgresError("list", err)
	}
	defer rows.Close()

	var result []*composite.Document
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, handlePostgresError("list", err)
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
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("list", err)
	}
	return result, nil
}
