package credential

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/quantumauth-io/credchain/database"
)

const (
	credentialColumns = `id, student_wallet, issuer_wallet, credential_hash, document_type,
	institution_name, student_name, issue_date, metadata::text, status, created_at, updated_at`

	insertCredential = `INSERT INTO credentials (id, student_wallet, issuer_wallet, credential_hash,
	document_type, institution_name, student_name, issue_date, metadata, status, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	selectByStudent = `SELECT ` + credentialColumns + ` FROM credentials WHERE student_wallet = $1 ORDER BY created_at DESC`
	selectByIssuer  = `SELECT ` + credentialColumns + ` FROM credentials WHERE issuer_wallet = $1 ORDER BY created_at DESC`
	selectByHash    = `SELECT ` + credentialColumns + ` FROM credentials WHERE credential_hash = $1`
	countAll        = `SELECT count(*) FROM credentials`
)

type SQLStore struct {
	db database.Database
}

var _ Store = (*SQLStore)(nil)

func NewSQLStore(db database.Database) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Create(ctx context.Context, c *Credential) error {
	metadata, err := json.Marshal(c.Metadata)
	if err != nil {
		return errors.Wrap(err, "encode credential metadata")
	}
	_, err = s.db.Exec(ctx, insertCredential,
		c.ID, c.StudentWallet, c.IssuerWallet, c.Hash,
		c.DocumentType, c.InstitutionName, c.StudentName, c.IssueDate,
		string(metadata), string(c.Status), c.CreatedAt, c.UpdatedAt,
	)
	if database.IsUniqueViolation(err) {
		return ErrDuplicate
	}
	return errors.Wrap(err, "insert credential")
}

func (s *SQLStore) ListByStudent(ctx context.Context, wallet string) ([]Credential, error) {
	return s.list(ctx, selectByStudent, wallet)
}

func (s *SQLStore) ListByIssuer(ctx context.Context, wallet string) ([]Credential, error) {
	return s.list(ctx, selectByIssuer, wallet)
}

func (s *SQLStore) GetByHash(ctx context.Context, hash string) (*Credential, error) {
	row, err := s.db.QueryRow(ctx, selectByHash, hash)
	if err != nil {
		return nil, errors.Wrap(err, "query credential")
	}
	c, err := scanCredential(row)
	if database.IsNoRows(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *SQLStore) Count(ctx context.Context) (int64, error) {
	row, err := s.db.QueryRow(ctx, countAll)
	if err != nil {
		return 0, errors.Wrap(err, "count credentials")
	}
	var n int64
	if err := row.Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count credentials")
	}
	return n, nil
}

func (s *SQLStore) list(ctx context.Context, query, wallet string) ([]Credential, error) {
	rows, err := s.db.Query(ctx, query, wallet)
	if err != nil {
		return nil, errors.Wrap(err, "list credentials")
	}
	defer rows.Close()

	out := []Credential{}
	for rows.Next() {
		c, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, errors.Wrap(rows.Err(), "list credentials")
}

func scanCredential(row database.Row) (*Credential, error) {
	var (
		c        Credential
		metadata string
		status   string
	)
	err := row.Scan(&c.ID, &c.StudentWallet, &c.IssuerWallet, &c.Hash, &c.DocumentType,
		&c.InstitutionName, &c.StudentName, &c.IssueDate, &metadata, &status, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Status = Status(status)
	c.Metadata = map[string]any{}
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &c.Metadata); err != nil {
			return nil, errors.Wrap(err, "decode credential metadata")
		}
	}
	return &c, nil
}
