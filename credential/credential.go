package credential

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"
	"gopkg.in/go-playground/validator.v9"
)

type Status string

const (
	StatusIssued   Status = "issued"
	StatusVerified Status = "verified"
	StatusRevoked  Status = "revoked"
)

var (
	ErrMissingFields = errors.New("Missing required fields")
	ErrNotFound      = errors.New("credential not found")
	ErrDuplicate     = errors.New("credential already exists")
)

type Credential struct {
	ID              string         `json:"id"`
	StudentWallet   string         `json:"student_wallet"`
	IssuerWallet    string         `json:"issuer_wallet"`
	Hash            string         `json:"credential_hash"`
	DocumentType    string         `json:"document_type"`
	InstitutionName string         `json:"institution_name"`
	StudentName     string         `json:"student_name"`
	IssueDate       string         `json:"issue_date"`
	Metadata        map[string]any `json:"metadata"`
	Status          Status         `json:"status"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

type IssueRequest struct {
	StudentWallet   string         `json:"student_wallet" validate:"required"`
	IssuerWallet    string         `json:"issuer_wallet" validate:"required"`
	DocumentType    string         `json:"document_type" validate:"required"`
	InstitutionName string         `json:"institution_name" validate:"required"`
	StudentName     string         `json:"student_name" validate:"required"`
	IssueDate       string         `json:"issue_date" validate:"required"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

var validate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	return v
}()

// Normalize trims every field and lower-cases both wallets.
func (r IssueRequest) Normalize() IssueRequest {
	r.StudentWallet = NormalizeWallet(r.StudentWallet)
	r.IssuerWallet = NormalizeWallet(r.IssuerWallet)
	r.DocumentType = strings.TrimSpace(r.DocumentType)
	r.InstitutionName = strings.TrimSpace(r.InstitutionName)
	r.StudentName = strings.TrimSpace(r.StudentName)
	r.IssueDate = strings.TrimSpace(r.IssueDate)
	return r
}

// Validate reports ErrMissingFields naming every empty required field.
func (r IssueRequest) Validate() error {
	err := validate.Struct(r)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrap(err, "validate issue request")
	}
	missing := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		missing = append(missing, fe.Field())
	}
	return fmt.Errorf("%w: %s", ErrMissingFields, strings.Join(missing, ", "))
}

func NormalizeWallet(w string) string {
	return strings.ToLower(strings.TrimSpace(w))
}

// CanonicalString is the digest input: one labelled field per line, wallets
// lower-cased, issuance time in UTC RFC3339Nano.
func CanonicalString(r IssueRequest, issuedAt time.Time) string {
	return strings.Join([]string{
		fmt.Sprintf("STUDENT: %s", NormalizeWallet(r.StudentWallet)),
		fmt.Sprintf("ISSUER: %s", NormalizeWallet(r.IssuerWallet)),
		fmt.Sprintf("DOCUMENT: %s", r.DocumentType),
		fmt.Sprintf("INSTITUTION: %s", r.InstitutionName),
		fmt.Sprintf("NAME: %s", r.StudentName),
		fmt.Sprintf("ISSUE-DATE: %s", r.IssueDate),
		fmt.Sprintf("TS: %s", issuedAt.UTC().Format(time.RFC3339Nano)),
	}, "\n")
}

// Hash is the 0x-prefixed SHA3-256 of CanonicalString.
func Hash(r IssueRequest, issuedAt time.Time) string {
	sum := sha3.Sum256([]byte(CanonicalString(r, issuedAt)))
	return hexutil.Encode(sum[:])
}
