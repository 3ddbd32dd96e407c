package credential

import (
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var issuedAt = time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

func sampleRequest() IssueRequest {
	return IssueRequest{
		StudentWallet:   "0xAbC0000000000000000000000000000000000001",
		IssuerWallet:    "0xDEF0000000000000000000000000000000000002",
		DocumentType:    "Bachelor of Science",
		InstitutionName: "Example University",
		StudentName:     "Alex Doe",
		IssueDate:       "2024-05-01",
	}
}

func TestCanonicalString(t *testing.T) {
	got := CanonicalString(sampleRequest(), issuedAt)
	lines := strings.Split(got, "\n")

	require.Len(t, lines, 7)
	assert.Equal(t, "STUDENT: 0xabc0000000000000000000000000000000000001", lines[0])
	assert.Equal(t, "ISSUER: 0xdef0000000000000000000000000000000000002", lines[1])
	assert.Equal(t, "TS: 2024-05-01T12:30:00Z", lines[6])
}

func TestHashIsDigest(t *testing.T) {
	h := Hash(sampleRequest(), issuedAt)

	assert.True(t, strings.HasPrefix(h, "0x"))
	assert.Len(t, h, 66)
	assert.Equal(t, h, Hash(sampleRequest(), issuedAt))

	// wallet case does not change the digest
	lower := sampleRequest()
	lower.StudentWallet = strings.ToLower(lower.StudentWallet)
	assert.Equal(t, h, Hash(lower, issuedAt))

	other := sampleRequest()
	other.StudentName = "Alex Doe "
	assert.NotEqual(t, h, Hash(other, issuedAt))
	assert.NotEqual(t, h, Hash(sampleRequest(), issuedAt.Add(time.Nanosecond)))
}

func TestValidate(t *testing.T) {
	require.NoError(t, sampleRequest().Validate())

	req := sampleRequest()
	req.IssuerWallet = ""
	req.IssueDate = "   "
	err := req.Normalize().Validate()

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingFields))
	assert.Contains(t, err.Error(), "issuer_wallet")
	assert.Contains(t, err.Error(), "issue_date")
	assert.NotContains(t, err.Error(), "student_wallet")
}

func TestNormalize(t *testing.T) {
	req := sampleRequest()
	req.StudentName = "  Alex Doe "
	n := req.Normalize()

	assert.Equal(t, "0xabc0000000000000000000000000000000000001", n.StudentWallet)
	assert.Equal(t, "Alex Doe", n.StudentName)
}
