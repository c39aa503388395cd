package uniqueness

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idmask/internal/attestation"
	"idmask/internal/audit"
	dErrors "idmask/pkg/domain-errors"
)

func TestSecretKnownValues(t *testing.T) {
	got, err := Secret("Hilary", "Nettlewater", "PNOLV-19003011076", "pepper")
	require.NoError(t, err)
	assert.Equal(t, "a4b98a1fc85151d63bb32f1bfd2b165cceafba2065b89dc41b0b4449052e7e55", got)

	got, err = Secret("Tom & Jerry", "<b>", "PNOEE-1", "s")
	require.NoError(t, err)
	assert.Equal(t, "cb130652b85e50d2a5552abe2fef9424cd7264a32fdd5e5dddf2b117f3d9c8e0", got)
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

func TestSecretMinimalJSON(t *testing.T) {
	cases := []struct {
		name, surname string
		canonical     string
	}{
		{"ANN\u2028MARIE", "DOE\u2029", "[\"ANN\u2028MARIE\",\"DOE\u2029\",\"PNOEE-1\",\"s\"]"},
		{`A\u2028`, "B", `["A\\u2028","B","PNOEE-1","s"]`},
		{"O\"NEIL\\", "<&>", `["O\"NEIL\\","<&>","PNOEE-1","s"]`},
		{"TAB\tNL\n", "\u0001", `["TAB\tNL\n","\u0001","PNOEE-1","s"]`},
	}
	for _, tc := range cases {
		got, err := Secret(tc.name, tc.surname, "PNOEE-1", "s")
		require.NoError(t, err)
		assert.Equal(t, sha256Hex(tc.canonical), got, tc.canonical)
	}

	_, err := Secret("\xff", "B", "PNOEE-1", "s")
	assert.ErrorIs(t, err, ErrInvalidUTF8)
}

func TestSecretStableAndSalted(t *testing.T) {
	a, err := Secret("Jane", "Doe", "PNOEE-60001019906", "salt-1")
	require.NoError(t, err)
	b, err := Secret("Jane", "Doe", "PNOEE-60001019906", "salt-1")
	require.NoError(t, err)
	c, err := Secret("Jane", "Doe", "PNOEE-60001019906", "salt-2")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

type fixture struct {
	signer   *attestation.Signer
	verifier *attestation.Verifier
	sink     *audit.MemorySink
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	priv, _, err := attestation.GenerateKey()
	require.NoError(t, err)
	signer, err := attestation.NewSigner(priv)
	require.NoError(t, err)
	verifier, err := attestation.NewVerifier(signer.PublicKey())
	require.NoError(t, err)
	return fixture{signer: signer, verifier: verifier, sink: audit.NewMemorySink()}
}

func (f fixture) service(t *testing.T, salt string) *Service {
	t.Helper()
	svc, err := NewService(f.verifier, f.signer, salt, audit.NewPublisher(f.sink), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return svc
}

func (f fixture) identity(t *testing.T, country string) Request {
	t.Helper()
	att, err := attestation.Issue(f.signer, attestation.IdentityData{
		Name: "Hilary", Surname: "Nettlewater", Country: country, PNO: "PNOLV-19003011076",
		CurrentDate: 20250224, IsMockData: 1,
	})
	require.NoError(t, err)
	return Request{Data: att.Data, Signature: att.Signature}
}

func TestIssue(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, "pepper")

	att, err := svc.Issue(context.Background(), f.identity(t, "LV"))
	require.NoError(t, err)

	assert.Equal(t, "a4b98a1fc85151d63bb32f1bfd2b165cceafba2065b89dc41b0b4449052e7e55", att.Data.Secret)
	assert.Equal(t, f.signer.PublicKey(), att.PublicKey)
	assert.NoError(t, f.verifier.VerifyPayload(att.Data, att.Signature))
	assert.Equal(t, []audit.EventType{audit.EventUniquenessIssued}, f.sink.Types())
}

func TestIssueIndependentOfCountry(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, "pepper")

	lv, err := svc.Issue(context.Background(), f.identity(t, "LV"))
	require.NoError(t, err)
	ee, err := svc.Issue(context.Background(), f.identity(t, "EE"))
	require.NoError(t, err)

	assert.Equal(t, lv.Data.Secret, ee.Data.Secret)
}

func TestIssueRejectsTamperedIdentity(t *testing.T) {
	f := newFixture(t)
	svc := f.service(t, "pepper")

	req := f.identity(t, "LV")
	req.Data.Surname = "Someone"
	_, err := svc.Issue(context.Background(), req)

	assert.True(t, dErrors.HasCode(err, dErrors.CodeVerificationFailed))
	assert.Equal(t, audit.OutcomeFailure, f.sink.Events()[0].Outcome)
}

func TestNewServiceRequiresSalt(t *testing.T) {
	f := newFixture(t)
	_, err := NewService(f.verifier, f.signer, "", nil, slog.Default())
	assert.Error(t, err)
}
