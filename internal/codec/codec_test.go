package codec

import (
	"encoding/base64"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kodejudge/internal/models"
)

func strptr(s string) *string { return &s }

func TestDecodePlain(t *testing.T) {
	req := SubmissionRequest{
		LanguageID:     1,
		SourceCode:     strptr("print('hi')"),
		Stdin:          "John",
		ExpectedOutput: strptr("hi\n"),
		AdditionalFiles: []FilePayload{
			{Name: "helper.py", Content: "def add(a,b): return a+b"},
		},
	}

	sub, err := req.Decode(false)
	require.NoError(t, err)
	assert.Equal(t, []byte("print('hi')"), sub.SourceCode)
	assert.Equal(t, []byte("John"), sub.Stdin)
	assert.Equal(t, []byte("hi\n"), sub.ExpectedOutput)
	require.Len(t, sub.AdditionalFiles, 1)
	assert.Equal(t, "helper.py", sub.AdditionalFiles[0].Name)
	assert.Equal(t, []byte("def add(a,b): return a+b"), sub.AdditionalFiles[0].Content)
}

func TestDecodeBase64(t *testing.T) {
	enc := func(s string) string { return base64.StdEncoding.EncodeToString([]byte(s)) }
	req := SubmissionRequest{
		LanguageID: 1,
		SourceCode: strptr(enc("print('hi')")),
		Stdin:      enc("John"),
	}

	sub, err := req.Decode(true)
	require.NoError(t, err)
	assert.Equal(t, []byte("print('hi')"), sub.SourceCode)
	assert.Equal(t, []byte("John"), sub.Stdin)
}

func TestDecodeStorageIdenticalEitherWay(t *testing.T) {
	plain := SubmissionRequest{LanguageID: 1, SourceCode: strptr("x = 1\n")}
	encoded := SubmissionRequest{
		LanguageID: 1,
		SourceCode: strptr(base64.StdEncoding.EncodeToString([]byte("x = 1\n"))),
	}

	a, err := plain.Decode(false)
	require.NoError(t, err)
	b, err := encoded.Decode(true)
	require.NoError(t, err)
	assert.Equal(t, a.SourceCode, b.SourceCode)
}

func TestDecodeBadBase64(t *testing.T) {
	req := SubmissionRequest{LanguageID: 1, SourceCode: strptr("not!!base64")}
	_, err := req.Decode(true)
	assert.ErrorIs(t, err, ErrBadEncoding)

	req = SubmissionRequest{
		LanguageID:      1,
		SourceCode:      strptr(""),
		AdditionalFiles: []FilePayload{{Name: "f", Content: "???"}},
	}
	_, err = req.Decode(true)
	assert.ErrorIs(t, err, ErrBadEncoding)
}

func TestDecodeMissingSourceStaysNil(t *testing.T) {
	sub, err := (&SubmissionRequest{LanguageID: 1}).Decode(false)
	require.NoError(t, err)
	assert.Nil(t, sub.SourceCode)

	sub, err = (&SubmissionRequest{LanguageID: 1, SourceCode: strptr("")}).Decode(false)
	require.NoError(t, err)
	require.NotNil(t, sub.SourceCode)
	assert.Empty(t, sub.SourceCode)
}

func TestEncodeSubmission(t *testing.T) {
	stdout := "hi\n"
	sub := &models.Submission{
		ID:         uuid.New(),
		LanguageID: 1,
		SourceCode: []byte("print('hi')"),
		Status:     models.StatusFinished,
		Stdout:     &stdout,
		Meta:       &models.Meta{Time: 0.1, Memory: 100, Message: "OK"},
	}

	record := EncodeSubmission(sub, false)
	assert.Equal(t, sub.ID.String(), record["id"])
	assert.Equal(t, "print('hi')", *record["source_code"].(*string))
	assert.Equal(t, "hi\n", *record["stdout"].(*string))
	assert.Nil(t, record["stderr"].(*string))
	assert.NotContains(t, record, "stdin")

	b64 := EncodeSubmission(sub, true)
	decoded, err := base64.StdEncoding.DecodeString(*b64["stdout"].(*string))
	require.NoError(t, err)
	assert.Equal(t, "hi\n", string(decoded))
}

func TestEncodeRoundTrip(t *testing.T) {
	payload := []byte{0x00, 0xff, 0x10, 'a', '\n'}
	sub := &models.Submission{ID: uuid.New(), SourceCode: payload}

	record := EncodeSubmission(sub, true)
	back, err := base64.StdEncoding.DecodeString(*record["source_code"].(*string))
	require.NoError(t, err)
	assert.Equal(t, payload, back)
}

func TestEncodeNilFileContent(t *testing.T) {
	// A migrated or hand-inserted row can carry "content": null in the
	// JSON column; reads must render it as an empty string, not panic.
	sub := &models.Submission{
		ID:              uuid.New(),
		SourceCode:      []byte("x"),
		AdditionalFiles: []models.AdditionalFile{{Name: "empty.txt"}},
	}

	record := EncodeSubmission(sub, false)
	files, ok := record["additional_files"].([]FilePayload)
	require.True(t, ok)
	require.Len(t, files, 1)
	assert.Equal(t, "empty.txt", files[0].Name)
	assert.Empty(t, files[0].Content)
}

func TestFilterFields(t *testing.T) {
	record := map[string]any{"id": "x", "status": "FINISHED", "stdout": "hi"}

	filtered := FilterFields(record, []string{"id", "status", "nope"})
	assert.Len(t, filtered, 2)
	assert.Contains(t, filtered, "id")
	assert.Contains(t, filtered, "status")
	assert.NotContains(t, filtered, "stdout")

	assert.Equal(t, record, FilterFields(record, nil))
}
