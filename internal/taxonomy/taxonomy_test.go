package taxonomy

import (
	"os"
	"path/filepath"
	"testing"

	"readerstudy/internal/csvsource"
	"readerstudy/internal/models"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestReadRowsAndResolve(t *testing.T) {
	path := writeFile(t, "derm_dictionary.csv", `id,canonical,type,alias
2,Psoriasis,synonym,Plaque psoriasis
1,Atopic dermatitis,,
1,Atopic dermatitis,synonym,Eczema
1,Atopic dermatitis,abbreviation,AD
2,Psoriasis,,
x,Broken,,
3,,,
3,Melanoma,misspelling,melanomma
4,Nevus,synonym,
`)
	rows, warnings, err := ReadRows(path)
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Len(t, rows, 9)

	res := Resolve(rows)
	require.Equal(t, []TermCandidate{
		{Line: 3, Term: models.CanonicalTerm{ID: 1, Name: "Atopic dermatitis"}},
		{Line: 6, Term: models.CanonicalTerm{ID: 2, Name: "Psoriasis"}},
	}, res.Terms)
	require.Equal(t, []SynonymCandidate{
		{Line: 2, Synonym: models.Synonym{TermID: 2, Text: "Plaque psoriasis"}},
		{Line: 4, Synonym: models.Synonym{TermID: 1, Text: "Eczema"}},
		{Line: 5, Synonym: models.Synonym{TermID: 1, Text: "AD"}},
	}, res.Synonyms)
	require.Equal(t, 3, res.RejectedTerms)
	require.Equal(t, 1, res.RejectedSynonyms)
	require.Len(t, res.Warnings, 4)
	for _, w := range res.Warnings {
		require.Equal(t, models.WarnMalformedRow, w.Kind)
	}
}

func TestReadRowsRejectsHeader(t *testing.T) {
	path := writeFile(t, "bad.csv", "id,name,type,alias\n1,Eczema,,\n")
	_, _, err := ReadRows(path)
	require.ErrorIs(t, err, csvsource.ErrBadHeader)

	_, _, err = ReadRows(filepath.Join(t.TempDir(), "missing.csv"))
	require.ErrorIs(t, err, csvsource.ErrSourceUnreadable)
}

func TestResolveDuplicateTerms(t *testing.T) {
	res := Resolve([]Row{
		{Line: 2, ID: "1", Canonical: "Eczema"},
		{Line: 3, ID: "1", Canonical: "Eczema"},
		{Line: 4, ID: "1", Canonical: "Dermatitis"},
		{Line: 5, ID: "7", Canonical: "Eczema"},
	})
	require.Len(t, res.Terms, 1)
	require.Equal(t, 2, res.RejectedTerms)
	require.Zero(t, res.RejectedSynonyms)
	require.Len(t, res.Warnings, 2)
	require.Equal(t, models.WarnDuplicateKey, res.Warnings[0].Kind)
	require.Equal(t, 4, res.Warnings[0].Line)
	require.Equal(t, 5, res.Warnings[1].Line)
}

func TestDedupSynonymCollision(t *testing.T) {
	proposed := []SynonymCandidate{
		{Line: 2, Synonym: models.Synonym{TermID: 10, Text: "Eczema"}},
		{Line: 3, Synonym: models.Synonym{TermID: 11, Text: "eczema"}},
	}
	res := DedupSynonyms(proposed, nil)
	require.Len(t, res.Fresh, 1)
	require.Equal(t, 10, res.Fresh[0].Synonym.TermID)
	require.Equal(t, 1, res.Dropped)
	require.Len(t, res.Warnings, 1)
	require.Equal(t, models.WarnDuplicateKey, res.Warnings[0].Kind)
	require.Contains(t, res.Warnings[0].Message, `"eczema" for term 11`)
	require.Contains(t, res.Warnings[0].Message, "kept for term 10")
}

func TestDedupAgainstPersisted(t *testing.T) {
	existing := []models.Synonym{{ID: 1, TermID: 10, Text: "ECZEMA"}, {ID: 2, TermID: 12, Text: "BCC"}}
	proposed := []SynonymCandidate{
		{Line: 2, Synonym: models.Synonym{TermID: 10, Text: "eczema"}},
		{Line: 3, Synonym: models.Synonym{TermID: 13, Text: "bcc"}},
		{Line: 4, Synonym: models.Synonym{TermID: 14, Text: "SCC"}},
	}
	res := DedupSynonyms(proposed, existing)
	require.Equal(t, 1, res.Skipped)
	require.Equal(t, 1, res.Dropped)
	require.Len(t, res.Fresh, 1)
	require.Equal(t, "SCC", res.Fresh[0].Synonym.Text)
	require.Len(t, res.Warnings, 1)
	require.Contains(t, res.Warnings[0].Message, "kept for term 12")
}

func TestKeyFoldsUnicode(t *testing.T) {
	require.Equal(t, Key("Café au lait"), Key("CAFÉ AU LAIT "))
	require.NotEqual(t, Key("AD"), Key("AK"))
}
