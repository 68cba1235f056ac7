package storage

import (
	"context"
	"sort"

	"readerstudy/internal/models"
)

type overlay struct {
	roles     []models.Role
	terms     map[int]models.CanonicalTerm
	synonyms  []models.Synonym
	cases     map[int]models.Case
	images    map[int]models.Image
	aiOutputs map[int][]models.AIOutput
}

// DryRunStore reads through to the wrapped store but keeps every create in an in-process
// overlay; batches are rolled back instead of committed. The overlay lives as long as the
// store, so later stages of one run see the rows earlier stages would have created.
type DryRunStore struct {
	inner Store
	ov    *overlay
}

func DryRun(inner Store) *DryRunStore {
	return &DryRunStore{inner: inner, ov: &overlay{
		terms:     map[int]models.CanonicalTerm{},
		cases:     map[int]models.Case{},
		images:    map[int]models.Image{},
		aiOutputs: map[int][]models.AIOutput{},
	}}
}

func (s *DryRunStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.inner.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &dryRunTx{inner: tx, ov: s.ov}, nil
}

func (s *DryRunStore) Close() error { return s.inner.Close() }

type dryRunTx struct {
	inner Tx
	ov    *overlay
}

func (t *dryRunTx) ListRoles(ctx context.Context) ([]models.Role, error) {
	out, err := t.inner.ListRoles(ctx)
	if err != nil {
		return nil, err
	}
	return append(out, t.ov.roles...), nil
}

func (t *dryRunTx) CreateRole(ctx context.Context, r models.Role) error {
	t.ov.roles = append(t.ov.roles, r)
	return nil
}

func (t *dryRunTx) ListTerms(ctx context.Context) ([]models.CanonicalTerm, error) {
	out, err := t.inner.ListTerms(ctx)
	if err != nil {
		return nil, err
	}
	for _, term := range t.ov.terms {
		out = append(out, term)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *dryRunTx) CreateTerm(ctx context.Context, term models.CanonicalTerm) error {
	t.ov.terms[term.ID] = term
	return nil
}

func (t *dryRunTx) ListSynonyms(ctx context.Context) ([]models.Synonym, error) {
	out, err := t.inner.ListSynonyms(ctx)
	if err != nil {
		return nil, err
	}
	return append(out, t.ov.synonyms...), nil
}

func (t *dryRunTx) CreateSynonym(ctx context.Context, s models.Synonym) error {
	t.ov.synonyms = append(t.ov.synonyms, s)
	return nil
}

func (t *dryRunTx) GetCase(ctx context.Context, id int) (models.Case, bool, error) {
	if c, ok := t.ov.cases[id]; ok {
		return c, true, nil
	}
	return t.inner.GetCase(ctx, id)
}

func (t *dryRunTx) CreateCase(ctx context.Context, c models.Case) error {
	t.ov.cases[c.ID] = c
	return nil
}

func (t *dryRunTx) GetImage(ctx context.Context, caseID int) (models.Image, bool, error) {
	if img, ok := t.ov.images[caseID]; ok {
		return img, true, nil
	}
	return t.inner.GetImage(ctx, caseID)
}

func (t *dryRunTx) CreateImage(ctx context.Context, img models.Image) error {
	t.ov.images[img.CaseID] = img
	return nil
}

func (t *dryRunTx) ListAIOutputs(ctx context.Context, caseID int) ([]models.AIOutput, error) {
	out, err := t.inner.ListAIOutputs(ctx, caseID)
	if err != nil {
		return nil, err
	}
	out = append(out, t.ov.aiOutputs[caseID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

func (t *dryRunTx) CreateAIOutput(ctx context.Context, o models.AIOutput) error {
	t.ov.aiOutputs[o.CaseID] = append(t.ov.aiOutputs[o.CaseID], o)
	return nil
}

func (t *dryRunTx) Commit(ctx context.Context) error {
	return t.inner.Rollback(ctx)
}

func (t *dryRunTx) Rollback(ctx context.Context) error {
	return t.inner.Rollback(ctx)
}
