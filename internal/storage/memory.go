package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"readerstudy/internal/models"
)

var ErrTxDone = errors.New("transaction already finished")

type memoryState struct {
	roles     []models.Role
	terms     map[int]models.CanonicalTerm
	synonyms  []models.Synonym
	cases     map[int]models.Case
	images    map[int]models.Image
	aiOutputs map[int][]models.AIOutput
	nextID    int
}

func newMemoryState() *memoryState {
	return &memoryState{
		terms:     map[int]models.CanonicalTerm{},
		cases:     map[int]models.Case{},
		images:    map[int]models.Image{},
		aiOutputs: map[int][]models.AIOutput{},
	}
}

func (s *memoryState) clone() *memoryState {
	c := newMemoryState()
	c.roles = append(c.roles, s.roles...)
	c.synonyms = append(c.synonyms, s.synonyms...)
	for k, v := range s.terms {
		c.terms[k] = v
	}
	for k, v := range s.cases {
		c.cases[k] = v
	}
	for k, v := range s.images {
		c.images[k] = v
	}
	for k, v := range s.aiOutputs {
		c.aiOutputs[k] = append([]models.AIOutput(nil), v...)
	}
	c.nextID = s.nextID
	return c
}

// MemoryStore keeps everything in process. Each batch works on a private copy that replaces the
// shared state on commit, so a rolled-back batch leaves no trace. It assumes a single writer.
type MemoryStore struct {
	mu    sync.Mutex
	state *memoryState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState()}
}

func (m *MemoryStore) Begin(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return &memoryTx{store: m, state: m.state.clone()}, nil
}

func (m *MemoryStore) Close() error { return nil }

// Counts reports the committed row count per table, keyed by table name.
func (m *MemoryStore) Counts() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	outputs := 0
	for _, v := range m.state.aiOutputs {
		outputs += len(v)
	}
	return map[string]int{
		"roles":              len(m.state.roles),
		"diagnosis_terms":    len(m.state.terms),
		"diagnosis_synonyms": len(m.state.synonyms),
		"cases":              len(m.state.cases),
		"images":             len(m.state.images),
		"ai_outputs":         outputs,
	}
}

type memoryTx struct {
	store *MemoryStore
	state *memoryState
	done  bool
}

func (t *memoryTx) check() error {
	if t.done {
		return ErrTxDone
	}
	return nil
}

func (t *memoryTx) id() int {
	t.state.nextID++
	return t.state.nextID
}

func (t *memoryTx) ListRoles(ctx context.Context) ([]models.Role, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	return append([]models.Role(nil), t.state.roles...), nil
}

func (t *memoryTx) CreateRole(ctx context.Context, r models.Role) error {
	if err := t.check(); err != nil {
		return err
	}
	r.ID = t.id()
	t.state.roles = append(t.state.roles, r)
	return nil
}

func (t *memoryTx) ListTerms(ctx context.Context) ([]models.CanonicalTerm, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	out := make([]models.CanonicalTerm, 0, len(t.state.terms))
	for _, v := range t.state.terms {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memoryTx) CreateTerm(ctx context.Context, term models.CanonicalTerm) error {
	if err := t.check(); err != nil {
		return err
	}
	if _, ok := t.state.terms[term.ID]; ok {
		return fmt.Errorf("insert diagnosis term %d: duplicate key", term.ID)
	}
	t.state.terms[term.ID] = term
	return nil
}

func (t *memoryTx) ListSynonyms(ctx context.Context) ([]models.Synonym, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	return append([]models.Synonym(nil), t.state.synonyms...), nil
}

func (t *memoryTx) CreateSynonym(ctx context.Context, s models.Synonym) error {
	if err := t.check(); err != nil {
		return err
	}
	if _, ok := t.state.terms[s.TermID]; !ok {
		return fmt.Errorf("insert synonym %q: unknown term %d", s.Text, s.TermID)
	}
	s.ID = t.id()
	t.state.synonyms = append(t.state.synonyms, s)
	return nil
}

func (t *memoryTx) GetCase(ctx context.Context, id int) (models.Case, bool, error) {
	if err := t.check(); err != nil {
		return models.Case{}, false, err
	}
	c, ok := t.state.cases[id]
	return c, ok, nil
}

func (t *memoryTx) CreateCase(ctx context.Context, c models.Case) error {
	if err := t.check(); err != nil {
		return err
	}
	if _, ok := t.state.cases[c.ID]; ok {
		return fmt.Errorf("insert case %d: duplicate key", c.ID)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	vec := make(models.ProbabilityVector, len(c.Probabilities))
	for k, v := range c.Probabilities {
		vec[k] = v
	}
	c.Probabilities = vec
	t.state.cases[c.ID] = c
	return nil
}

func (t *memoryTx) GetImage(ctx context.Context, caseID int) (models.Image, bool, error) {
	if err := t.check(); err != nil {
		return models.Image{}, false, err
	}
	img, ok := t.state.images[caseID]
	return img, ok, nil
}

func (t *memoryTx) CreateImage(ctx context.Context, img models.Image) error {
	if err := t.check(); err != nil {
		return err
	}
	if _, ok := t.state.images[img.CaseID]; ok {
		return fmt.Errorf("insert image for case %d: duplicate key", img.CaseID)
	}
	img.ID = t.id()
	t.state.images[img.CaseID] = img
	return nil
}

func (t *memoryTx) ListAIOutputs(ctx context.Context, caseID int) ([]models.AIOutput, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	out := append([]models.AIOutput(nil), t.state.aiOutputs[caseID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}

func (t *memoryTx) CreateAIOutput(ctx context.Context, o models.AIOutput) error {
	if err := t.check(); err != nil {
		return err
	}
	for _, existing := range t.state.aiOutputs[o.CaseID] {
		if existing.Rank == o.Rank {
			return fmt.Errorf("insert ai output case %d rank %d: duplicate key", o.CaseID, o.Rank)
		}
	}
	o.ID = t.id()
	t.state.aiOutputs[o.CaseID] = append(t.state.aiOutputs[o.CaseID], o)
	return nil
}

func (t *memoryTx) Commit(ctx context.Context) error {
	if err := t.check(); err != nil {
		return err
	}
	t.done = true
	t.store.mu.Lock()
	t.store.state = t.state
	t.store.mu.Unlock()
	return nil
}

func (t *memoryTx) Rollback(ctx context.Context) error {
	t.done = true
	return nil
}

func (m *MemoryStore) ListAIOutputs(ctx context.Context, caseID int) ([]models.AIOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]models.AIOutput(nil), m.state.aiOutputs[caseID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	return out, nil
}
