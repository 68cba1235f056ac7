package storage

import (
	"context"

	"readerstudy/internal/models"
)

// Store opens batch transactions against the destination database.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	Close() error
}

// Tx is one all-or-nothing batch. It exposes one typed read and one create per entity kind;
// creates assume the caller has already checked the natural key.
type Tx interface {
	ListRoles(ctx context.Context) ([]models.Role, error)
	CreateRole(ctx context.Context, r models.Role) error

	ListTerms(ctx context.Context) ([]models.CanonicalTerm, error)
	CreateTerm(ctx context.Context, t models.CanonicalTerm) error

	ListSynonyms(ctx context.Context) ([]models.Synonym, error)
	CreateSynonym(ctx context.Context, s models.Synonym) error

	GetCase(ctx context.Context, id int) (models.Case, bool, error)
	CreateCase(ctx context.Context, c models.Case) error

	GetImage(ctx context.Context, caseID int) (models.Image, bool, error)
	CreateImage(ctx context.Context, img models.Image) error

	ListAIOutputs(ctx context.Context, caseID int) ([]models.AIOutput, error)
	CreateAIOutput(ctx context.Context, o models.AIOutput) error

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
