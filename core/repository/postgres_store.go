package repository

// PostgresStore is the RunStore backed by Postgres
type PostgresStore struct {
	*RunRepository
	*EventRepository
	*ArtifactRepository
}

var _ RunStore = (*PostgresStore)(nil)

// NewPostgresStore creates a store over db. Call db.Migrate first.
func NewPostgresStore(db *DB) *PostgresStore {
	return &PostgresStore{
		RunRepository:      NewRunRepository(db),
		EventRepository:    NewEventRepository(db),
		ArtifactRepository: NewArtifactRepository(db),
	}
}
