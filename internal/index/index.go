package index

// History defines the compile history operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type History interface {
	RecordCompile(row CompileRow) (int64, error)
	ListCompiles(limit, offset int) ([]CompileRow, int, error)
	GetCompile(id int64) (*CompileRow, error)
	LastChecksum(source string) (string, error)
	AllChecksums() (map[string]string, error)
	Close() error
}

// Verify *DB satisfies History at compile time.
var _ History = (*DB)(nil)
