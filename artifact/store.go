package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	badgerdb "github.com/dgraph-io/badger/v3"
	"github.com/rs/zerolog"
)

// File names used by every backend.
const (
	ArtifactsFile = "artifacts.json"
	KeypairFile   = "keypair.json"
	ProofFile     = "proof.json"
	VerifierFile  = "verifier.sol"
)

// Backend is a flat blob store. Get returns ErrNotFound for missing names.
type Backend interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
}

// Store persists lifecycle artifacts in their wire shape.
type Store struct {
	backend Backend
	logger  zerolog.Logger
}

// NewStore wraps a backend.
func NewStore(b Backend, logger zerolog.Logger) *Store {
	return &Store{backend: b, logger: logger.With().Str("component", "artifact-store").Logger()}
}

func (s *Store) putJSON(ctx context.Context, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := s.backend.Put(ctx, name, data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	s.logger.Debug().Str("name", name).Int("bytes", len(data)).Msg("stored")
	return nil
}

func (s *Store) getJSON(ctx context.Context, name string, v any) error {
	data, err := s.backend.Get(ctx, name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		if errors.Is(err, ErrDeserialization) {
			return fmt.Errorf("decode %s: %w", name, err)
		}
		return fmt.Errorf("%w: decode %s: %v", ErrDeserialization, name, err)
	}
	return nil
}

func (s *Store) SaveArtifacts(ctx context.Context, a *Artifacts) error {
	sa, err := SerializeArtifacts(a)
	if err != nil {
		return err
	}
	return s.putJSON(ctx, ArtifactsFile, sa)
}

func (s *Store) LoadArtifacts(ctx context.Context) (*Artifacts, error) {
	var sa SerializedArtifacts
	if err := s.getJSON(ctx, ArtifactsFile, &sa); err != nil {
		return nil, err
	}
	return DeserializeArtifacts(&sa)
}

func (s *Store) SaveKeypair(ctx context.Context, k *Keypair) error {
	sk, err := SerializeKeypair(k)
	if err != nil {
		return err
	}
	return s.putJSON(ctx, KeypairFile, sk)
}

func (s *Store) LoadKeypair(ctx context.Context) (*Keypair, error) {
	var sk SerializedKeypair
	if err := s.getJSON(ctx, KeypairFile, &sk); err != nil {
		return nil, err
	}
	return DeserializeKeypair(&sk)
}

func (s *Store) SaveProof(ctx context.Context, p *Proof) error {
	return s.putJSON(ctx, ProofFile, p)
}

func (s *Store) LoadProof(ctx context.Context) (*Proof, error) {
	var p Proof
	if err := s.getJSON(ctx, ProofFile, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) SaveVerifier(ctx context.Context, source string) error {
	if err := s.backend.Put(ctx, VerifierFile, []byte(source)); err != nil {
		return fmt.Errorf("write %s: %w", VerifierFile, err)
	}
	return nil
}

func (s *Store) LoadVerifier(ctx context.Context) (string, error) {
	data, err := s.backend.Get(ctx, VerifierFile)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", VerifierFile, err)
	}
	return string(data), nil
}

// -----------------------------------------------------------------------------
//
//	Directory backend
//
// -----------------------------------------------------------------------------

// FileBackend keeps one file per name under a directory.
type FileBackend struct {
	dir string
}

// NewFileBackend creates dir if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact dir: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

// Dir returns the backing directory.
func (f *FileBackend) Dir() string { return f.dir }

// Put writes through a temp file and rename so readers never see a partial file.
func (f *FileBackend) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.dir, "."+name+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(f.dir, name))
}

func (f *FileBackend) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(f.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return data, err
}

// -----------------------------------------------------------------------------
//
//	Badger backend
//
// -----------------------------------------------------------------------------

// BadgerBackend stores entries in a badger database under a key prefix, so
// several circuits can share one database.
type BadgerBackend struct {
	db     *badgerdb.DB
	prefix string
}

// OpenBadger opens (or creates) a database at dir. An empty dir opens an
// in-memory database.
func OpenBadger(dir, prefix string, logger zerolog.Logger) (*BadgerBackend, error) {
	opts := badgerdb.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = badgerLogger{logger.With().Str("component", "badger").Logger()}
	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerBackend{db: db, prefix: prefix}, nil
}

func (b *BadgerBackend) key(name string) []byte {
	return []byte(b.prefix + "/" + name)
}

func (b *BadgerBackend) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(b.key(name), data)
	})
}

func (b *BadgerBackend) Get(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(b.key(name))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return out, err
}

func (b *BadgerBackend) Close() error { return b.db.Close() }

type badgerLogger struct{ l zerolog.Logger }

func (b badgerLogger) Errorf(f string, args ...interface{})   { b.l.Error().Msgf(f, args...) }
func (b badgerLogger) Warningf(f string, args ...interface{}) { b.l.Warn().Msgf(f, args...) }
func (b badgerLogger) Infof(f string, args ...interface{})    { b.l.Debug().Msgf(f, args...) }
func (b badgerLogger) Debugf(f string, args ...interface{})   { b.l.Trace().Msgf(f, args...) }
