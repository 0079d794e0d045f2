// Package metastore implements the Metadata Store (§4.B): the durable,
// transactional mapping between Tags and Files. It follows the single
// relational schema spec.md §9 recommends over two separately-maintained
// key-value maps: one join table, so every consistency rule lives in SQL
// rather than in application code that has to keep two dictionaries in
// sync by hand.
//
// Every exported method runs its own transaction: "at-most-one committed
// state per call" per §4.B, with no method left half-applied on return.
package metastore

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/dmorris/tagfs/internal/errcode"
	"github.com/dmorris/tagfs/tagset"
)

const schema = `
CREATE TABLE IF NOT EXISTS tags (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS files (
	id   INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);
CREATE TABLE IF NOT EXISTS file_tags (
	file_id INTEGER NOT NULL REFERENCES files(id) ON DELETE CASCADE,
	tag_id  INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	UNIQUE(file_id, tag_id)
);
`

// Store is a sqlite-backed Metadata Store. The backing engine serializes
// writes on its own, but Store also holds a RWMutex so readers never
// observe a half-applied multi-statement write that spans more than one
// SQL statement within a single Go-level call (sqlite's own transaction
// isolation covers the statements; the mutex covers the Go-level
// check-then-act sequences some of these methods need around it).
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens (creating if necessary) a Metadata Store at dsn, a
// modernc.org/sqlite data source name, typically a file path, or
// ":memory:" for tests.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("metastore: open %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single writer, avoid SQLITE_BUSY
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("metastore: enable foreign keys: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("metastore: apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) tx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("metastore: begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// TagExists reports whether a Tag named name is registered.
func (s *Store) TagExists(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exists(ctx, "tags", name)
}

// FileExists reports whether a File named name is registered.
func (s *Store) FileExists(ctx context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.exists(ctx, "files", name)
}

func (s *Store) exists(ctx context.Context, table, name string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT 1 FROM %s WHERE name = ?", table), name).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("metastore: exists %s %q: %w", table, name, err)
	}
	return true, nil
}

// FileTags returns the tag set of the File named name. Returns
// errcode.NoEnt if no such File exists.
func (s *Store) FileTags(ctx context.Context, name string) (tagset.Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ok, err := s.exists(ctx, "files", name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errcode.Newf(errcode.NoEnt, "file %q", name)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.name FROM tags t
		JOIN file_tags ft ON ft.tag_id = t.id
		JOIN files f ON f.id = ft.file_id
		WHERE f.name = ?`, name)
	if err != nil {
		return nil, fmt.Errorf("metastore: file tags %q: %w", name, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return tagset.New(names), rows.Err()
}

// FilesWithAllTags returns the names of Files tagged with every tag in
// tags: the intersection of each tag's member set. An empty tags set
// matches no files; callers wanting "all files" should use a different
// query (none of the components in this tree need that).
func (s *Store) FilesWithAllTags(ctx context.Context, tags []string) (tagset.Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(tags) == 0 {
		return tagset.New(nil), nil
	}

	query := `
		SELECT f.name FROM files f
		JOIN file_tags ft ON ft.file_id = f.id
		JOIN tags t ON t.id = ft.tag_id
		WHERE t.name IN (` + placeholders(len(tags)) + `)
		GROUP BY f.id
		HAVING COUNT(DISTINCT t.name) = ?`
	args := make([]any, 0, len(tags)+1)
	for _, t := range tags {
		args = append(args, t)
	}
	args = append(args, len(tags))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("metastore: files with all tags %v: %w", tags, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return tagset.New(names), rows.Err()
}

// TagsIntersectingFiles returns every tag name attached to any file in
// files.
func (s *Store) TagsIntersectingFiles(ctx context.Context, files []string) (tagset.Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(files) == 0 {
		return tagset.New(nil), nil
	}

	query := `
		SELECT DISTINCT t.name FROM tags t
		JOIN file_tags ft ON ft.tag_id = t.id
		JOIN files f ON f.id = ft.file_id
		WHERE f.name IN (` + placeholders(len(files)) + `)`
	args := make([]any, len(files))
	for i, f := range files {
		args[i] = f
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("metastore: tags intersecting files: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return tagset.New(names), rows.Err()
}

// AllFileNames returns every registered File name. Not part of the method
// list in spec.md §4.B; added so Scrub (§5's scrub-time reconciliation) can
// compare the Metadata Store's File set against the Blob Store's directory
// listing without re-deriving it from FilesWithAllTags/OrphanFiles, neither
// of which enumerates every file.
func (s *Store) AllFileNames(ctx context.Context) (tagset.Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT name FROM files")
	if err != nil {
		return nil, fmt.Errorf("metastore: all file names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return tagset.New(names), rows.Err()
}

// AllTagNames returns every registered Tag name.
func (s *Store) AllTagNames(ctx context.Context) (tagset.Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT name FROM tags")
	if err != nil {
		return nil, fmt.Errorf("metastore: all tag names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return tagset.New(names), rows.Err()
}

// OrphanFiles returns the names of Files with an empty tag set.
func (s *Store) OrphanFiles(ctx context.Context) (tagset.Set, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT f.name FROM files f
		LEFT JOIN file_tags ft ON ft.file_id = f.id
		WHERE ft.file_id IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("metastore: orphan files: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return tagset.New(names), rows.Err()
}

// InsertTag registers a new Tag named name. Returns errcode.Exist if one
// is already registered.
func (s *Store) InsertTag(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tx(ctx, func(tx *sql.Tx) error {
		return insertNamed(ctx, tx, "tags", name)
	})
}

// DeleteTag removes the Tag named name. Returns errcode.NoEnt if it does
// not exist, errcode.NotEmpty if it still has members. Callers (the
// Mutation Engine) are expected to have already checked membership; this
// re-checks to keep the Store safe to call directly.
func (s *Store) DeleteTag(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tx(ctx, func(tx *sql.Tx) error {
		var id int64
		err := tx.QueryRowContext(ctx, "SELECT id FROM tags WHERE name = ?", name).Scan(&id)
		if err == sql.ErrNoRows {
			return errcode.Newf(errcode.NoEnt, "tag %q", name)
		}
		if err != nil {
			return err
		}

		var memberCount int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM file_tags WHERE tag_id = ?", id).Scan(&memberCount); err != nil {
			return err
		}
		if memberCount > 0 {
			return errcode.Newf(errcode.NotEmpty, "tag %q", name)
		}

		_, err = tx.ExecContext(ctx, "DELETE FROM tags WHERE id = ?", id)
		return err
	})
}

// RenameTag renames the Tag oldName to newName, leaving Taggings
// untouched (the relation is keyed by tag id, resolved through the Tag
// record). Returns errcode.NoEnt if oldName does not exist, errcode.Exist
// if newName already does.
func (s *Store) RenameTag(ctx context.Context, oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tx(ctx, func(tx *sql.Tx) error {
		return renameNamed(ctx, tx, "tags", oldName, newName)
	})
}

// InsertFile registers a new File named name with the given initial tag
// set. Every tag must already exist; the caller (the Mutation Engine) is
// responsible for having verified this, but the insert re-verifies inside
// the same transaction to honor invariant 1 and 2 of §3 unconditionally.
func (s *Store) InsertFile(ctx context.Context, name string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tx(ctx, func(tx *sql.Tx) error {
		if err := insertNamed(ctx, tx, "files", name); err != nil {
			return err
		}
		var fileID int64
		if err := tx.QueryRowContext(ctx, "SELECT id FROM files WHERE name = ?", name).Scan(&fileID); err != nil {
			return err
		}
		return setFileTagsTx(ctx, tx, fileID, tags)
	})
}

// DeleteFile removes the File named name and all of its Taggings.
// Returns errcode.NoEnt if it does not exist.
func (s *Store) DeleteFile(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, "DELETE FROM files WHERE name = ?", name)
		if err != nil {
			return err
		}
		return requireRowsAffected(res, errcode.NoEnt, "file %q", name)
	})
}

// SetFileTags replaces the File's tag set with tags entirely.
func (s *Store) SetFileTags(ctx context.Context, name string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tx(ctx, func(tx *sql.Tx) error {
		fileID, err := lookupID(ctx, tx, "files", name)
		if err != nil {
			return err
		}
		return setFileTagsTx(ctx, tx, fileID, tags)
	})
}

// AddFileTags unions tags into the File's current tag set.
func (s *Store) AddFileTags(ctx context.Context, name string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tx(ctx, func(tx *sql.Tx) error {
		fileID, err := lookupID(ctx, tx, "files", name)
		if err != nil {
			return err
		}
		for _, tag := range tags {
			tagID, err := lookupID(ctx, tx, "tags", tag)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT OR IGNORE INTO file_tags(file_id, tag_id) VALUES (?, ?)", fileID, tagID); err != nil {
				return err
			}
		}
		return nil
	})
}

// RemoveFileTags removes tags from the File's current tag set, if
// present. Removing a tag the file does not carry is a no-op for that
// tag, not an error; mirrors the idempotence property §8 requires of
// Link, and is symmetric with it.
func (s *Store) RemoveFileTags(ctx context.Context, name string, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tx(ctx, func(tx *sql.Tx) error {
		fileID, err := lookupID(ctx, tx, "files", name)
		if err != nil {
			return err
		}
		for _, tag := range tags {
			var tagID int64
			err := tx.QueryRowContext(ctx, "SELECT id FROM tags WHERE name = ?", tag).Scan(&tagID)
			if err == sql.ErrNoRows {
				continue
			}
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				"DELETE FROM file_tags WHERE file_id = ? AND tag_id = ?", fileID, tagID); err != nil {
				return err
			}
		}
		return nil
	})
}

// RenameFile renames the File oldName to newName, leaving Taggings
// untouched.
func (s *Store) RenameFile(ctx context.Context, oldName, newName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tx(ctx, func(tx *sql.Tx) error {
		return renameNamed(ctx, tx, "files", oldName, newName)
	})
}

func setFileTagsTx(ctx context.Context, tx *sql.Tx, fileID int64, tags []string) error {
	if _, err := tx.ExecContext(ctx, "DELETE FROM file_tags WHERE file_id = ?", fileID); err != nil {
		return err
	}
	for _, tag := range tags {
		tagID, err := lookupID(ctx, tx, "tags", tag)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO file_tags(file_id, tag_id) VALUES (?, ?)", fileID, tagID); err != nil {
			return err
		}
	}
	return nil
}

func insertNamed(ctx context.Context, tx *sql.Tx, table, name string) error {
	var id int64
	err := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT id FROM %s WHERE name = ?", table), name).Scan(&id)
	if err == nil {
		return errcode.Newf(errcode.Exist, "%s %q", singular(table), name)
	}
	if err != sql.ErrNoRows {
		return err
	}
	_, err = tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s(name) VALUES (?)", table), name)
	return err
}

func renameNamed(ctx context.Context, tx *sql.Tx, table, oldName, newName string) error {
	var id int64
	err := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT id FROM %s WHERE name = ?", table), oldName).Scan(&id)
	if err == sql.ErrNoRows {
		return errcode.Newf(errcode.NoEnt, "%s %q", singular(table), oldName)
	}
	if err != nil {
		return err
	}

	var clash int64
	err = tx.QueryRowContext(ctx, fmt.Sprintf("SELECT id FROM %s WHERE name = ?", table), newName).Scan(&clash)
	if err == nil {
		return errcode.Newf(errcode.Exist, "%s %q", singular(table), newName)
	}
	if err != sql.ErrNoRows {
		return err
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf("UPDATE %s SET name = ? WHERE id = ?", table), newName, id)
	return err
}

func lookupID(ctx context.Context, tx *sql.Tx, table, name string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT id FROM %s WHERE name = ?", table), name).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, errcode.Newf(errcode.NoEnt, "%s %q", singular(table), name)
	}
	return id, err
}

func requireRowsAffected(res sql.Result, code errcode.Code, format string, args ...any) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errcode.Newf(code, format, args...)
	}
	return nil
}

func singular(table string) string {
	switch table {
	case "tags":
		return "tag"
	case "files":
		return "file"
	default:
		return table
	}
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	out := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}
