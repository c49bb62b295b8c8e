package db

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"

	"notex/models"
)

var (
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrNoteNotFound       = errors.New("note not found")
)

const bcryptCost = 14

// Store is the single handle to the sqlite database. It is opened once at
// process start and injected into every consumer; there is no package-level
// connection.
type Store struct {
	db *sql.DB
}

func Open(dataSourceName string) (*Store, error) {
	conn, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, err
	}

	// One connection: sqlite serializes writers anyway, and a pool of one
	// keeps :memory: databases from being silently duplicated per connection.
	conn.SetMaxOpenConns(1)

	createTables := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS notes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		user_id INTEGER NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS api_tokens (
		token TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);
	`

	if _, err := conn.Exec(createTables); err != nil {
		conn.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &Store{db: conn}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateUser persists a new user with a bcrypt hash of the password.
// Username uniqueness is enforced by the UNIQUE constraint, not by a
// check-then-insert in application code, so concurrent registrations of the
// same name cannot both succeed.
func (s *Store) CreateUser(username, password string) (int64, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return 0, err
	}

	result, err := s.db.Exec("INSERT INTO users (username, password_hash) VALUES (?, ?)", username, hash)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return 0, ErrUsernameTaken
		}
		return 0, err
	}

	return result.LastInsertId()
}

// Authenticate returns the user id when the username exists and the password
// matches its stored hash. Unknown usernames and wrong passwords both come
// back as ErrInvalidCredentials; a dummy comparison runs for unknown
// usernames so the two cases take comparable time.
func (s *Store) Authenticate(username, password string) (int64, error) {
	var id int64
	var hash string
	err := s.db.QueryRow("SELECT id, password_hash FROM users WHERE username = ?", username).Scan(&id, &hash)

	target := hash
	if err != nil {
		target = dummyHash()
	}
	match := CheckPasswordHash(password, target)

	if err != nil || !match {
		return 0, ErrInvalidCredentials
	}
	return id, nil
}

func (s *Store) CreateNote(ownerID int64, title, description string) (int64, error) {
	result, err := s.db.Exec("INSERT INTO notes (title, description, user_id) VALUES (?, ?, ?)",
		title, description, ownerID)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// NotesByOwner lists the owner's notes newest first. The id tiebreak keeps
// the order strict when two notes share a CURRENT_TIMESTAMP second.
func (s *Store) NotesByOwner(ownerID int64) ([]models.Note, error) {
	rows, err := s.db.Query(
		"SELECT id, title, description, created_at, user_id FROM notes WHERE user_id = ? ORDER BY created_at DESC, id DESC",
		ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []models.Note
	for rows.Next() {
		var n models.Note
		if err := rows.Scan(&n.ID, &n.Title, &n.Description, &n.CreatedAt, &n.UserID); err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// NoteByOwner looks a note up by id and owner in one combined predicate.
// A note that exists but belongs to someone else is indistinguishable from a
// note that does not exist.
func (s *Store) NoteByOwner(noteID, ownerID int64) (models.Note, error) {
	var n models.Note
	err := s.db.QueryRow(
		"SELECT id, title, description, created_at, user_id FROM notes WHERE id = ? AND user_id = ?",
		noteID, ownerID).Scan(&n.ID, &n.Title, &n.Description, &n.CreatedAt, &n.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Note{}, ErrNoteNotFound
	}
	if err != nil {
		return models.Note{}, err
	}
	return n, nil
}

func (s *Store) UpdateNote(noteID, ownerID int64, title, description string) error {
	result, err := s.db.Exec(
		"UPDATE notes SET title = ?, description = ? WHERE id = ? AND user_id = ?",
		title, description, noteID, ownerID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNoteNotFound
	}
	return nil
}

func (s *Store) DeleteNote(noteID, ownerID int64) error {
	result, err := s.db.Exec("DELETE FROM notes WHERE id = ? AND user_id = ?", noteID, ownerID)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNoteNotFound
	}
	return nil
}

// InsertAPIToken persists an opaque API token so it survives restarts.
func (s *Store) InsertAPIToken(token string, userID int64) error {
	_, err := s.db.Exec("INSERT INTO api_tokens (token, user_id) VALUES (?, ?)", token, userID)
	return err
}

func (s *Store) UserForAPIToken(token string) (int64, bool) {
	var id int64
	err := s.db.QueryRow("SELECT user_id FROM api_tokens WHERE token = ?", token).Scan(&id)
	if err != nil {
		return 0, false
	}
	return id, true
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

var dummyOnce sync.Once
var dummy string

// dummyHash is compared against when a login names an unknown user, so the
// failure path still pays one bcrypt verification.
func dummyHash() string {
	dummyOnce.Do(func() {
		h, _ := bcrypt.GenerateFromPassword([]byte("notex-timing-pad"), bcryptCost)
		dummy = string(h)
	})
	return dummy
}
