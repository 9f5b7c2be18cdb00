package project

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists projects, prompts and file metadata in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initProjectSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initProjectSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_projects_owner_created ON projects (owner, created_at);`,
		`CREATE TABLE IF NOT EXISTS project_prompts (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			title TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_project_prompts_project ON project_prompts (project_id, created_at);`,
		`CREATE TABLE IF NOT EXISTS project_files (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			filename TEXT NOT NULL,
			size BIGINT NOT NULL DEFAULT 0,
			stored_path TEXT NOT NULL,
			uploaded_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_project_files_project ON project_files (project_id, uploaded_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init project schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, owner string, req CreateRequest) (Project, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return Project{}, fmt.Errorf("%w: name is required", ErrInvalidArgument)
	}
	now := time.Now().UTC()
	p := Project{
		ID:          uuid.NewString(),
		Owner:       owner,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Prompts:     []Prompt{},
		Files:       []File{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO projects (id, owner, name, description, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Owner, p.Name, p.Description, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return Project{}, fmt.Errorf("insert project: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) List(ctx context.Context, owner string) ([]Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner, name, description, created_at, updated_at
		   FROM projects WHERE owner=$1 ORDER BY created_at ASC`,
		owner,
	)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	out := make([]Project, 0, 8)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan project row: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate project rows: %w", err)
	}

	for i := range out {
		if err := s.loadChildren(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PostgresStore) Get(ctx context.Context, owner, id string) (Project, error) {
	p, err := s.getRow(ctx, s.pool, owner, id, false)
	if err != nil {
		return Project{}, err
	}
	if err := s.loadChildren(ctx, &p); err != nil {
		return Project{}, err
	}
	return p, nil
}

func (s *PostgresStore) Update(ctx context.Context, owner, id string, req UpdateRequest) (Project, error) {
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return Project{}, fmt.Errorf("%w: name cannot be empty", ErrInvalidArgument)
	}

	var name, description *string
	if req.Name != nil {
		v := strings.TrimSpace(*req.Name)
		name = &v
	}
	if req.Description != nil {
		v := strings.TrimSpace(*req.Description)
		description = &v
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE projects SET
			name=COALESCE($3, name),
			description=COALESCE($4, description),
			updated_at=$5
		 WHERE id=$1 AND owner=$2`,
		id, owner, name, description, time.Now().UTC(),
	)
	if err != nil {
		return Project{}, fmt.Errorf("update project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Project{}, ErrNotFound
	}
	return s.Get(ctx, owner, id)
}

func (s *PostgresStore) Delete(ctx context.Context, owner, id string) (Project, error) {
	p, err := s.Get(ctx, owner, id)
	if err != nil {
		return Project{}, err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id=$1 AND owner=$2`, id, owner)
	if err != nil {
		return Project{}, fmt.Errorf("delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Project{}, ErrNotFound
	}
	return p, nil
}

func (s *PostgresStore) AddPrompt(ctx context.Context, owner, id string, req PromptRequest) (Prompt, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return Prompt{}, fmt.Errorf("%w: prompt content is required", ErrInvalidArgument)
	}
	if ok, err := s.Owns(ctx, owner, id); err != nil {
		return Prompt{}, err
	} else if !ok {
		return Prompt{}, ErrNotFound
	}

	prompt := Prompt{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(req.Title),
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO project_prompts (id, project_id, title, content, created_at) VALUES ($1, $2, $3, $4, $5)`,
		prompt.ID, id, prompt.Title, prompt.Content, prompt.CreatedAt,
	)
	if err != nil {
		return Prompt{}, fmt.Errorf("insert prompt: %w", err)
	}
	return prompt, nil
}

func (s *PostgresStore) AddFile(ctx context.Context, owner, id string, file File) (File, error) {
	if ok, err := s.Owns(ctx, owner, id); err != nil {
		return File{}, err
	} else if !ok {
		return File{}, ErrNotFound
	}
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	if file.UploadedAt.IsZero() {
		file.UploadedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO project_files (id, project_id, filename, size, stored_path, uploaded_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		file.ID, id, file.Filename, file.Size, file.StoredPath, file.UploadedAt,
	)
	if err != nil {
		return File{}, fmt.Errorf("insert file: %w", err)
	}
	return file, nil
}

func (s *PostgresStore) RemoveFile(ctx context.Context, owner, id string, index int) (File, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return File{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := s.getRow(ctx, tx, owner, id, true); err != nil {
		return File{}, err
	}
	files, err := loadFiles(ctx, tx, id)
	if err != nil {
		return File{}, err
	}
	if index < 0 || index >= len(files) {
		return File{}, ErrInvalidFileIndex
	}
	removed := files[index]
	if _, err := tx.Exec(ctx, `DELETE FROM project_files WHERE id=$1`, removed.ID); err != nil {
		return File{}, fmt.Errorf("delete file: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE projects SET updated_at=$2 WHERE id=$1`, id, time.Now().UTC()); err != nil {
		return File{}, fmt.Errorf("touch project: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return File{}, fmt.Errorf("commit tx: %w", err)
	}
	return removed, nil
}

func (s *PostgresStore) Owns(ctx context.Context, owner, id string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM projects WHERE id=$1 AND owner=$2)`,
		id, owner,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check project owner: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Mode() string { return "postgres" }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (s *PostgresStore) getRow(ctx context.Context, q queryer, owner, id string, forUpdate bool) (Project, error) {
	query := `SELECT id, owner, name, description, created_at, updated_at
	            FROM projects WHERE id=$1 AND owner=$2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	p, err := scanProject(q.QueryRow(ctx, query, id, owner))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Project{}, ErrNotFound
		}
		return Project{}, fmt.Errorf("get project: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) loadChildren(ctx context.Context, p *Project) error {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, content, created_at FROM project_prompts WHERE project_id=$1 ORDER BY created_at ASC`,
		p.ID,
	)
	if err != nil {
		return fmt.Errorf("list prompts: %w", err)
	}
	defer rows.Close()

	p.Prompts = make([]Prompt, 0, 4)
	for rows.Next() {
		var pr Prompt
		if err := rows.Scan(&pr.ID, &pr.Title, &pr.Content, &pr.CreatedAt); err != nil {
			return fmt.Errorf("scan prompt: %w", err)
		}
		p.Prompts = append(p.Prompts, pr)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate prompt rows: %w", err)
	}

	p.Files, err = loadFiles(ctx, s.pool, p.ID)
	return err
}

func loadFiles(ctx context.Context, q queryer, projectID string) ([]File, error) {
	rows, err := q.Query(ctx,
		`SELECT id, filename, size, stored_path, uploaded_at
		   FROM project_files WHERE project_id=$1 ORDER BY uploaded_at ASC, id ASC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	files := make([]File, 0, 4)
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.ID, &f.Filename, &f.Size, &f.StoredPath, &f.UploadedAt); err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate file rows: %w", err)
	}
	return files, nil
}

func scanProject(row pgx.Row) (Project, error) {
	var p Project
	if err := row.Scan(&p.ID, &p.Owner, &p.Name, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Project{}, err
	}
	return p, nil
}
