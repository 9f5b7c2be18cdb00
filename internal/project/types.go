package project

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("project not found")
	ErrInvalidArgument  = errors.New("invalid project request")
	ErrInvalidFileIndex = errors.New("invalid file index")
)

type Project struct {
	ID          string    `json:"id"`
	Owner       string    `json:"-"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Prompts     []Prompt  `json:"prompts"`
	Files       []File    `json:"files"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Prompt struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// File is an attachment stored outside the project record.
type File struct {
	ID         string    `json:"id"`
	Filename   string    `json:"filename"`
	Size       int64     `json:"size"`
	StoredPath string    `json:"-"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type CreateRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateRequest leaves nil fields untouched.
type UpdateRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

type PromptRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type Store interface {
	Create(ctx context.Context, owner string, req CreateRequest) (Project, error)
	List(ctx context.Context, owner string) ([]Project, error)
	Get(ctx context.Context, owner, id string) (Project, error)
	Update(ctx context.Context, owner, id string, req UpdateRequest) (Project, error)
	Delete(ctx context.Context, owner, id string) (Project, error)
	AddPrompt(ctx context.Context, owner, id string, req PromptRequest) (Prompt, error)
	AddFile(ctx context.Context, owner, id string, file File) (File, error)
	RemoveFile(ctx context.Context, owner, id string, index int) (File, error)
	Owns(ctx context.Context, owner, id string) (bool, error)
	Mode() string
	Close() error
}

func (p Project) Clone() Project {
	out := p
	out.Prompts = make([]Prompt, len(p.Prompts))
	copy(out.Prompts, p.Prompts)
	out.Files = make([]File, len(p.Files))
	copy(out.Files, p.Files)
	return out
}
