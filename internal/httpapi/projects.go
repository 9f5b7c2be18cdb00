package httpapi

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jagadeeshthulasiraman/chat-box/internal/project"
)

// multipartOverhead covers boundaries and headers around the file part.
const multipartOverhead = 1 << 20

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.projects.List(r.Context(), ownerOf(r))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req project.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "project name is required")
		return
	}
	p, err := s.projects.Create(r.Context(), ownerOf(r), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.projects.Get(r.Context(), ownerOf(r), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request) {
	var req project.UpdateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	p, err := s.projects.Update(r.Context(), ownerOf(r), chi.URLParam(r, "id"), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.projects.Delete(r.Context(), ownerOf(r), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	for _, f := range p.Files {
		if err := s.files.Remove(f.StoredPath); err != nil {
			log.Printf("[httpapi] project=%s remove file %q: %v", p.ID, f.Filename, err)
		}
	}
	if err := s.chat.DropProject(r.Context(), p.ID); err != nil {
		log.Printf("[httpapi] project=%s drop transcript: %v", p.ID, err)
	}
	respondJSON(w, http.StatusOK, map[string]string{"msg": "Project deleted"})
}

func (s *Server) handleAddPrompt(w http.ResponseWriter, r *http.Request) {
	var req project.PromptRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "prompt content is required")
		return
	}
	prompt, err := s.projects.AddPrompt(r.Context(), ownerOf(r), chi.URLParam(r, "id"), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, prompt)
}

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	owner := ownerOf(r)
	projectID := chi.URLParam(r, "id")
	if _, err := s.projects.Get(r.Context(), owner, projectID); err != nil {
		respondServiceError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.UploadMaxBytes+multipartOverhead)
	mr, err := r.MultipartReader()
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "expected a multipart form with a file field")
		return
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "invalid_request", "missing file field")
			return
		}
		if err != nil {
			respondServiceError(w, fmt.Errorf("read multipart: %w", err))
			return
		}
		if part.FormName() != "file" {
			_ = part.Close()
			continue
		}

		saved, err := s.files.Save(owner, projectID, part.FileName(), part)
		_ = part.Close()
		if err != nil {
			respondServiceError(w, err)
			return
		}
		file, err := s.projects.AddFile(r.Context(), owner, projectID, project.File{
			Filename:   saved.Filename,
			Size:       saved.Size,
			StoredPath: saved.Path,
		})
		if err != nil {
			_ = s.files.Remove(saved.Path)
			respondServiceError(w, err)
			return
		}
		log.Printf("[httpapi] project=%s uploaded %q (%d bytes)", projectID, file.Filename, file.Size)
		respondJSON(w, http.StatusOK, map[string]string{
			"msg":      "File uploaded",
			"filename": file.Filename,
		})
		return
	}
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(strings.TrimSpace(chi.URLParam(r, "index")))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_file_index", "Invalid file index")
		return
	}
	file, err := s.projects.RemoveFile(r.Context(), ownerOf(r), chi.URLParam(r, "id"), index)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if err := s.files.Remove(file.StoredPath); err != nil {
		log.Printf("[httpapi] remove file %q: %v", file.Filename, err)
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"msg": fmt.Sprintf("File '%s' deleted", file.Filename),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := s.chat.History(r.Context(), ownerOf(r), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"history": history})
}
