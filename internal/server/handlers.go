package server

import (
	"log/slog"
	"net/http"

	apperrors "github.com/talemachine/talemachine/internal/errors"
	"github.com/talemachine/talemachine/internal/mutation"
)

type sendMessageRequest struct {
	ThreadID string `json:"thread_id"`
	StoryID  int64  `json:"story_id"`
	Message  string `json:"message"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	reply, err := s.runtime.Send(r.Context(), req.ThreadID, req.StoryID, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}

	if reply.Interrupt != nil {
		if err := s.notifier.NotifyApprovalNeeded(r.Context(), reply.ThreadID, reply.Interrupt); err != nil {
			slog.Warn("Approval notification failed", "thread_id", reply.ThreadID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, reply)
}

type resumeRequest struct {
	ThreadID      string `json:"thread_id"`
	Approved      bool   `json:"approved"`
	ExtraArgument any    `json:"extra_argument"`
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ThreadID == "" {
		writeError(w, apperrors.InvalidInput("thread_id is required"))
		return
	}

	reply, err := s.runtime.Resume(r.Context(), req.ThreadID, req.Approved, req.ExtraArgument)
	if err != nil {
		writeError(w, err)
		return
	}

	if reply.Interrupt != nil {
		if err := s.notifier.NotifyApprovalNeeded(r.Context(), reply.ThreadID, reply.Interrupt); err != nil {
			slog.Warn("Approval notification failed", "thread_id", reply.ThreadID, "error", err)
		}
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleListApprovals(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.gate.List())
}

func (s *Server) handlePendingApproval(w http.ResponseWriter, r *http.Request) {
	threadID := urlParamString(r, "threadID")
	pending, err := s.gate.Pending(threadID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

type createStoryRequest struct {
	Title  string `json:"title"`
	Length string `json:"length"`
	Genre  string `json:"genre"`
	Notes  string `json:"notes"`
}

func (s *Server) handleCreateStory(w http.ResponseWriter, r *http.Request) {
	var req createStoryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	created, err := s.service.CreateStory(r.Context(), mutation.CreateStoryParams{
		Title:  req.Title,
		Length: req.Length,
		Genre:  req.Genre,
		Notes:  req.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListStories(w http.ResponseWriter, r *http.Request) {
	stories, err := s.store.GetAllStories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stories)
}

func (s *Server) handleGetStory(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt64(r, "storyID")
	if err != nil {
		writeError(w, err)
		return
	}

	st, err := s.store.GetStoryByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

type renameStoryRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleRenameStory(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt64(r, "storyID")
	if err != nil {
		writeError(w, err)
		return
	}

	var req renameStoryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Title == "" {
		writeError(w, apperrors.InvalidInput("title is required"))
		return
	}

	st, err := s.store.UpdateStoryTitle(r.Context(), id, req.Title)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleDeleteStory(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt64(r, "storyID")
	if err != nil {
		writeError(w, err)
		return
	}

	deleted, err := s.service.DeleteStory(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (s *Server) handleListChapters(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt64(r, "storyID")
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := s.store.GetStoryByID(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	summaries, err := s.store.GetChapterSummaries(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGetChapter(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt64(r, "chapterID")
	if err != nil {
		writeError(w, err)
		return
	}

	ch, err := s.store.GetChapterByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

func (s *Server) handleListImages(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt64(r, "storyID")
	if err != nil {
		writeError(w, err)
		return
	}

	if _, err := s.store.GetStoryByID(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}

	images, err := s.store.GetImagesByStory(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, images)
}

type graphQueryRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

func (s *Server) handleGraphQuery(w http.ResponseWriter, r *http.Request) {
	id, err := urlParamInt64(r, "storyID")
	if err != nil {
		writeError(w, err)
		return
	}

	var req graphQueryRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	answer, err := s.service.QueryStoryGraph(r.Context(), id, req.Question, req.TopK)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": answer})
}
