package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Makepad-fr/tada/internal/apperr"
	"github.com/Makepad-fr/tada/internal/model"
	"github.com/Makepad-fr/tada/internal/store"
)

const msgTodoNotFound = "Todo not found"

func (s *Server) listTodos(w http.ResponseWriter, r *http.Request) {
	userID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	todos, err := s.todos.ListTodos(r.Context(), userID, model.FilterFromQuery(r.URL.Query()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, todos)
}

func (s *Server) getTodo(w http.ResponseWriter, r *http.Request) {
	t, err := s.ownedTodo(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) createTodo(w http.ResponseWriter, r *http.Request) {
	userID, err := caller(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body, err := decodeObject(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	n, err := s.schemas.parseCreate(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.todos.CreateTodo(r.Context(), n.Todo(userID))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Debug("todo created", "id", t.ID, "user", userID)
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) updateTodo(w http.ResponseWriter, r *http.Request) {
	prev, err := s.ownedTodo(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body, err := decodeObject(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	patch, err := s.schemas.parseUpdate(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	t, err := s.todos.UpdateTodo(r.Context(), prev.ID, patch)
	if err != nil {
		s.writeError(w, r, notFound(err))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) deleteTodo(w http.ResponseWriter, r *http.Request) {
	t, err := s.ownedTodo(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.todos.DeleteTodo(r.Context(), t.ID); err != nil {
		s.writeError(w, r, notFound(err))
		return
	}
	s.logger.Debug("todo deleted", "id", t.ID)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Todo deleted successfully"})
}

// ownedTodo loads the todo named in the path: 404 when it does not exist,
// 403 when it belongs to another user.
func (s *Server) ownedTodo(r *http.Request) (model.Todo, error) {
	userID, err := caller(r)
	if err != nil {
		return model.Todo{}, err
	}
	return loadOwned(r.Context(), s.todos, mux.Vars(r)["id"], userID)
}

func loadOwned(ctx context.Context, todos store.Todos, id, userID string) (model.Todo, error) {
	t, err := todos.GetTodo(ctx, id)
	if err != nil {
		return model.Todo{}, notFound(err)
	}
	if t.UserID != userID {
		return model.Todo{}, apperr.Forbidden()
	}
	return t, nil
}

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound(msgTodoNotFound)
	}
	return err
}
