package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"coffeeshop/internal/domain"
	"coffeeshop/internal/usecase"

	"github.com/gin-gonic/gin"
)

var statusMessages = map[int]string{
	http.StatusBadRequest:          "bad request",
	http.StatusNotFound:            "resource not found",
	http.StatusMethodNotAllowed:    "method not allowed",
	http.StatusUnprocessableEntity: "unprocessable",
	http.StatusInternalServerError: "internal server error",
	http.StatusServiceUnavailable:  "service unavailable",
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   int    `json:"error"`
	Message string `json:"message"`
}

type drinksResponse struct {
	Success bool `json:"success"`
	Drinks  any  `json:"drinks"`
}

type deleteResponse struct {
	Success bool  `json:"success"`
	ID      int64 `json:"id"`
}

type createDrinkRequest struct {
	Title  string          `json:"title"`
	Recipe json.RawMessage `json:"recipe"`
}

type updateDrinkRequest struct {
	Title  *string         `json:"title"`
	Recipe json.RawMessage `json:"recipe"`
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.ready != nil {
		if err := s.ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListDrinks(c *gin.Context) {
	drinks, err := s.drinks.ListShort(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, drinksResponse{Success: true, Drinks: drinks})
}

func (s *Server) handleListDrinkDetails(c *gin.Context) {
	drinks, err := s.drinks.ListLong(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, drinksResponse{Success: true, Drinks: drinks})
}

func (s *Server) handleCreateDrink(c *gin.Context) {
	var req createDrinkRequest
	if !bindBody(c, &req) {
		return
	}
	drinks, err := s.drinks.Create(c.Request.Context(), usecase.CreateDrinkInput{
		Title:  req.Title,
		Recipe: req.Recipe,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, drinksResponse{Success: true, Drinks: drinks})
}

func (s *Server) handleUpdateDrink(c *gin.Context) {
	id, ok := parseDrinkID(c)
	if !ok {
		return
	}
	var req updateDrinkRequest
	if !bindBody(c, &req) {
		return
	}
	drinks, err := s.drinks.Update(c.Request.Context(), id, usecase.UpdateDrinkInput{
		Title:  req.Title,
		Recipe: req.Recipe,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, drinksResponse{Success: true, Drinks: drinks})
}

func (s *Server) handleDeleteDrink(c *gin.Context) {
	id, ok := parseDrinkID(c)
	if !ok {
		return
	}
	deleted, err := s.drinks.Delete(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, deleteResponse{Success: true, ID: deleted})
}

// bindBody treats an empty body as an empty object so validation reports it
// as unprocessable rather than malformed.
func bindBody(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		writeErrorStatus(c, http.StatusBadRequest)
		return false
	}
	return true
}

func parseDrinkID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		writeErrorStatus(c, http.StatusNotFound)
		return 0, false
	}
	return id, true
}

func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidDrink), errors.Is(err, domain.ErrConflict):
		writeErrorStatus(c, http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrNotFound):
		writeErrorStatus(c, http.StatusNotFound)
	default:
		s.logger.ErrorContext(c.Request.Context(), "request failed", "request_id", getRequestID(c), "error", err)
		writeErrorStatus(c, http.StatusInternalServerError)
	}
}

func writeErrorStatus(c *gin.Context, status int) {
	message, ok := statusMessages[status]
	if !ok {
		message = http.StatusText(status)
	}
	c.JSON(status, errorResponse{
		Success: false,
		Error:   status,
		Message: message,
	})
}
