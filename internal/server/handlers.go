package server

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/krakenlabs/krakbit/internal/archive"
	"github.com/krakenlabs/krakbit/internal/generate"
	"github.com/krakenlabs/krakbit/internal/trending"
	"github.com/krakenlabs/krakbit/models"
)

// Handlers serves the single-shot endpoints: the trending feed, follow-up
// questions and the digest archive.
type Handlers struct {
	Trending trending.Provider
	Answerer generate.Answerer
	Archive  *archive.Store
	Logger   *log.Logger
}

// Register mounts the routes.
func (h *Handlers) Register(e *echo.Echo) {
	e.GET("/get_x_trending", h.getTrending)
	e.POST("/ask_question", h.askQuestion)
	e.GET("/archive", h.listArchive)
	e.GET("/archive/:id", h.getArchived)
}

type trendingResponse struct {
	Posts []models.TrendingPost `json:"posts"`
}

func (h *Handlers) getTrending(c echo.Context) error {
	posts, err := h.Trending.Trending(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	if posts == nil {
		posts = []models.TrendingPost{}
	}
	return c.JSON(http.StatusOK, trendingResponse{Posts: posts})
}

type askQuestionRequest struct {
	Question string `json:"question"`
	Content  string `json:"content"`
}

type askQuestionResponse struct {
	Response string `json:"response"`
}

func (h *Handlers) askQuestion(c echo.Context) error {
	var req askQuestionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid body")
	}
	if strings.TrimSpace(req.Question) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question is required")
	}
	askRequests.Inc()
	answer, err := h.Answerer.Answer(c.Request().Context(), req.Question, req.Content)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, askQuestionResponse{Response: answer})
}

func (h *Handlers) listArchive(c echo.Context) error {
	if h.Archive == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "archive disabled")
	}
	limit := 20
	if val := strings.TrimSpace(c.QueryParam("limit")); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			limit = n
		}
	}
	digests, err := h.Archive.ListDigests(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if digests == nil {
		digests = []models.Digest{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"digests": digests})
}

func (h *Handlers) getArchived(c echo.Context) error {
	if h.Archive == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "archive disabled")
	}
	d, err := h.Archive.GetDigest(c.Request().Context(), c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, d)
}
