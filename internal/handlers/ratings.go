package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/teacherrate/internal/services"
	appErrors "github.com/charlesng35/teacherrate/pkg/errors"
	"github.com/charlesng35/teacherrate/pkg/response"
)

type RatingHandler struct {
	service *services.RatingService
}

// createRatingRequest leaves the score as a float so fractional or missing
// values reach the service and fail its validation rather than the decoder.
type createRatingRequest struct {
	Rating      *float64 `json:"rating"`
	Description string   `json:"description"`
	TeacherID   uint     `json:"teacher_id"`
}

type updateRatingRequest struct {
	Rating      *float64 `json:"rating"`
	Description *string  `json:"description"`
}

func NewRatingHandler(service *services.RatingService) (*RatingHandler, error) {
	if service == nil {
		return nil, errors.New("rating handler: service is required")
	}
	return &RatingHandler{service: service}, nil
}

// GET /api/ratings
func (h *RatingHandler) List(c *gin.Context) {
	ratings, err := h.service.List(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, ratings, &response.Meta{Total: len(ratings)})
}

// GET /api/ratings/:id
func (h *RatingHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	rating, err := h.service.Get(requestContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, rating)
}

// GET /api/teachers/:id/ratings
func (h *RatingHandler) ListByTeacher(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ratings, err := h.service.ListByTeacher(requestContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, ratings, &response.Meta{Total: len(ratings)})
}

// GET /api/users/:id/ratings
func (h *RatingHandler) ListByUser(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	ratings, err := h.service.ListByUser(requestContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, ratings, &response.Meta{Total: len(ratings)})
}

// POST /api/ratings
func (h *RatingHandler) Create(c *gin.Context) {
	var body createRatingRequest
	if !bindJSON(c, &body) {
		return
	}

	input := services.CreateRatingInput{
		Rating:      body.Rating,
		Description: body.Description,
		TeacherID:   body.TeacherID,
	}
	if userID, ok := currentUserID(c); ok {
		input.UserID = &userID
	}

	rating, err := h.service.CreateOrUpsert(requestContext(c), input)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, rating)
}

// PUT /api/ratings/:id
func (h *RatingHandler) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	userID, ok := currentUserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var body updateRatingRequest
	if !bindJSON(c, &body) {
		return
	}

	rating, err := h.service.Update(requestContext(c), id, userID, services.UpdateRatingInput{
		Rating:      body.Rating,
		Description: body.Description,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, rating)
}

// DELETE /api/ratings/:id
func (h *RatingHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	actor := currentActor(c)
	if actor.UserID == 0 {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(requestContext(c), id, actor); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
