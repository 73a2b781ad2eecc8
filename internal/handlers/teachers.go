package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/teacherrate/internal/repository"
	"github.com/charlesng35/teacherrate/internal/services"
	"github.com/charlesng35/teacherrate/pkg/response"
)

type TeacherHandler struct {
	service *services.TeacherService
}

type listTeachersQuery struct {
	Query string `form:"q" json:"q" validate:"max=100"`
	Sort  string `form:"sort" json:"sort" validate:"omitempty,oneof=name rating"`
}

type teacherRequest struct {
	Name    string `json:"name"`
	Role    string `json:"role"`
	Unit    string `json:"unit"`
	Address string `json:"address"`
	Room    string `json:"room"`
	Email   string `json:"email"`
	Phone   string `json:"phone"`
	Image   string `json:"image"`
}

type teacherPatchRequest struct {
	Name    *string `json:"name"`
	Role    *string `json:"role"`
	Unit    *string `json:"unit"`
	Address *string `json:"address"`
	Room    *string `json:"room"`
	Email   *string `json:"email"`
	Phone   *string `json:"phone"`
	Image   *string `json:"image"`
}

func NewTeacherHandler(service *services.TeacherService) (*TeacherHandler, error) {
	if service == nil {
		return nil, errors.New("teacher handler: service is required")
	}
	return &TeacherHandler{service: service}, nil
}

// GET /api/teachers
func (h *TeacherHandler) List(c *gin.Context) {
	var query listTeachersQuery
	if !bindQuery(c, &query) {
		return
	}

	teachers, err := h.service.List(requestContext(c), services.ListTeachersOptions{
		Query: query.Query,
		Sort:  repository.TeacherSort(query.Sort),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, teachers, &response.Meta{Total: len(teachers)})
}

// GET /api/teachers/search
func (h *TeacherHandler) Search(c *gin.Context) {
	teachers, err := h.service.Search(requestContext(c), c.Query("q"), parseIntQuery(c, "limit", 0))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.SuccessWithMeta(c, http.StatusOK, teachers, &response.Meta{Total: len(teachers)})
}

// GET /api/teachers/:id
func (h *TeacherHandler) Get(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	teacher, err := h.service.Get(requestContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, teacher)
}

// POST /api/teachers
func (h *TeacherHandler) Create(c *gin.Context) {
	var body teacherRequest
	if !bindJSON(c, &body) {
		return
	}

	teacher, err := h.service.Create(requestContext(c), services.TeacherInput{
		Name:    body.Name,
		Role:    body.Role,
		Unit:    body.Unit,
		Address: body.Address,
		Room:    body.Room,
		Email:   body.Email,
		Phone:   body.Phone,
		Image:   body.Image,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, teacher)
}

// PUT /api/teachers/:id
func (h *TeacherHandler) Update(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var body teacherPatchRequest
	if !bindJSON(c, &body) {
		return
	}

	teacher, err := h.service.Update(requestContext(c), id, services.TeacherPatch{
		Name:    body.Name,
		Role:    body.Role,
		Unit:    body.Unit,
		Address: body.Address,
		Room:    body.Room,
		Email:   body.Email,
		Phone:   body.Phone,
		Image:   body.Image,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, teacher)
}

// DELETE /api/teachers/:id
func (h *TeacherHandler) Delete(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(requestContext(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
