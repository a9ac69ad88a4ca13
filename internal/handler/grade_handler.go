package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-registrar-api/internal/service"
	appErrors "github.com/noah-isme/campus-registrar-api/pkg/errors"
	"github.com/noah-isme/campus-registrar-api/pkg/response"
)

// GradeHandler exposes the grade aggregation endpoint.
type GradeHandler struct {
	grades *service.GradeService
}

// NewGradeHandler constructs GradeHandler.
func NewGradeHandler(grades *service.GradeService) *GradeHandler {
	return &GradeHandler{grades: grades}
}

// Summary godoc
// @Summary Current aggregate grade of a student in a section
// @Tags Grades
// @Produce json
// @Param sectionId path string true "Section ID"
// @Param studentId path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /sections/{sectionId}/grades/{studentId} [get]
func (h *GradeHandler) Summary(c *gin.Context) {
	sectionID := c.Param("id")
	studentID := c.Param("studentId")
	if sectionID == "" || studentID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "section and student are required"))
		return
	}
	summary, err := h.grades.ComputeGrade(c.Request.Context(), studentID, sectionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}
