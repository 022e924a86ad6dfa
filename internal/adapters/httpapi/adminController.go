package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type AdminController struct{ ac AdminUseCase }

func NewAdminController(ac AdminUseCase) *AdminController { return &AdminController{ac: ac} }

func (ctl *AdminController) ListDeadLetters(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	letters, err := ctl.ac.ListDeadLetters(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, letters)
}

func (ctl *AdminController) ReplayDeadLetter(c *gin.Context) {
	taskID, err := ctl.ac.ReplayDeadLetter(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"task_id": taskID})
}
