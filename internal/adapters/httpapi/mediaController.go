package httpapi

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
)

type MediaController struct {
	mc       MediaUseCase
	maxBytes int64
}

func NewMediaController(mc MediaUseCase, maxBytes int64) *MediaController {
	return &MediaController{mc: mc, maxBytes: maxBytes}
}

// Upload stores the multipart "file" field and returns its source key, to be
// attached to a post.
func (ctl *MediaController) Upload(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
		return
	}
	if fh.Size > ctl.maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "file too large"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, ctl.maxBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable file"})
		return
	}
	key, err := ctl.mc.StoreUpload(c.Request.Context(), data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"media": key})
}
