package handlers

import (
	"fluxquiz/errs"

	"github.com/gin-gonic/gin"
)

func respondError(c *gin.Context, err error) {
	e := errs.Convert(err)
	c.JSON(e.HTTPStatusCode(), gin.H{"error": e.Message})
}
