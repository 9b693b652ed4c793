package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/gin-gonic/gin"

	"s3-archive-lambda/internal/middleware"
)

const maxEventBytes = 1 << 20

// RouterOptions configures the local invoke server
type RouterOptions struct {
	RequestsPerSecond float64
	Burst             int
}

// NewRouter exposes the container's handler over HTTP for local development
func NewRouter(container *Container, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.StructuredLogger(container.Logger))
	if opts.RequestsPerSecond > 0 {
		router.Use(middleware.RateLimiter(opts.RequestsPerSecond, opts.Burst, container.Logger))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().UTC(),
			"mode":      container.Runtime.DeploymentMode(),
			"storage":   container.Settings.Storage.Type,
		})
	})

	router.POST("/invoke", func(c *gin.Context) {
		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBytes))
		if err != nil {
			c.JSON(http.StatusBadRequest, middleware.ErrorResponse{
				Error:     "Malformed",
				Message:   err.Error(),
				RequestID: c.GetString(middleware.RequestIDKey),
			})
			return
		}

		ctx := lambdacontext.NewContext(c.Request.Context(), &lambdacontext.LambdaContext{
			AwsRequestID: c.GetString(middleware.RequestIDKey),
		})

		resp, _ := container.Handler.Handle(ctx, json.RawMessage(payload))
		c.JSON(resp.StatusCode, resp)
	})

	return router
}
