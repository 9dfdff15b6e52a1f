package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/JinxX404/BookNest-fullstack/internal/jobs"
	"github.com/JinxX404/BookNest-fullstack/pkg/logger"
)

type JobHandler struct {
	pool *jobs.Pool
}

func NewJobHandler(pool *jobs.Pool) *JobHandler {
	return &JobHandler{pool: pool}
}

func (h *JobHandler) GetJob(c *fiber.Ctx) error {
	job, ok := h.pool.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Job not found",
		})
	}
	return c.JSON(job)
}

// HandleConnection streams job status transitions to the client. The reader
// goroutine exists only to notice the peer going away.
func (h *JobHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("Job stream connection established")

	updates, cancel := h.pool.Watch()
	defer func() {
		cancel()
		c.Close()
		logger.Info("Job stream connection closed")
	}()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case job, ok := <-updates:
			if !ok {
				return
			}
			if err := c.WriteJSON(job); err != nil {
				logger.Error("Failed to write job update", zap.Error(err))
				return
			}
		}
	}
}
