package controllers

import (
	"github.com/gofiber/fiber/v2"
)

// HandleStats reports domain counters and job queue state for operators.
func (h *Handler) HandleStats(c *fiber.Ctx) error {
	resp := fiber.Map{"counters": h.Counters.Snapshot()}
	if h.Queue != nil {
		jobs := fiber.Map{}
		for status, n := range h.Queue.GetJobStats() {
			jobs[string(status)] = n
		}
		resp["jobs"] = jobs
		resp["queueSize"] = h.Queue.GetQueueSize()
	}
	return c.JSON(resp)
}
