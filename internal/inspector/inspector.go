// Package inspector exposes a read-only (plus force-run/force-stop)
// gin HTTP API over a running Session/Scheduler, grounded on the
// teacher's own gin.New()+gin.Recovery() wiring in internal/app/app.go.
package inspector

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chronosched/internal/session"
	"chronosched/internal/shared"
)

// SchedulerView is the subset of *scheduler.Scheduler the inspector
// depends on, kept as an interface so this package never imports
// internal/scheduler directly (mirrors the acyclic-dependency shape
// internal/condition uses for the same reason).
type SchedulerView interface {
	Name() string
	Cycles() int
	CycleStart() time.Time
}

// taskView is the JSON shape for one task's summary.
type taskView struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	ForceState string `json:"force_state"`
	Priority   int    `json:"priority"`
	Execution  string `json:"execution"`
}

// statusFor maps a classified error to the HTTP status the taxonomy in
// spec.md §7 implies for it, following the same switch shape shared.Kind's
// own doc comment shows.
func statusFor(kind shared.Kind) int {
	switch kind {
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindValidation, shared.KindParameterBinding:
		return http.StatusBadRequest
	case shared.KindTaskTimeout:
		return http.StatusRequestTimeout
	case shared.KindConditionEval:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeErr classifies err via shared.KindOf and responds with the
// matching status code and message.
func writeErr(c *gin.Context, err error) {
	c.JSON(statusFor(shared.KindOf(err)), gin.H{"error": err.Error()})
}

// NewRouter builds the gin engine. sess supplies the task registry;
// sched (optional, may be nil) supplies cycle/name introspection.
func NewRouter(sess *session.Session, sched SchedulerView) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/tasks", func(c *gin.Context) {
		tasks := sess.Tasks()
		views := make([]taskView, 0, len(tasks))
		for _, t := range tasks {
			views = append(views, taskView{
				Name:       t.Name(),
				Status:     string(t.Status()),
				ForceState: t.ForceState().String(),
				Priority:   t.Priority(),
				Execution:  string(t.Execution()),
			})
		}
		c.JSON(http.StatusOK, gin.H{"tasks": views})
	})

	r.GET("/tasks/:name/history", func(c *gin.Context) {
		t, ok := sess.Task(c.Param("name"))
		if !ok {
			writeErr(c, shared.Wrap(shared.ErrNotFound, fmt.Sprintf("task %q", c.Param("name"))))
			return
		}
		c.JSON(http.StatusOK, gin.H{"history": t.GetHistory()})
	})

	r.POST("/tasks/:name/force-run", func(c *gin.Context) {
		t, ok := sess.Task(c.Param("name"))
		if !ok {
			writeErr(c, shared.Wrap(shared.ErrNotFound, fmt.Sprintf("task %q", c.Param("name"))))
			return
		}
		t.ForceRun()
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/tasks/:name/force-stop", func(c *gin.Context) {
		t, ok := sess.Task(c.Param("name"))
		if !ok {
			writeErr(c, shared.Wrap(shared.ErrNotFound, fmt.Sprintf("task %q", c.Param("name"))))
			return
		}
		t.ForceStop()
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/cycles", func(c *gin.Context) {
		if sched == nil {
			c.JSON(http.StatusOK, gin.H{"cycles": 0})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"name":        sched.Name(),
			"cycles":      sched.Cycles(),
			"cycle_start": sched.CycleStart(),
		})
	})

	return r
}
