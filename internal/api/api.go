package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/victornm/einterview/internal/answer"
	"github.com/victornm/einterview/internal/domain"
	"github.com/victornm/einterview/internal/errors"
	"github.com/victornm/einterview/internal/event"
	"github.com/victornm/einterview/internal/interview"
	"github.com/victornm/einterview/internal/progress"
	"github.com/victornm/einterview/internal/session"
)

const headerUserID = "X-User-ID"

type Config struct {
	Router       gin.IRouter
	EventBus     *event.Bus
	Interview    *interview.Service
	Session      *session.Service
	Answer       *answer.Store
	Progress     *progress.Service
	Navigator    *session.EventNavigator
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	is  *interview.Service
	ss  *session.Service
	as  *answer.Store
	ps  *progress.Service
	nav *session.EventNavigator

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		is:     c.Interview,
		ss:     c.Session,
		as:     c.Answer,
		ps:     c.Progress,
		nav:    c.Navigator,
		redis:  c.Redis,
		prefix: c.PubsubPrefix,
	}

	// HTTP APIs
	v1 := c.Router.Group("/v1", requireUser())
	v1.POST("/interviews", a.CreateInterview)
	v1.GET("/interviews/:id", a.GetInterview)
	v1.GET("/interviews/:id/answers", a.ListAnswers)
	v1.GET("/interviews/:id/progress", a.GetProgress)

	s := v1.Group("/interviews/:id/session")
	s.POST("", a.OpenSession)
	s.GET("", a.GetSession)
	s.DELETE("", a.CloseSession)
	s.POST("/capture/start", a.StartCapture)
	s.POST("/capture/stop", a.StopCapture)
	s.POST("/fragments", a.PushFragments)
	s.POST("/confirm", a.Confirm)
	s.POST("/webcam", a.SetWebcam)

	// Register event handlers
	c.EventBus.Subscribe(domain.EventNameAnswerScored, func(ctx context.Context, e event.Event) error {
		return a.PublishAnswerScored(ctx, e.(domain.EventAnswerScored))
	})
	c.EventBus.Subscribe(domain.EventNameAnswerScoringFailed, func(ctx context.Context, e event.Event) error {
		return a.PublishScoringFailed(ctx, e.(domain.EventAnswerScoringFailed))
	})
	c.EventBus.Subscribe(domain.EventNameInterviewCompleted, func(ctx context.Context, e event.Event) error {
		return a.PublishInterviewCompleted(ctx, e.(domain.EventInterviewCompleted))
	})
	c.EventBus.Subscribe(domain.EventNameProgressUpdated, func(ctx context.Context, e event.Event) error {
		return a.PublishProgressUpdated(ctx, e.(domain.EventProgressUpdated))
	})

	return a
}

// requireUser rejects requests the auth proxy did not attribute to a signed-in user.
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(headerUserID) == "" {
			abort(c, errors.New(errors.CodeUnauthenticated, errors.WithMessagef("missing %s header", headerUserID)))
			return
		}
		c.Next()
	}
}

func userID(c *gin.Context) string {
	return c.GetHeader(headerUserID)
}

func sessionKey(c *gin.Context) session.Key {
	return session.Key{InterviewID: c.Param("id"), UserID: userID(c)}
}

// abort renders err as {code, kind, message} with the status of its code.
func abort(c *gin.Context, err error) {
	e := errors.Convert(err)
	if e.Code == errors.CodeInternal {
		_ = c.Error(err)
		e = errors.New(errors.CodeInternal)
	}
	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{"error": e})
}

func (a *API) CreateInterview(c *gin.Context) {
	var req CreateInterviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("%s", err.Error())))
		return
	}

	iv, err := a.is.CreateInterview(c.Request.Context(), interview.CreateInterviewRequest{
		UserID:    userID(c),
		Title:     req.Title,
		Bank:      req.Bank,
		Questions: req.domainQuestions(),
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"interview": toInterview(iv)})
}

func (a *API) GetInterview(c *gin.Context) {
	iv, err := a.is.GetInterview(c.Request.Context(), interview.GetInterviewRequest{
		InterviewID: c.Param("id"),
		UserID:      userID(c),
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"interview": toInterview(iv)})
}

func (a *API) ListAnswers(c *gin.Context) {
	records, err := a.as.ListAnswers(c.Request.Context(), answer.ListAnswersRequest{
		InterviewID: c.Param("id"),
		UserID:      userID(c),
	})
	if err != nil {
		abort(c, err)
		return
	}

	out := make([]Answer, 0, len(records))
	for _, r := range records {
		out = append(out, toAnswer(r))
	}
	c.JSON(http.StatusOK, gin.H{"answers": out})
}

func (a *API) GetProgress(c *gin.Context) {
	p, err := a.ps.GetProgress(c.Request.Context(), progress.GetProgressRequest{
		InterviewID: c.Param("id"),
		UserID:      userID(c),
	})
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"progress": toProgress(*p)})
}

func (a *API) OpenSession(c *gin.Context) {
	ctrl, err := a.ss.Open(c.Request.Context(), sessionKey(c))
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": toSession(ctrl.View())})
}

func (a *API) GetSession(c *gin.Context) {
	ctrl, err := a.ss.Get(sessionKey(c))
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": toSession(ctrl.View())})
}

func (a *API) CloseSession(c *gin.Context) {
	if err := a.ss.Close(c.Request.Context(), sessionKey(c)); err != nil {
		abort(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) StartCapture(c *gin.Context) {
	v, err := a.ss.StartCapture(c.Request.Context(), sessionKey(c))
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": toSession(v)})
}

func (a *API) PushFragments(c *gin.Context) {
	var req PushFragmentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("%s", err.Error())))
		return
	}

	v, err := a.ss.PushFragments(c.Request.Context(), sessionKey(c), req.fragments())
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": toSession(v)})
}

func (a *API) StopCapture(c *gin.Context) {
	v, err := a.ss.StopCapture(c.Request.Context(), sessionKey(c))
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": toSession(v)})
}

func (a *API) Confirm(c *gin.Context) {
	out, v, err := a.ss.Confirm(c.Request.Context(), sessionKey(c))
	if err != nil {
		abort(c, err)
		return
	}

	resp := ConfirmResponse{
		RecordID:  out.RecordID,
		Completed: out.Completed,
		Session:   toSession(v),
	}
	if out.Completed {
		resp.Redirect = a.nav.Redirect(out.Record.InterviewID)
	}
	c.JSON(http.StatusOK, resp)
}

func (a *API) SetWebcam(c *gin.Context) {
	var req SetWebcamRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			abort(c, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("%s", err.Error())))
			return
		}
	}

	v, err := a.ss.SetWebcam(sessionKey(c), req.Enabled)
	if err != nil {
		abort(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": toSession(v)})
}
