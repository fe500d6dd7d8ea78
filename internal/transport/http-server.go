package transport

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/hivemind-app/hivemind-back/internal/auth"
	"github.com/hivemind-app/hivemind-back/internal/config"
	"github.com/hivemind-app/hivemind-back/internal/db"
	"github.com/hivemind-app/hivemind-back/internal/service"
)

type (
	SignupReq struct {
		Email    string `json:"email" validate:"required,email"`
		Name     string `json:"name" validate:"required,min=3,max=100"`
		Password string `json:"password" validate:"required,max=100"`
	}

	LoginReq struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	UserResp struct {
		ID    uint64 `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}

	LoginResp struct {
		Token string   `json:"token"`
		User  UserResp `json:"user"`
	}

	ContentReq struct {
		Link  string   `json:"link" validate:"required"`
		Type  string   `json:"type" validate:"required"`
		Title string   `json:"title" validate:"required"`
		Tags  []uint64 `json:"tags"`
	}

	ContentUpdateReq struct {
		Link  *string   `json:"link"`
		Type  *string   `json:"type"`
		Title *string   `json:"title"`
		Tags  *[]uint64 `json:"tags"`
	}

	OwnerResp struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}

	TagResp struct {
		ID    uint64 `json:"id"`
		Title string `json:"title"`
	}

	TagReq struct {
		Title string `json:"title" validate:"required,min=1,max=100"`
	}

	ContentResp struct {
		ID        uint64     `json:"id"`
		Link      string     `json:"link"`
		Type      string     `json:"type"`
		Title     string     `json:"title"`
		Tags      []TagResp  `json:"tags"`
		CreatedAt time.Time  `json:"createdAt"`
		Owner     *OwnerResp `json:"owner,omitempty"`
	}

	ShareReq struct {
		Share *bool `json:"share" validate:"required"`
	}

	ShareResp struct {
		Hash string `json:"hash"`
	}

	SharedResp struct {
		Owner   string        `json:"owner"`
		Content []ContentResp `json:"content"`
	}

	CustomValidator struct {
		validator *validator.Validate
	}

	HTTPServer struct {
		svc    *service.Service
		tokens *auth.TokenAuthority
		logger *zap.SugaredLogger
	}

	// identityHandler is a handler that cannot run without an
	// authenticated identity; withIdentity is the only producer of the
	// second argument, so requiring auth is visible in the signature.
	identityHandler func(c echo.Context, userID uint64) error
)

func newServer(svc *service.Service, tokens *auth.TokenAuthority, logger *zap.SugaredLogger) *HTTPServer {
	return &HTTPServer{
		svc:    svc,
		tokens: tokens,
		logger: logger,
	}
}

func NewHTTPServer(lc fx.Lifecycle, cfg *config.Config, svc *service.Service, tokens *auth.TokenAuthority, logger *zap.SugaredLogger) *HTTPServer {
	instance := newServer(svc, tokens, logger)
	e := instance.buildEcho()

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				listen := cfg.Host + ":" + cfg.Port
				if err := e.Start(listen); err != nil && err != http.ErrServerClosed {
					e.Logger.Fatal("shutting down the server")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping HTTP server.")
			return e.Shutdown(ctx)
		},
	})

	return instance
}

func (s *HTTPServer) buildEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.POST("/signup", s.Signup)
	e.POST("/login", s.Login)

	userG := e.Group("/user")
	userG.GET("/content", s.withIdentity(s.ContentList))
	userG.POST("/create/post", s.withIdentity(s.ContentCreate))
	userG.PATCH("/update/:id", s.withIdentity(s.ContentUpdate))
	userG.DELETE("/delete/:id", s.withIdentity(s.ContentDelete))
	userG.GET("/tags", s.withIdentity(s.TagList))
	userG.POST("/tags", s.withIdentity(s.TagCreate))

	e.POST("/share", s.withIdentity(s.Share))
	e.GET("/sharelink/:hash", s.ShareResolve)

	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })

	e.Use(middleware.CORS())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.New().String() },
	}))
	e.Use(s.requestLogger())
	e.Use(middleware.Recover())

	e.Validator = &CustomValidator{validator: validator.New()}
	e.HTTPErrorHandler = s.errorHandler

	return e
}

// withIdentity turns an identityHandler into a plain echo handler. It
// is the single place a request identity is derived: bearer extraction,
// signature verification, then a user-still-exists check. On any
// failure the downstream handler is never invoked.
func (s *HTTPServer) withIdentity(next identityHandler) echo.HandlerFunc {
	return func(c echo.Context) error {
		header := c.Request().Header.Get(echo.HeaderAuthorization)
		if header == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
		}

		scheme, token, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "authorization header is not a bearer token")
		}

		userID, err := s.tokens.Verify(strings.TrimSpace(token))
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}

		// The token may outlive its user.
		user, err := s.svc.UserByID(c.Request().Context(), userID)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return echo.NewHTTPError(http.StatusUnauthorized, "unknown user")
			}
			return toHTTPError(err)
		}

		return next(c, user.ID)
	}
}

func (s *HTTPServer) Signup(c echo.Context) error {
	req := SignupReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := s.svc.Signup(c.Request().Context(), req.Email, req.Name, req.Password); err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusCreated, map[string]string{
		"message": "signed up successfully, please log in",
	})
}

func (s *HTTPServer) Login(c echo.Context) error {
	req := LoginReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	token, user, err := s.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, LoginResp{
		Token: token,
		User: UserResp{
			ID:    user.ID,
			Name:  user.Name,
			Email: user.Email,
		},
	})
}

func (s *HTTPServer) ContentList(c echo.Context, userID uint64) error {
	tagIDs, err := parseTagFilter(c.QueryParam("tags"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid tags filter")
	}

	listing, err := s.svc.ContentList(c.Request().Context(), userID, tagIDs)
	if err != nil {
		return toHTTPError(err)
	}

	owner := OwnerResp{
		Name:  listing.Owner.Name,
		Email: listing.Owner.Email,
	}
	resp := make([]ContentResp, len(listing.Items))
	for i := range listing.Items {
		resp[i] = contentResp(listing.Items[i])
		resp[i].Owner = &owner
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) ContentCreate(c echo.Context, userID uint64) error {
	req := ContentReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	model, err := s.svc.ContentCreate(c.Request().Context(), userID, service.ContentInput{
		Link:   req.Link,
		Type:   req.Type,
		Title:  req.Title,
		TagIDs: req.Tags,
	})
	if err != nil {
		return toHTTPError(err)
	}

	tags := make([]TagResp, len(model.Tags))
	for i := range model.Tags {
		tags[i] = TagResp{ID: model.Tags[i].ID, Title: model.Tags[i].Title}
	}
	return c.JSON(http.StatusCreated, ContentResp{
		ID:        model.ID,
		Link:      model.Link,
		Type:      model.Type,
		Title:     model.Title,
		Tags:      tags,
		CreatedAt: model.CreatedAt,
	})
}

func (s *HTTPServer) ContentUpdate(c echo.Context, userID uint64) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}

	req := ContentUpdateReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}
	if req.Type != nil && !db.ValidContentType(*req.Type) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid content type")
	}

	err = s.svc.ContentUpdate(c.Request().Context(), id, userID, service.ContentPatch{
		Link:   req.Link,
		Type:   req.Type,
		Title:  req.Title,
		TagIDs: req.Tags,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *HTTPServer) ContentDelete(c echo.Context, userID uint64) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}

	if err := s.svc.ContentDelete(c.Request().Context(), id, userID); err != nil {
		return toHTTPError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func (s *HTTPServer) TagList(c echo.Context, _ uint64) error {
	tags, err := s.svc.TagList(c.Request().Context())
	if err != nil {
		return toHTTPError(err)
	}

	resp := make([]TagResp, len(tags))
	for i := range tags {
		resp[i] = TagResp{ID: tags[i].ID, Title: tags[i].Title}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) TagCreate(c echo.Context, _ uint64) error {
	req := TagReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	model, err := s.svc.TagCreate(c.Request().Context(), req.Title)
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusCreated, TagResp{ID: model.ID, Title: model.Title})
}

func (s *HTTPServer) Share(c echo.Context, userID uint64) error {
	req := ShareReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	if *req.Share {
		hash, err := s.svc.ShareEnable(c.Request().Context(), userID)
		if err != nil {
			return toHTTPError(err)
		}
		return c.JSON(http.StatusOK, ShareResp{Hash: hash})
	}

	if err := s.svc.ShareDisable(c.Request().Context(), userID); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *HTTPServer) ShareResolve(c echo.Context) error {
	hash, err := GetParam(c, "hash")
	if err != nil {
		return err
	}

	col, err := s.svc.ShareResolve(c.Request().Context(), hash)
	if err != nil {
		return toHTTPError(err)
	}

	content := make([]ContentResp, len(col.Items))
	for i := range col.Items {
		content[i] = contentResp(col.Items[i])
	}
	return c.JSON(http.StatusOK, SharedResp{
		Owner:   col.OwnerName,
		Content: content,
	})
}

// errorHandler is the outermost recovery point: expected failures carry
// their own status, everything else is logged and flattened to a
// generic 500 so internal error text never reaches the caller.
func (s *HTTPServer) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	he, ok := err.(*echo.HTTPError)
	if !ok {
		s.logger.Errorw("request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			"error", err,
		)
		he = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(he.Code)
		return
	}
	_ = c.JSON(he.Code, map[string]string{
		"message": fmt.Sprintf("%v", he.Message),
	})
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, service.ErrEmailTaken),
		errors.Is(err, service.ErrTagTaken):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrEmptyUpdate),
		errors.Is(err, service.ErrInvalidContentType):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, service.ErrOwnerGone):
		return echo.NewHTTPError(http.StatusUnauthorized, "unknown user")
	case errors.Is(err, db.ErrUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service unavailable")
	default:
		return err
	}
}

func contentResp(item service.ContentItem) ContentResp {
	tags := make([]TagResp, len(item.Tags))
	for i := range item.Tags {
		tags[i] = TagResp{ID: item.Tags[i].ID, Title: item.Tags[i].Title}
	}
	return ContentResp{
		ID:        item.ID,
		Link:      item.Link,
		Type:      item.Type,
		Title:     item.Title,
		Tags:      tags,
		CreatedAt: item.CreatedAt,
	}
}

func parseTagFilter(raw string) ([]uint64, error) {
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]uint64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

////////

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func BindAndValidate(c echo.Context, v interface{}) error {
	var err error
	if err = c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err = c.Validate(v); err != nil {
		return err
	}
	return nil
}

func GetParam(c echo.Context, name string) (string, error) {
	value := c.Param(name)
	if value == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid path param '"+name+"'")
	}
	return value, nil
}

func GetAndParseParam(c echo.Context, name string) (uint64, error) {
	v, e := GetParam(c, name)
	if e != nil {
		return 0, e
	}
	vv, e := strconv.ParseUint(v, 10, 64)
	if e != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid path param '"+name+"'")
	}
	return vv, nil
}
