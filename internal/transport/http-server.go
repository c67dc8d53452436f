package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/librepage/librepage-back/internal/analytics"
	"github.com/librepage/librepage-back/internal/auth"
	"github.com/librepage/librepage-back/internal/config"
	"github.com/librepage/librepage-back/internal/db"
	"github.com/librepage/librepage-back/internal/notify"
	"github.com/librepage/librepage-back/internal/service"
)

type (
	RegisterReq struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required,min=8"`
		Name     string `json:"name" validate:"required"`
	}

	LoginReq struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	AuthResp struct {
		Token string   `json:"token"`
		User  UserResp `json:"user"`
	}

	UserResp struct {
		ID           uint64    `json:"id"`
		Email        string    `json:"email"`
		Name         string    `json:"name"`
		Handle       string    `json:"handle"`
		Role         string    `json:"role"`
		ThemePalette string    `json:"themePalette"`
		ButtonStyle  string    `json:"buttonStyle"`
		TotalViews   uint64    `json:"totalViews"`
		CreatedAt    time.Time `json:"createdAt"`
	}

	ProfileReq struct {
		Name         *string `json:"name"`
		Handle       *string `json:"handle"`
		ThemePalette *string `json:"themePalette"`
		ButtonStyle  *string `json:"buttonStyle"`
	}

	LinkCreateReq struct {
		Title    string  `json:"title" validate:"required"`
		URL      string  `json:"url" validate:"required,url"`
		Order    *int    `json:"order"`
		IsSocial bool    `json:"isSocial"`
		GroupID  *uint64 `json:"groupId"`
	}

	LinkUpdateReq struct {
		Title    *string `json:"title"`
		URL      *string `json:"url"`
		Order    *int    `json:"order"`
		IsSocial *bool   `json:"isSocial"`
		Archived *bool   `json:"archived"`
		GroupID  *uint64 `json:"groupId"`
		Ungroup  bool    `json:"ungroup"`
	}

	LinkResp struct {
		ID        uint64    `json:"id"`
		Title     string    `json:"title"`
		URL       string    `json:"url"`
		Order     int       `json:"order"`
		IsSocial  bool      `json:"isSocial"`
		Archived  bool      `json:"archived"`
		GroupID   *uint64   `json:"groupId"`
		CreatedAt time.Time `json:"createdAt"`
	}

	ReorderItem struct {
		ID    uint64 `json:"id" validate:"required"`
		Order int    `json:"order"`
	}

	ReorderReq struct {
		Links []ReorderItem `json:"links" validate:"required,dive"`
	}

	GroupReq struct {
		Name  string `json:"name" validate:"required"`
		Order *int   `json:"order"`
	}

	GroupResp struct {
		ID    uint64 `json:"id"`
		Name  string `json:"name"`
		Order int    `json:"order"`
	}

	PublicProfileResp struct {
		Name         string     `json:"name"`
		Handle       string     `json:"handle"`
		ThemePalette string     `json:"themePalette"`
		ButtonStyle  string     `json:"buttonStyle"`
		Links        []LinkResp `json:"links"`
	}

	AdminUserActionReq struct {
		UserID uint64 `json:"userId" validate:"required"`
		Action string `json:"action" validate:"required,oneof=promote demote delete"`
	}

	CustomValidator struct {
		validator *validator.Validate
	}

	HTTPServer struct {
		users     *service.Users
		links     *service.Links
		groups    *service.Groups
		analytics *analytics.Client
		issuer    *auth.Issuer
		hub       *notify.Hub
		logger    *zap.SugaredLogger
	}
)

func NewHTTPServer(
	lc fx.Lifecycle,
	cfg *config.Config,
	users *service.Users,
	links *service.Links,
	groups *service.Groups,
	analyticsClient *analytics.Client,
	issuer *auth.Issuer,
	hub *notify.Hub,
	logger *zap.SugaredLogger,
) *HTTPServer {
	instance := &HTTPServer{
		users:     users,
		links:     links,
		groups:    groups,
		analytics: analyticsClient,
		issuer:    issuer,
		hub:       hub,
		logger:    logger,
	}

	e := NewEcho(instance)

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

// NewEcho builds the router; split out so tests can serve requests without
// the fx lifecycle.
func NewEcho(s *HTTPServer) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.POST("/auth/register", s.Register)
	e.POST("/auth/login", s.Login)
	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })

	api := e.Group("/api")
	api.GET("/users/:handle", s.PublicProfile)

	authed := api.Group("", s.AuthMiddleware)
	authed.GET("/current", s.CurrentUser)
	authed.PATCH("/current", s.UpdateProfile)

	authed.GET("/links", s.LinkList)
	authed.POST("/links", s.LinkCreate)
	authed.PUT("/links", s.LinkBulkReorder)
	authed.PATCH("/links/reorder", s.LinkReorder)
	authed.PATCH("/links/:id", s.LinkUpdate)
	authed.DELETE("/links/:id", s.LinkDelete)

	authed.GET("/link-groups", s.GroupList)
	authed.POST("/link-groups", s.GroupCreate)
	authed.GET("/link-groups/:id", s.GroupGet)
	authed.PATCH("/link-groups/:id", s.GroupUpdate)
	authed.DELETE("/link-groups/:id", s.GroupDelete)

	authed.GET("/analytics/views", s.AnalyticsViews)
	authed.GET("/analytics/device", s.AnalyticsDevices)
	authed.GET("/analytics/location", s.AnalyticsLocations)

	authed.GET("/events", s.Events)

	admin := authed.Group("/admin", s.AdminMiddleware)
	admin.GET("/users", s.AdminUserList)
	admin.PATCH("/users", s.AdminUserAction)

	e.Use(middleware.CORS())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyDump(func(c echo.Context, reqBody, resBody []byte) {
		if len(reqBody) == 0 {
			return
		}
		s.logger.Debugw("request",
			"method", c.Request().Method,
			"path", c.Path(),
			"body", string(censorBody(reqBody)),
		)
	}))

	e.Validator = &CustomValidator{validator: validator.New()}

	echo.NotFoundHandler = func(c echo.Context) error {
		return c.NoContent(http.StatusNotFound)
	}

	return e
}

func (s *HTTPServer) Register(c echo.Context) error {
	req := RegisterReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := s.users.Register(req.Email, req.Password, req.Name)
	if err != nil {
		if errors.Is(err, service.ErrEmailTaken) {
			return echo.NewHTTPError(http.StatusBadRequest, "email already registered")
		}
		return err
	}

	token, err := s.issuer.Sign(user.ID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, AuthResp{Token: token, User: toUserResp(user)})
}

func (s *HTTPServer) Login(c echo.Context) error {
	req := LoginReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := s.users.Login(req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrLoginUserNotFound) || errors.Is(err, service.ErrLoginPasswordDoesNotMatch) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid email or password")
		}
		return err
	}

	token, err := s.issuer.Sign(user.ID)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, AuthResp{Token: token, User: toUserResp(user)})
}

func (s *HTTPServer) CurrentUser(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResp(user))
}

func (s *HTTPServer) UpdateProfile(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	req := ProfileReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	updated, err := s.users.UpdateProfile(user.ID, service.ProfilePatch{
		Name:         req.Name,
		Handle:       req.Handle,
		ThemePalette: req.ThemePalette,
		ButtonStyle:  req.ButtonStyle,
	})
	if err != nil {
		return err
	}

	s.hub.Publish(notify.SignalProfileChanged)
	return c.JSON(http.StatusOK, toUserResp(updated))
}

func (s *HTTPServer) PublicProfile(c echo.Context) error {
	handle, err := GetParam(c, "handle")
	if err != nil {
		return err
	}

	user, err := s.users.GetByHandle(handle)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			return c.NoContent(http.StatusNotFound)
		}
		return err
	}

	links, err := s.links.List(user, nil, nil, false)
	if err != nil {
		return err
	}

	resp := PublicProfileResp{
		Name:         user.Name,
		Handle:       user.Handle,
		ThemePalette: user.ThemePalette,
		ButtonStyle:  user.ButtonStyle,
		Links:        toLinkResps(links),
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) LinkList(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	var social *bool
	if v := c.QueryParam("social"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid query param 'social'")
		}
		social = &b
	}

	var groupID *uint64
	ungroupedOnly := false
	if v := c.QueryParam("group"); v != "" {
		if v == "none" {
			ungroupedOnly = true
		} else {
			id, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid query param 'group'")
			}
			groupID = &id
		}
	}

	links, err := s.links.List(user, social, groupID, ungroupedOnly)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, toLinkResps(links))
}

func (s *HTTPServer) LinkCreate(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	req := LinkCreateReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	model, err := s.links.Create(user, req.Title, req.URL, req.Order, req.IsSocial, req.GroupID)
	if err != nil {
		return err
	}

	s.hub.Publish(notify.SignalLinksChanged)
	return c.JSON(http.StatusCreated, toLinkResp(model))
}

func (s *HTTPServer) LinkUpdate(c echo.Context) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	req := LinkUpdateReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "title must not be empty")
	}
	if req.URL != nil && strings.TrimSpace(*req.URL) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url must not be empty")
	}

	model, err := s.links.Update(user, id, service.LinkPatch{
		Title:      req.Title,
		URL:        req.URL,
		Order:      req.Order,
		IsSocial:   req.IsSocial,
		Archived:   req.Archived,
		GroupID:    req.GroupID,
		ClearGroup: req.Ungroup,
	})
	if err != nil {
		if errors.Is(err, service.ErrLinkNotFound) {
			return c.NoContent(http.StatusNotFound)
		}
		return err
	}

	s.hub.Publish(notify.SignalLinksChanged)
	return c.JSON(http.StatusOK, toLinkResp(model))
}

func (s *HTTPServer) LinkDelete(c echo.Context) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	if err := s.links.Delete(user, id); err != nil {
		if errors.Is(err, service.ErrLinkNotFound) {
			return c.NoContent(http.StatusNotFound)
		}
		return err
	}

	s.hub.Publish(notify.SignalLinksChanged)
	return c.NoContent(http.StatusNoContent)
}

// LinkReorder is the bulk order persist: an ordered sequence of {id, order}
// pairs, each update constrained to rows the caller owns.
func (s *HTTPServer) LinkReorder(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	req := ReorderReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	items := make([]service.LinkOrder, len(req.Links))
	for i := range req.Links {
		items[i] = service.LinkOrder{ID: req.Links[i].ID, Order: req.Links[i].Order}
	}

	if err := s.links.Reorder(user, items); err != nil {
		return err
	}

	s.hub.Publish(notify.SignalLinksChanged)
	return c.JSON(http.StatusOK, map[string]string{"message": "order updated"})
}

// LinkBulkReorder accepts the legacy editor form: the full link objects in
// their new order. Only the order sequence is taken from the payload.
func (s *HTTPServer) LinkBulkReorder(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	req := ReorderReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	items := make([]service.LinkOrder, len(req.Links))
	for i := range req.Links {
		items[i] = service.LinkOrder{ID: req.Links[i].ID, Order: i}
	}

	if err := s.links.Reorder(user, items); err != nil {
		return err
	}

	s.hub.Publish(notify.SignalLinksChanged)
	return c.JSON(http.StatusOK, map[string]string{"message": "order updated"})
}

func (s *HTTPServer) GroupList(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	groups, err := s.groups.List(user.ID)
	if err != nil {
		return err
	}

	resp := make([]GroupResp, len(groups))
	for i := range groups {
		resp[i] = toGroupResp(&groups[i])
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) GroupCreate(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	req := GroupReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	order := 0
	if req.Order != nil {
		order = *req.Order
	}
	model, err := s.groups.Create(user.ID, req.Name, order)
	if err != nil {
		return err
	}

	s.hub.Publish(notify.SignalGroupsChanged)
	return c.JSON(http.StatusCreated, toGroupResp(model))
}

func (s *HTTPServer) GroupGet(c echo.Context) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	model, err := s.groups.Get(user.ID, id)
	if err != nil {
		if errors.Is(err, service.ErrGroupNotFound) {
			return c.NoContent(http.StatusNotFound)
		}
		return err
	}
	return c.JSON(http.StatusOK, toGroupResp(model))
}

func (s *HTTPServer) GroupUpdate(c echo.Context) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	req := GroupReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	model, err := s.groups.Update(user.ID, id, req.Name, req.Order)
	if err != nil {
		if errors.Is(err, service.ErrGroupNotFound) {
			return c.NoContent(http.StatusNotFound)
		}
		return err
	}

	s.hub.Publish(notify.SignalGroupsChanged)
	return c.JSON(http.StatusOK, toGroupResp(model))
}

func (s *HTTPServer) GroupDelete(c echo.Context) error {
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	if err := s.groups.Delete(user.ID, id); err != nil {
		if errors.Is(err, service.ErrGroupNotFound) {
			return c.NoContent(http.StatusNotFound)
		}
		return err
	}

	s.hub.Publish(notify.SignalGroupsChanged)
	s.hub.Publish(notify.SignalLinksChanged)
	return c.NoContent(http.StatusNoContent)
}

func (s *HTTPServer) AdminUserList(c echo.Context) error {
	users, err := s.users.List()
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, users)
}

func (s *HTTPServer) AdminUserAction(c echo.Context) error {
	req := AdminUserActionReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	var err error
	switch req.Action {
	case "promote":
		err = s.users.SetRole(req.UserID, db.RoleAdmin)
	case "demote":
		err = s.users.SetRole(req.UserID, db.RoleUser)
	case "delete":
		err = s.users.Delete(req.UserID)
	}
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			return c.NoContent(http.StatusNotFound)
		}
		return err
	}

	s.hub.Publish(notify.SignalUserChanged)
	return c.JSON(http.StatusOK, map[string]string{"message": "ok"})
}

// Analytics endpoints always answer 200: upstream trouble degrades to the
// zero-valued placeholder shape inside the client.
func (s *HTTPServer) AnalyticsViews(c echo.Context) error {
	handle := c.QueryParam("handle")
	if handle == "" {
		return c.NoContent(http.StatusNotFound)
	}
	return c.JSON(http.StatusOK, s.analytics.Views(c.Request().Context(), handle, c.QueryParam("filter")))
}

func (s *HTTPServer) AnalyticsDevices(c echo.Context) error {
	handle := c.QueryParam("handle")
	if handle == "" {
		return c.NoContent(http.StatusNotFound)
	}
	return c.JSON(http.StatusOK, s.analytics.Devices(c.Request().Context(), handle))
}

func (s *HTTPServer) AnalyticsLocations(c echo.Context) error {
	handle := c.QueryParam("handle")
	if handle == "" {
		return c.NoContent(http.StatusNotFound)
	}
	return c.JSON(http.StatusOK, s.analytics.Locations(c.Request().Context(), handle))
}

// Events streams change signals to other rendering contexts as SSE. No
// payload beyond the signal name: receivers refetch instead of trusting an
// embedded value.
func (s *HTTPServer) Events(c echo.Context) error {
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	ch, cancel := s.hub.Subscribe()
	defer cancel()

	for {
		select {
		case <-c.Request().Context().Done():
			return nil
		case sig, ok := <-ch:
			if !ok {
				return nil
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: {}\n\n", sig); err != nil {
				return nil
			}
			w.Flush()
		}
	}
}

func (s *HTTPServer) AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := bearerToken(c)
		if token == "" {
			return c.NoContent(http.StatusUnauthorized)
		}

		claims, err := s.issuer.Parse(token)
		if err != nil {
			return c.NoContent(http.StatusUnauthorized)
		}

		// the user row (and role) is reloaded on every request; claims are
		// only trusted for identity
		user, err := s.users.GetByID(claims.UserID)
		if err != nil {
			s.logger.Warnw("token for missing user", "uid", claims.UserID)
			return c.NoContent(http.StatusUnauthorized)
		}

		c.Set("user", user)
		return next(c)
	}
}

func (s *HTTPServer) AdminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		user, err := GetUserFromContext(c)
		if err != nil {
			return c.NoContent(http.StatusUnauthorized)
		}
		if user.Role != db.RoleAdmin {
			return echo.NewHTTPError(http.StatusForbidden, "no permission")
		}
		return next(c)
	}
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
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func GetUserFromContext(c echo.Context) (*db.User, error) {
	user, ok := c.Get("user").(*db.User)
	if !ok || user == nil {
		return nil, errors.New("no user found in context")
	}
	return user, nil
}

func GetParam(c echo.Context, name string) (string, error) {
	value := c.Param(name)
	if value == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid path param '%s'", name))
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
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid path param '%s'", name))
	}
	return vv, nil
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	// older clients send the raw token in X-Token
	return c.Request().Header.Get("X-Token")
}

// censorBody masks secret fields before a request body reaches the log.
func censorBody(body []byte) []byte {
	m := map[string]interface{}{}
	if err := json.Unmarshal(body, &m); err != nil {
		return []byte(`"$unparseable"`)
	}
	if _, ok := m["password"]; ok {
		m["password"] = "$censored"
	}
	out, err := json.Marshal(m)
	if err != nil {
		return []byte(`"$unparseable"`)
	}
	return out
}

func toUserResp(u *db.User) UserResp {
	return UserResp{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		Handle:       u.Handle,
		Role:         u.Role,
		ThemePalette: u.ThemePalette,
		ButtonStyle:  u.ButtonStyle,
		TotalViews:   u.TotalViews,
		CreatedAt:    u.CreatedAt,
	}
}

func toLinkResp(l *db.Link) LinkResp {
	return LinkResp{
		ID:        l.ID,
		Title:     l.Title,
		URL:       l.URL,
		Order:     l.Order,
		IsSocial:  l.IsSocial,
		Archived:  l.Archived,
		GroupID:   l.GroupID,
		CreatedAt: l.CreatedAt,
	}
}

func toLinkResps(links []db.Link) []LinkResp {
	resp := make([]LinkResp, len(links))
	for i := range links {
		resp[i] = toLinkResp(&links[i])
	}
	return resp
}

func toGroupResp(g *db.LinkGroup) GroupResp {
	return GroupResp{
		ID:    g.ID,
		Name:  g.Name,
		Order: g.Order,
	}
}
