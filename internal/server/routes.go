package server

import (
	"errors"
	"net/http"

	"github.com/berfenger/apsystems2mqtt/internal/core/domain"

	"github.com/carlmjohnson/versioninfo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type inverterReadingsView struct {
	Inverter domain.Inverter  `json:"inverter"`
	Readings []domain.Reading `json:"readings"`
}

type errorView struct {
	Error string `json:"error"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/version", s.VersionHandler)

	api := e.Group("/api")
	api.GET("/inverters", s.InvertersHandler)
	api.GET("/inverters/:id/readings", s.InverterReadingsHandler)
	api.POST("/inverters/:id/refresh", s.InverterRefreshHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, ACTOR_REQUEST_TIMEOUT).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) VersionHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"version":  versioninfo.Short(),
		"revision": versioninfo.Revision,
	})
}

func (s *Server) InvertersHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetInvertersRequest{}, ACTOR_REQUEST_TIMEOUT).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorView{Error: err.Error()})
	}
	response, ok := res.(domain.GetInvertersResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorView{Error: "unexpected response"})
	}
	if response.HasResponseError() {
		return c.JSON(http.StatusInternalServerError, errorView{Error: response.GetResponseError().Error()})
	}
	inverters := response.Inverters
	if inverters == nil {
		inverters = []domain.Inverter{}
	}
	return c.JSON(http.StatusOK, inverters)
}

func (s *Server) InverterReadingsHandler(c echo.Context) error {
	req := domain.GetInverterReadingsRequest{InverterId: c.Param("id")}
	res, err := s.rootContext.RequestFuture(s.masterActor, req, ACTOR_REQUEST_TIMEOUT).Result()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, errorView{Error: err.Error()})
	}
	response, ok := res.(domain.GetInverterReadingsResponse)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorView{Error: "unexpected response"})
	}
	if response.HasResponseError() {
		status := http.StatusInternalServerError
		if errors.Is(response.GetResponseError(), domain.ErrInverterNotFound) {
			status = http.StatusNotFound
		}
		return c.JSON(status, errorView{Error: response.GetResponseError().Error()})
	}
	readings := response.Readings
	if readings == nil {
		readings = []domain.Reading{}
	}
	return c.JSON(http.StatusOK, inverterReadingsView{Inverter: response.Inverter, Readings: readings})
}

func (s *Server) InverterRefreshHandler(c echo.Context) error {
	s.rootContext.Send(s.masterActor, domain.RefreshInverterRequest{InverterId: c.Param("id")})
	return c.NoContent(http.StatusAccepted)
}
