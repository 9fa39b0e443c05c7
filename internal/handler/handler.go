package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/zap"

	"github.com/eventium/auth-service/config"
	"github.com/eventium/auth-service/internal/errs"
	"github.com/eventium/auth-service/internal/model"
	"github.com/eventium/auth-service/pkg/auth"
	md "github.com/eventium/auth-service/pkg/middleware"
	"github.com/eventium/auth-service/pkg/validate"
	_ "github.com/eventium/auth-service/swagger"
)

type Handler struct {
	authSvc AuthService
	cfg     config.Auth
	log     *zap.Logger
}

func New(authSvc AuthService, cfg config.Auth, log *zap.Logger) *Handler {
	return &Handler{
		authSvc: authSvc,
		cfg:     cfg,
		log:     log,
	}
}

func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
		AllowCredentials: true,
	}))

	base := e.Group("", md.NewRateLimiter(baseRPS))
	base.GET("/manage/health", h.Health)
	base.GET("/swagger/*", echoSwagger.WrapHandler)

	e.Validator = validate.NewCustomValidator()
	api := e.Group("/api/v1",
		middleware.RequestLoggerWithConfig(md.RequestLoggerConfig()),
		middleware.RequestID(),
		md.NewRateLimiter(apiRPS),
	)

	api.POST("/register", h.Register)
	api.POST("/register/verify", h.VerifyRegistration)
	api.POST("/register/resend-otp", h.ResendRegistrationOTP)
	api.POST("/login", h.Login)
	api.POST("/login/verify", h.VerifyLogin)
	api.POST("/login/resend-otp", h.ResendLoginOTP)
	api.POST("/token/refresh", h.RefreshToken)

	api.GET("/me", h.CurrentUser, md.JwtAuthentication([]byte(h.cfg.JWTSecret)))

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (h *Handler) Register(c echo.Context) error {
	var req model.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	user, err := h.authSvc.Register(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, user)
}

func (h *Handler) VerifyRegistration(c echo.Context) error {
	var req model.VerifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	verified, err := h.authSvc.VerifyRegistration(c.Request().Context(), req.Email, req.OTP)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, verified)
}

func (h *Handler) Login(c echo.Context) error {
	var req model.LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	user, err := h.authSvc.Login(c.Request().Context(), req.Email)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, model.MessageResponse{Message: "OTP sent", Data: user})
}

func (h *Handler) VerifyLogin(c echo.Context) error {
	var req model.VerifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	result, err := h.authSvc.VerifyLogin(c.Request().Context(), req.Email, req.OTP)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, model.MessageResponse{Message: "OTP verified", Data: result})
}

func (h *Handler) ResendRegistrationOTP(c echo.Context) error {
	var req model.LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	user, err := h.authSvc.ResendRegistrationOTP(c.Request().Context(), req.Email)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, model.MessageResponse{Message: "OTP resent", Data: user})
}

func (h *Handler) ResendLoginOTP(c echo.Context) error {
	var req model.LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	user, err := h.authSvc.ResendLoginOTP(c.Request().Context(), req.Email)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, model.MessageResponse{Message: "OTP resent", Data: user})
}

func (h *Handler) RefreshToken(c echo.Context) error {
	var req model.RefreshTokenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	pair, err := h.authSvc.RefreshToken(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pair)
}

func (h *Handler) CurrentUser(c echo.Context) error {
	id, err := auth.UserID(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}

	user, err := h.authSvc.CurrentUser(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, user)
}

// httpError maps domain errors to statuses. Unrecognized failures surface as
// 500 keeping the original message for diagnostics; raw storage and provider
// errors never reach the caller untranslated.
func httpError(err error) *echo.HTTPError {
	switch {
	case errs.IsUnauthorized(err):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errs.IsConflict(err), errs.IsNotFound(err), errs.IsValidation(err):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
