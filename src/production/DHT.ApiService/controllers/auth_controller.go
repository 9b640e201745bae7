package controllers

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	logger "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Logger"
	metrics "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Metrics"
	api_models "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models/api"
	"gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Models/apperrors"
	interfaces "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Repository/Interfaces"
	session "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Session"
	validation "gitlab.com/maplesense1/dht.sensor_gateway/src/production/DHT.Validation"
	"golang.org/x/crypto/bcrypt"
)

// Auth endpoint messages
const (
	MsgLoginUnavailable    = "Database service unavailable. Please try again later."
	MsgLoginPrepareFailed  = "An internal error occurred during login preparation."
	MsgLoginExecuteFailed  = "An internal error occurred during login execution."
	MsgLoginSuccessful     = "Login successful"
	MsgUsernameTaken       = "Username already exists"
	MsgRegistrationOK      = "Registration successful. Please login."
	MsgRegistrationFailed  = "Registration failed. Please try again later."
	MsgSessionNotPersisted = "Login could not be completed. Please try again."
)

// bcrypt only reads the first 72 bytes of a password
const maxPasswordBytes = 72

// fallbackHash is a valid cost-10 hash used when the placeholder hash
// cannot be generated
const fallbackHash = "$2y$10$.vGA1O9wmRjrwAVXD98HNOgsNpDczlqm3Jq7KnEd1rVAGv3Fykk1a"

// AuthController handles login and registration for the mobile app
type AuthController struct {
	store    interfaces.Store
	sessions session.Store
	cost     int
	logger   *logger.Logger
	guards   RouteGuards

	dummyOnce sync.Once
	dummyHash []byte
}

// NewAuthController creates a new auth controller. cost is the bcrypt work
// factor for new password hashes.
func NewAuthController(store interfaces.Store, sessions session.Store, cost int, logger *logger.Logger, guards RouteGuards) *AuthController {
	return &AuthController{
		store:    store,
		sessions: sessions,
		cost:     cost,
		logger:   logger.WithComponent("auth_controller"),
		guards:   guards,
	}
}

// RegisterRoutes registers the auth routes with Gin
func (h *AuthController) RegisterRoutes(router *gin.Engine, legacy bool) {
	login := append(h.guards.session(), h.Login)

	router.Any("/api/login", login...)
	router.Any("/api/register", h.Register)
	if legacy {
		router.Any("/backend/login.php", login...)
		router.Any("/backend/register.php", h.Register)
	}
}

type credentialsRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

// credentials reads username and password from a form or JSON body
func credentials(c *gin.Context) (string, string) {
	var req credentialsRequest
	if strings.HasPrefix(c.ContentType(), gin.MIMEJSON) {
		_ = c.ShouldBindJSON(&req)
	} else {
		req.Username = c.PostForm("username")
		req.Password = c.PostForm("password")
	}
	return req.Username, req.Password
}

// Login verifies the credentials and binds the user to the session
func (h *AuthController) Login(c *gin.Context) {
	log := requestLogger(c, h.logger)

	gw, ok := acquireGateway(c, h.store, log, MsgLoginUnavailable)
	if !ok {
		return
	}
	defer gw.Close()

	if c.Request.Method != http.MethodPost {
		respondError(c, &apperrors.Error{Kind: apperrors.KindMethod})
		return
	}

	username, password := credentials(c)
	if err := validation.ParseCredentials(username, password); err != nil {
		respondError(c, err)
		return
	}

	ctx := c.Request.Context()
	user, err := gw.FindUserByUsername(ctx, username)
	if err != nil {
		metrics.RecordLogin("error")
		message := MsgLoginExecuteFailed
		if apperrors.StageOf(err) == apperrors.StagePrepare {
			message = MsgLoginPrepareFailed
		}
		c.JSON(http.StatusInternalServerError, api_models.Failure(message))
		return
	}

	if user == nil {
		// same cost as a real check so unknown users are not distinguishable by timing
		_ = bcrypt.CompareHashAndPassword(h.dummy(), passwordBytes(password))
		metrics.RecordLogin("invalid")
		respondError(c, &apperrors.Error{Kind: apperrors.KindAuth, Err: apperrors.ErrInvalidLogin})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), passwordBytes(password)); err != nil {
		metrics.RecordLogin("invalid")
		respondError(c, &apperrors.Error{Kind: apperrors.KindAuth, Err: apperrors.ErrInvalidLogin})
		return
	}

	if sess := session.FromContext(c); sess != nil {
		// re-read so a concurrent rate limiter update is not overwritten
		current, err := h.sessions.Get(ctx, sess.ID)
		if err != nil {
			current = sess
		}
		current.UserID = user.ID
		current.Username = user.Username
		current.Role = user.Role
		if err := h.sessions.Save(ctx, current); err != nil {
			log.Logger.Error().Err(err).Str("username", user.Username).Msg("Failed to persist login session")
			c.JSON(http.StatusInternalServerError, api_models.Failure(MsgSessionNotPersisted))
			return
		}
	}

	metrics.RecordLogin("success")
	log.Logger.Info().Str("username", user.Username).Str("role", user.Role).Msg("User logged in")
	c.JSON(http.StatusOK, api_models.Success(MsgLoginSuccessful, api_models.LoginData{
		Username: user.Username,
		Role:     user.Role,
	}))
}

// Register creates a user account. Logical failures are answered with 200
// and an error envelope because deployed app versions only read the body.
func (h *AuthController) Register(c *gin.Context) {
	log := requestLogger(c, h.logger)

	gw, ok := acquireGateway(c, h.store, log, MsgConnectionFailed)
	if !ok {
		return
	}
	defer gw.Close()

	username, password := credentials(c)
	if err := validation.ParseCredentials(username, password); err != nil {
		metrics.RecordRegistration("invalid")
		c.JSON(http.StatusOK, api_models.Failure(validation.MsgMissingCredentials))
		return
	}

	ctx := c.Request.Context()
	existing, err := gw.FindUserByUsername(ctx, username)
	if err != nil {
		metrics.RecordRegistration("error")
		c.JSON(http.StatusOK, api_models.Failure(MsgRegistrationFailed))
		return
	}
	if existing != nil {
		metrics.RecordRegistration("exists")
		c.JSON(http.StatusOK, api_models.Failure(MsgUsernameTaken))
		return
	}

	hash, err := bcrypt.GenerateFromPassword(passwordBytes(password), h.cost)
	if err != nil {
		metrics.RecordRegistration("error")
		log.Logger.Warn().Err(err).Msg("Password hashing failed")
		c.JSON(http.StatusOK, api_models.Failure(MsgRegistrationFailed))
		return
	}

	if err := gw.InsertUser(ctx, username, string(hash)); err != nil {
		if errors.Is(err, apperrors.ErrUsernameTaken) {
			// lost a race with a concurrent registration
			metrics.RecordRegistration("exists")
			c.JSON(http.StatusOK, api_models.Failure(MsgUsernameTaken))
			return
		}
		metrics.RecordRegistration("error")
		c.JSON(http.StatusOK, api_models.Failure(MsgRegistrationFailed))
		return
	}

	metrics.RecordRegistration("success")
	log.Logger.Info().Str("username", username).Msg("User registered")
	c.JSON(http.StatusOK, api_models.Success(MsgRegistrationOK, nil))
}

// passwordBytes truncates to what bcrypt hashes, so long passwords
// register and log in instead of failing with ErrPasswordTooLong
func passwordBytes(password string) []byte {
	b := []byte(password)
	if len(b) > maxPasswordBytes {
		b = b[:maxPasswordBytes]
	}
	return b
}

func (h *AuthController) dummy() []byte {
	h.dummyOnce.Do(func() {
		hash, err := bcrypt.GenerateFromPassword([]byte("dht-gateway-placeholder"), h.cost)
		if err != nil {
			h.logger.Logger.Warn().Err(err).Int("cost", h.cost).Msg("Placeholder hash failed, using fallback")
			hash = []byte(fallbackHash)
		}
		h.dummyHash = hash
	})
	return h.dummyHash
}
