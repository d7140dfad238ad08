package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"user-manager/internal/usecase/user"
	pkgerrors "user-manager/pkg/errors"
	"user-manager/pkg/logger"
)

// UpdatedMessage is the body of a successful update.
const UpdatedMessage = "Updated the User"

// UserHandler handles HTTP requests for user operations
type UserHandler struct {
	uc  user.Usecase
	log *zap.Logger
}

// NewUserHandler creates a new UserHandler instance
func NewUserHandler(uc user.Usecase, log *zap.Logger) *UserHandler {
	return &UserHandler{
		uc:  uc,
		log: log,
	}
}

// UserRequest is the JSON body of create and update. ID is accepted for
// compatibility but the store or the path decides the real one.
type UserRequest struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// UserResponse represents the HTTP response for user data
type UserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// UpdateResponse is returned by a successful update.
type UpdateResponse struct {
	Response string `json:"response"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ListUsers handles GET /users
func (h *UserHandler) ListUsers(c *gin.Context) {
	resp, err := h.uc.ListUsers(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}

	users := make([]UserResponse, len(resp.Users))
	for i, u := range resp.Users {
		users[i] = toResponse(u)
	}

	c.JSON(http.StatusOK, users)
}

// CreateUser handles POST /users/create
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid_request", "Request body must be a JSON user", err)
		return
	}

	resp, err := h.uc.CreateUser(c.Request.Context(), user.CreateUserRequest{
		Username: req.Username,
		Email:    req.Email,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, toResponse(resp.User))
}

// UpdateUser handles PUT /users/update/:id
func (h *UserHandler) UpdateUser(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	var req UserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid_request", "Request body must be a JSON user", err)
		return
	}

	_, err := h.uc.UpdateUser(c.Request.Context(), user.UpdateUserRequest{
		ID:       id,
		Username: req.Username,
		Email:    req.Email,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, UpdateResponse{Response: UpdatedMessage})
}

// GetUser handles GET /users/find/:id
func (h *UserHandler) GetUser(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	resp, err := h.uc.GetUser(c.Request.Context(), user.GetUserRequest{ID: id})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, toResponse(resp.User))
}

// DeleteUser handles DELETE /users/delete/:id
func (h *UserHandler) DeleteUser(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}

	if _, err := h.uc.DeleteUser(c.Request.Context(), user.DeleteUserRequest{ID: id}); err != nil {
		h.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *UserHandler) pathID(c *gin.Context) (int64, bool) {
	idStr := c.Param("id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		h.badRequest(c, "invalid_id", "User ID must be a valid number", err)
		return 0, false
	}
	return id, true
}

func (h *UserHandler) badRequest(c *gin.Context, code, message string, err error) {
	logger.WithContext(c.Request.Context(), h.log).Warn("bad request",
		zap.String("error", code),
		zap.String("path", c.Request.URL.Path),
		zap.NamedError("cause", err),
	)
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: code, Message: message})
}

// handleError converts usecase errors to HTTP responses. Only client errors
// echo their message.
func (h *UserHandler) handleError(c *gin.Context, err error) {
	code := http.StatusInternalServerError
	var typed pkgerrors.HTTPStatuser
	if errors.As(err, &typed) {
		code = typed.HTTPStatus()
	}

	switch code {
	case http.StatusBadRequest:
		c.JSON(code, ErrorResponse{Error: "invalid_input", Message: typed.Error()})
	case http.StatusNotFound:
		c.JSON(code, ErrorResponse{Error: "not_found", Message: typed.Error()})
	default:
		logger.WithContext(c.Request.Context(), h.log).Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
	}
}

func toResponse(u user.User) UserResponse {
	return UserResponse{ID: u.ID, Username: u.Username, Email: u.Email}
}
