package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"useradmin/internal/auth"
	"useradmin/internal/forms"
	"useradmin/internal/rbac"
	"useradmin/internal/users"
)

// UserListPage renders the user listing.
func UserListPage(svc *users.Service, chk rbac.Checker) gin.HandlerFunc {
	return func(c *gin.Context) {
		q := users.ListQuery{Query: c.Query("q"), Page: queryInt(c, "page"), PageSize: queryInt(c, "page_size")}
		page, err := svc.List(c.Request.Context(), q)
		if err != nil {
			_ = c.Error(err)
			c.String(http.StatusInternalServerError, "failed to list users")
			return
		}

		var canToggle bool
		if cl, ok := auth.ClaimsFrom(c); ok {
			canToggle, _ = chk.Can(c.Request.Context(), cl.UserID, rbac.PermToggleUser)
		}
		render(c, http.StatusOK, "user_list.tmpl", gin.H{
			"title":      "Users",
			"page":       page,
			"query":      q.Query,
			"can_toggle": canToggle,
		})
	}
}

// UserCreatePage shows the creation form on GET and handles its submission
// on POST. Invalid submissions re-render the form with errors.
func UserCreatePage(svc *users.Service, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		f := forms.NewUserForm()
		if c.Request.Method != http.MethodPost {
			render(c, http.StatusOK, "user_form.tmpl", gin.H{"title": "New user", "form": f})
			return
		}

		if !f.Bind(c) {
			render(c, http.StatusOK, "user_form.tmpl", gin.H{"title": "New user", "form": f})
			return
		}

		cl, _ := auth.ClaimsFrom(c)
		if _, err := svc.Create(c.Request.Context(), cl.UserID, f); err != nil {
			if field, ok := fieldError(err); ok {
				f.Errors.Add(field, err.Error()+".")
				render(c, http.StatusOK, "user_form.tmpl", gin.H{"title": "New user", "form": f})
				return
			}
			log.Error("create user failed", zap.Error(err))
			f.Errors.Add(forms.NonFieldErrors, "The user could not be saved. Try again.")
			render(c, http.StatusInternalServerError, "user_form.tmpl", gin.H{"title": "New user", "form": f})
			return
		}
		c.Redirect(http.StatusFound, "/users")
	}
}

// UserTogglePage flips the target's active flag and returns to the listing.
// Targeting yourself changes nothing.
func UserTogglePage(svc *users.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			notFound(c, "user not found")
			return
		}
		cl, _ := auth.ClaimsFrom(c)
		if _, _, err := svc.ToggleActive(c.Request.Context(), cl.UserID, id); err != nil {
			if errors.Is(err, users.ErrUserNotFound) {
				notFound(c, "user not found")
				return
			}
			_ = c.Error(err)
			c.String(http.StatusInternalServerError, "failed to update user")
			return
		}
		c.Redirect(http.StatusFound, "/users")
	}
}

// ListUsers returns one page of users.
func ListUsers(svc *users.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := svc.List(c.Request.Context(), users.ListQuery{
			Query:    c.Query("q"),
			Page:     queryInt(c, "page"),
			PageSize: queryInt(c, "page_size"),
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

type createUserRequest struct {
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Email       string `json:"email"`
	IsSuperuser bool   `json:"is_superuser"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	Role        string `json:"role"`
}

// CreateUser inserts a new user from a JSON body.
func CreateUser(svc *users.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var in createUserRequest
		if err := c.ShouldBindJSON(&in); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		f := &forms.UserForm{
			FirstName:   in.FirstName,
			LastName:    in.LastName,
			Email:       in.Email,
			IsSuperuser: strconv.FormatBool(in.IsSuperuser),
			Username:    in.Username,
			Password:    in.Password,
			Role:        in.Role,
		}
		if !f.Validate() {
			c.JSON(http.StatusBadRequest, gin.H{"errors": f.Errors})
			return
		}

		cl, _ := auth.ClaimsFrom(c)
		user, err := svc.Create(c.Request.Context(), cl.UserID, f)
		if err != nil {
			if field, ok := fieldError(err); ok {
				c.JSON(http.StatusBadRequest, gin.H{"errors": forms.Errors{field: {err.Error() + "."}}})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"user": user})
	}
}

// ToggleUser flips a user's active flag.
func ToggleUser(svc *users.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := paramID(c)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		cl, _ := auth.ClaimsFrom(c)
		user, changed, err := svc.ToggleActive(c.Request.Context(), cl.UserID, id)
		if err != nil {
			if errors.Is(err, users.ErrUserNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user": user, "changed": changed})
	}
}

// fieldError maps service errors that belong to one form field.
func fieldError(err error) (string, bool) {
	switch {
	case errors.Is(err, users.ErrUsernameTaken):
		return "username", true
	case errors.Is(err, users.ErrPasswordTooLong):
		return "password", true
	}
	return "", false
}
