package forms

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"useradmin/internal/models"
)

// UserForm backs the user creation page and the JSON create endpoint.
type UserForm struct {
	FirstName   string `form:"first_name" binding:"max=150"`
	LastName    string `form:"last_name" binding:"max=150"`
	Email       string `form:"email" binding:"omitempty,email,max=254"`
	IsSuperuser string `form:"is_superuser"`
	Username    string `form:"username" binding:"required,max=150,username"`
	Password    string `form:"password" binding:"required,min=8,bcryptlen"`
	Role        string `form:"role" binding:"omitempty,profilerole"`

	Errors Errors `form:"-"`
}

// RoleChoice is one <option> of the role select.
type RoleChoice struct {
	Value    string
	Label    string
	Selected bool
}

// NewUserForm returns an unbound form with the default role selected.
func NewUserForm() *UserForm {
	return &UserForm{Role: string(models.DefaultRole), Errors: Errors{}}
}

// Bind maps the request form into f and validates it. It reports whether
// the form is valid; messages land in f.Errors either way.
func (f *UserForm) Bind(c *gin.Context) bool {
	RegisterValidators()
	if err := c.ShouldBindWith(f, binding.Form); err != nil {
		// Values are mapped before validation runs, so validation failures
		// are re-checked on the normalized form below.
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			f.Errors = FromBinding(err)
			return false
		}
	}
	return f.Validate()
}

// Validate runs the binding rules on an already populated form.
func (f *UserForm) Validate() bool {
	RegisterValidators()
	f.normalize()
	f.Errors = FromBinding(binding.Validator.ValidateStruct(f))
	return !f.Errors.Any()
}

func (f *UserForm) normalize() {
	f.FirstName = strings.TrimSpace(f.FirstName)
	f.LastName = strings.TrimSpace(f.LastName)
	f.Email = strings.ToLower(strings.TrimSpace(f.Email))
	f.Username = strings.TrimSpace(f.Username)
}

// Superuser interprets the checkbox value.
func (f *UserForm) Superuser() bool {
	switch strings.ToLower(f.IsSuperuser) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

// ProfileRole returns the selected role or the default one.
func (f *UserForm) ProfileRole() models.ProfileRole {
	if f.Role == "" {
		return models.DefaultRole
	}
	return models.ProfileRole(f.Role)
}

func (f *UserForm) RoleChoices() []RoleChoice {
	selected := f.ProfileRole()
	out := make([]RoleChoice, 0, len(models.Roles()))
	for _, r := range models.Roles() {
		out = append(out, RoleChoice{Value: string(r), Label: r.Label(), Selected: r == selected})
	}
	return out
}

// LoginForm backs the login page.
type LoginForm struct {
	Username string `form:"username" json:"username" binding:"required"`
	Password string `form:"password" json:"password" binding:"required"`
	Next     string `form:"next" json:"-"`

	Errors Errors `form:"-" json:"-"`
}
