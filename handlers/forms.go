package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"notex/auth"
)

var errTitleRequired = errors.New("title is required")

type registerForm struct {
	Username        string
	Password        string
	CaptchaID       string
	CaptchaSolution string
}

func parseRegisterForm(r *http.Request) registerForm {
	return registerForm{
		Username:        strings.TrimSpace(r.FormValue("username")),
		Password:        r.FormValue("password"),
		CaptchaID:       r.FormValue("captcha_id"),
		CaptchaSolution: r.FormValue("captcha_solution"),
	}
}

// validate returns the i18n key of the first problem, or "".
func (f registerForm) validate() string {
	if f.Username == "" {
		return "UsernameRequired"
	}
	if err := auth.ValidatePassword(f.Password); err != nil {
		return "PasswordTooShort"
	}
	return ""
}

type noteForm struct {
	ID          int64
	Title       string
	Description string
}

// parseNoteForm validates the note fields before anything reaches the
// store: the title is required, the description defaults to empty.
func parseNoteForm(r *http.Request, withID bool) (noteForm, error) {
	form := noteForm{
		Title:       strings.TrimSpace(r.FormValue("title")),
		Description: r.FormValue("description"),
	}
	if form.Title == "" {
		return form, errTitleRequired
	}
	if withID {
		id, err := strconv.ParseInt(r.FormValue("id"), 10, 64)
		if err != nil {
			return form, err
		}
		form.ID = id
	}
	return form, nil
}
