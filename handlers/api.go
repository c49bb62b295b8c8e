package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"notex/auth"
	"notex/db"
)

type APIResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func sendJSONResponse(w http.ResponseWriter, status int, response APIResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

func (a *App) apiUser(r *http.Request) (int64, bool) {
	token := r.Header.Get("X-API-Token")
	if token == "" {
		return 0, false
	}
	return a.store.UserForAPIToken(token)
}

func (a *App) APIRegisterHandler(w http.ResponseWriter, r *http.Request) {
	lang := a.i18n.Detect(r)
	if r.Method != http.MethodPost {
		sendJSONResponse(w, http.StatusMethodNotAllowed, APIResponse{Status: "error", Message: a.i18n.T(lang, "MethodNotAllowed")})
		return
	}

	ip := getClientIP(r)
	if !a.signupLimiter.Allow(ip) {
		sendJSONResponse(w, http.StatusTooManyRequests, APIResponse{Status: "error", Message: a.i18n.T(lang, "TooManyAttempts")})
		return
	}

	var input struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendJSONResponse(w, http.StatusBadRequest, APIResponse{Status: "error", Message: a.i18n.T(lang, "InvalidRequestBody")})
		return
	}

	if input.Username == "" {
		sendJSONResponse(w, http.StatusBadRequest, APIResponse{Status: "error", Message: a.i18n.T(lang, "UsernameRequired")})
		return
	}
	if err := auth.ValidatePassword(input.Password); err != nil {
		sendJSONResponse(w, http.StatusBadRequest, APIResponse{Status: "error", Message: a.i18n.T(lang, "PasswordTooShort")})
		return
	}

	id, err := a.store.CreateUser(input.Username, input.Password)
	if errors.Is(err, db.ErrUsernameTaken) {
		sendJSONResponse(w, http.StatusConflict, APIResponse{Status: "error", Message: a.i18n.T(lang, "UsernameAlreadyExists")})
		return
	}
	if err != nil {
		log.Printf("Error creating user (API): %v", err)
		sendJSONResponse(w, http.StatusInternalServerError, APIResponse{Status: "error", Message: a.i18n.T(lang, "InternalServerError")})
		return
	}

	// Record signup attempt to limit rate of creation per IP
	a.signupLimiter.RecordFailure(ip)

	token := auth.NewToken()
	if err := a.store.InsertAPIToken(token, id); err != nil {
		log.Printf("Error persisting API token: %v", err)
		sendJSONResponse(w, http.StatusInternalServerError, APIResponse{Status: "error", Message: a.i18n.T(lang, "InternalServerError")})
		return
	}

	sendJSONResponse(w, http.StatusCreated, APIResponse{
		Status: "success",
		Data: map[string]any{
			"token":    token,
			"user_id":  id,
			"username": input.Username,
		},
	})
}

func (a *App) APILoginHandler(w http.ResponseWriter, r *http.Request) {
	lang := a.i18n.Detect(r)
	if r.Method != http.MethodPost {
		sendJSONResponse(w, http.StatusMethodNotAllowed, APIResponse{Status: "error", Message: a.i18n.T(lang, "MethodNotAllowed")})
		return
	}

	ip := getClientIP(r)
	if !a.loginLimiter.Allow(ip) {
		sendJSONResponse(w, http.StatusTooManyRequests, APIResponse{Status: "error", Message: a.i18n.T(lang, "TooManyAttempts")})
		return
	}

	var input struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendJSONResponse(w, http.StatusBadRequest, APIResponse{Status: "error", Message: a.i18n.T(lang, "InvalidRequestBody")})
		return
	}

	userID, err := a.store.Authenticate(input.Username, input.Password)
	if err != nil {
		a.loginLimiter.RecordFailure(ip)
		sendJSONResponse(w, http.StatusUnauthorized, APIResponse{Status: "error", Message: a.i18n.T(lang, "InvalidCredentials")})
		return
	}

	a.loginLimiter.Reset(ip)

	token := auth.NewToken()
	if err := a.store.InsertAPIToken(token, userID); err != nil {
		log.Printf("Error persisting API token: %v", err)
		sendJSONResponse(w, http.StatusInternalServerError, APIResponse{Status: "error", Message: a.i18n.T(lang, "InternalServerError")})
		return
	}

	sendJSONResponse(w, http.StatusOK, APIResponse{
		Status: "success",
		Data: map[string]any{
			"token":    token,
			"user_id":  userID,
			"username": input.Username,
		},
	})
}

func (a *App) APIListNotesHandler(w http.ResponseWriter, r *http.Request) {
	lang := a.i18n.Detect(r)
	userID, ok := a.apiUser(r)
	if !ok {
		sendJSONResponse(w, http.StatusUnauthorized, APIResponse{Status: "error", Message: a.i18n.T(lang, "Unauthorized")})
		return
	}

	// ?id=N fetches a single note; the combined id+owner lookup keeps a
	// foreign note indistinguishable from a missing one.
	if idParam := r.URL.Query().Get("id"); idParam != "" {
		id, err := strconv.ParseInt(idParam, 10, 64)
		if err != nil {
			sendJSONResponse(w, http.StatusBadRequest, APIResponse{Status: "error", Message: a.i18n.T(lang, "InvalidRequestBody")})
			return
		}
		note, err := a.store.NoteByOwner(id, userID)
		if errors.Is(err, db.ErrNoteNotFound) {
			sendJSONResponse(w, http.StatusNotFound, APIResponse{Status: "error", Message: a.i18n.T(lang, "NoteNotFound")})
			return
		}
		if err != nil {
			log.Printf("Error fetching note (API): %v", err)
			sendJSONResponse(w, http.StatusInternalServerError, APIResponse{Status: "error", Message: a.i18n.T(lang, "InternalServerError")})
			return
		}
		sendJSONResponse(w, http.StatusOK, APIResponse{Status: "success", Data: note})
		return
	}

	notes, err := a.store.NotesByOwner(userID)
	if err != nil {
		log.Printf("Error listing notes (API): %v", err)
		sendJSONResponse(w, http.StatusInternalServerError, APIResponse{Status: "error", Message: a.i18n.T(lang, "InternalServerError")})
		return
	}

	sendJSONResponse(w, http.StatusOK, APIResponse{Status: "success", Data: notes})
}

func (a *App) APICreateNoteHandler(w http.ResponseWriter, r *http.Request) {
	lang := a.i18n.Detect(r)
	userID, ok := a.apiUser(r)
	if !ok {
		sendJSONResponse(w, http.StatusUnauthorized, APIResponse{Status: "error", Message: a.i18n.T(lang, "Unauthorized")})
		return
	}

	var input struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendJSONResponse(w, http.StatusBadRequest, APIResponse{Status: "error", Message: a.i18n.T(lang, "InvalidRequestBody")})
		return
	}
	if input.Title == "" {
		sendJSONResponse(w, http.StatusBadRequest, APIResponse{Status: "error", Message: a.i18n.T(lang, "TitleRequired")})
		return
	}

	id, err := a.store.CreateNote(userID, input.Title, input.Description)
	if err != nil {
		log.Printf("Error creating note (API): %v", err)
		sendJSONResponse(w, http.StatusInternalServerError, APIResponse{Status: "error", Message: a.i18n.T(lang, "InternalServerError")})
		return
	}

	sendJSONResponse(w, http.StatusCreated, APIResponse{Status: "success", Data: map[string]int64{"id": id}})
}

func (a *App) APIUpdateNoteHandler(w http.ResponseWriter, r *http.Request) {
	lang := a.i18n.Detect(r)
	userID, ok := a.apiUser(r)
	if !ok {
		sendJSONResponse(w, http.StatusUnauthorized, APIResponse{Status: "error", Message: a.i18n.T(lang, "Unauthorized")})
		return
	}

	var input struct {
		ID          int64  `json:"id"`
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendJSONResponse(w, http.StatusBadRequest, APIResponse{Status: "error", Message: a.i18n.T(lang, "InvalidRequestBody")})
		return
	}
	if input.Title == "" {
		sendJSONResponse(w, http.StatusBadRequest, APIResponse{Status: "error", Message: a.i18n.T(lang, "TitleRequired")})
		return
	}

	err := a.store.UpdateNote(input.ID, userID, input.Title, input.Description)
	if errors.Is(err, db.ErrNoteNotFound) {
		sendJSONResponse(w, http.StatusNotFound, APIResponse{Status: "error", Message: a.i18n.T(lang, "NoteNotFound")})
		return
	}
	if err != nil {
		log.Printf("Error updating note (API): %v", err)
		sendJSONResponse(w, http.StatusInternalServerError, APIResponse{Status: "error", Message: a.i18n.T(lang, "InternalServerError")})
		return
	}

	sendJSONResponse(w, http.StatusOK, APIResponse{Status: "success", Message: a.i18n.T(lang, "NoteUpdated")})
}

func (a *App) APIDeleteNoteHandler(w http.ResponseWriter, r *http.Request) {
	lang := a.i18n.Detect(r)
	userID, ok := a.apiUser(r)
	if !ok {
		sendJSONResponse(w, http.StatusUnauthorized, APIResponse{Status: "error", Message: a.i18n.T(lang, "Unauthorized")})
		return
	}

	var input struct {
		ID int64 `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		sendJSONResponse(w, http.StatusBadRequest, APIResponse{Status: "error", Message: a.i18n.T(lang, "InvalidRequestBody")})
		return
	}

	err := a.store.DeleteNote(input.ID, userID)
	if errors.Is(err, db.ErrNoteNotFound) {
		sendJSONResponse(w, http.StatusNotFound, APIResponse{Status: "error", Message: a.i18n.T(lang, "NoteNotFound")})
		return
	}
	if err != nil {
		log.Printf("Error deleting note (API): %v", err)
		sendJSONResponse(w, http.StatusInternalServerError, APIResponse{Status: "error", Message: a.i18n.T(lang, "InternalServerError")})
		return
	}

	sendJSONResponse(w, http.StatusOK, APIResponse{Status: "success", Message: a.i18n.T(lang, "NoteDeleted")})
}
