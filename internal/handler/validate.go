package handler

import (
	"regexp"
	"slices"
	"strings"

	"github.com/hitoshi/libraryfront/internal/model"
)

var emailPattern = regexp.MustCompile(`^\S+@\S+\.\S+$`)

// fieldErrors はフォーム項目ごとの入力エラー。
type fieldErrors map[string]string

func (f fieldErrors) require(field, value, message string) bool {
	if strings.TrimSpace(value) == "" {
		f[field] = message
		return false
	}
	return true
}

// err は入力エラーがあればINVALID_REQUESTのAPIErrorを返す。
func (f fieldErrors) err() *model.APIError {
	if len(f) == 0 {
		return nil
	}
	apiErr := model.NewInvalidRequestError(f.first())
	apiErr.Fields = f
	return apiErr
}

// first はフィールド名順で最初のエラーメッセージを返す。
func (f fieldErrors) first() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return f[keys[0]]
}

func validateLogin(creds model.Credentials) *model.APIError {
	errs := fieldErrors{}
	errs.require("email", creds.Email, "Le nom d'utilisateur ou l'email est requis")
	if errs.require("password", creds.Password, "Le mot de passe est requis") && len(creds.Password) < 6 {
		errs["password"] = "Le mot de passe doit contenir au moins 6 caractères"
	}
	return errs.err()
}

func validateRegister(req registerRequest) *model.APIError {
	errs := fieldErrors{}
	if errs.require("username", req.Username, "Le nom d'utilisateur est requis") && len(strings.TrimSpace(req.Username)) < 3 {
		errs["username"] = "Au moins 3 caractères requis"
	}
	if errs.require("email", req.Email, "L'email est requis") && !emailPattern.MatchString(strings.TrimSpace(req.Email)) {
		errs["email"] = "Email invalide"
	}
	if errs.require("password", req.Password, "Le mot de passe est requis") && len(req.Password) < 8 {
		errs["password"] = "Au moins 8 caractères requis"
	}
	if errs.require("confirmPassword", req.ConfirmPassword, "Veuillez confirmer le mot de passe") && req.ConfirmPassword != req.Password {
		errs["confirmPassword"] = "Les mots de passe ne correspondent pas"
	}
	errs.require("firstName", req.FirstName, "Le prénom est requis")
	errs.require("lastName", req.LastName, "Le nom est requis")
	return errs.err()
}

func validateForgotPassword(email string) *model.APIError {
	errs := fieldErrors{}
	if errs.require("email", email, "L'email est requis") && !emailPattern.MatchString(strings.TrimSpace(email)) {
		errs["email"] = "Email invalide"
	}
	return errs.err()
}

func validateResetPassword(req resetPasswordRequest) *model.APIError {
	errs := fieldErrors{}
	errs.require("token", req.Token, "Le lien de réinitialisation est invalide")
	if errs.require("newPassword", req.NewPassword, "Le mot de passe est requis") && len(req.NewPassword) < 8 {
		errs["newPassword"] = "Au moins 8 caractères requis"
	}
	if req.ConfirmPassword != "" && req.ConfirmPassword != req.NewPassword {
		errs["confirmPassword"] = "Les mots de passe ne correspondent pas"
	}
	return errs.err()
}
