package handlers

import (
	"net/http"

	"kiama-backend/internal/directory"
	"kiama-backend/internal/models"
)

func GetRoles(w http.ResponseWriter, r *http.Request) {
	respondJson(w, store.Roles())
}

type createRoleRequest struct {
	Name        string                 `json:"name" validate:"required"`
	Color       string                 `json:"color" validate:"omitempty,hexcolor"`
	Permissions models.RolePermissions `json:"permissions"`
}

func CreateRole(w http.ResponseWriter, r *http.Request) {
	if !requireCapability(w, r, func(p models.RolePermissions) bool { return p.ManageRoles }) {
		return
	}

	var body createRoleRequest
	if err := decodeBody(r, &body); err != nil {
		respondError(w, err)
		return
	}

	role, err := store.CreateRole(body.Name, body.Color, body.Permissions)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJson(w, role)
}

func PatchRole(w http.ResponseWriter, r *http.Request) {
	if !requireCapability(w, r, func(p models.RolePermissions) bool { return p.ManageRoles }) {
		return
	}

	roleID, err := urlParamID(r, "roleID")
	if err != nil {
		respondError(w, err)
		return
	}

	var patch directory.RolePatch
	if err := decodeBody(r, &patch); err != nil {
		respondError(w, err)
		return
	}

	role, err := store.PatchRole(roleID, patch)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJson(w, role)
}

func DeleteRole(w http.ResponseWriter, r *http.Request) {
	if !requireCapability(w, r, func(p models.RolePermissions) bool { return p.ManageRoles }) {
		return
	}

	roleID, err := urlParamID(r, "roleID")
	if err != nil {
		respondError(w, err)
		return
	}

	if err := store.DeleteRole(roleID); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type assignRoleRequest struct {
	Principal string `json:"principal" validate:"required,max=32"`
}

func AssignRole(w http.ResponseWriter, r *http.Request) {
	if !requireCapability(w, r, func(p models.RolePermissions) bool { return p.ManageRoles }) {
		return
	}

	roleID, err := urlParamID(r, "roleID")
	if err != nil {
		respondError(w, err)
		return
	}

	var body assignRoleRequest
	if err := decodeBody(r, &body); err != nil {
		respondError(w, err)
		return
	}

	if err := store.AssignRole(body.Principal, roleID); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func UnassignRole(w http.ResponseWriter, r *http.Request) {
	if !requireCapability(w, r, func(p models.RolePermissions) bool { return p.ManageRoles }) {
		return
	}

	roleID, err := urlParamID(r, "roleID")
	if err != nil {
		respondError(w, err)
		return
	}

	var body assignRoleRequest
	if err := decodeBody(r, &body); err != nil {
		respondError(w, err)
		return
	}

	if err := store.UnassignRole(body.Principal, roleID); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
