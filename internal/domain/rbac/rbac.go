// Пакет rbac — правила ролей и доступа внутри учебного заведения.
//
// Роли: admin (создатель учебного заведения), teacher, student.
// Списки участников существуют только для teacher и student; администратор
// не входит ни в один список и определяется полем member_of.
//
// Права:
//   - заявки учителей видит и решает администратор;
//   - заявки студентов видят администратор и учителя, решают учителя;
//   - участников видят администратор и учителя;
//   - учителей исключает администратор, студентов — администратор или учитель;
//   - администратора исключить нельзя.
package rbac

import (
	"errors"

	"github.com/bigkaa/goschool/institution-module/internal/domain/model"
)

// ErrInconsistentAffiliation — в хранилище роль задана без member_of или наоборот.
var ErrInconsistentAffiliation = errors.New("роль и member_of должны быть заданы вместе")

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	switch model.Role(role) {
	case model.RoleAdmin, model.RoleTeacher, model.RoleStudent:
		return true
	}
	return false
}

// IsListRole проверяет, что для роли существует список участников
// (в зал ожидания можно подать заявку только на эти роли).
func IsListRole(role string) bool {
	r := model.Role(role)
	return r == model.RoleTeacher || r == model.RoleStudent
}

// ToAffiliation собирает принадлежность из двух nullable-колонок хранилища.
// Обе nil — пользователь не состоит в учебном заведении.
func ToAffiliation(role, memberOf *string) (*model.Affiliation, error) {
	if role == nil && memberOf == nil {
		return nil, nil
	}
	if role == nil || memberOf == nil || *role == "" || *memberOf == "" {
		return nil, ErrInconsistentAffiliation
	}
	if !IsValidRole(*role) {
		return nil, errors.New("недопустимая роль: " + *role)
	}
	return &model.Affiliation{Role: model.Role(*role), InstitutionID: *memberOf}, nil
}

// FromAffiliation раскладывает принадлежность на две nullable-колонки.
func FromAffiliation(a *model.Affiliation) (role, memberOf *string) {
	if a == nil {
		return nil, nil
	}
	r := string(a.Role)
	m := a.InstitutionID
	return &r, &m
}

// hasRoleIn проверяет, что пользователь имеет одну из ролей в данном учебном заведении.
func hasRoleIn(actor *model.User, institutionID string, roles ...model.Role) bool {
	if actor == nil || actor.Affiliation == nil || actor.Affiliation.InstitutionID != institutionID {
		return false
	}
	for _, r := range roles {
		if actor.Affiliation.Role == r {
			return true
		}
	}
	return false
}

// IsAdminOf проверяет, что пользователь — администратор учебного заведения.
func IsAdminOf(actor *model.User, institutionID string) bool {
	return hasRoleIn(actor, institutionID, model.RoleAdmin)
}

// CanViewRequests — может ли пользователь видеть заявки в список list.
func CanViewRequests(actor *model.User, institutionID string, list model.Role) bool {
	switch list {
	case model.RoleTeacher:
		return hasRoleIn(actor, institutionID, model.RoleAdmin)
	case model.RoleStudent:
		return hasRoleIn(actor, institutionID, model.RoleAdmin, model.RoleTeacher)
	}
	return false
}

// CanResolveRequest — может ли пользователь одобрять и отклонять заявки в список list.
func CanResolveRequest(actor *model.User, institutionID string, list model.Role) bool {
	switch list {
	case model.RoleTeacher:
		return hasRoleIn(actor, institutionID, model.RoleAdmin)
	case model.RoleStudent:
		return hasRoleIn(actor, institutionID, model.RoleTeacher)
	}
	return false
}

// CanViewMembers — может ли пользователь видеть списки участников.
func CanViewMembers(actor *model.User, institutionID string) bool {
	return hasRoleIn(actor, institutionID, model.RoleAdmin, model.RoleTeacher)
}

// CanRemoveMember — может ли пользователь исключать участников из списка list.
func CanRemoveMember(actor *model.User, institutionID string, list model.Role) bool {
	switch list {
	case model.RoleTeacher:
		return hasRoleIn(actor, institutionID, model.RoleAdmin)
	case model.RoleStudent:
		return hasRoleIn(actor, institutionID, model.RoleAdmin, model.RoleTeacher)
	}
	return false
}
