package models

// 角色常量 - 固定枚举，不走角色表
const (
	RoleSuperAdmin  = "SUPER_ADMIN"
	RoleAdmin       = "ADMIN"
	RoleEmployee    = "EMPLOYEE"
	RoleSalesPerson = "SALES_PERSON"
	RoleCustomer    = "CUSTOMER"
)

// AllRoles 全部角色列表
var AllRoles = []string{
	RoleSuperAdmin,
	RoleAdmin,
	RoleEmployee,
	RoleSalesPerson,
	RoleCustomer,
}

// IsValidRole 检查角色是否合法
func IsValidRole(role string) bool {
	for _, r := range AllRoles {
		if r == role {
			return true
		}
	}
	return false
}
