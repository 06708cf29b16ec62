package enums

// MemberRole is the role carried in access tokens.
type MemberRole string

const (
	MemberRoleCustomer MemberRole = "customer"
	MemberRoleAdmin    MemberRole = "admin"
)

var memberRoles = []MemberRole{MemberRoleCustomer, MemberRoleAdmin}

func (r MemberRole) String() string { return string(r) }

func (r MemberRole) IsValid() bool { return known(memberRoles, r) }

func ParseMemberRole(value string) (MemberRole, error) {
	return parse(memberRoles, "member role", value)
}
