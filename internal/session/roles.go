package session

// Role is the portal role of an address.
type Role string

const (
	RoleNone      Role = "none"
	RoleDeveloper Role = "developer"
	RoleValidator Role = "validator"
)

// RoleFor returns the role of address given the configured validator.
func RoleFor(address, validator string) Role {
	switch {
	case address == "":
		return RoleNone
	case validator != "" && address == validator:
		return RoleValidator
	default:
		return RoleDeveloper
	}
}
