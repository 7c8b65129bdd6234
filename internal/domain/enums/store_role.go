package enums

type StoreRole string

const (
	StoreRoleOwner StoreRole = "OWNER"
	StoreRoleAdmin StoreRole = "ADMIN"
	StoreRoleStaff StoreRole = "STAFF"
)

type PlatformRole string

const (
	PlatformRoleAdmin PlatformRole = "PLATFORM_ADMIN"
	PlatformRoleUser  PlatformRole = "USER"
)
