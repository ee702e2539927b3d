package apperrors

type Code string

const (
	CodeUnknown         Code = "UNKNOWN"
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeAlreadyExists   Code = "ALREADY_EXISTS"
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeForbidden       Code = "PERMISSION_DENIED"
	CodeIntegrity       Code = "INTEGRITY"
	CodeProtectedEntity Code = "PROTECTED_ENTITY"
	CodeInternal        Code = "INTERNAL"
)
