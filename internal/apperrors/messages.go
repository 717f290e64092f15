package apperrors

import "net/http"

const (
	CodeValidationError = "VALIDATION_ERROR"
	CodeInternal        = "INTERNAL_SERVER_ERROR"
	CodeTooManyRequests = "TOO_MANY_REQUESTS"
	CodeBadRequest      = "BAD_REQUEST"

	CodeEmailAlreadyExists          = "EMAIL_ALREADY_EXISTS"
	CodeEmailOrPasswordIncorrect    = "EMAIL_OR_PASSWORD_IS_INCORRECT"
	CodeAccessTokenRequired         = "ACCESS_TOKEN_IS_REQUIRED"
	CodeRefreshTokenRequired        = "REFRESH_TOKEN_IS_REQUIRED"
	CodeEmailVerifyTokenRequired    = "EMAIL_VERIFY_TOKEN_IS_REQUIRED"
	CodeForgotPasswordTokenRequired = "FORGOT_PASSWORD_TOKEN_IS_REQUIRED"
	CodeInvalidToken                = "INVALID_TOKEN"
	CodeUsedOrNonexistentRefresh    = "USED_REFRESH_TOKEN_OR_NOT_EXIST"
	CodeInvalidForgotPasswordToken  = "INVALID_FORGOT_PASSWORD_TOKEN"
	CodeInvalidEmailVerifyToken     = "INVALID_EMAIL_VERIFY_TOKEN"
	CodeEmailAlreadyVerified        = "EMAIL_ALREADY_VERIFIED_BEFORE"
	CodeUserNotFound                = "USER_NOT_FOUND"
	CodeUserNotVerified             = "USER_NOT_VERIFIED"
	CodeUserBanned                  = "USER_BANNED"

	CodeBoardNotFound       = "BOARD_NOT_FOUND"
	CodeColumnNotFound      = "COLUMN_NOT_FOUND"
	CodeCardNotFound        = "CARD_NOT_FOUND"
	CodeInvalidColumnID     = "INVALID_COLUMN_ID"
	CodeInvalidCardID       = "INVALID_CARD_ID"
	CodeInvalidColumnOrder  = "INVALID_COLUMN_ORDER"
	CodeInvalidCardOrder    = "INVALID_CARD_ORDER"
	CodeInvitationNotFound  = "INVITATION_NOT_FOUND"
	CodeInvitationExists    = "INVITATION_ALREADY_EXISTS"
	CodeInvitationResponded = "INVITATION_ALREADY_RESPONDED"
	CodeAlreadyBoardMember  = "USER_ALREADY_BOARD_MEMBER"
	CodeCannotInviteSelf    = "CANNOT_INVITE_YOURSELF"
	CodeStorageDisabled     = "STORAGE_NOT_CONFIGURED"
	CodeOAuthFailed         = "OAUTH_LOGIN_FAILED"
)

const (
	MsgValidationError     = "Validation error"
	MsgInternalServerError = "Internal server error"
	MsgInvalidRequestBody  = "Invalid request body"

	MsgEmailAlreadyExists          = "Email already exists"
	MsgEmailOrPasswordIncorrect    = "Email or password is incorrect"
	MsgAccessTokenRequired         = "Access token is required"
	MsgRefreshTokenRequired        = "Refresh token is required"
	MsgEmailVerifyTokenRequired    = "Email verify token is required"
	MsgForgotPasswordTokenRequired = "Forgot password token is required"
	MsgUsedOrNonexistentRefresh    = "Used refresh token or not exist"
	MsgInvalidForgotPasswordToken  = "Invalid forgot password token"
	MsgInvalidEmailVerifyToken     = "Invalid email verify token"
	MsgEmailAlreadyVerified        = "Email already verified before"
	MsgUserNotFound                = "User not found"
	MsgUserNotVerified             = "User not verified"
	MsgUserBanned                  = "User is banned"
	MsgTooManyAttempts             = "Too many attempts, try again later"

	MsgBoardNotFound       = "Board not found"
	MsgColumnNotFound      = "Column not found"
	MsgCardNotFound        = "Card not found"
	MsgInvalidColumnID     = "Invalid column id"
	MsgInvalidCardID       = "Invalid card id"
	MsgInvalidColumnOrder  = "Column order must list every column of the board exactly once"
	MsgInvalidCardOrder    = "Card order ids are inconsistent with the moved card"
	MsgInvitationNotFound  = "Invitation not found"
	MsgInvitationExists    = "A pending invitation already exists for this user"
	MsgInvitationResponded = "Invitation was already answered"
	MsgAlreadyBoardMember  = "User is already a member of this board"
	MsgCannotInviteSelf    = "You cannot invite yourself"
	MsgStorageDisabled     = "Object storage is not configured"
	MsgOAuthFailed         = "Google login failed"
)

var (
	ErrInvalidRequestBody = New(http.StatusBadRequest, CodeBadRequest, MsgInvalidRequestBody)

	ErrEmailAlreadyExists       = Conflict(CodeEmailAlreadyExists, MsgEmailAlreadyExists)
	ErrEmailOrPasswordIncorrect = New(http.StatusUnprocessableEntity, CodeEmailOrPasswordIncorrect, MsgEmailOrPasswordIncorrect)
	ErrAccessTokenRequired      = Unauthorized(CodeAccessTokenRequired, MsgAccessTokenRequired)
	ErrRefreshTokenRequired     = Unauthorized(CodeRefreshTokenRequired, MsgRefreshTokenRequired)
	ErrEmailVerifyTokenRequired = Unauthorized(CodeEmailVerifyTokenRequired, MsgEmailVerifyTokenRequired)
	ErrForgotTokenRequired      = Unauthorized(CodeForgotPasswordTokenRequired, MsgForgotPasswordTokenRequired)
	ErrUsedOrNonexistentRefresh = Unauthorized(CodeUsedOrNonexistentRefresh, MsgUsedOrNonexistentRefresh)
	ErrInvalidForgotToken       = Unauthorized(CodeInvalidForgotPasswordToken, MsgInvalidForgotPasswordToken)
	ErrInvalidEmailVerifyToken  = Unauthorized(CodeInvalidEmailVerifyToken, MsgInvalidEmailVerifyToken)
	ErrEmailAlreadyVerified     = Conflict(CodeEmailAlreadyVerified, MsgEmailAlreadyVerified)
	ErrUserNotFound             = NotFound(CodeUserNotFound, MsgUserNotFound)
	ErrUserNotVerified          = Forbidden(CodeUserNotVerified, MsgUserNotVerified)
	ErrUserBanned               = Forbidden(CodeUserBanned, MsgUserBanned)
	ErrTooManyAttempts          = TooManyRequests(MsgTooManyAttempts)

	ErrBoardNotFound       = NotFound(CodeBoardNotFound, MsgBoardNotFound)
	ErrColumnNotFound      = NotFound(CodeColumnNotFound, MsgColumnNotFound)
	ErrCardNotFound        = NotFound(CodeCardNotFound, MsgCardNotFound)
	ErrInvalidColumnID     = New(http.StatusUnprocessableEntity, CodeInvalidColumnID, MsgInvalidColumnID)
	ErrInvalidCardID       = New(http.StatusUnprocessableEntity, CodeInvalidCardID, MsgInvalidCardID)
	ErrInvalidColumnOrder  = New(http.StatusUnprocessableEntity, CodeInvalidColumnOrder, MsgInvalidColumnOrder)
	ErrInvalidCardOrder    = New(http.StatusUnprocessableEntity, CodeInvalidCardOrder, MsgInvalidCardOrder)
	ErrInvitationNotFound  = NotFound(CodeInvitationNotFound, MsgInvitationNotFound)
	ErrInvitationExists    = Conflict(CodeInvitationExists, MsgInvitationExists)
	ErrInvitationResponded = Conflict(CodeInvitationResponded, MsgInvitationResponded)
	ErrAlreadyBoardMember  = Conflict(CodeAlreadyBoardMember, MsgAlreadyBoardMember)
	ErrCannotInviteSelf    = New(http.StatusUnprocessableEntity, CodeCannotInviteSelf, MsgCannotInviteSelf)
	ErrStorageDisabled     = New(http.StatusServiceUnavailable, CodeStorageDisabled, MsgStorageDisabled)
	ErrOAuthFailed         = Unauthorized(CodeOAuthFailed, MsgOAuthFailed)
)
