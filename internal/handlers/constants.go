package handlers

const (
	oauthStateCookie    = "mathquest_oauth_state"
	oauthProviderCookie = "mathquest_oauth_provider"

	ErrInvalidRequestBody  = "Invalid request body"
	ErrInvalidID           = "Invalid id"
	ErrUnauthorized        = "Unauthorized"
	ErrForbidden           = "Forbidden"
	ErrInternalServerError = "Internal server error"
)
